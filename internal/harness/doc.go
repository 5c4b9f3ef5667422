// Package harness runs YAML pipeline scenarios against real components.
//
// Each scenario gets a fresh local cache tier in a temporary directory, an
// in-memory S3 tier, a ledger (in-memory SQLite by default), and optionally
// a local stand-in for the Terraform Cloud API. Gateways are the built-in
// template or scripted failures, so runs are deterministic and golden
// snapshots are stable.
//
// # Scenario Format
//
//	name: scenario_name
//	description: "What this scenario validates"
//	identities: [dep-1, dep-2]
//	setup:
//	  gateways: [failing, template]
//	  remote: true
//	  ledger: sqlite
//	  salt_mode: none
//	  threshold: "10.00"
//	  tags: { cost_center: platform }
//	  publish: ok
//	runs:
//	  - request: "create a small EC2 instance"
//	    salt: v2
//	    publish: true
//	    expect:
//	      outcome: ok
//	      hit: false
//	      cost: "8.50"
//	assertions:
//	  - type: run_contains
//	    where: { deployment_id: dep-2, hit: true, origin: local }
//	  - type: run_count
//	    where: { hit: true }
//	    count: 1
//	  - type: gateway_calls
//	    count: 1
//	  - type: ledger_count
//	    count: 2
//	  - type: final_state
//	    where: { deployment_id: dep-1 }
//	    expect: { status: published, "tags.cost_center": platform }
//	  - type: total_cost
//	    value: "17.00"
//
// Field values in where and expect clauses are compared by their printed
// form, so costs are written as quoted two-decimal strings.
//
// # Deterministic Testing
//
// Identities come from the scenario's identities list, the clock starts at
// 2026-10-16T09:00:00Z and advances one minute per run, and every cache key
// is a pure function of the request and salt. Together these make the run
// trace reproducible for golden comparison.
package harness
