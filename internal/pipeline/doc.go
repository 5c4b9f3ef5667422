// Package pipeline runs one request through the system: mint a deployment
// identity, resolve the artifact from cache or the gateways, estimate its
// cost, record the deployment, and optionally publish it.
//
// A run is sequential. Concurrent runs share only the cache and the ledger,
// both of which are atomic per key or identity. Nothing is rolled back: a
// failure after the cache write leaves the cached artifact in place, and a
// publish failure never undoes the ledger record.
package pipeline
