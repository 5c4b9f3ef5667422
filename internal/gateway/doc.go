// Package gateway turns a natural-language request into infrastructure
// code.
//
// The pipeline sees only the Gateway interface. Adapters here wrap LLM
// providers (via go-llms) and a deterministic template fallback. A Chain
// tries gateways in priority order and returns the first non-empty answer.
package gateway
