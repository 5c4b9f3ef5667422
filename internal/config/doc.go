// Package config loads the promptinfra YAML configuration.
//
// The file names every choice the pipeline needs up front: gateway priority,
// whether the S3 cache tier is on, which ledger backend to use, and where to
// publish. Secrets never appear in the file; it names the environment
// variables that hold them, and Resolve reads those once at startup.
package config
