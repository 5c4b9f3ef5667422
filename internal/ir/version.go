package ir

// Version constants for persisted formats.
const (
	// RecordVersion is the deployment record schema version.
	RecordVersion = "1"

	// ToolVersion is the promptinfra release.
	ToolVersion = "0.1.0"
)
