package model

// Shared defaults used by both the server and client binaries.
const (
	DefaultPort       = 12345
	DefaultBufferSize = 4096
	DefaultResultsDir = "results"
	DefaultUploadsDir = "uploads"
)
