package buildinfo

import (
	"fmt"
	"time"
)

// Set via -ldflags at build time
var (
	BuildTime  string // when the binary was compiled
	CommitTime string // last git commit time (last code edit)
	CommitHash string // short git commit hash
)

// StartTime is recorded when the process starts
var StartTime = time.Now().UTC().Format(time.RFC3339)

// String renders the build identity for the version command and run logs.
func String() string {
	commit := CommitHash
	if commit == "" {
		commit = "dev"
	}
	built := BuildTime
	if built == "" {
		built = "unknown"
	}
	return fmt.Sprintf("snowetl %s (built %s, commit time %s)", commit, built, CommitTime)
}
