package config

import (
	"fmt"
	"strings"
)

// ConfigurationError reports missing or malformed configuration. It is raised
// before any browser resource is created.
type ConfigurationError struct {
	// Missing lists every required variable that was absent or empty.
	Missing []string

	// Var, Value and Reason describe a single malformed value.
	Var    string
	Value  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if len(e.Missing) > 0 {
		return fmt.Sprintf("missing required environment variables: %s. Set them in your environment or %s file",
			strings.Join(e.Missing, ", "), DotEnvFile)
	}
	return fmt.Sprintf("%s %s; got %q", e.Var, e.Reason, e.Value)
}
