package orchestrator

import "fmt"

// ValidationError covers missing or malformed run inputs and an
// unreachable persistence layer at entry. Fatal before any batch.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
	}
	return "validation: " + e.Reason
}

// ConfigurationError covers unsupported region/country codes and
// missing endpoint mappings. Fatal before any batch.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "configuration: " + e.Reason
}
