package pipeline

import (
	"errors"
	"fmt"
	"strings"
)

// ConfigurationError aborts a run before any event is fetched: no API key,
// or the account lacks one of the required metrics.
type ConfigurationError struct {
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("configuration: %s: %v", e.Reason, e.Err)
	}
	return "configuration: " + e.Reason
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// UpstreamFetchError aborts a run when a request the run cannot do without
// fails: the metrics listing or any page of the submission stream.
type UpstreamFetchError struct {
	Stream string
	Err    error
}

func (e *UpstreamFetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Stream, e.Err)
}

func (e *UpstreamFetchError) Unwrap() error { return e.Err }

// ResolveAPIKey returns the first non-blank candidate, in order of preference.
func ResolveAPIKey(candidates ...string) (string, error) {
	for _, c := range candidates {
		if k := strings.TrimSpace(c); k != "" {
			return k, nil
		}
	}
	return "", &ConfigurationError{Reason: "no Klaviyo API key provided or found in environment variables"}
}

// IsConfigurationError reports whether err is or wraps a *ConfigurationError.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}
