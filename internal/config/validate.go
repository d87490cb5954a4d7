package config

import (
	"fmt"
	"slices"
	"time"

	"github.com/opensymbolicai/opensymbolicai-cli/internal/logging"
)

// ValidationIssue describes a problem with a settings value.
type ValidationIssue struct {
	Path    string
	Message string
}

func (v ValidationIssue) String() string {
	return fmt.Sprintf("%s: %s", v.Path, v.Message)
}

// Validate checks Settings for issues. Returns nil if valid.
func Validate(s *Settings) []ValidationIssue {
	var issues []ValidationIssue

	if s.DefaultProvider != "" && !IsKnownProvider(s.DefaultProvider) {
		issues = append(issues, ValidationIssue{
			Path:    "defaultProvider",
			Message: fmt.Sprintf("must be one of %v, got %q", KnownProviders, s.DefaultProvider),
		})
	}

	for name := range s.Providers {
		if !IsKnownProvider(name) {
			issues = append(issues, ValidationIssue{
				Path:    "providers." + name,
				Message: fmt.Sprintf("unknown provider, must be one of %v", KnownProviders),
			})
		}
	}

	if s.Logging.Level != "" && !slices.Contains(logging.Levels, s.Logging.Level) {
		issues = append(issues, ValidationIssue{
			Path:    "logging.level",
			Message: fmt.Sprintf("must be one of %v, got %q", logging.Levels, s.Logging.Level),
		})
	}

	if s.Runner.Timeout != "" {
		d, err := time.ParseDuration(s.Runner.Timeout)
		if err != nil {
			issues = append(issues, ValidationIssue{
				Path:    "runner.timeout",
				Message: fmt.Sprintf("invalid duration %q", s.Runner.Timeout),
			})
		} else if d < 0 {
			issues = append(issues, ValidationIssue{
				Path:    "runner.timeout",
				Message: "must not be negative",
			})
		}
	}

	return issues
}
