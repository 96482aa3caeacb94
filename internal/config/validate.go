package config

// This file adds a lightweight linter/validator for Pipeline values. It
// performs static checks over a decoded Pipeline and returns a list of issues
// (errors and warnings) that callers can surface in a CLI or tests.

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError indicates a configuration error that should block execution.
	SeverityError IssueSeverity = "error"
	// SeverityWarning indicates a configuration warning that should be surfaced
	// to users but may not necessarily block execution.
	SeverityWarning IssueSeverity = "warning"
)

// Issue describes a single validation/lint finding for a Pipeline.
//
// Path is a dotted path into the config (e.g. "storage.kind",
// "source.encoding"). Message is human-readable.
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

// Error implements the error interface so an Issue can be treated as a single
// error in contexts that expect error.
func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// ValidatePipeline performs static validation / linting of a Pipeline.
//
// It does not mutate the pipeline; normalize defaults first (Load does both).
// It returns a slice of Issue values; callers decide whether warnings are
// fatal.
func ValidatePipeline(p Pipeline) []Issue {
	var issues []Issue

	if strings.TrimSpace(p.Job) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "job",
			Message:  "job must not be empty; it is used for metrics labeling and identifying runs",
		})
	}
	if strings.TrimSpace(p.Dataset) == "" && !tablesComplete(p.Tables) {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "dataset",
			Message:  "dataset must be set unless every table name is given explicitly",
		})
	}

	issues = append(issues, validateStorage(p.Storage)...)
	issues = append(issues, validateSource(p.Source, p.Tables)...)
	issues = append(issues, validateRuntime(p.Runtime)...)

	return issues
}

func tablesComplete(t Tables) bool {
	for _, name := range []string{
		t.Raw, t.Audited, t.CleanV1, t.CleanV2, t.CleanV3, t.Current, t.Fixes,
	} {
		if strings.TrimSpace(name) == "" {
			return false
		}
	}
	return true
}

func validateStorage(s Storage) []Issue {
	var issues []Issue

	if strings.TrimSpace(s.Kind) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "storage.kind",
			Message:  "storage.kind must not be empty",
		})
		return issues
	}

	known := map[string]struct{}{
		"sqlite":   {},
		"postgres": {},
		"mssql":    {},
	}
	if _, ok := known[s.Kind]; !ok {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "storage.kind",
			Message:  fmt.Sprintf("unknown storage kind %q; ensure a matching backend is registered", s.Kind),
		})
	}

	if strings.TrimSpace(s.DSN) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "storage.dsn",
			Message:  "storage.dsn must not be empty",
		})
	}

	return issues
}

func validateSource(s Source, t Tables) []Issue {
	var issues []Issue

	switch s.Kind {
	case "table":
		if strings.TrimSpace(t.Source) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "tables.source",
				Message:  "table source requires tables.source (or a dataset to derive it from)",
			})
		}

	case "csv":
		if strings.TrimSpace(s.Path) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "source.path",
				Message:  "csv source requires a non-empty path",
			})
		}
		switch s.Encoding {
		case "", "utf8", "latin1":
		default:
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "source.encoding",
				Message:  fmt.Sprintf("unsupported encoding %q (want utf8 or latin1)", s.Encoding),
			})
		}
		if s.Comma != "" && utf8.RuneCountInString(s.Comma) != 1 {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "source.comma",
				Message:  "comma must be a single character",
			})
		}

	default:
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "source.kind",
			Message:  fmt.Sprintf("unknown source kind %q (want table or csv)", s.Kind),
		})
	}

	return issues
}

func validateRuntime(r RuntimeConfig) []Issue {
	var issues []Issue

	if r.BatchSize < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "runtime.batch_size",
			Message:  "batch_size must be >= 0",
		})
	}

	return issues
}
