// Package errors provides common domain error types for the timereport tool.
//
// This package defines sentinel errors for fatal configuration conditions
// (unknown lexicon, unknown group, broken project hierarchy) that abort a
// report run before any aggregation. Using typed errors enables consistent
// error handling with errors.Is() checks.
//
// Usage:
//
//	import trerrors "github.com/NBISweden/timereport/pkg/errors"
//
//	// Return a domain error
//	return 0, fmt.Errorf("project %d: %w", id, trerrors.ErrUnknownProject)
//
//	// Check for domain errors
//	if trerrors.IsUnknownProject(err) {
//	    // handle unknown project case
//	}
package errors

import "errors"

// Fatal configuration errors. Any of these aborts the run before the first
// time entry is aggregated.
var (
	// ErrUnknownProject indicates a project id absent from the fetched
	// project hierarchy.
	ErrUnknownProject = errors.New("unknown project")

	// ErrCyclicHierarchy indicates a parent chain that never reaches a
	// top-level project.
	ErrCyclicHierarchy = errors.New("cyclic project hierarchy")

	// ErrUnknownLexicon indicates a classification lexicon name that is
	// not defined.
	ErrUnknownLexicon = errors.New("unknown classification lexicon")

	// ErrGroupNotFound indicates no Redmine group matches the requested
	// group name.
	ErrGroupNotFound = errors.New("group not found")

	// ErrUnauthorized indicates the Redmine API rejected the API key.
	ErrUnauthorized = errors.New("unauthorized")
)

// IsUnknownProject reports whether any error in err's chain is ErrUnknownProject.
func IsUnknownProject(err error) bool {
	return errors.Is(err, ErrUnknownProject)
}

// IsCyclicHierarchy reports whether any error in err's chain is ErrCyclicHierarchy.
func IsCyclicHierarchy(err error) bool {
	return errors.Is(err, ErrCyclicHierarchy)
}

// IsUnknownLexicon reports whether any error in err's chain is ErrUnknownLexicon.
func IsUnknownLexicon(err error) bool {
	return errors.Is(err, ErrUnknownLexicon)
}

// IsGroupNotFound reports whether any error in err's chain is ErrGroupNotFound.
func IsGroupNotFound(err error) bool {
	return errors.Is(err, ErrGroupNotFound)
}

// IsUnauthorized reports whether any error in err's chain is ErrUnauthorized.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}
