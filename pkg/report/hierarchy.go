// Package report implements the classification and aggregation engine that
// turns a stream of Redmine time entries into the spent-time report model:
// one sheet of hours per support type and one cross-category matrix of
// hours per expert.
package report

import (
	"fmt"

	trerrors "github.com/NBISweden/timereport/pkg/errors"
	"github.com/NBISweden/timereport/pkg/redmine"
)

// Hierarchy resolves any project to its top-level ancestor. The project
// forest is immutable for the duration of a report run.
type Hierarchy struct {
	projects map[int]redmine.Project
}

// NewHierarchy wraps a project map fetched from Redmine.
func NewHierarchy(projects map[int]redmine.Project) *Hierarchy {
	return &Hierarchy{projects: projects}
}

// TopLevel walks the parent chain of projectID to its root and returns the
// root's project id. Returns ErrUnknownProject when any project on the
// chain is absent from the hierarchy, and ErrCyclicHierarchy when the chain
// revisits a project instead of reaching a root.
func (h *Hierarchy) TopLevel(projectID int) (int, error) {
	visited := make(map[int]struct{})

	id := projectID
	for {
		project, ok := h.projects[id]
		if !ok {
			return 0, fmt.Errorf("project %d: %w", id, trerrors.ErrUnknownProject)
		}
		if project.Parent == nil {
			return id, nil
		}
		if _, seen := visited[id]; seen {
			return 0, fmt.Errorf("project %d: %w", projectID, trerrors.ErrCyclicHierarchy)
		}
		visited[id] = struct{}{}
		id = *project.Parent
	}
}

// Name returns the display name of a project, or "" when unknown.
func (h *Hierarchy) Name(projectID int) string {
	return h.projects[projectID].Name
}
