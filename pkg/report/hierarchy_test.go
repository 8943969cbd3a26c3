package report

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	trerrors "github.com/NBISweden/timereport/pkg/errors"
	"github.com/NBISweden/timereport/pkg/redmine"
)

func intPtr(i int) *int { return &i }

func TestHierarchyTopLevel(t *testing.T) {
	h := NewHierarchy(map[int]redmine.Project{
		1: {ID: 1, Name: "National Bioinformatics Support"},
		2: {ID: 2, Name: "Some Support Project", Parent: intPtr(1)},
		3: {ID: 3, Name: "A Sub-subproject", Parent: intPtr(2)},
		4: {ID: 4, Name: "Long-term Support"},
	})

	tests := []struct {
		name      string
		projectID int
		want      int
	}{
		{"root resolves to itself", 1, 1},
		{"one level", 2, 1},
		{"two levels", 3, 1},
		{"other root", 4, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := h.TopLevel(tt.projectID)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHierarchyUnknownProject(t *testing.T) {
	h := NewHierarchy(map[int]redmine.Project{
		1: {ID: 1, Name: "Root"},
	})

	_, err := h.TopLevel(99)
	assert.ErrorIs(t, err, trerrors.ErrUnknownProject)
}

func TestHierarchyBrokenParentLink(t *testing.T) {
	// Parent points at a project missing from the hierarchy (e.g. archived).
	h := NewHierarchy(map[int]redmine.Project{
		2: {ID: 2, Name: "Orphan", Parent: intPtr(1)},
	})

	_, err := h.TopLevel(2)
	assert.ErrorIs(t, err, trerrors.ErrUnknownProject)
}

func TestHierarchyCycleDetected(t *testing.T) {
	h := NewHierarchy(map[int]redmine.Project{
		1: {ID: 1, Name: "A", Parent: intPtr(2)},
		2: {ID: 2, Name: "B", Parent: intPtr(1)},
	})

	_, err := h.TopLevel(1)
	assert.ErrorIs(t, err, trerrors.ErrCyclicHierarchy)
}

func TestHierarchySelfCycleDetected(t *testing.T) {
	h := NewHierarchy(map[int]redmine.Project{
		1: {ID: 1, Name: "A", Parent: intPtr(1)},
	})

	_, err := h.TopLevel(1)
	assert.ErrorIs(t, err, trerrors.ErrCyclicHierarchy)
}

func TestHierarchyName(t *testing.T) {
	h := NewHierarchy(map[int]redmine.Project{
		1: {ID: 1, Name: "Long-term Support"},
	})
	assert.Equal(t, "Long-term Support", h.Name(1))
	assert.Empty(t, h.Name(42))
}
