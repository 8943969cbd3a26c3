package redmine

import (
	"encoding/json"
	"fmt"
	"time"
)

// Project is one node of the Redmine project forest. Parent is nil for
// top-level projects.
type Project struct {
	ID     int
	Name   string
	Parent *int
}

// User is one entry of the Redmine user directory.
type User struct {
	ID        int
	FirstName string
	LastName  string
	Mail      string
}

// FullName returns "First Last" for report rows.
func (u User) FullName() string {
	return u.FirstName + " " + u.LastName
}

// TimeEntry is one logged time record. IssueID is nil when the time was
// logged directly on a project without an issue reference.
type TimeEntry struct {
	ID          int
	UserID      int
	UserName    string
	ProjectID   int
	ProjectName string
	Activity    string
	Hours       float64
	IssueID     *int
	SpentOn     time.Time
	Comments    string
}

// Wire types. Field names match the Redmine REST API byte-for-byte; the
// classifier keys off activity and project name strings, so they must be
// passed through untouched.

type ref struct {
	ID   int    `json:"id"`
	Name string `json:"name,omitempty"`
}

type wireProject struct {
	ID     int    `json:"id"`
	Name   string `json:"name"`
	Parent *ref   `json:"parent,omitempty"`
}

type projectsPage struct {
	Projects   []wireProject `json:"projects"`
	TotalCount int           `json:"total_count"`
	Offset     int           `json:"offset"`
	Limit      int           `json:"limit"`
}

type wireUser struct {
	ID        int    `json:"id"`
	FirstName string `json:"firstname"`
	LastName  string `json:"lastname"`
	Mail      string `json:"mail"`
}

type usersPage struct {
	Users      []wireUser `json:"users"`
	TotalCount int        `json:"total_count"`
	Offset     int        `json:"offset"`
	Limit      int        `json:"limit"`
}

type wireGroup struct {
	ID    int        `json:"id"`
	Name  string     `json:"name"`
	Users []wireUser `json:"users,omitempty"`
}

type groupsPage struct {
	Groups []wireGroup `json:"groups"`
}

type groupResponse struct {
	Group wireGroup `json:"group"`
}

type wireTimeEntry struct {
	ID       int      `json:"id"`
	User     ref      `json:"user"`
	Project  ref      `json:"project"`
	Issue    *ref     `json:"issue,omitempty"`
	Activity ref      `json:"activity"`
	Hours    float64  `json:"hours"`
	SpentOn  wireDate `json:"spent_on"`
	Comments string   `json:"comments"`
}

type timeEntriesPage struct {
	TimeEntries []wireTimeEntry `json:"time_entries"`
	TotalCount  int             `json:"total_count"`
	Offset      int             `json:"offset"`
	Limit       int             `json:"limit"`
}

// wireDate unmarshals Redmine's bare YYYY-MM-DD date strings.
type wireDate struct {
	time.Time
}

func (d *wireDate) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return fmt.Errorf("parsing spent_on date %q: %w", s, err)
	}
	d.Time = t
	return nil
}

func (e wireTimeEntry) toTimeEntry() TimeEntry {
	entry := TimeEntry{
		ID:          e.ID,
		UserID:      e.User.ID,
		UserName:    e.User.Name,
		ProjectID:   e.Project.ID,
		ProjectName: e.Project.Name,
		Activity:    e.Activity.Name,
		Hours:       e.Hours,
		SpentOn:     e.SpentOn.Time,
		Comments:    e.Comments,
	}
	if e.Issue != nil {
		id := e.Issue.ID
		entry.IssueID = &id
	}
	return entry
}
