package report

import (
	"github.com/NBISweden/timereport/pkg/redmine"
)

// UserRecord aggregates one expert's hours on one support-type sheet.
//
// Hours are written through addHours only, so the per-activity totals can
// never drift from the per-project breakdown.
type UserRecord struct {
	FirstName string
	LastName  string
	Email     string

	// TotalSpentTime accumulates across all of the user's entries on
	// this sheet, regardless of activity.
	TotalSpentTime float64

	// SpentTime holds hours by activity name, then by top-level project id.
	SpentTime map[string]map[int]float64

	// ActivityTotals holds, per activity name, the sum over all projects.
	ActivityTotals map[string]float64

	// Issues is the set of issue ids the user logged time on.
	Issues map[int]struct{}
}

func newUserRecord(user redmine.User) *UserRecord {
	return &UserRecord{
		FirstName:      user.FirstName,
		LastName:       user.LastName,
		Email:          user.Mail,
		SpentTime:      make(map[string]map[int]float64),
		ActivityTotals: make(map[string]float64),
		Issues:         make(map[int]struct{}),
	}
}

// addHours is the single write path for sheet hours: the per-project cell,
// the activity total, and the user total move together.
func (r *UserRecord) addHours(activity string, topLevelProject int, hours float64) {
	perProject, ok := r.SpentTime[activity]
	if !ok {
		perProject = make(map[int]float64)
		r.SpentTime[activity] = perProject
	}
	perProject[topLevelProject] += hours
	r.ActivityTotals[activity] += hours
	r.TotalSpentTime += hours
}

// MostCommonProject returns the top-level project the user logged the most
// hours on, computed from the final accumulated totals. Ties break toward
// the lowest project id so the result is deterministic. ok is false when
// the record has no hours.
func (r *UserRecord) MostCommonProject() (projectID int, ok bool) {
	totals := make(map[int]float64)
	for _, perProject := range r.SpentTime {
		for id, hours := range perProject {
			totals[id] += hours
		}
	}

	best := 0
	bestHours := -1.0
	for id, hours := range totals {
		if hours > bestHours || (hours == bestHours && id < best) {
			best = id
			bestHours = hours
		}
	}
	if bestHours < 0 {
		return 0, false
	}
	return best, true
}

// MatrixRow aggregates one expert's hours across the matrix buckets,
// independent of the support-type sheets.
type MatrixRow struct {
	User redmine.User

	// Hours has every bucket pre-initialized to zero, so a row is fully
	// shaped from the moment it exists.
	Hours map[Bucket]float64

	// Total is the sum over all buckets. Ignored and unclassified
	// entries contribute nothing.
	Total float64
}

func newMatrixRow(user redmine.User) *MatrixRow {
	hours := make(map[Bucket]float64, len(MatrixBuckets))
	for _, b := range MatrixBuckets {
		hours[b] = 0
	}
	return &MatrixRow{User: user, Hours: hours}
}

// addHours is the single write path for matrix hours: bucket and total
// move together.
func (m *MatrixRow) addHours(bucket Bucket, hours float64) {
	m.Hours[bucket] += hours
	m.Total += hours
}

// EntryRef identifies a source time entry in a warning, with enough
// context to locate the record.
type EntryRef struct {
	EntryID     int
	UserName    string
	ProjectName string
	Hours       float64
	URL         string
}

// Warnings collects the per-entry, non-fatal conditions of a run.
type Warnings struct {
	// Unclassified lists entries that matched no matrix rule.
	Unclassified []EntryRef

	// WithoutIssue lists entries carrying no issue reference.
	WithoutIssue []EntryRef

	// UnclassifiedHours is the total hours excluded from every matrix
	// bucket. The same hours still count on the support-type sheets.
	UnclassifiedHours float64

	// HoursWithoutIssue is the total hours of entries without an issue id.
	HoursWithoutIssue float64
}

// Report is the finished aggregate handed to the renderer. It is read-only
// once Finalize has returned it.
type Report struct {
	// SupportTypes maps support type → user id → aggregated record.
	SupportTypes map[string]map[int]*UserRecord

	// Matrix maps user id → matrix row.
	Matrix map[int]*MatrixRow

	// Warnings summarizes the non-fatal conditions of the run.
	Warnings Warnings

	// TotalHours is the sum of hours over every ingested in-scope entry.
	TotalHours float64
}

func newReport() *Report {
	return &Report{
		SupportTypes: make(map[string]map[int]*UserRecord),
		Matrix:       make(map[int]*MatrixRow),
	}
}
