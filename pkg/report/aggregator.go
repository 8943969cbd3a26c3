package report

import (
	"fmt"

	"github.com/NBISweden/timereport/pkg/logging"
	"github.com/NBISweden/timereport/pkg/redmine"
)

// timelogBotName is the synthetic user that imports bulk time logs. Its
// entries can be excluded from a run.
const timelogBotName = "Timelog Importer"

// AggregatorConfig wires an Aggregator. Hierarchy, Lexicon, and Users are
// required; GroupMembers is optional (nil admits every known user).
type AggregatorConfig struct {
	Hierarchy *Hierarchy
	Lexicon   *Lexicon

	// Users is the full user directory. Entries by users outside it are
	// skipped before any accumulation.
	Users map[int]redmine.User

	// GroupMembers, when non-nil, restricts aggregation to entries by
	// these user ids. Others are dropped before classification.
	GroupMembers map[int]struct{}

	// ExcludeTimelogBot drops entries logged by the timelog import bot.
	ExcludeTimelogBot bool

	// EntryURL builds the direct link to a time entry for warnings.
	// Optional; defaults to a bare "#<id>" reference.
	EntryURL func(entryID int) string

	// Logger receives per-entry warnings. Defaults to a nop logger.
	Logger logging.Logger
}

// Aggregator folds a stream of time entries into a Report. It is the only
// mutator of the report; each entry must be ingested exactly once.
type Aggregator struct {
	cfg    AggregatorConfig
	report *Report
	done   bool
}

// NewAggregator creates an Aggregator with an empty report.
func NewAggregator(cfg AggregatorConfig) (*Aggregator, error) {
	if cfg.Hierarchy == nil {
		return nil, fmt.Errorf("aggregator requires a project hierarchy")
	}
	if cfg.Lexicon == nil {
		return nil, fmt.Errorf("aggregator requires a classification lexicon")
	}
	if cfg.Users == nil {
		return nil, fmt.Errorf("aggregator requires a user directory")
	}
	if cfg.EntryURL == nil {
		cfg.EntryURL = func(id int) string { return fmt.Sprintf("#%d", id) }
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNopLogger()
	}
	return &Aggregator{cfg: cfg, report: newReport()}, nil
}

// Ingest folds one entry into the report. It returns an error only for
// fatal conditions (a project missing from the hierarchy, a cyclic parent
// chain); per-entry conditions are recorded as warnings and never stop the
// run.
func (a *Aggregator) Ingest(entry redmine.TimeEntry) error {
	if a.done {
		return fmt.Errorf("aggregator already finalized")
	}

	if a.cfg.ExcludeTimelogBot && entry.UserName == timelogBotName {
		return nil
	}

	user, known := a.cfg.Users[entry.UserID]
	if !known {
		a.cfg.Logger.Debug("skipping entry by user outside directory",
			logging.F("user", entry.UserName),
			logging.F("entry_id", entry.ID))
		return nil
	}

	// Group gate: out-of-scope entries never reach classification.
	if a.cfg.GroupMembers != nil {
		if _, member := a.cfg.GroupMembers[entry.UserID]; !member {
			return nil
		}
	}

	topLevel, err := a.cfg.Hierarchy.TopLevel(entry.ProjectID)
	if err != nil {
		return fmt.Errorf("classifying entry %d: %w", entry.ID, err)
	}
	topLevelName := a.cfg.Hierarchy.Name(topLevel)

	a.ingestSheet(entry, user, topLevel, topLevelName)
	a.ingestMatrix(entry, user, topLevelName)
	a.report.TotalHours += entry.Hours

	return nil
}

// ingestSheet accumulates the entry on its support-type sheet.
func (a *Aggregator) ingestSheet(entry redmine.TimeEntry, user redmine.User, topLevel int, topLevelName string) {
	supportType := a.cfg.Lexicon.Classify(topLevelName)

	sheet, ok := a.report.SupportTypes[supportType]
	if !ok {
		sheet = make(map[int]*UserRecord)
		a.report.SupportTypes[supportType] = sheet
	}
	rec, ok := sheet[entry.UserID]
	if !ok {
		rec = newUserRecord(user)
		sheet[entry.UserID] = rec
	}

	rec.addHours(entry.Activity, topLevel, entry.Hours)

	if entry.IssueID != nil {
		rec.Issues[*entry.IssueID] = struct{}{}
		return
	}

	// No issue reference: the hours above still count, only the issue
	// tracking is skipped.
	a.report.Warnings.WithoutIssue = append(a.report.Warnings.WithoutIssue, a.entryRef(entry))
	a.report.Warnings.HoursWithoutIssue += entry.Hours
	a.cfg.Logger.Warn("time entry without issue id",
		logging.F("user", entry.UserName),
		logging.F("project", entry.ProjectName),
		logging.F("url", a.cfg.EntryURL(entry.ID)))
}

// ingestMatrix accumulates the entry into its matrix bucket.
func (a *Aggregator) ingestMatrix(entry redmine.TimeEntry, user redmine.User, topLevelName string) {
	row, ok := a.report.Matrix[entry.UserID]
	if !ok {
		row = newMatrixRow(user)
		a.report.Matrix[entry.UserID] = row
	}

	result := ClassifyBucket(topLevelName, entry.Activity, entry.IssueID)
	switch {
	case result.Ignore:
		// Excluded from the matrix and from its total.
	case result.Unclassified:
		a.report.Warnings.Unclassified = append(a.report.Warnings.Unclassified, a.entryRef(entry))
		a.report.Warnings.UnclassifiedHours += entry.Hours
		a.cfg.Logger.Warn("time entry not classified",
			logging.F("user", entry.UserName),
			logging.F("project", entry.ProjectName),
			logging.F("url", a.cfg.EntryURL(entry.ID)))
	default:
		row.addHours(result.Bucket, entry.Hours)
	}
}

func (a *Aggregator) entryRef(entry redmine.TimeEntry) EntryRef {
	return EntryRef{
		EntryID:     entry.ID,
		UserName:    entry.UserName,
		ProjectName: entry.ProjectName,
		Hours:       entry.Hours,
		URL:         a.cfg.EntryURL(entry.ID),
	}
}

// Finalize seals the aggregation and returns the finished report. Further
// Ingest calls fail.
func (a *Aggregator) Finalize() *Report {
	a.done = true
	if a.report.Warnings.HoursWithoutIssue > 0 {
		a.cfg.Logger.Warn("entries without issue id",
			logging.F("hours", a.report.Warnings.HoursWithoutIssue),
			logging.F("entries", len(a.report.Warnings.WithoutIssue)))
	}
	if a.report.Warnings.UnclassifiedHours > 0 {
		a.cfg.Logger.Warn("unclassified entries excluded from matrix",
			logging.F("hours", a.report.Warnings.UnclassifiedHours),
			logging.F("entries", len(a.report.Warnings.Unclassified)))
	}
	return a.report
}
