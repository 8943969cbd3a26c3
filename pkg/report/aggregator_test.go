package report

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	trerrors "github.com/NBISweden/timereport/pkg/errors"
	"github.com/NBISweden/timereport/pkg/redmine"
)

// Test fixture: two top-level projects with dedicated buckets, one generic
// one, and a subproject under long-term support.
func testHierarchy() *Hierarchy {
	return NewHierarchy(map[int]redmine.Project{
		1: {ID: 1, Name: "National Bioinformatics Support"},
		2: {ID: 2, Name: "Long-term Support"},
		3: {ID: 3, Name: "Random Infra Project"},
		4: {ID: 4, Name: "LTS Subproject", Parent: intPtr(2)},
	})
}

func testUsers() map[int]redmine.User {
	return map[int]redmine.User{
		1: {ID: 1, FirstName: "Alice", LastName: "Andersson", Mail: "alice@nbis.se"},
		2: {ID: 2, FirstName: "Bo", LastName: "Berg", Mail: "bo@nbis.se"},
		3: {ID: 3, FirstName: "Cia", LastName: "Ceder", Mail: "cia@nbis.se"},
	}
}

func testAggregator(t *testing.T, mutate func(*AggregatorConfig)) *Aggregator {
	t.Helper()
	lex, err := LexiconByName(DefaultLexicon)
	require.NoError(t, err)

	cfg := AggregatorConfig{
		Hierarchy: testHierarchy(),
		Lexicon:   lex,
		Users:     testUsers(),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	agg, err := NewAggregator(cfg)
	require.NoError(t, err)
	return agg
}

func entry(id, userID, projectID int, activity string, hours float64, issueID *int) redmine.TimeEntry {
	names := map[int]string{1: "Alice Andersson", 2: "Bo Berg", 3: "Cia Ceder", 9: "Outsider"}
	return redmine.TimeEntry{
		ID:          id,
		UserID:      userID,
		UserName:    names[userID],
		ProjectID:   projectID,
		ProjectName: fmt.Sprintf("project-%d", projectID),
		Activity:    activity,
		Hours:       hours,
		IssueID:     issueID,
	}
}

func TestIngestLongTermSupportEntry(t *testing.T) {
	agg := testAggregator(t, nil)

	// Logged on a subproject; classification operates on the top level.
	require.NoError(t, agg.Ingest(entry(1, 1, 4, "Support", 3, intPtr(1234))))
	rep := agg.Finalize()

	sheet := rep.SupportTypes["Long-term"]
	require.NotNil(t, sheet)
	rec := sheet[1]
	require.NotNil(t, rec)
	assert.Equal(t, 3.0, rec.TotalSpentTime)
	assert.Equal(t, 3.0, rec.SpentTime["Support"][2])
	assert.Equal(t, 3.0, rec.ActivityTotals["Support"])
	assert.Contains(t, rec.Issues, 1234)

	row := rep.Matrix[1]
	require.NotNil(t, row)
	assert.Equal(t, 3.0, row.Hours[BucketSupportLTS])
	assert.Equal(t, 3.0, row.Total)
}

func TestIngestExternalConsultation(t *testing.T) {
	agg := testAggregator(t, nil)

	require.NoError(t, agg.Ingest(entry(1, 1, 3, "Consultation", 2, intPtr(55))))
	rep := agg.Finalize()

	// Generic project lands on the default sheet and in general support.
	assert.Equal(t, 2.0, rep.SupportTypes["SMS"][1].TotalSpentTime)
	assert.Equal(t, 2.0, rep.Matrix[1].Hours[BucketSupportSMS])
	assert.Equal(t, 2.0, rep.Matrix[1].Total)
}

func TestIngestIgnoredActivityCountsOnSheetOnly(t *testing.T) {
	agg := testAggregator(t, nil)

	require.NoError(t, agg.Ingest(entry(1, 2, 3, "Absence (Vacation/VAB/Other)", 8, intPtr(70))))
	rep := agg.Finalize()

	rec := rep.SupportTypes["SMS"][2]
	require.NotNil(t, rec)
	assert.Equal(t, 8.0, rec.TotalSpentTime)
	assert.Equal(t, 8.0, rec.ActivityTotals["Absence (Vacation/VAB/Other)"])

	row := rep.Matrix[2]
	require.NotNil(t, row)
	assert.Equal(t, 0.0, row.Total, "ignored activity must not reach any bucket")
	for _, b := range MatrixBuckets {
		assert.Equal(t, 0.0, row.Hours[b])
	}
	assert.Empty(t, rep.Warnings.Unclassified)
}

func TestIngestWithoutIssueID(t *testing.T) {
	agg := testAggregator(t, func(cfg *AggregatorConfig) {
		cfg.EntryURL = func(id int) string { return fmt.Sprintf("https://projects.nbis.se/time_entries/%d/edit", id) }
	})

	require.NoError(t, agg.Ingest(entry(42, 1, 1, "Support", 4, nil)))
	rep := agg.Finalize()

	// Hours still counted everywhere, only the issue set is untouched.
	rec := rep.SupportTypes["SMS"][1]
	assert.Equal(t, 4.0, rec.TotalSpentTime)
	assert.Empty(t, rec.Issues)
	assert.Equal(t, 4.0, rep.Matrix[1].Hours[BucketSupportSMS])

	require.Len(t, rep.Warnings.WithoutIssue, 1)
	ref := rep.Warnings.WithoutIssue[0]
	assert.Equal(t, 42, ref.EntryID)
	assert.Equal(t, "Alice Andersson", ref.UserName)
	assert.Equal(t, "https://projects.nbis.se/time_entries/42/edit", ref.URL)
	assert.Equal(t, 4.0, rep.Warnings.HoursWithoutIssue)
}

func TestIngestUnclassifiedEntry(t *testing.T) {
	agg := testAggregator(t, nil)

	require.NoError(t, agg.Ingest(entry(7, 1, 3, "Core Facility Report", 5, intPtr(9))))
	rep := agg.Finalize()

	// Sheet hours survive; every matrix bucket stays zero.
	assert.Equal(t, 5.0, rep.SupportTypes["SMS"][1].TotalSpentTime)
	assert.Equal(t, 0.0, rep.Matrix[1].Total)

	require.Len(t, rep.Warnings.Unclassified, 1)
	assert.Equal(t, 7, rep.Warnings.Unclassified[0].EntryID)
	assert.Equal(t, 5.0, rep.Warnings.UnclassifiedHours)
}

func TestGroupFilterSkipsBeforeAggregation(t *testing.T) {
	agg := testAggregator(t, func(cfg *AggregatorConfig) {
		cfg.GroupMembers = map[int]struct{}{1: {}, 2: {}}
	})

	require.NoError(t, agg.Ingest(entry(1, 3, 3, "Core Facility Report", 6, nil)))
	rep := agg.Finalize()

	assert.Empty(t, rep.SupportTypes)
	assert.Empty(t, rep.Matrix)
	assert.Empty(t, rep.Warnings.Unclassified, "out-of-scope entries emit no warnings")
	assert.Empty(t, rep.Warnings.WithoutIssue)
	assert.Equal(t, 0.0, rep.TotalHours)
}

func TestUnknownUserSkipped(t *testing.T) {
	agg := testAggregator(t, nil)

	require.NoError(t, agg.Ingest(entry(1, 9, 3, "Support", 2, nil)))
	rep := agg.Finalize()
	assert.Empty(t, rep.Matrix)
	assert.Equal(t, 0.0, rep.TotalHours)
}

func TestExcludeTimelogBot(t *testing.T) {
	users := testUsers()
	users[9] = redmine.User{ID: 9, FirstName: "Timelog", LastName: "Importer"}

	agg := testAggregator(t, func(cfg *AggregatorConfig) {
		cfg.Users = users
		cfg.ExcludeTimelogBot = true
	})

	bot := entry(1, 9, 3, "Support", 2, nil)
	bot.UserName = "Timelog Importer"
	require.NoError(t, agg.Ingest(bot))

	rep := agg.Finalize()
	assert.Empty(t, rep.Matrix)
}

func TestIngestUnknownProjectIsFatal(t *testing.T) {
	agg := testAggregator(t, nil)
	err := agg.Ingest(entry(1, 1, 99, "Support", 1, nil))
	assert.ErrorIs(t, err, trerrors.ErrUnknownProject)
}

func TestIngestAfterFinalizeFails(t *testing.T) {
	agg := testAggregator(t, nil)
	agg.Finalize()
	assert.Error(t, agg.Ingest(entry(1, 1, 1, "Support", 1, nil)))
}

func TestIngestTwiceDoubleCounts(t *testing.T) {
	agg := testAggregator(t, nil)
	e := entry(1, 1, 1, "Support", 2, intPtr(5))
	require.NoError(t, agg.Ingest(e))
	require.NoError(t, agg.Ingest(e))
	rep := agg.Finalize()

	// Entries are not deduplicated, only issue ids within a user's set.
	assert.Equal(t, 4.0, rep.SupportTypes["SMS"][1].TotalSpentTime)
	assert.Len(t, rep.SupportTypes["SMS"][1].Issues, 1)
}

// mixedEntries covers every classification outcome at least once.
func mixedEntries() []redmine.TimeEntry {
	return []redmine.TimeEntry{
		entry(1, 1, 4, "Support", 3, intPtr(100)),
		entry(2, 1, 3, "Consultation", 2, intPtr(101)),
		entry(3, 1, 1, "Support", 1.5, intPtr(102)),
		entry(4, 2, 3, "Absence (Vacation/VAB/Other)", 8, intPtr(103)),
		entry(5, 2, 3, "Development", 6, intPtr(3774)),
		entry(6, 2, 1, "NBIS Management", 2, nil),
		entry(7, 3, 3, "Training", 4, intPtr(104)),
		entry(8, 3, 3, "Support", 2.5, intPtr(104)),
		entry(9, 3, 2, "Consultation (DM)", 1, nil),
		entry(10, 3, 3, "Core Facility Report", 3, intPtr(105)),
	}
}

func ingestAll(t *testing.T, agg *Aggregator, entries []redmine.TimeEntry) *Report {
	t.Helper()
	for _, e := range entries {
		require.NoError(t, agg.Ingest(e))
	}
	return agg.Finalize()
}

func TestActivityTotalsMatchPerProjectSums(t *testing.T) {
	rep := ingestAll(t, testAggregator(t, nil), mixedEntries())

	for supportType, sheet := range rep.SupportTypes {
		for userID, rec := range sheet {
			for activity, perProject := range rec.SpentTime {
				sum := 0.0
				for _, hours := range perProject {
					sum += hours
				}
				assert.InDelta(t, rec.ActivityTotals[activity], sum, 1e-9,
					"%s/%d/%s", supportType, userID, activity)
			}
		}
	}
}

func TestMatrixTotalsMatchBucketSums(t *testing.T) {
	rep := ingestAll(t, testAggregator(t, nil), mixedEntries())

	for userID, row := range rep.Matrix {
		sum := 0.0
		for _, hours := range row.Hours {
			sum += hours
		}
		assert.InDelta(t, row.Total, sum, 1e-9, "user %d", userID)
	}
}

func TestConservationOfHours(t *testing.T) {
	entries := mixedEntries()
	rep := ingestAll(t, testAggregator(t, nil), entries)

	ingested := 0.0
	for _, e := range entries {
		ingested += e.Hours
	}

	sheetTotal := 0.0
	for _, sheet := range rep.SupportTypes {
		for _, rec := range sheet {
			sheetTotal += rec.TotalSpentTime
		}
	}

	assert.InDelta(t, ingested, sheetTotal, 1e-9, "no hours created or destroyed")
	assert.InDelta(t, ingested, rep.TotalHours, 1e-9)
}

func TestAggregationIsOrderIndependent(t *testing.T) {
	entries := mixedEntries()
	want := ingestAll(t, testAggregator(t, nil), entries)

	shuffled := make([]redmine.TimeEntry, len(entries))
	copy(shuffled, entries)
	rng := rand.New(rand.NewSource(1))
	for trial := 0; trial < 5; trial++ {
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		got := ingestAll(t, testAggregator(t, nil), shuffled)

		assert.Equal(t, len(want.SupportTypes), len(got.SupportTypes))
		for supportType, sheet := range want.SupportTypes {
			for userID, rec := range sheet {
				gotRec := got.SupportTypes[supportType][userID]
				require.NotNil(t, gotRec)
				assert.InDelta(t, rec.TotalSpentTime, gotRec.TotalSpentTime, 1e-9)
				assert.Equal(t, rec.Issues, gotRec.Issues)
			}
		}
		for userID, row := range want.Matrix {
			assert.InDelta(t, row.Total, got.Matrix[userID].Total, 1e-9)
			assert.Equal(t, row.Hours, got.Matrix[userID].Hours)
		}
		assert.InDelta(t, want.Warnings.UnclassifiedHours, got.Warnings.UnclassifiedHours, 1e-9)
	}
}

func TestMostCommonProject(t *testing.T) {
	agg := testAggregator(t, nil)
	// 3h on project 2 (via subproject 4) + 1h more, 2h on project 3.
	require.NoError(t, agg.Ingest(entry(1, 1, 4, "Support", 3, intPtr(1))))
	require.NoError(t, agg.Ingest(entry(2, 1, 4, "Consultation", 1, intPtr(1))))
	require.NoError(t, agg.Ingest(entry(3, 1, 3, "Support", 2, intPtr(2))))
	rep := agg.Finalize()

	rec := rep.SupportTypes["Long-term"][1]
	id, ok := rec.MostCommonProject()
	require.True(t, ok)
	assert.Equal(t, 2, id)
}

func TestMostCommonProjectTieBreaksLowestID(t *testing.T) {
	rec := newUserRecord(redmine.User{ID: 1})
	rec.addHours("Support", 5, 2)
	rec.addHours("Support", 3, 2)

	id, ok := rec.MostCommonProject()
	require.True(t, ok)
	assert.Equal(t, 3, id)
}

func TestMostCommonProjectEmptyRecord(t *testing.T) {
	rec := newUserRecord(redmine.User{ID: 1})
	_, ok := rec.MostCommonProject()
	assert.False(t, ok)
}

func TestMatrixRowPreInitialized(t *testing.T) {
	rep := ingestAll(t, testAggregator(t, nil), mixedEntries()[:1])
	row := rep.Matrix[1]
	require.NotNil(t, row)
	assert.Len(t, row.Hours, len(MatrixBuckets), "every bucket key exists from first sight")
}
