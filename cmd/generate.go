// Package cmd provides CLI commands for the timereport tool.
package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/NBISweden/timereport/config"
	"github.com/NBISweden/timereport/credentials"
	"github.com/NBISweden/timereport/pkg/buildinfo"
	"github.com/NBISweden/timereport/pkg/logging"
	"github.com/NBISweden/timereport/pkg/redmine"
	"github.com/NBISweden/timereport/pkg/report"
	"github.com/NBISweden/timereport/pkg/xlsx"
)

const dateLayout = "2006-01-02"

// Fetcher is the subset of the Redmine client the generate command needs.
type Fetcher interface {
	FetchProjects(ctx context.Context) (map[int]redmine.Project, error)
	FetchUsers(ctx context.Context) (map[int]redmine.User, error)
	ResolveGroupMembers(ctx context.Context, groupName string) (map[int]struct{}, error)
	ForEachTimeEntry(ctx context.Context, from, to time.Time, fn func(redmine.TimeEntry) error) error
	EntryURL(entryID int) string
}

// GenerateCommandDeps holds the dependencies for the generate command.
type GenerateCommandDeps struct {
	LoadConfig func() (*config.Config, error)
	Logger     logging.Logger

	// Overrides for testing.
	NewFetcher    func(cfg *config.Config, apiKey string, log logging.Logger) Fetcher
	ResolveAPIKey func(cfg *config.Config) (string, string, error)
	WriteWorkbook func(path string, rep *report.Report, hierarchy *report.Hierarchy, meta xlsx.Metadata) error
}

// generateOptions holds the flag values for one invocation.
type generateOptions struct {
	startDate         string
	endDate           string
	year              int
	group             string
	output            string
	lexicon           string
	excludeTimelogBot bool
}

// NewGenerateCommand creates the generate command.
func NewGenerateCommand(deps *GenerateCommandDeps) *cobra.Command {
	if deps == nil {
		deps = &GenerateCommandDeps{}
	}
	fillGenerateDefaults(deps)

	opts := &generateOptions{}

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a spent-time report workbook",
		Long: `Fetch time entries from Redmine and render them as an Excel workbook.

The workbook contains one sheet per support type, a cross-category matrix
sheet, and a run info sheet. Entries that cannot be classified, and entries
without an issue id, are reported as warnings on stderr and counted on the
info sheet.

The date range is inclusive. Use --year as a shortcut for the reporting
year: --year 2026 covers 2025-12-01 through 2026-11-30.

Examples:
  timereport generate -y 2026 -o report.xlsx
  timereport generate -s 2026-01-01 -e 2026-06-30 -o h1.xlsx
  timereport generate -y 2026 -g "NBIS Staff" -o report.xlsx`,
		RunE: func(cmd *cobra.Command, args []string) error {
			from, to, err := resolveDateRange(opts)
			if err != nil {
				return err
			}
			return runGenerate(cmd.Context(), deps, opts, from, to)
		},
	}

	cmd.Flags().StringVarP(&opts.startDate, "start-date", "s", "", "first day of the report period (YYYY-MM-DD)")
	cmd.Flags().StringVarP(&opts.endDate, "end-date", "e", "", "last day of the report period (YYYY-MM-DD)")
	cmd.Flags().IntVarP(&opts.year, "year", "y", 0, "reporting year shortcut: (year-1)-12-01 through year-11-30")
	cmd.Flags().StringVarP(&opts.group, "group", "g", "", "restrict the report to members of this Redmine group")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "output xlsx file path")
	cmd.Flags().StringVar(&opts.lexicon, "lexicon", report.DefaultLexicon, "support type lexicon")
	cmd.Flags().BoolVar(&opts.excludeTimelogBot, "exclude-timelogbot", false, "skip entries logged by the timelog import bot")
	_ = cmd.MarkFlagRequired("output")

	return cmd
}

func fillGenerateDefaults(deps *GenerateCommandDeps) {
	if deps.LoadConfig == nil {
		deps.LoadConfig = config.LoadConfig
	}
	if deps.NewFetcher == nil {
		deps.NewFetcher = func(cfg *config.Config, apiKey string, log logging.Logger) Fetcher {
			return redmine.NewClient(redmine.Options{
				BaseURL:  cfg.URL,
				APIKey:   apiKey,
				PageSize: cfg.PageSize,
				Timeout:  cfg.Timeout,
				Logger:   log,
			})
		}
	}
	if deps.ResolveAPIKey == nil {
		deps.ResolveAPIKey = func(cfg *config.Config) (string, string, error) {
			return credentials.Resolve(
				credentials.EnvStore{},
				credentials.NewKeyringStore(),
				credentials.StaticStore{Key: cfg.APIKey},
			)
		}
	}
	if deps.WriteWorkbook == nil {
		deps.WriteWorkbook = xlsx.Write
	}
}

// resolveDateRange turns the date flags into an inclusive [from, to] range.
// --year is exclusive with --start-date/--end-date; explicit dates require
// both ends.
func resolveDateRange(opts *generateOptions) (time.Time, time.Time, error) {
	var zero time.Time

	if opts.year != 0 {
		if opts.startDate != "" || opts.endDate != "" {
			return zero, zero, fmt.Errorf("--year cannot be combined with --start-date or --end-date")
		}
		from := time.Date(opts.year-1, time.December, 1, 0, 0, 0, 0, time.UTC)
		to := time.Date(opts.year, time.November, 30, 0, 0, 0, 0, time.UTC)
		return from, to, nil
	}

	if opts.startDate == "" || opts.endDate == "" {
		return zero, zero, fmt.Errorf("either --year or both --start-date and --end-date are required")
	}
	from, err := time.Parse(dateLayout, opts.startDate)
	if err != nil {
		return zero, zero, fmt.Errorf("invalid start date %q: %w", opts.startDate, err)
	}
	to, err := time.Parse(dateLayout, opts.endDate)
	if err != nil {
		return zero, zero, fmt.Errorf("invalid end date %q: %w", opts.endDate, err)
	}
	if to.Before(from) {
		return zero, zero, fmt.Errorf("end date %s is before start date %s", opts.endDate, opts.startDate)
	}
	return from, to, nil
}

func runGenerate(ctx context.Context, deps *GenerateCommandDeps, opts *generateOptions, from, to time.Time) error {
	cfg, err := deps.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.URL == "" {
		return fmt.Errorf("no Redmine URL configured (run 'timereport config set url https://...' or set TIMEREPORT_URL)")
	}

	log := deps.Logger
	if log == nil {
		log = logging.NewNopLogger()
	}

	lexicon, err := report.LexiconByName(opts.lexicon)
	if err != nil {
		return err
	}

	apiKey, source, err := deps.ResolveAPIKey(cfg)
	if err != nil {
		return fmt.Errorf("resolving API key: %w (run 'timereport auth login')", err)
	}
	log.Debug("resolved API key", logging.F("source", source))

	fetcher := deps.NewFetcher(cfg, apiKey, log)

	log.Info("fetching projects and users",
		logging.F("url", cfg.URL),
		logging.F("from", from.Format(dateLayout)),
		logging.F("to", to.Format(dateLayout)))

	projects, err := fetcher.FetchProjects(ctx)
	if err != nil {
		return fmt.Errorf("fetching projects: %w", err)
	}
	users, err := fetcher.FetchUsers(ctx)
	if err != nil {
		return fmt.Errorf("fetching users: %w", err)
	}

	var groupMembers map[int]struct{}
	if opts.group != "" {
		groupMembers, err = fetcher.ResolveGroupMembers(ctx, opts.group)
		if err != nil {
			return fmt.Errorf("resolving group %q: %w", opts.group, err)
		}
		log.Info("restricting to group", logging.F("group", opts.group), logging.F("members", len(groupMembers)))
	}

	hierarchy := report.NewHierarchy(projects)
	agg, err := report.NewAggregator(report.AggregatorConfig{
		Hierarchy:         hierarchy,
		Lexicon:           lexicon,
		Users:             users,
		GroupMembers:      groupMembers,
		ExcludeTimelogBot: opts.excludeTimelogBot,
		EntryURL:          fetcher.EntryURL,
		Logger:            log,
	})
	if err != nil {
		return err
	}

	if err := fetcher.ForEachTimeEntry(ctx, from, to, agg.Ingest); err != nil {
		return fmt.Errorf("fetching time entries: %w", err)
	}
	rep := agg.Finalize()

	meta := xlsx.Metadata{
		StartDate:   from,
		EndDate:     to,
		Group:       opts.group,
		Lexicon:     opts.lexicon,
		GeneratedAt: time.Now(),
		Version:     buildinfo.Version,
	}
	if err := deps.WriteWorkbook(opts.output, rep, hierarchy, meta); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}

	log.Info("report written",
		logging.F("path", opts.output),
		logging.F("total_hours", rep.TotalHours),
		logging.F("unclassified_hours", rep.Warnings.UnclassifiedHours),
		logging.F("hours_without_issue", rep.Warnings.HoursWithoutIssue))

	printWarnings(rep)
	return nil
}

// printWarnings writes the per-entry warning lists to stdout, mirroring the
// counts on the workbook's info sheet.
func printWarnings(rep *report.Report) {
	if len(rep.Warnings.WithoutIssue) > 0 {
		fmt.Printf("\n%d entries (%.2f hours) have no issue id:\n",
			len(rep.Warnings.WithoutIssue), rep.Warnings.HoursWithoutIssue)
		for _, ref := range rep.Warnings.WithoutIssue {
			fmt.Printf("  %s  %s  %.2fh  %s\n", ref.UserName, ref.ProjectName, ref.Hours, ref.URL)
		}
	}
	if len(rep.Warnings.Unclassified) > 0 {
		fmt.Printf("\n%d entries (%.2f hours) could not be classified:\n",
			len(rep.Warnings.Unclassified), rep.Warnings.UnclassifiedHours)
		for _, ref := range rep.Warnings.Unclassified {
			fmt.Printf("  %s  %s  %.2fh  %s\n", ref.UserName, ref.ProjectName, ref.Hours, ref.URL)
		}
	}
}
