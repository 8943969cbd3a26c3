// Package xlsx renders a finalized spent-time report as an Excel workbook:
// one sheet per support type, the cross-category matrix sheet, and a run
// info sheet. Percentages are written as spreadsheet formulas so the
// numbers stay live when hours are edited by hand afterwards.
package xlsx

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/NBISweden/timereport/pkg/report"
)

// Fill colors, matching the office theme the report consumers expect.
const (
	colorGreen  = "92D050" // Accent6
	colorYellow = "FFD966" // Accent4 60%
	colorRed    = "F8CBAD" // Accent2 40%
)

// infoSheet is always the first sheet in the workbook.
const infoSheet = "Report info"

// matrixSheet holds the cross-category percentage matrix.
const matrixSheet = "Bengt's matrix"

// sheetHeaders is the header row of every support-type sheet. The first 16
// columns after Expert are activity hour columns (B through Q); everything
// beyond is derived by formula.
var sheetHeaders = []string{
	"Expert",
	"Internal consultation",
	"Administration",
	"Professional development",
	"Support",
	"Teaching",
	"Development",
	"Consultation",
	"Outreach",
	"Core facility support",
	"Implementation",
	"Design",
	"Internal NBIS",
	"Consultation (DM)",
	"Support (DM)",
	"NBIS management",
	"Absence",
	"Total",
	"Total without absence",
	"Internal consultation (%)",
	"Administration (%)",
	"Professional development (%)",
	"Support (%)",
	"Teaching (%)",
	"Development (%)",
	"Consultation (%)",
	"Outreach (%)",
	"Design (%)",
	"Internal NBIS (%)",
	"Absence (%)",
	"Output",
	"",
	"",
	`"Support"`,
	`"Training"`,
	"Pipelines and tools",
	"ELIXIR",
	"Övrigt",
	"Centrala funktioner",
	"Summa",
	"Support (%)",
	"Training(%)",
	"Pipelines (%)",
	"ELIXIR (%)",
	"Övrigt(%)",
	"Centrala funktioner (%)",
	"",
	"Most common Redmine project",
	"Issues",
}

// activityNameMap maps sheet header names to Redmine activity names where
// the report header differs from the Redmine spelling.
var activityNameMap = map[string]string{
	"Teaching":                 "Training",
	"Professional development": "Professional Development",
	"Absence":                  "Absence (Vacation/VAB/Other)",
	"Core facility support":    "Core Facility Report",
	"NBIS management":          "NBIS Management",
}

// Metadata describes the run, written to the info sheet.
type Metadata struct {
	StartDate   time.Time
	EndDate     time.Time
	Group       string
	Lexicon     string
	GeneratedAt time.Time
	Version     string
}

// styles holds the style ids registered on one workbook.
type styles struct {
	bold          int
	percent       int
	percentGreen  int
	percentYellow int
	percentRed    int
	yellow        int
	red           int
}

// Write renders the report to an xlsx workbook at path. The hierarchy is
// consulted for project display names.
func Write(path string, rep *report.Report, hierarchy *report.Hierarchy, meta Metadata) error {
	f := excelize.NewFile()
	defer f.Close()

	st, err := newStyles(f)
	if err != nil {
		return err
	}

	// The default Sheet1 becomes the info sheet.
	if err := f.SetSheetName("Sheet1", infoSheet); err != nil {
		return fmt.Errorf("creating info sheet: %w", err)
	}
	if err := writeInfoSheet(f, st, rep, meta); err != nil {
		return err
	}

	for i, supportType := range sortedSupportTypes(rep) {
		if err := writeSupportSheet(f, st, supportType, rep.SupportTypes[supportType], hierarchy); err != nil {
			return fmt.Errorf("writing sheet %q: %w", supportType, err)
		}
		// The first support-type sheet is active when the file opens.
		if i == 0 {
			idx, err := f.GetSheetIndex(supportType)
			if err != nil {
				return err
			}
			f.SetActiveSheet(idx)
		}
	}

	if err := writeMatrixSheet(f, st, rep); err != nil {
		return fmt.Errorf("writing matrix sheet: %w", err)
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("saving workbook: %w", err)
	}
	return nil
}

func newStyles(f *excelize.File) (*styles, error) {
	st := &styles{}

	var err error
	register := func(id *int, style *excelize.Style) {
		if err != nil {
			return
		}
		*id, err = f.NewStyle(style)
	}

	fill := func(color string) excelize.Fill {
		return excelize.Fill{Type: "pattern", Color: []string{color}, Pattern: 1}
	}
	percentFmt := "0%"

	register(&st.bold, &excelize.Style{Font: &excelize.Font{Bold: true}})
	register(&st.percent, &excelize.Style{CustomNumFmt: &percentFmt})
	register(&st.percentGreen, &excelize.Style{CustomNumFmt: &percentFmt, Fill: fill(colorGreen)})
	register(&st.percentYellow, &excelize.Style{CustomNumFmt: &percentFmt, Fill: fill(colorYellow)})
	register(&st.percentRed, &excelize.Style{CustomNumFmt: &percentFmt, Fill: fill(colorRed)})
	register(&st.yellow, &excelize.Style{Fill: fill(colorYellow)})
	register(&st.red, &excelize.Style{Fill: fill(colorRed)})

	if err != nil {
		return nil, fmt.Errorf("registering styles: %w", err)
	}
	return st, nil
}

func sortedSupportTypes(rep *report.Report) []string {
	types := make([]string, 0, len(rep.SupportTypes))
	for st := range rep.SupportTypes {
		types = append(types, st)
	}
	sort.Strings(types)
	return types
}

// cell returns an A1-style reference for 1-based column and row.
func cell(col, row int) string {
	name, _ := excelize.CoordinatesToCellName(col, row)
	return name
}

// col returns the column name for a 1-based column number.
func col(n int) string {
	name, _ := excelize.ColumnNumberToName(n)
	return name
}

func writeInfoSheet(f *excelize.File, st *styles, rep *report.Report, meta Metadata) error {
	rows := [][2]string{
		{"Generated", meta.GeneratedAt.Format(time.RFC3339)},
		{"Tool version", meta.Version},
		{"Start date", meta.StartDate.Format("2006-01-02")},
		{"End date", meta.EndDate.Format("2006-01-02")},
		{"Group", orDash(meta.Group)},
		{"Lexicon", meta.Lexicon},
		{"Total hours", strconv.FormatFloat(rep.TotalHours, 'f', -1, 64)},
		{"Hours without issue id", strconv.FormatFloat(rep.Warnings.HoursWithoutIssue, 'f', -1, 64)},
		{"Entries without issue id", strconv.Itoa(len(rep.Warnings.WithoutIssue))},
		{"Unclassified hours", strconv.FormatFloat(rep.Warnings.UnclassifiedHours, 'f', -1, 64)},
		{"Unclassified entries", strconv.Itoa(len(rep.Warnings.Unclassified))},
	}

	for i, kv := range rows {
		if err := f.SetCellValue(infoSheet, cell(1, i+1), kv[0]); err != nil {
			return err
		}
		if err := f.SetCellStr(infoSheet, cell(2, i+1), kv[1]); err != nil {
			return err
		}
	}
	if err := f.SetCellStyle(infoSheet, cell(1, 1), cell(1, len(rows)), st.bold); err != nil {
		return err
	}
	return f.SetColWidth(infoSheet, "A", "B", 26)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// sortedRecords returns the sheet's user records sorted by expert first
// name, then last name, for deterministic row order.
func sortedRecords(sheet map[int]*report.UserRecord) []*report.UserRecord {
	records := make([]*report.UserRecord, 0, len(sheet))
	for _, rec := range sheet {
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].FirstName != records[j].FirstName {
			return records[i].FirstName < records[j].FirstName
		}
		return records[i].LastName < records[j].LastName
	})
	return records
}

func writeSupportSheet(f *excelize.File, st *styles, name string, sheet map[int]*report.UserRecord, hierarchy *report.Hierarchy) error {
	if _, err := f.NewSheet(name); err != nil {
		return err
	}
	if err := f.SetPanes(name, &excelize.Panes{
		Freeze: true, XSplit: 1, YSplit: 1, TopLeftCell: "B2", ActivePane: "bottomRight",
	}); err != nil {
		return err
	}

	w := &sheetWriter{f: f, sheet: name}

	for i, header := range sheetHeaders {
		w.setValue(cell(i+1, 1), header)
	}
	w.style(cell(1, 1), cell(len(sheetHeaders), 1), st.bold)
	if w.err != nil {
		return w.err
	}
	if err := fitColumns(f, name, sheetHeaders, longestName(sheet)); err != nil {
		return err
	}

	activities := sheetHeaders[1:17]
	records := sortedRecords(sheet)

	row := 1
	for _, rec := range records {
		row++
		r := strconv.Itoa(row)

		w.setValue(cell(1, row), rec.FirstName+" "+rec.LastName)

		// Activity hour columns B..Q. Empty cell when the expert has no
		// hours for the activity, matching the hand-maintained sheets.
		for i, activity := range activities {
			redmineName := activity
			if mapped, ok := activityNameMap[activity]; ok {
				redmineName = mapped
			}
			if hours, ok := rec.ActivityTotals[redmineName]; ok {
				w.setValue(cell(2+i, row), hours)
			}
		}

		// R: total, S: total without the absence column Q.
		w.setFormula(cell(18, row), "SUM(B"+r+":Q"+r+")")
		w.setFormula(cell(19, row), "SUM(B"+r+":P"+r+")")

		// T..AD: per-activity percentages of the total.
		for i, c := range []string{"B", "C", "D", "E", "F", "G", "H", "I", "L", "M"} {
			w.setFormula(cell(20+i, row), "IF(S"+r+"=0, 0, "+c+r+"/S"+r+")")
			w.styleCell(cell(20+i, row), st.percent)
		}
		w.setFormula(cell(30, row), "IF(S"+r+"=0, 0, Q"+r+"/R"+r+")")
		w.styleCell(cell(30, row), st.percent)

		// AE: output share, the green headline number.
		w.setFormula(cell(31, row),
			"IF(S"+r+"=0, 0, (B"+r+"+E"+r+"+F"+r+"+G"+r+"+H"+r+"+I"+r+"+N"+r+"+O"+r+"+P"+r+")/S"+r+")")
		w.styleCell(cell(31, row), st.percentGreen)

		// AH..AN: the condensed summary block.
		w.setFormula(cell(34, row), "E"+r+"+H"+r)
		w.setFormula(cell(35, row), "F"+r+"+I"+r)
		w.setFormula(cell(36, row), "G"+r)
		for c := 37; c <= 39; c++ {
			w.setString(cell(c, row), "")
		}
		w.setFormula(cell(40, row), "AH"+r+"+AI"+r+"+AJ"+r+"+AK"+r+"+AL"+r+"+AM"+r)
		for c := 34; c <= 40; c++ {
			w.styleCell(cell(c, row), st.yellow)
		}

		// AO..AT: summary block percentages.
		for i, c := range []string{"AH", "AI", "AJ", "AK", "AL", "AM"} {
			w.setFormula(cell(41+i, row), "IF(AN"+r+"=0, 0, "+c+r+"/AN"+r+")")
			w.styleCell(cell(41+i, row), st.percentYellow)
		}

		// AV: the top-level project with the most accumulated hours.
		if projectID, ok := rec.MostCommonProject(); ok {
			w.setValue(cell(48, row), hierarchy.Name(projectID))
		}

		// AW: every issue the expert logged time on.
		w.setValue(cell(49, row), issueList(rec))
	}
	if w.err != nil {
		return w.err
	}

	return writeSummaryRows(w, st, row)
}

// writeSummaryRows appends the red Average and Total rows under the data.
func writeSummaryRows(w *sheetWriter, st *styles, lastDataRow int) error {
	avgRow := lastDataRow + 1
	w.setValue(cell(1, avgRow), "Average")
	for c := 20; c <= 31; c++ {
		w.setFormula(cell(c, avgRow),
			fmt.Sprintf("AVERAGE(%s2:%s%d)", col(c), col(c), lastDataRow))
	}
	w.style(cell(1, avgRow), cell(len(sheetHeaders), avgRow), st.red)
	for c := 20; c <= 31; c++ {
		w.styleCell(cell(c, avgRow), st.percentRed)
	}

	totalRow := avgRow + 1
	w.setValue(cell(1, totalRow), "Total")
	// Activity columns B..Q plus the two total columns R and S.
	for c := 2; c <= 19; c++ {
		w.setFormula(cell(c, totalRow),
			fmt.Sprintf("SUM(%s2:%s%d)", col(c), col(c), lastDataRow))
	}
	w.style(cell(1, totalRow), cell(len(sheetHeaders), totalRow), st.red)
	return w.err
}

func writeMatrixSheet(f *excelize.File, st *styles, rep *report.Report) error {
	if _, err := f.NewSheet(matrixSheet); err != nil {
		return err
	}
	if err := f.SetPanes(matrixSheet, &excelize.Panes{
		Freeze: true, XSplit: 1, YSplit: 1, TopLeftCell: "B2", ActivePane: "bottomRight",
	}); err != nil {
		return err
	}

	buckets := report.MatrixBuckets
	headers := make([]string, 0, 2*len(buckets)+3)
	headers = append(headers, "Expert")
	for _, b := range buckets {
		headers = append(headers, string(b))
	}
	headers = append(headers, "Summa")
	for _, b := range buckets {
		headers = append(headers, string(b)+" (%)")
	}
	headers = append(headers, "Summa (%)")

	w := &sheetWriter{f: f, sheet: matrixSheet}

	for i, header := range headers {
		w.setValue(cell(i+1, 1), header)
	}
	w.style(cell(1, 1), cell(len(headers), 1), st.bold)
	if w.err != nil {
		return w.err
	}

	rows := make([]*report.MatrixRow, 0, len(rep.Matrix))
	longest := 0
	for _, mr := range rep.Matrix {
		rows = append(rows, mr)
		if n := len(mr.User.FullName()); n > longest {
			longest = n
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].User.FullName() < rows[j].User.FullName()
	})
	if err := fitColumns(f, matrixSheet, headers, longest); err != nil {
		return err
	}

	sumCol := 2 + len(buckets)            // P: hours total
	lastPctCol := sumCol + len(buckets)   // AD: last percentage column
	totalPctCol := lastPctCol + 1         // AE: percentage total

	row := 1
	for _, mr := range rows {
		row++
		r := strconv.Itoa(row)

		w.setValue(cell(1, row), mr.User.FullName())
		for i, b := range buckets {
			w.setValue(cell(2+i, row), mr.Hours[b])
		}
		w.setFormula(cell(sumCol, row),
			fmt.Sprintf("SUM(B%s:%s%s)", r, col(sumCol-1), r))

		for i := range buckets {
			hoursCell := col(2+i) + r
			w.setFormula(cell(sumCol+1+i, row),
				fmt.Sprintf("IF(%s=0, 0, %s/%s%s)", hoursCell, hoursCell, col(sumCol), r))
			w.styleCell(cell(sumCol+1+i, row), st.percent)
		}
		w.setFormula(cell(totalPctCol, row),
			fmt.Sprintf("SUM(%s%s:%s%s)", col(sumCol+1), r, col(lastPctCol), r))
		w.styleCell(cell(totalPctCol, row), st.percent)
	}

	return w.err
}

// fitColumns widens each column to its header (minimum 8 characters) and
// the name column to the longest expert name.
func fitColumns(f *excelize.File, sheet string, headers []string, longestName int) error {
	for i, header := range headers {
		width := len(header)
		if width < 8 {
			width = 8
		}
		name := col(i + 1)
		if err := f.SetColWidth(sheet, name, name, float64(width+1)); err != nil {
			return err
		}
	}
	if longestName > 0 {
		return f.SetColWidth(sheet, "A", "A", float64(longestName+1))
	}
	return nil
}

func longestName(sheet map[int]*report.UserRecord) int {
	longest := 0
	for _, rec := range sheet {
		if n := len(rec.FirstName) + 1 + len(rec.LastName); n > longest {
			longest = n
		}
	}
	return longest
}

func issueList(rec *report.UserRecord) string {
	issues := make([]int, 0, len(rec.Issues))
	for id := range rec.Issues {
		issues = append(issues, id)
	}
	sort.Ints(issues)

	parts := make([]string, len(issues))
	for i, id := range issues {
		parts[i] = strconv.Itoa(id)
	}
	return strings.Join(parts, ",")
}

// sheetWriter wraps cell writes on one sheet, keeping the first error so
// the row loops stay readable.
type sheetWriter struct {
	f     *excelize.File
	sheet string
	err   error
}

func (w *sheetWriter) setValue(cellRef string, value interface{}) {
	if w.err == nil {
		w.err = w.f.SetCellValue(w.sheet, cellRef, value)
	}
}

func (w *sheetWriter) setString(cellRef, value string) {
	if w.err == nil {
		w.err = w.f.SetCellStr(w.sheet, cellRef, value)
	}
}

func (w *sheetWriter) setFormula(cellRef, formula string) {
	if w.err == nil {
		w.err = w.f.SetCellFormula(w.sheet, cellRef, formula)
	}
}

func (w *sheetWriter) style(first, last string, style int) {
	if w.err == nil {
		w.err = w.f.SetCellStyle(w.sheet, first, last, style)
	}
}

func (w *sheetWriter) styleCell(cellRef string, style int) {
	w.style(cellRef, cellRef, style)
}
