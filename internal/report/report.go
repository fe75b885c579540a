// Package report writes the per-run audit artifacts: a match-rate summary,
// per-target-kind exception exports for manual review and a year-bucketed
// unmatched trend file. Columns are fixed and versioned so downstream
// tooling can diff runs. The generator never mutates match state.
package report

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/agnivade/levenshtein"
	"github.com/google/uuid"

	"github.com/arrowlimo/arrow-limo-sub003/internal/adapters/extract"
	"github.com/arrowlimo/arrow-limo-sub003/internal/application/reconcile"
	"github.com/arrowlimo/arrow-limo-sub003/internal/domain/record"
)

const dateLayout = "2006-01-02"

// Artifacts lists the files one Write call produced.
type Artifacts struct {
	Dir             string
	Summary         string
	Exceptions      []string
	UnmatchedByYear string
}

// Generator writes run artifacts under a base directory.
type Generator struct {
	baseDir string
	logger  *slog.Logger
}

func New(baseDir string, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{baseDir: baseDir, logger: logger}
}

// Write emits all artifacts for one run into a fresh subdirectory and
// returns their paths. Rows are emitted in sorted order so two runs over
// identical inputs produce byte-identical files.
func (g *Generator) Write(result *reconcile.Result) (*Artifacts, error) {
	runDir := filepath.Join(g.baseDir, fmt.Sprintf("%s-%s",
		time.Now().UTC().Format("20060102-150405"), uuid.NewString()[:8]))
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return nil, fmt.Errorf("create report directory: %w", err)
	}

	art := &Artifacts{Dir: runDir}

	summaryPath := filepath.Join(runDir, "summary.csv")
	if err := g.writeSummary(summaryPath, result); err != nil {
		return art, err
	}
	art.Summary = summaryPath

	exceptionPaths, err := g.writeExceptions(runDir, result)
	if err != nil {
		return art, err
	}
	art.Exceptions = exceptionPaths

	parsePath, err := g.writeParseExceptions(runDir, result)
	if err != nil {
		return art, err
	}
	if parsePath != "" {
		art.Exceptions = append(art.Exceptions, parsePath)
	}

	yearPath := filepath.Join(runDir, "unmatched_by_year.csv")
	if err := g.writeUnmatchedByYear(yearPath, result); err != nil {
		return art, err
	}
	art.UnmatchedByYear = yearPath

	g.logger.Info("Wrote run report",
		"dir", runDir,
		"exception_files", len(art.Exceptions),
	)
	return art, nil
}

// systemTally accumulates per-source-system counts across one run.
type systemTally struct {
	staged    int
	strict    int
	fuzzy     int
	unmatched int
	byTable   map[record.TargetTable]*tableTally
}

type tableTally struct {
	strict int
	fuzzy  int
}

// writeSummary emits the source-system by target-table match-rate table.
// The staged and unmatched columns are per source system and repeat on each
// of its rows; the strict and fuzzy columns count matches into that row's
// target table.
func (g *Generator) writeSummary(path string, result *reconcile.Result) error {
	tallies := make(map[record.SourceSystem]*systemTally)
	get := func(sys record.SourceSystem) *systemTally {
		t, ok := tallies[sys]
		if !ok {
			t = &systemTally{byTable: make(map[record.TargetTable]*tableTally)}
			tallies[sys] = t
		}
		return t
	}

	for _, out := range result.Outcomes {
		res := out.Result
		t := get(res.Source.SourceSystem)
		t.staged++
		switch res.Pass {
		case record.PassStrict:
			t.strict++
			g.tableFor(t, res.BestTarget).strict++
		case record.PassFuzzy:
			t.fuzzy++
			g.tableFor(t, res.BestTarget).fuzzy++
		default:
			if res.UnmatchedReason != "" {
				t.unmatched++
			}
		}
	}

	systems := make([]record.SourceSystem, 0, len(tallies))
	for sys := range tallies {
		systems = append(systems, sys)
	}
	sort.Slice(systems, func(i, j int) bool { return systems[i] < systems[j] })

	rows := [][]string{{
		"source_system", "target_table", "staged",
		"strict_matched", "fuzzy_matched",
		"unmatched_after_strict", "unmatched_after_fuzzy",
	}}
	for _, sys := range systems {
		t := tallies[sys]
		afterStrict := t.fuzzy + t.unmatched

		tables := make([]record.TargetTable, 0, len(t.byTable))
		for tbl := range t.byTable {
			tables = append(tables, tbl)
		}
		sort.Slice(tables, func(i, j int) bool { return tables[i] < tables[j] })

		if len(tables) == 0 {
			rows = append(rows, []string{
				string(sys), "(none)", strconv.Itoa(t.staged),
				"0", "0",
				strconv.Itoa(afterStrict), strconv.Itoa(t.unmatched),
			})
			continue
		}
		for _, tbl := range tables {
			tt := t.byTable[tbl]
			rows = append(rows, []string{
				string(sys), string(tbl), strconv.Itoa(t.staged),
				strconv.Itoa(tt.strict), strconv.Itoa(tt.fuzzy),
				strconv.Itoa(afterStrict), strconv.Itoa(t.unmatched),
			})
		}
	}

	return writeCSV(path, rows)
}

func (g *Generator) tableFor(t *systemTally, target *record.TargetRecord) *tableTally {
	tt, ok := t.byTable[target.TargetTable]
	if !ok {
		tt = &tableTally{}
		t.byTable[target.TargetTable] = tt
	}
	return tt
}

// exceptionRow decides whether an outcome belongs in the exception export
// and which target kind's file it goes to. Unmatched records without any
// candidate have no kind and are collected separately.
func exceptionGroup(out reconcile.SourceOutcome) (string, bool) {
	res := out.Result
	switch out.Outcome {
	case record.OutcomeSkippedAlreadyLinked, record.OutcomeSkippedBelowThreshold, record.OutcomeApplyFailed:
		if res.BestTarget != nil {
			return string(res.BestTarget.TargetTable), true
		}
		return "no_candidate", true
	case record.OutcomeUnmatched:
		if res.NearestMiss != nil {
			return string(res.NearestMiss.TargetTable), true
		}
		return "no_candidate", true
	}
	return "", false
}

// writeExceptions emits one exceptions_<target_table>.csv per target kind
// that produced reviewable records. Every skipped, unmatched or ambiguous
// record appears with its original fields so a reviewer can resolve it by
// hand.
func (g *Generator) writeExceptions(runDir string, result *reconcile.Result) ([]string, error) {
	header := []string{
		"source_system", "source_id", "origin_key", "occurred_on", "amount",
		"description", "status", "reason", "confidence",
		"nearest_target_id", "nearest_target_table", "nearest_target_date",
		"nearest_target_amount", "text_distance", "tied_target_ids",
	}

	groups := make(map[string][][]string)
	for _, out := range result.Outcomes {
		group, ok := exceptionGroup(out)
		if !ok {
			continue
		}
		groups[group] = append(groups[group], exportRow(out))
	}

	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	sort.Strings(names)

	paths := make([]string, 0, len(names))
	for _, name := range names {
		path := filepath.Join(runDir, fmt.Sprintf("exceptions_%s.csv", name))
		rows := append([][]string{header}, groups[name]...)
		if err := writeCSV(path, rows); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func exportRow(out reconcile.SourceOutcome) []string {
	res := out.Result
	src := res.Source

	nearest := res.BestTarget
	if nearest == nil {
		nearest = res.NearestMiss
	}

	var nearID, nearTable, nearDate, nearAmount, distance string
	if nearest != nil {
		nearID = strconv.FormatInt(nearest.ID, 10)
		nearTable = string(nearest.TargetTable)
		nearDate = nearest.OccurredOn.Format(dateLayout)
		nearAmount = nearest.Amount.StringFixed(2)
		distance = strconv.Itoa(levenshtein.ComputeDistance(
			src.NormalizedText, extract.NormalizeText(nearest.DescriptiveText)))
	}

	tied := make([]string, 0, len(res.TiedTargets))
	for _, id := range res.TiedTargets {
		tied = append(tied, strconv.FormatInt(id, 10))
	}

	return []string{
		string(src.SourceSystem),
		src.ID,
		src.OriginKey,
		src.OccurredOn.Format(dateLayout),
		src.Amount.StringFixed(2),
		src.RawText,
		string(out.Outcome),
		string(res.UnmatchedReason),
		strconv.Itoa(res.Confidence),
		nearID, nearTable, nearDate, nearAmount, distance,
		strings.Join(tied, "|"),
	}
}

// writeParseExceptions emits the rows the adapters dropped before matching,
// with their original field values, so a reviewer can key them in by hand.
// Nothing is written when no adapter skipped anything.
func (g *Generator) writeParseExceptions(runDir string, result *reconcile.Result) (string, error) {
	systems := make([]record.SourceSystem, 0, len(result.AdapterStats))
	for sys, st := range result.AdapterStats {
		if st != nil && len(st.SkippedRows) > 0 {
			systems = append(systems, sys)
		}
	}
	if len(systems) == 0 {
		return "", nil
	}
	sort.Slice(systems, func(i, j int) bool { return systems[i] < systems[j] })

	rows := [][]string{{
		"source_system", "line", "field", "reason",
		"date", "amount", "description", "origin_key",
	}}
	for _, sys := range systems {
		skipped := append([]extract.SkippedRow(nil), result.AdapterStats[sys].SkippedRows...)
		sort.Slice(skipped, func(i, j int) bool { return skipped[i].Line < skipped[j].Line })
		for _, sr := range skipped {
			rows = append(rows, []string{
				string(sys), strconv.Itoa(sr.Line), sr.Field, sr.Reason,
				sr.Date, sr.Amount, sr.Description, sr.OriginKey,
			})
		}
	}

	path := filepath.Join(runDir, "exceptions_parse_errors.csv")
	if err := writeCSV(path, rows); err != nil {
		return "", err
	}
	return path, nil
}

// writeUnmatchedByYear emits the unmatched trend file, one row per
// (year, source_system) with a count.
func (g *Generator) writeUnmatchedByYear(path string, result *reconcile.Result) error {
	type bucket struct {
		year int
		sys  record.SourceSystem
	}
	counts := make(map[bucket]int)
	for _, out := range result.Outcomes {
		res := out.Result
		if res.UnmatchedReason == "" {
			continue
		}
		counts[bucket{res.Source.OccurredOn.Year(), res.Source.SourceSystem}]++
	}

	keys := make([]bucket, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].year != keys[j].year {
			return keys[i].year < keys[j].year
		}
		return keys[i].sys < keys[j].sys
	})

	rows := [][]string{{"year", "source_system", "unmatched"}}
	for _, k := range keys {
		rows = append(rows, []string{
			strconv.Itoa(k.year), string(k.sys), strconv.Itoa(counts[k]),
		})
	}
	return writeCSV(path, rows)
}

func writeCSV(path string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush %s: %w", filepath.Base(path), err)
	}
	return f.Close()
}
