package calculator

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"retail-segments/pkg/database"
	"retail-segments/pkg/models"
	"retail-segments/pkg/segmentation"

	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
)

const defaultTable = "online_retail"

// Deps regroupe les collaborateurs optionnels d'une exécution.
type Deps struct {
	Cache     *segmentation.Cache     // nil → moteur sans cache partagé
	Snapshots *database.SnapshotStore // nil → pas d'enregistrement
	Logger    *slog.Logger            // nil → slog.Default()
	Progress  io.Writer               // nil → stderr si cfg.Verbose, sinon rien
}

// Run charge les transactions filtrées, calcule RFM, segments et cohortes,
// puis enregistre le rapport si cfg.Snapshot est actif.
func Run(ctx context.Context, db *sql.DB, dialect database.Dialect, cfg models.Config, deps Deps) (models.Report, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cache := deps.Cache
	if cache == nil {
		cache = segmentation.NewCache(segmentation.New(logger))
	}

	filter, err := buildFilter(cfg)
	if err != nil {
		return models.Report{}, err
	}
	metric, err := segmentation.ParseCohortMetric(string(cfg.CohortMetric))
	if err != nil {
		return models.Report{}, err
	}
	table := cfg.Table
	if table == "" {
		table = defaultTable
	}
	if cfg.Snapshot && deps.Snapshots == nil {
		return models.Report{}, fmt.Errorf("snapshot requested without a snapshot store")
	}

	stages := 4
	if cfg.Snapshot {
		stages++
	}
	bar := newBar(stages, cfg.Verbose, deps.Progress)
	step := func(desc string) {
		bar.Describe(desc)
		_ = bar.Add(1)
	}

	started := time.Now()
	txns, err := database.LoadTransactions(ctx, db, dialect, table, filter)
	if err != nil {
		return models.Report{}, fmt.Errorf("load transactions: %w", err)
	}
	step("load")
	logger.Info("transactions loaded", "rows", len(txns), "table", table,
		"start", formatBound(filter.Start), "end", formatBound(filter.End),
		"countries", len(filter.Countries), "categories", len(filter.Categories))
	if len(txns) == 0 {
		return models.Report{}, fmt.Errorf("no transactions match the filter: %w", segmentation.ErrEmptyInput)
	}

	report := models.Report{
		RunID:            uuid.NewString(),
		Fingerprint:      segmentation.Fingerprint(txns),
		TransactionCount: len(txns),
	}

	report.RFM, err = cache.RFMFor(report.Fingerprint, txns)
	if err != nil {
		return models.Report{}, fmt.Errorf("compute rfm: %w", err)
	}
	step("rfm")

	report.Segments = segmentation.SummarizeSegments(txns, report.RFM)
	step("segments")

	report.Cohorts, err = cache.CohortsFor(report.Fingerprint, txns, metric)
	if err != nil {
		return models.Report{}, fmt.Errorf("compute cohorts: %w", err)
	}
	step("cohorts")
	report.GeneratedAt = time.Now().UTC()

	if cfg.Snapshot {
		if _, err := deps.Snapshots.SaveReport(ctx, report); err != nil {
			return models.Report{}, fmt.Errorf("save snapshot: %w", err)
		}
		step("snapshot")
	}
	_ = bar.Finish()

	logger.Info("segmentation done",
		"run_id", report.RunID,
		"customers", len(report.RFM.Customers),
		"cohorts", len(report.Cohorts.Rows),
		"fallbacks", len(report.RFM.Fallbacks),
		"elapsed", time.Since(started).Round(time.Millisecond),
	)
	return report, nil
}

func newBar(stages int, verbose bool, w io.Writer) *progressbar.ProgressBar {
	if w == nil {
		w = io.Discard
		if verbose {
			w = os.Stderr
		}
	}
	return progressbar.NewOptions(stages,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription("segmentation"),
		progressbar.OptionShowCount(),
	)
}

// buildFilter convertit les mois MMYYYY en bornes [début, fin+1 mois).
func buildFilter(cfg models.Config) (models.Filter, error) {
	f := models.Filter{
		Countries:  cfg.Countries,
		Categories: cfg.Categories,
	}
	if cfg.StartMonthInclusive != "" {
		start, err := parseMonth(cfg.StartMonthInclusive)
		if err != nil {
			return models.Filter{}, fmt.Errorf("start_month: %w", err)
		}
		f.Start = start
	}
	if cfg.EndMonthInclusive != "" {
		end, err := parseMonth(cfg.EndMonthInclusive)
		if err != nil {
			return models.Filter{}, fmt.Errorf("end_month: %w", err)
		}
		if !f.Start.IsZero() && end.Before(f.Start) {
			return models.Filter{}, fmt.Errorf("end_month < start_month")
		}
		f.End = end.AddDate(0, 1, 0)
	}
	return f, nil
}

// parseMonth("MMYYYY") -> 1er jour du mois UTC
func parseMonth(mmyyyy string) (time.Time, error) {
	if len(mmyyyy) != 6 {
		return time.Time{}, fmt.Errorf("format attendu MMYYYY (ex: 012011)")
	}
	for _, c := range mmyyyy {
		if c < '0' || c > '9' {
			return time.Time{}, fmt.Errorf("format attendu MMYYYY (ex: 012011)")
		}
	}
	month := int(mmyyyy[0]-'0')*10 + int(mmyyyy[1]-'0')
	year := int(mmyyyy[2]-'0')*1000 + int(mmyyyy[3]-'0')*100 + int(mmyyyy[4]-'0')*10 + int(mmyyyy[5]-'0')
	if month < 1 || month > 12 {
		return time.Time{}, fmt.Errorf("mois invalide")
	}
	return time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC), nil
}

func formatBound(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("2006-01-02")
}
