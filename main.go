package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"retail-segments/pkg/calculator"
	"retail-segments/pkg/config"
	"retail-segments/pkg/database"
	"retail-segments/pkg/logging"
	"retail-segments/pkg/models"
	"retail-segments/pkg/scheduler"
	"retail-segments/pkg/segmentation"
)

func main() {
	cfg := config.Load()

	// Flags : valeurs par défaut issues du YAML / de l'environnement
	dsn := flag.String("dsn", cfg.Database.DSN, "DSN source (mariadb://, mysql://, postgres://, sqlite://)")
	table := flag.String("table", cfg.Database.Table, "Table des lignes de facture")
	startMonth := flag.String("start_month", cfg.Filter.StartMonth, "Mois de début (MMYYYY), optionnel")
	endMonth := flag.String("end_month", cfg.Filter.EndMonth, "Mois de fin inclus (MMYYYY), optionnel")
	countries := flag.String("countries", strings.Join(cfg.Filter.Countries, ","), "Pays retenus, séparés par des virgules")
	categories := flag.String("categories", strings.Join(cfg.Filter.Categories, ","), "Catégories retenues, séparées par des virgules")
	cohortMetric := flag.String("cohort_metric", cfg.Cohort.Metric, "retention | revenue | frequency")
	snapshotDSN := flag.String("snapshot_dsn", cfg.Snapshot.DSN, "DSN du stockage des snapshots (vide → désactivé)")
	schedule := flag.String("schedule", cfg.Schedule.Cron, "Expression cron pour relancer le calcul (vide → une seule exécution)")
	logLevel := flag.String("log_level", cfg.Logging.Level, "debug | info | warn | error")
	verbose := flag.Bool("v", false, "Affiche la progression")
	flag.Parse()

	logger := logging.New(*logLevel)
	slog.SetDefault(logger)

	if *dsn == "" {
		fmt.Fprintln(os.Stderr, "Usage: retail-segments --dsn ... [--start_month MMYYYY --end_month MMYYYY] [--cohort_metric retention]")
		os.Exit(2)
	}

	db, dialect, err := database.Open(*dsn)
	if err != nil {
		logger.Error("open db", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	logger.Info("connected", "dialect", dialect, "dsn", database.Redact(*dsn))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps := calculator.Deps{
		Cache:  segmentation.NewCache(segmentation.New(logger)),
		Logger: logger,
	}
	if *snapshotDSN != "" {
		store, closeStore, err := openSnapshots(ctx, *snapshotDSN, *dsn, db, dialect)
		if err != nil {
			logger.Error("open snapshot store", "error", err)
			os.Exit(1)
		}
		defer closeStore()
		deps.Snapshots = store
	}

	runCfg := models.Config{
		StartMonthInclusive: *startMonth,
		EndMonthInclusive:   *endMonth,
		Countries:           config.SplitList(*countries),
		Categories:          config.SplitList(*categories),
		CohortMetric:        models.CohortMetric(*cohortMetric),
		Table:               *table,
		Snapshot:            deps.Snapshots != nil,
		Verbose:             *verbose,
	}

	runOnce := func(ctx context.Context) (models.Report, error) {
		report, err := calculator.Run(ctx, db, dialect, runCfg, deps)
		if err != nil {
			return models.Report{}, err
		}
		printReport(os.Stdout, report)
		return report, nil
	}

	if *schedule == "" {
		if _, err := runOnce(ctx); err != nil {
			logger.Error("compute", "error", err)
			os.Exit(1)
		}
		return
	}

	sched, err := scheduler.Start(ctx, *schedule, cfg.Schedule.Location, func(ctx context.Context, trigger time.Time) error {
		report, err := runOnce(ctx)
		if err != nil {
			return err
		}
		// seules les entrées du dernier jeu de lignes restent utiles
		deps.Cache.Retain(report.Fingerprint)
		return nil
	}, logger)
	if err != nil {
		logger.Error("schedule", "error", err)
		os.Exit(1)
	}
	logger.Debug("waiting for scheduled runs", "timezone", cfg.Schedule.Timezone)

	<-ctx.Done()
	sched.Stop()
	logger.Info("shutting down")
}

// openSnapshots réutilise la connexion source quand les DSN sont identiques.
func openSnapshots(ctx context.Context, snapshotDSN, sourceDSN string, source *sql.DB, dialect database.Dialect) (*database.SnapshotStore, func(), error) {
	db, d := source, dialect
	closeFn := func() {}
	if snapshotDSN != sourceDSN {
		var err error
		db, d, err = database.Open(snapshotDSN)
		if err != nil {
			return nil, nil, err
		}
		closeFn = func() { _ = db.Close() }
	}
	store := database.NewSnapshotStore(db, d)
	if err := store.EnsureSchema(ctx); err != nil {
		closeFn()
		return nil, nil, err
	}
	return store, closeFn, nil
}

// Sortie : segments, scores en repli, puis MM/YYYY ; size=N ; pourcentages par décalage
func printReport(w io.Writer, r models.Report) {
	fmt.Fprintf(w, "run=%s ; transactions=%d ; customers=%d ; reference=%s\n",
		r.RunID, r.TransactionCount, len(r.RFM.Customers), r.RFM.Reference.Format("2006-01-02"))

	for _, s := range r.Segments {
		fmt.Fprintf(w, "%s ; customers=%d ; orders=%d ; revenue=%.2f ; quantity=%d ; aov=%.2f\n",
			s.Segment, s.Customers, s.Orders, s.Revenue, s.Quantity, s.AvgOrderValue)
	}
	for _, m := range r.RFM.Fallbacks {
		fmt.Fprintf(w, "fallback ; %s scored by percentile rank\n", m)
	}

	fmt.Fprintf(w, "cohorts ; metric=%s\n", r.Cohorts.Metric)
	for _, row := range r.Cohorts.Rows {
		var b strings.Builder
		fmt.Fprintf(&b, "%s ; size=%d", row.Label, row.Size)
		for _, cell := range row.Percent {
			if cell.Valid {
				fmt.Fprintf(&b, " ; %.1f", cell.Float64)
			} else {
				b.WriteString(" ; -")
			}
		}
		fmt.Fprintln(w, b.String())
	}
}
