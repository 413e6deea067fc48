package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"retail-segments/pkg/models"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
)

// Taille des lots d'INSERT (sqlite limite le nombre de paramètres par requête).
const insertBatchSize = 100

var snapshotSchema = []string{
	`CREATE TABLE IF NOT EXISTS segmentation_runs (
		run_id            VARCHAR(36) PRIMARY KEY,
		fingerprint       VARCHAR(64) NOT NULL,
		transactions      INTEGER NOT NULL,
		customers         INTEGER NOT NULL,
		reference_date    TIMESTAMP NOT NULL,
		cohort_metric     VARCHAR(16) NOT NULL,
		generated_at      TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS rfm_snapshots (
		run_id      VARCHAR(36) NOT NULL,
		customer_id VARCHAR(64) NOT NULL,
		recency     INTEGER NOT NULL,
		frequency   INTEGER NOT NULL,
		monetary    DOUBLE PRECISION NOT NULL,
		r_score     INTEGER NOT NULL,
		f_score     INTEGER NOT NULL,
		m_score     INTEGER NOT NULL,
		segment     VARCHAR(32) NOT NULL,
		PRIMARY KEY (run_id, customer_id)
	)`,
	`CREATE TABLE IF NOT EXISTS cohort_snapshots (
		run_id       VARCHAR(36) NOT NULL,
		cohort_month VARCHAR(7) NOT NULL,
		month_offset INTEGER NOT NULL,
		raw_value    DOUBLE PRECISION NOT NULL,
		percent      DOUBLE PRECISION NOT NULL,
		PRIMARY KEY (run_id, cohort_month, month_offset)
	)`,
}

// SnapshotStore persiste les rapports calculés, une ligne par client et une par cellule de cohorte présente.
type SnapshotStore struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

// NewSnapshotStore enveloppe une connexion ouverte via Open.
func NewSnapshotStore(db *sql.DB, dialect Dialect) *SnapshotStore {
	return &SnapshotStore{db: db, dialect: dialect, now: time.Now}
}

// EnsureSchema crée les tables si besoin (une requête par instruction, le driver MySQL refuse le multi-statements).
func (s *SnapshotStore) EnsureSchema(ctx context.Context) error {
	for _, stmt := range snapshotSchema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// SaveReport enregistre le rapport dans une transaction et retourne l'identifiant du run.
func (s *SnapshotStore) SaveReport(ctx context.Context, report models.Report) (string, error) {
	runID := report.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	generatedAt := report.GeneratedAt
	if generatedAt.IsZero() {
		generatedAt = s.now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	run := s.insert("segmentation_runs").
		Columns("run_id", "fingerprint", "transactions", "customers", "reference_date", "cohort_metric", "generated_at").
		Values(runID, report.Fingerprint, report.TransactionCount, len(report.RFM.Customers),
			report.RFM.Reference.UTC(), string(report.Cohorts.Metric), generatedAt.UTC())
	if err := s.exec(ctx, tx, run); err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}

	customers := report.RFM.Customers
	for start := 0; start < len(customers); start += insertBatchSize {
		end := min(start+insertBatchSize, len(customers))
		q := s.insert("rfm_snapshots").
			Columns("run_id", "customer_id", "recency", "frequency", "monetary", "r_score", "f_score", "m_score", "segment")
		for _, c := range customers[start:end] {
			q = q.Values(runID, c.CustomerID, c.Recency, c.Frequency, c.Monetary, c.RScore, c.FScore, c.MScore, string(c.Segment))
		}
		if err := s.exec(ctx, tx, q); err != nil {
			return "", fmt.Errorf("insert rfm rows: %w", err)
		}
	}

	var cells [][]any
	for _, row := range report.Cohorts.Rows {
		for offset, raw := range row.Raw {
			if !raw.Valid || !row.Percent[offset].Valid {
				continue
			}
			cells = append(cells, []any{runID, row.Label, offset, raw.Float64, row.Percent[offset].Float64})
		}
	}
	for start := 0; start < len(cells); start += insertBatchSize {
		end := min(start+insertBatchSize, len(cells))
		q := s.insert("cohort_snapshots").
			Columns("run_id", "cohort_month", "month_offset", "raw_value", "percent")
		for _, cell := range cells[start:end] {
			q = q.Values(cell...)
		}
		if err := s.exec(ctx, tx, q); err != nil {
			return "", fmt.Errorf("insert cohort cells: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	return runID, nil
}

// LoadSegments relit la table RFM d'un run, triée par client.
func (s *SnapshotStore) LoadSegments(ctx context.Context, runID string) ([]models.CustomerRFM, error) {
	query, args, err := sq.Select("customer_id", "recency", "frequency", "monetary", "r_score", "f_score", "m_score", "segment").
		From("rfm_snapshots").
		Where(sq.Eq{"run_id": runID}).
		OrderBy("customer_id").
		PlaceholderFormat(s.dialect.placeholders()).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query segments: %w", err)
	}
	defer rows.Close()

	var out []models.CustomerRFM
	for rows.Next() {
		var (
			c       models.CustomerRFM
			segment string
		)
		if err := rows.Scan(&c.CustomerID, &c.Recency, &c.Frequency, &c.Monetary, &c.RScore, &c.FScore, &c.MScore, &segment); err != nil {
			return nil, fmt.Errorf("scan segment: %w", err)
		}
		c.Segment = models.Segment(segment)
		out = append(out, c)
	}
	return out, rows.Err()
}

// LoadCohortCells relit les cellules présentes d'un run, indexées par "MM/YYYY" puis décalage.
func (s *SnapshotStore) LoadCohortCells(ctx context.Context, runID string) (map[string]map[int]float64, error) {
	query, args, err := sq.Select("cohort_month", "month_offset", "percent").
		From("cohort_snapshots").
		Where(sq.Eq{"run_id": runID}).
		PlaceholderFormat(s.dialect.placeholders()).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query cohort cells: %w", err)
	}
	defer rows.Close()

	out := map[string]map[int]float64{}
	for rows.Next() {
		var (
			month   string
			offset  int
			percent float64
		)
		if err := rows.Scan(&month, &offset, &percent); err != nil {
			return nil, fmt.Errorf("scan cohort cell: %w", err)
		}
		if out[month] == nil {
			out[month] = map[int]float64{}
		}
		out[month][offset] = percent
	}
	return out, rows.Err()
}

func (s *SnapshotStore) insert(table string) sq.InsertBuilder {
	return sq.Insert(table).PlaceholderFormat(s.dialect.placeholders())
}

func (s *SnapshotStore) exec(ctx context.Context, tx *sql.Tx, q sq.InsertBuilder) error {
	query, args, err := q.ToSql()
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, query, args...)
	return err
}
