package segmentation

import (
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"retail-segments/pkg/models"
)

// ParseCohortMetric valide un nom de métrique ; vide → retention.
func ParseCohortMetric(name string) (models.CohortMetric, error) {
	switch m := models.CohortMetric(strings.ToLower(strings.TrimSpace(name))); m {
	case "":
		return models.CohortRetention, nil
	case models.CohortRetention, models.CohortRevenue, models.CohortFrequency:
		return m, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownCohortMetric, name)
	}
}

// monthIndex = année×12 + mois, calculé sur le calendrier UTC.
func monthIndex(t time.Time) int {
	u := t.UTC()
	return u.Year()*12 + int(u.Month()) - 1
}

func monthFromIndex(idx int) time.Time {
	return time.Date(idx/12, time.Month(idx%12+1), 1, 0, 0, 0, 0, time.UTC)
}

// FormatMonth rend un mois au format "MM/YYYY".
func FormatMonth(t time.Time) string {
	return fmt.Sprintf("%02d/%04d", int(t.Month()), t.Year())
}

type cohortCell struct {
	customers map[string]struct{}
	invoices  map[string]struct{}
	revenue   float64
}

func (c *cohortCell) value(metric models.CohortMetric) float64 {
	switch metric {
	case models.CohortRevenue:
		return c.revenue
	case models.CohortFrequency:
		return float64(len(c.invoices))
	default:
		return float64(len(c.customers))
	}
}

// ComputeCohorts construit la matrice (mois de cohorte × décalage) pour la
// métrique demandée, normalisée par la cellule au décalage 0 de chaque ligne.
// Les cellules sans transaction restent nulles.
func (e *Engine) ComputeCohorts(txns []models.Transaction, metric models.CohortMetric) (models.CohortMatrix, error) {
	if len(txns) == 0 {
		return models.CohortMatrix{}, ErrEmptyInput
	}
	metric, err := ParseCohortMetric(string(metric))
	if err != nil {
		return models.CohortMatrix{}, err
	}

	// 1) mois de cohorte = mois de la première facture du client
	cohortOf := make(map[string]int)
	for _, t := range txns {
		idx := monthIndex(t.InvoiceDate)
		if cur, ok := cohortOf[t.CustomerID]; !ok || idx < cur {
			cohortOf[t.CustomerID] = idx
		}
	}

	// 2) cellules par (cohorte, décalage)
	cells := make(map[int]map[int]*cohortCell)
	maxOffset := 0
	for _, t := range txns {
		cohort := cohortOf[t.CustomerID]
		offset := monthIndex(t.InvoiceDate) - cohort
		if offset > maxOffset {
			maxOffset = offset
		}
		row, ok := cells[cohort]
		if !ok {
			row = make(map[int]*cohortCell)
			cells[cohort] = row
		}
		cell, ok := row[offset]
		if !ok {
			cell = &cohortCell{
				customers: map[string]struct{}{},
				invoices:  map[string]struct{}{},
			}
			row[offset] = cell
		}
		cell.customers[t.CustomerID] = struct{}{}
		cell.invoices[t.InvoiceNo] = struct{}{}
		cell.revenue += t.Amount()
	}

	cohorts := make([]int, 0, len(cells))
	for c := range cells {
		cohorts = append(cohorts, c)
	}
	sort.Ints(cohorts)

	// 3) normalisation par la cellule au décalage 0
	matrix := models.CohortMatrix{Metric: metric, MaxOffset: maxOffset}
	for _, c := range cohorts {
		row := cells[c]
		month := monthFromIndex(c)
		out := models.CohortRow{
			Month:   month,
			Label:   FormatMonth(month),
			Raw:     make([]sql.NullFloat64, maxOffset+1),
			Percent: make([]sql.NullFloat64, maxOffset+1),
		}
		if base, ok := row[0]; ok {
			out.Size = len(base.customers)
		}
		for offset, cell := range row {
			out.Raw[offset] = sql.NullFloat64{Float64: cell.value(metric), Valid: true}
		}

		denom := out.Raw[0]
		if !denom.Valid || denom.Float64 <= 0 {
			e.logger.Error("cohort has no base value, percentages left empty",
				"cohort", out.Label, "metric", metric)
			matrix.Rows = append(matrix.Rows, out)
			continue
		}
		for offset, raw := range out.Raw {
			if !raw.Valid {
				continue
			}
			out.Percent[offset] = sql.NullFloat64{Float64: raw.Float64 / denom.Float64 * 100, Valid: true}
		}
		matrix.Rows = append(matrix.Rows, out)
	}

	e.logger.Debug("cohorts computed",
		"metric", metric,
		"cohorts", len(matrix.Rows),
		"max_offset", maxOffset,
	)
	return matrix, nil
}
