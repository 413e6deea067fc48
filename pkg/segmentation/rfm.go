package segmentation

import (
	"sort"
	"time"

	"retail-segments/pkg/models"
)

const day = 24 * time.Hour

type customerAcc struct {
	first    time.Time
	last     time.Time
	invoices map[string]struct{}
	monetary float64
}

// ComputeRFM agrège les transactions par client, note chaque métrique de 1 à 5
// et attribue un segment. La date de référence est la date de facture max
// sur l'ensemble du jeu, pas par client.
func (e *Engine) ComputeRFM(txns []models.Transaction) (models.RFMResult, error) {
	if len(txns) == 0 {
		return models.RFMResult{}, ErrEmptyInput
	}

	reference := txns[0].InvoiceDate
	byCustomer := make(map[string]*customerAcc)
	for _, t := range txns {
		if t.InvoiceDate.After(reference) {
			reference = t.InvoiceDate
		}
		acc, ok := byCustomer[t.CustomerID]
		if !ok {
			acc = &customerAcc{
				first:    t.InvoiceDate,
				last:     t.InvoiceDate,
				invoices: map[string]struct{}{},
			}
			byCustomer[t.CustomerID] = acc
		}
		if t.InvoiceDate.Before(acc.first) {
			acc.first = t.InvoiceDate
		}
		if t.InvoiceDate.After(acc.last) {
			acc.last = t.InvoiceDate
		}
		acc.invoices[t.InvoiceNo] = struct{}{}
		acc.monetary += t.Amount()
	}

	ids := make([]string, 0, len(byCustomer))
	for id := range byCustomer {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	customers := make([]models.CustomerRFM, len(ids))
	recency := make([]float64, len(ids))
	frequency := make([]float64, len(ids))
	monetary := make([]float64, len(ids))
	for i, id := range ids {
		acc := byCustomer[id]
		c := models.CustomerRFM{
			CustomerID:    id,
			Recency:       recencyDays(reference, acc.last),
			Frequency:     len(acc.invoices),
			Monetary:      acc.monetary,
			FirstPurchase: acc.first,
			LastPurchase:  acc.last,
		}
		customers[i] = c
		recency[i] = float64(c.Recency)
		frequency[i] = float64(c.Frequency)
		monetary[i] = c.Monetary
	}

	result := models.RFMResult{Reference: reference}

	rScores, rFallback := scoreValues(recency, lowerIsBetter)
	fScores, fFallback := scoreValues(frequency, higherIsBetter)
	mScores, mFallback := scoreValues(monetary, higherIsBetter)
	for _, fb := range []struct {
		metric models.Metric
		used   bool
		values []float64
	}{
		{models.MetricRecency, rFallback, recency},
		{models.MetricFrequency, fFallback, frequency},
		{models.MetricMonetary, mFallback, monetary},
	} {
		if !fb.used {
			continue
		}
		result.Fallbacks = append(result.Fallbacks, fb.metric)
		e.logger.Warn("insufficient distinct values, scoring by percentile rank",
			"metric", fb.metric,
			"customers", len(fb.values),
			"distinct", countDistinct(fb.values),
		)
	}

	for i := range customers {
		customers[i].RScore = rScores[i]
		customers[i].FScore = fScores[i]
		customers[i].MScore = mScores[i]
		customers[i].Segment = Classify(rScores[i], fScores[i], mScores[i])
	}
	result.Customers = customers

	e.logger.Debug("rfm computed",
		"transactions", len(txns),
		"customers", len(customers),
		"reference", reference.Format("2006-01-02"),
	)
	return result, nil
}

// recencyDays compte les jours entiers (arrondi inférieur) entre last et reference.
func recencyDays(reference, last time.Time) int {
	d := reference.Sub(last)
	if d < 0 {
		return 0
	}
	return int(d / day)
}
