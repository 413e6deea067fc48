package segmentation

import "retail-segments/pkg/models"

type segmentAcc struct {
	customers map[string]struct{}
	invoices  map[string]struct{}
	revenue   float64
	quantity  int
}

// SummarizeSegments agrège les transactions par segment RFM, dans l'ordre de
// priorité des segments. Les segments sans client sont omis.
func SummarizeSegments(txns []models.Transaction, rfm models.RFMResult) []models.SegmentSummary {
	segmentOf := make(map[string]models.Segment, len(rfm.Customers))
	for _, c := range rfm.Customers {
		segmentOf[c.CustomerID] = c.Segment
	}

	accs := make(map[models.Segment]*segmentAcc)
	for _, t := range txns {
		seg, ok := segmentOf[t.CustomerID]
		if !ok {
			continue
		}
		acc, ok := accs[seg]
		if !ok {
			acc = &segmentAcc{
				customers: map[string]struct{}{},
				invoices:  map[string]struct{}{},
			}
			accs[seg] = acc
		}
		acc.customers[t.CustomerID] = struct{}{}
		acc.invoices[t.InvoiceNo] = struct{}{}
		acc.revenue += t.Amount()
		acc.quantity += t.Quantity
	}

	out := make([]models.SegmentSummary, 0, len(accs))
	for _, seg := range models.Segments {
		acc, ok := accs[seg]
		if !ok {
			continue
		}
		s := models.SegmentSummary{
			Segment:   seg,
			Customers: len(acc.customers),
			Orders:    len(acc.invoices),
			Revenue:   acc.revenue,
			Quantity:  acc.quantity,
		}
		if s.Orders > 0 {
			s.AvgOrderValue = s.Revenue / float64(s.Orders)
		}
		out = append(out, s)
	}
	return out
}
