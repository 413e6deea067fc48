package segmentation

import (
	"sync"
	"testing"

	"retail-segments/pkg/models"
)

func TestFingerprint_OrderIndependent(t *testing.T) {
	a := txn("1", "A", day0(), 1, 10)
	b := txn("2", "B", day0(), 3, 2.5)

	if Fingerprint([]models.Transaction{a, b}) != Fingerprint([]models.Transaction{b, a}) {
		t.Fatal("fingerprint depends on row order")
	}
	changed := b
	changed.Quantity = 4
	if Fingerprint([]models.Transaction{a, b}) == Fingerprint([]models.Transaction{a, changed}) {
		t.Fatal("fingerprint ignores row content")
	}
}

func TestCache_SharesEntriesPerFingerprint(t *testing.T) {
	cache := NewCache(quietEngine())
	txns := []models.Transaction{
		txn("1", "A", day0(), 1, 10),
		txn("2", "B", day0(), 1, 20),
	}
	reordered := []models.Transaction{txns[1], txns[0]}

	var wg sync.WaitGroup
	results := make([]models.RFMResult, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			in := txns
			if i%2 == 1 {
				in = reordered
			}
			res, err := cache.RFM(in)
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			results[i] = res
		}(i)
	}
	wg.Wait()

	if cache.Len() != 1 {
		t.Fatalf("cache has %d entries, want 1", cache.Len())
	}
	for _, r := range results {
		if len(r.Customers) != 2 {
			t.Fatalf("incomplete result visible: %+v", r)
		}
	}

	if _, err := cache.Cohorts(txns, models.CohortRetention); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := cache.Cohorts(txns, models.CohortRevenue); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cache.Len() != 3 {
		t.Fatalf("cache has %d entries, want 3", cache.Len())
	}

	cache.Purge()
	if cache.Len() != 0 {
		t.Fatalf("cache has %d entries after purge", cache.Len())
	}
}

func TestCache_CachesErrors(t *testing.T) {
	cache := NewCache(quietEngine())
	if _, err := cache.RFM(nil); err != ErrEmptyInput {
		t.Fatalf("expected ErrEmptyInput, got %v", err)
	}
	if _, err := cache.RFM(nil); err != ErrEmptyInput {
		t.Fatalf("expected cached ErrEmptyInput, got %v", err)
	}
}

func TestCache_ResultsAreCopies(t *testing.T) {
	cache := NewCache(quietEngine())
	txns := []models.Transaction{
		txn("1", "A", at(2011, 1, 5), 1, 10),
		txn("2", "A", at(2011, 3, 5), 1, 10),
		txn("3", "B", at(2011, 1, 9), 1, 20),
	}

	first, err := cache.RFM(txns)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := first.Customers[0].Segment
	first.Customers[0].Segment = "changed"

	again, _ := cache.RFM(txns)
	if again.Customers[0].Segment != want {
		t.Fatalf("cached rfm altered by caller: %q", again.Customers[0].Segment)
	}

	m, err := cache.Cohorts(txns, models.CohortRetention)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m.Rows[0].Percent[0].Float64 = -1
	m.Rows[0].Raw[0].Valid = false

	m2, _ := cache.Cohorts(txns, models.CohortRetention)
	if v, ok := m2.Cell(0, 0); !ok || v != 100 {
		t.Fatalf("cached matrix altered by caller: (%v, %v)", v, ok)
	}
	if !m2.Rows[0].Raw[0].Valid {
		t.Fatal("cached raw cell altered by caller")
	}
}

func TestCache_RetainKeepsOnlyFingerprint(t *testing.T) {
	cache := NewCache(quietEngine())
	oldSet := []models.Transaction{txn("1", "A", day0(), 1, 10)}
	newSet := []models.Transaction{txn("1", "A", day0(), 1, 10), txn("2", "B", day0(), 1, 5)}

	keep := Fingerprint(newSet)
	for _, set := range [][]models.Transaction{oldSet, newSet} {
		if _, err := cache.RFM(set); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, err := cache.Cohorts(set, models.CohortRevenue); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if cache.Len() != 4 {
		t.Fatalf("cache has %d entries, want 4", cache.Len())
	}

	cache.Retain(keep)
	if cache.Len() != 2 {
		t.Fatalf("cache has %d entries after retain, want 2", cache.Len())
	}
	if _, err := cache.RFMFor(keep, newSet); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cache.Len() != 2 {
		t.Fatalf("retained entry recomputed under a new key: %d entries", cache.Len())
	}
}
