package segmentation

import (
	"testing"

	"retail-segments/pkg/models"
)

func TestClassify_PriorityOrder(t *testing.T) {
	cases := []struct {
		r, f, m int
		want    models.Segment
	}{
		{5, 5, 5, models.SegmentChampions},
		{4, 4, 4, models.SegmentChampions},
		{4, 4, 2, models.SegmentActive},
		{3, 3, 3, models.SegmentLoyal},
		{5, 4, 3, models.SegmentLoyal},
		{3, 1, 2, models.SegmentActive},
		{3, 5, 1, models.SegmentNew},
		{2, 2, 2, models.SegmentRegular},
		{2, 1, 1, models.SegmentNew},
		{2, 5, 1, models.SegmentNew},
		{1, 5, 5, models.SegmentAtRisk},
		{1, 1, 1, models.SegmentAtRisk},
	}
	for _, c := range cases {
		if got := Classify(c.r, c.f, c.m); got != c.want {
			t.Fatalf("Classify(%d,%d,%d) = %q, want %q", c.r, c.f, c.m, got, c.want)
		}
	}
}

func TestClassify_TotalAndDeterministic(t *testing.T) {
	known := map[models.Segment]bool{}
	for _, s := range models.Segments {
		known[s] = true
	}
	for r := 1; r <= 5; r++ {
		for f := 1; f <= 5; f++ {
			for m := 1; m <= 5; m++ {
				got := Classify(r, f, m)
				if !known[got] {
					t.Fatalf("Classify(%d,%d,%d) returned unknown segment %q", r, f, m, got)
				}
				if again := Classify(r, f, m); again != got {
					t.Fatalf("Classify(%d,%d,%d) not deterministic", r, f, m)
				}
			}
		}
	}
}
