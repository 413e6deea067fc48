package segmentation

import "retail-segments/pkg/models"

// Classify retourne le segment pour des scores (r, f, m) dans [1,5].
// Les règles se chevauchent : la première qui correspond l'emporte.
func Classify(r, f, m int) models.Segment {
	switch {
	case r >= 4 && f >= 4 && m >= 4:
		return models.SegmentChampions
	case r >= 3 && f >= 3 && m >= 3:
		return models.SegmentLoyal
	case r >= 3 && f >= 1 && m >= 2:
		return models.SegmentActive
	case r >= 2 && f >= 2 && m >= 2:
		return models.SegmentRegular
	case r >= 2 && f >= 1:
		return models.SegmentNew
	default:
		return models.SegmentAtRisk
	}
}
