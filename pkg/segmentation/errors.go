package segmentation

import "errors"

var (
	// ErrEmptyInput est retournée quand la table de transactions ne contient aucune ligne.
	ErrEmptyInput = errors.New("segmentation: empty transaction table")
	// ErrUnknownCohortMetric est retournée pour un nom de métrique de cohorte inconnu.
	ErrUnknownCohortMetric = errors.New("segmentation: unknown cohort metric")
)
