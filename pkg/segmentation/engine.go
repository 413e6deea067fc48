package segmentation

import (
	"log/slog"

	"retail-segments/pkg/models"
)

// Engine calcule les tables RFM et les matrices de cohortes.
// Il ne garde aucun état entre deux appels ; le logger sert uniquement à
// signaler les replis de notation et les gardes de division.
type Engine struct {
	logger *slog.Logger
}

// New retourne un moteur ; logger nil → slog.Default().
func New(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{logger: logger}
}

// ComputeRFM calcule la table RFM avec le logger par défaut.
func ComputeRFM(txns []models.Transaction) (models.RFMResult, error) {
	return New(nil).ComputeRFM(txns)
}

// ComputeCohortRetention calcule la matrice de rétention avec le logger par défaut.
func ComputeCohortRetention(txns []models.Transaction) (models.CohortMatrix, error) {
	return New(nil).ComputeCohorts(txns, models.CohortRetention)
}
