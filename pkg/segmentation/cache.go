package segmentation

import (
	"crypto/sha256"
	"encoding/hex"
	"slices"
	"sort"
	"strconv"
	"sync"
	"time"

	"retail-segments/pkg/models"
)

// Fingerprint identifie un jeu de lignes indépendamment de leur ordre.
// Deux filtres différents qui retournent les mêmes lignes ont la même empreinte.
func Fingerprint(txns []models.Transaction) string {
	rows := make([]string, len(txns))
	for i, t := range txns {
		h := sha256.New()
		for _, field := range []string{
			t.InvoiceNo,
			t.CustomerID,
			t.InvoiceDate.UTC().Format(time.RFC3339Nano),
			t.StockCode,
			t.Description,
			t.Category,
			strconv.Itoa(t.Quantity),
			strconv.FormatFloat(t.UnitPrice, 'g', -1, 64),
			t.Country,
		} {
			h.Write([]byte(field))
			h.Write([]byte{0x1f})
		}
		rows[i] = hex.EncodeToString(h.Sum(nil))
	}
	sort.Strings(rows)

	h := sha256.New()
	for _, r := range rows {
		h.Write([]byte(r))
	}
	return hex.EncodeToString(h.Sum(nil))
}

type rfmEntry struct {
	once   sync.Once
	result models.RFMResult
	err    error
}

type cohortKey struct {
	fingerprint string
	metric      models.CohortMetric
}

type cohortEntry struct {
	once   sync.Once
	matrix models.CohortMatrix
	err    error
}

// Cache mémorise les résultats du moteur par empreinte du jeu de lignes.
// Chaque entrée est calculée au plus une fois ; un lecteur concurrent attend
// la fin du calcul avant de la voir.
type Cache struct {
	engine *Engine

	mu      sync.Mutex
	rfm     map[string]*rfmEntry
	cohorts map[cohortKey]*cohortEntry
}

// NewCache enveloppe un moteur ; engine nil → New(nil).
func NewCache(engine *Engine) *Cache {
	if engine == nil {
		engine = New(nil)
	}
	return &Cache{
		engine:  engine,
		rfm:     map[string]*rfmEntry{},
		cohorts: map[cohortKey]*cohortEntry{},
	}
}

// RFM retourne la table RFM pour txns, calculée au besoin.
func (c *Cache) RFM(txns []models.Transaction) (models.RFMResult, error) {
	return c.RFMFor(Fingerprint(txns), txns)
}

// RFMFor est RFM avec une empreinte déjà calculée par l'appelant.
// Le résultat est une copie : le modifier n'affecte pas l'entrée en cache.
func (c *Cache) RFMFor(fingerprint string, txns []models.Transaction) (models.RFMResult, error) {
	c.mu.Lock()
	entry, ok := c.rfm[fingerprint]
	if !ok {
		entry = &rfmEntry{}
		c.rfm[fingerprint] = entry
	}
	c.mu.Unlock()

	entry.once.Do(func() {
		entry.result, entry.err = c.engine.ComputeRFM(txns)
	})
	return cloneRFM(entry.result), entry.err
}

// Cohorts retourne la matrice de cohortes pour txns et metric, calculée au besoin.
func (c *Cache) Cohorts(txns []models.Transaction, metric models.CohortMetric) (models.CohortMatrix, error) {
	return c.CohortsFor(Fingerprint(txns), txns, metric)
}

// CohortsFor est Cohorts avec une empreinte déjà calculée ; le résultat est une copie.
func (c *Cache) CohortsFor(fingerprint string, txns []models.Transaction, metric models.CohortMetric) (models.CohortMatrix, error) {
	key := cohortKey{fingerprint: fingerprint, metric: metric}

	c.mu.Lock()
	entry, ok := c.cohorts[key]
	if !ok {
		entry = &cohortEntry{}
		c.cohorts[key] = entry
	}
	c.mu.Unlock()

	entry.once.Do(func() {
		entry.matrix, entry.err = c.engine.ComputeCohorts(txns, metric)
	})
	return cloneMatrix(entry.matrix), entry.err
}

// Retain supprime les entrées dont l'empreinte diffère de fingerprint.
// Un run planifié sur des données inchangées retrouve ainsi ses résultats.
func (c *Cache) Retain(fingerprint string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.rfm {
		if key != fingerprint {
			delete(c.rfm, key)
		}
	}
	for key := range c.cohorts {
		if key.fingerprint != fingerprint {
			delete(c.cohorts, key)
		}
	}
}

func cloneRFM(r models.RFMResult) models.RFMResult {
	r.Customers = slices.Clone(r.Customers)
	r.Fallbacks = slices.Clone(r.Fallbacks)
	return r
}

func cloneMatrix(m models.CohortMatrix) models.CohortMatrix {
	if m.Rows == nil {
		return m
	}
	rows := make([]models.CohortRow, len(m.Rows))
	for i, row := range m.Rows {
		row.Raw = slices.Clone(row.Raw)
		row.Percent = slices.Clone(row.Percent)
		rows[i] = row
	}
	m.Rows = rows
	return m
}

// Len retourne le nombre d'entrées (RFM + cohortes).
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.rfm) + len(c.cohorts)
}

// Purge vide le cache.
func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rfm = map[string]*rfmEntry{}
	c.cohorts = map[cohortKey]*cohortEntry{}
}
