package models

import (
	"database/sql"
	"fmt"
	"time"
)

/*
LOAD → types simples pour les lignes de facture nettoyées.
*/

// Transaction représente une ligne produit d'une facture, telle que fournie par le loader.
// Quantity et UnitPrice sont supposés > 0 (annulations déjà exclues en amont).
type Transaction struct {
	InvoiceNo   string
	CustomerID  string
	InvoiceDate time.Time
	StockCode   string
	Description string
	Category    string
	Quantity    int
	UnitPrice   float64
	Country     string
}

// Amount = Quantity × UnitPrice.
func (t Transaction) Amount() float64 {
	return float64(t.Quantity) * t.UnitPrice
}

/*
COMPUTE → RFM et segments
*/

// Segment est l'étiquette attribuée à un client à partir de ses scores R/F/M.
type Segment string

const (
	SegmentChampions Segment = "Champions"
	SegmentLoyal     Segment = "Loyal Customers"
	SegmentActive    Segment = "Active Customers"
	SegmentRegular   Segment = "Regular Customers"
	SegmentNew       Segment = "New Customers"
	SegmentAtRisk    Segment = "At Risk"
)

// Segments liste les segments dans leur ordre de priorité.
var Segments = []Segment{
	SegmentChampions,
	SegmentLoyal,
	SegmentActive,
	SegmentRegular,
	SegmentNew,
	SegmentAtRisk,
}

// CustomerRFM contient les métriques brutes, les scores (1..5) et le segment d'un client.
type CustomerRFM struct {
	CustomerID    string
	Recency       int     // jours depuis la dernière facture, relatif à la date max globale
	Frequency     int     // nombre de factures distinctes
	Monetary      float64 // somme des montants de ligne
	FirstPurchase time.Time
	LastPurchase  time.Time
	RScore        int
	FScore        int
	MScore        int
	Segment       Segment
}

// RFMCode concatène les trois scores, ex: "545".
func (c CustomerRFM) RFMCode() string {
	return fmt.Sprintf("%d%d%d", c.RScore, c.FScore, c.MScore)
}

// Metric identifie une des trois dimensions RFM.
type Metric string

const (
	MetricRecency   Metric = "recency"
	MetricFrequency Metric = "frequency"
	MetricMonetary  Metric = "monetary"
)

// RFMResult est le tableau RFM complet (un enregistrement par client, trié par CustomerID).
type RFMResult struct {
	Customers []CustomerRFM
	Reference time.Time // date max des factures sur tout le jeu filtré
	Fallbacks []Metric  // métriques notées via le rang percentile (quantiles non calculables)
}

// SegmentSummary agrège les transactions des clients d'un même segment.
type SegmentSummary struct {
	Segment       Segment
	Customers     int
	Orders        int
	Revenue       float64
	Quantity      int
	AvgOrderValue float64
}

/*
COMPUTE → matrice de cohortes
*/

// CohortMetric choisit la valeur agrégée dans chaque cellule de la matrice.
type CohortMetric string

const (
	CohortRetention CohortMetric = "retention" // clients distincts
	CohortRevenue   CohortMetric = "revenue"   // somme des montants
	CohortFrequency CohortMetric = "frequency" // factures distinctes
)

// CohortRow est une ligne de la matrice : un mois de cohorte et ses cellules par décalage.
// Une cellule non Valid signifie "pas de donnée", jamais zéro.
type CohortRow struct {
	Month   time.Time // 1er jour du mois de cohorte (UTC)
	Label   string    // "MM/YYYY"
	Size    int       // clients distincts au décalage 0
	Raw     []sql.NullFloat64
	Percent []sql.NullFloat64
}

// CohortMatrix est la matrice creuse (mois de cohorte × décalage en mois).
type CohortMatrix struct {
	Metric    CohortMetric
	Rows      []CohortRow
	MaxOffset int
}

// Cell retourne le pourcentage à (row, offset) et false si la cellule est absente.
func (m CohortMatrix) Cell(row, offset int) (float64, bool) {
	if row < 0 || row >= len(m.Rows) {
		return 0, false
	}
	cells := m.Rows[row].Percent
	if offset < 0 || offset >= len(cells) || !cells[offset].Valid {
		return 0, false
	}
	return cells[offset].Float64, true
}

/*
FILTER / CONFIG → paramètres d'exécution
*/

// Filter restreint les transactions chargées. Start inclusif, End exclusif ;
// une date zéro ou une liste vide signifie "pas de restriction".
type Filter struct {
	Start      time.Time
	End        time.Time
	Countries  []string
	Categories []string
}

// Config contient les paramètres passés à la fonction de calcul.
type Config struct {
	StartMonthInclusive string // "MMYYYY", optionnel
	EndMonthInclusive   string // "MMYYYY", optionnel
	Countries           []string
	Categories          []string
	CohortMetric        CohortMetric
	Table               string
	Snapshot            bool // enregistre le rapport via le SnapshotStore
	Verbose             bool
}

// Report regroupe tout ce qu'une exécution produit.
type Report struct {
	RunID            string
	Fingerprint      string
	TransactionCount int
	RFM              RFMResult
	Segments         []SegmentSummary
	Cohorts          CohortMatrix
	GeneratedAt      time.Time
}
