package segmentation

import (
	"math"
	"sort"
)

const (
	scoreBins    = 5
	defaultScore = 3
)

// Seuils de rang percentile : ≤20%→1, ≤40%→2, ≤60%→3, ≤80%→4, sinon 5.
var rankThresholds = [scoreBins - 1]float64{0.2, 0.4, 0.6, 0.8}

type direction int

const (
	higherIsBetter direction = iota
	lowerIsBetter
)

// scoreValues note chaque valeur de 1 à 5 par rapport à la distribution de values.
// Chemin principal : découpage en quintiles (bornes interpolées). Quand les
// bornes ne sont pas calculables (moins de 5 valeurs distinctes ou bornes
// dupliquées), repli sur le rang percentile avec rang moyen pour les ex aequo.
// Le booléen indique que le repli a été utilisé.
func scoreValues(values []float64, dir direction) ([]int, bool) {
	scores := make([]int, len(values))
	for i := range scores {
		scores[i] = defaultScore
	}

	sorted := finiteSorted(values)
	if len(sorted) == 0 {
		return scores, false
	}

	distinct := countDistinct(sorted)
	if distinct >= scoreBins {
		if edges, ok := quantileEdges(sorted); ok {
			for i, v := range values {
				if !usable(v) {
					continue
				}
				scores[i] = orient(bucketByEdges(v, edges), dir)
			}
			return scores, false
		}
	}

	// Une seule valeur distincte : aucun rang n'a de sens, tout le monde reste à 3.
	if distinct < 2 {
		return scores, true
	}

	for i, r := range percentileRanks(values) {
		if math.IsNaN(r) {
			continue
		}
		scores[i] = orient(bucketByRank(r), dir)
	}
	return scores, true
}

func orient(bucket int, dir direction) int {
	if bucket < 1 {
		bucket = 1
	}
	if bucket > scoreBins {
		bucket = scoreBins
	}
	if dir == lowerIsBetter {
		return scoreBins + 1 - bucket
	}
	return bucket
}

// usable exclut NaN et ±Inf ; ces valeurs gardent le score par défaut.
func usable(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func finiteSorted(values []float64) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if !usable(v) {
			continue
		}
		out = append(out, v)
	}
	sort.Float64s(out)
	return out
}

func countDistinct(values []float64) int {
	seen := make(map[float64]struct{}, len(values))
	for _, v := range values {
		if !usable(v) {
			continue
		}
		seen[v] = struct{}{}
	}
	return len(seen)
}

// quantile interpole linéairement entre les rangs voisins (sorted doit être trié).
func quantile(sorted []float64, p float64) float64 {
	pos := p * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	return sorted[lo] + (pos-float64(lo))*(sorted[hi]-sorted[lo])
}

// quantileEdges retourne les bornes 0/20/40/60/80/100 et false si deux bornes se confondent.
func quantileEdges(sorted []float64) ([]float64, bool) {
	edges := make([]float64, 0, scoreBins+1)
	edges = append(edges, sorted[0])
	for _, p := range rankThresholds {
		edges = append(edges, quantile(sorted, p))
	}
	edges = append(edges, sorted[len(sorted)-1])

	for i := 1; i < len(edges); i++ {
		if !(edges[i] > edges[i-1]) {
			return nil, false
		}
	}
	return edges, true
}

// bucketByEdges place v dans le premier intervalle ]edges[i-1], edges[i]] ;
// le premier intervalle inclut le minimum.
func bucketByEdges(v float64, edges []float64) int {
	for i := 1; i < len(edges); i++ {
		if v <= edges[i] {
			return i
		}
	}
	return scoreBins
}

func bucketByRank(pct float64) int {
	for i, t := range rankThresholds {
		if pct <= t {
			return i + 1
		}
	}
	return scoreBins
}

// percentileRanks retourne rang/n pour chaque valeur, les ex aequo recevant le
// rang moyen de leur groupe. Les valeurs non finies gardent NaN.
func percentileRanks(values []float64) []float64 {
	ranks := make([]float64, len(values))
	idx := make([]int, 0, len(values))
	for i, v := range values {
		if !usable(v) {
			ranks[i] = math.NaN()
			continue
		}
		idx = append(idx, i)
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return values[idx[a]] < values[idx[b]]
	})

	n := float64(len(idx))
	for start := 0; start < len(idx); {
		end := start + 1
		for end < len(idx) && values[idx[end]] == values[idx[start]] {
			end++
		}
		// positions 1-based start+1..end
		avg := float64(start+1+end) / 2
		for _, i := range idx[start:end] {
			ranks[i] = avg / n
		}
		start = end
	}
	return ranks
}
