package engine

import (
	"QuantBoard/internal/domain/models"
	"QuantBoard/internal/features"
)

// diagnostics derives the per-symbol correlation diagnostics from the
// chronological metric window and the feature history. Correlations over
// constant or mismatched series come back as 0 from the Pearson helper, so
// this stage never errors on degenerate data.
func diagnostics(symbol string, rows []*models.MetricRow, hist []*models.FeatureSnapshot, moveThreshold float64) *models.DiagnosticsRecord {
	if len(rows) < 3 {
		return nil
	}
	latest := rows[len(rows)-1]

	priceDeltas, oiDeltas, lsDeltas := deltaSeries(rows)

	rec := &models.DiagnosticsRecord{
		Symbol:    symbol,
		Timestamp: latest.Timestamp,

		CorrPriceOI:        features.Pearson(priceDeltas, oiDeltas),
		CorrPriceLongShort: features.Pearson(priceDeltas, lsDeltas),
		CorrOILongShort:    features.Pearson(oiDeltas, lsDeltas),

		ConfluenceDensity: density(priceDeltas, moveThreshold),
	}

	vols := make([]float64, 0, len(hist))
	for _, snap := range hist {
		if snap.Volatility != nil {
			vols = append(vols, *snap.Volatility)
		}
	}
	if len(vols) > 0 {
		rec.Volatility = vols[len(vols)-1]
	}
	if z, ok := features.ZScore(vols); ok {
		rec.VolatilityZScore = z
	}
	return rec
}

// deltaSeries turns the row window into aligned per-step change series for
// price, open interest, and the global long/short ratio. Steps missing price
// or open interest are dropped from all three so the legs stay aligned; a
// missing long/short leg contributes a zero delta instead.
func deltaSeries(rows []*models.MetricRow) (price, oi, longShort []float64) {
	for i := 1; i < len(rows); i++ {
		prev, cur := rows[i-1], rows[i]
		if prev.Price == nil || cur.Price == nil ||
			prev.OpenInterest == nil || cur.OpenInterest == nil {
			continue
		}
		price = append(price, *cur.Price-*prev.Price)
		oi = append(oi, *cur.OpenInterest-*prev.OpenInterest)
		if prev.GlobalLongShort != nil && cur.GlobalLongShort != nil {
			longShort = append(longShort, *cur.GlobalLongShort-*prev.GlobalLongShort)
		} else {
			longShort = append(longShort, 0)
		}
	}
	return price, oi, longShort
}

// density is the fraction of recent price moves whose magnitude exceeds the
// configured threshold.
func density(deltas []float64, threshold float64) float64 {
	if len(deltas) == 0 || threshold <= 0 {
		return 0
	}
	var hits int
	for _, d := range deltas {
		if d > threshold || d < -threshold {
			hits++
		}
	}
	return float64(hits) / float64(len(deltas))
}
