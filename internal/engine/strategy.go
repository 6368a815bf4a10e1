package engine

import (
	"math"

	"QuantBoard/internal/domain/models"
	"QuantBoard/pkg/config"
)

// Input is everything a family strategy may look at for one symbol.
type Input struct {
	Snapshot *models.FeatureSnapshot
	Latest   *models.MetricRow
	Diag     *models.DiagnosticsRecord
}

// FamilyStrategy scores the six families for one symbol. Two strategies
// coexist: the boolean threshold heuristics and the continuous
// diagnostics-derived expression. Scores are in [0,1]; a missing family in
// the result map means its inputs were unavailable, which counts as
// unsatisfied.
type FamilyStrategy interface {
	Name() string
	Scores(in Input) map[models.Family]float64
}

// familyWeights weight each family's contribution to confidence.
var familyWeights = map[models.Family]float64{
	models.FamilyAccumulation: 1.0,
	models.FamilyDistribution: 1.0,
	models.FamilyMomentum:     1.0,
	models.FamilyOrderflow:    1.0,
	models.FamilyDivergence:   0.9,
	models.FamilyExhaustion:   0.8,
}

// Confidence reduces a score map to satisfied-weight over total-weight.
// Continuous scores contribute proportionally.
func Confidence(scores map[models.Family]float64) float64 {
	var got, total float64
	for family, w := range familyWeights {
		total += w
		got += w * clamp01(scores[family])
	}
	if total == 0 {
		return 0
	}
	return got / total
}

// thresholdStrategy is the boolean heuristic path: each family is a
// conjunction of threshold conditions over the feature snapshot, scoring
// exactly 0 or 1.
type thresholdStrategy struct {
	t config.Thresholds
}

// NewThresholdStrategy builds the boolean heuristic strategy.
func NewThresholdStrategy(t config.Thresholds) FamilyStrategy {
	return &thresholdStrategy{t: t}
}

func (s *thresholdStrategy) Name() string { return "threshold" }

func (s *thresholdStrategy) Scores(in Input) map[models.Family]float64 {
	snap := in.Snapshot
	if snap == nil {
		return nil
	}
	scores := make(map[models.Family]float64, len(models.Families))

	vol := deref(snap.Volatility)
	oiChange := deref(snap.OIChange5)
	priceMove := deref(snap.PriceChange5)
	imb := deref(snap.Imbalance)
	taker := deref(snap.TakerRatio)
	pressure := deref(snap.VolumePressure)

	var topTrader float64
	if in.Latest != nil && in.Latest.TopTraderAccounts != nil {
		topTrader = *in.Latest.TopTraderAccounts
	}

	if snap.OIChange5 != nil && snap.Imbalance != nil &&
		safeRatio(oiChange, vol) > s.t.AccumulationOIVol &&
		math.Abs(safeRatio(priceMove, vol)) < s.t.AccumulationPriceVol &&
		topTrader > s.t.AccumulationTopTrader &&
		imb > s.t.AccumulationImbalance {
		scores[models.FamilyAccumulation] = 1
	}

	if snap.OIChange5 != nil && snap.Imbalance != nil &&
		safeRatio(-oiChange, vol) > s.t.DistributionOIVol &&
		imb < s.t.DistributionImbalance &&
		priceMove < 0 {
		scores[models.FamilyDistribution] = 1
	}

	if snap.PriceChange5 != nil && snap.TakerRatio != nil &&
		math.Abs(priceMove) > s.t.MomentumMove &&
		directionalTaker(priceMove, taker, s.t.MomentumTakerRatio) &&
		pressure > 1 {
		scores[models.FamilyMomentum] = 1
	}

	if snap.Composite != nil && snap.PriceChange15 != nil &&
		math.Abs(deref(snap.Composite)) > s.t.ExhaustionZScore &&
		math.Abs(deref(snap.PriceChange15)) > s.t.MomentumMove &&
		pressure < 1 {
		scores[models.FamilyExhaustion] = 1
	}

	if snap.TakerRatio != nil && snap.Imbalance != nil &&
		taker > s.t.OrderflowTakerRatio &&
		imb > s.t.OrderflowImbalance &&
		pressure > 1 {
		scores[models.FamilyOrderflow] = 1
	}

	if snap.PriceChange5 != nil && snap.OIChange5 != nil && snap.OIZScore != nil &&
		priceMove*oiChange < 0 &&
		math.Abs(deref(snap.OIZScore)) > s.t.DivergenceGap {
		scores[models.FamilyDivergence] = 1
	}

	return scores
}

// directionalTaker checks that taker flow confirms the move direction: an
// up-move needs buy dominance, a down-move sell dominance.
func directionalTaker(move, taker, threshold float64) bool {
	if threshold <= 0 {
		return false
	}
	if move > 0 {
		return taker > threshold
	}
	return taker > 0 && taker < 1/threshold
}

// diagnosticStrategy is the continuous path: the same six families expressed
// from rolling correlation diagnostics rather than point thresholds.
type diagnosticStrategy struct{}

// NewDiagnosticStrategy builds the diagnostics-derived strategy.
func NewDiagnosticStrategy() FamilyStrategy {
	return &diagnosticStrategy{}
}

func (s *diagnosticStrategy) Name() string { return "diagnostic" }

func (s *diagnosticStrategy) Scores(in Input) map[models.Family]float64 {
	d := in.Diag
	if d == nil {
		return nil
	}
	scores := make(map[models.Family]float64, len(models.Families))

	// positive funding at scale means crowded longs; tilt accumulation down
	// and distribution up. Funding comes in raw rate units, hence the 1e4.
	var fundingTilt float64
	if in.Latest != nil && in.Latest.Funding != nil {
		fundingTilt = clamp(*in.Latest.Funding*1e4/10, -1, 1)
	}

	scores[models.FamilyAccumulation] = clamp01(d.CorrOILongShort*(1-d.ConfluenceDensity) - 0.25*fundingTilt)
	scores[models.FamilyDistribution] = clamp01(-d.CorrPriceLongShort + 0.25*fundingTilt)
	scores[models.FamilyMomentum] = clamp01(math.Abs(d.CorrPriceOI) * d.ConfluenceDensity)
	scores[models.FamilyExhaustion] = clamp01(d.VolatilityZScore / 3)
	scores[models.FamilyOrderflow] = clamp01(math.Abs(d.CorrPriceLongShort) * d.ConfluenceDensity)
	scores[models.FamilyDivergence] = clamp01(-d.CorrPriceOI)

	return scores
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

// safeRatio divides tolerating a zero denominator: a zero numerator means no
// move at all (0), a nonzero one means an unbounded move in its direction.
func safeRatio(num, den float64) float64 {
	if den == 0 {
		if num == 0 {
			return 0
		}
		return math.Inf(1) * sign(num)
	}
	return num / den
}

func sign(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}

func clamp01(v float64) float64 { return clamp(v, 0, 1) }

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
