// Package posture computes the session posture heuristic: a bounded score in
// [-100, 100] blending market breadth, sector participation and volatility.
package posture

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"market-pulse/models"
)

// Composite weights
const (
	BreadthWeight    = 0.4
	DispersionWeight = 0.4
	VIXWeight        = 0.2
)

// Label thresholds on the composite score
const (
	RiskOnThreshold  = 30.0
	RiskOffThreshold = -30.0
)

// Sector participation and dispersion thresholds. Positive counts assume
// the usual eleven sector ETFs.
const (
	HighParticipation = 8
	LowParticipation  = 3
	LowDispersion     = 1.5
	HighDispersion    = 3.0
)

// FormulaNote is the last line of every posture's notes
const FormulaNote = "Formula: Score = 0.4×Breadth + 0.4×Dispersion + 0.2×VIX"

// Score computes the session posture. It is a pure function of its inputs.
func Score(breadth map[string]models.BreadthData, sectors []models.SectorData, vix models.VIXData) models.SessionPosture {
	b := BreadthScore(breadth)
	d := DispersionScore(sectors)
	v := VIXOverlay(vix.Pct)

	composite := BreadthWeight*b + DispersionWeight*d + VIXWeight*v

	return models.SessionPosture{
		Score: round1(composite),
		Label: labelFor(composite),
		Components: models.PostureComponents{
			Breadth:    round1(b),
			Dispersion: round1(d),
			VolOverlay: round1(v),
		},
		Notes: []string{
			fmt.Sprintf("Breadth: %.1f/100 (40%% weight)", b),
			fmt.Sprintf("Sector Dispersion: %.1f/100 (40%% weight)", d),
			fmt.Sprintf("VIX Overlay: %.1f/100 (20%% weight)", v),
			FormulaNote,
		},
	}
}

// Neutral is the posture reported when scoring cannot be completed
func Neutral() models.SessionPosture {
	return models.SessionPosture{
		Score:      0,
		Label:      models.PostureNeutral,
		Components: models.PostureComponents{},
		Notes:      []string{},
	}
}

// BreadthScore averages the NYSE and NASDAQ advance/decline ratios, scaled
// to [-100, 100]. Breadth is all or nothing: if any of the four
// advancer/decliner counts is missing or negative, the score is 0.
func BreadthScore(breadth map[string]models.BreadthData) float64 {
	nyse := breadth[models.ExchangeNYSE]
	nasdaq := breadth[models.ExchangeNASDAQ]

	for _, n := range []*int64{nyse.Advancers, nyse.Decliners, nasdaq.Advancers, nasdaq.Decliners} {
		if n == nil || *n < 0 {
			return 0
		}
	}

	ratio := func(adv, dec int64) float64 {
		total := adv + dec
		if total <= 0 {
			return 0
		}
		return float64(adv-dec) / float64(total)
	}

	nyseRatio := ratio(*nyse.Advancers, *nyse.Decliners)
	nasdaqRatio := ratio(*nasdaq.Advancers, *nasdaq.Decliners)

	return (nyseRatio + nasdaqRatio) / 2 * 100
}

// DispersionScore rewards broad, tight sector participation.
//
// At least HighParticipation positive sectors with a standard deviation of
// at most LowDispersion scores 100; LowParticipation or fewer positive
// sectors, or a deviation of HighDispersion or more, scores -100. In between
// the score averages a participation term and an inverted dispersion term,
// each interpolated between the thresholds and clamped.
func DispersionScore(sectors []models.SectorData) float64 {
	if len(sectors) == 0 {
		return 0
	}

	returns := make([]float64, len(sectors))
	positive := 0
	for i, s := range sectors {
		r := s.Pct
		if math.IsNaN(r) || math.IsInf(r, 0) {
			r = 0
		}
		returns[i] = r
		if r > 0 {
			positive++
		}
	}

	sd := sampleStdDev(returns)

	if positive >= HighParticipation && sd <= LowDispersion {
		return 100
	}
	if positive <= LowParticipation || sd >= HighDispersion {
		return -100
	}

	participation := float64(positive-LowParticipation) / float64(HighParticipation-LowParticipation) * 100
	dispersion := (HighDispersion - sd) / (HighDispersion - LowDispersion) * 100

	return (clamp(participation) + clamp(dispersion)) / 2
}

// VIXOverlay buckets the VIX percent change. A falling VIX is bullish.
func VIXOverlay(pct float64) float64 {
	switch {
	case pct <= -5:
		return 100
	case pct <= -2:
		return 50
	case pct < 2:
		return 0
	case pct < 5:
		return -50
	default:
		return -100
	}
}

func labelFor(score float64) models.PostureLabel {
	switch {
	case score >= RiskOnThreshold:
		return models.PostureRiskOn
	case score <= RiskOffThreshold:
		return models.PostureRiskOff
	default:
		return models.PostureNeutral
	}
}

// sampleStdDev returns the n-1 standard deviation, or 0 for fewer than two values
func sampleStdDev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean := sum / float64(len(xs))

	var sq float64
	for _, x := range xs {
		sq += (x - mean) * (x - mean)
	}
	return math.Sqrt(sq / float64(len(xs)-1))
}

func clamp(x float64) float64 {
	return max(-100, min(100, x))
}

func round1(x float64) float64 {
	return decimal.NewFromFloat(x).Round(1).InexactFloat64()
}
