// Package gex computes dealer gamma exposure metrics from the most recent
// option chain snapshot: per-strike gamma profiles, the gamma flip point,
// max pain and aggregate positioning ratios.
package gex

import (
	"math"
	"sort"
	"time"

	"gexflow/database"
)

// contractMultiplier converts per-share gamma into per-contract exposure
const contractMultiplier = 100

// StrikeProfile is the gamma exposure of one strike across both sides
type StrikeProfile struct {
	Strike     float64
	CallGamma  float64
	PutGamma   float64
	NetGamma   float64 // call - put
	TotalGamma float64 // call + put
	CallOI     int64
	PutOI      int64
}

// Regime labels the dealer gamma positioning implied by net GEX
type Regime string

const (
	RegimePositive Regime = "positive" // dealers long gamma, vol-dampening
	RegimeNegative Regime = "negative" // dealers short gamma, vol-amplifying
	RegimeFlat     Regime = "flat"
)

// RegimeOf classifies a net gamma exposure value
func RegimeOf(netGEX float64) Regime {
	switch {
	case netGEX > 0:
		return RegimePositive
	case netGEX < 0:
		return RegimeNegative
	default:
		return RegimeFlat
	}
}

// Compute builds the full gamma exposure snapshot for one
// (symbol, expiration) from per-contract quotes and the spot price.
// Returns nil when no usable contracts exist.
func Compute(symbol, expiration string, spot float64, quotes []database.ContractQuote, now time.Time) (*database.GEXMetric, []StrikeProfile) {
	if spot <= 0 || len(quotes) == 0 {
		return nil, nil
	}

	byStrike := make(map[float64]*StrikeProfile)
	metric := &database.GEXMetric{
		Timestamp:       now.UTC(),
		Symbol:          symbol,
		Expiration:      expiration,
		UnderlyingPrice: spot,
	}

	for _, q := range quotes {
		exposure := q.Gamma * float64(q.OpenInterest) * contractMultiplier * spot

		p, ok := byStrike[q.Strike]
		if !ok {
			p = &StrikeProfile{Strike: q.Strike}
			byStrike[q.Strike] = p
		}

		if q.OptionType == "call" {
			p.CallGamma += exposure
			p.CallOI += q.OpenInterest
			metric.CallGamma += exposure
			metric.CallOI += q.OpenInterest
			metric.CallVolume += q.Volume
		} else {
			p.PutGamma += exposure
			p.PutOI += q.OpenInterest
			metric.PutGamma += exposure
			metric.PutOI += q.OpenInterest
			metric.PutVolume += q.Volume
		}

		// First-order cross-greek approximations
		metric.VannaExposure += q.Vega * q.Delta * float64(q.OpenInterest)
		metric.CharmExposure += q.Gamma * q.Delta * float64(q.OpenInterest)
	}

	profiles := make([]StrikeProfile, 0, len(byStrike))
	for _, p := range byStrike {
		p.NetGamma = p.CallGamma - p.PutGamma
		p.TotalGamma = p.CallGamma + p.PutGamma
		profiles = append(profiles, *p)
	}
	sort.Slice(profiles, func(i, j int) bool { return profiles[i].Strike < profiles[j].Strike })

	metric.NetGEX = metric.CallGamma - metric.PutGamma
	metric.TotalGammaExposure = metric.CallGamma + metric.PutGamma
	metric.TotalContracts = metric.CallOI + metric.PutOI

	for _, p := range profiles {
		if p.TotalGamma > metric.MaxGammaValue {
			metric.MaxGammaValue = p.TotalGamma
			metric.MaxGammaStrike = p.Strike
		}
	}

	metric.GammaFlipPoint = flipPoint(profiles)
	metric.MaxPain = maxPain(profiles)

	if metric.CallOI > 0 {
		metric.PutCallRatio = float64(metric.PutOI) / float64(metric.CallOI)
	}

	return metric, profiles
}

// flipPoint finds the price where net gamma changes sign, linearly
// interpolated between the first adjacent strike pair with opposite
// signs. Nil when net gamma never crosses zero.
func flipPoint(profiles []StrikeProfile) *float64 {
	for i := 0; i+1 < len(profiles); i++ {
		a, b := profiles[i], profiles[i+1]
		if a.NetGamma == 0 {
			v := a.Strike
			return &v
		}
		if a.NetGamma*b.NetGamma < 0 {
			denom := math.Abs(a.NetGamma) + math.Abs(b.NetGamma)
			v := a.Strike + (b.Strike-a.Strike)*math.Abs(a.NetGamma)/denom
			return &v
		}
	}
	return nil
}

// maxPain returns the hypothetical closing price that minimizes the total
// intrinsic payout to option holders. The ascending scan with a strict
// comparison keeps the lowest strike on ties.
func maxPain(profiles []StrikeProfile) float64 {
	if len(profiles) == 0 {
		return 0
	}

	best := profiles[0].Strike
	bestPain := math.Inf(1)

	for _, candidate := range profiles {
		pain := 0.0
		for _, p := range profiles {
			callIntrinsic := math.Max(0, candidate.Strike-p.Strike)
			putIntrinsic := math.Max(0, p.Strike-candidate.Strike)
			pain += (callIntrinsic*float64(p.CallOI) + putIntrinsic*float64(p.PutOI)) * contractMultiplier
		}
		if pain < bestPain {
			bestPain = pain
			best = candidate.Strike
		}
	}
	return best
}
