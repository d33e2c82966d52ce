// Package greeks implements Black-Scholes pricing sensitivities with a
// continuous dividend yield, tuned for intraday 0DTE option chains.
package greeks

import (
	"math"
	"time"

	"gexflow/markethours"
)

const (
	// DefaultRiskFreeRate approximates the short-term treasury rate.
	DefaultRiskFreeRate = 0.045
	// DefaultDividendYield approximates the SPY trailing dividend yield.
	DefaultDividendYield = 0.013

	secondsPerYear = 365.25 * 24 * 3600
	// minYears clamps near-expiry options to one hour of time value so
	// gamma stays finite on expiration day.
	minYears = 1.0 / (365.0 * 24.0)
)

// Greeks holds the five first-order sensitivities of an option.
// Delta/theta/vega/rho are rounded to 6 decimals, gamma to 8.
type Greeks struct {
	Delta float64 `json:"delta"`
	Gamma float64 `json:"gamma"`
	Theta float64 `json:"theta"`
	Vega  float64 `json:"vega"`
	Rho   float64 `json:"rho"`
}

// Calculator computes Black-Scholes greeks under fixed rate assumptions.
type Calculator struct {
	riskFreeRate  float64
	dividendYield float64
}

// NewCalculator creates a calculator with explicit rate assumptions.
// Zero values fall back to the defaults.
func NewCalculator(riskFreeRate, dividendYield float64) *Calculator {
	if riskFreeRate == 0 {
		riskFreeRate = DefaultRiskFreeRate
	}
	if dividendYield == 0 {
		dividendYield = DefaultDividendYield
	}
	return &Calculator{riskFreeRate: riskFreeRate, dividendYield: dividendYield}
}

// TimeToExpiry returns the year fraction from now until 16:00 ET on the
// expiration date. Negative values mean the series has expired.
func TimeToExpiry(expiration string, now time.Time) (float64, error) {
	expiry, err := markethours.ExpiryInstant(expiration)
	if err != nil {
		return 0, err
	}
	return expiry.Sub(now).Seconds() / secondsPerYear, nil
}

// Compute returns the greeks for an option given spot, strike, year
// fraction to expiry and implied volatility.
//
// Expired options collapse to intrinsic delta (strictly in the money) and
// zero for everything else. Degenerate inputs (non-positive spot, strike
// or vol) produce all zeros rather than NaN.
func (c *Calculator) Compute(spot, strike, years, iv float64, isCall bool) Greeks {
	if years <= 0 {
		return expiredGreeks(spot, strike, isCall)
	}
	if spot <= 0 || strike <= 0 || iv <= 0 {
		return Greeks{}
	}
	if years < minYears {
		years = minYears
	}

	r := c.riskFreeRate
	q := c.dividendYield
	sqrtT := math.Sqrt(years)

	d1 := (math.Log(spot/strike) + (r-q+iv*iv/2)*years) / (iv * sqrtT)
	d2 := d1 - iv*sqrtT

	pdfD1 := normPDF(d1)
	discQ := math.Exp(-q * years)
	discR := math.Exp(-r * years)

	var delta, theta, rho float64
	if isCall {
		delta = discQ * normCDF(d1)
		theta = (-spot*pdfD1*iv*discQ/(2*sqrtT) -
			r*strike*discR*normCDF(d2) +
			q*spot*discQ*normCDF(d1)) / 365.0
		rho = strike * years * discR * normCDF(d2) / 100.0
	} else {
		delta = -discQ * normCDF(-d1)
		theta = (-spot*pdfD1*iv*discQ/(2*sqrtT) +
			r*strike*discR*normCDF(-d2) -
			q*spot*discQ*normCDF(-d1)) / 365.0
		rho = -strike * years * discR * normCDF(-d2) / 100.0
	}

	gamma := pdfD1 * discQ / (spot * iv * sqrtT)
	vega := spot * discQ * pdfD1 * sqrtT / 100.0

	return Greeks{
		Delta: round6(delta),
		Gamma: round8(gamma),
		Theta: round6(theta),
		Vega:  round6(vega),
		Rho:   round6(rho),
	}
}

// ImpliedVol recovers the implied volatility of an option price by
// bisection on [0.0001, 5.0]. Returns 0 when the price cannot be
// bracketed (stale or crossed quotes).
func (c *Calculator) ImpliedVol(price, spot, strike, years float64, isCall bool) float64 {
	if price <= 0 || spot <= 0 || strike <= 0 || years <= 0 {
		return 0
	}
	if years < minYears {
		years = minYears
	}

	lo, hi := 0.0001, 5.0
	fLo := c.price(spot, strike, years, lo, isCall) - price
	fHi := c.price(spot, strike, years, hi, isCall) - price
	if fLo*fHi > 0 {
		return 0
	}

	for i := 0; i < 100; i++ {
		mid := (lo + hi) / 2
		fMid := c.price(spot, strike, years, mid, isCall) - price
		if math.Abs(fMid) < 1e-6 {
			return round6(mid)
		}
		if fLo*fMid < 0 {
			hi = mid
		} else {
			lo, fLo = mid, fMid
		}
	}
	return round6((lo + hi) / 2)
}

// price is the Black-Scholes value used by the implied vol solver.
func (c *Calculator) price(spot, strike, years, iv float64, isCall bool) float64 {
	sqrtT := math.Sqrt(years)
	d1 := (math.Log(spot/strike) + (c.riskFreeRate-c.dividendYield+iv*iv/2)*years) / (iv * sqrtT)
	d2 := d1 - iv*sqrtT

	discQ := math.Exp(-c.dividendYield * years)
	discR := math.Exp(-c.riskFreeRate * years)

	if isCall {
		return spot*discQ*normCDF(d1) - strike*discR*normCDF(d2)
	}
	return strike*discR*normCDF(-d2) - spot*discQ*normCDF(-d1)
}

func expiredGreeks(spot, strike float64, isCall bool) Greeks {
	var delta float64
	if isCall && spot > strike {
		delta = 1.0
	} else if !isCall && spot < strike {
		delta = -1.0
	}
	return Greeks{Delta: delta}
}

// normCDF is the standard normal cumulative distribution function.
func normCDF(x float64) float64 {
	return 0.5 * (1 + math.Erf(x/math.Sqrt2))
}

// normPDF is the standard normal density.
func normPDF(x float64) float64 {
	return math.Exp(-x*x/2) / math.Sqrt(2*math.Pi)
}

func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}

func round8(v float64) float64 {
	return math.Round(v*1e8) / 1e8
}
