package greeks

import (
	"math"
	"testing"
	"time"
)

func TestComputeATMNearExpiry(t *testing.T) {
	calc := NewCalculator(0.045, 0.013)

	// 30 minutes of clock time left, clamped internally to one hour
	g := calc.Compute(500, 500, 0.5/(365.25*24), 0.20, true)

	if g.Delta < 0.40 || g.Delta > 0.65 {
		t.Errorf("ATM call delta = %v, want near 0.5", g.Delta)
	}
	if g.Gamma <= 0 {
		t.Errorf("ATM gamma = %v, want > 0", g.Gamma)
	}
	if g.Theta >= 0 {
		t.Errorf("ATM theta = %v, want < 0", g.Theta)
	}
}

func TestPutCallDeltaParity(t *testing.T) {
	calc := NewCalculator(0.045, 0.013)

	tests := []struct {
		name   string
		spot   float64
		strike float64
		years  float64
		iv     float64
	}{
		{"atm one month", 500, 500, 1.0 / 12, 0.20},
		{"itm call", 520, 500, 0.25, 0.30},
		{"otm call", 480, 500, 0.1, 0.15},
		{"long dated", 500, 510, 1.0, 0.25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			call := calc.Compute(tt.spot, tt.strike, tt.years, tt.iv, true)
			put := calc.Compute(tt.spot, tt.strike, tt.years, tt.iv, false)

			want := math.Exp(-0.013 * tt.years)
			got := call.Delta - put.Delta
			if math.Abs(got-want) > 1e-4 {
				t.Errorf("delta_call - delta_put = %v, want %v", got, want)
			}

			if math.Abs(call.Gamma-put.Gamma) > 1e-8 {
				t.Errorf("gamma differs between call (%v) and put (%v)", call.Gamma, put.Gamma)
			}
			if math.Abs(call.Vega-put.Vega) > 1e-6 {
				t.Errorf("vega differs between call (%v) and put (%v)", call.Vega, put.Vega)
			}
		})
	}
}

func TestComputeExpired(t *testing.T) {
	calc := NewCalculator(0, 0)

	tests := []struct {
		name      string
		spot      float64
		strike    float64
		isCall    bool
		wantDelta float64
	}{
		{"itm call", 110, 100, true, 1},
		{"otm call", 90, 100, true, 0},
		{"atm call not strictly itm", 100, 100, true, 0},
		{"itm put", 90, 100, false, -1},
		{"otm put", 110, 100, false, 0},
		{"atm put not strictly itm", 100, 100, false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := calc.Compute(tt.spot, tt.strike, -0.001, 0.2, tt.isCall)
			if g.Delta != tt.wantDelta {
				t.Errorf("delta = %v, want %v", g.Delta, tt.wantDelta)
			}
			if g.Gamma != 0 || g.Theta != 0 || g.Vega != 0 || g.Rho != 0 {
				t.Errorf("expired option has non-zero higher greeks: %+v", g)
			}
		})
	}
}

func TestComputeDegenerateInputs(t *testing.T) {
	calc := NewCalculator(0, 0)

	tests := []struct {
		name   string
		spot   float64
		strike float64
		iv     float64
	}{
		{"zero spot", 0, 100, 0.2},
		{"zero strike", 100, 0, 0.2},
		{"zero vol", 100, 100, 0},
		{"negative vol", 100, 100, -0.2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := calc.Compute(tt.spot, tt.strike, 0.1, tt.iv, true)
			if g != (Greeks{}) {
				t.Errorf("got %+v, want all zeros", g)
			}
		})
	}
}

func TestComputeRounding(t *testing.T) {
	calc := NewCalculator(0.045, 0.013)
	g := calc.Compute(500, 495, 0.05, 0.22, true)

	if g.Delta != math.Round(g.Delta*1e6)/1e6 {
		t.Errorf("delta %v not rounded to 6 decimals", g.Delta)
	}
	if g.Gamma != math.Round(g.Gamma*1e8)/1e8 {
		t.Errorf("gamma %v not rounded to 8 decimals", g.Gamma)
	}
}

func TestImpliedVolRoundTrip(t *testing.T) {
	calc := NewCalculator(0.045, 0.013)

	spot, strike, years, iv := 500.0, 505.0, 0.1, 0.27
	price := calc.price(spot, strike, years, iv, true)

	got := calc.ImpliedVol(price, spot, strike, years, true)
	if math.Abs(got-iv) > 1e-3 {
		t.Errorf("implied vol = %v, want %v", got, iv)
	}
}

func TestImpliedVolUnbracketable(t *testing.T) {
	calc := NewCalculator(0.045, 0.013)

	// Price below intrinsic floor cannot be matched by any vol
	if got := calc.ImpliedVol(0.0000001, 500, 100, 0.1, true); got != 0 {
		t.Errorf("implied vol = %v, want 0 for unbracketable price", got)
	}
	if got := calc.ImpliedVol(-1, 500, 500, 0.1, true); got != 0 {
		t.Errorf("implied vol = %v, want 0 for negative price", got)
	}
}

func TestTimeToExpiry(t *testing.T) {
	now := time.Date(2024, 1, 5, 15, 0, 0, 0, time.UTC) // 10:00 ET

	years, err := TimeToExpiry("2024-01-05", now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// 16:00 ET is 21:00 UTC on standard time: six hours out
	want := 6 * 3600.0 / (365.25 * 24 * 3600)
	if math.Abs(years-want) > 1e-9 {
		t.Errorf("years = %v, want %v", years, want)
	}

	if _, err := TimeToExpiry("bogus", now); err == nil {
		t.Error("expected error for malformed expiration")
	}
}
