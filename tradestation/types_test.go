package tradestation

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestFlexFloatUnmarshal(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want FlexFloat
	}{
		{"number", `1.25`, 1.25},
		{"quoted number", `"1.25"`, 1.25},
		{"negative quoted", `"-0.5"`, -0.5},
		{"null", `null`, 0},
		{"empty string", `""`, 0},
		{"garbage", `"NaN junk"`, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var f FlexFloat
			if err := json.Unmarshal([]byte(tt.in), &f); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if f != tt.want {
				t.Errorf("got %v, want %v", f, tt.want)
			}
		})
	}
}

func TestFlexIntUnmarshal(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want FlexInt
	}{
		{"number", `42`, 42},
		{"quoted number", `"42"`, 42},
		{"decimal volume truncates", `"42.0"`, 42},
		{"null", `null`, 0},
		{"garbage", `"n/a"`, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var i FlexInt
			if err := json.Unmarshal([]byte(tt.in), &i); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if i != tt.want {
				t.Errorf("got %v, want %v", i, tt.want)
			}
		})
	}
}

func TestClassifyFrame(t *testing.T) {
	t.Run("heartbeat", func(t *testing.T) {
		event, ok := classifyFrame([]byte(`{"Heartbeat":12,"Timestamp":"2024-01-03T15:00:00Z"}`))
		if !ok || !event.Heartbeat {
			t.Errorf("got (%+v, %v), want heartbeat event", event, ok)
		}
	})

	t.Run("error frame", func(t *testing.T) {
		event, ok := classifyFrame([]byte(`{"Error":"GoAway","Message":"stream closing"}`))
		if !ok || event.Err == nil {
			t.Fatalf("got (%+v, %v), want error event", event, ok)
		}
		var streamErr *StreamError
		if !errors.As(event.Err, &streamErr) {
			t.Errorf("error type = %T, want *StreamError", event.Err)
		}
	})

	t.Run("quote", func(t *testing.T) {
		line := []byte(`{
			"Legs":[{"Symbol":"SPY 240105C500","StrikePrice":"500","ExpirationDate":"2024-01-05T00:00:00Z","OptionType":"Call"}],
			"Bid":"1.90","Ask":"2.10","Mid":"2.00","Last":2.05,
			"Volume":"150","DailyOpenInterest":"1200",
			"ImpliedVolatility":"0.22","Delta":"0.55","Gamma":"0.021"
		}`)
		event, ok := classifyFrame(line)
		if !ok || event.Quote == nil {
			t.Fatalf("got (%+v, %v), want quote event", event, ok)
		}
		q := event.Quote
		if q.Legs[0].StrikePrice != 500 || q.Legs[0].OptionType != "Call" {
			t.Errorf("leg = %+v", q.Legs[0])
		}
		if q.Bid != 1.90 || q.Ask != 2.10 || q.Last != 2.05 {
			t.Errorf("prices = %v/%v/%v", q.Bid, q.Ask, q.Last)
		}
		if q.Volume != 150 || q.DailyOpenInterest != 1200 {
			t.Errorf("volume/oi = %v/%v", q.Volume, q.DailyOpenInterest)
		}
	})

	t.Run("skipped shapes", func(t *testing.T) {
		for _, line := range []string{
			`not json at all`,
			`{"Something":"else"}`,
			`{"Legs":[]}`,
		} {
			if _, ok := classifyFrame([]byte(line)); ok {
				t.Errorf("classifyFrame(%q) accepted, want skip", line)
			}
		}
	})
}
