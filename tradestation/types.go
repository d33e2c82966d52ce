package tradestation

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"
)

// FlexFloat decodes TradeStation numeric fields, which arrive either as
// JSON numbers or as quoted strings depending on the endpoint.
type FlexFloat float64

func (f *FlexFloat) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(data, `"`)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		*f = 0
		return nil
	}
	*f = FlexFloat(v)
	return nil
}

// FlexInt decodes integer fields with the same string-or-number tolerance.
type FlexInt int64

func (i *FlexInt) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(data, `"`)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*i = 0
		return nil
	}
	v, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		// Volume occasionally arrives with a decimal point
		fv, ferr := strconv.ParseFloat(string(data), 64)
		if ferr != nil {
			*i = 0
			return nil
		}
		v = int64(fv)
	}
	*i = FlexInt(v)
	return nil
}

// Bar is one OHLCV bar from the barcharts endpoint
type Bar struct {
	Open        FlexFloat `json:"Open"`
	High        FlexFloat `json:"High"`
	Low         FlexFloat `json:"Low"`
	Close       FlexFloat `json:"Close"`
	TimeStamp   time.Time `json:"TimeStamp"`
	TotalVolume FlexInt   `json:"TotalVolume"`
	UpVolume    FlexInt   `json:"UpVolume"`
	DownVolume  FlexInt   `json:"DownVolume"`
	IsRealtime  bool      `json:"IsRealtime"`
}

type barchartResponse struct {
	Bars []Bar `json:"Bars"`
}

type expirationsResponse struct {
	Expirations []struct {
		Date time.Time `json:"Date"`
		Type string    `json:"Type"`
	} `json:"Expirations"`
}

type strikesResponse struct {
	Strikes [][]string `json:"Strikes"`
}

// Leg identifies one contract inside a chain quote frame
type Leg struct {
	Symbol         string    `json:"Symbol"`
	StrikePrice    FlexFloat `json:"StrikePrice"`
	ExpirationDate time.Time `json:"ExpirationDate"`
	OptionType     string    `json:"OptionType"` // Call, Put
}

// QuoteFrame is one option quote from the chain stream. Greeks and
// implied volatility are the vendor's own model values.
type QuoteFrame struct {
	Legs              []Leg     `json:"Legs"`
	Bid               FlexFloat `json:"Bid"`
	Ask               FlexFloat `json:"Ask"`
	Mid               FlexFloat `json:"Mid"`
	Last              FlexFloat `json:"Last"`
	Volume            FlexInt   `json:"Volume"`
	DailyOpenInterest FlexInt   `json:"DailyOpenInterest"`
	ImpliedVolatility FlexFloat `json:"ImpliedVolatility"`
	Delta             FlexFloat `json:"Delta"`
	Gamma             FlexFloat `json:"Gamma"`
	Theta             FlexFloat `json:"Theta"`
	Vega              FlexFloat `json:"Vega"`
	Rho               FlexFloat `json:"Rho"`
}

// StreamEvent is one decoded frame from the chain stream. Exactly one of
// Quote, Heartbeat or Err is meaningful.
type StreamEvent struct {
	Quote     *QuoteFrame
	Heartbeat bool
	Err       error
}

// classifyFrame decodes a single newline-delimited stream line.
// Unknown frame shapes return (nil-event, false) and are skipped.
func classifyFrame(line []byte) (StreamEvent, bool) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(line, &probe); err != nil {
		return StreamEvent{}, false
	}

	if _, ok := probe["Heartbeat"]; ok {
		return StreamEvent{Heartbeat: true}, true
	}

	if raw, ok := probe["Error"]; ok {
		var msg string
		_ = json.Unmarshal(raw, &msg)
		return StreamEvent{Err: &StreamError{Message: msg}}, true
	}

	if _, ok := probe["Legs"]; ok {
		var quote QuoteFrame
		if err := json.Unmarshal(line, &quote); err != nil {
			return StreamEvent{}, false
		}
		if len(quote.Legs) == 0 {
			return StreamEvent{}, false
		}
		return StreamEvent{Quote: &quote}, true
	}

	return StreamEvent{}, false
}

// StreamError is an error frame delivered in-band by the vendor
type StreamError struct {
	Message string
}

func (e *StreamError) Error() string {
	return "stream error frame: " + e.Message
}
