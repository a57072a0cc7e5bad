package event

import (
	"encoding/json"
	"fmt"
)

// AggTrade mirrors a Binance USD-M futures aggTrade stream frame. Price and
// Quantity stay strings end to end: only a numeric consumer (the order-book
// replica, a metrics sink) should ever parse them, and each does so with the
// decimal library appropriate to what it's doing with the result.
type AggTrade struct {
	EventTime    int64  `json:"E"`
	AggTradeID   int64  `json:"a"`
	Symbol       string `json:"s"`
	Price        string `json:"p"`
	Quantity     string `json:"q"`
	TradeTime    int64  `json:"T"`
	IsBuyerMaker bool   `json:"m"`
}

// PriceLevel is one [price, quantity] pair out of a depth frame's bids or
// asks array, still in wire-string form.
type PriceLevel [2]string

// Price returns the level's price string.
func (l PriceLevel) Price() string { return l[0] }

// Quantity returns the level's quantity string.
func (l PriceLevel) Quantity() string { return l[1] }

// Depth mirrors a Binance USD-M futures depthUpdate stream frame. Field
// names follow the wire letters (U/u/pu) rather than spelling them out,
// matching how every Binance client in the wild names them.
type Depth struct {
	EventTime     int64        `json:"E"`
	TransactTime  int64        `json:"T"`
	Symbol        string       `json:"s"`
	FirstUpdateID int64        `json:"U"`
	LastUpdateID  int64        `json:"u"`
	PrevUpdateID  int64        `json:"pu"`
	Bids          []PriceLevel `json:"b"`
	Asks          []PriceLevel `json:"a"`
}

// KlineInner is the nested "k" object of a continuous_kline frame.
type KlineInner struct {
	StartTime           int64  `json:"t"`
	EndTime             int64  `json:"T"`
	Interval            string `json:"i"`
	FirstTradeID        int64  `json:"f"`
	LastTradeID         int64  `json:"L"`
	Open                string `json:"o"`
	Close               string `json:"c"`
	High                string `json:"h"`
	Low                 string `json:"l"`
	Volume              string `json:"v"`
	TradeCount          int64  `json:"n"`
	IsFinal             bool   `json:"x"`
	QuoteAssetVolume    string `json:"q"`
	TakerBuyBaseVolume  string `json:"V"`
	TakerBuyQuoteVolume string `json:"Q"`
}

// Kline mirrors a Binance USD-M futures continuous_kline stream frame.
type Kline struct {
	EventTime    int64      `json:"E"`
	Pair         string     `json:"ps"`
	ContractType string     `json:"ct"`
	K            KlineInner `json:"k"`
}

// Decode inspects raw's "e" field and unmarshals it into the matching
// concrete record. The returned Kind is KindUnknown (with a nil payload) for
// any frame this system doesn't consume (mark price, liquidation, etc.) —
// that is not a decode error, just out-of-scope traffic the caller should
// silently skip.
func Decode(raw []byte) (Kind, any, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return KindUnknown, nil, fmt.Errorf("event: peek discriminator: %w", err)
	}
	var e string
	if v, ok := fields["e"]; ok {
		if err := json.Unmarshal(v, &e); err != nil {
			return KindUnknown, nil, fmt.Errorf("event: peek discriminator: %w", err)
		}
	}

	// encoding/json falls back to case-insensitive key matching, so the "e"
	// discriminator would otherwise land in each record's "E" event-time
	// field. Strip it before decoding the record.
	delete(fields, "e")
	raw, err := json.Marshal(fields)
	if err != nil {
		return KindUnknown, nil, fmt.Errorf("event: peek discriminator: %w", err)
	}

	kind := kindFromWire(e)
	switch kind {
	case KindAggTrade:
		var rec AggTrade
		if err := json.Unmarshal(raw, &rec); err != nil {
			return KindUnknown, nil, fmt.Errorf("event: decode aggTrade: %w", err)
		}
		return KindAggTrade, rec, nil
	case KindDepth:
		var rec Depth
		if err := json.Unmarshal(raw, &rec); err != nil {
			return KindUnknown, nil, fmt.Errorf("event: decode depthUpdate: %w", err)
		}
		return KindDepth, rec, nil
	case KindKline:
		var rec Kline
		if err := json.Unmarshal(raw, &rec); err != nil {
			return KindUnknown, nil, fmt.Errorf("event: decode continuous_kline: %w", err)
		}
		return KindKline, rec, nil
	default:
		return KindUnknown, nil, nil
	}
}
