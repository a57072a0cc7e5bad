package event

import "testing"

// Literal AggTrade decode scenario: a realistic BTCUSDT aggTrade frame must
// decode to exactly the fields present on the wire, with Price/Quantity
// kept as strings.
func TestDecodeAggTrade(t *testing.T) {
	raw := []byte(`{
		"e":"aggTrade","E":1672531200123,"a":5933014,"s":"BTCUSDT",
		"p":"16542.10","q":"0.014","T":1672531200100,"m":true
	}`)

	kind, payload, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if kind != KindAggTrade {
		t.Fatalf("kind = %v, want KindAggTrade", kind)
	}

	trade, ok := payload.(AggTrade)
	if !ok {
		t.Fatalf("payload type = %T, want AggTrade", payload)
	}

	want := AggTrade{
		EventTime:    1672531200123,
		AggTradeID:   5933014,
		Symbol:       "BTCUSDT",
		Price:        "16542.10",
		Quantity:     "0.014",
		TradeTime:    1672531200100,
		IsBuyerMaker: true,
	}
	if trade != want {
		t.Fatalf("trade = %+v, want %+v", trade, want)
	}
}

func TestDecodeDepth(t *testing.T) {
	raw := []byte(`{
		"e":"depthUpdate","E":1672531200200,"T":1672531200190,"s":"BTCUSDT",
		"U":157,"u":160,"pu":156,
		"b":[["16540.00","1.500"],["16539.50","0"]],
		"a":[["16542.50","0.800"]]
	}`)

	kind, payload, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if kind != KindDepth {
		t.Fatalf("kind = %v, want KindDepth", kind)
	}

	d, ok := payload.(Depth)
	if !ok {
		t.Fatalf("payload type = %T, want Depth", payload)
	}
	if d.FirstUpdateID != 157 || d.LastUpdateID != 160 || d.PrevUpdateID != 156 {
		t.Fatalf("sequence fields = %+v", d)
	}
	if len(d.Bids) != 2 || d.Bids[1].Quantity() != "0" {
		t.Fatalf("bids = %+v", d.Bids)
	}
	if len(d.Asks) != 1 || d.Asks[0].Price() != "16542.50" {
		t.Fatalf("asks = %+v", d.Asks)
	}
}

func TestDecodeKline(t *testing.T) {
	raw := []byte(`{
		"e":"continuous_kline","E":1672531260000,"ps":"BTCUSDT","ct":"PERPETUAL",
		"k":{"t":1672531200000,"T":1672531259999,"i":"1m","f":100,"L":120,
		"o":"16540.0","c":"16542.1","h":"16545.0","l":"16538.0","v":"12.500",
		"n":42,"x":true,"q":"206801.25","V":"6.200","Q":"102561.00"}
	}`)

	kind, payload, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if kind != KindKline {
		t.Fatalf("kind = %v, want KindKline", kind)
	}
	k, ok := payload.(Kline)
	if !ok {
		t.Fatalf("payload type = %T, want Kline", payload)
	}
	if k.K.Interval != "1m" || !k.K.IsFinal || k.K.Close != "16542.1" {
		t.Fatalf("kline inner = %+v", k.K)
	}
}

func TestDecodeUnknownKindIsNotAnError(t *testing.T) {
	raw := []byte(`{"e":"markPriceUpdate","E":1,"s":"BTCUSDT","p":"1"}`)

	kind, payload, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if kind != KindUnknown || payload != nil {
		t.Fatalf("kind = %v, payload = %v, want KindUnknown/nil", kind, payload)
	}
}

func TestDecodeMalformedJSONIsAnError(t *testing.T) {
	if _, _, err := Decode([]byte(`{"e":`)); err == nil {
		t.Fatal("expected error for malformed JSON")
	}
}
