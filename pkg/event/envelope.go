package event

// Envelope is the unit of transport pushed through the ring and delivered to
// dispatcher handlers. IngressMicros is stamped by the market agent the
// moment the frame is read off the socket, before decode — it is the
// system's own receipt time, not anything the exchange reports.
type Envelope struct {
	Kind          Kind
	IngressMicros int64
	Payload       any
}

// AggTrade type-asserts Payload, for handlers registered on KindAggTrade.
func (e Envelope) AggTrade() (AggTrade, bool) {
	v, ok := e.Payload.(AggTrade)
	return v, ok
}

// Depth type-asserts Payload, for handlers registered on KindDepth.
func (e Envelope) Depth() (Depth, bool) {
	v, ok := e.Payload.(Depth)
	return v, ok
}

// Kline type-asserts Payload, for handlers registered on KindKline.
func (e Envelope) Kline() (Kline, bool) {
	v, ok := e.Payload.(Kline)
	return v, ok
}
