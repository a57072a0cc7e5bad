// Package agent implements the market agent (§4.4): a thin adapter that
// installs a message callback on a streaming client, decodes each text
// frame, stamps an ingress timestamp, and fires the resulting typed
// envelope into the dispatcher's producer half. It never blocks the
// streaming client's read loop — a decode failure just logs and drops the
// frame, a full ring logs and drops the envelope.
package agent

import (
	"context"
	"log/slog"
	"time"

	"github.com/eborlee/ingestd/internal/dispatcher"
	"github.com/eborlee/ingestd/internal/exchange"
	"github.com/eborlee/ingestd/pkg/event"
)

// Agent composes a streaming client and a dispatcher producer half. The
// streaming client's read loop is the sole caller of handleMessage, so the
// producer handle can be captured by closure with no aliasing and no
// shared mutable state between the two (§9).
type Agent struct {
	client   *exchange.StreamClient
	producer *dispatcher.Producer
	logger   *slog.Logger
	nowMicro func() int64
}

// New wires client's message callback to decode frames and fire them into
// producer. The callback is installed immediately; client must not have
// ListenLoop running yet.
func New(client *exchange.StreamClient, producer *dispatcher.Producer, logger *slog.Logger) *Agent {
	a := &Agent{
		client:   client,
		producer: producer,
		logger:   logger.With("component", "agent"),
		nowMicro: func() int64 { return time.Now().UnixMicro() },
	}
	client.SetMessageCallback(a.handleMessage)
	return a
}

// handleMessage is the streaming client's sole message callback. It must
// never block or panic: a single bad frame must never stall the stream.
func (a *Agent) handleMessage(data []byte) {
	ingress := a.nowMicro()

	kind, payload, err := event.Decode(data)
	if err != nil {
		a.logger.Warn("dropping unparseable frame", "error", err)
		return
	}
	if kind == event.KindUnknown {
		// Traffic outside this system's scope (markPriceUpdate, forceOrder,
		// ...); not a decode error, just nothing to fire.
		return
	}

	if !a.producer.Fire(kind, ingress, payload) {
		a.logger.Warn("ring full, dropping envelope", "kind", kind)
	}
}

// Subscribe forwards to the underlying streaming client.
func (a *Agent) Subscribe(ctx context.Context, streams []string) error {
	return a.client.Subscribe(ctx, streams)
}

// Start drives the streaming client's read loop to completion, i.e. until a
// fatal error (no remembered streams to reconnect with, or ctx cancelled).
func (a *Agent) Start(ctx context.Context) error {
	return a.client.ListenLoop(ctx)
}
