// supervisor.go adds an observability layer over gap reports across many
// symbols' books. It is deliberately not a kill switch: §7 requires a gap
// to be reported fatally and the replica rebuilt by its owner, never
// auto-repaired. GapMonitor only escalates how loudly a flapping symbol is
// logged; it never touches a Book itself.
//
// Grounded on the teacher's risk.Manager rolling-window price-movement
// detector (checkPriceMovement): the same "reset the anchor if it's stale,
// otherwise compare against it" shape, applied to gap timestamps instead of
// prices.
package book

import (
	"log/slog"
	"sync"
	"time"
)

// GapMonitor tracks how often each symbol's replica reports a gap within a
// trailing window and logs at an escalating level if a symbol flaps (more
// than one gap within the window).
type GapMonitor struct {
	window time.Duration
	logger *slog.Logger
	now    func() time.Time

	mu   sync.Mutex
	last map[string]time.Time
}

// NewGapMonitor creates a monitor that considers two gaps on the same
// symbol within window to be a flap.
func NewGapMonitor(window time.Duration, logger *slog.Logger) *GapMonitor {
	return &GapMonitor{
		window: window,
		logger: logger.With("component", "gap_monitor"),
		now:    time.Now,
		last:   make(map[string]time.Time),
	}
}

// ReportGap records a gap for symbol and logs it, escalating to Error if
// the same symbol gapped again within the trailing window.
func (m *GapMonitor) ReportGap(symbol string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	prev, seen := m.last[symbol]
	m.last[symbol] = now

	if seen && now.Sub(prev) <= m.window {
		m.logger.Error("order book gap: symbol flapping, replica repeatedly diverging",
			"symbol", symbol,
			"since_last_gap", now.Sub(prev),
			"error", err,
		)
		return
	}

	m.logger.Warn("order book gap: replica must be reinitialized",
		"symbol", symbol,
		"error", err,
	)
}
