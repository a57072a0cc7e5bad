// Package runtime wires together the streaming client, the market agent, the
// dispatcher, and one order-book replica per registered symbol (§4.6). It
// owns the lifecycle: StartService connects and launches the background goroutines,
// Stop cancels them and waits for a clean exit.
//
// Grounded on the teacher's internal/engine/engine.go orchestrator: a single
// owning struct, a context/cancel pair, a sync.WaitGroup tracking every
// background goroutine, and a blocking Stop that cancels first and waits
// second.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/eborlee/ingestd/internal/agent"
	"github.com/eborlee/ingestd/internal/book"
	"github.com/eborlee/ingestd/internal/config"
	"github.com/eborlee/ingestd/internal/dispatcher"
	"github.com/eborlee/ingestd/internal/exchange"
	"github.com/eborlee/ingestd/pkg/event"
)

// consumeIdleSleep bounds how long the consumer loop waits before polling
// the ring again when it last found nothing queued.
const consumeIdleSleep = time.Millisecond

// gapFlapWindow is how close together two gaps on the same symbol have to be
// before the GapMonitor escalates its log level.
const gapFlapWindow = time.Minute

// Runtime is the control surface named in spec.md §6: Subscribe,
// RegisterEventCallback, RegisterBook, StartService.
type Runtime struct {
	cfg      config.VenueConfig
	client   *exchange.StreamClient
	snapshot *exchange.SnapshotClient
	gapMon   *book.GapMonitor
	logger   *slog.Logger

	d        *dispatcher.Dispatcher
	producer *dispatcher.Producer
	consumer *dispatcher.Consumer
	agent    *agent.Agent

	booksMu sync.RWMutex
	books   map[string]*book.Book

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs a Runtime from cfg. No network I/O happens until StartService.
func New(cfg *config.Config, logger *slog.Logger) *Runtime {
	logger = logger.With("component", "runtime")
	return &Runtime{
		cfg:      cfg.Venue,
		client:   exchange.NewStreamClient(cfg.Venue.StreamBaseURL, exchange.DefaultDialer, logger),
		snapshot: exchange.NewSnapshotClient(cfg.Venue.RESTBaseURL, cfg.Venue.RESTTimeout, logger),
		gapMon:   book.NewGapMonitor(gapFlapWindow, logger),
		logger:   logger,
		d:        dispatcher.New(cfg.Ring.Capacity),
		books:    make(map[string]*book.Book),
	}
}

// RegisterEventCallback registers fn against kind. Must be called before
// StartService; handler registration is closed once the dispatcher is split.
func (r *Runtime) RegisterEventCallback(kind event.Kind, fn dispatcher.HandlerFunc) error {
	return r.d.Register(kind, fn)
}

// RegisterBook creates an order-book replica for symbol and wires a depth
// handler that feeds it. The replica is bootstrapped from a REST snapshot
// when StartService runs. Must be called before StartService.
func (r *Runtime) RegisterBook(symbol string) (*book.Book, error) {
	symbol = strings.ToUpper(symbol)

	r.booksMu.Lock()
	defer r.booksMu.Unlock()
	if _, exists := r.books[symbol]; exists {
		return nil, fmt.Errorf("runtime: book for %s already registered", symbol)
	}

	b := book.New(symbol)
	if err := r.d.Register(event.KindDepth, r.depthHandler(b, symbol)); err != nil {
		return nil, fmt.Errorf("runtime: register book handler for %s: %w", symbol, err)
	}
	r.books[symbol] = b
	return b, nil
}

// depthHandler routes only the depth updates for symbol into b, reporting
// any gap to the gap monitor. The book itself never attempts repair (§7); a
// gapped book stays stuck until the runtime's owner rebuilds it.
func (r *Runtime) depthHandler(b *book.Book, symbol string) dispatcher.HandlerFunc {
	return func(env event.Envelope) {
		d, ok := env.Depth()
		if !ok || !strings.EqualFold(d.Symbol, symbol) {
			return
		}
		if err := b.PushUpdate(env); err != nil {
			r.gapMon.ReportGap(symbol, err)
		}
	}
}

// Subscribe adds streams to the live connection. Only valid after StartService.
func (r *Runtime) Subscribe(ctx context.Context, streams []string) error {
	if r.agent == nil {
		return fmt.Errorf("runtime: Subscribe called before StartService")
	}
	return r.agent.Subscribe(ctx, streams)
}

// StartService bootstraps every registered book from its REST snapshot,
// connects the streaming client to every configured and book-implied stream,
// and launches the consumer and read-loop goroutines. It returns once the
// initial connection succeeds; the background goroutines keep running until
// Stop is called or ctx is cancelled.
func (r *Runtime) StartService(ctx context.Context) error {
	r.ctx, r.cancel = context.WithCancel(ctx)

	streams := r.initialStreams()

	if err := r.bootstrapBooks(r.ctx); err != nil {
		return err
	}

	r.producer, r.consumer = r.d.Split()
	r.agent = agent.New(r.client, r.producer, r.logger)

	if err := r.client.Connect(r.ctx, streams); err != nil {
		return fmt.Errorf("runtime: connect: %w", err)
	}

	r.wg.Add(2)
	go func() {
		defer r.wg.Done()
		r.consumeLoop(r.ctx)
	}()
	go func() {
		defer r.wg.Done()
		if err := r.agent.Start(r.ctx); err != nil && r.ctx.Err() == nil {
			r.logger.Error("agent stopped", "error", err)
		}
	}()

	return nil
}

// Stop cancels every background goroutine and waits for them to exit.
func (r *Runtime) Stop() {
	if r.cancel == nil {
		return
	}
	r.logger.Info("shutting down")
	r.cancel()
	r.wg.Wait()
	r.logger.Info("shutdown complete")
}

// initialStreams combines the configured raw stream list with a depth stream
// for every registered book's symbol.
func (r *Runtime) initialStreams() []string {
	streams := append([]string(nil), r.cfg.Streams...)

	r.booksMu.RLock()
	defer r.booksMu.RUnlock()
	for symbol := range r.books {
		streams = append(streams, strings.ToLower(symbol)+"@depth")
	}
	return streams
}

// bootstrapBooks fetches a REST snapshot for every registered book and
// initializes it, concurrently, before the live connection opens. A failed
// bootstrap is fatal: a depth stream with no initialized replica behind it
// can never pass the straddle check.
func (r *Runtime) bootstrapBooks(ctx context.Context) error {
	r.booksMu.RLock()
	books := make([]*book.Book, 0, len(r.books))
	for _, b := range r.books {
		books = append(books, b)
	}
	r.booksMu.RUnlock()

	if len(books) == 0 {
		return nil
	}

	errs := make(chan error, len(books))
	var wg sync.WaitGroup
	for _, b := range books {
		wg.Add(1)
		go func(b *book.Book) {
			defer wg.Done()
			errs <- r.bootstrapBook(ctx, b)
		}(b)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *Runtime) bootstrapBook(ctx context.Context, b *book.Book) error {
	snap, err := r.snapshot.Fetch(ctx, b.Symbol(), r.cfg.SnapshotLimit)
	if err != nil {
		return fmt.Errorf("runtime: bootstrap %s: %w", b.Symbol(), err)
	}

	bids := make([]event.PriceLevel, len(snap.Bids))
	for i, lvl := range snap.Bids {
		bids[i] = event.PriceLevel{lvl[0], lvl[1]}
	}
	asks := make([]event.PriceLevel, len(snap.Asks))
	for i, lvl := range snap.Asks {
		asks[i] = event.PriceLevel{lvl[0], lvl[1]}
	}

	if err := b.Initialize(book.Snapshot{LastUpdateID: snap.LastUpdateID, Bids: bids, Asks: asks}); err != nil {
		return fmt.Errorf("runtime: bootstrap %s: %w", b.Symbol(), err)
	}
	return nil
}

// consumeLoop drains the dispatcher's consumer half until ctx is cancelled,
// sleeping briefly whenever it finds nothing queued rather than busy-spinning.
func (r *Runtime) consumeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if n := r.consumer.Process(); n == 0 {
			time.Sleep(consumeIdleSleep)
		}
	}
}
