package feed

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"papertrade/market"
	"papertrade/metrics"
	"papertrade/model"
	"papertrade/protocol"
)

var ErrAlreadyStarted = errors.New("broadcaster already started")

// Fanout delivers one message to every connection.
type Fanout interface {
	Broadcast(msg protocol.Message) int
}

// Sink receives every tick after it has been broadcast.
type Sink interface {
	Name() string
	Publish(ctx context.Context, updates map[string]model.PriceUpdate, at time.Time) error
}

type State int

const (
	Idle State = iota
	Armed
)

func (s State) String() string {
	if s == Armed {
		return "armed"
	}
	return "idle"
}

// Broadcaster runs the price tick on a fixed schedule.
type Broadcaster struct {
	market   *market.Market
	sim      *market.Simulator
	fanout   Fanout
	clock    market.Clock
	interval time.Duration
	sinks    []Sink
	logger   *zap.Logger
	metrics  *metrics.Metrics

	mu   sync.Mutex
	cron *cron.Cron
}

func NewBroadcaster(m *market.Market, sim *market.Simulator, fanout Fanout, interval time.Duration, logger *zap.Logger, mt *metrics.Metrics) *Broadcaster {
	if mt == nil {
		mt = metrics.New()
	}
	return &Broadcaster{
		market:   m,
		sim:      sim,
		fanout:   fanout,
		clock:    market.RealClock{},
		interval: interval,
		logger:   logger.Named("feed"),
		metrics:  mt,
	}
}

// WithClock replaces the clock used for message timestamps.
func (b *Broadcaster) WithClock(c market.Clock) *Broadcaster {
	b.clock = c
	return b
}

func (b *Broadcaster) AddSink(s Sink) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sinks = append(b.sinks, s)
}

func (b *Broadcaster) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cron != nil {
		return Armed
	}
	return Idle
}

// Start arms the schedule. Ticks never overlap: a tick still running when
// the next one is due causes that one to be skipped.
func (b *Broadcaster) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cron != nil {
		return ErrAlreadyStarted
	}

	cronLog := cron.PrintfLogger(zap.NewStdLog(b.logger))
	c := cron.New(cron.WithLogger(cronLog), cron.WithChain(cron.SkipIfStillRunning(cronLog)))
	c.Schedule(cron.Every(b.interval), cron.FuncJob(func() { b.Tick(ctx) }))
	c.Start()
	b.cron = c

	b.logger.Info("Price broadcast started", zap.Duration("interval", b.interval))
	return nil
}

// Stop disarms the schedule and waits for a running tick to finish.
func (b *Broadcaster) Stop() {
	b.mu.Lock()
	c := b.cron
	b.cron = nil
	b.mu.Unlock()

	if c == nil {
		return
	}
	<-c.Stop().Done()
	b.logger.Info("Price broadcast stopped")
}

// Tick advances the market once, broadcasts the result and feeds the sinks.
// It returns the number of connections the update reached.
func (b *Broadcaster) Tick(ctx context.Context) int {
	start := time.Now()

	updates := b.market.Step(b.sim)
	at := b.clock.Now()
	delivered := b.fanout.Broadcast(protocol.PriceUpdate(updates, at))

	b.mu.Lock()
	sinks := append([]Sink(nil), b.sinks...)
	b.mu.Unlock()

	for _, s := range sinks {
		if err := s.Publish(ctx, updates, at); err != nil {
			b.metrics.SinkErrors.WithLabelValues(s.Name()).Inc()
			b.logger.Warn("Sink publish failed", zap.String("sink", s.Name()), zap.Error(err))
		}
	}

	b.metrics.Ticks.Inc()
	b.metrics.TickDuration.Observe(time.Since(start).Seconds())
	b.logger.Debug("Tick", zap.Int("symbols", len(updates)), zap.Int("delivered", delivered))
	return delivered
}
