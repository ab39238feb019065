package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"papertrade/alerts"
	"papertrade/model"
	"papertrade/protocol"
)

// AlertAPI is the part of the REST API the watcher needs.
type AlertAPI interface {
	Alerts(ctx context.Context) ([]model.Alert, error)
	MarkTriggered(ctx context.Context, id string) (model.Alert, error)
}

// Notifier surfaces a fired alert to the user.
type Notifier interface {
	Notify(alert model.Alert)
}

type NotifierFunc func(model.Alert)

func (f NotifierFunc) Notify(alert model.Alert) { f(alert) }

// LogNotifier writes fired alerts to the log.
type LogNotifier struct {
	Logger *zap.Logger
}

func (n LogNotifier) Notify(alert model.Alert) {
	n.Logger.Info(Describe(alert),
		zap.String("alert", alert.ID),
		zap.String("symbol", alert.Symbol))
}

// Describe renders an alert the way the notification banner shows it.
func Describe(alert model.Alert) string {
	return fmt.Sprintf("%s hit $%g (%s)", alert.Symbol, alert.TargetPrice, alert.Condition)
}

// Watcher evaluates the user's alerts against every price update. A fired
// alert is reported to the server in the background and surfaced through the
// notifier right away.
type Watcher struct {
	api      AlertAPI
	notifier Notifier
	eval     *alerts.Evaluator
	cache    *PriceCache
	logger   *zap.Logger
	timeout  time.Duration

	wg sync.WaitGroup
}

func NewWatcher(api AlertAPI, notifier Notifier, logger *zap.Logger) *Watcher {
	return &Watcher{
		api:      api,
		notifier: notifier,
		eval:     alerts.NewEvaluator(),
		cache:    NewPriceCache(),
		logger:   logger.Named("watcher"),
		timeout:  10 * time.Second,
	}
}

func (w *Watcher) Prices() *PriceCache { return w.cache }

func (w *Watcher) Evaluator() *alerts.Evaluator { return w.eval }

// Refresh reloads the alert set from the server.
func (w *Watcher) Refresh(ctx context.Context) error {
	list, err := w.api.Alerts(ctx)
	if err != nil {
		return err
	}
	w.eval.SetAlerts(list)
	w.logger.Debug("Alerts loaded", zap.Int("total", len(list)), zap.Int("armed", w.eval.Armed()))
	return nil
}

// Handle processes one feed message.
func (w *Watcher) Handle(ctx context.Context, msg protocol.Message) {
	switch msg.Type {
	case protocol.TypeConnection:
		w.logger.Info("Feed acknowledged", zap.String("message", msg.Message))
		// Catch up on anything that changed while disconnected.
		w.background(func() {
			if err := w.Refresh(ctx); err != nil {
				w.logger.Warn("Failed to refresh alerts", zap.Error(err))
			}
		})

	case protocol.TypePriceUpdate:
		w.cache.Apply(msg.Data)
		// Symbols missing from this update still count at their last known price.
		for _, alert := range w.eval.Evaluate(w.cache.Prices()) {
			w.fire(ctx, alert)
		}

	case protocol.TypeAlertTriggered:
		if msg.Alert != nil {
			w.logger.Info("Server reported trigger",
				zap.String("alert", msg.Alert.ID), zap.String("symbol", msg.Alert.Symbol))
		}

	default:
		w.logger.Debug("Ignoring message", zap.String("type", msg.Type))
	}
}

func (w *Watcher) fire(ctx context.Context, alert model.Alert) {
	w.notifier.Notify(alert)

	w.background(func() {
		pctx, cancel := context.WithTimeout(ctx, w.timeout)
		defer cancel()
		if _, err := w.api.MarkTriggered(pctx, alert.ID); err != nil {
			w.logger.Warn("Failed to report trigger", zap.String("alert", alert.ID), zap.Error(err))
			return
		}
		if err := w.Refresh(ctx); err != nil {
			w.logger.Warn("Failed to refresh alerts", zap.Error(err))
		}
	})
}

func (w *Watcher) background(fn func()) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		fn()
	}()
}

// Wait blocks until background reports and refreshes have finished.
func (w *Watcher) Wait() {
	w.wg.Wait()
}

// Run loads the alert set and follows feed until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context, feed *Feed) error {
	if err := w.Refresh(ctx); err != nil {
		return err
	}
	defer w.Wait()
	return feed.Run(ctx, func(msg protocol.Message) {
		w.Handle(ctx, msg)
	})
}
