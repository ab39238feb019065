package alerts

import (
	"sync"

	"papertrade/model"
)

// Evaluator checks armed alerts against incoming prices on the client side.
// It keeps a local fired flag per alert so one alert fires at most once for a
// given server state, even before the server has acknowledged the trigger.
type Evaluator struct {
	alerts     map[string][]model.Alert // map[symbol][]Alert
	fired      map[string]bool
	alertMutex sync.RWMutex
}

func NewEvaluator() *Evaluator {
	return &Evaluator{
		alerts: make(map[string][]model.Alert),
		fired:  make(map[string]bool),
	}
}

// SetAlerts replaces the owned alert set with the server's state. Fired flags
// survive only for alerts the server still reports as armed, which covers a
// trigger whose PATCH has not landed yet.
func (e *Evaluator) SetAlerts(alerts []model.Alert) {
	e.alertMutex.Lock()
	defer e.alertMutex.Unlock()

	newAlerts := make(map[string][]model.Alert)
	fired := make(map[string]bool)
	for _, alert := range alerts {
		newAlerts[alert.Symbol] = append(newAlerts[alert.Symbol], alert)
		if alert.Armed() && e.fired[alert.ID] {
			fired[alert.ID] = true
		}
	}
	e.alerts = newAlerts
	e.fired = fired
}

// Evaluate returns the alerts that fire for this set of prices. Returned
// copies are marked triggered and inactive.
func (e *Evaluator) Evaluate(prices map[string]float64) []model.Alert {
	e.alertMutex.Lock()
	defer e.alertMutex.Unlock()

	var triggered []model.Alert
	for symbol, price := range prices {
		for _, alert := range e.alerts[symbol] {
			if !alert.Armed() || e.fired[alert.ID] {
				continue
			}
			if !alert.Due(price) {
				continue
			}
			e.fired[alert.ID] = true
			alert.Triggered = true
			alert.IsActive = false
			triggered = append(triggered, alert)
		}
	}
	return triggered
}

func (e *Evaluator) Fired(id string) bool {
	e.alertMutex.RLock()
	defer e.alertMutex.RUnlock()
	return e.fired[id]
}

// Armed counts alerts still waiting to fire locally.
func (e *Evaluator) Armed() int {
	e.alertMutex.RLock()
	defer e.alertMutex.RUnlock()
	n := 0
	for _, list := range e.alerts {
		for _, a := range list {
			if a.Armed() && !e.fired[a.ID] {
				n++
			}
		}
	}
	return n
}
