package protocol

import (
	"encoding/json"
	"time"

	"papertrade/model"
)

const (
	TypeConnection     = "connection"
	TypePriceUpdate    = "price_update"
	TypeAlertTriggered = "alert_triggered"
)

const ConnectedMessage = "Connected to price feed"

// TimestampLayout matches JavaScript's Date.prototype.toISOString.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// Message is every server to client frame. Which fields are set depends on Type.
type Message struct {
	Type      string                       `json:"type"`
	Message   string                       `json:"message,omitempty"`
	Data      map[string]model.PriceUpdate `json:"data,omitempty"`
	Timestamp string                       `json:"timestamp,omitempty"`
	Alert     *model.Alert                 `json:"alert,omitempty"`
}

// MarshalJSON keeps "data" on every price_update, even an empty one.
func (m Message) MarshalJSON() ([]byte, error) {
	type plain Message
	if m.Type != TypePriceUpdate {
		return json.Marshal(plain(m))
	}
	data := m.Data
	if data == nil {
		data = map[string]model.PriceUpdate{}
	}
	return json.Marshal(struct {
		plain
		Data map[string]model.PriceUpdate `json:"data"`
	}{plain(m), data})
}

func Connected() Message {
	return Message{Type: TypeConnection, Message: ConnectedMessage}
}

func PriceUpdate(data map[string]model.PriceUpdate, at time.Time) Message {
	return Message{
		Type:      TypePriceUpdate,
		Data:      data,
		Timestamp: at.UTC().Format(TimestampLayout),
	}
}

func AlertTriggered(alert model.Alert) Message {
	return Message{Type: TypeAlertTriggered, Alert: &alert}
}

// Prices flattens a price_update payload to symbol -> price.
func (m Message) Prices() map[string]float64 {
	out := make(map[string]float64, len(m.Data))
	for sym, u := range m.Data {
		out[sym] = u.Price
	}
	return out
}
