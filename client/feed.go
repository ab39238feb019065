package client

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"papertrade/protocol"
)

const DefaultReconnectDelay = 2 * time.Second

// Feed follows the server's price feed. A dropped connection is redialed
// after a fixed delay for as long as the context lives.
type Feed struct {
	url    string
	header http.Header
	delay  time.Duration
	dialer *websocket.Dialer
	logger *zap.Logger
}

func NewFeed(url string, header http.Header, delay time.Duration, logger *zap.Logger) *Feed {
	if delay <= 0 {
		delay = DefaultReconnectDelay
	}
	return &Feed{
		url:    url,
		header: header,
		delay:  delay,
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		logger: logger.Named("feed"),
	}
}

// Run delivers every decoded message to handle until ctx is cancelled.
// handle runs on the read goroutine, one message at a time.
func (f *Feed) Run(ctx context.Context, handle func(protocol.Message)) error {
	for {
		err := f.runOnce(ctx, handle)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		f.logger.Warn("Feed disconnected", zap.Error(err), zap.Duration("retry_in", f.delay))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(f.delay):
		}
	}
}

func (f *Feed) runOnce(ctx context.Context, handle func(protocol.Message)) error {
	conn, _, err := f.dialer.DialContext(ctx, f.url, f.header)
	if err != nil {
		return errors.Wrap(err, "dial")
	}
	defer conn.Close()
	f.logger.Info("Feed connected", zap.String("url", f.url))

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return errors.Wrap(err, "read")
		}

		var msg protocol.Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			f.logger.Warn("Dropping malformed frame", zap.Int("bytes", len(raw)), zap.Error(err))
			continue
		}
		handle(msg)
	}
}
