package events

import (
	"context"
	"fmt"
	"net/url"
	"sync/atomic"

	"github.com/vk/zgoubigo/internal/ctxlog"
	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"
)

// EmitEventName is the event name run notifications are emitted under.
const EmitEventName = "zgoubigo:run"

// SocketIOSink forwards lifecycle events to a socket.io endpoint over
// websocket. Delivery is best effort: events published before the
// connection is up, or after it drops, are logged and dropped.
type SocketIOSink struct {
	io        *socket.Socket
	connected atomic.Bool
}

// NewSocketIOSink connects to rawURL (path and namespace taken from the
// URL) and returns a sink emitting on EmitEventName.
func NewSocketIOSink(ctx context.Context, rawURL string) (*SocketIOSink, error) {
	logger := ctxlog.FromContext(ctx).With("sink", "socketio", "url", rawURL)

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("events: parse endpoint: %w", err)
	}
	baseURL := fmt.Sprintf("%s://%s", parsed.Scheme, parsed.Host)

	opts := socket.DefaultOptions()
	if parsed.Path != "" {
		opts.SetPath(parsed.Path)
	}
	opts.SetTransports(types.NewSet(transports.WebSocket))

	manager := socket.NewManager(baseURL, opts)
	io := manager.Socket(parsed.Fragment, opts)

	s := &SocketIOSink{io: io}
	io.On(types.EventName("connect"), func(...any) {
		s.connected.Store(true)
		logger.Info("Event sink connected.", "sid", io.Id())
	})
	io.On(types.EventName("disconnect"), func(...any) {
		s.connected.Store(false)
		logger.Warn("Event sink disconnected.")
	})
	io.On(types.EventName("connect_error"), func(errs ...any) {
		logger.Warn("Event sink connection error.", "error", errs)
	})
	io.Connect()
	return s, nil
}

// Publish emits one event. Unsent events are logged, never retried.
func (s *SocketIOSink) Publish(ctx context.Context, event Event) {
	if !s.connected.Load() {
		ctxlog.FromContext(ctx).Debug("Dropping event, sink not connected.",
			"type", string(event.Type), "assignment", event.Assignment)
		return
	}
	payload := map[string]any{
		"type":       string(event.Type),
		"assignment": event.Assignment,
		"dir":        event.Dir,
		"time":       event.Time.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	}
	if event.Error != "" {
		payload["error"] = event.Error
	}
	if err := s.io.Emit(EmitEventName, payload); err != nil {
		ctxlog.FromContext(ctx).Warn("Failed to emit event.", "error", err)
	}
}

// Close disconnects from the endpoint.
func (s *SocketIOSink) Close() error {
	s.io.Disconnect()
	return nil
}
