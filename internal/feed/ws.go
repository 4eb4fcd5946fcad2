package feed

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"karmastakes.app/stakes/internal/types"
)

const (
	replayPage   = 200
	writeTimeout = 10 * time.Second
	pingInterval = 30 * time.Second
)

// EventSource reads the persisted event log.
type EventSource interface {
	EventsAfter(ctx context.Context, after uint64, limit int) ([]types.Event, error)
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWS streams events as JSON text frames. With ?after=N the client first
// receives every logged event with a sequence number above N, then live
// events, without gaps or duplicates. A client that falls behind is
// disconnected and should reconnect with the last sequence number it saw.
func (h *Hub) ServeWS(source EventSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var (
			after  uint64
			replay bool
		)
		if v := r.URL.Query().Get("after"); v != "" {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				http.Error(w, "after must be an event sequence number", http.StatusBadRequest)
				return
			}
			after, replay = n, true
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.log.Warn("websocket upgrade failed", zap.Error(err))
			return
		}
		defer conn.Close()

		// Subscribe before reading the backlog so nothing committed in
		// between is missed; duplicates are dropped by sequence number.
		sub := h.Subscribe(DefaultBuffer)
		defer sub.Close()

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()
		go func() {
			defer cancel()
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		send := func(ev types.Event) error {
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			return conn.WriteJSON(ev)
		}

		last := after
		if replay {
			for {
				page, err := source.EventsAfter(ctx, last, replayPage)
				if err != nil {
					h.log.Error("replay events", zap.Error(err))
					return
				}
				for _, ev := range page {
					if err := send(ev); err != nil {
						return
					}
					last = ev.Seq
				}
				if len(page) < replayPage {
					break
				}
			}
		}

		ping := time.NewTicker(pingInterval)
		defer ping.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ping.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
					return
				}
			case ev, ok := <-sub.C:
				if !ok {
					_ = conn.WriteControl(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "subscriber fell behind"),
						time.Now().Add(writeTimeout))
					return
				}
				if ev.Seq <= last {
					continue
				}
				if err := send(ev); err != nil {
					return
				}
				last = ev.Seq
			}
		}
	}
}
