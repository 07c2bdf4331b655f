package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
)

const streamWriteTimeout = 10 * time.Second

// handleStateStream pushes every published snapshot to a WebSocket client,
// starting with the latest one. Clients only receive; anything they send
// is discarded.
func (g *Gateway) handleStateStream() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			g.logger.Error("websocket accept failed", "error", err)
			return
		}
		defer func() {
			_ = conn.Close(websocket.StatusInternalError, "unexpected close")
		}()

		ctx := conn.CloseRead(r.Context())
		snaps, unsubscribe := g.deps.Hub.Subscribe()
		defer unsubscribe()

		g.logger.Debug("state stream opened", "remote_addr", r.RemoteAddr)
		for {
			select {
			case <-ctx.Done():
				return
			case <-g.done:
				_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
				return
			case snap, ok := <-snaps:
				if !ok {
					return
				}
				data, err := json.Marshal(snap)
				if err != nil {
					g.logger.Error("encoding snapshot failed", "error", err)
					return
				}
				if err := write(ctx, conn, data); err != nil {
					g.logger.Debug("state stream closed", "remote_addr", r.RemoteAddr, "error", err)
					return
				}
			}
		}
	}
}

func write(ctx context.Context, conn *websocket.Conn, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, streamWriteTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, data)
}
