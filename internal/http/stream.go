package http

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/mitchellh/mapstructure"
	"go.uber.org/zap"

	"github.com/kjstillabower/daily-digest/internal/dashboard"
	"github.com/kjstillabower/daily-digest/internal/events"
	"github.com/kjstillabower/daily-digest/internal/observability"
)

// clientMessage is what the page script sends over its stream.
type clientMessage struct {
	Type   string `json:"type"`
	Region string `json:"region"`
	Query  string `json:"query"`
}

func decodeClientMessage(data []byte) (clientMessage, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return clientMessage{}, fmt.Errorf("parse message: %w", err)
	}
	var msg clientMessage
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &msg,
		TagName:          "json",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return clientMessage{}, err
	}
	if err := decoder.Decode(raw); err != nil {
		return clientMessage{}, fmt.Errorf("decode message: %w", err)
	}
	return msg, nil
}

// GetEvents handles GET /pages/{page}/ws. It upgrades to a WebSocket, pushes
// the page's region events and every background swap, and accepts trigger
// messages from the page.
func (h *Handler) GetEvents(w http.ResponseWriter, r *http.Request) {
	page, ok := h.lookupPage(w, r)
	if !ok {
		return
	}
	logger := h.requestLogger(r).With(zap.String("page_id", page.ID()))

	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()
	// Server read/write timeouts would otherwise cut the stream.
	_ = conn.SetDeadline(time.Time{})

	observability.WebSocketConnections.Inc()
	defer observability.WebSocketConnections.Dec()

	pageEvents, unsubscribePage := page.Subscribe()
	defer unsubscribePage()
	backgroundEvents, unsubscribeBackground := h.rotator.Subscribe()
	defer unsubscribeBackground()

	// Results that settled before the subscription existed would otherwise
	// never reach this connection.
	if err := h.writeResync(conn, page); err != nil {
		logger.Debug("websocket resync failed", zap.Error(err))
		return
	}

	done := make(chan struct{})
	go h.readTriggers(conn, page, logger, done)

	for {
		select {
		case <-done:
			return
		case ev, ok := <-pageEvents:
			if !ok {
				return
			}
			if err := writeEvent(conn, ev); err != nil {
				logger.Debug("websocket write failed", zap.Error(err))
				return
			}
		case ev, ok := <-backgroundEvents:
			if !ok {
				backgroundEvents = nil
				continue
			}
			if err := writeEvent(conn, ev); err != nil {
				logger.Debug("websocket write failed", zap.Error(err))
				return
			}
		}
	}
}

// readTriggers runs until the client goes away, then closes done.
func (h *Handler) readTriggers(conn net.Conn, page *dashboard.Page, logger *zap.Logger, done chan<- struct{}) {
	defer close(done)
	for {
		data, op, err := wsutil.ReadClientData(conn)
		if err != nil {
			return
		}
		if op != ws.OpText {
			continue
		}
		msg, err := decodeClientMessage(data)
		if err != nil {
			logger.Debug("ignoring malformed client message", zap.Error(err))
			continue
		}
		if msg.Type != "trigger" {
			continue
		}
		if _, err := page.Trigger(msg.Region, msg.Query); err != nil {
			logger.Warn("trigger from stream failed", zap.String("region", msg.Region), zap.Error(err))
		}
	}
}

// writeResync sends every region's current snapshot and the current background.
func (h *Handler) writeResync(conn net.Conn, page *dashboard.Page) error {
	for _, snap := range page.Snapshots() {
		if err := writeEvent(conn, snap.Event()); err != nil {
			return err
		}
	}
	return writeEvent(conn, h.rotator.Event())
}

func writeEvent(conn net.Conn, ev events.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return wsutil.WriteServerMessage(conn, ws.OpText, data)
}
