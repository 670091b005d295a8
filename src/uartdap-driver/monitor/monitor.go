// Package monitor fans decoded dap.Event values out to any number of
// live WebSocket subscribers (a debug dashboard, a recorder) over a
// pubsub broker.
package monitor

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cskr/pubsub"
	"github.com/denisbrodbeck/machineid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/uartdap/driver/src/uartdap-driver/dap"
	"github.com/uartdap/driver/src/uartdap-driver/util"
)

// Topic is the pubsub topic decoded events and status updates are
// published to.
const Topic = "uartdap-events"

// Status reports which device path the session is currently bound to, or
// a nil Address while disconnected.
type Status struct {
	Address *string
}

// Handle is a long-lived event broker plus its HTTP/WebSocket front end.
type Handle struct {
	broker    *pubsub.PubSub
	log       *logrus.Entry
	sessionID string
}

// New returns a Handle whose broker buffers up to 32 messages per
// subscriber.
func New(log *logrus.Entry) *Handle {
	id, err := machineid.ProtectedID("uartdap-driver")
	if err != nil {
		log.WithError(err).Debug("could not determine machine id")
		id = "unknown"
	}

	return &Handle{
		broker:    pubsub.New(32),
		log:       log,
		sessionID: id,
	}
}

// Publish fans event out to every current subscriber. It never blocks: a
// slow or absent subscriber simply misses events.
func (h *Handle) Publish(event dap.Event) {
	h.broker.TryPub(event, Topic)
}

// PublishConnected announces that the session is now bound to path.
func (h *Handle) PublishConnected(path string) {
	h.broker.TryPub(Status{Address: util.PointerTo(path)}, Topic)
}

// PublishDisconnected announces that the session is no longer bound to a
// device.
func (h *Handle) PublishDisconnected() {
	h.broker.TryPub(Status{Address: nil}, Topic)
}

// Shutdown tears down the broker; call once the owning session ends.
func (h *Handle) Shutdown() {
	h.broker.Shutdown()
}

// wireEvent is the JSON shape streamed to WebSocket clients.
type wireEvent struct {
	Type    string `json:"type"`
	Address string `json:"address"`
	Data    string `json:"data"`
}

func toWireEvent(event dap.Event) wireEvent {
	kind := "Read"
	if event.Kind == dap.KindWrite {
		kind = "Write"
	}
	return wireEvent{
		Type:    kind,
		Address: fmt.Sprintf("0x%x", event.Address),
		Data:    fmt.Sprintf("0x%x", event.Data),
	}
}

// wireStatus is the JSON shape of a Status update.
type wireStatus struct {
	Type    string  `json:"type"`
	Address *string `json:"address"`
}

func toWireStatus(status Status) wireStatus {
	return wireStatus{Type: "Status", Address: status.Address}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ServeHTTP upgrades to a WebSocket and streams every subsequently
// published Event or Status as JSON until the client disconnects.
func (h *Handle) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := h.log.WithFields(logrus.Fields{
		"clientAddress": r.RemoteAddr,
		"sessionID":     h.sessionID,
	})

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Error("could not upgrade connection to WebSocket")
		http.Error(w, "WebSocket upgrade error", http.StatusBadRequest)
		return
	}
	log.Info("monitor connection opened")

	var writeMutex sync.Mutex
	rx := h.broker.Sub(Topic)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := range rx {
			var payload interface{}
			switch v := i.(type) {
			case dap.Event:
				payload = toWireEvent(v)
			case Status:
				payload = toWireStatus(v)
			default:
				continue
			}

			writeMutex.Lock()
			conn.SetWriteDeadline(time.Now().Add(50 * time.Millisecond))
			err := conn.WriteJSON(payload)
			writeMutex.Unlock()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.WithError(err).Error("WebSocket write error")
				}
				return
			}
		}
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.WithError(err).Error("WebSocket read error")
			}
			break
		}
	}

	h.broker.Unsub(rx)
	conn.Close()
	<-done
	log.Info("monitor connection closed")
}
