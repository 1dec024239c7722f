package relay

import (
	"encoding/json"
	"log/slog"

	"github.com/chat-relay/relay/internal/session"
)

// Dispatcher serializes events and hands them to connections. Delivery is
// best effort: a failed send is logged and never reported to the caller.
type Dispatcher struct {
	registry *session.Registry
	log      *slog.Logger
}

func NewDispatcher(registry *session.Registry, log *slog.Logger) *Dispatcher {
	return &Dispatcher{registry: registry, log: log}
}

// Broadcast sends ev to every registered connection except exclude, which may
// be nil. It returns the number of connections the frame was handed to.
func (d *Dispatcher) Broadcast(ev Event, exclude session.Conn) int {
	data, err := json.Marshal(ev)
	if err != nil {
		d.log.Error("broadcast marshal error", "type", ev.EventType(), "err", err)
		return 0
	}

	sent := 0
	for _, conn := range d.registry.AllConns() {
		if exclude != nil && conn == exclude {
			continue
		}
		if d.deliver(conn, data, ev.EventType()) {
			sent++
		}
	}
	return sent
}

// Unicast sends ev to a single connection.
func (d *Dispatcher) Unicast(conn session.Conn, ev Event) bool {
	data, err := json.Marshal(ev)
	if err != nil {
		d.log.Error("unicast marshal error", "type", ev.EventType(), "err", err)
		return false
	}
	return d.deliver(conn, data, ev.EventType())
}

func (d *Dispatcher) deliver(conn session.Conn, data []byte, t MessageType) bool {
	if !conn.Open() {
		return false
	}
	if err := conn.Send(data); err != nil {
		d.log.Debug("send failed", "type", t, "err", err)
		return false
	}
	return true
}
