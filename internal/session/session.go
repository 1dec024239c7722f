package session

import (
	"encoding/json"
	"time"
)

// Conn is the transport's handle for one live connection. The registry keeps
// it only as a map key and send target; the transport owns its lifetime.
type Conn interface {
	// Send queues a text frame. It must not block on network I/O.
	Send(data []byte) error
	// Open reports whether the transport still considers the connection open.
	Open() bool
}

type State int

const (
	Anonymous State = iota
	Named
	Closed
)

var stateNames = map[State]string{
	Anonymous: "anonymous",
	Named:     "named",
	Closed:    "closed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// Session is the per-connection state held by the Registry.
type Session struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"nickname,omitempty"`
	ConnectedAt time.Time `json:"connectedAt"`
	Conn        Conn      `json:"-"`
}

// State derives the protocol state from the session's fields. A session that
// is no longer in the registry is reported as Closed by the caller.
func (s *Session) State() State {
	if s.DisplayName == "" {
		return Anonymous
	}
	return Named
}

func (s *Session) HasName() bool {
	return s.DisplayName != ""
}
