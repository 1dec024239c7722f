package relay

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/chat-relay/relay/internal/nickname"
	"github.com/chat-relay/relay/internal/session"
	"github.com/google/uuid"
)

const guestAttempts = 8

type Options struct {
	// AutoNickname assigns a generated guest name at connect time instead of
	// waiting for SET_NICKNAME.
	AutoNickname bool
}

// Handler drives the per-connection protocol. Every callback runs under one
// mutex, so each one sees the registry exactly as the previous one left it.
type Handler struct {
	mu         sync.Mutex
	registry   *session.Registry
	policy     *nickname.Policy
	dispatcher *Dispatcher
	log        *slog.Logger
	opts       Options
	guestName  func() string
}

func NewHandler(registry *session.Registry, log *slog.Logger, opts Options) *Handler {
	return &Handler{
		registry:   registry,
		policy:     nickname.NewPolicy(registry),
		dispatcher: NewDispatcher(registry, log),
		log:        log,
		opts:       opts,
		guestName:  randomGuestName,
	}
}

func (h *Handler) Registry() *session.Registry {
	return h.registry
}

// Connect registers conn and greets it.
func (h *Handler) Connect(conn session.Conn) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	s, err := h.registry.Register(conn)
	if err != nil {
		return fmt.Errorf("register: %w", err)
	}
	h.log.Info("client connected", "session", s.ID)
	h.dispatcher.Unicast(conn, NewSystemEvent(welcomeText))

	if h.opts.AutoNickname {
		h.assignGuestName(conn, s)
	}
	return nil
}

// Receive handles one inbound text frame from conn.
func (h *Handler) Receive(conn session.Conn, data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	s, ok := h.registry.Get(conn)
	if !ok {
		h.log.Debug("message from unregistered connection dropped")
		return
	}

	req, err := Decode(data)
	if err != nil {
		var derr *DecodeError
		if errors.As(err, &derr) {
			h.log.Warn("discarding inbound message", "session", s.ID, "type", derr.Type, "err", derr.Err)
		}
		return
	}

	switch req := req.(type) {
	case SetNicknameRequest:
		h.setNickname(conn, s, req.Nickname)
	case ChatRequest:
		h.chat(conn, s, req)
	case TypingRequest:
		h.typing(conn, s, req.Type)
	}
}

// Disconnect removes conn. A departure is announced only when the session had
// a display name. Calling it twice is harmless.
func (h *Handler) Disconnect(conn session.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	s, ok := h.registry.Remove(conn)
	if !ok {
		return
	}
	h.log.Info("client disconnected", "session", s.ID, "nickname", s.DisplayName)

	if !s.HasName() {
		return
	}
	h.dispatcher.Broadcast(NewSystemEvent(leaveText(s.DisplayName)), nil)
	h.broadcastUserList()
}

func (h *Handler) setNickname(conn session.Conn, s *session.Session, requested string) {
	name, err := h.policy.Validate(requested)
	if err != nil {
		h.log.Info("nickname rejected", "session", s.ID, "err", err)
		h.dispatcher.Unicast(conn, NewSystemEvent(rejectionText(err)))
		return
	}
	h.applyNickname(conn, s, name)
}

func (h *Handler) applyNickname(conn session.Conn, s *session.Session, name string) {
	previous := s.DisplayName
	if err := h.registry.SetDisplayName(conn, name); err != nil {
		h.log.Error("set nickname", "session", s.ID, "err", err)
		return
	}
	h.log.Info("nickname set", "session", s.ID, "nickname", name, "previous", previous)

	h.dispatcher.Unicast(conn, NewConfirmationEvent(confirmationText(name), name))
	if previous == "" {
		h.dispatcher.Broadcast(NewSystemEvent(joinText(name)), conn)
	} else {
		h.dispatcher.Broadcast(NewSystemEvent(renameText(previous, name)), conn)
	}
	h.broadcastUserList()
}

func (h *Handler) chat(conn session.Conn, s *session.Session, req ChatRequest) {
	if !s.HasName() || req.Message == nil {
		return
	}
	body := strings.TrimSpace(*req.Message)
	if body == "" {
		return
	}
	h.dispatcher.Broadcast(NewChatEvent(s.DisplayName, body), conn)
}

func (h *Handler) typing(conn session.Conn, s *session.Session, t MessageType) {
	if !s.HasName() {
		return
	}
	h.dispatcher.Broadcast(NewTypingEvent(t, s.DisplayName), conn)
}

func (h *Handler) broadcastUserList() {
	h.dispatcher.Broadcast(NewUserListEvent(h.registry.ListDisplayNames()), nil)
}

func (h *Handler) assignGuestName(conn session.Conn, s *session.Session) {
	for i := 0; i < guestAttempts; i++ {
		name, err := h.policy.Validate(h.guestName())
		if err != nil {
			continue
		}
		h.applyNickname(conn, s, name)
		return
	}
	h.log.Warn("could not assign guest nickname", "session", s.ID)
}

func randomGuestName() string {
	return "访客" + strings.ToUpper(uuid.NewString()[:4])
}
