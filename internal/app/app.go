package app

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/chat-relay/relay/internal/client"
	"github.com/chat-relay/relay/internal/theme"
	"github.com/chat-relay/relay/internal/views/status"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/harmonica"
	"github.com/charmbracelet/lipgloss"
)

const (
	maxEntries   = 500
	sidebarWidth = 20
	scrollFPS    = 60
)

type entryKind int

const (
	entrySystem entryKind = iota
	entryChat
	entrySelf
	entryError
)

type entry struct {
	kind   entryKind
	sender string
	text   string
}

type scrollTickMsg struct{}

// Options configures the root model.
type Options struct {
	// Nickname is requested on every (re)connect until the server accepts one.
	Nickname string
	// MarkdownStyle is a glamour standard style ("dark", "light", "notty").
	// Empty disables markdown rendering of chat bodies.
	MarkdownStyle string
}

// Model is the root Bubble Tea model.
type Model struct {
	ws     *client.WSClient
	ctx    context.Context
	cancel context.CancelFunc
	opts   Options

	keys   KeyMap
	width  int
	height int

	input    textinput.Model
	viewport viewport.Model
	renderer *glamour.TermRenderer

	entries  []entry
	users    []string
	typers   map[string]bool
	nickname string

	// Spring-animated scroll to the newest line.
	spring       harmonica.Spring
	scrollPos    float64
	scrollVel    float64
	scrollTarget float64
	animating    bool

	statusBar  status.Model
	connected  bool
	typingSent bool
}

// New creates the root model.
func New(ws *client.WSClient, opts Options) Model {
	ctx, cancel := context.WithCancel(context.Background())

	input := textinput.New()
	input.Placeholder = "Type a message, or /nick NAME"
	input.CharLimit = 2000
	input.Focus()

	m := Model{
		ws:        ws,
		ctx:       ctx,
		cancel:    cancel,
		opts:      opts,
		keys:      DefaultKeyMap(),
		input:     input,
		viewport:  viewport.New(80, 20),
		typers:    make(map[string]bool),
		spring:    harmonica.NewSpring(harmonica.FPS(scrollFPS), 8.0, 1.0),
		statusBar: status.New(),
	}
	m.renderer = newRenderer(opts.MarkdownStyle, m.viewport.Width)
	return m
}

func newRenderer(style string, width int) *glamour.TermRenderer {
	if style == "" {
		return nil
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(max(width-4, 10)),
	)
	if err != nil {
		return nil
	}
	return r
}

// Init starts the WebSocket connection.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.ws.Listen(m.ctx))
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.layout()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case scrollTickMsg:
		return m, m.stepScroll()

	case client.WSConnectedMsg:
		m.connected = true
		m.statusBar.Connected = true
		cmds := []tea.Cmd{m.ws.ReadLoop(m.ctx)}
		if nick := m.wantedNickname(); nick != "" {
			cmds = append(cmds, m.ws.SetNickname(nick))
		}
		return m, tea.Batch(cmds...)

	case client.WSDisconnectedMsg:
		m.connected = false
		m.statusBar.Connected = false
		// The server forgets us on disconnect; ask for the same name again.
		if m.nickname != "" {
			m.opts.Nickname = m.nickname
		}
		m.nickname = ""
		m.statusBar.Nickname = ""
		m.users = nil
		m.statusBar.Online = 0
		m.typers = make(map[string]bool)
		m.typingSent = false
		return m, m.ws.Listen(m.ctx)

	case client.WSSystemMsg:
		if msg.Nickname != "" {
			m.nickname = msg.Nickname
			m.statusBar.Nickname = msg.Nickname
		}
		return m, tea.Batch(m.appendEntry(entry{kind: entrySystem, text: msg.Text}), m.ws.ReadLoop(m.ctx))

	case client.WSChatMsg:
		delete(m.typers, msg.Sender)
		return m, tea.Batch(m.appendEntry(entry{kind: entryChat, sender: msg.Sender, text: msg.Text}), m.ws.ReadLoop(m.ctx))

	case client.WSTypingMsg:
		if msg.Typing {
			m.typers[msg.Sender] = true
		} else {
			delete(m.typers, msg.Sender)
		}
		return m, m.ws.ReadLoop(m.ctx)

	case client.WSUserListMsg:
		m.users = msg.Users
		m.statusBar.Online = len(msg.Users)
		online := make(map[string]bool, len(msg.Users))
		for _, u := range msg.Users {
			online[u] = true
		}
		for name := range m.typers {
			if !online[name] {
				delete(m.typers, name)
			}
		}
		return m, m.ws.ReadLoop(m.ctx)

	case client.WSSendResultMsg:
		if msg.Err != nil {
			return m, m.appendEntry(entry{kind: entryError, text: "send failed: " + msg.Err.Error()})
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) wantedNickname() string {
	if m.nickname != "" {
		return m.nickname
	}
	return m.opts.Nickname
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.cancel()
		return m, tea.Quit

	case key.Matches(msg, m.keys.Send):
		return m.submit()

	case key.Matches(msg, m.keys.Clear):
		m.input.SetValue("")
		return m, m.syncTyping()

	case key.Matches(msg, m.keys.PageUp):
		m.viewport.HalfViewUp()
		m.stopScroll()
		return m, nil

	case key.Matches(msg, m.keys.PageDown):
		m.viewport.HalfViewDown()
		m.stopScroll()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, tea.Batch(cmd, m.syncTyping())
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(m.input.Value())
	m.input.SetValue("")
	cmds := []tea.Cmd{m.syncTyping()}

	switch {
	case text == "":
	case text == "/quit":
		m.cancel()
		return m, tea.Quit
	case text == "/nick" || strings.HasPrefix(text, "/nick "):
		name := strings.TrimSpace(strings.TrimPrefix(text, "/nick"))
		if name == "" {
			cmds = append(cmds, m.appendEntry(entry{kind: entryError, text: "usage: /nick NAME"}))
			break
		}
		m.opts.Nickname = name
		cmds = append(cmds, m.ws.SetNickname(name))
	case m.nickname == "":
		cmds = append(cmds, m.appendEntry(entry{kind: entryError, text: "set a nickname first: /nick NAME"}))
	default:
		// The server never echoes our own chat back, so show it locally.
		cmds = append(cmds, m.ws.Chat(text), m.appendEntry(entry{kind: entrySelf, sender: m.nickname, text: text}))
	}
	return m, tea.Batch(cmds...)
}

// syncTyping sends TYPING_START/STOP when the input flips between empty and
// non-empty. Anonymous clients are ignored by the server, so nothing is sent.
func (m *Model) syncTyping() tea.Cmd {
	active := strings.TrimSpace(m.input.Value()) != ""
	if active == m.typingSent || m.nickname == "" || !m.connected {
		return nil
	}
	m.typingSent = active
	return m.ws.Typing(active)
}

func (m *Model) appendEntry(e entry) tea.Cmd {
	follow := m.viewport.AtBottom() || m.animating
	m.entries = append(m.entries, e)
	if len(m.entries) > maxEntries {
		m.entries = m.entries[len(m.entries)-maxEntries:]
	}
	m.viewport.SetContent(m.renderEntries())
	if !follow {
		return nil
	}
	return m.scrollToBottom()
}

func (m *Model) scrollToBottom() tea.Cmd {
	m.scrollTarget = float64(m.maxOffset())
	if m.animating {
		return nil
	}
	m.scrollPos = float64(m.viewport.YOffset)
	m.animating = true
	return scrollTick()
}

func (m *Model) stepScroll() tea.Cmd {
	if !m.animating {
		return nil
	}
	m.scrollPos, m.scrollVel = m.spring.Update(m.scrollPos, m.scrollVel, m.scrollTarget)
	if math.Abs(m.scrollPos-m.scrollTarget) < 0.5 && math.Abs(m.scrollVel) < 0.5 {
		m.scrollPos = m.scrollTarget
		m.scrollVel = 0
		m.animating = false
	}
	m.viewport.SetYOffset(int(math.Round(m.scrollPos)))
	if !m.animating {
		return nil
	}
	return scrollTick()
}

func (m *Model) stopScroll() {
	m.animating = false
	m.scrollVel = 0
	m.scrollPos = float64(m.viewport.YOffset)
	m.scrollTarget = m.scrollPos
}

func scrollTick() tea.Cmd {
	return tea.Tick(time.Second/scrollFPS, func(time.Time) tea.Msg {
		return scrollTickMsg{}
	})
}

func (m Model) maxOffset() int {
	return max(m.viewport.TotalLineCount()-m.viewport.Height, 0)
}

func (m *Model) layout() {
	statusHeight := 3
	inputHeight := 3
	typingHeight := 1
	helpHeight := 1
	chatWidth := max(m.width-sidebarWidth-4, 20)
	chatHeight := max(m.height-statusHeight-inputHeight-typingHeight-helpHeight-2, 3)

	m.viewport.Width = chatWidth
	m.viewport.Height = chatHeight
	m.input.Width = max(m.width-6, 10)
	m.statusBar.Width = m.width
	m.renderer = newRenderer(m.opts.MarkdownStyle, chatWidth)
	m.viewport.SetContent(m.renderEntries())
	m.viewport.GotoBottom()
	m.stopScroll()
}

func (m Model) renderEntries() string {
	lines := make([]string, 0, len(m.entries))
	for _, e := range m.entries {
		lines = append(lines, m.renderEntry(e))
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderEntry(e entry) string {
	switch e.kind {
	case entrySystem:
		return theme.StyleSystem.Render("* " + e.text)
	case entryError:
		return theme.StyleError.Render("! " + e.text)
	}

	name := lipgloss.NewStyle().Bold(true).Foreground(theme.SenderColor(e.sender)).Render(e.sender)
	if e.kind == entrySelf {
		name = theme.StyleSelf.Render(e.sender)
	}
	return name + ": " + m.renderBody(e.text)
}

func (m Model) renderBody(text string) string {
	if m.renderer == nil {
		return text
	}
	out, err := m.renderer.Render(text)
	if err != nil {
		return text
	}
	return strings.TrimSpace(out)
}

func (m Model) typingLine() string {
	if len(m.typers) == 0 {
		return ""
	}
	names := make([]string, 0, len(m.typers))
	for n := range m.typers {
		names = append(names, n)
	}
	sort.Strings(names)
	verb := " is typing…"
	if len(names) > 1 {
		verb = " are typing…"
	}
	return strings.Join(names, ", ") + verb
}

// View renders the full TUI.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	chat := theme.StyleBorder.Render(m.viewport.View())

	userLines := []string{theme.StyleHeader.Render("Online")}
	for _, u := range m.users {
		style := lipgloss.NewStyle().Foreground(theme.SenderColor(u))
		if u == m.nickname {
			style = theme.StyleSelf
		}
		userLines = append(userLines, style.Render(u))
	}
	sidebar := theme.StyleBorder.
		Width(sidebarWidth).
		Height(m.viewport.Height).
		Render(lipgloss.JoinVertical(lipgloss.Left, userLines...))

	sections := []string{
		m.statusBar.View(),
		lipgloss.JoinHorizontal(lipgloss.Top, chat, sidebar),
		theme.StyleDimmed.Render(m.typingLine()),
		theme.StyleBorder.Render(m.input.View()),
		theme.StyleDimmed.Render("  enter:send  /nick NAME:set nickname  esc:clear  pgup/pgdn:scroll  ctrl+c:quit"),
	}

	if !m.connected {
		sections = append(sections, theme.StyleError.Render("  DISCONNECTED, reconnecting..."))
	}

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}
