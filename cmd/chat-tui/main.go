package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/chat-relay/relay/internal/app"
	"github.com/chat-relay/relay/internal/client"
	tea "github.com/charmbracelet/bubbletea"
)

func main() {
	wsURL := flag.String("url", "ws://127.0.0.1:8080/ws", "WebSocket URL of the chat relay")
	nick := flag.String("nick", "", "Nickname to request on connect")
	style := flag.String("style", "dark", "Markdown style for chat messages (dark, light, notty, or empty to disable)")
	logPath := flag.String("log", "", "Write client logs to this file")
	flag.Parse()

	// The alt screen owns the terminal, so logs go to a file or nowhere.
	log.SetOutput(io.Discard)
	if *logPath != "" {
		f, err := tea.LogToFile(*logPath, "chat-tui")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
	}

	ws := client.NewWSClient(*wsURL)
	defer ws.Close()

	m := app.New(ws, app.Options{Nickname: *nick, MarkdownStyle: *style})
	p := tea.NewProgram(m, tea.WithAltScreen())

	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
