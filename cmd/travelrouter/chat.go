package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/scttfrdmn/travelrouter/adapter/transport"
	"github.com/scttfrdmn/travelrouter/session"
)

var chatServer string

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat (default)",
	Long: `Start an interactive chat. Follow-up questions such as "what about from SFO?"
reuse the routes and flights of earlier questions in the same chat.

With --server the chat talks to a running travelrouter over WebSocket instead of
answering locally.`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVar(&chatServer, "server", "", "WebSocket URL of a running server, e.g. ws://localhost:8080/ws")
}

// asker answers one chat line and remembers the conversation between calls.
type asker interface {
	ask(ctx context.Context, query string) (string, error)
}

type localAsker struct {
	assistant *session.Assistant
	sessionID string
}

func (l *localAsker) ask(ctx context.Context, query string) (string, error) {
	out, err := l.assistant.Ask(ctx, l.sessionID, query)
	if err != nil {
		return "", err
	}
	l.sessionID = out.SessionID
	return out.Reply, nil
}

type remoteAsker struct {
	client *transport.WebSocketClient
}

func (r *remoteAsker) ask(ctx context.Context, query string) (string, error) {
	resp, err := r.client.Ask(ctx, query)
	if err != nil {
		return "", err
	}
	return resp.Response, nil
}

func runChat(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		color.Red("Error: %v\n", err)
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	var backend asker
	if chatServer != "" {
		client := transport.NewWebSocketClient(chatServer, transport.WebSocketOptions{})
		if err := client.Connect(ctx); err != nil {
			color.Red("Error: %v\n", err)
			return err
		}
		defer client.Close()
		backend = &remoteAsker{client: client}
	} else {
		a, err := newApp(ctx, cfg, logger)
		if err != nil {
			color.Red("Error: %v\n", err)
			return err
		}
		defer a.Close(context.Background())
		backend = &localAsker{assistant: a.assistant}
	}

	return chatLoop(ctx, backend, newChatInput(), cmd.OutOrStdout())
}

// chatInput is the line editor with persistent history.
type chatInput struct {
	line        *liner.State
	historyFile string
}

func newChatInput() *chatInput {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	in := &chatInput{line: line, historyFile: filepath.Join(dir, "travelrouter", "chat_history")}

	if f, err := os.Open(in.historyFile); err == nil {
		_, _ = line.ReadHistory(f)
		f.Close()
	}
	return in
}

func (c *chatInput) read(prompt string) (string, error) {
	input, err := c.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		c.line.AppendHistory(input)
	}
	return input, nil
}

// Close saves history and restores the terminal.
func (c *chatInput) Close() {
	if err := os.MkdirAll(filepath.Dir(c.historyFile), 0o700); err == nil {
		if f, err := os.OpenFile(c.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600); err == nil {
			_, _ = c.line.WriteHistory(f)
			f.Close()
		}
	}
	c.line.Close()
}

func printWelcome(w io.Writer) {
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)
	green := color.New(color.FgGreen)

	rule := strings.Repeat("=", 60)
	cyan.Fprintf(w, "\n%s\n%sSMART TRAVEL ASSISTANT\n%s\n", rule, strings.Repeat(" ", 15), rule)
	yellow.Fprintln(w, "\nWelcome to your Smart Travel Assistant!")
	yellow.Fprintln(w, "You can ask about:")
	yellow.Fprintln(w, "  1. Flight status - live information for a flight number (e.g., 'What is the status of flight AA123?')")
	yellow.Fprintln(w, "  2. Flight history - fares and delays between two airports (e.g., 'What is the most on time flight from JFK to LAX?')")
	green.Fprintln(w, "\nType 'exit' to quit the assistant.")
	fmt.Fprintln(w)
}

func isExit(input string) bool {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "exit", "quit", "bye":
		return true
	}
	return false
}

func chatLoop(ctx context.Context, backend asker, input *chatInput, out io.Writer) error {
	defer input.Close()

	yellow := color.New(color.FgYellow)
	magenta := color.New(color.FgMagenta)
	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)

	printWelcome(out)

	// Ctrl+C while a request runs cancels that request only.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)

	for {
		line, err := input.read("\nHow can I help you? ")
		if err != nil {
			if !errors.Is(err, liner.ErrPromptAborted) && !errors.Is(err, io.EOF) {
				return err
			}
			line = "exit"
		}

		if isExit(line) {
			yellow.Fprintln(out, "\nThank you for using Smart Travel Assistant. Goodbye!")
			return nil
		}
		if strings.TrimSpace(line) == "" {
			red.Fprintln(out, session.EmptyQueryReply)
			continue
		}

		magenta.Fprintln(out, "\nProcessing your request...")

		reqCtx, cancel := context.WithCancel(ctx)
		done := make(chan struct{})
		go func() {
			select {
			case <-sigs:
				cancel()
			case <-done:
			}
		}()

		reply, err := backend.ask(reqCtx, line)
		close(done)
		cancel()

		if err != nil {
			if errors.Is(err, context.Canceled) {
				yellow.Fprintln(out, "[Cancelled]")
				continue
			}
			red.Fprintf(out, "\nAn error occurred: %v\n", err)
			continue
		}

		green.Fprintln(out, "\nResult:")
		fmt.Fprintln(out, reply)
	}
}
