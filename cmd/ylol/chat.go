package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ylol-app/ylol/internal/app/conversation"
	"github.com/ylol-app/ylol/internal/domain"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat in the terminal",
	Long: `Chat opens the conversation in the terminal. Type a message and press
enter; replies arrive bubble by bubble.

Commands:
  /mode <supportive|challenging>  switch mode (starts a new session)
  /continue                       keep going on a resumed session
  /flush                          save messages now
  /quit                           save and exit`,
	RunE: runChat,
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, nil)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	states, cancel := a.conv.Subscribe()
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		render(out, states)
	}()

	a.conv.Initialize(ctx)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(cmd.InOrStdin())
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case line, ok := <-lines:
			if !ok {
				break loop
			}
			if quit := handleLine(ctx, out, a.conv, line); quit {
				break loop
			}
		}
	}

	sctx, scancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer scancel()
	err = a.shutdown(sctx)
	<-done
	return err
}

func handleLine(ctx context.Context, out io.Writer, conv *conversation.Conversation, line string) bool {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "/") {
		if line != "" && !conv.Submit(ctx, line, nil) {
			fmt.Fprintln(out, "  (hold on, y is still replying)")
		}
		return false
	}

	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit", "/exit":
		return true
	case "/flush":
		if !conv.Flush(ctx) {
			fmt.Fprintln(out, "  (nothing to save)")
		}
	case "/continue":
		conv.ContinueAfterResume()
	case "/mode":
		if len(fields) < 2 {
			fmt.Fprintln(out, "  usage: /mode <supportive|challenging>")
			return false
		}
		mode, err := domain.ParseMode(fields[1])
		if err != nil {
			fmt.Fprintf(out, "  %v\n", err)
			return false
		}
		if _, err := conv.SwitchMode(mode); err != nil {
			fmt.Fprintf(out, "  %v\n", err)
		}
	default:
		fmt.Fprintf(out, "  unknown command %s\n", fields[0])
	}
	return false
}

// render prints messages as they appear, plus typing and error lines.
func render(out io.Writer, states <-chan conversation.State) {
	var (
		printed  = map[domain.MessageID]bool{}
		previews = map[domain.MessageID]bool{}
		mode     domain.Mode
		typing   bool
		banner   string
	)
	for st := range states {
		if st.Phase == conversation.PhaseLoading {
			continue
		}
		if st.ActiveMode != mode {
			mode = st.ActiveMode
			fmt.Fprintf(out, "── %s mode ──\n", mode)
		}
		for _, m := range st.Messages {
			if !printed[m.ID] {
				printed[m.ID] = true
				if m.Author == domain.AuthorAssistant {
					fmt.Fprintf(out, "y  %s  %s\n", m.CreatedAt.Local().Format(time.Kitchen), m.Content)
				}
			}
			if m.Preview != nil && !previews[m.ID] {
				previews[m.ID] = true
				fmt.Fprintf(out, "   ↳ %s (%s)\n", m.Preview.Title, m.Preview.SiteName)
			}
		}
		if st.IsDelivering && !typing {
			fmt.Fprintln(out, "   y is typing…")
		}
		typing = st.IsDelivering
		if st.ErrorMessage != "" && st.ErrorMessage != banner {
			fmt.Fprintf(out, "!! %s\n", st.ErrorMessage)
		}
		banner = st.ErrorMessage
	}
}
