package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/tanpawarit/factory-copilot/agent/agents/orchestrator"
	contractx "github.com/tanpawarit/factory-copilot/agent/contract"
)

var (
	chatSessionID string
	chatMaxTools  int
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive session",
	Long: `Start an interactive session. Every line is one query in the same session.

Commands:
  /history [n]  show the last n messages (all when n is omitted)
  /reset        clear the session's messages and context
  /tools        list the available tools
  /quit         leave the session`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		sessionID := strings.TrimSpace(chatSessionID)
		if sessionID == "" {
			sessionID = uuid.NewString()
		}
		return runChat(cmd.Context(), app.Orchestrator, cmd.InOrStdin(), cmd.OutOrStdout(), sessionID, chatMaxTools)
	},
}

func init() {
	chatCmd.Flags().StringVarP(&chatSessionID, "session", "s", "", "session id to resume (default: a new session)")
	chatCmd.Flags().IntVar(&chatMaxTools, "max-tools", 0, "maximum number of tools per query (default 3)")
}

// chatService is what the REPL needs from the orchestrator.
type chatService interface {
	ProcessQuery(ctx context.Context, q contractx.Query) (contractx.Response, error)
	GetHistory(ctx context.Context, sessionID string, limit int) (orchestrator.History, error)
	ResetSession(ctx context.Context, sessionID string) error
	ListTools() []contractx.Descriptor
}

func runChat(ctx context.Context, svc chatService, in io.Reader, out io.Writer, sessionID string, maxTools int) error {
	fmt.Fprintf(out, "session %s (type /quit to leave)\n", sessionID)

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			quit, err := runChatCommand(ctx, svc, out, sessionID, line)
			if err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
			}
			if quit {
				return nil
			}
			continue
		}

		resp, err := svc.ProcessQuery(ctx, contractx.Query{Text: line, SessionID: sessionID, MaxTools: maxTools})
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			fmt.Fprintf(out, "error: %v\n", err)
			continue
		}
		printResponse(out, resp)
	}
}

func runChatCommand(ctx context.Context, svc chatService, out io.Writer, sessionID, line string) (bool, error) {
	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit", "/exit":
		return true, nil
	case "/tools":
		return false, printTools(out, svc.ListTools())
	case "/reset":
		err := svc.ResetSession(ctx, sessionID)
		if errors.Is(err, contractx.ErrNotFound) {
			err = nil
		}
		if err == nil {
			fmt.Fprintln(out, "session cleared")
		}
		return false, err
	case "/history":
		limit := 0
		if len(fields) > 1 {
			n, err := strconv.Atoi(fields[1])
			if err != nil || n < 0 {
				return false, fmt.Errorf("invalid history limit %q", fields[1])
			}
			limit = n
		}
		hist, err := svc.GetHistory(ctx, sessionID, limit)
		if errors.Is(err, contractx.ErrNotFound) {
			fmt.Fprintln(out, "no messages yet")
			return false, nil
		}
		if err != nil {
			return false, err
		}
		if len(hist.Messages) == 0 {
			fmt.Fprintln(out, "no messages yet")
			return false, nil
		}
		for _, m := range hist.Messages {
			fmt.Fprintf(out, "[%s] %s: %s\n", m.Timestamp.Format("15:04:05"), m.Role, m.Content)
		}
		return false, nil
	default:
		return false, fmt.Errorf("unknown command %s", fields[0])
	}
}

func printResponse(out io.Writer, resp contractx.Response) {
	fmt.Fprintln(out, resp.Message)
	if len(resp.ToolCalls) == 0 {
		fmt.Fprintf(out, "(no tools, confidence %.2f)\n", resp.Confidence)
		return
	}
	names := make([]string, 0, len(resp.ToolCalls))
	for _, c := range resp.ToolCalls {
		status := "ok"
		if !c.Succeeded() {
			status = "failed"
		}
		names = append(names, fmt.Sprintf("%s:%s", c.ToolName, status))
	}
	fmt.Fprintf(out, "(%s, confidence %.2f)\n", strings.Join(names, " "), resp.Confidence)
}
