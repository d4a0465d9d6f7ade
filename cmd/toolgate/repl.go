package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/ChamsBouzaiene/toolgate/internal/engine"
	"github.com/ChamsBouzaiene/toolgate/internal/session"
)

const replHelp = `Commands:
  clear     start a new conversation
  history   show the conversation so far
  tools     list the registered tools
  sync      re-read the tool catalog
  save      save the conversation for -resume
  sessions  list saved conversations
  help      show this help
  quit      exit (also: exit, q)`

type repl struct {
	env    *runtimeEnv
	orch   *engine.Orchestrator
	sess   *session.Session
	out    io.Writer
	events chan engine.Event

	// interrupts reports whether Ctrl-C should cancel the running query.
	interrupts bool
}

func newREPL(env *runtimeEnv, resumeID string, out io.Writer) (*repl, error) {
	sess := session.New()
	if resumeID != "" {
		loaded, err := env.Sessions.Load(resumeID)
		if err != nil {
			return nil, err
		}
		sess = loaded
		log.Printf("Resumed session %q (%d messages)", sess.Title, len(sess.History))
	}
	events := make(chan engine.Event, 64)
	orch, err := env.newOrchestrator(sess.State(), engine.EventHook{Ch: events})
	if err != nil {
		return nil, err
	}
	return &repl{env: env, orch: orch, sess: sess, out: out, events: events, interrupts: true}, nil
}

// Run reads lines until EOF or a quit command.
func (r *repl) Run(ctx context.Context, s *bufio.Scanner) error {
	fmt.Fprintln(r.out, "toolgate ready. Type 'help' for commands.")
	for {
		fmt.Fprint(r.out, "you> ")
		if !s.Scan() {
			fmt.Fprintln(r.out)
			return s.Err()
		}
		line := strings.TrimSpace(s.Text())
		if line == "" {
			continue
		}
		if quit := r.handle(ctx, line); quit {
			return nil
		}
	}
}

// handle runs one input line and reports whether the REPL should exit.
func (r *repl) handle(ctx context.Context, line string) bool {
	switch strings.ToLower(line) {
	case "quit", "exit", "q":
		return true
	case "help":
		fmt.Fprintln(r.out, replHelp)
	case "clear":
		if err := r.orch.Clear(); err != nil {
			fmt.Fprintf(r.out, "error: %v\n", err)
			return false
		}
		r.sess = session.New()
		fmt.Fprintln(r.out, "Conversation cleared.")
	case "history":
		r.printHistory()
	case "tools":
		r.printTools()
	case "sync":
		tools, err := r.env.Registry.Sync(ctx)
		if err != nil {
			fmt.Fprintf(r.out, "error: %v\n", err)
			return false
		}
		fmt.Fprintf(r.out, "Synced %d tools.\n", len(tools))
	case "save":
		r.save(ctx)
	case "sessions":
		r.printSessions()
	default:
		r.query(ctx, line)
	}
	return false
}

func (r *repl) query(ctx context.Context, line string) {
	if r.interrupts {
		var stop context.CancelFunc
		ctx, stop = signal.NotifyContext(ctx, os.Interrupt)
		defer stop()
	}

	start := time.Now()
	resp, err := r.await(ctx, line)
	if err != nil {
		switch {
		case errors.Is(err, context.Canceled):
			fmt.Fprintln(r.out, "[cancelled]")
		default:
			fmt.Fprintf(r.out, "error: %v\n", err)
		}
		return
	}

	fmt.Fprintf(r.out, "assistant> %s\n", resp.Text)
	fmt.Fprintf(r.out, "\n[tokens: input=%d output=%d total=%d | rounds=%d | %s]\n",
		resp.Usage.Input, resp.Usage.Output, resp.Usage.Total, resp.Rounds, time.Since(start).Round(time.Millisecond))
	if resp.Status == engine.StatusAborted {
		fmt.Fprintln(r.out, "[Max rounds reached]")
	}
	if resp.RetrievalFallback {
		fmt.Fprintln(r.out, "[tool retrieval unavailable, full catalog offered]")
	}
}

type queryResult struct {
	resp engine.FinalResponse
	err  error
}

// await runs the query in the background and prints progress events until
// it finishes, so all output is written from the calling goroutine.
func (r *repl) await(ctx context.Context, line string) (engine.FinalResponse, error) {
	done := make(chan queryResult, 1)
	go func() {
		resp, err := r.orch.HandleQuery(ctx, line)
		done <- queryResult{resp, err}
	}()

	for {
		select {
		case ev := <-r.events:
			r.printEvent(ev)
		case res := <-done:
			for {
				select {
				case ev := <-r.events:
					r.printEvent(ev)
				default:
					return res.resp, res.err
				}
			}
		}
	}
}

func (r *repl) printEvent(ev engine.Event) {
	switch ev.Kind {
	case "tool_start":
		fmt.Fprintf(r.out, "  🔧 %v\n", ev.Data)
	case "retry_attempt":
		if d, ok := ev.Data.(map[string]any); ok {
			fmt.Fprintf(r.out, "  ⏳ retrying model call (attempt %v/%v): %v\n", d["attempt"], d["maxAttempts"], d["error"])
		}
	}
}

func (r *repl) printHistory() {
	history := r.orch.State().History()
	if len(history) == 0 {
		fmt.Fprintln(r.out, "No messages yet.")
		return
	}
	for _, m := range history {
		switch {
		case m.Role == engine.RoleTool:
			fmt.Fprintf(r.out, "[tool %s] %s\n", m.ToolName, preview(m.Content, 200))
		case len(m.ToolCalls) > 0:
			fmt.Fprintf(r.out, "[%s] calls %s\n", m.Role, strings.Join(callNames(m.ToolCalls), ", "))
		default:
			fmt.Fprintf(r.out, "[%s] %s\n", m.Role, m.Content)
		}
	}
	t := r.orch.State().Totals()
	fmt.Fprintf(r.out, "[session tokens: input=%d output=%d total=%d]\n", t.Input, t.Output, t.Total)
}

func (r *repl) printTools() {
	tools := r.env.Registry.All()
	if len(tools) == 0 {
		fmt.Fprintln(r.out, "No tools registered.")
		return
	}
	for _, t := range tools {
		fmt.Fprintf(r.out, "  %-24s %s\n", t.Name, preview(t.Description, 80))
	}
}

func (r *repl) save(ctx context.Context) {
	untitled := r.sess.Title == ""
	r.sess.Capture(r.orch.State())
	if len(r.sess.History) == 0 {
		if untitled {
			r.sess.Title = ""
		}
		fmt.Fprintln(r.out, "Nothing to save.")
		return
	}
	if untitled {
		r.nameSession(ctx)
	}
	if err := r.env.Sessions.Save(r.sess); err != nil {
		fmt.Fprintf(r.out, "error: %v\n", err)
		return
	}
	fmt.Fprintf(r.out, "Saved %q. Resume with -resume %s\n", r.sess.Title, r.sess.ID)
}

// nameSession asks the model for a title once per session, under the
// inference timeout and cancellable with Ctrl-C.
func (r *repl) nameSession(ctx context.Context) {
	if r.interrupts {
		var stop context.CancelFunc
		ctx, stop = signal.NotifyContext(ctx, os.Interrupt)
		defer stop()
	}
	if timeout := r.env.Settings.InferenceTimeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	usage, err := r.env.Summarizer.Name(ctx, r.sess)
	if err != nil {
		log.Printf("⚠️  %v (keeping title %q)", err, r.sess.Title)
		return
	}
	if usage.Total > 0 {
		fmt.Fprintf(r.out, "[title tokens: input=%d output=%d total=%d]\n", usage.Input, usage.Output, usage.Total)
	}
}

func (r *repl) printSessions() {
	metas, err := r.env.Sessions.List()
	if err != nil {
		fmt.Fprintf(r.out, "error: %v\n", err)
		return
	}
	if len(metas) == 0 {
		fmt.Fprintln(r.out, "No saved sessions.")
		return
	}
	for _, m := range metas {
		fmt.Fprintf(r.out, "  %s  %s  %-40s (%d messages)\n", m.ID, m.UpdatedAt.Format("2006-01-02 15:04"), m.Title, m.Messages)
	}
}

func callNames(calls []engine.ToolCall) []string {
	names := make([]string, len(calls))
	for i, c := range calls {
		names[i] = c.Name
	}
	return names
}

func preview(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
