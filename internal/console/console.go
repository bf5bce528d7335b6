// Package console is the terminal front end: it echoes controller events as
// human-readable lines and turns typed lines into turn commands.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/MrWong99/echovault/internal/notify"
	"github.com/MrWong99/echovault/internal/turn"
)

// Prompt is shown whenever push-to-talk mode is waiting for input.
const Prompt = "> Press Enter to record (or type 'quit'/'reset'): "

// Source is the part of [notify.Channel] the printer needs.
type Source interface {
	SubscribeAll(h notify.Handler) (unsubscribe func())
}

// Option configures a Printer.
type Option func(*Printer)

// WithAssistantName sets the label of assistant replies. Default: "Jarvis".
func WithAssistantName(name string) Option {
	return func(p *Printer) { p.assistant = name }
}

// WithPrompt makes the printer show [Prompt] each time the controller goes
// idle. Only useful in push-to-talk mode on an interactive terminal.
func WithPrompt() Option {
	return func(p *Printer) { p.prompt = true }
}

// Printer writes one line per notable event.
type Printer struct {
	assistant string
	prompt    bool

	mu  sync.Mutex
	w   io.Writer
	you lipgloss.Style
	bot lipgloss.Style
	dim lipgloss.Style
}

// NewPrinter returns a Printer writing to w. Colours are used only when w is
// a terminal that supports them.
func NewPrinter(w io.Writer, opts ...Option) *Printer {
	r := lipgloss.NewRenderer(w)
	p := &Printer{
		assistant: "Jarvis",
		w:         w,
		you:       r.NewStyle().Bold(true).Foreground(lipgloss.Color("6")),
		bot:       r.NewStyle().Bold(true).Foreground(lipgloss.Color("5")),
		dim:       r.NewStyle().Faint(true),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Attach subscribes p to every event of src and returns the unsubscribe
// function.
func (p *Printer) Attach(src Source) (detach func()) {
	return src.SubscribeAll(p.Handle)
}

// Handle renders one event. It is a [notify.Handler].
func (p *Printer) Handle(event notify.Event, payload notify.Payload) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch event {
	case notify.UserMessage:
		fmt.Fprintf(p.w, "%s %s\n", p.you.Render("You said:"), payload[notify.KeyText])
	case notify.AssistantMessage:
		fmt.Fprintf(p.w, "%s %s\n", p.bot.Render(p.assistant+":"), payload[notify.KeyText])
	case notify.ConversationReset:
		fmt.Fprintln(p.w, p.dim.Render("Conversation reset."))
	case notify.StatusChanged:
		p.status(turn.State(payload[notify.KeyStatus]), payload[notify.KeyDetail])
	}
}

func (p *Printer) status(s turn.State, detail string) {
	var line string
	switch s {
	case turn.StateRecording:
		line = "Recording... press Enter to stop."
	case turn.StateTranscribing:
		line = "Transcribing..."
	case turn.StateThinking:
		line = "Thinking..."
	case turn.StateSpeaking:
		line = "Speaking..."
	case turn.StateWake:
		line = "Wake phrase detected."
		if detail != "" {
			line = fmt.Sprintf("Wake phrase detected (%s).", detail)
			detail = ""
		}
	case turn.StateListening:
		line = "Listening..."
	}
	if detail != "" {
		fmt.Fprintln(p.w, detail)
	}
	if line != "" {
		fmt.Fprintln(p.w, p.dim.Render(line))
	}
	if s == turn.StateIdle && p.prompt {
		fmt.Fprint(p.w, "\n"+Prompt)
	}
}

// ReadCommands parses lines from r into commands until r is exhausted or ctx
// is done, then closes the returned channel. Unparseable lines are reported
// on errOut and skipped.
//
// A read blocked on r cannot be interrupted; the goroutine exits at the next
// line after ctx is done.
func ReadCommands(ctx context.Context, r io.Reader, errOut io.Writer) <-chan turn.Command {
	out := make(chan turn.Command)
	go func() {
		defer close(out)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			cmd, err := turn.ParseCommand(sc.Text())
			if err != nil {
				fmt.Fprintf(errOut, "Unknown command %q. Use Enter, 'reset' or 'quit'.\n", sc.Text())
				continue
			}
			select {
			case out <- cmd:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
