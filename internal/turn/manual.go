package turn

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/MrWong99/echovault/internal/gate"
	"github.com/MrWong99/echovault/internal/observe"
)

// Command is an operator instruction.
type Command string

const (
	// CommandStart begins a push-to-talk recording.
	CommandStart Command = "start"

	// CommandStop ends the recording in progress and processes it.
	CommandStop Command = "stop"

	// CommandToggle starts a recording when idle and stops it when recording.
	CommandToggle Command = "toggle"

	// CommandReset discards any recording in progress and clears the
	// conversation history.
	CommandReset Command = "reset"

	// CommandQuit ends Run.
	CommandQuit Command = "quit"
)

// ParseCommand maps a line of operator input to a Command. An empty line is
// a toggle.
func ParseCommand(line string) (Command, error) {
	switch cmd := Command(strings.ToLower(strings.TrimSpace(line))); cmd {
	case "":
		return CommandToggle, nil
	case CommandStart, CommandStop, CommandToggle, CommandReset, CommandQuit:
		return cmd, nil
	case "exit":
		return CommandQuit, nil
	default:
		return "", fmt.Errorf("turn: unknown command %q", line)
	}
}

// runManual is the push-to-talk loop. A closed cmds channel ends it like a
// quit command.
func (c *Controller) runManual(ctx context.Context, cmds <-chan Command) error {
	for {
		var (
			cmd Command
			ok  bool
		)
		select {
		case <-ctx.Done():
			return nil
		case cmd, ok = <-cmds:
		}
		if !ok {
			return nil
		}

		switch cmd {
		case CommandQuit:
			return nil
		case CommandReset:
			c.resetConversation()
			slog.Info("turn: conversation reset")
		case CommandStart, CommandToggle:
			if quit := c.manualTurn(ctx, cmds); quit {
				return nil
			}
		default:
			slog.Debug("turn: ignoring command while idle", "command", cmd)
		}
	}
}

// manualTurn records until a stop command and then processes the recording.
// It reports whether the controller should quit.
func (c *Controller) manualTurn(ctx context.Context, cmds <-chan Command) (quit bool) {
	c.setState(ctx, StateRecording, "")
	rec, err := c.deps.Recorder.Start(ctx)
	if err != nil {
		observe.Logger(ctx).Error("turn: failed to start recording", "err", err)
		c.metrics.RecordTurn(ctx, observe.OutcomeError)
		c.setState(ctx, StateIdle, DetailMicrophoneFailed)
		return false
	}

	discard := false
wait:
	for {
		select {
		case <-ctx.Done():
			rec.Stop()
			c.metrics.RecordTurn(ctx, observe.OutcomeCancelled)
			c.setState(context.WithoutCancel(ctx), StateIdle, "")
			return true
		case cmd, ok := <-cmds:
			switch {
			case !ok || cmd == CommandQuit:
				quit, discard = true, true
				break wait
			case cmd == CommandStop || cmd == CommandToggle:
				break wait
			case cmd == CommandReset:
				discard = true
				break wait
			default:
				slog.Debug("turn: ignoring command while recording", "command", cmd)
			}
		}
	}

	utt := rec.Stop()
	if discard {
		c.metrics.RecordTurn(ctx, observe.OutcomeCancelled)
		if !quit {
			c.resetConversation()
		}
		c.setState(ctx, StateIdle, "")
		return quit
	}
	if utt.Empty() {
		slog.Info("turn: no audio recorded")
		c.metrics.RecordTurn(ctx, observe.OutcomeNoAudio)
		c.setState(ctx, StateIdle, DetailNoAudio)
		return false
	}

	slog.Debug("turn: recording finished", "duration", utt.Duration().Round(time.Millisecond), "frames", utt.Frames)
	res := c.process(ctx, utt, gate.SourceManual)
	c.setState(context.WithoutCancel(ctx), StateIdle, res.detail)
	return ctx.Err() != nil
}
