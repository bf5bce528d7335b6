package turn

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/echovault/internal/gate"
	"github.com/MrWong99/echovault/internal/observe"
)

// runWake is the always-listening loop. It scans for the wake phrase and
// holds a conversation for every detection. Commands are optional here: quit
// stops the loop, reset clears the history, and a closed cmds channel only
// stops command handling.
func (c *Controller) runWake(ctx context.Context, cmds <-chan Command) error {
	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer func() {
		cancel()
		wg.Wait()
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		c.watchCommands(ctx, cancel, cmds)
	}()

	slog.Info("turn: listening for wake phrase")
	err := c.deps.Wake.Listen(ctx, c.settings.Wake, c.converse)
	if err != nil {
		return fmt.Errorf("turn: wake listen: %w", err)
	}
	return nil
}

func (c *Controller) watchCommands(ctx context.Context, cancel context.CancelFunc, cmds <-chan Command) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd, ok := <-cmds:
			if !ok {
				return
			}
			switch cmd {
			case CommandQuit:
				cancel()
				return
			case CommandReset:
				c.resetConversation()
				slog.Info("turn: conversation reset")
			default:
				slog.Debug("turn: command has no effect in always-listening mode", "command", cmd)
			}
		}
	}
}

// converse holds one wake-triggered conversation. Each iteration listens for
// at most the listen window; an empty window adds the window to the
// cumulative silence and any captured utterance resets it. The conversation
// ends once the cumulative silence reaches the idle limit, after which the
// history is cleared and the controller returns to idle.
func (c *Controller) converse(ctx context.Context, phrase string) {
	c.setState(ctx, StateWake, phrase)
	slog.Info("turn: wake phrase detected, entering conversation", "phrase", phrase)

	params := c.settings.Activity
	params.MaxWait = c.settings.ListenWindow

	var (
		silence time.Duration
		detail  string
	)
	c.setSilence(0)
	for ctx.Err() == nil {
		c.setState(ctx, StateListening, detail)
		detail = ""

		utt, err := c.deps.Activity.Capture(ctx, params)
		if err != nil {
			observe.Logger(ctx).Error("turn: capture failed, ending conversation", "err", err)
			c.metrics.RecordTurn(ctx, observe.OutcomeError)
			detail = DetailMicrophoneFailed
			break
		}
		if ctx.Err() != nil {
			break
		}
		if utt.Empty() {
			silence += c.settings.ListenWindow
			c.setSilence(silence)
			slog.Info("turn: no speech detected", "idle", silence, "limit", c.settings.IdleLimit)
			if silence >= c.settings.IdleLimit {
				slog.Info("turn: idle limit reached, returning to wake phrase scan")
				break
			}
			continue
		}

		silence = 0
		c.setSilence(0)
		res := c.process(ctx, utt, gate.SourceActivity)
		detail = res.detail
	}

	c.setSilence(0)
	c.resetConversation()
	c.setState(context.WithoutCancel(ctx), StateIdle, detail)
	slog.Info("turn: conversation ended")
}
