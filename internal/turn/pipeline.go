package turn

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/echovault/internal/notify"
	"github.com/MrWong99/echovault/internal/observe"
	"github.com/MrWong99/echovault/pkg/audio"
	"github.com/MrWong99/echovault/pkg/provider/tts"
)

// result is the outcome of one processed utterance.
type result struct {
	outcome string
	detail  string
}

// process runs transcribe → respond → speak for utt. Empty output and
// collaborator failures end the turn early; the returned detail describes
// why and is empty for a completed or cancelled turn.
func (c *Controller) process(ctx context.Context, utt audio.Utterance, source string) result {
	start := time.Now()
	ctx, span := observe.StartSpan(ctx, "turn", trace.WithAttributes(
		attribute.String("mode", string(c.settings.Mode)),
		attribute.String("source", source),
		attribute.Float64("utterance.seconds", utt.Duration().Seconds()),
	))
	defer span.End()
	log := observe.Logger(ctx)

	res := c.runStages(ctx, utt)
	if ctx.Err() != nil {
		res = result{outcome: observe.OutcomeCancelled}
	}

	c.metrics.RecordTurn(ctx, res.outcome)
	c.metrics.TurnDuration.Record(ctx, time.Since(start).Seconds())
	span.SetAttributes(attribute.String("outcome", res.outcome))
	if res.outcome == observe.OutcomeError {
		span.SetStatus(codes.Error, res.detail)
	}
	log.Debug("turn: finished", "outcome", res.outcome, "duration", time.Since(start).Round(time.Millisecond))
	return res
}

func (c *Controller) runStages(ctx context.Context, utt audio.Utterance) result {
	log := observe.Logger(ctx)

	c.setState(ctx, StateTranscribing, "")
	sttStart := time.Now()
	text, err := c.deps.STT.Transcribe(ctx, utt.Samples, utt.SampleRate)
	c.metrics.STTDuration.Record(ctx, time.Since(sttStart).Seconds())
	if err != nil {
		if ctx.Err() == nil {
			log.Error("turn: transcription failed", "err", err)
		}
		return result{outcome: observe.OutcomeError, detail: DetailSTTFailed}
	}
	if text == "" {
		log.Info("turn: could not transcribe audio")
		return result{outcome: observe.OutcomeNoTranscript, detail: DetailNoTranscript}
	}
	log.Info("turn: user said", "text", text)
	c.deps.Notify.Publish(notify.UserMessage, notify.Payload{notify.KeyText: text})

	c.setState(ctx, StateThinking, "")
	reply, err := c.deps.Responder.Respond(ctx, text)
	if err != nil {
		if ctx.Err() == nil {
			log.Error("turn: response failed", "err", err)
		}
		return result{outcome: observe.OutcomeError, detail: DetailLLMFailed}
	}
	if reply == "" {
		log.Info("turn: empty response")
		return result{outcome: observe.OutcomeNoResponse, detail: DetailNoResponse}
	}
	log.Info("turn: assistant replied", "text", reply)
	c.deps.Notify.Publish(notify.AssistantMessage, notify.Payload{notify.KeyText: reply})

	c.setState(ctx, StateSpeaking, "")
	if err := c.speak(ctx, reply); err != nil {
		if ctx.Err() == nil {
			log.Error("turn: playback failed", "err", err)
		}
		return result{outcome: observe.OutcomeError, detail: DetailTTSFailed}
	}
	return result{outcome: observe.OutcomeCompleted}
}

// speak synthesises reply and blocks until the sink has played it.
func (c *Controller) speak(ctx context.Context, reply string) error {
	start := time.Now()
	defer func() { c.metrics.TTSDuration.Record(ctx, time.Since(start).Seconds()) }()

	chunks, err := c.deps.TTS.SynthesizeStream(ctx, tts.Text(reply))
	if err != nil {
		return err
	}
	return c.deps.Sink.PlayStream(ctx, chunks, c.deps.TTS.SampleRate())
}
