package engine

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"text/template"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sirupsen/logrus"
	"github.com/tatianab/game-forge/internal/gameconfig"
	"github.com/tatianab/game-forge/internal/models"
	"github.com/tatianab/game-forge/internal/response"
)

//go:embed prompts/generate_game.txt
var generateGamePrompt string

var promptTemplate = template.Must(template.New("generate_game").Parse(generateGamePrompt))

var (
	// ErrSafetyBlocked means the generator refused the request.
	ErrSafetyBlocked = errors.New("generation blocked by safety filter")
	// ErrMissingCredential means no API key is configured.
	ErrMissingCredential = errors.New("missing API key")
	// ErrEmptyResponse means the generator returned no text.
	ErrEmptyResponse = errors.New("empty response from generator")
	// ErrGenerationInProgress is returned while another Generate call is running.
	ErrGenerationInProgress = errors.New("a generation is already in progress")
	// ErrEmptyDescription is returned for a blank game description.
	ErrEmptyDescription = errors.New("game description is empty")
)

// ExhaustedRetriesError is returned once every attempt has failed.
type ExhaustedRetriesError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedRetriesError) Error() string {
	return fmt.Sprintf("generation failed after %d attempts: %v", e.Attempts, e.Last)
}

func (e *ExhaustedRetriesError) Unwrap() error {
	return e.Last
}

// Generator is the external text generator.
type Generator interface {
	Generate(ctx context.Context, instruction string) (models.RawModelOutput, error)
}

// Options tunes the retry policy.
type Options struct {
	MaxAttempts int
	RetryDelay  time.Duration // the nth retry waits n*RetryDelay

	// OnRetry, when set, is called before each wait.
	OnRetry func(attempt int, err error, wait time.Duration)
}

// DefaultOptions: three attempts, waiting 2s then 4s.
func DefaultOptions() Options {
	return Options{MaxAttempts: 3, RetryDelay: 2 * time.Second}
}

// Delays returns the waits between attempts under these options.
func (o Options) Delays() []time.Duration {
	b := &linearBackOff{step: o.RetryDelay}
	var out []time.Duration
	for i := 1; i < o.MaxAttempts; i++ {
		out = append(out, b.NextBackOff())
	}
	return out
}

// linearBackOff waits step, 2*step, 3*step, ...
type linearBackOff struct {
	step time.Duration
	n    int
}

func (b *linearBackOff) NextBackOff() time.Duration {
	b.n++
	return time.Duration(b.n) * b.step
}

func (b *linearBackOff) Reset() {
	b.n = 0
}

// Orchestrator drives the generator with bounded retries and turns its
// output into a GameArtifact.
type Orchestrator struct {
	gen  Generator
	opts Options
	log  logrus.FieldLogger
	busy atomic.Bool
}

// New returns an Orchestrator. Zero option fields take their defaults.
func New(gen Generator, opts Options, log logrus.FieldLogger) *Orchestrator {
	def := DefaultOptions()
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = def.MaxAttempts
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = def.RetryDelay
	}
	return &Orchestrator{gen: gen, opts: opts, log: log}
}

// RenderPrompt formats the instruction sent to the generator.
func RenderPrompt(req models.GenerationRequest) (string, error) {
	var buf bytes.Buffer
	data := struct {
		Description   string
		Genre         string
		ConfigVar     string
		HTMLStart     string
		HTMLEnd       string
		ControlsStart string
		ControlsEnd   string
	}{
		Description:   req.Description,
		Genre:         req.Genre.Title(),
		ConfigVar:     gameconfig.VarName,
		HTMLStart:     response.HTMLStart,
		HTMLEnd:       response.HTMLEnd,
		ControlsStart: response.ControlsStart,
		ControlsEnd:   response.ControlsEnd,
	}
	if err := promptTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Generate produces a playable artifact for req. Safety refusals and missing
// credentials fail at once; everything else is retried.
func (o *Orchestrator) Generate(ctx context.Context, req models.GenerationRequest) (*models.GameArtifact, error) {
	req = req.Normalized()
	if req.Description == "" {
		return nil, ErrEmptyDescription
	}
	if !o.busy.CompareAndSwap(false, true) {
		return nil, ErrGenerationInProgress
	}
	defer o.busy.Store(false)

	prompt, err := RenderPrompt(req)
	if err != nil {
		return nil, fmt.Errorf("render prompt: %w", err)
	}

	attempt := 0
	res, err := backoff.Retry(ctx, func() (response.Result, error) {
		attempt++
		return o.attempt(ctx, prompt, attempt)
	},
		backoff.WithBackOff(&linearBackOff{step: o.opts.RetryDelay}),
		backoff.WithMaxTries(uint(o.opts.MaxAttempts)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, wait time.Duration) {
			o.log.WithFields(logrus.Fields{"attempt": attempt, "wait": wait}).WithError(err).Warn("Retrying generation")
			if o.opts.OnRetry != nil {
				o.opts.OnRetry(attempt, err, wait)
			}
		}),
	)
	if err != nil {
		switch {
		case errors.Is(err, ErrSafetyBlocked):
			return nil, ErrSafetyBlocked
		case errors.Is(err, ErrMissingCredential):
			return nil, ErrMissingCredential
		case ctx.Err() != nil:
			return nil, err
		}
		o.log.WithField("attempts", attempt).WithError(err).Error("Generation failed")
		return nil, &ExhaustedRetriesError{Attempts: attempt, Last: err}
	}

	o.log.WithFields(logrus.Fields{"attempt": attempt, "controls": len(res.Controls), "bytes": len(res.Document)}).Info("Game generated")
	return &models.GameArtifact{
		Document: res.Document,
		Controls: res.Controls,
	}, nil
}

func (o *Orchestrator) attempt(ctx context.Context, prompt string, n int) (response.Result, error) {
	out, err := o.gen.Generate(ctx, prompt)
	if err != nil {
		if errors.Is(err, ErrMissingCredential) || errors.Is(err, ErrSafetyBlocked) {
			return response.Result{}, backoff.Permanent(err)
		}
		return response.Result{}, fmt.Errorf("attempt %d: %w", n, err)
	}
	if out.Termination == models.TerminationSafetyBlocked {
		return response.Result{}, backoff.Permanent(ErrSafetyBlocked)
	}
	if strings.TrimSpace(out.Text) == "" {
		return response.Result{}, ErrEmptyResponse
	}
	res, err := response.Parse(out.Text)
	if err != nil {
		return response.Result{}, err
	}
	return res, nil
}

// UserMessage turns a Generate error into the text shown to the player.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrSafetyBlocked):
		return "The request was refused by the content filter. Try describing the game differently."
	case errors.Is(err, ErrMissingCredential):
		return "No API key is configured. Set GEMINI_API_KEY (or OPENAI_API_KEY) and restart."
	case errors.Is(err, ErrGenerationInProgress):
		return "A game is already being generated."
	case errors.Is(err, ErrEmptyDescription):
		return "Describe the game you want first."
	default:
		return "Something went wrong while generating the game. Please try again."
	}
}
