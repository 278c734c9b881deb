// Package pipeline drives one interactive session through the content
// transformation stages and the approval loop. The orchestrator never
// blocks on user input: it returns a StepResult saying what it awaits, and
// resumes when the caller supplies a well-typed response.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/user/postpilot/internal/types"
)

// Orchestrator sequences the stages Collect -> Structure -> Validate ->
// EnrichPersona -> Generate -> Refine -> Approve for a single session.
type Orchestrator struct {
	transformer types.Transformer
	personas    types.PersonaStore
	registry    types.PostRegistry
	collector   *Collector

	// maxRevisions caps the approve/revise loop; 0 means unlimited.
	maxRevisions int
	stageTimeout time.Duration
	retryBackoff time.Duration
	sleep        func(time.Duration)
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithMaxRevisions caps the revision loop. 0 means unlimited.
func WithMaxRevisions(n int) Option {
	return func(o *Orchestrator) { o.maxRevisions = n }
}

// WithStageTimeout bounds each transformer call.
func WithStageTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.stageTimeout = d }
}

// WithRetryBackoff sets the pause before the single per-stage retry.
func WithRetryBackoff(d time.Duration) Option {
	return func(o *Orchestrator) { o.retryBackoff = d }
}

func New(transformer types.Transformer, personas types.PersonaStore, registry types.PostRegistry, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		transformer:  transformer,
		personas:     personas,
		registry:     registry,
		collector:    NewCollector(),
		stageTimeout: 90 * time.Second,
		retryBackoff: 2 * time.Second,
		sleep:        time.Sleep,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Start collects input into a new session and advances it until the first
// suspension point.
func (o *Orchestrator) Start(ctx context.Context, input Input) (*Session, *StepResult, error) {
	if len(input.Lines) == 0 {
		return nil, nil, fmt.Errorf("no input collected")
	}

	lines, err := o.collector.Expand(ctx, input.Lines)
	if err != nil {
		return nil, nil, fmt.Errorf("collect input: %w", err)
	}

	session := &Session{
		ID:          types.NewSessionID(),
		Stage:       StageStructure,
		CreatedAt:   time.Now(),
		RawInput:    lines,
		Attachments: input.Attachments,
		ScheduledAt: input.ScheduledAt,
	}
	slog.Info("session started", "session_id", session.ID, "lines", len(lines), "attachments", len(input.Attachments))

	result, err := o.advance(ctx, session)
	return session, result, err
}

// Answer resumes a session suspended on clarifying questions. The answers
// are appended to the structured data and validation re-runs.
func (o *Orchestrator) Answer(ctx context.Context, session *Session, answers []types.ClarifyingAnswer) (*StepResult, error) {
	if session.Stage != StageValidate {
		return nil, fmt.Errorf("session is not awaiting answers (stage %s)", session.Stage)
	}
	session.Note.Answers = append(session.Note.Answers, answers...)
	return o.advance(ctx, session)
}

// Decide resumes a session suspended on approval.
func (o *Orchestrator) Decide(ctx context.Context, session *Session, decision Decision) (*StepResult, error) {
	if session.Stage != StageApprove {
		return nil, fmt.Errorf("session is not awaiting a decision (stage %s)", session.Stage)
	}

	switch decision.Action {
	case ActionApprove:
		return o.finalize(ctx, session)

	case ActionRevise:
		if decision.Feedback == "" {
			return nil, fmt.Errorf("revise requires feedback")
		}
		if o.maxRevisions > 0 && len(session.History) >= o.maxRevisions {
			return nil, fmt.Errorf("revision limit reached (%d)", o.maxRevisions)
		}
		return o.revise(ctx, session, decision.Feedback)

	case ActionRegenerate:
		// Back to Structure with the original input. Drafts are
		// discarded; history stays as the audit trail.
		slog.Info("session regenerating", "session_id", session.ID)
		session.Note = nil
		session.Persona = nil
		session.Draft = ""
		session.Refined = ""
		session.Stage = StageStructure
		return o.advance(ctx, session)

	case ActionCancel:
		return o.Cancel(session), nil

	default:
		return nil, fmt.Errorf("unknown action %q", decision.Action)
	}
}

// Cancel discards the session at any non-terminal stage. No durable record
// is written.
func (o *Orchestrator) Cancel(session *Session) *StepResult {
	if session.Stage.Terminal() {
		return &StepResult{Aborted: session.Stage == StageAborted}
	}
	slog.Info("session cancelled", "session_id", session.ID, "stage", session.Stage)
	session.Stage = StageAborted
	return &StepResult{Aborted: true}
}

// Retry re-runs the current stage after a session-fatal transform error.
func (o *Orchestrator) Retry(ctx context.Context, session *Session) (*StepResult, error) {
	if session.Stage.Terminal() {
		return nil, fmt.Errorf("session already %s", session.Stage)
	}
	return o.advance(ctx, session)
}

// advance runs stages in order from the session's current position until
// the pipeline suspends or terminates.
func (o *Orchestrator) advance(ctx context.Context, session *Session) (*StepResult, error) {
	for {
		switch session.Stage {
		case StageStructure:
			note, err := callStage(ctx, o, session, types.KindStructure, func(ctx context.Context) (*types.StructuredNote, error) {
				return o.transformer.Structure(ctx, joinLines(session.RawInput), session.Attachments)
			})
			if err != nil {
				return nil, err
			}
			session.Note = note
			session.Stage = StageValidate

		case StageValidate:
			validation, err := callStage(ctx, o, session, types.KindValidate, func(ctx context.Context) (*types.Validation, error) {
				return o.transformer.Validate(ctx, session.Note)
			})
			if err != nil {
				return nil, err
			}
			if !validation.Complete && len(validation.Questions) > 0 {
				// Not a failure: suspend and wait for answers. The loop is
				// bounded by caller engagement, not a fixed count.
				slog.Info("validation incomplete", "session_id", session.ID, "missing", validation.MissingFields)
				return &StepResult{Await: AwaitAnswers, Questions: validation.Questions}, nil
			}
			session.Stage = StageEnrichPersona

		case StageEnrichPersona:
			if session.Profile == nil {
				profile, err := o.personas.Load(ctx)
				if err != nil {
					return nil, fmt.Errorf("load persona: %w", err)
				}
				session.Profile = profile
			}
			persona, err := callStage(ctx, o, session, types.KindEnrich, func(ctx context.Context) (*types.PersonaContext, error) {
				return o.transformer.Enrich(ctx, session.Note, session.Profile)
			})
			if err != nil {
				return nil, err
			}
			session.Persona = persona
			session.Stage = StageGenerate

		case StageGenerate:
			draft, err := callStage(ctx, o, session, types.KindGenerate, func(ctx context.Context) (string, error) {
				return o.transformer.Generate(ctx, session.Note, session.Persona, session.Profile, session.History)
			})
			if err != nil {
				return nil, err
			}
			session.Draft = draft
			session.Stage = StageRefine

		case StageRefine:
			refined, err := callStage(ctx, o, session, types.KindRefine, func(ctx context.Context) (string, error) {
				return o.transformer.Refine(ctx, session.Draft, session.Persona)
			})
			if err != nil {
				return nil, err
			}
			session.Refined = refined
			session.Stage = StageApprove

		case StageApprove:
			return &StepResult{
				Await:     AwaitDecision,
				Draft:     session.FinalContent(),
				Revisions: len(session.History),
			}, nil

		default:
			return nil, fmt.Errorf("cannot advance from stage %s", session.Stage)
		}
	}
}

// callStage runs one transformer call with a per-call timeout, retrying
// once with backoff on a TransformError before escalating.
func callStage[T any](ctx context.Context, o *Orchestrator, session *Session, kind types.TransformKind, fn func(context.Context) (T, error)) (T, error) {
	run := func() (T, error) {
		callCtx, cancel := context.WithTimeout(ctx, o.stageTimeout)
		defer cancel()
		return fn(callCtx)
	}

	out, err := run()
	if err == nil {
		return out, nil
	}

	var terr *types.TransformError
	if !errors.As(err, &terr) {
		var zero T
		return zero, err
	}

	slog.Warn("stage failed, retrying once", "session_id", session.ID, "kind", kind, "error", err)
	o.sleep(o.retryBackoff)

	out, err = run()
	if err != nil {
		var zero T
		return zero, fmt.Errorf("stage %s failed after retry: %w", kind, err)
	}
	return out, nil
}

func (o *Orchestrator) finalize(ctx context.Context, session *Session) (*StepResult, error) {
	scheduledAt := time.Now()
	if session.ScheduledAt != nil {
		scheduledAt = *session.ScheduledAt
	}

	record := &types.PostRecord{
		Content:     session.FinalContent(),
		Attachments: session.Attachments,
		ScheduledAt: scheduledAt,
		Status:      types.StatusScheduled,
	}

	id, err := o.registry.Append(ctx, record)
	if err != nil {
		return nil, fmt.Errorf("append post record: %w", err)
	}
	record.ID = id
	session.Stage = StageFinalized

	slog.Info("session finalized", "session_id", session.ID, "post_id", id,
		"scheduled_at", scheduledAt, "revisions", len(session.History))
	return &StepResult{Record: record}, nil
}

func joinLines(lines []string) string {
	return strings.Join(lines, "\n")
}
