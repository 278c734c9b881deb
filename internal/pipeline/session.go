// internal/pipeline/session.go
package pipeline

import (
	"time"

	"github.com/user/postpilot/internal/types"
)

// Stage is the orchestrator's position in the pipeline.
type Stage string

const (
	StageCollect       Stage = "collect"
	StageStructure     Stage = "structure"
	StageValidate      Stage = "validate"
	StageEnrichPersona Stage = "enrich_persona"
	StageGenerate      Stage = "generate"
	StageRefine        Stage = "refine"
	StageApprove       Stage = "approve"
	StageFinalized     Stage = "finalized"
	StageAborted       Stage = "aborted"
)

// Terminal reports whether the stage ends the session.
func (s Stage) Terminal() bool {
	return s == StageFinalized || s == StageAborted
}

// Session is the in-memory state of one interactive run. It is owned
// exclusively by the orchestrator and discarded at a terminal stage; only
// Finalize writes anything durable.
type Session struct {
	ID        types.SessionID
	Stage     Stage
	CreatedAt time.Time

	// Collected input, immutable after Start.
	RawInput    []string
	Attachments []string
	// ScheduledAt is the requested publish time; nil means immediately.
	ScheduledAt *time.Time

	// Stage payloads. Each is produced by one stage and read only by
	// strictly later stages.
	Note    *types.StructuredNote
	Profile *types.Profile
	Persona *types.PersonaContext
	Draft   string
	Refined string

	// History is the append-only audit trail of the revision loop.
	History []types.Revision
}

// FinalContent returns the text that would be published if the session
// were approved now.
func (s *Session) FinalContent() string {
	if s.Refined != "" {
		return s.Refined
	}
	return s.Draft
}

// Input is the collected material a session starts from.
type Input struct {
	Lines       []string
	Attachments []string
	ScheduledAt *time.Time
}

// AwaitKind says what the orchestrator is suspended on.
type AwaitKind string

const (
	// AwaitNone means the session reached a terminal stage.
	AwaitNone AwaitKind = ""
	// AwaitAnswers means validation needs the caller to answer
	// clarifying questions.
	AwaitAnswers AwaitKind = "answers"
	// AwaitDecision means a refined draft is ready for
	// approve/revise/regenerate/cancel.
	AwaitDecision AwaitKind = "decision"
)

// StepResult is what the orchestrator hands back each time it suspends or
// terminates. The caller inspects Await to know what input to supply next.
type StepResult struct {
	Await     AwaitKind
	Questions []string
	Draft     string
	Revisions int
	// Soft is a non-fatal condition the caller should surface, such as a
	// revision that returned an unchanged draft.
	Soft error
	// Record is set on the Finalized terminal result.
	Record *types.PostRecord
	// Aborted is true on the cancelled terminal result.
	Aborted bool
}

// Decision is the caller's response to an AwaitDecision result.
type Decision struct {
	Action   Action
	Feedback string
}

type Action string

const (
	ActionApprove    Action = "approve"
	ActionRevise     Action = "revise"
	ActionRegenerate Action = "regenerate"
	ActionCancel     Action = "cancel"
)
