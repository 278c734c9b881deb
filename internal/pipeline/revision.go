// internal/pipeline/revision.go
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/user/postpilot/internal/types"
)

// revise records the feedback in the revision history and re-enters
// Generate with the prior draft visible as transformer context. A revision
// that comes back identical to the draft it was meant to change is a
// reportable soft failure, not silently accepted: the result carries
// types.ErrUnchangedDraft and the session stays at Approve with the old
// draft.
func (o *Orchestrator) revise(ctx context.Context, session *Session, feedback string) (*StepResult, error) {
	prior := session.FinalContent()
	session.History = append(session.History, types.Revision{
		Feedback: feedback,
		Draft:    prior,
		At:       time.Now(),
	})

	session.Stage = StageGenerate
	result, err := o.advance(ctx, session)
	if err != nil {
		return nil, err
	}
	if result.Await != AwaitDecision {
		// Validation cannot re-trigger from Generate; anything else here
		// is a terminal result and passes through.
		return result, nil
	}

	if session.FinalContent() == prior {
		slog.Warn("revision produced unchanged draft", "session_id", session.ID, "revisions", len(session.History))
		result.Soft = types.ErrUnchangedDraft
	}
	return result, nil
}
