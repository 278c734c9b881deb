// Package transform implements the content transformer: each exported
// method is one model call that turns a typed input into the next stage's
// typed payload. Malformed model output is reported as *types.TransformError
// so the orchestrator can retry and surface it.
package transform

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/user/postpilot/internal/types"
	"github.com/user/postpilot/pkg/llm"
)

type Transformer struct {
	provider llm.Provider
	counter  *tokenCounter
}

// New creates a Transformer backed by the given provider. model and
// maxContextTokens control prompt budgeting for revision history.
func New(provider llm.Provider, model string, maxContextTokens int) (*Transformer, error) {
	counter, err := newTokenCounter(model, maxContextTokens)
	if err != nil {
		return nil, err
	}
	return &Transformer{provider: provider, counter: counter}, nil
}

func (t *Transformer) complete(ctx context.Context, kind types.TransformKind, req llm.Request) (string, error) {
	out, err := t.provider.Complete(ctx, req)
	if err != nil {
		return "", &types.TransformError{Kind: kind, Err: err}
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", &types.TransformError{Kind: kind, Err: fmt.Errorf("empty response")}
	}
	return out, nil
}

func (t *Transformer) completeJSON(ctx context.Context, kind types.TransformKind, req llm.Request, target any) error {
	out, err := t.complete(ctx, kind, req)
	if err != nil {
		return err
	}
	if err := decodeJSON(out, target); err != nil {
		return &types.TransformError{Kind: kind, Err: err}
	}
	return nil
}

// Structure converts raw notes into a structured note.
func (t *Transformer) Structure(ctx context.Context, rawInput string, attachments []string) (*types.StructuredNote, error) {
	user := "Structure the following rough notes into JSON:\n\n" + rawInput
	if len(attachments) > 0 {
		user += "\n\nThe author attached these media files: " + strings.Join(attachments, ", ")
	}

	var note types.StructuredNote
	if err := t.completeJSON(ctx, types.KindStructure, llm.Request{
		System:      structureSystemPrompt,
		User:        user,
		Temperature: 0.7,
	}, &note); err != nil {
		return nil, err
	}
	return &note, nil
}

// Validate checks a structured note for completeness. An incomplete result
// is not an error; it carries the clarifying questions for the caller.
func (t *Transformer) Validate(ctx context.Context, note *types.StructuredNote) (*types.Validation, error) {
	data, err := json.MarshalIndent(note, "", "  ")
	if err != nil {
		return nil, &types.TransformError{Kind: types.KindValidate, Err: err}
	}

	var result types.Validation
	if err := t.completeJSON(ctx, types.KindValidate, llm.Request{
		System:      validateSystemPrompt,
		User:        "Validate the completeness of this post data:\n\n" + string(data),
		Temperature: 0.5,
	}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Enrich extracts the persona context relevant to the note.
func (t *Transformer) Enrich(ctx context.Context, note *types.StructuredNote, profile *types.Profile) (*types.PersonaContext, error) {
	noteJSON, err := json.Marshal(note)
	if err != nil {
		return nil, &types.TransformError{Kind: types.KindEnrich, Err: err}
	}
	profileJSON, err := json.Marshal(profile)
	if err != nil {
		return nil, &types.TransformError{Kind: types.KindEnrich, Err: err}
	}

	var persona types.PersonaContext
	if err := t.completeJSON(ctx, types.KindEnrich, llm.Request{
		System:      enrichSystemPrompt,
		User:        fmt.Sprintf("Post data:\n%s\n\nAuthor profile:\n%s", noteJSON, profileJSON),
		Temperature: 0.5,
	}, &persona); err != nil {
		return nil, err
	}
	return &persona, nil
}

// Generate produces a draft post from the note, persona context, and any
// prior revision history. The history rides along as conversation turns so
// the model sees what changed and why; oversized history is trimmed oldest
// first to fit the token budget.
func (t *Transformer) Generate(ctx context.Context, note *types.StructuredNote, persona *types.PersonaContext, profile *types.Profile, history []types.Revision) (string, error) {
	noteJSON, err := json.Marshal(note)
	if err != nil {
		return "", &types.TransformError{Kind: types.KindGenerate, Err: err}
	}
	personaJSON, err := json.Marshal(persona)
	if err != nil {
		return "", &types.TransformError{Kind: types.KindGenerate, Err: err}
	}
	profileJSON, err := json.Marshal(profile)
	if err != nil {
		return "", &types.TransformError{Kind: types.KindGenerate, Err: err}
	}

	req := llm.Request{
		System:      generateSystemPrompt,
		Temperature: 0.8,
	}

	budget := t.counter.max / 2
	for _, rev := range t.counter.trimHistory(history, budget) {
		req.History = append(req.History,
			llm.Message{Role: "assistant", Content: rev.Draft},
			llm.Message{Role: "user", Content: "Feedback: " + rev.Feedback},
		)
	}

	req.User = fmt.Sprintf("Post data:\n%s\n\nPersona context:\n%s\n\nAuthor profile:\n%s\n\nWrite the post.",
		noteJSON, personaJSON, profileJSON)

	return t.complete(ctx, types.KindGenerate, req)
}

// Refine humanizes a draft while preserving its facts.
func (t *Transformer) Refine(ctx context.Context, draft string, persona *types.PersonaContext) (string, error) {
	user := "Refine this draft:\n\n" + draft
	if persona != nil && persona.Tone != "" {
		user += "\n\nKeep this tone: " + persona.Tone
	}
	return t.complete(ctx, types.KindRefine, llm.Request{
		System:      refineSystemPrompt,
		User:        user,
		Temperature: 0.6,
	})
}

// ExtractFacts pulls new professional facts out of published content for
// the persona updater.
func (t *Transformer) ExtractFacts(ctx context.Context, content string, note *types.StructuredNote, profile *types.Profile) (*types.PersonaFacts, error) {
	profileJSON, err := json.Marshal(profile)
	if err != nil {
		return nil, &types.TransformError{Kind: types.KindExtractFacts, Err: err}
	}
	user := fmt.Sprintf("Published post:\n%s\n\nCurrent profile:\n%s", content, profileJSON)
	if note != nil {
		if noteJSON, err := json.Marshal(note); err == nil {
			user += "\n\nStructured post data:\n" + string(noteJSON)
		}
	}

	var facts types.PersonaFacts
	if err := t.completeJSON(ctx, types.KindExtractFacts, llm.Request{
		System:      extractSystemPrompt,
		User:        user,
		Temperature: 0.3,
	}, &facts); err != nil {
		return nil, err
	}
	return &facts, nil
}
