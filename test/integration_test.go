//go:build integration

package test

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/user/postpilot/internal/persona"
	"github.com/user/postpilot/internal/pipeline"
	"github.com/user/postpilot/internal/registry"
	"github.com/user/postpilot/internal/scheduler"
	"github.com/user/postpilot/internal/transform"
	"github.com/user/postpilot/internal/types"
	"github.com/user/postpilot/pkg/llm"
)

// scriptedProvider returns canned completions in call order.
type scriptedProvider struct {
	responses []string
	calls     int
}

func (p *scriptedProvider) Complete(_ context.Context, _ llm.Request) (string, error) {
	if p.calls >= len(p.responses) {
		return "", fmt.Errorf("unexpected completion call %d", p.calls+1)
	}
	response := p.responses[p.calls]
	p.calls++
	return response, nil
}

// fakePublisher succeeds on every call.
type fakePublisher struct {
	calls int
}

func (f *fakePublisher) Publish(_ context.Context, content string, _ []string) (*types.Engagement, error) {
	f.calls++
	return &types.Engagement{
		PostURN: "urn:li:share:100",
		URL:     "https://www.linkedin.com/feed/update/urn:li:share:100",
	}, nil
}

// TestEndToEnd drives a complete session from rough notes to a published
// post with a persona update, using a scripted model and a fake platform.
func TestEndToEnd(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	provider := &scriptedProvider{responses: []string{
		// structure
		`{"event_type":"hackathon","title_hook":"Won the AI track","description":"Built a forecasting model","role":"team lead","tools_skills":["Go","TensorFlow"],"outcome":"first place"}`,
		// validate: complete, no questions
		`{"is_complete":true}`,
		// enrich
		`{"tone":"enthusiastic","relevant_experience":"past ML projects","career_goal_alignment":"ML engineering"}`,
		// generate
		"Thrilled to share that our team took first place in the AI track!",
		// refine
		"Thrilled to share that our team took first place in the AI track! #AI #Hackathon",
		// extract facts after publish
		`{"achievements":[{"title":"Hackathon AI track winner","date":"2026-08"}],"skills":["TensorFlow"]}`,
	}}

	transformer, err := transform.New(provider, "gpt-4o-mini", 16000)
	if err != nil {
		t.Fatalf("create transformer: %v", err)
	}

	personaStore := persona.NewStore(dir)
	if err := personaStore.Save(ctx, &types.Profile{Name: "Jordan", Skills: []string{"Go"}}, false); err != nil {
		t.Fatalf("seed persona: %v", err)
	}

	store, err := registry.Open(filepath.Join(dir, "posts.db"))
	if err != nil {
		t.Fatalf("open registry: %v", err)
	}
	defer store.Close()

	// Interactive session: notes in, approval out.
	orch := pipeline.New(transformer, personaStore, store)

	scheduledAt := time.Now().Add(-time.Second)
	session, result, err := orch.Start(ctx, pipeline.Input{
		Lines:       []string{"won the hackathon ai track", "team of four, i led"},
		ScheduledAt: &scheduledAt,
	})
	if err != nil {
		t.Fatalf("start session: %v", err)
	}
	if result.Await != pipeline.AwaitDecision {
		t.Fatalf("await = %q, want decision", result.Await)
	}

	result, err = orch.Decide(ctx, session, pipeline.Decision{Action: pipeline.ActionApprove})
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if result.Record == nil || result.Record.Status != types.StatusScheduled {
		t.Fatalf("finalize result = %+v", result)
	}

	// Publish cycle with persona update on success.
	updater := persona.NewUpdater(transformer, personaStore)
	publisher := &fakePublisher{}
	sched := scheduler.New(store, publisher,
		scheduler.WithPostedHook(func(ctx context.Context, record *types.PostRecord) {
			if _, err := updater.UpdateFromPost(ctx, record.Content, nil); err != nil {
				t.Errorf("persona update: %v", err)
			}
		}))

	if err := sched.RunCycle(ctx); err != nil {
		t.Fatalf("publish cycle: %v", err)
	}
	if publisher.calls != 1 {
		t.Fatalf("publish calls = %d, want 1", publisher.calls)
	}

	record, err := store.Get(ctx, result.Record.ID)
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	if record.Status != types.StatusPosted {
		t.Errorf("status = %s, want posted", record.Status)
	}
	if record.PublishedAt == nil {
		t.Error("published_at not set")
	}
	if record.Engagement == nil || record.Engagement.PostURN != "urn:li:share:100" {
		t.Errorf("engagement = %+v", record.Engagement)
	}

	// Persona grew from the published post, with a rollback point.
	profile, err := personaStore.Load(ctx)
	if err != nil {
		t.Fatalf("load persona: %v", err)
	}
	if len(profile.Skills) != 2 {
		t.Errorf("skills = %v, want [Go TensorFlow]", profile.Skills)
	}
	if len(profile.Achievements) != 1 {
		t.Errorf("achievements = %+v", profile.Achievements)
	}
	backups, err := personaStore.Backups(ctx)
	if err != nil || len(backups) != 1 {
		t.Errorf("backups = %v, err = %v", backups, err)
	}

	// A second cycle finds nothing due.
	if err := sched.RunCycle(ctx); err != nil {
		t.Fatalf("idle cycle: %v", err)
	}
	if publisher.calls != 1 {
		t.Errorf("publish calls after idle cycle = %d, want 1", publisher.calls)
	}

	if provider.calls != len(provider.responses) {
		t.Errorf("model calls = %d, want %d", provider.calls, len(provider.responses))
	}
}
