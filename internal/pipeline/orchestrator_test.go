package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/user/postpilot/internal/types"
)

// fakeTransformer records the order of calls and returns configurable
// outputs. failures maps a kind to how many times it should fail before
// succeeding.
type fakeTransformer struct {
	mu       sync.Mutex
	calls    []types.TransformKind
	failures map[types.TransformKind]int

	validation *types.Validation
	drafts     []string
	draftIdx   int
	refinePass bool // when true, Refine returns its input unchanged
}

func newFakeTransformer() *fakeTransformer {
	return &fakeTransformer{
		failures:   map[types.TransformKind]int{},
		validation: &types.Validation{Complete: true},
		drafts:     []string{"draft one"},
	}
}

func (f *fakeTransformer) record(kind types.TransformKind) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, kind)
	if f.failures[kind] > 0 {
		f.failures[kind]--
		return &types.TransformError{Kind: kind, Err: errors.New("scripted failure")}
	}
	return nil
}

func (f *fakeTransformer) callsOf(kind types.TransformKind) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == kind {
			n++
		}
	}
	return n
}

func (f *fakeTransformer) Structure(_ context.Context, _ string, _ []string) (*types.StructuredNote, error) {
	if err := f.record(types.KindStructure); err != nil {
		return nil, err
	}
	return &types.StructuredNote{EventType: "project", Description: "shipped feature X"}, nil
}

func (f *fakeTransformer) Validate(_ context.Context, _ *types.StructuredNote) (*types.Validation, error) {
	if err := f.record(types.KindValidate); err != nil {
		return nil, err
	}
	v := f.validation
	// Subsequent validations pass so answer loops terminate.
	f.validation = &types.Validation{Complete: true}
	return v, nil
}

func (f *fakeTransformer) Enrich(_ context.Context, _ *types.StructuredNote, _ *types.Profile) (*types.PersonaContext, error) {
	if err := f.record(types.KindEnrich); err != nil {
		return nil, err
	}
	return &types.PersonaContext{Tone: "direct"}, nil
}

func (f *fakeTransformer) Generate(_ context.Context, _ *types.StructuredNote, _ *types.PersonaContext, _ *types.Profile, history []types.Revision) (string, error) {
	if err := f.record(types.KindGenerate); err != nil {
		return "", err
	}
	if f.draftIdx < len(f.drafts) {
		d := f.drafts[f.draftIdx]
		f.draftIdx++
		return d, nil
	}
	return fmt.Sprintf("draft after %d revisions", len(history)), nil
}

func (f *fakeTransformer) Refine(_ context.Context, draft string, _ *types.PersonaContext) (string, error) {
	if err := f.record(types.KindRefine); err != nil {
		return "", err
	}
	if f.refinePass {
		return draft, nil
	}
	return "refined: " + draft, nil
}

func (f *fakeTransformer) ExtractFacts(_ context.Context, _ string, _ *types.StructuredNote, _ *types.Profile) (*types.PersonaFacts, error) {
	if err := f.record(types.KindExtractFacts); err != nil {
		return nil, err
	}
	return &types.PersonaFacts{}, nil
}

type fakePersonaStore struct {
	profile *types.Profile
}

func (f *fakePersonaStore) Load(_ context.Context) (*types.Profile, error) {
	if f.profile == nil {
		return &types.Profile{Name: "Test Author"}, nil
	}
	return f.profile, nil
}

func (f *fakePersonaStore) Save(_ context.Context, profile *types.Profile, _ bool) error {
	f.profile = profile
	return nil
}

type fakeRegistry struct {
	mu      sync.Mutex
	records map[types.PostID]*types.PostRecord
	nextID  types.PostID
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{records: map[types.PostID]*types.PostRecord{}}
}

func (f *fakeRegistry) Append(_ context.Context, record *types.PostRecord) (types.PostID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	record.ID = f.nextID
	record.CreatedAt = time.Now()
	clone := *record
	f.records[record.ID] = &clone
	return record.ID, nil
}

func (f *fakeRegistry) Get(_ context.Context, id types.PostID) (*types.PostRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[id]
	if !ok {
		return nil, types.ErrNotFound
	}
	clone := *rec
	return &clone, nil
}

func (f *fakeRegistry) List(_ context.Context) ([]*types.PostRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*types.PostRecord
	for _, rec := range f.records {
		clone := *rec
		out = append(out, &clone)
	}
	return out, nil
}

func (f *fakeRegistry) FindDue(_ context.Context, now time.Time) ([]*types.PostRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var due []*types.PostRecord
	for _, rec := range f.records {
		if rec.Due(now) {
			clone := *rec
			due = append(due, &clone)
		}
	}
	return due, nil
}

func (f *fakeRegistry) CompareAndSetStatus(_ context.Context, id types.PostID, expect, next types.Status) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[id]
	if !ok {
		return false, types.ErrNotFound
	}
	if rec.Status != expect {
		return false, nil
	}
	rec.Status = next
	rec.UpdatedAt = time.Now()
	return true, nil
}

func (f *fakeRegistry) MarkPosted(_ context.Context, id types.PostID, at time.Time, engagement *types.Engagement) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[id]
	if !ok {
		return types.ErrNotFound
	}
	if rec.Status != types.StatusPublishing {
		return fmt.Errorf("mark posted from %s", rec.Status)
	}
	rec.Status = types.StatusPosted
	rec.PublishedAt = &at
	rec.Engagement = engagement
	return nil
}

func (f *fakeRegistry) Reschedule(_ context.Context, id types.PostID, at time.Time, attempts int, lastError string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[id]
	if !ok {
		return types.ErrNotFound
	}
	rec.Status = types.StatusScheduled
	rec.ScheduledAt = at
	rec.Attempts = attempts
	rec.LastError = lastError
	return nil
}

func (f *fakeRegistry) MarkFailed(_ context.Context, id types.PostID, lastError string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[id]
	if !ok {
		return types.ErrNotFound
	}
	rec.Status = types.StatusFailed
	rec.LastError = lastError
	return nil
}

func newTestOrchestrator(tr types.Transformer, reg types.PostRegistry, opts ...Option) *Orchestrator {
	opts = append(opts, WithRetryBackoff(0))
	o := New(tr, &fakePersonaStore{}, reg, opts...)
	o.sleep = func(time.Duration) {}
	return o
}

func TestPipelineRunsStagesInOrder(t *testing.T) {
	tr := newFakeTransformer()
	reg := newFakeRegistry()
	o := newTestOrchestrator(tr, reg)

	session, result, err := o.Start(context.Background(), Input{Lines: []string{"shipped feature X, 2 weeks, learned Y"}})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if result.Await != AwaitDecision {
		t.Fatalf("Await = %q, want decision", result.Await)
	}
	if session.Stage != StageApprove {
		t.Errorf("Stage = %s, want approve", session.Stage)
	}

	want := []types.TransformKind{types.KindStructure, types.KindValidate, types.KindEnrich, types.KindGenerate, types.KindRefine}
	if len(tr.calls) != len(want) {
		t.Fatalf("calls = %v, want %v", tr.calls, want)
	}
	for i, kind := range want {
		if tr.calls[i] != kind {
			t.Errorf("call %d = %s, want %s", i, tr.calls[i], kind)
		}
	}
	if result.Draft != "refined: draft one" {
		t.Errorf("Draft = %q", result.Draft)
	}
}

func TestValidationLoop(t *testing.T) {
	tr := newFakeTransformer()
	tr.validation = &types.Validation{
		Complete:      false,
		MissingFields: []string{"role"},
		Questions:     []string{"What was your role?"},
	}
	o := newTestOrchestrator(tr, newFakeRegistry())

	session, result, err := o.Start(context.Background(), Input{Lines: []string{"notes"}})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if result.Await != AwaitAnswers {
		t.Fatalf("Await = %q, want answers", result.Await)
	}
	if session.Stage != StageValidate {
		t.Errorf("Stage = %s, want validate", session.Stage)
	}

	result, err = o.Answer(context.Background(), session, []types.ClarifyingAnswer{
		{Question: "What was your role?", Answer: "Tech lead"},
	})
	if err != nil {
		t.Fatalf("Answer failed: %v", err)
	}
	if result.Await != AwaitDecision {
		t.Fatalf("Await = %q, want decision after answers", result.Await)
	}
	if len(session.Note.Answers) != 1 {
		t.Errorf("Answers = %v", session.Note.Answers)
	}
	if tr.callsOf(types.KindValidate) != 2 {
		t.Errorf("validate calls = %d, want 2", tr.callsOf(types.KindValidate))
	}
}

func TestApproveFinalizesRoundTrip(t *testing.T) {
	tr := newFakeTransformer()
	reg := newFakeRegistry()
	o := newTestOrchestrator(tr, reg)

	when := time.Now().Add(4 * time.Hour).Truncate(time.Second)
	session, _, err := o.Start(context.Background(), Input{
		Lines:       []string{"shipped feature X"},
		Attachments: []string{"/media/demo.png"},
		ScheduledAt: &when,
	})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	result, err := o.Decide(context.Background(), session, Decision{Action: ActionApprove})
	if err != nil {
		t.Fatalf("Decide failed: %v", err)
	}
	if result.Record == nil {
		t.Fatal("expected finalized record")
	}
	if session.Stage != StageFinalized {
		t.Errorf("Stage = %s, want finalized", session.Stage)
	}

	stored, err := reg.Get(context.Background(), result.Record.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if stored.Content != session.FinalContent() {
		t.Errorf("Content = %q, want %q", stored.Content, session.FinalContent())
	}
	if len(stored.Attachments) != 1 || stored.Attachments[0] != "/media/demo.png" {
		t.Errorf("Attachments = %v", stored.Attachments)
	}
	if !stored.ScheduledAt.Equal(when) {
		t.Errorf("ScheduledAt = %v, want %v", stored.ScheduledAt, when)
	}
	if stored.Status != types.StatusScheduled {
		t.Errorf("Status = %s, want scheduled", stored.Status)
	}
	if stored.PublishedAt != nil {
		t.Error("PublishedAt should be unset at finalize")
	}
}

func TestFinalizeWithoutScheduleIsImmediate(t *testing.T) {
	tr := newFakeTransformer()
	reg := newFakeRegistry()
	o := newTestOrchestrator(tr, reg)

	before := time.Now()
	session, _, err := o.Start(context.Background(), Input{Lines: []string{"shipped feature X, 2 weeks, learned Y"}})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	result, err := o.Decide(context.Background(), session, Decision{Action: ActionApprove})
	if err != nil {
		t.Fatalf("Decide failed: %v", err)
	}

	rec := result.Record
	if rec.Status != types.StatusScheduled {
		t.Errorf("Status = %s, want scheduled", rec.Status)
	}
	if rec.ScheduledAt.Before(before) || rec.ScheduledAt.After(time.Now()) {
		t.Errorf("ScheduledAt = %v, want ~now", rec.ScheduledAt)
	}
	if !rec.Due(time.Now()) {
		t.Error("immediate record should be due for the next cycle")
	}
}

func TestReviseAppendsHistoryAndRegenerates(t *testing.T) {
	tr := newFakeTransformer()
	o := newTestOrchestrator(tr, newFakeRegistry())

	session, _, err := o.Start(context.Background(), Input{Lines: []string{"notes"}})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	prior := session.FinalContent()

	result, err := o.Decide(context.Background(), session, Decision{Action: ActionRevise, Feedback: "make it shorter"})
	if err != nil {
		t.Fatalf("Decide failed: %v", err)
	}
	if result.Await != AwaitDecision {
		t.Fatalf("Await = %q, want decision", result.Await)
	}
	if len(session.History) != 1 {
		t.Fatalf("History length = %d, want 1", len(session.History))
	}
	if session.History[0].Feedback != "make it shorter" {
		t.Errorf("Feedback = %q", session.History[0].Feedback)
	}
	if session.History[0].Draft != prior {
		t.Errorf("History draft = %q, want prior draft", session.History[0].Draft)
	}
	if tr.callsOf(types.KindGenerate) != 2 {
		t.Errorf("generate calls = %d, want 2", tr.callsOf(types.KindGenerate))
	}
	if result.Revisions != 1 {
		t.Errorf("Revisions = %d, want 1", result.Revisions)
	}
	if result.Soft != nil {
		t.Errorf("unexpected soft failure: %v", result.Soft)
	}
}

func TestReviseUnchangedDraftIsSoftFailure(t *testing.T) {
	tr := newFakeTransformer()
	// Generate and Refine keep returning the same output.
	tr.drafts = []string{"same draft", "same draft"}
	tr.refinePass = true
	o := newTestOrchestrator(tr, newFakeRegistry())

	session, _, err := o.Start(context.Background(), Input{Lines: []string{"notes"}})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	result, err := o.Decide(context.Background(), session, Decision{Action: ActionRevise, Feedback: "change it"})
	if err != nil {
		t.Fatalf("Decide failed: %v", err)
	}
	if !errors.Is(result.Soft, types.ErrUnchangedDraft) {
		t.Errorf("Soft = %v, want ErrUnchangedDraft", result.Soft)
	}
	if result.Await != AwaitDecision {
		t.Errorf("Await = %q, session should stay at approve", result.Await)
	}
}

func TestRegeneratePreservesHistory(t *testing.T) {
	tr := newFakeTransformer()
	o := newTestOrchestrator(tr, newFakeRegistry())

	session, _, err := o.Start(context.Background(), Input{Lines: []string{"notes"}})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if _, err := o.Decide(context.Background(), session, Decision{Action: ActionRevise, Feedback: "shorter"}); err != nil {
		t.Fatalf("revise failed: %v", err)
	}

	result, err := o.Decide(context.Background(), session, Decision{Action: ActionRegenerate})
	if err != nil {
		t.Fatalf("regenerate failed: %v", err)
	}
	if result.Await != AwaitDecision {
		t.Fatalf("Await = %q", result.Await)
	}
	if tr.callsOf(types.KindStructure) != 2 {
		t.Errorf("structure calls = %d, want 2 (regenerate restarts from structure)", tr.callsOf(types.KindStructure))
	}
	if len(session.History) != 1 {
		t.Errorf("History length = %d, regenerate must preserve the audit trail", len(session.History))
	}
}

func TestCancelWritesNothing(t *testing.T) {
	tr := newFakeTransformer()
	reg := newFakeRegistry()
	o := newTestOrchestrator(tr, reg)

	session, _, err := o.Start(context.Background(), Input{Lines: []string{"notes"}})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	result, err := o.Decide(context.Background(), session, Decision{Action: ActionCancel})
	if err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if !result.Aborted {
		t.Error("expected aborted result")
	}
	if session.Stage != StageAborted {
		t.Errorf("Stage = %s, want aborted", session.Stage)
	}
	records, _ := reg.List(context.Background())
	if len(records) != 0 {
		t.Errorf("registry has %d records, want 0", len(records))
	}
}

func TestStageRetriesOnceThenFails(t *testing.T) {
	tr := newFakeTransformer()
	tr.failures[types.KindGenerate] = 2
	o := newTestOrchestrator(tr, newFakeRegistry())

	session, _, err := o.Start(context.Background(), Input{Lines: []string{"notes"}})
	if err == nil {
		t.Fatal("expected stage failure after retry")
	}
	if session == nil {
		t.Fatal("session should survive a stage failure for recovery")
	}
	if session.Stage != StageGenerate {
		t.Errorf("Stage = %s, want generate (for retry recovery)", session.Stage)
	}
	if tr.callsOf(types.KindGenerate) != 2 {
		t.Errorf("generate calls = %d, want 2 (one retry)", tr.callsOf(types.KindGenerate))
	}

	// Manual retry succeeds.
	result, err := o.Retry(context.Background(), session)
	if err != nil {
		t.Fatalf("Retry failed: %v", err)
	}
	if result.Await != AwaitDecision {
		t.Errorf("Await = %q after recovery", result.Await)
	}
}

func TestStageRetriesOnceThenSucceeds(t *testing.T) {
	tr := newFakeTransformer()
	tr.failures[types.KindStructure] = 1
	o := newTestOrchestrator(tr, newFakeRegistry())

	_, result, err := o.Start(context.Background(), Input{Lines: []string{"notes"}})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if result.Await != AwaitDecision {
		t.Errorf("Await = %q", result.Await)
	}
	if tr.callsOf(types.KindStructure) != 2 {
		t.Errorf("structure calls = %d, want 2", tr.callsOf(types.KindStructure))
	}
}

func TestMaxRevisionsCap(t *testing.T) {
	tr := newFakeTransformer()
	o := newTestOrchestrator(tr, newFakeRegistry(), WithMaxRevisions(1))

	session, _, err := o.Start(context.Background(), Input{Lines: []string{"notes"}})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if _, err := o.Decide(context.Background(), session, Decision{Action: ActionRevise, Feedback: "first"}); err != nil {
		t.Fatalf("first revise failed: %v", err)
	}
	if _, err := o.Decide(context.Background(), session, Decision{Action: ActionRevise, Feedback: "second"}); err == nil {
		t.Error("expected revision limit error")
	}
}

func TestDecideRequiresApproveStage(t *testing.T) {
	tr := newFakeTransformer()
	o := newTestOrchestrator(tr, newFakeRegistry())

	session := &Session{Stage: StageStructure}
	if _, err := o.Decide(context.Background(), session, Decision{Action: ActionApprove}); err == nil {
		t.Error("expected error when deciding outside approve stage")
	}
	if _, err := o.Answer(context.Background(), session, nil); err == nil {
		t.Error("expected error when answering outside validate stage")
	}
}
