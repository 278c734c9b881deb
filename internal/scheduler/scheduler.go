package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/semaphore"

	"github.com/user/postpilot/internal/types"
)

// PostedHook runs after a record is durably marked posted. Failures are
// logged and never affect the record.
type PostedHook func(ctx context.Context, record *types.PostRecord)

// Scheduler polls the post registry for due records and publishes them.
// Each due record is claimed with an atomic status swap before any network
// call, so a record is published at most once even with overlapping cycles
// or multiple processes sharing the registry.
type Scheduler struct {
	registry  types.PostRegistry
	publisher types.Publisher
	notifiers []types.Notifier
	onPosted  PostedHook

	policy         *RetryPolicy
	pollInterval   time.Duration
	publishTimeout time.Duration
	sem            *semaphore.Weighted
	cron           *cron.Cron
	now            func() time.Time
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithRetryPolicy overrides the backoff policy for failed publishes.
func WithRetryPolicy(policy *RetryPolicy) Option {
	return func(s *Scheduler) { s.policy = policy }
}

// WithPollInterval sets how often the due-post poll fires.
func WithPollInterval(interval time.Duration) Option {
	return func(s *Scheduler) { s.pollInterval = interval }
}

// WithPublishTimeout bounds each publish call.
func WithPublishTimeout(timeout time.Duration) Option {
	return func(s *Scheduler) { s.publishTimeout = timeout }
}

// WithMaxConcurrent caps how many records one cycle publishes in parallel.
// Values below 1 are clamped to 1 so the cycle can always make progress.
func WithMaxConcurrent(n int64) Option {
	return func(s *Scheduler) {
		if n < 1 {
			n = 1
		}
		s.sem = semaphore.NewWeighted(n)
	}
}

// WithNotifiers registers notifiers called after a record lands in a
// terminal-for-this-cycle state (posted or failed).
func WithNotifiers(notifiers ...types.Notifier) Option {
	return func(s *Scheduler) { s.notifiers = append(s.notifiers, notifiers...) }
}

// WithPostedHook registers a callback run after each successful publish.
func WithPostedHook(hook PostedHook) Option {
	return func(s *Scheduler) { s.onPosted = hook }
}

// New creates a Scheduler over the given registry and publisher.
func New(registry types.PostRegistry, publisher types.Publisher, opts ...Option) *Scheduler {
	s := &Scheduler{
		registry:       registry,
		publisher:      publisher,
		policy:         DefaultRetryPolicy(),
		pollInterval:   2 * time.Minute,
		publishTimeout: 60 * time.Second,
		sem:            semaphore.NewWeighted(2),
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start runs one immediate cycle and then polls on the configured interval
// until the context is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.cron = cron.New()
	spec := fmt.Sprintf("@every %s", s.pollInterval)
	_, err := s.cron.AddFunc(spec, func() {
		if err := s.RunCycle(ctx); err != nil {
			slog.Error("publish cycle failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("register poll schedule: %w", err)
	}

	slog.Info("scheduler started", "poll_interval", s.pollInterval)
	if err := s.RunCycle(ctx); err != nil {
		slog.Error("publish cycle failed", "error", err)
	}

	s.cron.Start()
	<-ctx.Done()
	stopped := s.cron.Stop()
	<-stopped.Done()
	return nil
}

// RunCycle finds all due records and publishes them, returning after every
// claimed record has reached scheduled, posted, or failed.
func (s *Scheduler) RunCycle(ctx context.Context) error {
	due, err := s.registry.FindDue(ctx, s.now())
	if err != nil {
		return fmt.Errorf("find due posts: %w", err)
	}
	if len(due) == 0 {
		return nil
	}
	slog.Info("publish cycle", "due", len(due))

	done := make(chan struct{}, len(due))
	for _, record := range due {
		if err := s.sem.Acquire(ctx, 1); err != nil {
			return err
		}
		go func(record *types.PostRecord) {
			defer s.sem.Release(1)
			defer func() { done <- struct{}{} }()
			s.publishOne(ctx, record)
		}(record)
	}
	for range due {
		<-done
	}
	return nil
}

// publishOne claims a record and drives it through one publish attempt.
func (s *Scheduler) publishOne(ctx context.Context, record *types.PostRecord) {
	claimed, err := s.registry.CompareAndSetStatus(ctx, record.ID, types.StatusScheduled, types.StatusPublishing)
	if err != nil {
		slog.Error("claim failed", "post", record.ID, "error", err)
		return
	}
	if !claimed {
		// Another cycle or process got there first.
		slog.Debug("claim lost", "post", record.ID)
		return
	}

	pubCtx, cancel := context.WithTimeout(ctx, s.publishTimeout)
	engagement, err := s.publisher.Publish(pubCtx, record.Content, record.Attachments)
	cancel()

	if err == nil {
		s.markPosted(ctx, record, engagement)
		return
	}

	attempt := record.Attempts + 1
	if s.policy.ShouldRetry(err, attempt) {
		delay := s.policy.NextDelay(attempt)
		retryAt := s.now().Add(delay)
		slog.Warn("publish failed, rescheduling",
			"post", record.ID, "attempt", attempt, "retry_at", retryAt, "error", err)
		if err := s.registry.Reschedule(ctx, record.ID, retryAt, attempt, err.Error()); err != nil {
			slog.Error("reschedule failed", "post", record.ID, "error", err)
		}
		return
	}

	slog.Error("publish failed permanently", "post", record.ID, "attempt", attempt, "error", err)
	if err := s.registry.MarkFailed(ctx, record.ID, err.Error()); err != nil {
		slog.Error("mark failed failed", "post", record.ID, "error", err)
		return
	}
	s.notify(ctx, record.ID)
}

func (s *Scheduler) markPosted(ctx context.Context, record *types.PostRecord, engagement *types.Engagement) {
	publishedAt := s.now()
	if err := s.registry.MarkPosted(ctx, record.ID, publishedAt, engagement); err != nil {
		slog.Error("mark posted failed", "post", record.ID, "error", err)
		return
	}
	slog.Info("post published", "post", record.ID, "published_at", publishedAt)

	if s.onPosted != nil {
		if posted, err := s.registry.Get(ctx, record.ID); err == nil {
			s.onPosted(ctx, posted)
		}
	}
	s.notify(ctx, record.ID)
}

// notify fans the record's current state out to every notifier. Notifier
// failures are logged, never propagated.
func (s *Scheduler) notify(ctx context.Context, id types.PostID) {
	if len(s.notifiers) == 0 {
		return
	}
	record, err := s.registry.Get(ctx, id)
	if err != nil {
		slog.Error("load record for notify failed", "post", id, "error", err)
		return
	}
	for _, n := range s.notifiers {
		if err := n.Notify(ctx, record); err != nil {
			slog.Warn("notifier failed", "notifier", n.Name(), "post", id, "error", err)
		}
	}
}
