// internal/types/interfaces.go
package types

import (
	"context"
	"time"
)

// TransformKind selects which transformation the content transformer runs.
type TransformKind string

const (
	KindStructure    TransformKind = "structure"
	KindValidate     TransformKind = "validate"
	KindEnrich       TransformKind = "enrich"
	KindGenerate     TransformKind = "generate"
	KindRefine       TransformKind = "refine"
	KindExtractFacts TransformKind = "extract-persona-facts"
)

// Transformer is the content transformation capability. Each method is one
// call into the underlying model; malformed or unavailable output comes
// back as a *TransformError.
type Transformer interface {
	Structure(ctx context.Context, rawInput string, attachments []string) (*StructuredNote, error)
	Validate(ctx context.Context, note *StructuredNote) (*Validation, error)
	Enrich(ctx context.Context, note *StructuredNote, profile *Profile) (*PersonaContext, error)
	Generate(ctx context.Context, note *StructuredNote, persona *PersonaContext, profile *Profile, history []Revision) (string, error)
	Refine(ctx context.Context, draft string, persona *PersonaContext) (string, error)
	ExtractFacts(ctx context.Context, content string, note *StructuredNote, profile *Profile) (*PersonaFacts, error)
}

// Revision is one feedback/draft pair from the approval loop.
type Revision struct {
	Feedback string    `json:"feedback"`
	Draft    string    `json:"draft"`
	At       time.Time `json:"at"`
}

// PersonaStore owns the versioned persona profile document.
type PersonaStore interface {
	Load(ctx context.Context) (*Profile, error)
	// Save persists the profile. When backupPrevious is true the prior
	// version is copied aside first as a rollback point.
	Save(ctx context.Context, profile *Profile, backupPrevious bool) error
}

// PostRegistry is the durable post record store shared between the
// interactive session and the scheduler. CompareAndSetStatus is the only
// concurrency-control primitive: it must be a single atomic conditional
// update.
type PostRegistry interface {
	Append(ctx context.Context, record *PostRecord) (PostID, error)
	Get(ctx context.Context, id PostID) (*PostRecord, error)
	List(ctx context.Context) ([]*PostRecord, error)
	FindDue(ctx context.Context, now time.Time) ([]*PostRecord, error)
	CompareAndSetStatus(ctx context.Context, id PostID, expect, next Status) (bool, error)
	MarkPosted(ctx context.Context, id PostID, at time.Time, engagement *Engagement) error
	Reschedule(ctx context.Context, id PostID, at time.Time, attempts int, lastError string) error
	MarkFailed(ctx context.Context, id PostID, lastError string) error
}

// Publisher posts finalized content to the platform.
type Publisher interface {
	Publish(ctx context.Context, content string, attachments []string) (*Engagement, error)
}

// Notifier receives lifecycle announcements for published or failed posts.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, record *PostRecord) error
}
