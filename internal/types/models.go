// internal/types/models.go
package types

import (
	"time"
)

// Status is the lifecycle state of a post record. Transitions are
// monotonic: scheduled -> publishing -> posted|failed. A failed record may
// be re-queued to scheduled by policy; posted is terminal.
type Status string

const (
	StatusDraft      Status = "draft"
	StatusScheduled  Status = "scheduled"
	StatusPublishing Status = "publishing"
	StatusPosted     Status = "posted"
	StatusFailed     Status = "failed"
)

var transitions = map[Status][]Status{
	StatusDraft:      {StatusScheduled},
	StatusScheduled:  {StatusPublishing},
	StatusPublishing: {StatusPosted, StatusFailed, StatusScheduled},
	StatusFailed:     {StatusScheduled},
	StatusPosted:     {},
}

// CanTransition reports whether moving from s to next is allowed.
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// Engagement is the opaque metrics handle returned by a platform after a
// successful publish. Stored as JSON alongside the record.
type Engagement struct {
	PostURN string `json:"post_urn,omitempty"`
	URL     string `json:"url,omitempty"`
}

// PostRecord is the durable representation of a finalized post. The
// interactive session appends records; only the scheduler moves them
// through publishing and beyond.
type PostRecord struct {
	ID          PostID      `json:"id"`
	Content     string      `json:"content"`
	Attachments []string    `json:"attachments,omitempty"`
	ScheduledAt time.Time   `json:"scheduled_at"`
	PublishedAt *time.Time  `json:"published_at,omitempty"`
	Status      Status      `json:"status"`
	Attempts    int         `json:"attempts"`
	LastError   string      `json:"last_error,omitempty"`
	Engagement  *Engagement `json:"engagement,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// Due reports whether the record is ready for a publish attempt at now.
func (r *PostRecord) Due(now time.Time) bool {
	return r.Status == StatusScheduled && !r.ScheduledAt.After(now)
}

// StructuredNote is the output of the structure transformation: the user's
// rough notes organized into metadata and event details.
type StructuredNote struct {
	EventType   string             `json:"event_type,omitempty"`
	TitleHook   string             `json:"title_hook,omitempty"`
	DateOfEvent string             `json:"date_of_event,omitempty"`
	Description string             `json:"description,omitempty"`
	Role        string             `json:"role,omitempty"`
	ToolsSkills []string           `json:"tools_skills,omitempty"`
	Challenges  string             `json:"challenges,omitempty"`
	Learnings   string             `json:"learnings,omitempty"`
	Outcome     string             `json:"outcome,omitempty"`
	Acknowledge []string           `json:"acknowledgements,omitempty"`
	Question    string             `json:"engagement_question,omitempty"`
	Answers     []ClarifyingAnswer `json:"answers,omitempty"`
}

// ClarifyingAnswer pairs a validation question with the caller's response.
type ClarifyingAnswer struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Validation is the output of the validate transformation.
type Validation struct {
	Complete      bool     `json:"is_complete"`
	MissingFields []string `json:"missing_fields,omitempty"`
	Questions     []string `json:"clarifying_questions,omitempty"`
	Notes         string   `json:"validation_notes,omitempty"`
}

// PersonaContext is the output of the enrich transformation: the slice of
// the persona profile relevant to this post.
type PersonaContext struct {
	Tone               string `json:"tone,omitempty"`
	RelevantExperience string `json:"relevant_experience,omitempty"`
	GoalAlignment      string `json:"career_goal_alignment,omitempty"`
}

// PersonaFacts is the output of the extract-persona-facts transformation,
// merged into the persona profile after a successful publish.
type PersonaFacts struct {
	Achievements []Achievement `json:"achievements,omitempty"`
	Experiences  []Experience  `json:"experiences,omitempty"`
	Skills       []string      `json:"skills,omitempty"`
	Interests    []string      `json:"interests,omitempty"`
	// Overwrites carries explicit high-confidence replacements reported by
	// the transformer, keyed by profile field.
	Overwrites map[string]string `json:"overwrites,omitempty"`
}

type Achievement struct {
	Title        string `json:"title"`
	Organization string `json:"organization,omitempty"`
	Date         string `json:"date,omitempty"`
	Description  string `json:"description,omitempty"`
}

type Experience struct {
	Type         string   `json:"type,omitempty"`
	Title        string   `json:"title"`
	Date         string   `json:"date,omitempty"`
	Description  string   `json:"description,omitempty"`
	Impact       string   `json:"impact,omitempty"`
	Technologies []string `json:"technologies,omitempty"`
}

// Profile is the versioned persona document. Read at pipeline start,
// mutated only by the updater after a successful publish.
type Profile struct {
	Name         string        `json:"name,omitempty"`
	Headline     string        `json:"headline,omitempty"`
	Tone         string        `json:"tone,omitempty"`
	Goals        string        `json:"goals,omitempty"`
	Skills       []string      `json:"skills,omitempty"`
	Interests    []string      `json:"interests,omitempty"`
	Achievements []Achievement `json:"achievements,omitempty"`
	Experiences  []Experience  `json:"experiences,omitempty"`
	UpdatedAt    time.Time     `json:"updated_at,omitempty"`
}
