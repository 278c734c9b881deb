package persona

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/user/postpilot/internal/types"
)

// Updater grows the persona profile from published posts. It runs the
// fact extraction transformation, merges only genuinely new facts into
// the profile, and saves with a backup so any update can be rolled back.
type Updater struct {
	transformer types.Transformer
	store       types.PersonaStore
}

// NewUpdater creates an Updater over the given transformer and store.
func NewUpdater(transformer types.Transformer, store types.PersonaStore) *Updater {
	return &Updater{transformer: transformer, store: store}
}

// UpdateFromPost extracts facts from a published post and merges them into
// the profile. The structured note is optional context; scheduled publishes
// long after the interactive session pass nil. Returns true when the
// profile changed.
func (u *Updater) UpdateFromPost(ctx context.Context, content string, note *types.StructuredNote) (bool, error) {
	profile, err := u.store.Load(ctx)
	if err != nil {
		return false, fmt.Errorf("load persona: %w", err)
	}

	facts, err := u.transformer.ExtractFacts(ctx, content, note, profile)
	if err != nil {
		return false, fmt.Errorf("extract persona facts: %w", err)
	}

	if !merge(profile, facts) {
		slog.Debug("persona unchanged, skipping save")
		return false, nil
	}

	if err := u.store.Save(ctx, profile, true); err != nil {
		return false, fmt.Errorf("save persona: %w", err)
	}
	slog.Info("persona updated",
		"achievements", len(facts.Achievements),
		"experiences", len(facts.Experiences),
		"skills", len(facts.Skills),
		"interests", len(facts.Interests))
	return true, nil
}

// merge applies facts to the profile in place. Lists grow additively with
// case-insensitive dedupe; overwrites replace scalar fields when the
// extraction reports a high-confidence correction. Returns true when
// anything changed.
func merge(profile *types.Profile, facts *types.PersonaFacts) bool {
	changed := false

	for _, skill := range facts.Skills {
		if appendUnique(&profile.Skills, skill) {
			changed = true
		}
	}
	for _, interest := range facts.Interests {
		if appendUnique(&profile.Interests, interest) {
			changed = true
		}
	}

	for _, achievement := range facts.Achievements {
		if achievement.Title == "" || hasAchievement(profile.Achievements, achievement.Title) {
			continue
		}
		profile.Achievements = append(profile.Achievements, achievement)
		changed = true
	}
	for _, experience := range facts.Experiences {
		if experience.Title == "" || hasExperience(profile.Experiences, experience.Title) {
			continue
		}
		profile.Experiences = append(profile.Experiences, experience)
		changed = true
	}

	for field, value := range facts.Overwrites {
		if value == "" {
			continue
		}
		switch strings.ToLower(field) {
		case "name":
			if profile.Name != value {
				profile.Name = value
				changed = true
			}
		case "headline":
			if profile.Headline != value {
				profile.Headline = value
				changed = true
			}
		case "tone":
			if profile.Tone != value {
				profile.Tone = value
				changed = true
			}
		case "goals":
			if profile.Goals != value {
				profile.Goals = value
				changed = true
			}
		default:
			slog.Warn("ignoring unknown persona overwrite", "field", field)
		}
	}

	return changed
}

func appendUnique(list *[]string, value string) bool {
	value = strings.TrimSpace(value)
	if value == "" {
		return false
	}
	for _, existing := range *list {
		if strings.EqualFold(existing, value) {
			return false
		}
	}
	*list = append(*list, value)
	return true
}

func hasAchievement(list []types.Achievement, title string) bool {
	for _, a := range list {
		if strings.EqualFold(a.Title, title) {
			return true
		}
	}
	return false
}

func hasExperience(list []types.Experience, title string) bool {
	for _, e := range list {
		if strings.EqualFold(e.Title, title) {
			return true
		}
	}
	return false
}
