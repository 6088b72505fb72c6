// Package forms models client form state as values with pure transitions.
// Every transition returns a new value; the receiver is never modified.
package forms

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aura-polls/backend/internal/models"
	"github.com/aura-polls/backend/internal/validation"
)

// CreatePollForm is the state of the poll creation form.
type CreatePollForm struct {
	Title             string
	Question          string
	Description       string
	Options           []string
	PollType          models.PollType
	IsPublic          bool
	AllowMultiple     bool
	MaxVotesPerOption int
	ExpiresAt         *time.Time
}

// NewCreatePollForm returns an empty form with two blank options.
func NewCreatePollForm() CreatePollForm {
	return CreatePollForm{
		Options:           []string{"", ""},
		PollType:          models.PollTypeSingleChoice,
		IsPublic:          true,
		MaxVotesPerOption: 1,
	}
}

func (f CreatePollForm) clone() CreatePollForm {
	out := f
	out.Options = append([]string(nil), f.Options...)
	if f.ExpiresAt != nil {
		t := *f.ExpiresAt
		out.ExpiresAt = &t
	}
	return out
}

func (f CreatePollForm) WithTitle(v string) CreatePollForm {
	out := f.clone()
	out.Title = v
	return out
}

func (f CreatePollForm) WithQuestion(v string) CreatePollForm {
	out := f.clone()
	out.Question = v
	return out
}

func (f CreatePollForm) WithDescription(v string) CreatePollForm {
	out := f.clone()
	out.Description = v
	return out
}

func (f CreatePollForm) WithPublic(v bool) CreatePollForm {
	out := f.clone()
	out.IsPublic = v
	return out
}

func (f CreatePollForm) WithExpiry(t *time.Time) CreatePollForm {
	out := f.clone()
	out.ExpiresAt = nil
	if t != nil {
		v := *t
		out.ExpiresAt = &v
	}
	return out
}

// WithPollType switches the poll type. Single choice clears the multi-vote flag.
func (f CreatePollForm) WithPollType(t models.PollType) CreatePollForm {
	out := f.clone()
	out.PollType = t
	if t == models.PollTypeSingleChoice {
		out.AllowMultiple = false
		out.MaxVotesPerOption = 1
	}
	return out
}

// WithAllowMultiple is ignored for single choice polls.
func (f CreatePollForm) WithAllowMultiple(v bool) CreatePollForm {
	out := f.clone()
	if out.PollType == models.PollTypeSingleChoice {
		return out
	}
	out.AllowMultiple = v
	return out
}

func (f CreatePollForm) WithMaxVotesPerOption(n int) CreatePollForm {
	out := f.clone()
	if n < 1 {
		n = 1
	}
	out.MaxVotesPerOption = n
	return out
}

// AddOption appends a blank option.
func (f CreatePollForm) AddOption() CreatePollForm {
	out := f.clone()
	out.Options = append(out.Options, "")
	return out
}

// RemoveOption drops option i. It is a no-op at the minimum option count or for an out of range index.
func (f CreatePollForm) RemoveOption(i int) CreatePollForm {
	out := f.clone()
	if len(out.Options) <= validation.MinOptions || i < 0 || i >= len(out.Options) {
		return out
	}
	out.Options = append(out.Options[:i], out.Options[i+1:]...)
	return out
}

// UpdateOption replaces the text of option i.
func (f CreatePollForm) UpdateOption(i int, v string) CreatePollForm {
	out := f.clone()
	if i < 0 || i >= len(out.Options) {
		return out
	}
	out.Options[i] = v
	return out
}

// CanRemoveOption reports whether the remove control should be enabled.
func (f CreatePollForm) CanRemoveOption() bool {
	return len(f.Options) > validation.MinOptions
}

// CanSubmit reports whether the submit control should be enabled.
func (f CreatePollForm) CanSubmit() bool {
	return strings.TrimSpace(f.Question) != ""
}

// Input converts the form to a creation request. Validation happens server side.
func (f CreatePollForm) Input() models.CreatePollInput {
	in := models.CreatePollInput{
		Title:              f.Title,
		Question:           f.Question,
		PollType:           f.PollType,
		IsPublic:           f.IsPublic,
		AllowMultipleVotes: f.AllowMultiple,
		MaxVotesPerOption:  f.MaxVotesPerOption,
		Options:            make([]models.OptionInput, len(f.Options)),
	}
	if d := strings.TrimSpace(f.Description); d != "" {
		in.Description = &d
	}
	if f.ExpiresAt != nil {
		t := *f.ExpiresAt
		in.ExpiresAt = &t
	}
	for i, text := range f.Options {
		in.Options[i] = models.OptionInput{Text: text, OrderIndex: i + 1}
	}
	return in
}

// VoteForm is the option selection state on the poll detail view.
type VoteForm struct {
	PollID        uuid.UUID
	AllowMultiple bool
	MaxSelections int
	Selected      []uuid.UUID
}

// NewVoteForm starts a selection for poll, preselecting the voter's current votes.
func NewVoteForm(poll models.PollWithOptions) VoteForm {
	limit := poll.MaxVotesPerOption
	if limit < 1 || !poll.AllowMultipleVotes {
		limit = 1
	}
	selected := append([]uuid.UUID(nil), poll.UserVotes...)
	if len(selected) > limit {
		selected = selected[:limit]
	}
	return VoteForm{
		PollID:        poll.ID,
		AllowMultiple: poll.AllowMultipleVotes,
		MaxSelections: limit,
		Selected:      selected,
	}
}

// IsSelected reports whether optionID is in the selection.
func (f VoteForm) IsSelected(optionID uuid.UUID) bool {
	return indexOf(f.Selected, optionID) >= 0
}

// Toggle flips optionID. Single selection replaces; multiple selection
// adds or removes and ignores additions past MaxSelections.
func (f VoteForm) Toggle(optionID uuid.UUID) VoteForm {
	out := f
	out.Selected = append([]uuid.UUID(nil), f.Selected...)

	if i := indexOf(out.Selected, optionID); i >= 0 {
		out.Selected = append(out.Selected[:i], out.Selected[i+1:]...)
		return out
	}
	if !f.AllowMultiple {
		out.Selected = []uuid.UUID{optionID}
		return out
	}
	if len(out.Selected) >= f.MaxSelections {
		return out
	}
	out.Selected = append(out.Selected, optionID)
	return out
}

// CanSubmit reports whether at least one option is selected.
func (f VoteForm) CanSubmit() bool {
	return len(f.Selected) > 0
}

// Input converts the selection to a vote request.
func (f VoteForm) Input() models.VoteInput {
	return models.VoteInput{
		PollID:    f.PollID,
		OptionIDs: append([]uuid.UUID(nil), f.Selected...),
	}
}

func indexOf(ids []uuid.UUID, id uuid.UUID) int {
	for i, v := range ids {
		if v == id {
			return i
		}
	}
	return -1
}
