package models

import (
	"time"

	"github.com/google/uuid"
)

// PollType is how voters select options.
type PollType string

const (
	PollTypeSingleChoice   PollType = "single_choice"
	PollTypeMultipleChoice PollType = "multiple_choice"
	PollTypeRanking        PollType = "ranking"
)

// Valid reports whether t is a known poll type.
func (t PollType) Valid() bool {
	switch t {
	case PollTypeSingleChoice, PollTypeMultipleChoice, PollTypeRanking:
		return true
	}
	return false
}

// PollStatus is the lifecycle state of a poll. Only active polls accept votes.
type PollStatus string

const (
	PollStatusActive PollStatus = "active"
	PollStatusClosed PollStatus = "closed"
	PollStatusDraft  PollStatus = "draft"
)

// Valid reports whether s is a known poll status.
func (s PollStatus) Valid() bool {
	switch s {
	case PollStatusActive, PollStatusClosed, PollStatusDraft:
		return true
	}
	return false
}

// Poll is a question with a fixed set of options open for voting.
type Poll struct {
	ID                 uuid.UUID    `json:"id"`
	Title              string       `json:"title"`
	Description        *string      `json:"description,omitempty"`
	Question           string       `json:"question"`
	PollType           PollType     `json:"poll_type"`
	Status             PollStatus   `json:"status"`
	IsPublic           bool         `json:"is_public"`
	AllowMultipleVotes bool         `json:"allow_multiple_votes"`
	MaxVotesPerOption  int          `json:"max_votes_per_option"`
	ExpiresAt          *time.Time   `json:"expires_at,omitempty"`
	CreatedBy          uuid.UUID    `json:"created_by"`
	CreatedAt          time.Time    `json:"created_at"`
	UpdatedAt          time.Time    `json:"updated_at"`
	Options            []PollOption `json:"options,omitempty"`
}

// Expired reports whether the poll has an expiry at or before now.
func (p *Poll) Expired(now time.Time) bool {
	return p.ExpiresAt != nil && !p.ExpiresAt.After(now)
}

// PollOption is one selectable choice within a poll.
type PollOption struct {
	ID          uuid.UUID `json:"id"`
	PollID      uuid.UUID `json:"poll_id"`
	Text        string    `json:"text"`
	Description *string   `json:"description,omitempty"`
	OrderIndex  int       `json:"order_index"`
	CreatedAt   time.Time `json:"created_at"`
}

// Vote is one selected option by one voter.
type Vote struct {
	ID        uuid.UUID `json:"id"`
	PollID    uuid.UUID `json:"poll_id"`
	OptionID  uuid.UUID `json:"option_id"`
	VoterID   uuid.UUID `json:"voter_id"`
	CreatedAt time.Time `json:"created_at"`
}

// PollWithOptions is the poll detail view, including the viewer's own votes.
type PollWithOptions struct {
	Poll
	TotalVotes   int         `json:"total_votes"`
	UserHasVoted bool        `json:"user_has_voted"`
	UserVotes    []uuid.UUID `json:"user_votes"`
}

// PollSummary is one row of the poll list.
type PollSummary struct {
	Poll
	OwnerEmail  string  `json:"owner_email"`
	OwnerName   *string `json:"owner_name,omitempty"`
	OptionCount int     `json:"option_count"`
	VoteCount   int     `json:"vote_count"`
}

// OptionCount is the raw tally for one option, in display order.
type OptionCount struct {
	OptionID   uuid.UUID
	OptionText string
	OrderIndex int
	VoteCount  int
}

// PollResult is the per-option tally returned by the results endpoint.
type PollResult struct {
	OptionID   uuid.UUID `json:"option_id"`
	OptionText string    `json:"option_text"`
	VoteCount  int       `json:"vote_count"`
	Percentage float64   `json:"percentage"`
}

// OptionInput is one option as submitted at creation.
type OptionInput struct {
	Text        string  `json:"text"`
	Description *string `json:"description,omitempty"`
	OrderIndex  int     `json:"order_index"`
}

// CreatePollInput is the data needed to create a poll and its options.
type CreatePollInput struct {
	Title              string        `json:"title"`
	Description        *string       `json:"description,omitempty"`
	Question           string        `json:"question"`
	PollType           PollType      `json:"poll_type"`
	IsPublic           bool          `json:"is_public"`
	AllowMultipleVotes bool          `json:"allow_multiple_votes"`
	MaxVotesPerOption  int           `json:"max_votes_per_option"`
	ExpiresAt          *time.Time    `json:"expires_at,omitempty"`
	Options            []OptionInput `json:"options"`
}

// UpdatePollInput holds the owner-editable fields. Nil means unchanged.
type UpdatePollInput struct {
	Title              *string     `json:"title,omitempty"`
	Description        *string     `json:"description,omitempty"`
	Question           *string     `json:"question,omitempty"`
	Status             *PollStatus `json:"status,omitempty"`
	IsPublic           *bool       `json:"is_public,omitempty"`
	AllowMultipleVotes *bool       `json:"allow_multiple_votes,omitempty"`
	MaxVotesPerOption  *int        `json:"max_votes_per_option,omitempty"`
	ExpiresAt          *time.Time  `json:"expires_at,omitempty"`
}

// VoteInput is a voter's full selection for a poll.
type VoteInput struct {
	PollID    uuid.UUID   `json:"poll_id"`
	OptionIDs []uuid.UUID `json:"option_ids"`
}
