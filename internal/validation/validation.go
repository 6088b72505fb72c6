// Package validation holds the pure input checks shared by handlers, forms and repositories.
package validation

import (
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aura-polls/backend/internal/models"
)

// MinOptions is the minimum number of non-blank options a poll needs.
const MinOptions = 2

// Error is a user-correctable validation failure. Message is safe to show verbatim.
type Error struct {
	Field   string
	Message string
}

func (e *Error) Error() string { return e.Message }

func invalid(field, msg string) *Error {
	return &Error{Field: field, Message: msg}
}

// CreatePoll checks a creation request and returns a normalized copy:
// trimmed text, blank options dropped, options reindexed 1..n in display order,
// defaults applied for poll type and max votes per option.
func CreatePoll(in models.CreatePollInput, now time.Time) (models.CreatePollInput, error) {
	out := in
	out.Title = strings.TrimSpace(in.Title)
	out.Question = strings.TrimSpace(in.Question)
	out.Description = trimOptional(in.Description)

	if out.Title == "" {
		return out, invalid("title", "Poll title is required")
	}
	if out.Question == "" {
		return out, invalid("question", "Poll question is required")
	}
	if len(in.Options) < MinOptions {
		return out, invalid("options", "At least 2 options are required")
	}

	options := make([]models.OptionInput, 0, len(in.Options))
	for i, o := range in.Options {
		text := strings.TrimSpace(o.Text)
		if text == "" {
			continue
		}
		order := o.OrderIndex
		if order <= 0 {
			order = i + 1
		}
		options = append(options, models.OptionInput{
			Text:        text,
			Description: trimOptional(o.Description),
			OrderIndex:  order,
		})
	}
	if len(options) < MinOptions {
		return out, invalid("options", "At least 2 valid options are required")
	}
	sort.SliceStable(options, func(i, j int) bool { return options[i].OrderIndex < options[j].OrderIndex })
	for i := range options {
		options[i].OrderIndex = i + 1
	}
	out.Options = options

	if out.PollType == "" {
		out.PollType = models.PollTypeSingleChoice
	}
	if !out.PollType.Valid() {
		return out, invalid("poll_type", "Poll type must be single_choice, multiple_choice or ranking")
	}
	if out.PollType == models.PollTypeSingleChoice && out.AllowMultipleVotes {
		return out, invalid("allow_multiple_votes", "Single choice polls cannot allow multiple votes")
	}
	if out.MaxVotesPerOption == 0 {
		out.MaxVotesPerOption = 1
	}
	if out.MaxVotesPerOption < 1 {
		return out, invalid("max_votes_per_option", "Max votes per option must be at least 1")
	}
	if out.ExpiresAt != nil && !out.ExpiresAt.After(now) {
		return out, invalid("expires_at", "Expiry must be in the future")
	}
	return out, nil
}

// UpdatePoll checks owner edits against the poll they would apply to.
func UpdatePoll(current models.Poll, in models.UpdatePollInput) error {
	if in.Title != nil && strings.TrimSpace(*in.Title) == "" {
		return invalid("title", "Poll title is required")
	}
	if in.Question != nil && strings.TrimSpace(*in.Question) == "" {
		return invalid("question", "Poll question is required")
	}
	if in.Status != nil && !in.Status.Valid() {
		return invalid("status", "Status must be active, closed or draft")
	}
	if in.MaxVotesPerOption != nil && *in.MaxVotesPerOption < 1 {
		return invalid("max_votes_per_option", "Max votes per option must be at least 1")
	}
	allowMultiple := current.AllowMultipleVotes
	if in.AllowMultipleVotes != nil {
		allowMultiple = *in.AllowMultipleVotes
	}
	if current.PollType == models.PollTypeSingleChoice && allowMultiple {
		return invalid("allow_multiple_votes", "Single choice polls cannot allow multiple votes")
	}
	return nil
}

// Selection checks a voter's option set against the poll's multi-vote policy.
// It does not check that the options belong to the poll.
func Selection(poll models.Poll, optionIDs []uuid.UUID) error {
	if len(optionIDs) == 0 {
		return invalid("option_ids", "Select at least one option")
	}
	seen := make(map[uuid.UUID]struct{}, len(optionIDs))
	for _, id := range optionIDs {
		if _, dup := seen[id]; dup {
			return invalid("option_ids", "Each option can be selected once")
		}
		seen[id] = struct{}{}
	}
	if !poll.AllowMultipleVotes && len(optionIDs) > 1 {
		return invalid("option_ids", "Multiple votes not allowed for this poll")
	}
	if len(optionIDs) > poll.MaxVotesPerOption {
		return &Error{Field: "option_ids", Message: maxVotesMessage(poll.MaxVotesPerOption)}
	}
	return nil
}

func maxVotesMessage(n int) string {
	if n == 1 {
		return "Maximum 1 vote allowed"
	}
	return "Maximum " + strconv.Itoa(n) + " votes allowed"
}

// IsSameOrigin reports whether a mutating request came from the serving origin.
// Origin wins when present; otherwise the Referer's origin is used. With neither
// header, or with a header that does not parse, the request is cross-origin.
func IsSameOrigin(serving, origin, referer string) bool {
	want, ok := originOf(serving)
	if !ok {
		return false
	}
	if origin != "" {
		got, ok := originOf(origin)
		return ok && got == want
	}
	if referer != "" {
		got, ok := originOf(referer)
		return ok && got == want
	}
	return false
}

func originOf(raw string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", false
	}
	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	port := u.Port()
	if (scheme == "http" && port == "80") || (scheme == "https" && port == "443") {
		port = ""
	}
	if port != "" {
		host += ":" + port
	}
	return scheme + "://" + host, true
}

func trimOptional(s *string) *string {
	if s == nil {
		return nil
	}
	t := strings.TrimSpace(*s)
	if t == "" {
		return nil
	}
	return &t
}
