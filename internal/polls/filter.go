package polls

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/aura-polls/backend/internal/models"
	"github.com/aura-polls/backend/internal/validation"
)

const (
	DefaultListLimit = 10
	MaxListLimit     = 100
)

// ListFilter narrows the poll list. Nil fields are not filtered on.
type ListFilter struct {
	Status    *models.PollStatus
	PollType  *models.PollType
	IsPublic  *bool
	CreatedBy *uuid.UUID
	Search    string
	Limit     int
	Offset    int
}

// ParseListFilter reads a ListFilter from query parameters:
// status, poll_type (or type), is_public, created_by, search, limit, offset.
func ParseListFilter(q url.Values) (ListFilter, error) {
	f := ListFilter{Limit: DefaultListLimit}

	if v := q.Get("status"); v != "" {
		s := models.PollStatus(v)
		if !s.Valid() {
			return f, &validation.Error{Field: "status", Message: "invalid status filter"}
		}
		f.Status = &s
	}

	pt := q.Get("poll_type")
	if pt == "" {
		pt = q.Get("type")
	}
	if pt != "" {
		t := models.PollType(pt)
		if !t.Valid() {
			return f, &validation.Error{Field: "poll_type", Message: "invalid poll type filter"}
		}
		f.PollType = &t
	}

	if v := q.Get("is_public"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return f, &validation.Error{Field: "is_public", Message: "is_public must be true or false"}
		}
		f.IsPublic = &b
	}

	if v := q.Get("created_by"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return f, &validation.Error{Field: "created_by", Message: "invalid created_by"}
		}
		f.CreatedBy = &id
	}

	f.Search = strings.TrimSpace(q.Get("search"))

	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return f, &validation.Error{Field: "limit", Message: "limit must be a positive integer"}
		}
		if n > MaxListLimit {
			n = MaxListLimit
		}
		f.Limit = n
	}

	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, &validation.Error{Field: "offset", Message: "offset must be zero or more"}
		}
		f.Offset = n
	}
	return f, nil
}

// escapeLike escapes LIKE wildcards so search terms match literally.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
