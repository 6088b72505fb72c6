package queue

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJob(t *testing.T) {
	pollID := uuid.New()
	job, err := NewJob(JobTypeResultsRefresh, ResultsRefreshPayload{PollID: pollID})
	require.NoError(t, err)

	assert.NotEmpty(t, job.ID)
	assert.Equal(t, JobTypeResultsRefresh, job.Type)
	assert.Zero(t, job.Attempt)
	assert.False(t, job.CreatedAt.IsZero())

	var p ResultsRefreshPayload
	require.NoError(t, json.Unmarshal(job.Payload, &p))
	assert.Equal(t, pollID, p.PollID)
}

func TestNewJob_BadPayload(t *testing.T) {
	_, err := NewJob(JobTypeResultsRefresh, make(chan int))
	assert.Error(t, err)
}
