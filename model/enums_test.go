package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTaskStatusIsValid(t *testing.T) {
	cases := []struct {
		status TaskStatus
		want   bool
	}{
		{TaskPending, true},
		{TaskRefactoring, true},
		{TaskSkipped, true},
		{TaskStatus("unknown"), false},
		{TaskStatus(""), false},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, c.status.IsValid(), "TaskStatus(%q)", c.status)
	}
}

func TestBlueprintStatusIsValid(t *testing.T) {
	assert.True(t, BlueprintApproved.IsValid())
	assert.False(t, BlueprintStatus("archived").IsValid())
}

func TestDecisionTypeIsValid(t *testing.T) {
	assert.True(t, DecisionRollback.IsValid())
	assert.False(t, DecisionType("defer").IsValid())
}

func TestTimelineEventTypeIsValid(t *testing.T) {
	assert.True(t, EventCheckpointRollback.IsValid())
	assert.False(t, TimelineEventType("checkpoint:unknown").IsValid())
}
