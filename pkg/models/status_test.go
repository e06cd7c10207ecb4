package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTargetStatus_String(t *testing.T) {
	tests := []struct {
		status TargetStatus
		want   string
	}{
		{TargetStatusUnset, "unset"},
		{TargetStatusPending, "pending"},
		{TargetStatusSuccess, "success"},
		{TargetStatusFailure, "failure"},
		{TargetStatusSkipped, "skipped"},
		{TargetStatusNotFound, "not_found"},
		{TargetStatusDBError, "db_error"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.status.String())
	}
}

func TestTargetStatus_IsValid(t *testing.T) {
	tests := []struct {
		status TargetStatus
		want   bool
	}{
		{TargetStatusPending, true},
		{TargetStatusSuccess, true},
		{TargetStatusFailure, true},
		{TargetStatusSkipped, true},
		{TargetStatusUnset, false},
		{TargetStatusNotFound, false},
		{TargetStatusDBError, false},
		{TargetStatus("arbitrary"), false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.status.IsValid(), "TargetStatus(%q).IsValid()", string(tt.status))
	}
}

func TestTargetStatus_IsReplayable(t *testing.T) {
	assert.True(t, TargetStatusSuccess.IsReplayable())
	assert.True(t, TargetStatusSkipped.IsReplayable())
	assert.False(t, TargetStatusFailure.IsReplayable())
	assert.False(t, TargetStatusPending.IsReplayable())
	assert.False(t, TargetStatusNotFound.IsReplayable())
}

func TestRunState_IsTerminal(t *testing.T) {
	tests := []struct {
		state RunState
		want  bool
	}{
		{RunStateIdle, false},
		{RunStateDiscovering, false},
		{RunStateIterating, false},
		{RunStateFinalizing, false},
		{RunStateDone, true},
		{RunStateAborted, true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.state.IsTerminal(), "RunState(%q).IsTerminal()", tt.state)
	}
}
