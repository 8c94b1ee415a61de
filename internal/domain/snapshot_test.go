package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotStateMachine_HappyPath(t *testing.T) {
	snapshot := NewSnapshot(uuid.New(), "EUR")
	assert.Equal(t, SnapshotStatusPending, snapshot.Status)

	require.NoError(t, snapshot.AdvanceTo(SnapshotStatusProcessing))
	require.NoError(t, snapshot.AdvanceTo(SnapshotStatusSuccess))
	assert.True(t, snapshot.Status.Terminal())
}

func TestSnapshotStateMachine_ProcessingToFailure(t *testing.T) {
	snapshot := NewSnapshot(uuid.New(), "EUR")
	require.NoError(t, snapshot.AdvanceTo(SnapshotStatusProcessing))
	require.NoError(t, snapshot.AdvanceTo(SnapshotStatusFailure))
	assert.True(t, snapshot.Status.Terminal())
}

func TestSnapshotStateMachine_RejectsSkippingProcessing(t *testing.T) {
	snapshot := NewSnapshot(uuid.New(), "EUR")
	err := snapshot.AdvanceTo(SnapshotStatusSuccess)
	assert.Error(t, err)
	assert.Equal(t, SnapshotStatusPending, snapshot.Status)
}

func TestSnapshotStateMachine_TerminalIsFinal(t *testing.T) {
	snapshot := NewSnapshot(uuid.New(), "EUR")
	require.NoError(t, snapshot.AdvanceTo(SnapshotStatusProcessing))
	require.NoError(t, snapshot.AdvanceTo(SnapshotStatusFailure))

	err := snapshot.AdvanceTo(SnapshotStatusSuccess)
	assert.ErrorIs(t, err, ErrTerminalSnapshot)
	assert.Equal(t, SnapshotStatusFailure, snapshot.Status)
}

func TestSnapshotEffectiveAt_IncompleteSnapshot(t *testing.T) {
	snapshot := NewSnapshot(uuid.New(), "EUR")
	require.NoError(t, snapshot.AdvanceTo(SnapshotStatusProcessing))

	// A crash mid-run leaves the snapshot in Processing; it must never be
	// readable as a completed result.
	_, err := snapshot.EffectiveAt()
	assert.ErrorIs(t, err, ErrIncompleteSnapshot)
}

func TestSnapshotEffectiveAt_CompletedSnapshot(t *testing.T) {
	snapshot := NewSnapshot(uuid.New(), "EUR")
	require.NoError(t, snapshot.AdvanceTo(SnapshotStatusProcessing))
	end := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	snapshot.EndTime = &end
	require.NoError(t, snapshot.AdvanceTo(SnapshotStatusSuccess))

	effective, err := snapshot.EffectiveAt()
	require.NoError(t, err)
	assert.Equal(t, end, effective)
}

func TestFailureDetails_Validate(t *testing.T) {
	details := NewFailureDetails("kaput", "boom", "trace")
	assert.NoError(t, details.Validate())

	details.Version = 99
	assert.Error(t, details.Validate())

	details = NewFailureDetails("", "boom", "trace")
	assert.Error(t, details.Validate())
}
