package sync

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chapterhq/roster-sync/internal/state"
)

func seedProcessed(t *testing.T, store *fakeStore, batch string, emails ...string) {
	t.Helper()
	for _, email := range emails {
		require.NoError(t, store.Put(context.Background(), state.Item{
			Batch: batch, Email: email, Raw: "{}", Status: state.Processed,
		}))
	}
}

func TestDetectLapsed(t *testing.T) {
	store := newFakeStore()
	seedProcessed(t, store, "202134", "stays@example.org", "gone@example.org")
	seedProcessed(t, store, "202135", "stays@example.org", "joins@example.org")
	dir := newFakeDirectory()

	p := NewProcessor(store, dir, &fakeProvisioner{}, testSyncConfig())
	res, err := p.DetectLapsed(context.Background(), "202135", "202134")

	require.NoError(t, err)
	assert.Equal(t, 1, res.Removed)
	assert.Equal(t, 2, res.CurrentCount)
	assert.Equal(t, 2, res.PreviousCount)
	assert.Equal(t, []string{"gone@example.org"}, dir.deactivated)
}

func TestDetectLapsed_EmptyCurrentBatch(t *testing.T) {
	store := newFakeStore()
	seedProcessed(t, store, "202134", "gone@example.org")
	dir := newFakeDirectory()

	p := NewProcessor(store, dir, &fakeProvisioner{}, testSyncConfig())
	_, err := p.DetectLapsed(context.Background(), "202135", "202134")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "current batch 202135")
	assert.Empty(t, dir.deactivated)
}

func TestDetectLapsed_EmptyPreviousBatch(t *testing.T) {
	store := newFakeStore()
	seedProcessed(t, store, "202135", "stays@example.org")
	dir := newFakeDirectory()

	p := NewProcessor(store, dir, &fakeProvisioner{}, testSyncConfig())
	_, err := p.DetectLapsed(context.Background(), "202135", "202134")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "previous batch 202134")
	assert.Empty(t, dir.deactivated)
}

func TestDetectLapsed_OnlyProcessedRowsCount(t *testing.T) {
	store := newFakeStore()
	seedProcessed(t, store, "202134", "gone@example.org")
	seedProcessed(t, store, "202135", "stays@example.org")
	// Unfinished rows in the current batch are not part of the
	// processed set.
	require.NoError(t, store.Put(context.Background(), state.Item{
		Batch: "202135", Email: "pending@example.org", Raw: "{}", Status: state.Unprocessed,
	}))
	dir := newFakeDirectory()

	p := NewProcessor(store, dir, &fakeProvisioner{}, testSyncConfig())
	res, err := p.DetectLapsed(context.Background(), "202135", "202134")

	require.NoError(t, err)
	assert.Equal(t, 1, res.CurrentCount)
	assert.Equal(t, []string{"gone@example.org"}, dir.deactivated)
}

func TestDetectLapsed_DeactivationFailureContinues(t *testing.T) {
	store := newFakeStore()
	seedProcessed(t, store, "202134", "broken@example.org", "gone@example.org", "stays@example.org")
	seedProcessed(t, store, "202135", "stays@example.org")
	dir := newFakeDirectory()
	dir.deactErr["broken@example.org"] = errors.New("directory down")

	p := NewProcessor(store, dir, &fakeProvisioner{}, testSyncConfig())
	res, err := p.DetectLapsed(context.Background(), "202135", "202134")

	require.NoError(t, err)
	assert.Equal(t, 1, res.Removed)
	assert.Equal(t, []string{"gone@example.org"}, dir.deactivated)
}

func TestDetectLapsed_DryRun(t *testing.T) {
	store := newFakeStore()
	seedProcessed(t, store, "202134", "gone@example.org", "stays@example.org")
	seedProcessed(t, store, "202135", "stays@example.org")
	dir := newFakeDirectory()

	cfg := testSyncConfig()
	cfg.DryRun = true
	p := NewProcessor(store, dir, &fakeProvisioner{}, cfg)
	res, err := p.DetectLapsed(context.Background(), "202135", "202134")

	require.NoError(t, err)
	assert.Equal(t, 1, res.Removed)
	assert.Empty(t, dir.deactivated)
}

func TestDetectLapsed_InvalidatesCache(t *testing.T) {
	store := newFakeStore()
	seedProcessed(t, store, "202134", "gone@example.org", "stays@example.org")
	seedProcessed(t, store, "202135", "stays@example.org")
	dir := newFakeDirectory()
	cache := &fakeCache{values: map[string]string{"gone@example.org": "abc-123"}}

	p := NewProcessor(store, dir, &fakeProvisioner{}, testSyncConfig())
	p.SetCache(cache)

	_, err := p.DetectLapsed(context.Background(), "202135", "202134")
	require.NoError(t, err)
	assert.Empty(t, cache.values["gone@example.org"])
}
