package contract

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"provtrace/model"
)

// sellTestProduct drives a fresh product straight through to SOLD.
func sellTestProduct(t *testing.T, env *testEnv) string {
	t.Helper()
	id := createTestProduct(t, env)
	require.NoError(t, env.contract.ShipProduct(env.as(producerID), id, "retailer", "Fresh Market DC", ""))
	require.NoError(t, env.contract.ReceiveProduct(env.as(retailerID), id, "Fresh Market DC", ""))
	require.NoError(t, env.contract.MarkAsSold(env.as(retailerID), id, "customer", ""))
	return id
}

func TestGetArchivalCandidates(t *testing.T) {
	env := newTestEnv()
	require.NoError(t, env.bootstrapRegistry())

	soldID := sellTestProduct(t, env)
	liveID := createTestProduct(t, env)
	deliveredID := createTestProduct(t, env)
	require.NoError(t, env.contract.ShipProduct(env.as(producerID), deliveredID, "distributor", "Crossdock Hub", ""))
	require.NoError(t, env.contract.ReceiveProduct(env.as(distributorID), deliveredID, "Crossdock Hub", ""))

	// Default policy: sold products only.
	candidates, err := env.contract.GetArchivalCandidates(env.ctx, "")
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, soldID, strconv.FormatUint(candidates[0], 10))

	// Explicit filter can widen the policy to delivered products.
	candidates, err = env.contract.GetArchivalCandidates(env.ctx, "SOLD, DELIVERED")
	require.NoError(t, err)
	assert.Len(t, candidates, 2)

	// Statuses outside the archivable envelope are rejected, known or not.
	_, err = env.contract.GetArchivalCandidates(env.ctx, "SOLD, CREATED")
	assert.Error(t, err)
	_, err = env.contract.GetArchivalCandidates(env.ctx, "EATEN")
	assert.Error(t, err)

	// Archived products drop out of the candidate set.
	require.NoError(t, env.contract.ConfirmArchive(env.as(adminID), soldID, "sha256:abc"))
	candidates, err = env.contract.GetArchivalCandidates(env.ctx, "")
	require.NoError(t, err)
	assert.Empty(t, candidates)
	_ = liveID
}

func TestGetArchiveSnapshot(t *testing.T) {
	env := newTestEnv()
	require.NoError(t, env.bootstrapRegistry())
	id := sellTestProduct(t, env)

	record, err := env.contract.GetArchiveSnapshot(env.ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusSold, record.Product.Status)
	require.Len(t, record.Journey, int(record.Product.EntryCount))
	for i, entry := range record.Journey {
		assert.Equal(t, uint64(i), entry.SequenceIndex)
	}

	_, err = env.contract.GetArchiveSnapshot(env.ctx, "999")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestConfirmArchive(t *testing.T) {
	env := newTestEnv()
	require.NoError(t, env.bootstrapRegistry())
	id := sellTestProduct(t, env)

	// Owner only.
	err := env.contract.ConfirmArchive(env.as(retailerID), id, "sha256:abc")
	assert.ErrorIs(t, err, ErrUnauthorized)

	require.NoError(t, env.contract.ConfirmArchive(env.as(adminID), id, "sha256:abc"))

	view, err := env.contract.GetProduct(env.ctx, id)
	require.NoError(t, err)
	assert.True(t, view.Archived)
	assert.Equal(t, "sha256:abc", view.ArchiveHash)

	// Exactly once. The duplicate commit carries the specific sentinel,
	// which is itself an invalid-state error.
	err = env.contract.ConfirmArchive(env.as(adminID), id, "sha256:def")
	assert.ErrorIs(t, err, ErrAlreadyArchived)
	assert.ErrorIs(t, err, ErrInvalidState)

	err = env.contract.ConfirmArchive(env.as(adminID), "999", "sha256:abc")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestConfirmArchiveRefusesLiveProducts(t *testing.T) {
	env := newTestEnv()
	require.NoError(t, env.bootstrapRegistry())

	createdID := createTestProduct(t, env)
	inTransitID := createTestProduct(t, env)
	require.NoError(t, env.contract.ShipProduct(env.as(producerID), inTransitID, "distributor", "Crossdock Hub", ""))

	for _, id := range []string{createdID, inTransitID} {
		err := env.contract.ConfirmArchive(env.as(adminID), id, "sha256:abc")
		assert.ErrorIs(t, err, ErrInvalidState)
		assert.NotErrorIs(t, err, ErrAlreadyArchived)

		view, viewErr := env.contract.GetProduct(env.ctx, id)
		require.NoError(t, viewErr)
		assert.False(t, view.Archived)
	}
}

func TestConfirmArchiveBatch(t *testing.T) {
	env := newTestEnv()
	require.NoError(t, env.bootstrapRegistry())
	first := sellTestProduct(t, env)
	second := sellTestProduct(t, env)

	require.NoError(t, env.contract.ConfirmArchiveBatch(env.as(adminID), first+","+second, "sha256:batch1"))
	for _, id := range []string{first, second} {
		view, err := env.contract.GetProduct(env.ctx, id)
		require.NoError(t, err)
		assert.True(t, view.Archived)
		assert.Equal(t, "sha256:batch1", view.ArchiveHash)
	}
}

func TestConfirmArchiveBatchAllOrNothing(t *testing.T) {
	env := newTestEnv()
	require.NoError(t, env.bootstrapRegistry())
	archivedID := sellTestProduct(t, env)
	freshID := sellTestProduct(t, env)
	require.NoError(t, env.contract.ConfirmArchive(env.as(adminID), archivedID, "sha256:abc"))

	// One stale member fails the batch and the fresh member stays live.
	err := env.contract.ConfirmArchiveBatch(env.as(adminID), freshID+","+archivedID, "sha256:batch1")
	assert.ErrorIs(t, err, ErrAlreadyArchived)

	view, err := env.contract.GetProduct(env.ctx, freshID)
	require.NoError(t, err)
	assert.False(t, view.Archived)

	// Same for a missing member.
	err = env.contract.ConfirmArchiveBatch(env.as(adminID), freshID+",999", "sha256:batch1")
	assert.ErrorIs(t, err, ErrNotFound)
	view, err = env.contract.GetProduct(env.ctx, freshID)
	require.NoError(t, err)
	assert.False(t, view.Archived)

	// Duplicates and empty batches are rejected outright.
	assert.Error(t, env.contract.ConfirmArchiveBatch(env.as(adminID), freshID+","+freshID, "sha256:batch1"))
	assert.Error(t, env.contract.ConfirmArchiveBatch(env.as(adminID), "  ", "sha256:batch1"))

	// Batch confirmation is owner-gated like the single form.
	err = env.contract.ConfirmArchiveBatch(env.as(retailerID), freshID, "sha256:batch1")
	assert.ErrorIs(t, err, ErrUnauthorized)
}
