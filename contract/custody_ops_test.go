package contract

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"provtrace/model"
)

func createTestProduct(t *testing.T, env *testEnv) string {
	t.Helper()
	result, err := env.contract.CreateProduct(env.as(producerID),
		"Strawberries, 500g punnets", "First harvest of the season", "Field 7, Aljarafe", "1200")
	require.NoError(t, err)
	return strconv.FormatUint(result.ID, 10)
}

func TestCreateProduct(t *testing.T) {
	env := newTestEnv()
	require.NoError(t, env.bootstrapRegistry())

	result, err := env.contract.CreateProduct(env.as(producerID),
		"Strawberries, 500g punnets", "First harvest", "Field 7, Aljarafe", "1200")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), result.ID)
	assert.NotEmpty(t, result.PublicCode)

	view, err := env.contract.GetProduct(env.ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCreated, view.Status)
	assert.Equal(t, producerID, view.Holder)
	assert.Equal(t, "Verdant Farms", view.ProducerName)
	assert.Equal(t, result.PublicCode, view.PublicCode)

	// Journey starts with the CREATED entry at index 0.
	entries, err := env.contract.GetJourney(env.ctx, "1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, model.ActionCreated, entries[0].Action)
	assert.Equal(t, uint64(0), entries[0].SequenceIndex)

	// Ids are assigned monotonically; public codes differ even for equal
	// names because the id feeds the derivation.
	second, err := env.contract.CreateProduct(env.as(producerID),
		"Strawberries, 500g punnets", "First harvest", "Field 7, Aljarafe", "1200")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), second.ID)
	assert.NotEqual(t, result.PublicCode, second.PublicCode)
}

func TestCreateProductGuards(t *testing.T) {
	env := newTestEnv()
	require.NoError(t, env.bootstrapRegistry())

	_, err := env.contract.CreateProduct(env.as(retailerID), "Berries", "", "Field 7", "10")
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = env.contract.CreateProduct(env.as(producerID), "  ", "", "Field 7", "10")
	assert.Error(t, err)

	_, err = env.contract.CreateProduct(env.as(producerID), "Berries", "", "Field 7", "0")
	assert.Error(t, err)

	_, err = env.contract.CreateProduct(env.as(producerID), "Berries", "", "Field 7", "not-a-number")
	assert.Error(t, err)
}

func TestFullCustodyLifecycle(t *testing.T) {
	env := newTestEnv()
	require.NoError(t, env.bootstrapRegistry())
	id := createTestProduct(t, env)

	// Producer ships to a certifier.
	env.advanceTime(time.Hour)
	require.NoError(t, env.contract.ShipProduct(env.as(producerID), id, "certifier", "AgriCert intake dock", "refrigerated"))

	view, err := env.contract.GetProduct(env.ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusInTransit, view.Status)
	// In flight the last confirmed holder is still the shipper.
	assert.Equal(t, producerID, view.Holder)

	// Certifier receives, tests, ships onward to a retailer.
	env.advanceTime(time.Hour)
	require.NoError(t, env.contract.ReceiveProduct(env.as(certifierID), id, "AgriCert Labs", ""))
	view, err = env.contract.GetProduct(env.ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusDelivered, view.Status)
	assert.Equal(t, certifierID, view.Holder)

	env.advanceTime(time.Hour)
	require.NoError(t, env.contract.TestProduct(env.as(certifierID), id, "AgriCert Labs", "pesticide residues below limits"))
	view, err = env.contract.GetProduct(env.ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusTested, view.Status)
	assert.Equal(t, certifierID, view.Holder)

	env.advanceTime(time.Hour)
	require.NoError(t, env.contract.ShipProduct(env.as(certifierID), id, "retailer", "Fresh Market DC", ""))
	env.advanceTime(time.Hour)
	require.NoError(t, env.contract.ReceiveProduct(env.as(retailerID), id, "Fresh Market DC", ""))

	env.advanceTime(time.Hour)
	require.NoError(t, env.contract.MarkAsSold(env.as(retailerID), id, "walk-in customer", ""))
	view, err = env.contract.GetProduct(env.ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusSold, view.Status)
	assert.Equal(t, retailerID, view.Holder)

	// The journey is contiguous from 0 and mirrors every transition.
	entries, err := env.contract.GetJourney(env.ctx, id)
	require.NoError(t, err)
	wantActions := []model.JourneyAction{
		model.ActionCreated, model.ActionShipped, model.ActionReceived,
		model.ActionTested, model.ActionShipped, model.ActionReceived, model.ActionSold,
	}
	require.Len(t, entries, len(wantActions))
	for i, entry := range entries {
		assert.Equal(t, uint64(i), entry.SequenceIndex)
		assert.Equal(t, wantActions[i], entry.Action)
	}
	assert.Equal(t, model.RoleCertifier, entries[1].ToRole)
	assert.Equal(t, model.RoleRetailer, entries[4].ToRole)
}

func TestShipProductGuards(t *testing.T) {
	env := newTestEnv()
	require.NoError(t, env.bootstrapRegistry())
	id := createTestProduct(t, env)

	// Only the holder ships.
	err := env.contract.ShipProduct(env.as(distributorID), id, "retailer", "somewhere", "")
	assert.ErrorIs(t, err, ErrUnauthorized)

	// Unknown destination role.
	assert.Error(t, env.contract.ShipProduct(env.as(producerID), id, "courier", "somewhere", ""))

	require.NoError(t, env.contract.ShipProduct(env.as(producerID), id, "distributor", "Crossdock hub", ""))

	// A product in transit cannot be shipped again, not even by its last
	// confirmed holder.
	err = env.contract.ShipProduct(env.as(producerID), id, "distributor", "Crossdock hub", "")
	assert.ErrorIs(t, err, ErrInvalidState)

	err = env.contract.ShipProduct(env.as(producerID), "999", "distributor", "Crossdock hub", "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReceiveProductGuards(t *testing.T) {
	env := newTestEnv()
	require.NoError(t, env.bootstrapRegistry())
	id := createTestProduct(t, env)

	// Not in transit yet.
	err := env.contract.ReceiveProduct(env.as(distributorID), id, "Crossdock hub", "")
	assert.ErrorIs(t, err, ErrInvalidState)

	require.NoError(t, env.contract.ShipProduct(env.as(producerID), id, "distributor", "Crossdock hub", ""))

	// The receiver must hold the designated role; a retailer cannot take a
	// shipment bound for a distributor, and neither can an unregistered
	// party.
	err = env.contract.ReceiveProduct(env.as(retailerID), id, "Fresh Market DC", "")
	assert.ErrorIs(t, err, ErrUnauthorized)
	err = env.contract.ReceiveProduct(env.as(strangerID), id, "warehouse", "")
	assert.ErrorIs(t, err, ErrUnauthorized)

	require.NoError(t, env.contract.ReceiveProduct(env.as(distributorID), id, "Crossdock hub", ""))

	// Receiving twice: no longer in transit.
	err = env.contract.ReceiveProduct(env.as(distributorID), id, "Crossdock hub", "")
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestTestProductGuards(t *testing.T) {
	env := newTestEnv()
	require.NoError(t, env.bootstrapRegistry())
	id := createTestProduct(t, env)

	// Producer holds the product but is not a certifier.
	err := env.contract.TestProduct(env.as(producerID), id, "Field 7", "")
	assert.ErrorIs(t, err, ErrUnauthorized)

	// A certifier without possession cannot test.
	err = env.contract.TestProduct(env.as(certifierID), id, "AgriCert Labs", "")
	assert.ErrorIs(t, err, ErrUnauthorized)

	require.NoError(t, env.contract.ShipProduct(env.as(producerID), id, "certifier", "AgriCert intake dock", ""))
	require.NoError(t, env.contract.ReceiveProduct(env.as(certifierID), id, "AgriCert Labs", ""))
	require.NoError(t, env.contract.TestProduct(env.as(certifierID), id, "AgriCert Labs", "clean"))

	// Already tested; a second test would need a fresh delivery.
	err = env.contract.TestProduct(env.as(certifierID), id, "AgriCert Labs", "again")
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestMarkAsSoldGuards(t *testing.T) {
	env := newTestEnv()
	require.NoError(t, env.bootstrapRegistry())
	id := createTestProduct(t, env)

	// Producer holds the product but is not a retailer.
	err := env.contract.MarkAsSold(env.as(producerID), id, "customer", "")
	assert.ErrorIs(t, err, ErrUnauthorized)

	require.NoError(t, env.contract.ShipProduct(env.as(producerID), id, "retailer", "Fresh Market DC", ""))

	// A retailer cannot sell what it has not received.
	err = env.contract.MarkAsSold(env.as(retailerID), id, "customer", "")
	assert.ErrorIs(t, err, ErrUnauthorized)

	require.NoError(t, env.contract.ReceiveProduct(env.as(retailerID), id, "Fresh Market DC", ""))
	require.NoError(t, env.contract.MarkAsSold(env.as(retailerID), id, "customer #4421", ""))

	// Sold is terminal.
	err = env.contract.MarkAsSold(env.as(retailerID), id, "customer #4422", "")
	assert.ErrorIs(t, err, ErrInvalidState)
	err = env.contract.ShipProduct(env.as(retailerID), id, "distributor", "back to hub", "")
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestArchivedProductRejectsAllTransitions(t *testing.T) {
	env := newTestEnv()
	require.NoError(t, env.bootstrapRegistry())

	// A delivered product at the certifier gets archived under the
	// widened policy; from then on its ledger record is frozen.
	certifierHeld := createTestProduct(t, env)
	require.NoError(t, env.contract.ShipProduct(env.as(producerID), certifierHeld, "certifier", "AgriCert intake dock", ""))
	require.NoError(t, env.contract.ReceiveProduct(env.as(certifierID), certifierHeld, "AgriCert Labs", ""))
	require.NoError(t, env.contract.ConfirmArchive(env.as(adminID), certifierHeld, "sha256:abc"))

	retailerHeld := createTestProduct(t, env)
	require.NoError(t, env.contract.ShipProduct(env.as(producerID), retailerHeld, "retailer", "Fresh Market DC", ""))
	require.NoError(t, env.contract.ReceiveProduct(env.as(retailerID), retailerHeld, "Fresh Market DC", ""))
	require.NoError(t, env.contract.ConfirmArchive(env.as(adminID), retailerHeld, "sha256:def"))

	err := env.contract.TestProduct(env.as(certifierID), certifierHeld, "AgriCert Labs", "")
	assert.ErrorIs(t, err, ErrInvalidState)
	err = env.contract.ShipProduct(env.as(certifierID), certifierHeld, "retailer", "Fresh Market DC", "")
	assert.ErrorIs(t, err, ErrInvalidState)
	err = env.contract.MarkAsSold(env.as(retailerID), retailerHeld, "customer", "")
	assert.ErrorIs(t, err, ErrInvalidState)
	err = env.contract.ReceiveProduct(env.as(retailerID), retailerHeld, "Fresh Market DC", "")
	assert.ErrorIs(t, err, ErrInvalidState)

	// Status and journey are exactly what was archived.
	for _, tc := range []struct {
		id      string
		entries uint64
	}{{certifierHeld, 3}, {retailerHeld, 3}} {
		view, err := env.contract.GetProduct(env.ctx, tc.id)
		require.NoError(t, err)
		assert.Equal(t, model.StatusDelivered, view.Status)
		record, err := env.contract.GetArchiveSnapshot(env.ctx, tc.id)
		require.NoError(t, err)
		assert.Equal(t, tc.entries, record.Product.EntryCount)
		assert.Len(t, record.Journey, int(tc.entries))
	}
}
