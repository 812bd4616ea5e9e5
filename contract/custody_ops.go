package contract

import (
	"errors"
	"fmt"

	"provtrace/model"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
)

// --- Lifecycle: custody transitions ---
//
// States move Created -> InTransit -> {Delivered | Tested} -> InTransit ->
// ... -> Sold. Every accepted transition appends exactly one journey entry
// and updates the product record in the same transaction; the ledger's
// serialized-transaction ordering is the sole arbiter between concurrent
// callers, so the loser of a race observes the guard failure and must
// re-read and retry. An archived product is frozen: every transition
// refuses it, since a post-archival entry would never be served by any
// read surface.

// ShipProduct puts the product in transit toward the designated role. Only
// the current holder may ship; a product already in transit or sold cannot
// be shipped again. The holder is left unchanged until the product is
// received: while in flight it is held by no registered party.
func (c *ProvenanceContract) ShipProduct(ctx contractapi.TransactionContextInterface,
	productIDStr, toRoleStr, destination, notes string) error {

	actor, err := c.getCurrentActorInfo(ctx)
	if err != nil {
		return fmt.Errorf("ShipProduct: failed to get actor info: %w", err)
	}
	productID, err := parseProductID(productIDStr)
	if err != nil {
		return err
	}
	toRole, err := parseRole(toRoleStr)
	if err != nil {
		return err
	}
	if err := c.validateRequiredString(destination, "destination", maxStringInputLength); err != nil {
		return err
	}
	if err := c.validateOptionalString(notes, "notes", maxNotesLength); err != nil {
		return err
	}

	product, err := c.getProductByID(ctx, productID)
	if err != nil {
		return fmt.Errorf("ShipProduct: %w", err)
	}
	if product.CurrentHolder != actor.address {
		return fmt.Errorf("%w: caller '%s' is not the current holder of product %d", ErrUnauthorized, actor.address, productID)
	}
	if product.Status == model.StatusInTransit {
		return fmt.Errorf("%w: product %d is already in transit", ErrInvalidState, productID)
	}
	if product.Status == model.StatusSold {
		return fmt.Errorf("%w: product %d has been sold", ErrInvalidState, productID)
	}
	if product.Archived {
		return fmt.Errorf("%w: product %d is archived", ErrInvalidState, productID)
	}

	now, err := c.getCurrentTxTimestamp(ctx)
	if err != nil {
		return fmt.Errorf("ShipProduct: failed to get transaction timestamp: %w", err)
	}

	product.Status = model.StatusInTransit
	product.PendingRecipientRole = toRole
	product.LastUpdatedAt = now

	if err := c.appendJourneyEntry(ctx, product, &model.JourneyEntry{
		Action:       model.ActionShipped,
		ActorAddress: actor.address,
		ActorName:    actor.name,
		Timestamp:    now,
		Location:     destination,
		Notes:        notes,
		ToRole:       toRole,
	}); err != nil {
		return fmt.Errorf("ShipProduct: %w", err)
	}
	if err := c.putProduct(ctx, product); err != nil {
		return fmt.Errorf("ShipProduct: %w", err)
	}

	c.emitProductEvent(ctx, "ProductShipped", product, actor, map[string]interface{}{
		"toRole": toRole, "destination": destination,
	})
	logger.Infof("Product %d shipped by '%s' toward role '%s'", productID, actor.address, toRole)
	return nil
}

// ReceiveProduct takes custody of an in-transit product. The caller must
// hold the role the latest SHIPPED entry designated; on success the caller
// becomes the current holder and the product is DELIVERED.
func (c *ProvenanceContract) ReceiveProduct(ctx contractapi.TransactionContextInterface,
	productIDStr, location, notes string) error {

	actor, err := c.getCurrentActorInfo(ctx)
	if err != nil {
		return fmt.Errorf("ReceiveProduct: failed to get actor info: %w", err)
	}
	productID, err := parseProductID(productIDStr)
	if err != nil {
		return err
	}
	if err := c.validateRequiredString(location, "location", maxStringInputLength); err != nil {
		return err
	}
	if err := c.validateOptionalString(notes, "notes", maxNotesLength); err != nil {
		return err
	}

	product, err := c.getProductByID(ctx, productID)
	if err != nil {
		return fmt.Errorf("ReceiveProduct: %w", err)
	}
	if product.Archived {
		return fmt.Errorf("%w: product %d is archived", ErrInvalidState, productID)
	}
	if product.Status != model.StatusInTransit {
		return fmt.Errorf("%w: product %d is not in transit (status: %s)", ErrInvalidState, productID, product.Status)
	}
	if err := c.requireRole(ctx, actor, product.PendingRecipientRole); err != nil {
		if errors.Is(err, ErrUnauthorized) {
			return fmt.Errorf("%w: caller '%s' does not hold the designated recipient role '%s' for product %d",
				ErrUnauthorized, actor.address, product.PendingRecipientRole, productID)
		}
		return err
	}

	now, err := c.getCurrentTxTimestamp(ctx)
	if err != nil {
		return fmt.Errorf("ReceiveProduct: failed to get transaction timestamp: %w", err)
	}

	product.Status = model.StatusDelivered
	product.CurrentHolder = actor.address
	product.PendingRecipientRole = ""
	product.LastUpdatedAt = now

	if err := c.appendJourneyEntry(ctx, product, &model.JourneyEntry{
		Action:       model.ActionReceived,
		ActorAddress: actor.address,
		ActorName:    actor.name,
		Timestamp:    now,
		Location:     location,
		Notes:        notes,
	}); err != nil {
		return fmt.Errorf("ReceiveProduct: %w", err)
	}
	if err := c.putProduct(ctx, product); err != nil {
		return fmt.Errorf("ReceiveProduct: %w", err)
	}

	c.emitProductEvent(ctx, "ProductReceived", product, actor, map[string]interface{}{"location": location})
	logger.Infof("Product %d received by '%s' at '%s'", productID, actor.address, location)
	return nil
}

// TestProduct records a quality test by a certifier in possession of the
// product. The holder does not change.
func (c *ProvenanceContract) TestProduct(ctx contractapi.TransactionContextInterface,
	productIDStr, location, notes string) error {

	actor, err := c.getCurrentActorInfo(ctx)
	if err != nil {
		return fmt.Errorf("TestProduct: failed to get actor info: %w", err)
	}
	productID, err := parseProductID(productIDStr)
	if err != nil {
		return err
	}
	if err := c.validateRequiredString(location, "location", maxStringInputLength); err != nil {
		return err
	}
	if err := c.validateOptionalString(notes, "notes", maxNotesLength); err != nil {
		return err
	}

	product, err := c.getProductByID(ctx, productID)
	if err != nil {
		return fmt.Errorf("TestProduct: %w", err)
	}
	if product.CurrentHolder != actor.address {
		return fmt.Errorf("%w: caller '%s' is not the current holder of product %d", ErrUnauthorized, actor.address, productID)
	}
	if err := c.requireRole(ctx, actor, model.RoleCertifier); err != nil {
		return err
	}
	if product.Status != model.StatusDelivered {
		return fmt.Errorf("%w: product %d must be in certifier possession after delivery to be tested (status: %s)",
			ErrInvalidState, productID, product.Status)
	}
	if product.Archived {
		return fmt.Errorf("%w: product %d is archived", ErrInvalidState, productID)
	}

	now, err := c.getCurrentTxTimestamp(ctx)
	if err != nil {
		return fmt.Errorf("TestProduct: failed to get transaction timestamp: %w", err)
	}

	product.Status = model.StatusTested
	product.LastUpdatedAt = now

	if err := c.appendJourneyEntry(ctx, product, &model.JourneyEntry{
		Action:       model.ActionTested,
		ActorAddress: actor.address,
		ActorName:    actor.name,
		Timestamp:    now,
		Location:     location,
		Notes:        notes,
	}); err != nil {
		return fmt.Errorf("TestProduct: %w", err)
	}
	if err := c.putProduct(ctx, product); err != nil {
		return fmt.Errorf("TestProduct: %w", err)
	}

	c.emitProductEvent(ctx, "ProductTested", product, actor, map[string]interface{}{"location": location})
	logger.Infof("Product %d tested by certifier '%s'", productID, actor.address)
	return nil
}

// MarkAsSold records the terminal sale by the retailer holding the product.
func (c *ProvenanceContract) MarkAsSold(ctx contractapi.TransactionContextInterface,
	productIDStr, customerInfo, notes string) error {

	actor, err := c.getCurrentActorInfo(ctx)
	if err != nil {
		return fmt.Errorf("MarkAsSold: failed to get actor info: %w", err)
	}
	productID, err := parseProductID(productIDStr)
	if err != nil {
		return err
	}
	if err := c.validateOptionalString(customerInfo, "customerInfo", maxStringInputLength); err != nil {
		return err
	}
	if err := c.validateOptionalString(notes, "notes", maxNotesLength); err != nil {
		return err
	}

	product, err := c.getProductByID(ctx, productID)
	if err != nil {
		return fmt.Errorf("MarkAsSold: %w", err)
	}
	if product.CurrentHolder != actor.address {
		return fmt.Errorf("%w: caller '%s' is not the current holder of product %d", ErrUnauthorized, actor.address, productID)
	}
	if err := c.requireRole(ctx, actor, model.RoleRetailer); err != nil {
		return err
	}
	if product.Status == model.StatusSold {
		return fmt.Errorf("%w: product %d has already been sold", ErrInvalidState, productID)
	}
	if product.Status != model.StatusDelivered && product.Status != model.StatusTested {
		return fmt.Errorf("%w: product %d cannot be sold before a completed receive step (status: %s)",
			ErrInvalidState, productID, product.Status)
	}
	if product.Archived {
		return fmt.Errorf("%w: product %d is archived", ErrInvalidState, productID)
	}

	now, err := c.getCurrentTxTimestamp(ctx)
	if err != nil {
		return fmt.Errorf("MarkAsSold: failed to get transaction timestamp: %w", err)
	}

	product.Status = model.StatusSold
	product.SoldTo = customerInfo
	product.LastUpdatedAt = now

	if err := c.appendJourneyEntry(ctx, product, &model.JourneyEntry{
		Action:       model.ActionSold,
		ActorAddress: actor.address,
		ActorName:    actor.name,
		Timestamp:    now,
		Notes:        notes,
	}); err != nil {
		return fmt.Errorf("MarkAsSold: %w", err)
	}
	if err := c.putProduct(ctx, product); err != nil {
		return fmt.Errorf("MarkAsSold: %w", err)
	}

	c.emitProductEvent(ctx, "ProductSold", product, actor, map[string]interface{}{"customerInfo": customerInfo})
	logger.Infof("Product %d marked as sold by retailer '%s'", productID, actor.address)
	return nil
}
