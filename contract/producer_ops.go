package contract

import (
	"errors"
	"fmt"
	"strconv"

	"provtrace/model"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
)

// --- Lifecycle: Producer operations ---

// CreateProduct registers a new product in the producer's possession. It
// allocates the next numeric id, derives the public code, and writes the
// CREATED journey entry at sequence index 0, all in one transaction. Returns
// the id and public code as the caller's confirmation handle.
func (c *ProvenanceContract) CreateProduct(ctx contractapi.TransactionContextInterface,
	name, description, location, quantityStr string) (*model.CreateProductResult, error) {

	actor, err := c.getCurrentActorInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("CreateProduct: failed to get actor info: %w", err)
	}
	if err := c.requireRole(ctx, actor, model.RoleProducer); err != nil {
		return nil, err
	}

	logger.Infof("Producer '%s' creating product '%s'", actor.address, name)

	if err := c.validateRequiredString(name, "name", maxStringInputLength); err != nil {
		return nil, err
	}
	if err := c.validateOptionalString(description, "description", maxDescriptionLength); err != nil {
		return nil, err
	}
	if err := c.validateRequiredString(location, "originLocation", maxStringInputLength); err != nil {
		return nil, err
	}
	quantity, err := strconv.ParseUint(quantityStr, 10, 64)
	if err != nil || quantity == 0 {
		return nil, errors.New("quantity must be a positive integer")
	}

	now, err := c.getCurrentTxTimestamp(ctx)
	if err != nil {
		return nil, fmt.Errorf("CreateProduct: failed to get transaction timestamp: %w", err)
	}
	id, err := c.nextProductID(ctx)
	if err != nil {
		return nil, fmt.Errorf("CreateProduct: %w", err)
	}

	product := model.Product{
		ObjectType:      productObjectType,
		ID:              id,
		Name:            name,
		Description:     description,
		OriginLocation:  location,
		ProducerAddress: actor.address,
		ProducerName:    actor.name,
		PublicCode:      derivePublicCode(id, actor.address, name, now),
		TotalQuantity:   quantity,
		Status:          model.StatusCreated,
		CurrentHolder:   actor.address,
		CreatedAt:       now,
		LastUpdatedAt:   now,
	}

	if err := c.appendJourneyEntry(ctx, &product, &model.JourneyEntry{
		Action:       model.ActionCreated,
		ActorAddress: actor.address,
		ActorName:    actor.name,
		Timestamp:    now,
		Location:     location,
		Notes:        description,
	}); err != nil {
		return nil, fmt.Errorf("CreateProduct: %w", err)
	}
	if err := c.putProduct(ctx, &product); err != nil {
		return nil, fmt.Errorf("CreateProduct: %w", err)
	}

	// Public-code index so external lookups resolve code -> id without a scan.
	codeKey, err := c.createPublicCodeKey(ctx, product.PublicCode)
	if err != nil {
		return nil, fmt.Errorf("CreateProduct: %w", err)
	}
	if err := ctx.GetStub().PutState(codeKey, []byte(strconv.FormatUint(id, 10))); err != nil {
		return nil, fmt.Errorf("CreateProduct: failed to save public code index for product %d: %w", id, err)
	}

	c.emitProductEvent(ctx, "ProductCreated", &product, actor, map[string]interface{}{
		"quantity": quantity, "originLocation": location,
	})
	logger.Infof("Product %d ('%s') created by producer '%s', publicCode %s", id, name, actor.address, product.PublicCode)
	return &model.CreateProductResult{ID: id, PublicCode: product.PublicCode}, nil
}
