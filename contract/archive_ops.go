package contract

import (
	"encoding/json"
	"fmt"
	"strings"

	"provtrace/model"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
)

// --- Archival coordination ---
//
// Archival moves completed products off the live ledger in two phases: an
// off-ledger coordinator reads a consistent snapshot, uploads it to content
// addressed storage, and then calls ConfirmArchive with the resulting hash.
// Only the confirm step mutates ledger state, so a crash between upload and
// confirm leaves the product unarchived and the retry re-uploads identical
// bytes to the identical address.

// archivableStatuses is the policy envelope: only settled products may be
// frozen. A product still moving (CREATED, IN_TRANSIT, TESTED) must never
// be archived, or the live transitions would race the archive record.
var archivableStatuses = map[model.ProductStatus]bool{
	model.StatusSold:      true,
	model.StatusDelivered: true,
}

// GetArchivalCandidates returns the ids of unarchived products whose status
// is in the given comma-separated set. An empty filter selects SOLD, the
// default archival policy; filter values outside the archivable envelope
// are rejected.
func (c *ProvenanceContract) GetArchivalCandidates(ctx contractapi.TransactionContextInterface, statusFilter string) ([]uint64, error) {
	wanted := map[model.ProductStatus]bool{}
	if strings.TrimSpace(statusFilter) == "" {
		wanted[model.StatusSold] = true
	} else {
		for _, part := range strings.Split(statusFilter, ",") {
			status := model.ProductStatus(strings.ToUpper(strings.TrimSpace(part)))
			if !archivableStatuses[status] {
				return nil, fmt.Errorf("status '%s' is not archivable", part)
			}
			wanted[status] = true
		}
	}

	resultsIterator, err := ctx.GetStub().GetStateByPartialCompositeKey(productObjectType, []string{})
	if err != nil {
		return nil, fmt.Errorf("failed to get product iterator: %w", err)
	}
	defer resultsIterator.Close()

	candidates := []uint64{}
	for resultsIterator.HasNext() {
		queryResponse, iterErr := resultsIterator.Next()
		if iterErr != nil {
			return nil, fmt.Errorf("failed iterating products: %w", iterErr)
		}
		var product model.Product
		if err := json.Unmarshal(queryResponse.Value, &product); err != nil {
			logger.Warnf("Skipping unparseable product state for key '%s': %v", queryResponse.Key, err)
			continue
		}
		if product.Archived || !wanted[product.Status] {
			continue
		}
		candidates = append(candidates, product.ID)
	}
	return candidates, nil
}

// GetArchiveSnapshot returns the product together with its full journey in
// a single transaction. This is the one consistent read point the archival
// coordinator serializes and uploads; reading both in one transaction rules
// out a journey that outgrew the product record it is paired with.
func (c *ProvenanceContract) GetArchiveSnapshot(ctx contractapi.TransactionContextInterface, productIDStr string) (*model.ArchiveRecord, error) {
	productID, err := parseProductID(productIDStr)
	if err != nil {
		return nil, err
	}
	product, err := c.getProductByID(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("GetArchiveSnapshot: %w", err)
	}
	entries, err := c.allEntries(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("GetArchiveSnapshot: %w", err)
	}
	if uint64(len(entries)) != product.EntryCount {
		return nil, fmt.Errorf("journey for product %d has %d entries but the product records %d",
			productID, len(entries), product.EntryCount)
	}
	return &model.ArchiveRecord{Product: *product, Journey: entries}, nil
}

// ConfirmArchive marks one product as archived under the given content hash.
// Owner-gated; a product can be archived exactly once.
func (c *ProvenanceContract) ConfirmArchive(ctx contractapi.TransactionContextInterface, productIDStr, contentHash string) error {
	actor, err := c.getCurrentActorInfo(ctx)
	if err != nil {
		return fmt.Errorf("ConfirmArchive: failed to get actor info: %w", err)
	}
	if err := c.requireOwner(ctx, actor); err != nil {
		return err
	}
	productID, err := parseProductID(productIDStr)
	if err != nil {
		return err
	}
	if err := c.validateRequiredString(contentHash, "contentHash", maxStringInputLength); err != nil {
		return err
	}

	product, err := c.getProductByID(ctx, productID)
	if err != nil {
		return fmt.Errorf("ConfirmArchive: %w", err)
	}
	if err := c.markArchived(ctx, product, contentHash, actor); err != nil {
		return err
	}
	logger.Infof("Product %d archived under '%s'", productID, contentHash)
	return nil
}

// ConfirmArchiveBatch archives several products under one batch record hash.
// All-or-nothing: any member that is missing or already archived fails the
// whole transaction and no member is mutated.
func (c *ProvenanceContract) ConfirmArchiveBatch(ctx contractapi.TransactionContextInterface, productIDsStr, contentHash string) error {
	actor, err := c.getCurrentActorInfo(ctx)
	if err != nil {
		return fmt.Errorf("ConfirmArchiveBatch: failed to get actor info: %w", err)
	}
	if err := c.requireOwner(ctx, actor); err != nil {
		return err
	}
	if err := c.validateRequiredString(contentHash, "contentHash", maxStringInputLength); err != nil {
		return err
	}

	parts := strings.Split(productIDsStr, ",")
	if len(parts) == 0 || strings.TrimSpace(productIDsStr) == "" {
		return fmt.Errorf("productIDs must not be empty")
	}
	products := make([]*model.Product, 0, len(parts))
	seen := map[uint64]bool{}
	for _, part := range parts {
		productID, err := parseProductID(strings.TrimSpace(part))
		if err != nil {
			return err
		}
		if seen[productID] {
			return fmt.Errorf("duplicate product id %d in batch", productID)
		}
		seen[productID] = true
		product, err := c.getProductByID(ctx, productID)
		if err != nil {
			return fmt.Errorf("ConfirmArchiveBatch: %w", err)
		}
		if product.Archived {
			return fmt.Errorf("%w: product %d", ErrAlreadyArchived, product.ID)
		}
		products = append(products, product)
	}

	// All guards passed; failures past this point abort the transaction so
	// partial batches cannot be committed.
	for _, product := range products {
		if err := c.markArchived(ctx, product, contentHash, actor); err != nil {
			return err
		}
	}
	logger.Infof("Archived batch of %d products under '%s'", len(products), contentHash)
	return nil
}

func (c *ProvenanceContract) markArchived(ctx contractapi.TransactionContextInterface, product *model.Product, contentHash string, actor *actorInfo) error {
	if product.Archived {
		return fmt.Errorf("%w: product %d under '%s'", ErrAlreadyArchived, product.ID, product.ArchiveHash)
	}
	if !archivableStatuses[product.Status] {
		return fmt.Errorf("%w: product %d is still live (status: %s)", ErrInvalidState, product.ID, product.Status)
	}
	now, err := c.getCurrentTxTimestamp(ctx)
	if err != nil {
		return fmt.Errorf("failed to get transaction timestamp: %w", err)
	}
	product.Archived = true
	product.ArchiveHash = contentHash
	product.LastUpdatedAt = now
	if err := c.putProduct(ctx, product); err != nil {
		return err
	}
	c.emitProductEvent(ctx, "ProductArchived", product, actor, map[string]interface{}{"archiveHash": contentHash})
	return nil
}
