package contract

import (
	"encoding/json"
	"fmt"

	"provtrace/model"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
)

// --- Journey log ---
//
// The journey log is a pure append structure owned by the custody state
// machine: appendJourneyEntry is called only from accepted transitions, in
// the same transaction that mutates the product, so the append and the
// status/holder change land atomically or not at all. Entries are never
// rewritten; the sequence index is allocated from the product's entry count
// and is therefore contiguous from 0 with no gaps.

// appendJourneyEntry writes the next entry for the product and bumps the
// product's entry count. The caller is responsible for persisting the product
// afterwards in the same transaction.
func (c *ProvenanceContract) appendJourneyEntry(ctx contractapi.TransactionContextInterface, product *model.Product, entry *model.JourneyEntry) error {
	entry.ObjectType = journeyObjectType
	entry.ProductID = product.ID
	entry.SequenceIndex = product.EntryCount

	key, err := c.createJourneyKey(ctx, product.ID, entry.SequenceIndex)
	if err != nil {
		return fmt.Errorf("failed to create journey key for product %d index %d: %w", product.ID, entry.SequenceIndex, err)
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal journey entry for product %d: %w", product.ID, err)
	}
	if err := ctx.GetStub().PutState(key, raw); err != nil {
		return fmt.Errorf("failed to append journey entry for product %d: %w", product.ID, err)
	}
	product.EntryCount++
	return nil
}

// GetJourneyEntry returns one journey entry by product id and sequence index.
func (c *ProvenanceContract) GetJourneyEntry(ctx contractapi.TransactionContextInterface, productIDStr, indexStr string) (*model.JourneyEntry, error) {
	productID, err := parseProductID(productIDStr)
	if err != nil {
		return nil, err
	}
	index, err := parseProductID(indexStr) // same shape: non-negative decimal
	if err != nil {
		return nil, fmt.Errorf("invalid sequence index '%s'", indexStr)
	}

	key, err := c.createJourneyKey(ctx, productID, index)
	if err != nil {
		return nil, err
	}
	raw, err := ctx.GetStub().GetState(key)
	if err != nil {
		return nil, fmt.Errorf("failed to read journey entry %d/%d: %w", productID, index, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: journey entry %d for product %d does not exist", ErrNotFound, index, productID)
	}
	var entry model.JourneyEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal journey entry %d/%d: %w", productID, index, err)
	}
	return &entry, nil
}

// allEntries returns the full ordered journey for a product. It backs both
// live reads and the archival snapshot; journey keys are zero-padded so the
// partial-key iterator yields entries in sequence order.
func (c *ProvenanceContract) allEntries(ctx contractapi.TransactionContextInterface, productID uint64) ([]model.JourneyEntry, error) {
	resultsIterator, err := ctx.GetStub().GetStateByPartialCompositeKey(journeyObjectType,
		[]string{fmt.Sprintf("%d", productID)})
	if err != nil {
		return nil, fmt.Errorf("failed to get journey iterator for product %d: %w", productID, err)
	}
	defer resultsIterator.Close()

	entries := []model.JourneyEntry{}
	for resultsIterator.HasNext() {
		queryResponse, iterErr := resultsIterator.Next()
		if iterErr != nil {
			return nil, fmt.Errorf("failed iterating journey for product %d: %w", productID, iterErr)
		}
		var entry model.JourneyEntry
		if err := json.Unmarshal(queryResponse.Value, &entry); err != nil {
			return nil, fmt.Errorf("failed to unmarshal journey entry for key '%s': %w", queryResponse.Key, err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
