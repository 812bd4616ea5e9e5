package contract

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"provtrace/model"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
)

// GetProduct returns the external read shape of one product.
func (c *ProvenanceContract) GetProduct(ctx contractapi.TransactionContextInterface, productIDStr string) (*model.ProductView, error) {
	productID, err := parseProductID(productIDStr)
	if err != nil {
		return nil, err
	}
	product, err := c.getProductByID(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("GetProduct: %w", err)
	}
	return product.View(), nil
}

// GetProductByPublicCode resolves a public code to its product via the
// code index written at creation. One read, regardless of how many
// products exist.
func (c *ProvenanceContract) GetProductByPublicCode(ctx contractapi.TransactionContextInterface, publicCode string) (*model.ProductView, error) {
	code := strings.TrimSpace(publicCode)
	if code == "" {
		return nil, fmt.Errorf("publicCode must not be empty")
	}
	key, err := c.createPublicCodeKey(ctx, code)
	if err != nil {
		return nil, err
	}
	raw, err := ctx.GetStub().GetState(key)
	if err != nil {
		return nil, fmt.Errorf("failed to read public code index for '%s': %w", code, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: no product with public code '%s'", ErrNotFound, code)
	}
	productID, err := strconv.ParseUint(string(raw), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("corrupt public code index for '%s': %w", code, err)
	}
	product, err := c.getProductByID(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("GetProductByPublicCode: %w", err)
	}
	return product.View(), nil
}

// GetJourney returns the full ordered journey of a live product. Once a
// product is archived its history is served from the archive record, not
// the ledger; callers are pointed at the archive hash instead.
func (c *ProvenanceContract) GetJourney(ctx contractapi.TransactionContextInterface, productIDStr string) ([]model.JourneyEntry, error) {
	productID, err := parseProductID(productIDStr)
	if err != nil {
		return nil, err
	}
	product, err := c.getProductByID(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("GetJourney: %w", err)
	}
	if product.Archived {
		return nil, fmt.Errorf("%w: journey for product %d is archived under '%s'", ErrInvalidState, productID, product.ArchiveHash)
	}
	entries, err := c.allEntries(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("GetJourney: %w", err)
	}
	return entries, nil
}

// GetAllProducts returns the read shapes of every product on the ledger.
func (c *ProvenanceContract) GetAllProducts(ctx contractapi.TransactionContextInterface) ([]*model.ProductView, error) {
	return c.listProducts(ctx, func(*model.Product) bool { return true })
}

// GetProductsByHolder returns the products an address currently holds or
// originally produced. This is the per-participant listing behind each
// party's dashboard.
func (c *ProvenanceContract) GetProductsByHolder(ctx contractapi.TransactionContextInterface, address string) ([]*model.ProductView, error) {
	addr := strings.TrimSpace(address)
	if addr == "" {
		return nil, fmt.Errorf("address must not be empty")
	}
	return c.listProducts(ctx, func(p *model.Product) bool {
		return p.CurrentHolder == addr || p.ProducerAddress == addr
	})
}

func (c *ProvenanceContract) listProducts(ctx contractapi.TransactionContextInterface, keep func(*model.Product) bool) ([]*model.ProductView, error) {
	resultsIterator, err := ctx.GetStub().GetStateByPartialCompositeKey(productObjectType, []string{})
	if err != nil {
		return nil, fmt.Errorf("failed to get product iterator: %w", err)
	}
	defer resultsIterator.Close()

	views := []*model.ProductView{}
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
		if !keep(&product) {
			continue
		}
		views = append(views, product.View())
	}
	return views, nil
}
