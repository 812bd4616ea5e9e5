package contract

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"provtrace/model"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
)

// --- Core helper methods (used across operations) ---

// getCurrentTxTimestamp retrieves the current transaction timestamp from the
// stub. All peers executing the same transaction observe the same value, so
// it is safe to write into state.
func (c *ProvenanceContract) getCurrentTxTimestamp(ctx contractapi.TransactionContextInterface) (time.Time, error) {
	ts, err := ctx.GetStub().GetTxTimestamp()
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get transaction timestamp: %w", err)
	}
	return ts.AsTime(), nil
}

// getCurrentActorInfo resolves the invoker's address and display name. The
// address is the client identity's full ID; the name comes from the actor's
// approved role record when one exists, falling back to the MSP ID.
func (c *ProvenanceContract) getCurrentActorInfo(ctx contractapi.TransactionContextInterface) (*actorInfo, error) {
	clientIdentity := ctx.GetClientIdentity()
	if clientIdentity == nil {
		return nil, errors.New("client identity is nil from context")
	}
	address, err := clientIdentity.GetID()
	if err != nil {
		return nil, fmt.Errorf("failed to get current actor's identity: %w", err)
	}
	if address == "" {
		return nil, errors.New("client identity ID from context is empty")
	}

	mspID, err := clientIdentity.GetMSPID()
	if err != nil {
		return nil, fmt.Errorf("failed to get current actor's MSPID: %w", err)
	}

	name := mspID
	if record, recErr := c.getRoleRecord(ctx, address); recErr == nil && record.Status == model.RoleStatusApproved {
		name = record.OrganizationName
	}
	return &actorInfo{address: address, name: name, mspID: mspID}, nil
}

// --- Key creation helpers ---

func (c *ProvenanceContract) createProductKey(ctx contractapi.TransactionContextInterface, productID uint64) (string, error) {
	return ctx.GetStub().CreateCompositeKey(productObjectType, []string{strconv.FormatUint(productID, 10)})
}

// createJourneyKey builds the key for one journey entry. The sequence index
// is zero-padded so partial-key iteration returns entries in sequence order.
func (c *ProvenanceContract) createJourneyKey(ctx contractapi.TransactionContextInterface, productID, index uint64) (string, error) {
	return ctx.GetStub().CreateCompositeKey(journeyObjectType,
		[]string{strconv.FormatUint(productID, 10), fmt.Sprintf("%012d", index)})
}

func (c *ProvenanceContract) createRoleRecordKey(ctx contractapi.TransactionContextInterface, address string) (string, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return "", errors.New("address cannot be empty")
	}
	return ctx.GetStub().CreateCompositeKey(roleRecordObjectType, []string{address})
}

func (c *ProvenanceContract) createPublicCodeKey(ctx contractapi.TransactionContextInterface, code string) (string, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return "", errors.New("publicCode cannot be empty")
	}
	return ctx.GetStub().CreateCompositeKey(publicCodeObjectType, []string{code})
}

func (c *ProvenanceContract) createOwnerKey(ctx contractapi.TransactionContextInterface) (string, error) {
	return ctx.GetStub().CreateCompositeKey(ownerObjectType, []string{"owner"})
}

// --- Validation helpers ---

func (c *ProvenanceContract) validateRequiredString(input, field string, max int) error {
	if strings.TrimSpace(input) == "" {
		return fmt.Errorf("%s cannot be empty", field)
	}
	if len(input) > max {
		return fmt.Errorf("%s exceeds max length %d", field, max)
	}
	return nil
}

func (c *ProvenanceContract) validateOptionalString(input, field string, max int) error {
	if input != "" && len(input) > max {
		return fmt.Errorf("%s exceeds max length %d", field, max)
	}
	return nil
}

func parseProductID(idStr string) (uint64, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(idStr), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid product id '%s': %w", idStr, err)
	}
	return id, nil
}

func parseRole(roleStr string) (model.Role, error) {
	role := model.Role(strings.ToLower(strings.TrimSpace(roleStr)))
	if !model.ValidRoles[role] {
		return "", fmt.Errorf("invalid role '%s'. Valid roles: %s, %s, %s, %s", roleStr,
			model.RoleProducer, model.RoleCertifier, model.RoleDistributor, model.RoleRetailer)
	}
	return role, nil
}

// derivePublicCode computes the content-derived public identifier assigned at
// creation. The preimage binds the id, producer, name, and creation time, so
// codes are collision-resistant and cannot be predicted from the numeric id.
func derivePublicCode(id uint64, producer, name string, createdAt time.Time) string {
	h := sha256.New()
	fmt.Fprintf(h, "%d\x00%s\x00%s\x00%d", id, producer, name, createdAt.UnixNano())
	return hex.EncodeToString(h.Sum(nil))
}

// --- State access helpers ---

// nextProductID reads and bumps the product counter within the current
// transaction.
func (c *ProvenanceContract) nextProductID(ctx contractapi.TransactionContextInterface) (uint64, error) {
	raw, err := ctx.GetStub().GetState(productCounterKey)
	if err != nil {
		return 0, fmt.Errorf("failed to read product counter: %w", err)
	}
	var last uint64
	if raw != nil {
		last, err = strconv.ParseUint(string(raw), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("corrupt product counter value '%s': %w", string(raw), err)
		}
	}
	next := last + 1
	if err := ctx.GetStub().PutState(productCounterKey, []byte(strconv.FormatUint(next, 10))); err != nil {
		return 0, fmt.Errorf("failed to bump product counter: %w", err)
	}
	return next, nil
}

func (c *ProvenanceContract) putProduct(ctx contractapi.TransactionContextInterface, product *model.Product) error {
	key, err := c.createProductKey(ctx, product.ID)
	if err != nil {
		return fmt.Errorf("failed to create key for product %d: %w", product.ID, err)
	}
	raw, err := json.Marshal(product)
	if err != nil {
		return fmt.Errorf("failed to marshal product %d: %w", product.ID, err)
	}
	if err := ctx.GetStub().PutState(key, raw); err != nil {
		return fmt.Errorf("failed to save product %d to ledger: %w", product.ID, err)
	}
	return nil
}

// getProductByID retrieves and unmarshals a product record.
func (c *ProvenanceContract) getProductByID(ctx contractapi.TransactionContextInterface, productID uint64) (*model.Product, error) {
	key, err := c.createProductKey(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to create key for product %d: %w", productID, err)
	}
	raw, err := ctx.GetStub().GetState(key)
	if err != nil {
		return nil, fmt.Errorf("failed to read product %d from ledger: %w", productID, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: product %d does not exist", ErrNotFound, productID)
	}
	var product model.Product
	if err := json.Unmarshal(raw, &product); err != nil {
		return nil, fmt.Errorf("failed to unmarshal product %d: %w", productID, err)
	}
	return &product, nil
}

func (c *ProvenanceContract) getRoleRecord(ctx contractapi.TransactionContextInterface, address string) (*model.RoleRecord, error) {
	key, err := c.createRoleRecordKey(ctx, address)
	if err != nil {
		return nil, err
	}
	raw, err := ctx.GetStub().GetState(key)
	if err != nil {
		return nil, fmt.Errorf("failed to read role record for '%s': %w", address, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: no role record for address '%s'", ErrNotFound, address)
	}
	var record model.RoleRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal role record for '%s': %w", address, err)
	}
	return &record, nil
}

func (c *ProvenanceContract) putRoleRecord(ctx contractapi.TransactionContextInterface, record *model.RoleRecord) error {
	key, err := c.createRoleRecordKey(ctx, record.Address)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal role record for '%s': %w", record.Address, err)
	}
	if err := ctx.GetStub().PutState(key, raw); err != nil {
		return fmt.Errorf("failed to save role record for '%s': %w", record.Address, err)
	}
	return nil
}

// --- Authorization helpers ---

// hasApprovedRole reports whether the address holds the given role. Missing
// records mean no role, not an error.
func (c *ProvenanceContract) hasApprovedRole(ctx contractapi.TransactionContextInterface, address string, role model.Role) (bool, error) {
	record, err := c.getRoleRecord(ctx, address)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return record.Status == model.RoleStatusApproved && record.Role == role, nil
}

// requireRole fails with ErrUnauthorized unless the caller holds the role.
func (c *ProvenanceContract) requireRole(ctx contractapi.TransactionContextInterface, actor *actorInfo, role model.Role) error {
	has, err := c.hasApprovedRole(ctx, actor.address, role)
	if err != nil {
		return fmt.Errorf("error checking role '%s' for '%s': %w", role, actor.address, err)
	}
	if !has {
		return fmt.Errorf("%w: address '%s' does not hold required role '%s'", ErrUnauthorized, actor.address, role)
	}
	return nil
}

// requireOwner fails with ErrUnauthorized unless the caller is the registry
// owner.
func (c *ProvenanceContract) requireOwner(ctx contractapi.TransactionContextInterface, actor *actorInfo) error {
	owner, err := c.registryOwner(ctx)
	if err != nil {
		return err
	}
	if owner == "" {
		return fmt.Errorf("%w: registry has no owner; run Bootstrap first", ErrInvalidState)
	}
	if owner != actor.address {
		return fmt.Errorf("%w: caller '%s' is not the registry owner", ErrUnauthorized, actor.address)
	}
	return nil
}

func (c *ProvenanceContract) registryOwner(ctx contractapi.TransactionContextInterface) (string, error) {
	key, err := c.createOwnerKey(ctx)
	if err != nil {
		return "", err
	}
	raw, err := ctx.GetStub().GetState(key)
	if err != nil {
		return "", fmt.Errorf("failed to read registry owner: %w", err)
	}
	return string(raw), nil
}

// --- Event helper ---

// emitProductEvent sends a chaincode event for a product transition.
func (c *ProvenanceContract) emitProductEvent(ctx contractapi.TransactionContextInterface, eventName string, product *model.Product, actor *actorInfo, additionalPayload map[string]interface{}) {
	if product == nil || actor == nil {
		logger.Errorf("emitProductEvent: cannot emit event, product or actor is nil. Event: %s", eventName)
		return
	}
	payload := map[string]interface{}{
		"productId":     product.ID,
		"publicCode":    product.PublicCode,
		"name":          product.Name,
		"status":        product.Status,
		"currentHolder": product.CurrentHolder,
		"actorAddress":  actor.address,
		"actorName":     actor.name,
		"timestamp":     product.LastUpdatedAt.Format(time.RFC3339),
	}
	for k, v := range additionalPayload {
		if t, ok := v.(time.Time); ok {
			payload[k] = t.Format(time.RFC3339)
		} else {
			payload[k] = v
		}
	}
	eventBytes, err := json.Marshal(payload)
	if err != nil {
		logger.Warningf("emitProductEvent: failed to marshal payload for event '%s' on product %d: %v", eventName, product.ID, err)
		return
	}
	if errSet := ctx.GetStub().SetEvent(eventName, eventBytes); errSet != nil {
		logger.Warningf("emitProductEvent: failed to set event '%s' for product %d: %v", eventName, product.ID, errSet)
	}
}
