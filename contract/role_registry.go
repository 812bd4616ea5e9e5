package contract

import (
	"encoding/json"
	"errors"
	"fmt"

	"provtrace/model"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
	"github.com/hyperledger/fabric/common/flogging"
)

var regLogger = flogging.MustGetLogger("provtrace.roleregistry")

// --- Role registry operations ---

// Bootstrap installs the transaction invoker as the registry owner. It can
// run only once; the owner arbitrates all subsequent role requests.
func (c *ProvenanceContract) Bootstrap(ctx contractapi.TransactionContextInterface) error {
	actor, err := c.getCurrentActorInfo(ctx)
	if err != nil {
		return fmt.Errorf("Bootstrap: failed to get caller identity: %w", err)
	}

	owner, err := c.registryOwner(ctx)
	if err != nil {
		return fmt.Errorf("Bootstrap: %w", err)
	}
	if owner != "" {
		return fmt.Errorf("%w: registry already has an owner", ErrInvalidState)
	}

	ownerKey, err := c.createOwnerKey(ctx)
	if err != nil {
		return fmt.Errorf("Bootstrap: %w", err)
	}
	if err := ctx.GetStub().PutState(ownerKey, []byte(actor.address)); err != nil {
		return fmt.Errorf("Bootstrap: failed to save registry owner: %w", err)
	}
	regLogger.Infof("Registry bootstrapped. Owner: '%s' (MSP: %s)", actor.address, actor.mspID)
	return nil
}

// RequestRole creates a pending role request for the calling address. At most
// one pending request may exist per address, and an address that already
// holds an approved role cannot request another.
func (c *ProvenanceContract) RequestRole(ctx contractapi.TransactionContextInterface, roleStr, orgName string) error {
	actor, err := c.getCurrentActorInfo(ctx)
	if err != nil {
		return fmt.Errorf("RequestRole: failed to get actor info: %w", err)
	}

	role, err := parseRole(roleStr)
	if err != nil {
		return err
	}
	if err := c.validateRequiredString(orgName, "organizationName", maxStringInputLength); err != nil {
		return err
	}

	existing, err := c.getRoleRecord(ctx, actor.address)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("RequestRole: %w", err)
	}
	if existing != nil {
		switch existing.Status {
		case model.RoleStatusPending:
			return fmt.Errorf("%w: duplicate request - address '%s' already has a pending role request", ErrInvalidState, actor.address)
		case model.RoleStatusApproved:
			return fmt.Errorf("%w: address '%s' already holds role '%s'", ErrInvalidState, actor.address, existing.Role)
		}
		// Rejected: a fresh request is allowed. The prior decision stays
		// auditable through the ledger's key history.
	}

	now, err := c.getCurrentTxTimestamp(ctx)
	if err != nil {
		return fmt.Errorf("RequestRole: failed to get transaction timestamp: %w", err)
	}

	record := model.RoleRecord{
		ObjectType:       roleRecordObjectType,
		Address:          actor.address,
		OrganizationName: orgName,
		Role:             role,
		Status:           model.RoleStatusPending,
		RequestedAt:      now,
	}
	if err := c.putRoleRecord(ctx, &record); err != nil {
		return fmt.Errorf("RequestRole: %w", err)
	}

	c.emitRoleEvent(ctx, "RoleRequested", &record)
	regLogger.Infof("Role '%s' requested by '%s' (org: '%s')", role, actor.address, orgName)
	return nil
}

// ApproveRoleRequest transitions a pending request to APPROVED and grants the
// role for subsequent authorization checks. Registry owner only.
func (c *ProvenanceContract) ApproveRoleRequest(ctx contractapi.TransactionContextInterface, address string) error {
	return c.decideRoleRequest(ctx, address, model.RoleStatusApproved)
}

// RejectRoleRequest transitions a pending request to REJECTED. Registry owner
// only.
func (c *ProvenanceContract) RejectRoleRequest(ctx contractapi.TransactionContextInterface, address string) error {
	return c.decideRoleRequest(ctx, address, model.RoleStatusRejected)
}

func (c *ProvenanceContract) decideRoleRequest(ctx contractapi.TransactionContextInterface, address string, decision model.RoleStatus) error {
	actor, err := c.getCurrentActorInfo(ctx)
	if err != nil {
		return fmt.Errorf("decideRoleRequest: failed to get actor info: %w", err)
	}
	if err := c.requireOwner(ctx, actor); err != nil {
		return err
	}

	record, err := c.getRoleRecord(ctx, address)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return fmt.Errorf("%w: no pending role request for address '%s'", ErrNotFound, address)
		}
		return err
	}
	if record.Status != model.RoleStatusPending {
		return fmt.Errorf("%w: role request for '%s' is not pending (status: %s)", ErrNotFound, address, record.Status)
	}

	now, err := c.getCurrentTxTimestamp(ctx)
	if err != nil {
		return fmt.Errorf("decideRoleRequest: failed to get transaction timestamp: %w", err)
	}

	record.Status = decision
	record.DecidedAt = now
	record.DecidedBy = actor.address
	if err := c.putRoleRecord(ctx, record); err != nil {
		return err
	}

	eventName := "RoleApproved"
	if decision == model.RoleStatusRejected {
		eventName = "RoleRejected"
	}
	c.emitRoleEvent(ctx, eventName, record)
	regLogger.Infof("Role request for '%s' (role: %s) decided: %s by owner '%s'", address, record.Role, decision, actor.address)
	return nil
}

// HasRole reports whether the address holds an approved role. Pure read.
func (c *ProvenanceContract) HasRole(ctx contractapi.TransactionContextInterface, address, roleStr string) (bool, error) {
	role, err := parseRole(roleStr)
	if err != nil {
		return false, err
	}
	return c.hasApprovedRole(ctx, address, role)
}

// GetRoleRecord returns the current role record for an address.
func (c *ProvenanceContract) GetRoleRecord(ctx contractapi.TransactionContextInterface, address string) (*model.RoleRecord, error) {
	return c.getRoleRecord(ctx, address)
}

// GetPendingRequests returns every role request currently awaiting a
// decision. Registry owner only.
func (c *ProvenanceContract) GetPendingRequests(ctx contractapi.TransactionContextInterface) ([]model.RoleRecord, error) {
	actor, err := c.getCurrentActorInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("GetPendingRequests: failed to get actor info: %w", err)
	}
	if err := c.requireOwner(ctx, actor); err != nil {
		return nil, err
	}

	resultsIterator, err := ctx.GetStub().GetStateByPartialCompositeKey(roleRecordObjectType, []string{})
	if err != nil {
		return nil, fmt.Errorf("GetPendingRequests: failed to get role records iterator: %w", err)
	}
	defer resultsIterator.Close()

	pending := []model.RoleRecord{}
	for resultsIterator.HasNext() {
		queryResponse, iterErr := resultsIterator.Next()
		if iterErr != nil {
			regLogger.Warningf("GetPendingRequests: failed to get next record from iterator: %v. Skipping.", iterErr)
			continue
		}
		var record model.RoleRecord
		if err := json.Unmarshal(queryResponse.Value, &record); err != nil {
			regLogger.Warningf("GetPendingRequests: failed to unmarshal record for key '%s': %v. Skipping.", queryResponse.Key, err)
			continue
		}
		if record.Status == model.RoleStatusPending {
			pending = append(pending, record)
		}
	}
	return pending, nil
}

func (c *ProvenanceContract) emitRoleEvent(ctx contractapi.TransactionContextInterface, eventName string, record *model.RoleRecord) {
	payload, err := json.Marshal(map[string]interface{}{
		"address":          record.Address,
		"role":             record.Role,
		"organizationName": record.OrganizationName,
		"status":           record.Status,
	})
	if err != nil {
		regLogger.Warningf("emitRoleEvent: failed to marshal payload for '%s': %v", eventName, err)
		return
	}
	if err := ctx.GetStub().SetEvent(eventName, payload); err != nil {
		regLogger.Warningf("emitRoleEvent: failed to set event '%s': %v", eventName, err)
	}
}
