package contract

import (
	"github.com/hyperledger/fabric-contract-api-go/contractapi"
	"github.com/hyperledger/fabric/common/flogging"
)

var logger = flogging.MustGetLogger("provtrace.provenancecontract")

// Object types used for composite keys and as 'docType' for CouchDB queries.
const (
	productObjectType    = "Product"
	journeyObjectType    = "Journey"
	roleRecordObjectType = "RoleRecord"
	publicCodeObjectType = "PublicCode"
	ownerObjectType      = "RegistryOwner"
)

// productCounterKey holds the last assigned product id. Ids are numeric and
// monotonically assigned; the counter is read and bumped inside the creating
// transaction, so two concurrent creates conflict and exactly one commits.
const productCounterKey = "ProductCounter"

// Constants for input validation and limits.
const (
	maxStringInputLength = 256
	maxDescriptionLength = 1024
	maxNotesLength       = 512
)

// ProvenanceContract tracks products through a multi-party supply chain,
// recording every custody transfer as an immutable journey entry and gating
// every transition on the caller holding the correct role and possession.
type ProvenanceContract struct {
	contractapi.Contract
}

// actorInfo holds commonly needed details about the transaction invoker.
type actorInfo struct {
	address string
	name    string
	mspID   string
}

// Instantiate is called during chaincode instantiation.
func (c *ProvenanceContract) Instantiate(ctx contractapi.TransactionContextInterface) {
	logger.Info("ProvenanceContract Instantiated/Upgraded")
}
