package model

import "time"

// Role defines the four supply-chain roles an actor address may hold.
type Role string

const (
	RoleProducer    Role = "producer"
	RoleCertifier   Role = "certifier"
	RoleDistributor Role = "distributor"
	RoleRetailer    Role = "retailer"
)

// ValidRoles is the set of permissible roles. The registry owner is a special
// status tracked separately, not a role in this set.
var ValidRoles = map[Role]bool{
	RoleProducer:    true,
	RoleCertifier:   true,
	RoleDistributor: true,
	RoleRetailer:    true,
}

// RoleStatus defines the states of a role request.
type RoleStatus string

const (
	RoleStatusPending  RoleStatus = "PENDING"
	RoleStatusApproved RoleStatus = "APPROVED"
	RoleStatusRejected RoleStatus = "REJECTED"
)

// RoleRecord tracks one actor's role request and its arbitration outcome.
// Records are never deleted; a re-request after rejection writes a fresh
// PENDING record under the same address key, and the ledger's key history
// retains the prior decisions for audit.
type RoleRecord struct {
	ObjectType       string     `json:"objectType"` // "RoleRecord"
	Address          string     `json:"address"`
	OrganizationName string     `json:"organizationName"`
	Role             Role       `json:"role"`
	Status           RoleStatus `json:"status"`
	RequestedAt      time.Time  `json:"requestedAt"`
	DecidedAt        time.Time  `json:"decidedAt,omitempty"`
	DecidedBy        string     `json:"decidedBy,omitempty"`
}
