package model

import "time"

// ProductStatus defines the possible lifecycle states of a product.
type ProductStatus string

const (
	StatusCreated   ProductStatus = "CREATED"    // Product registered by producer, in producer's possession
	StatusInTransit ProductStatus = "IN_TRANSIT" // Shipment outstanding, held by no registered party
	StatusDelivered ProductStatus = "DELIVERED"  // Received by the designated recipient
	StatusTested    ProductStatus = "TESTED"     // Quality-tested by a certifier while in its possession
	StatusSold      ProductStatus = "SOLD"       // Sold to end customer by retailer; terminal
)

// JourneyAction defines the action recorded by a single custody event.
type JourneyAction string

const (
	ActionCreated  JourneyAction = "CREATED"
	ActionShipped  JourneyAction = "SHIPPED"
	ActionReceived JourneyAction = "RECEIVED"
	ActionTested   JourneyAction = "TESTED"
	ActionSold     JourneyAction = "SOLD"
)

// Product is the central data structure tracking one physical good through
// the supply chain. While the product is live the ledger record is the single
// source of truth; once Archived is set the archive record addressed by
// ArchiveHash is authoritative for history and the ledger fields that mirror
// journey data are read-only.
type Product struct {
	ObjectType           string        `json:"objectType"` // "Product"
	ID                   uint64        `json:"id"`         // Monotonically assigned numeric id
	Name                 string        `json:"name"`
	Description          string        `json:"description"`
	OriginLocation       string        `json:"originLocation"`
	ProducerAddress      string        `json:"producerAddress"`
	ProducerName         string        `json:"producerName"`
	PublicCode           string        `json:"publicCode"` // Content-derived identifier for external lookup
	TotalQuantity        uint64        `json:"totalQuantity"`
	Status               ProductStatus `json:"status"`
	CurrentHolder        string        `json:"currentHolder"`
	PendingRecipientRole Role          `json:"pendingRecipientRole,omitempty"` // Set while IN_TRANSIT; toRole of the latest SHIPPED entry
	EntryCount           uint64        `json:"entryCount"`                     // Length of the journey log; updated in the same tx as each append
	CreatedAt            time.Time     `json:"createdAt"`
	LastUpdatedAt        time.Time     `json:"lastUpdatedAt"`
	Archived             bool          `json:"archived"`
	ArchiveHash          string        `json:"archiveHash,omitempty"`
	SoldTo               string        `json:"soldTo,omitempty"` // Customer info recorded by MarkAsSold
}

// JourneyEntry is one immutable custody event. SequenceIndex is 0-based,
// contiguous, and the sole ordering key; Timestamp is informational.
type JourneyEntry struct {
	ObjectType    string        `json:"objectType"` // "Journey"
	ProductID     uint64        `json:"productId"`
	SequenceIndex uint64        `json:"sequenceIndex"`
	Action        JourneyAction `json:"action"`
	ActorAddress  string        `json:"actorAddress"`
	ActorName     string        `json:"actorName"`
	Timestamp     time.Time     `json:"timestamp"`
	Location      string        `json:"location"`
	Notes         string        `json:"notes"`
	ToRole        Role          `json:"toRole,omitempty"` // Only on SHIPPED entries: intended destination role
}

// ArchiveRecord is the off-ledger snapshot of a completed product: the
// product fields plus its full journey, serialized deterministically and
// addressed by the content hash the storage layer computes over the bytes.
type ArchiveRecord struct {
	Product Product        `json:"product"`
	Journey []JourneyEntry `json:"journey"`
}

// ProductView is the read shape returned to external consumers.
type ProductView struct {
	ID            uint64        `json:"id"`
	Name          string        `json:"name"`
	Description   string        `json:"description"`
	Producer      string        `json:"producer"`
	ProducerName  string        `json:"producerName"`
	PublicCode    string        `json:"publicCode"`
	TotalQuantity uint64        `json:"totalQuantity"`
	Status        ProductStatus `json:"status"`
	Holder        string        `json:"holder"`
	Archived      bool          `json:"archived"`
	ArchiveHash   string        `json:"archiveHash,omitempty"`
	CreatedAt     time.Time     `json:"createdAt"`
}

// CreateProductResult is returned by CreateProduct: the confirmation handle
// callers use to reference and label the new product.
type CreateProductResult struct {
	ID         uint64 `json:"id"`
	PublicCode string `json:"publicCode"`
}

// View projects a Product into its external read shape.
func (p *Product) View() *ProductView {
	return &ProductView{
		ID:            p.ID,
		Name:          p.Name,
		Description:   p.Description,
		Producer:      p.ProducerAddress,
		ProducerName:  p.ProducerName,
		PublicCode:    p.PublicCode,
		TotalQuantity: p.TotalQuantity,
		Status:        p.Status,
		Holder:        p.CurrentHolder,
		Archived:      p.Archived,
		ArchiveHash:   p.ArchiveHash,
		CreatedAt:     p.CreatedAt,
	}
}
