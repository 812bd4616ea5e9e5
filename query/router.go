package query

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"provtrace/archive"
	"provtrace/model"
)

// Ledger is the read surface the router consults for live data.
type Ledger interface {
	Product(ctx context.Context, productID uint64) (*model.ProductView, error)
	ProductByPublicCode(ctx context.Context, publicCode string) (*model.ProductView, error)
	Journey(ctx context.Context, productID uint64) ([]model.JourneyEntry, error)
}

// Router answers product and journey reads, routing each request to the
// ledger or to archival storage depending on the product's archived flag.
// Identity and status always come from the ledger; only history moves to
// the archive once a product is archived.
type Router struct {
	ledger Ledger
	store  archive.Store
	log    *zap.Logger
}

func NewRouter(ledger Ledger, store archive.Store, log *zap.Logger) *Router {
	return &Router{ledger: ledger, store: store, log: log}
}

// GetProduct returns the current ledger view of a product.
func (r *Router) GetProduct(ctx context.Context, productID uint64) (*model.ProductView, error) {
	return r.ledger.Product(ctx, productID)
}

// GetProductByPublicCode resolves a public code to its product view.
func (r *Router) GetProductByPublicCode(ctx context.Context, publicCode string) (*model.ProductView, error) {
	return r.ledger.ProductByPublicCode(ctx, publicCode)
}

// GetJourney returns a product's full ordered journey: from the ledger
// while the product is live, from archival storage once it is archived.
func (r *Router) GetJourney(ctx context.Context, productID uint64) ([]model.JourneyEntry, error) {
	view, err := r.ledger.Product(ctx, productID)
	if err != nil {
		return nil, err
	}
	if !view.Archived {
		return r.ledger.Journey(ctx, productID)
	}
	return r.archivedJourney(ctx, view)
}

// GetJourneyByPublicCode is GetJourney keyed by public code.
func (r *Router) GetJourneyByPublicCode(ctx context.Context, publicCode string) ([]model.JourneyEntry, error) {
	view, err := r.ledger.ProductByPublicCode(ctx, publicCode)
	if err != nil {
		return nil, err
	}
	if !view.Archived {
		return r.ledger.Journey(ctx, view.ID)
	}
	return r.archivedJourney(ctx, view)
}

// archivedJourney loads the archive record behind the product's content
// address. The address may point to a single-product record or to a batch
// record holding several products.
func (r *Router) archivedJourney(ctx context.Context, view *model.ProductView) ([]model.JourneyEntry, error) {
	data, err := r.store.Get(ctx, view.ArchiveHash)
	if err != nil {
		if errors.Is(err, archive.ErrNotFound) {
			return nil, fmt.Errorf("%w: no content at committed address '%s' for product %d",
				archive.ErrArchiveUnavailable, view.ArchiveHash, view.ID)
		}
		return nil, err
	}

	if record, decErr := archive.DecodeRecord(data); decErr == nil && record.Product.ID == view.ID {
		return record.Journey, nil
	}
	if records, decErr := archive.DecodeBatch(data); decErr == nil {
		for i := range records {
			if records[i].Product.ID == view.ID {
				return records[i].Journey, nil
			}
		}
	}
	r.log.Error("Archive record does not contain the product it was committed for",
		zap.Uint64("product_id", view.ID), zap.String("address", view.ArchiveHash))
	return nil, fmt.Errorf("%w: record at '%s' does not contain product %d",
		archive.ErrArchiveUnavailable, view.ArchiveHash, view.ID)
}
