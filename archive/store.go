package archive

import (
	"context"
	"errors"
)

// Store is content-addressed storage for archive records. Put returns the
// address derived from the stored bytes; storing identical bytes twice
// yields the identical address, which is what makes archival retries safe.
type Store interface {
	Put(ctx context.Context, data []byte) (string, error)
	Get(ctx context.Context, address string) ([]byte, error)
}

var (
	// ErrStorageUnavailable marks transient upload failures. Callers retry;
	// nothing has been committed to the ledger yet.
	ErrStorageUnavailable = errors.New("archive storage unavailable")

	// ErrArchiveUnavailable marks a failed read of a committed archive
	// record. The ledger still answers identity and status for the product;
	// only its history is temporarily unreachable.
	ErrArchiveUnavailable = errors.New("archive unavailable")

	// ErrNotFound marks an address the store has no content for.
	ErrNotFound = errors.New("archive record not found")
)
