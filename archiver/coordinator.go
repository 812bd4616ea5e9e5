package archiver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"provtrace/archive"
	"provtrace/ledgererrors"
	"provtrace/model"
)

// Ledger is the slice of the chaincode surface the coordinator drives.
type Ledger interface {
	// ArchivalCandidates returns the ids of unarchived products in the
	// given statuses. An empty slice of statuses selects the default
	// archival policy.
	ArchivalCandidates(ctx context.Context, statuses []string) ([]uint64, error)

	// ArchiveSnapshot reads a product together with its full journey in
	// one ledger transaction.
	ArchiveSnapshot(ctx context.Context, productID uint64) (*model.ArchiveRecord, error)

	// ConfirmArchive marks one product archived under the content address.
	ConfirmArchive(ctx context.Context, productID uint64, contentHash string) error

	// ConfirmArchiveBatch marks several products archived under one
	// content address, all-or-nothing.
	ConfirmArchiveBatch(ctx context.Context, productIDs []uint64, contentHash string) error
}

// Config controls one coordinator run.
type Config struct {
	// Statuses selects which product statuses are eligible. Empty means
	// the ledger's default policy (sold products).
	Statuses []string

	// WorkerPoolSize bounds concurrent per-product archival. Ignored in
	// batch mode.
	WorkerPoolSize int

	// BatchMode commits the whole run under one content address instead
	// of one address per product.
	BatchMode bool

	// Upload retry tuning. Zero values fall back to defaults.
	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration
	RetryMaxElapsedTime  time.Duration
}

// Stats summarizes one coordinator run.
type Stats struct {
	Candidates int
	Archived   int
	LostRaces  int
	Failed     int
}

// Coordinator drains completed products off the live ledger. Each product
// goes through snapshot, canonical serialization, content-addressed upload,
// and a final ledger commit; only the commit mutates ledger state, so the
// coordinator can crash at any earlier point and simply run again.
type Coordinator struct {
	cfg    Config
	ledger Ledger
	store  archive.Store
	log    *zap.Logger
}

func New(cfg Config, ledger Ledger, store archive.Store, log *zap.Logger) *Coordinator {
	if cfg.WorkerPoolSize <= 0 {
		cfg.WorkerPoolSize = 4
	}
	if cfg.RetryInitialInterval <= 0 {
		cfg.RetryInitialInterval = 2 * time.Second
	}
	if cfg.RetryMaxInterval <= 0 {
		cfg.RetryMaxInterval = 1 * time.Minute
	}
	if cfg.RetryMaxElapsedTime <= 0 {
		cfg.RetryMaxElapsedTime = 15 * time.Minute
	}
	return &Coordinator{cfg: cfg, ledger: ledger, store: store, log: log}
}

// Run performs one archival pass over the current candidate set.
func (c *Coordinator) Run(ctx context.Context) (*Stats, error) {
	candidates, err := c.ledger.ArchivalCandidates(ctx, c.cfg.Statuses)
	if err != nil {
		return nil, fmt.Errorf("failed to list archival candidates: %w", err)
	}
	stats := &Stats{Candidates: len(candidates)}
	if len(candidates) == 0 {
		c.log.Info("No archival candidates")
		return stats, nil
	}
	c.log.Info("Starting archival run",
		zap.Int("candidates", len(candidates)),
		zap.Bool("batch_mode", c.cfg.BatchMode),
	)

	if c.cfg.BatchMode {
		err = c.runBatch(ctx, candidates, stats)
	} else {
		err = c.runPerProduct(ctx, candidates, stats)
	}
	c.log.Info("Archival run finished",
		zap.Int("candidates", stats.Candidates),
		zap.Int("archived", stats.Archived),
		zap.Int("lost_races", stats.LostRaces),
		zap.Int("failed", stats.Failed),
	)
	return stats, err
}

func (c *Coordinator) runPerProduct(ctx context.Context, candidates []uint64, stats *Stats) error {
	pool := pond.NewPool(c.cfg.WorkerPoolSize, pond.WithContext(ctx))
	defer pool.StopAndWait()

	// Each worker writes only its own slot; slots are read after Wait.
	lostRaces := make([]bool, len(candidates))
	tasks := make([]pond.Task, len(candidates))
	for i, productID := range candidates {
		i, productID := i, productID
		tasks[i] = pool.SubmitErr(func() error {
			lost, err := c.archiveOne(ctx, productID)
			lostRaces[i] = lost
			return err
		})
	}

	var firstErr error
	for i, task := range tasks {
		if err := task.Wait(); err != nil {
			stats.Failed++
			c.log.Error("Failed to archive product", zap.Uint64("product_id", candidates[i]), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if lostRaces[i] {
			stats.LostRaces++
		} else {
			stats.Archived++
		}
	}
	return firstErr
}

// archiveOne runs the full pipeline for a single product. Losing the commit
// to a racing coordinator is not a failure: the winner stored identical
// bytes under the identical address.
func (c *Coordinator) archiveOne(ctx context.Context, productID uint64) (lostRace bool, err error) {
	record, err := c.ledger.ArchiveSnapshot(ctx, productID)
	if err != nil {
		return false, fmt.Errorf("snapshot of product %d failed: %w", productID, err)
	}
	data, err := archive.EncodeRecord(record)
	if err != nil {
		return false, fmt.Errorf("encoding product %d failed: %w", productID, err)
	}
	address, err := c.uploadWithRetry(ctx, data)
	if err != nil {
		return false, fmt.Errorf("upload of product %d failed: %w", productID, err)
	}
	if err := c.ledger.ConfirmArchive(ctx, productID, address); err != nil {
		// Only the already-archived guard is a benign race; any other
		// InvalidState (unbootstrapped registry, ineligible status) is a
		// real failure that would otherwise be silently swallowed.
		if errors.Is(err, ledgererrors.ErrAlreadyArchived) {
			c.log.Info("Product archived by a concurrent run",
				zap.Uint64("product_id", productID), zap.String("address", address))
			return true, nil
		}
		return false, fmt.Errorf("confirming archive of product %d failed: %w", productID, err)
	}
	c.log.Info("Product archived", zap.Uint64("product_id", productID), zap.String("address", address))
	return false, nil
}

// runBatch snapshots every candidate, uploads one combined record, and
// commits the whole set in a single ledger transaction.
func (c *Coordinator) runBatch(ctx context.Context, candidates []uint64, stats *Stats) error {
	records := make([]model.ArchiveRecord, 0, len(candidates))
	for _, productID := range candidates {
		record, err := c.ledger.ArchiveSnapshot(ctx, productID)
		if err != nil {
			stats.Failed = len(candidates)
			return fmt.Errorf("snapshot of product %d failed: %w", productID, err)
		}
		records = append(records, *record)
	}
	data, err := archive.EncodeBatch(records)
	if err != nil {
		stats.Failed = len(candidates)
		return fmt.Errorf("encoding batch failed: %w", err)
	}
	address, err := c.uploadWithRetry(ctx, data)
	if err != nil {
		stats.Failed = len(candidates)
		return fmt.Errorf("batch upload failed: %w", err)
	}
	if err := c.ledger.ConfirmArchiveBatch(ctx, candidates, address); err != nil {
		if errors.Is(err, ledgererrors.ErrAlreadyArchived) {
			// Some member was archived between candidate selection and
			// commit; nothing was mutated. The next run recomputes the
			// candidate set and tries again.
			c.log.Warn("Batch commit rejected, candidate set is stale",
				zap.Int("size", len(candidates)), zap.Error(err))
			stats.LostRaces = len(candidates)
			return nil
		}
		stats.Failed = len(candidates)
		return fmt.Errorf("batch commit failed: %w", err)
	}
	c.log.Info("Batch archived",
		zap.Int("size", len(candidates)), zap.String("address", address))
	stats.Archived = len(candidates)
	return nil
}

// uploadWithRetry pushes bytes to the store, retrying transient storage
// failures with exponential backoff. Any other error aborts immediately.
func (c *Coordinator) uploadWithRetry(ctx context.Context, data []byte) (string, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.RetryInitialInterval
	b.MaxInterval = c.cfg.RetryMaxInterval
	b.MaxElapsedTime = c.cfg.RetryMaxElapsedTime
	b.RandomizationFactor = 0.5

	var address string
	operation := func() error {
		addr, err := c.store.Put(ctx, data)
		if err != nil {
			if errors.Is(err, archive.ErrStorageUnavailable) {
				return err
			}
			return backoff.Permanent(err)
		}
		address = addr
		return nil
	}
	var attemptCount int
	notifyOnError := func(err error, duration time.Duration) {
		attemptCount++
		c.log.Warn("Archive upload failed, retrying",
			zap.Error(err),
			zap.Int("attempt", attemptCount),
			zap.Duration("next_retry_in", duration),
		)
	}
	if err := backoff.RetryNotify(operation, backoff.WithContext(b, ctx), notifyOnError); err != nil {
		return "", err
	}
	return address, nil
}
