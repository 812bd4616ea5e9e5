package archive

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"provtrace/model"

	"github.com/gowebpki/jcs"
)

// EncodeRecord serializes an archive record into RFC 8785 canonical JSON.
// Canonicalization makes the byte stream a pure function of the record's
// content: two snapshots of the same product encode to the same bytes and
// therefore the same content address, no matter which process produced them.
func EncodeRecord(record *model.ArchiveRecord) ([]byte, error) {
	raw, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal archive record: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to canonicalize archive record: %w", err)
	}
	return canonical, nil
}

// DecodeRecord parses archive record bytes produced by EncodeRecord.
func DecodeRecord(data []byte) (*model.ArchiveRecord, error) {
	var record model.ArchiveRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal archive record: %w", err)
	}
	return &record, nil
}

// EncodeBatch serializes several archive records into one canonical JSON
// array, for batch archival runs that commit many products under a single
// content address.
func EncodeBatch(records []model.ArchiveRecord) ([]byte, error) {
	raw, err := json.Marshal(records)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal archive batch: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to canonicalize archive batch: %w", err)
	}
	return canonical, nil
}

// DecodeBatch parses bytes produced by EncodeBatch.
func DecodeBatch(data []byte) ([]model.ArchiveRecord, error) {
	var records []model.ArchiveRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to unmarshal archive batch: %w", err)
	}
	return records, nil
}

// HashBytes returns the sha256 content address for a byte stream.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(sum[:])
}
