package archive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	shell "github.com/ipfs/go-ipfs-api"
)

// IPFSStore stores archive records on an IPFS node over its HTTP API. The
// returned address is the CID, which IPFS derives from the content, so the
// store satisfies the same retry-safety contract as MemoryStore.
type IPFSStore struct {
	sh *shell.Shell
}

// NewIPFSStore connects to the IPFS API at apiURL (e.g. "localhost:5001").
func NewIPFSStore(apiURL string, timeout time.Duration) *IPFSStore {
	sh := shell.NewShell(apiURL)
	if timeout > 0 {
		sh.SetTimeout(timeout)
	}
	return &IPFSStore{sh: sh}
}

func (s *IPFSStore) Put(_ context.Context, data []byte) (string, error) {
	cid, err := s.sh.Add(bytes.NewReader(data), shell.Pin(true))
	if err != nil {
		return "", fmt.Errorf("%w: add failed: %v", ErrStorageUnavailable, err)
	}
	return cid, nil
}

func (s *IPFSStore) Get(_ context.Context, address string) ([]byte, error) {
	rc, err := s.sh.Cat(address)
	if err != nil {
		if strings.Contains(err.Error(), "invalid path") || strings.Contains(err.Error(), "no link named") {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, address)
		}
		return nil, fmt.Errorf("%w: cat %s failed: %v", ErrArchiveUnavailable, address, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s failed: %v", ErrArchiveUnavailable, address, err)
	}
	return data, nil
}
