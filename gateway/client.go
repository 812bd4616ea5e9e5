package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/hyperledger/fabric-gateway/pkg/client"
	"github.com/hyperledger/fabric-gateway/pkg/identity"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"

	"provtrace/ledgererrors"
	"provtrace/model"
)

// Options configures the gateway connection to one peer.
type Options struct {
	Endpoint    string // peer gRPC address, e.g. "localhost:7051"
	GatewayPeer string // server name override for TLS
	TLSCertPath string // peer TLS CA cert; empty for an insecure connection
	MSPID       string
	CertPath    string // client signing certificate (PEM)
	KeyPath     string // client private key (PEM)
	Channel     string
	Chaincode   string
}

// Client talks to the provenance chaincode through the Fabric Gateway. It
// serves both the archival coordinator and the query router; ledger-side
// guard failures surface as the same sentinel errors the chaincode raises.
type Client struct {
	conn     *grpc.ClientConn
	gw       *client.Gateway
	contract *client.Contract
	log      *zap.Logger
}

func Connect(opts Options, log *zap.Logger) (*Client, error) {
	creds := insecure.NewCredentials()
	if opts.TLSCertPath != "" {
		tlsCreds, err := credentials.NewClientTLSFromFile(opts.TLSCertPath, opts.GatewayPeer)
		if err != nil {
			return nil, fmt.Errorf("failed to load peer TLS cert: %w", err)
		}
		creds = tlsCreds
	}
	conn, err := grpc.Dial(opts.Endpoint, grpc.WithTransportCredentials(creds))
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection to '%s': %w", opts.Endpoint, err)
	}

	id, err := newIdentity(opts.MSPID, opts.CertPath)
	if err != nil {
		conn.Close()
		return nil, err
	}
	sign, err := newSigner(opts.KeyPath)
	if err != nil {
		conn.Close()
		return nil, err
	}

	gw, err := client.Connect(id,
		client.WithSign(sign),
		client.WithClientConnection(conn),
	)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to connect to gateway: %w", err)
	}

	network := gw.GetNetwork(opts.Channel)
	return &Client{
		conn:     conn,
		gw:       gw,
		contract: network.GetContract(opts.Chaincode),
		log:      log,
	}, nil
}

func (c *Client) Close() error {
	c.gw.Close()
	return c.conn.Close()
}

func newIdentity(mspID, certPath string) (*identity.X509Identity, error) {
	pem, err := os.ReadFile(certPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read client cert '%s': %w", certPath, err)
	}
	cert, err := identity.CertificateFromPEM(pem)
	if err != nil {
		return nil, fmt.Errorf("failed to parse client cert: %w", err)
	}
	return identity.NewX509Identity(mspID, cert)
}

func newSigner(keyPath string) (identity.Sign, error) {
	pem, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read client key '%s': %w", keyPath, err)
	}
	key, err := identity.PrivateKeyFromPEM(pem)
	if err != nil {
		return nil, fmt.Errorf("failed to parse client key: %w", err)
	}
	return identity.NewPrivateKeySign(key)
}

// --- archiver.Ledger ---

func (c *Client) ArchivalCandidates(ctx context.Context, statuses []string) ([]uint64, error) {
	raw, err := c.evaluate(ctx, "GetArchivalCandidates", strings.Join(statuses, ","))
	if err != nil {
		return nil, err
	}
	var ids []uint64
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, fmt.Errorf("failed to unmarshal candidate ids: %w", err)
	}
	return ids, nil
}

func (c *Client) ArchiveSnapshot(ctx context.Context, productID uint64) (*model.ArchiveRecord, error) {
	raw, err := c.evaluate(ctx, "GetArchiveSnapshot", formatID(productID))
	if err != nil {
		return nil, err
	}
	var record model.ArchiveRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal archive snapshot for product %d: %w", productID, err)
	}
	return &record, nil
}

func (c *Client) ConfirmArchive(ctx context.Context, productID uint64, contentHash string) error {
	_, err := c.submit(ctx, "ConfirmArchive", formatID(productID), contentHash)
	return err
}

func (c *Client) ConfirmArchiveBatch(ctx context.Context, productIDs []uint64, contentHash string) error {
	parts := make([]string, len(productIDs))
	for i, id := range productIDs {
		parts[i] = formatID(id)
	}
	_, err := c.submit(ctx, "ConfirmArchiveBatch", strings.Join(parts, ","), contentHash)
	return err
}

// --- query.Ledger ---

func (c *Client) Product(ctx context.Context, productID uint64) (*model.ProductView, error) {
	raw, err := c.evaluate(ctx, "GetProduct", formatID(productID))
	if err != nil {
		return nil, err
	}
	var view model.ProductView
	if err := json.Unmarshal(raw, &view); err != nil {
		return nil, fmt.Errorf("failed to unmarshal product %d: %w", productID, err)
	}
	return &view, nil
}

func (c *Client) ProductByPublicCode(ctx context.Context, publicCode string) (*model.ProductView, error) {
	raw, err := c.evaluate(ctx, "GetProductByPublicCode", publicCode)
	if err != nil {
		return nil, err
	}
	var view model.ProductView
	if err := json.Unmarshal(raw, &view); err != nil {
		return nil, fmt.Errorf("failed to unmarshal product for code '%s': %w", publicCode, err)
	}
	return &view, nil
}

func (c *Client) Journey(ctx context.Context, productID uint64) ([]model.JourneyEntry, error) {
	raw, err := c.evaluate(ctx, "GetJourney", formatID(productID))
	if err != nil {
		return nil, err
	}
	var entries []model.JourneyEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("failed to unmarshal journey for product %d: %w", productID, err)
	}
	return entries, nil
}

func (c *Client) evaluate(ctx context.Context, name string, args ...string) ([]byte, error) {
	raw, err := c.contract.EvaluateWithContext(ctx, name, client.WithArguments(args...))
	if err != nil {
		return nil, mapLedgerError(name, err)
	}
	return raw, nil
}

func (c *Client) submit(ctx context.Context, name string, args ...string) ([]byte, error) {
	raw, err := c.contract.SubmitWithContext(ctx, name, client.WithArguments(args...))
	if err != nil {
		return nil, mapLedgerError(name, err)
	}
	return raw, nil
}

// mapLedgerError recovers the chaincode's error taxonomy from the message
// the gateway relays. Chaincode errors cross the wire as strings, so the
// sentinel has to be re-attached from the text.
func mapLedgerError(op string, err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "not found") || strings.Contains(msg, "does not exist"):
		return fmt.Errorf("%w: %s: %s", ledgererrors.ErrNotFound, op, msg)
	case strings.Contains(msg, "unauthorized"):
		return fmt.Errorf("%w: %s: %s", ledgererrors.ErrUnauthorized, op, msg)
	case strings.Contains(msg, "already archived"):
		return fmt.Errorf("%w: %s: %s", ledgererrors.ErrAlreadyArchived, op, msg)
	case strings.Contains(msg, "invalid state"):
		return fmt.Errorf("%w: %s: %s", ledgererrors.ErrInvalidState, op, msg)
	default:
		return fmt.Errorf("%s failed: %w", op, err)
	}
}

func formatID(id uint64) string {
	return strconv.FormatUint(id, 10)
}
