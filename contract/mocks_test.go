package contract

import (
	"crypto/x509"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/hyperledger/fabric-chaincode-go/pkg/cid"
	"github.com/hyperledger/fabric-chaincode-go/shim"
	"github.com/hyperledger/fabric-protos-go/ledger/queryresult"
	"google.golang.org/protobuf/types/known/timestamppb"
)

const compositeKeySep = "\x00"

// mockStub backs chaincode invocations with an in-memory world state. Only
// the stub methods the contract exercises are implemented; everything else
// panics through the embedded nil interface, which is what we want in tests.
type mockStub struct {
	shim.ChaincodeStubInterface
	state       map[string][]byte
	events      map[string][]byte
	txTimestamp time.Time
	txCounter   int
}

func newMockStub() *mockStub {
	return &mockStub{
		state:       make(map[string][]byte),
		events:      make(map[string][]byte),
		txTimestamp: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (s *mockStub) GetState(key string) ([]byte, error) {
	return s.state[key], nil
}

func (s *mockStub) PutState(key string, value []byte) error {
	s.state[key] = value
	return nil
}

func (s *mockStub) DelState(key string) error {
	delete(s.state, key)
	return nil
}

func (s *mockStub) CreateCompositeKey(objectType string, attributes []string) (string, error) {
	key := compositeKeySep + objectType + compositeKeySep
	for _, attr := range attributes {
		key += attr + compositeKeySep
	}
	return key, nil
}

func (s *mockStub) GetStateByPartialCompositeKey(objectType string, keys []string) (shim.StateQueryIteratorInterface, error) {
	prefix, _ := s.CreateCompositeKey(objectType, keys)
	matched := []string{}
	for key := range s.state {
		if strings.HasPrefix(key, prefix) {
			matched = append(matched, key)
		}
	}
	sort.Strings(matched)
	kvs := make([]*queryresult.KV, len(matched))
	for i, key := range matched {
		kvs[i] = &queryresult.KV{Key: key, Value: s.state[key]}
	}
	return &mockIterator{kvs: kvs}, nil
}

func (s *mockStub) GetTxTimestamp() (*timestamppb.Timestamp, error) {
	return timestamppb.New(s.txTimestamp), nil
}

func (s *mockStub) GetTxID() string {
	s.txCounter++
	return fmt.Sprintf("tx-%06d", s.txCounter)
}

func (s *mockStub) SetEvent(name string, payload []byte) error {
	s.events[name] = payload
	return nil
}

type mockIterator struct {
	kvs []*queryresult.KV
	pos int
}

func (it *mockIterator) HasNext() bool {
	return it.pos < len(it.kvs)
}

func (it *mockIterator) Next() (*queryresult.KV, error) {
	if !it.HasNext() {
		return nil, fmt.Errorf("no more items")
	}
	kv := it.kvs[it.pos]
	it.pos++
	return kv, nil
}

func (it *mockIterator) Close() error { return nil }

// mockClientIdentity impersonates one caller per invocation.
type mockClientIdentity struct {
	id    string
	mspID string
}

func (m *mockClientIdentity) GetID() (string, error)    { return m.id, nil }
func (m *mockClientIdentity) GetMSPID() (string, error) { return m.mspID, nil }
func (m *mockClientIdentity) GetX509Certificate() (*x509.Certificate, error) {
	return nil, nil
}
func (m *mockClientIdentity) GetAttributeValue(string) (string, bool, error) {
	return "", false, nil
}
func (m *mockClientIdentity) AssertAttributeValue(string, string) error { return nil }

type mockTransactionContext struct {
	stub     *mockStub
	identity *mockClientIdentity
}

func (c *mockTransactionContext) GetStub() shim.ChaincodeStubInterface { return c.stub }
func (c *mockTransactionContext) GetClientIdentity() cid.ClientIdentity {
	return c.identity
}

// Well-known test identities.
const (
	adminID       = "x509::CN=admin::O=Org1"
	producerID    = "x509::CN=producer::O=Org1"
	certifierID   = "x509::CN=certifier::O=Org2"
	distributorID = "x509::CN=distributor::O=Org2"
	retailerID    = "x509::CN=retailer::O=Org3"
	strangerID    = "x509::CN=stranger::O=Org3"
)

// testEnv bundles a contract instance with one world state shared across
// invocations; as() switches the caller between them.
type testEnv struct {
	contract *ProvenanceContract
	stub     *mockStub
	ctx      *mockTransactionContext
}

func newTestEnv() *testEnv {
	stub := newMockStub()
	return &testEnv{
		contract: &ProvenanceContract{},
		stub:     stub,
		ctx:      &mockTransactionContext{stub: stub, identity: &mockClientIdentity{id: adminID, mspID: "Org1MSP"}},
	}
}

func (e *testEnv) as(id string) *mockTransactionContext {
	e.ctx.identity = &mockClientIdentity{id: id, mspID: "TestMSP"}
	return e.ctx
}

func (e *testEnv) advanceTime(d time.Duration) {
	e.stub.txTimestamp = e.stub.txTimestamp.Add(d)
}

// bootstrapRegistry installs adminID as owner and approves the standard
// role set.
func (e *testEnv) bootstrapRegistry() error {
	if err := e.contract.Bootstrap(e.as(adminID)); err != nil {
		return err
	}
	grants := []struct {
		id   string
		role string
		org  string
	}{
		{producerID, "producer", "Verdant Farms"},
		{certifierID, "certifier", "AgriCert Labs"},
		{distributorID, "distributor", "Crossdock Logistics"},
		{retailerID, "retailer", "Fresh Market"},
	}
	for _, g := range grants {
		if err := e.contract.RequestRole(e.as(g.id), g.role, g.org); err != nil {
			return err
		}
		if err := e.contract.ApproveRoleRequest(e.as(adminID), g.id); err != nil {
			return err
		}
	}
	return nil
}
