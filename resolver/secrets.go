package resolver

import (
	"sync"

	"github.com/breez/swapresolver/lntypes"
	"github.com/breez/swapresolver/store"
)

// DebugPreimage and DebugHash are a fixed preimage/hash pair for exercising
// the claim path in integration tests and local development without a
// live secret-reveal on either chain, mirroring
// invoices/invoiceregistry.go's DebugPre/DebugHash fixture.
var (
	DebugPreimage = lntypes.Preimage{1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1}
	DebugHash     = DebugPreimage.Hash()
)

// secretStore keeps revealed secrets in memory, keyed by orderHash, and
// mirrors writes to the durable store so a restart mid-swap doesn't lose
// the one piece of state that lets the Resolver finish claiming the other
// side (§3.3). It is not an event bus like invoiceregistry's subscriber
// map — the Resolver already serializes per-order handling (the
// per-orderHash locks in resolver.go) so a simple guarded map suffices.
type secretStore struct {
	mu      sync.RWMutex
	secrets map[[32]byte][32]byte
	db      *store.Store
}

func newSecretStore(db *store.Store) *secretStore {
	return &secretStore{
		secrets: make(map[[32]byte][32]byte),
		db:      db,
	}
}

// Put records secret for orderHash, persisting it before returning so a
// crash immediately after can't lose it.
func (s *secretStore) Put(orderHash [32]byte, secret [32]byte) error {
	if s.db != nil {
		if err := s.db.PutSecret(orderHash, secret); err != nil {
			return err
		}
	}
	s.mu.Lock()
	s.secrets[orderHash] = secret
	s.mu.Unlock()
	return nil
}

// Get returns the secret for orderHash, if known, checking the in-memory
// cache before falling back to the durable store (covers the case where
// the process restarted since Put).
func (s *secretStore) Get(orderHash [32]byte) ([32]byte, bool) {
	s.mu.RLock()
	secret, ok := s.secrets[orderHash]
	s.mu.RUnlock()
	if ok {
		return secret, true
	}
	if s.db == nil {
		return [32]byte{}, false
	}
	secret, ok, err := s.db.GetSecret(orderHash)
	if err != nil || !ok {
		return [32]byte{}, false
	}
	s.mu.Lock()
	s.secrets[orderHash] = secret
	s.mu.Unlock()
	return secret, true
}

// Clear removes orderHash's secret, called once its order reaches a
// terminal state (§3.3: "cleared with the order").
func (s *secretStore) Clear(orderHash [32]byte) {
	s.mu.Lock()
	delete(s.secrets, orderHash)
	s.mu.Unlock()
	if s.db != nil {
		s.db.DeleteSecret(orderHash)
	}
}

// verifyPreimage checks secret against hashlock under the deployment's
// fixed hash function, the I1 invariant check.
func verifyPreimage(secret, hashlock [32]byte) bool {
	return lntypes.Preimage(secret).Matches(lntypes.Hash(hashlock))
}
