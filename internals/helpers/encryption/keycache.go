package encryption

import "sync"

// KeyCache holds unwrapped session data keys so the auth middleware does not
// pay the unwrap cost on every request. It is injected, not a package global,
// and exposes explicit invalidation hooks for credential rotation so tests can
// reset it deterministically.
type KeyCache struct {
	mu   sync.RWMutex
	keys map[string][]byte
}

func NewKeyCache() *KeyCache {
	return &KeyCache{keys: make(map[string][]byte)}
}

func (c *KeyCache) Get(tokenID string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	key, ok := c.keys[tokenID]
	return key, ok
}

func (c *KeyCache) Put(tokenID string, key []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.keys[tokenID] = key
}

// Invalidate drops a single session key (logout, failed unwrap).
func (c *KeyCache) Invalidate(tokenID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.keys, tokenID)
}

// InvalidateAll drops everything; called on master-secret or password rotation.
func (c *KeyCache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.keys = make(map[string][]byte)
}
