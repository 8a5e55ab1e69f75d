// Package state persists the order book, the registry directory and the
// event log behind the storage.Database key-value interface. All reads
// return deep clones so callers can never mutate stored records in place.
package state

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"escrowd/core/types"
	"escrowd/native/escrow"
	"escrowd/storage"
)

// Manager mediates every read and write of persisted escrow state. The
// mutex only covers the count-then-append sequences; individual Put/Get
// calls rely on the backing store's own atomicity.
type Manager struct {
	mu sync.Mutex
	db storage.Database
}

func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

// --- Orders ---

// OrderPut sanitises and persists the order.
func (m *Manager) OrderPut(o *escrow.Order) error {
	sanitized, err := escrow.SanitizeOrder(o)
	if err != nil {
		return err
	}
	encoded, err := json.Marshal(sanitized)
	if err != nil {
		return err
	}
	return m.db.Put(orderKey(sanitized.ID), encoded)
}

// OrderGet loads the order with the given identifier.
func (m *Manager) OrderGet(id [32]byte) (*escrow.Order, bool) {
	raw, err := m.db.Get(orderKey(id))
	if err != nil {
		return nil, false
	}
	var order escrow.Order
	if err := json.Unmarshal(raw, &order); err != nil {
		return nil, false
	}
	return order.Clone(), true
}

// --- Registry directory ---

// OrderIndexAppend records a newly created order at the next directory
// position. The directory is append-only; entries are never reordered or
// pruned.
func (m *Manager) OrderIndexAppend(id [32]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	count, err := m.indexCount()
	if err != nil {
		return err
	}
	if err := m.db.Put(indexKey(count), id[:]); err != nil {
		return err
	}
	return m.db.Put([]byte(indexCountKey), []byte(strconv.FormatUint(count+1, 10)))
}

// OrderIndexCount returns the number of directory entries.
func (m *Manager) OrderIndexCount() (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.indexCount()
}

// OrderIndexAt returns the order identifier at the given creation position.
func (m *Manager) OrderIndexAt(index uint64) ([32]byte, bool, error) {
	raw, err := m.db.Get(indexKey(index))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return [32]byte{}, false, nil
	}
	if err != nil {
		return [32]byte{}, false, err
	}
	if len(raw) != 32 {
		return [32]byte{}, false, fmt.Errorf("state: corrupt directory entry at %d", index)
	}
	var id [32]byte
	copy(id[:], raw)
	return id, true, nil
}

func (m *Manager) indexCount() (uint64, error) {
	raw, err := m.db.Get([]byte(indexCountKey))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(string(raw), 10, 64)
}

// --- Event log ---

// StoredEvent is one entry of the append-only, externally observable event
// log.
type StoredEvent struct {
	Sequence   uint64            `json:"sequence"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// EventAppend records the event at the next log position and returns its
// sequence number.
func (m *Manager) EventAppend(evt *types.Event) (uint64, error) {
	if evt == nil {
		return 0, fmt.Errorf("state: nil event")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	count, err := m.eventCount()
	if err != nil {
		return 0, err
	}
	stored := StoredEvent{Sequence: count, Type: evt.Type, Attributes: evt.Attributes}
	encoded, err := json.Marshal(stored)
	if err != nil {
		return 0, err
	}
	if err := m.db.Put(eventKey(count), encoded); err != nil {
		return 0, err
	}
	if err := m.db.Put([]byte(eventCountKey), []byte(strconv.FormatUint(count+1, 10))); err != nil {
		return 0, err
	}
	return count, nil
}

// EventCount returns the number of persisted events.
func (m *Manager) EventCount() (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.eventCount()
}

// EventList returns up to limit events whose type matches the prefix,
// newest last. A zero limit returns everything.
func (m *Manager) EventList(prefix string, limit int) ([]StoredEvent, error) {
	m.mu.Lock()
	count, err := m.eventCount()
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	out := make([]StoredEvent, 0, count)
	for seq := uint64(0); seq < count; seq++ {
		raw, err := m.db.Get(eventKey(seq))
		if err != nil {
			return nil, err
		}
		var stored StoredEvent
		if err := json.Unmarshal(raw, &stored); err != nil {
			return nil, err
		}
		if prefix != "" && !strings.HasPrefix(stored.Type, prefix) {
			continue
		}
		out = append(out, stored)
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (m *Manager) eventCount() (uint64, error) {
	raw, err := m.db.Get([]byte(eventCountKey))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(string(raw), 10, 64)
}

// --- Token ledger snapshot ---

func (m *Manager) TokenSnapshotPut(data []byte) error {
	return m.db.Put([]byte(tokenStateKey), data)
}

func (m *Manager) TokenSnapshotGet() ([]byte, bool, error) {
	raw, err := m.db.Get([]byte(tokenStateKey))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return raw, true, nil
}

// --- Registry metadata ---

// RegistryMeta pins the identities the registry was constructed with so a
// restart cannot silently rebind orders to a different operator or asset.
type RegistryMeta struct {
	Operator    string `json:"operator"`
	AssetSymbol string `json:"assetSymbol"`
	Decimals    uint8  `json:"decimals"`
}

func (m *Manager) RegistryMetaPut(meta RegistryMeta) error {
	encoded, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	return m.db.Put([]byte(registryMetaKey), encoded)
}

func (m *Manager) RegistryMetaGet() (RegistryMeta, bool, error) {
	raw, err := m.db.Get([]byte(registryMetaKey))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return RegistryMeta{}, false, nil
	}
	if err != nil {
		return RegistryMeta{}, false, err
	}
	var meta RegistryMeta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return RegistryMeta{}, false, err
	}
	return meta, true, nil
}

// OrderIDFromHex parses a 32-byte order identifier from its hex rendering.
func OrderIDFromHex(raw string) ([32]byte, error) {
	var id [32]byte
	decoded, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(raw), "0x"))
	if err != nil {
		return id, fmt.Errorf("state: invalid order id: %w", err)
	}
	if len(decoded) != 32 {
		return id, fmt.Errorf("state: order id must be 32 bytes, got %d", len(decoded))
	}
	copy(id[:], decoded)
	return id, nil
}
