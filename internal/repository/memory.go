package repository

import (
	"context"
	"log/slog"
	"sync"
)

type memoryEntry struct {
	raw     string
	version uint64
}

// MemoryStore is a process-local BalanceStore. Values are kept in their raw
// string form so it decodes exactly like the networked stores.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	logger  *slog.Logger
}

func NewMemoryStore(logger *slog.Logger) *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		logger:  logger,
	}
}

func (m *MemoryStore) Get(ctx context.Context, account string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, unavailable("memory get", err)
	}
	balance, _ := m.read(account)
	return balance, nil
}

func (m *MemoryStore) Set(ctx context.Context, account string, value int64) error {
	if err := checkBalance(value); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return unavailable("memory set", err)
	}
	m.PutRaw(BalanceKey(account), formatBalance(value))
	return nil
}

// PutRaw stores raw under key verbatim, bypassing validation.
func (m *MemoryStore) PutRaw(key, raw string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.entries[key]
	m.entries[key] = memoryEntry{raw: raw, version: e.version + 1}
}

// Update decides outside the lock and only commits if the version it read is
// still current, mirroring the networked conditional writes.
func (m *MemoryStore) Update(ctx context.Context, account string, decide DecideFunc) error {
	if err := ctx.Err(); err != nil {
		return unavailable("memory update", err)
	}

	balance, version := m.read(account)
	next, write := decide(balance)
	if !write {
		return nil
	}
	if err := checkBalance(next); err != nil {
		return err
	}

	key := BalanceKey(account)
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.entries[key].version != version {
		return ErrConflict
	}
	m.entries[key] = memoryEntry{raw: formatBalance(next), version: version + 1}
	return nil
}

func (m *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

func (m *MemoryStore) read(account string) (int64, uint64) {
	key := BalanceKey(account)

	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()

	if !ok {
		return 0, 0
	}
	return decodeBalance(m.logger, key, e.raw), e.version
}
