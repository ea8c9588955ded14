package session

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/poundofcure/go-intake/internal/observability/metrics"
)

// Store is a read-through cache of active sessions. The database is the
// source of truth; an eviction here only forces a reload.
type Store interface {
	Get(id string) (*Session, bool)
	Put(s *Session)
	Evict(id string)
}

// StoreConfig holds configuration for the in-memory store
type StoreConfig struct {
	// IdleTTL is how long a session may go untouched before eviction
	IdleTTL time.Duration
	// CleanupInterval is how often to sweep idle sessions
	CleanupInterval time.Duration
}

// DefaultStoreConfig returns sensible defaults
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		IdleTTL:         30 * time.Minute,
		CleanupInterval: 5 * time.Minute,
	}
}

// MemoryStore keeps active sessions in memory and evicts idle ones in the
// background.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	config   StoreConfig
	logger   *zap.Logger

	// Control for cleanup goroutine
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewMemoryStore creates a session store
func NewMemoryStore(cfg StoreConfig, logger *zap.Logger) *MemoryStore {
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &MemoryStore{
		sessions: make(map[string]*Session),
		config:   cfg,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

func (m *MemoryStore) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

func (m *MemoryStore) Put(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
	metrics.Default().ActiveSessions.Set(float64(len(m.sessions)))
}

func (m *MemoryStore) Evict(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	metrics.Default().ActiveSessions.Set(float64(len(m.sessions)))
}

// StartCleanup starts the background eviction goroutine
func (m *MemoryStore) StartCleanup() {
	go m.cleanupLoop()
	m.logger.Info("session store cleanup started", zap.Duration("interval", m.config.CleanupInterval))
}

// Stop stops the store cleanup
func (m *MemoryStore) Stop() {
	m.cancel()
	<-m.done
	m.logger.Info("session store stopped")
}

func (m *MemoryStore) cleanupLoop() {
	defer close(m.done)

	ticker := time.NewTicker(m.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.evictIdle()
		}
	}
}

func (m *MemoryStore) evictIdle() {
	cutoff := time.Now().UTC().Add(-m.config.IdleTTL)

	m.mu.Lock()
	defer m.mu.Unlock()
	var evicted int
	for id, s := range m.sessions {
		if s.UpdatedAt.Before(cutoff) {
			delete(m.sessions, id)
			evicted++
		}
	}
	if evicted > 0 {
		metrics.Default().ActiveSessions.Set(float64(len(m.sessions)))
		m.logger.Info("idle sessions evicted", zap.Int("count", evicted))
	}
}
