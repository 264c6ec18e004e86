package cache

import (
	"context"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/saiset-co/sai-pipeline/types"
	"github.com/saiset-co/sai-pipeline/utils"
)

const (
	MaxTTL     = 24 * time.Hour
	DefaultTTL = 1 * time.Hour
)

type MemoryConfig struct {
	MaxEntries      int    `json:"max_entries"`
	CleanupInterval string `json:"cleanup_interval"`
}

type MemoryCache struct {
	ctx     context.Context
	cancel  context.CancelFunc
	config  *MemoryConfig
	logger  types.Logger
	running int32

	mu          sync.RWMutex
	data        map[string]*types.CacheEntry
	stopCleanup chan struct{}
	cleanupDone chan struct{}

	cleanupInterval time.Duration
	hits            uint64
	misses          uint64
	evictions       uint64
}

func NewMemoryCache(ctx context.Context, logger types.Logger, config *types.CacheConfig) (types.CacheManager, error) {
	memConfig := &MemoryConfig{
		MaxEntries:      10000,
		CleanupInterval: "5m",
	}

	if config.Config != nil {
		if err := utils.UnmarshalConfig(config.Config, memConfig); err != nil {
			return nil, types.WrapError(err, "failed to unmarshal memory cache config")
		}
	}

	cleanupInterval, err := time.ParseDuration(memConfig.CleanupInterval)
	if err != nil {
		return nil, types.WrapError(err, "invalid cleanup interval")
	}

	cacheCtx, cancel := context.WithCancel(ctx)

	return &MemoryCache{
		ctx:             cacheCtx,
		cancel:          cancel,
		config:          memConfig,
		logger:          logger,
		data:            make(map[string]*types.CacheEntry),
		stopCleanup:     make(chan struct{}),
		cleanupDone:     make(chan struct{}),
		cleanupInterval: cleanupInterval,
	}, nil
}

func (m *MemoryCache) Start() error {
	if !atomic.CompareAndSwapInt32(&m.running, 0, 1) {
		return types.ErrServerAlreadyRunning
	}

	go m.cleanupLoop()

	m.logger.Info("Memory cache started",
		zap.Int("max_entries", m.config.MaxEntries),
		zap.Duration("cleanup_interval", m.cleanupInterval))

	return nil
}

func (m *MemoryCache) Stop() error {
	if !atomic.CompareAndSwapInt32(&m.running, 1, 0) {
		return types.ErrServerNotRunning
	}

	close(m.stopCleanup)
	<-m.cleanupDone
	m.cancel()

	m.mu.Lock()
	m.data = make(map[string]*types.CacheEntry)
	m.mu.Unlock()

	m.logger.Info("Memory cache stopped",
		zap.Uint64("hits", atomic.LoadUint64(&m.hits)),
		zap.Uint64("misses", atomic.LoadUint64(&m.misses)))

	return nil
}

func (m *MemoryCache) IsRunning() bool {
	return atomic.LoadInt32(&m.running) == 1
}

func (m *MemoryCache) Get(key string) (interface{}, bool) {
	m.mu.RLock()
	entry, exists := m.data[key]
	m.mu.RUnlock()

	if !exists {
		atomic.AddUint64(&m.misses, 1)
		return nil, false
	}

	if !entry.ExpiresAt.IsZero() && time.Now().After(entry.ExpiresAt) {
		m.mu.Lock()
		if current, ok := m.data[key]; ok && current == entry {
			delete(m.data, key)
		}
		m.mu.Unlock()

		atomic.AddUint64(&m.misses, 1)
		return nil, false
	}

	atomic.AddUint64(&m.hits, 1)
	return entry.Value, true
}

func (m *MemoryCache) Set(key string, value interface{}, ttl time.Duration) error {
	if key == "" {
		return types.ErrCacheKeyEmpty
	}

	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if ttl > MaxTTL {
		ttl = MaxTTL
	}

	now := time.Now()
	entry := &types.CacheEntry{
		Key:       key,
		Value:     value,
		TTL:       ttl,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.data) >= m.config.MaxEntries {
		m.evictOldestLocked()
	}
	m.data[key] = entry

	return nil
}

func (m *MemoryCache) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.data, key)
	return nil
}

func (m *MemoryCache) Invalidate(keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, key := range keys {
		delete(m.data, key)
	}
	return nil
}

// BuildCacheKey derives a stable key from the request path, its dependency
// names and sorted metadata pairs.
func (m *MemoryCache) BuildCacheKey(requestPath string, dependencies []string, metadata map[string]string) string {
	return buildCacheKey(requestPath, dependencies, metadata)
}

func (m *MemoryCache) evictOldestLocked() {
	var oldestKey string
	var oldestAt time.Time

	for key, entry := range m.data {
		if oldestKey == "" || entry.CreatedAt.Before(oldestAt) {
			oldestKey = key
			oldestAt = entry.CreatedAt
		}
	}

	if oldestKey != "" {
		delete(m.data, oldestKey)
		atomic.AddUint64(&m.evictions, 1)
	}
}

func (m *MemoryCache) cleanupLoop() {
	defer close(m.cleanupDone)

	ticker := time.NewTicker(m.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.removeExpired()
		case <-m.stopCleanup:
			return
		case <-m.ctx.Done():
			return
		}
	}
}

func (m *MemoryCache) removeExpired() {
	now := time.Now()
	removed := 0

	m.mu.Lock()
	for key, entry := range m.data {
		if !entry.ExpiresAt.IsZero() && now.After(entry.ExpiresAt) {
			delete(m.data, key)
			removed++
		}
	}
	m.mu.Unlock()

	if removed > 0 {
		m.logger.Debug("Expired cache entries removed", zap.Int("count", removed))
	}
}

func buildCacheKey(requestPath string, dependencies []string, metadata map[string]string) string {
	var builder strings.Builder
	builder.Grow(len(requestPath) + len(dependencies)*16 + len(metadata)*24)
	builder.WriteString(requestPath)

	for _, dep := range dependencies {
		builder.WriteByte('|')
		builder.WriteString(dep)
	}

	if len(metadata) > 0 {
		keys := make([]string, 0, len(metadata))
		for key := range metadata {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		for _, key := range keys {
			builder.WriteByte('|')
			builder.WriteString(key)
			builder.WriteByte(':')
			builder.WriteString(metadata[key])
		}
	}

	return builder.String()
}
