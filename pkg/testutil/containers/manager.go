//go:build integration

package containers

import (
	"sync"
	"testing"
)

// Manager starts each container once per test binary and hands the same
// instance to every suite. Ryuk removes the containers when the binary exits.
type Manager struct {
	mu       sync.Mutex
	postgres *PostgresContainer
	redis    *RedisContainer
	redpanda *RedpandaContainer
}

var (
	manager     *Manager
	managerOnce sync.Once
)

// GetManager returns the process-wide container manager.
func GetManager() *Manager {
	managerOnce.Do(func() {
		manager = &Manager{}
	})
	return manager
}

// GetPostgres returns the shared, migrated Postgres container.
func (m *Manager) GetPostgres(t *testing.T) *PostgresContainer {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.postgres == nil {
		m.postgres = NewPostgresContainer(t)
	}
	return m.postgres
}

// GetRedis returns the shared Redis container.
func (m *Manager) GetRedis(t *testing.T) *RedisContainer {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.redis == nil {
		m.redis = NewRedisContainer(t)
	}
	return m.redis
}

// GetRedpanda returns the shared Kafka-compatible broker.
func (m *Manager) GetRedpanda(t *testing.T) *RedpandaContainer {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.redpanda == nil {
		m.redpanda = NewRedpandaContainer(t)
	}
	return m.redpanda
}
