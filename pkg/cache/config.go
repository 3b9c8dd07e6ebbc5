package cache

import "time"

type RedisOption func(*RedisConfig)

type RedisConfig struct {
	Host         string
	Port         int
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	PoolTimeout  time.Duration
	Prefix       string
}

func defaultRedisConfig() *RedisConfig {
	return &RedisConfig{
		Host:         "localhost",
		Port:         6379,
		PoolSize:     10,
		MinIdleConns: 2,
		PoolTimeout:  5 * time.Second,
		Prefix:       "polyedge",
	}
}

func WithRedisHost(host string) RedisOption {
	return func(c *RedisConfig) { c.Host = host }
}

func WithRedisPort(port int) RedisOption {
	return func(c *RedisConfig) { c.Port = port }
}

func WithRedisPassword(password string) RedisOption {
	return func(c *RedisConfig) { c.Password = password }
}

func WithRedisDB(db int) RedisOption {
	return func(c *RedisConfig) { c.DB = db }
}

// WithRedisPool sizes the connection pool. Zero values keep the defaults.
func WithRedisPool(size, minIdle int, timeout time.Duration) RedisOption {
	return func(c *RedisConfig) {
		if size > 0 {
			c.PoolSize = size
		}
		if minIdle > 0 {
			c.MinIdleConns = minIdle
		}
		if timeout > 0 {
			c.PoolTimeout = timeout
		}
	}
}

// WithRedisPrefix namespaces every key so several deployments can share a
// Redis database.
func WithRedisPrefix(prefix string) RedisOption {
	return func(c *RedisConfig) {
		if prefix != "" {
			c.Prefix = prefix
		}
	}
}

type MemoryOption func(*MemoryConfig)

type MemoryConfig struct {
	MaxEntries int
	DefaultTTL time.Duration
	Sweep      time.Duration
}

// WithMemoryMaxSize caps the entry count; the least recently used entry is
// evicted first.
func WithMemoryMaxSize(n int) MemoryOption {
	return func(c *MemoryConfig) {
		if n > 0 {
			c.MaxEntries = n
		}
	}
}

// WithMemorySweep sets how often expired entries are purged in the
// background. Zero disables the sweeper; expired entries still miss on read.
func WithMemorySweep(d time.Duration) MemoryOption {
	return func(c *MemoryConfig) { c.Sweep = d }
}

type LayeredOption func(*LayeredConfig)

type LayeredConfig struct {
	L1Entries int
	L1TTL     time.Duration
}

func WithLayeredMemorySize(n int) LayeredOption {
	return func(c *LayeredConfig) {
		if n > 0 {
			c.L1Entries = n
		}
	}
}

// WithLayeredL1TTL bounds how long L1 may serve an entry.
func WithLayeredL1TTL(d time.Duration) LayeredOption {
	return func(c *LayeredConfig) {
		if d > 0 {
			c.L1TTL = d
		}
	}
}
