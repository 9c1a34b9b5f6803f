package cache

import (
	"fmt"

	"github.com/coopledger/backend/internal/domain/approval"
	"github.com/coopledger/backend/internal/infrastructure/config"
	"go.uber.org/zap"
)

// Approval store backends
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// ApprovalStoreFactory creates approval stores based on configuration
type ApprovalStoreFactory struct {
	redisConfig           config.RedisConfig
	backend               string
	logger                *zap.Logger
	allowInMemoryFallback bool
}

// ApprovalStoreFactoryOption is a functional option for configuring the factory
type ApprovalStoreFactoryOption func(*ApprovalStoreFactory)

// WithLogger sets the logger for the factory
func WithLogger(logger *zap.Logger) ApprovalStoreFactoryOption {
	return func(f *ApprovalStoreFactory) {
		f.logger = logger
	}
}

// WithInMemoryFallback controls whether an unreachable Redis falls back to memory
func WithInMemoryFallback(allow bool) ApprovalStoreFactoryOption {
	return func(f *ApprovalStoreFactory) {
		f.allowInMemoryFallback = allow
	}
}

// NewApprovalStoreFactory creates a new factory for the configured backend
func NewApprovalStoreFactory(backend string, cfg config.RedisConfig, opts ...ApprovalStoreFactoryOption) *ApprovalStoreFactory {
	f := &ApprovalStoreFactory{
		redisConfig: cfg,
		backend:     backend,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// CreateStore builds the configured store. With the redis backend and
// fallback allowed, an unreachable Redis degrades to the in-memory store.
func (f *ApprovalStoreFactory) CreateStore() (approval.Store, error) {
	switch f.backend {
	case "", BackendMemory:
		f.logger.Info("using in-memory approval store")
		return NewInMemoryApprovalStore(), nil
	case BackendRedis:
	default:
		return nil, fmt.Errorf("unknown approval store backend %q", f.backend)
	}

	store, err := NewRedisApprovalStore(RedisConfig{
		Host:     f.redisConfig.Host,
		Port:     f.redisConfig.Port,
		Password: f.redisConfig.Password,
		DB:       f.redisConfig.DB,
	})
	if err == nil {
		f.logger.Info("using Redis approval store")
		return store, nil
	}
	if !f.allowInMemoryFallback {
		return nil, fmt.Errorf("Redis required for approvals but unavailable: %w", err)
	}

	f.logger.Warn("Redis unavailable, falling back to in-memory approval store. "+
		"Requests will not be visible to other instances.",
		zap.Error(err),
	)
	return NewInMemoryApprovalStore(), nil
}
