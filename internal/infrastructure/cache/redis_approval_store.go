package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/coopledger/backend/internal/domain/approval"
	"github.com/redis/go-redis/v9"
)

const defaultApprovalKeyPrefix = "coop:approval:"

// RedisApprovalStore keeps pending dual-control requests in Redis so that
// requester and approver may hit different instances
type RedisApprovalStore struct {
	client    *redis.Client
	keyPrefix string
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// NewRedisApprovalStore connects to Redis and verifies the connection
func NewRedisApprovalStore(cfg RedisConfig) (*RedisApprovalStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisApprovalStoreWithClient(client, ""), nil
}

// NewRedisApprovalStoreWithClient creates a store with an existing Redis client
func NewRedisApprovalStoreWithClient(client *redis.Client, keyPrefix string) *RedisApprovalStore {
	if keyPrefix == "" {
		keyPrefix = defaultApprovalKeyPrefix
	}
	return &RedisApprovalStore{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

// Put stores the request with SETNX and a TTL matching its expiry
func (s *RedisApprovalStore) Put(ctx context.Context, req *approval.PendingRequest) (bool, error) {
	ttl := req.TTL(time.Now())
	if ttl <= 0 {
		return false, approval.ErrExpired
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return false, fmt.Errorf("failed to encode approval request: %w", err)
	}

	ok, err := s.client.SetNX(ctx, s.keyPrefix+req.Code, payload, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to store approval request: %w", err)
	}
	return ok, nil
}

// Get reads the request without consuming it
func (s *RedisApprovalStore) Get(ctx context.Context, code string) (*approval.PendingRequest, error) {
	raw, err := s.client.Get(ctx, s.keyPrefix+code).Bytes()
	return s.decode(raw, err)
}

// Take consumes the request with GETDEL, so concurrent confirmations cannot
// both succeed
func (s *RedisApprovalStore) Take(ctx context.Context, code string) (*approval.PendingRequest, error) {
	raw, err := s.client.GetDel(ctx, s.keyPrefix+code).Bytes()
	return s.decode(raw, err)
}

func (s *RedisApprovalStore) decode(raw []byte, err error) (*approval.PendingRequest, error) {
	if errors.Is(err, redis.Nil) {
		return nil, approval.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read approval request: %w", err)
	}

	var req approval.PendingRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, fmt.Errorf("failed to decode approval request: %w", err)
	}
	return &req, nil
}

// Close closes the Redis client
func (s *RedisApprovalStore) Close() error {
	return s.client.Close()
}

// GetClient returns the underlying Redis client (for testing/monitoring)
func (s *RedisApprovalStore) GetClient() *redis.Client {
	return s.client
}

var _ approval.Store = (*RedisApprovalStore)(nil)
