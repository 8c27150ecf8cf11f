package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// sessionRecord is the JSON blob the identity provider writes per session.
type sessionRecord struct {
	UserID      string    `json:"user_id"`
	DisplayName string    `json:"display_name"`
	IsStaff     bool      `json:"is_staff"`
	CreatedAt   time.Time `json:"created_at"`
}

// RedisProvider resolves opaque session tokens against the session records
// the identity provider keeps in Redis, keyed by token digest.
type RedisProvider struct {
	client *redis.Client
	prefix string
}

// NewRedisProvider connects to Redis and verifies the connection.
func NewRedisProvider(redisURL string) (*RedisProvider, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &RedisProvider{client: client, prefix: "session:"}, nil
}

func (p *RedisProvider) key(token string) string {
	return p.prefix + HashToken(token)
}

// Resolve looks up the session record for a token. A missing or expired key
// is an invalid token, indistinguishable from one that never existed.
func (p *RedisProvider) Resolve(ctx context.Context, token string) (Identity, error) {
	data, err := p.client.Get(ctx, p.key(token)).Result()
	if err == redis.Nil {
		return Identity{}, ErrInvalidToken
	}
	if err != nil {
		return Identity{}, fmt.Errorf("lookup session: %w", err)
	}

	var record sessionRecord
	if err := json.Unmarshal([]byte(data), &record); err != nil {
		return Identity{}, fmt.Errorf("unmarshal session: %w", err)
	}
	if record.UserID == "" {
		return Identity{}, ErrInvalidToken
	}

	return Identity{
		UserID:      record.UserID,
		DisplayName: record.DisplayName,
		IsStaff:     record.IsStaff,
	}, nil
}

// Put stores a session record with a TTL. The identity provider owns session
// creation; this exists for provisioning tools and tests.
func (p *RedisProvider) Put(ctx context.Context, token string, identity Identity, expiresAt time.Time) error {
	record := sessionRecord{
		UserID:      identity.UserID,
		DisplayName: identity.DisplayName,
		IsStaff:     identity.IsStaff,
		CreatedAt:   time.Now(),
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return fmt.Errorf("session already expired")
	}
	if err := p.client.Set(ctx, p.key(token), data, ttl).Err(); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Revoke deletes a session record.
func (p *RedisProvider) Revoke(ctx context.Context, token string) error {
	if err := p.client.Del(ctx, p.key(token)).Err(); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

// Ping checks Redis reachability.
func (p *RedisProvider) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (p *RedisProvider) Close() error {
	return p.client.Close()
}
