package history

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hlab/insightchat/config"
	"github.com/hlab/insightchat/internal/llm"
)

const keyPrefix = "history:"

// Store keeps the recent conversation transcript per session, bounded to the
// configured message count so prompts stay small.
type Store interface {
	Append(ctx context.Context, session string, msg llm.Message) error
	Recent(ctx context.Context, session string) ([]llm.Message, error)
	Clear(ctx context.Context, session string) error
}

// Conn opens and pings a Redis connection.
func Conn(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.Timeout,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

// RedisStore keeps transcripts in Redis lists with a TTL, so idle sessions
// expire on their own.
type RedisStore struct {
	client      *redis.Client
	maxMessages int
	ttl         time.Duration
}

func NewRedisStore(client *redis.Client, cfg config.HistoryConfig) *RedisStore {
	cfg = cfg.Normalize()
	return &RedisStore{client: client, maxMessages: cfg.MaxMessages, ttl: cfg.TTL}
}

func (s *RedisStore) Append(ctx context.Context, session string, msg llm.Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding message: %w", err)
	}
	key := keyPrefix + session

	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, payload)
	pipe.LTrim(ctx, key, int64(-s.maxMessages), -1)
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("appending history: %w", err)
	}
	return nil
}

func (s *RedisStore) Recent(ctx context.Context, session string) ([]llm.Message, error) {
	vals, err := s.client.LRange(ctx, keyPrefix+session, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("reading history: %w", err)
	}
	msgs := make([]llm.Message, 0, len(vals))
	for _, v := range vals {
		var msg llm.Message
		if err := json.Unmarshal([]byte(v), &msg); err != nil {
			continue
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

func (s *RedisStore) Clear(ctx context.Context, session string) error {
	if err := s.client.Del(ctx, keyPrefix+session).Err(); err != nil {
		return fmt.Errorf("clearing history: %w", err)
	}
	return nil
}

// MemoryStore is the in-process fallback used when history is disabled or no
// Redis is configured.
type MemoryStore struct {
	mu          sync.RWMutex
	sessions    map[string][]llm.Message
	maxMessages int
}

func NewMemoryStore(maxMessages int) *MemoryStore {
	if maxMessages <= 0 {
		maxMessages = 6
	}
	return &MemoryStore{sessions: make(map[string][]llm.Message), maxMessages: maxMessages}
}

func (s *MemoryStore) Append(_ context.Context, session string, msg llm.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := append(s.sessions[session], msg)
	if len(msgs) > s.maxMessages {
		msgs = msgs[len(msgs)-s.maxMessages:]
	}
	s.sessions[session] = msgs
	return nil
}

func (s *MemoryStore) Recent(_ context.Context, session string) ([]llm.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := s.sessions[session]
	out := make([]llm.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (s *MemoryStore) Clear(_ context.Context, session string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, session)
	return nil
}

// New builds the configured store: Redis when history is enabled, otherwise
// the in-memory fallback.
func New(ctx context.Context, cfg config.HistoryConfig) (Store, error) {
	cfg = cfg.Normalize()
	if !cfg.Enabled {
		return NewMemoryStore(cfg.MaxMessages), nil
	}
	client, err := Conn(ctx, cfg.Redis)
	if err != nil {
		return nil, err
	}
	return NewRedisStore(client, cfg), nil
}
