package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"main/model"

	"github.com/redis/go-redis/v9"
)

// ChatLinkCache keeps Telegram chat-to-user bindings in Redis so the webhook
// does not hit Mongo on every inbound message. Bindings change rarely; a
// short TTL keeps eviction simple.
type ChatLinkCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewChatLinkCache creates and initializes a new chat link cache
func NewChatLinkCache(redisURL string, ttl time.Duration) (*ChatLinkCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %v", err)
	}

	client := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %v", err)
	}

	if ttl <= 0 {
		ttl = 10 * time.Minute
	}

	log.Println("Chat link cache connected to Redis")
	return &ChatLinkCache{client: client, ttl: ttl}, nil
}

// SetLink caches an individual chat binding
func (lc *ChatLinkCache) SetLink(ctx context.Context, link *model.ChatLink) error {
	if link == nil {
		return fmt.Errorf("cannot cache nil chat link")
	}

	key := fmt.Sprintf("chat_link:%d", link.ChatID)

	data, err := json.Marshal(link)
	if err != nil {
		return fmt.Errorf("failed to marshal chat link: %v", err)
	}

	if err := lc.client.Set(ctx, key, data, lc.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache chat link: %v", err)
	}

	return nil
}

// GetLink retrieves a chat binding from cache; (nil, nil) on cache miss
func (lc *ChatLinkCache) GetLink(ctx context.Context, chatID int64) (*model.ChatLink, error) {
	key := fmt.Sprintf("chat_link:%d", chatID)

	data, err := lc.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil // Cache miss
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get chat link from cache: %v", err)
	}

	var link model.ChatLink
	if err := json.Unmarshal(data, &link); err != nil {
		return nil, fmt.Errorf("failed to unmarshal chat link: %v", err)
	}

	return &link, nil
}

// InvalidateLink drops a cached binding after a re-link
func (lc *ChatLinkCache) InvalidateLink(ctx context.Context, chatID int64) error {
	key := fmt.Sprintf("chat_link:%d", chatID)
	if err := lc.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to invalidate chat link: %v", err)
	}
	return nil
}
