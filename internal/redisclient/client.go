package redisclient

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

//go:embed scripts/release_lock.lua
var releaseLockScript string

//go:embed scripts/apply_sale.lua
var applySaleScript string

// ErrLockNotAcquired is returned when another owner holds the lock
var ErrLockNotAcquired = errors.New("lock held by another owner")

type Client struct {
	rdb           *redis.Client
	releaseScript *redis.Script
	applyScript   *redis.Script
}

// SaleLine is one line applied to the stock mirror
type SaleLine struct {
	Code string
	Qty  int
}

// NewClient creates a new Redis client with Lua scripts loaded
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{
		rdb:           rdb,
		releaseScript: redis.NewScript(releaseLockScript),
		applyScript:   redis.NewScript(applySaleScript),
	}, nil
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// AcquireLock takes a lock for ttl and returns the owner token needed to
// release it. ErrLockNotAcquired means the lock is held elsewhere.
func (c *Client) AcquireLock(ctx context.Context, name string, ttl time.Duration) (string, error) {
	token := uuid.New().String()

	ok, err := c.rdb.SetNX(ctx, lockKey(name), token, ttl).Result()
	if err != nil {
		return "", fmt.Errorf("acquire lock %s: %w", name, err)
	}
	if !ok {
		return "", ErrLockNotAcquired
	}
	return token, nil
}

// ReleaseLock releases the lock if token still owns it
func (c *Client) ReleaseLock(ctx context.Context, name, token string) error {
	_, err := c.releaseScript.Run(ctx, c.rdb, []string{lockKey(name)}, token).Result()
	if err != nil {
		return fmt.Errorf("release lock script failed: %w", err)
	}
	return nil
}

// SetStock sets the mirrored stock of a product
func (c *Client) SetStock(ctx context.Context, code string, stock int) error {
	return c.rdb.HSet(ctx, inventoryKey(code), "available", stock).Err()
}

// DeleteStock removes a product from the mirror
func (c *Client) DeleteStock(ctx context.Context, code string) error {
	return c.rdb.Del(ctx, inventoryKey(code)).Err()
}

// GetStock returns the mirrored stock of a product and whether it is known
func (c *Client) GetStock(ctx context.Context, code string) (int, bool, error) {
	val, err := c.rdb.HGet(ctx, inventoryKey(code), "available").Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}

	stock, err := strconv.Atoi(val)
	if err != nil {
		return 0, false, fmt.Errorf("bad stock value %q for %s: %w", val, code, err)
	}
	return stock, true, nil
}

// ApplySale atomically decrements the mirrored stock of each line and adds
// the sale to the daily counters. It returns false when eventID was already
// applied within markerTTL.
func (c *Client) ApplySale(ctx context.Context, eventID, day string, amountCents int64, lines []SaleLine, markerTTL time.Duration) (bool, error) {
	keys := make([]string, 0, len(lines)+2)
	args := make([]interface{}, 0, len(lines)+2)

	keys = append(keys, processedKey(eventID), dailyKey(day))
	args = append(args, int64(markerTTL.Seconds()), amountCents)

	for _, line := range lines {
		keys = append(keys, inventoryKey(line.Code))
		args = append(args, line.Qty)
	}

	result, err := c.applyScript.Run(ctx, c.rdb, keys, args...).Result()
	if err != nil {
		return false, fmt.Errorf("apply sale script failed: %w", err)
	}

	applied, ok := result.(int64)
	if !ok {
		return false, fmt.Errorf("unexpected script result type")
	}
	return applied == 1, nil
}

// GetDailySales returns the mirrored count and amount (in cents) of a day
func (c *Client) GetDailySales(ctx context.Context, day string) (count int64, amountCents int64, err error) {
	result, err := c.rdb.HGetAll(ctx, dailyKey(day)).Result()
	if err != nil {
		return 0, 0, err
	}

	if v, ok := result["count"]; ok {
		count, _ = strconv.ParseInt(v, 10, 64)
	}
	if v, ok := result["amount_cents"]; ok {
		amountCents, _ = strconv.ParseInt(v, 10, 64)
	}
	return count, amountCents, nil
}

// MarkEventProcessed records eventID for ttl and reports whether it was new
func (c *Client) MarkEventProcessed(ctx context.Context, eventID string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, processedKey(eventID), "1", ttl).Result()
}

// UnmarkEventProcessed forgets eventID so a redelivery is applied again
func (c *Client) UnmarkEventProcessed(ctx context.Context, eventID string) error {
	return c.rdb.Del(ctx, processedKey(eventID)).Err()
}

func lockKey(name string) string {
	return fmt.Sprintf("lock:%s", name)
}

func inventoryKey(code string) string {
	return fmt.Sprintf("inventory:%s", code)
}

func dailyKey(day string) string {
	return fmt.Sprintf("sales:daily:%s", day)
}

func processedKey(eventID string) string {
	return fmt.Sprintf("processed:%s", eventID)
}
