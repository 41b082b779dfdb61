// Package cache stores scrape results and website enrichment data across
// runs. It is a two-tier write-through cache: a bounded in-process map in
// front of an optional durable store (sqlite by default, postgres when a
// DATABASE_URL is configured). The cache is best-effort everywhere; a broken
// store degrades to memory-only operation and never fails a scrape.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/kryptonlabs/leadscraper/enrich"
	"github.com/kryptonlabs/leadscraper/leads"
)

// ErrMiss is returned by stores when a key is absent or expired.
var ErrMiss = errors.New("cache miss")

const (
	// DefaultQueryTTL bounds how long a query's lead list stays fresh.
	// Listings churn slowly, so hours not minutes.
	DefaultQueryTTL = 6 * time.Hour

	// DefaultWebsiteTTL covers enrichment results. Contact pages change far
	// less often than listings.
	DefaultWebsiteTTL = 72 * time.Hour

	defaultCapacity = 1000
)

// Entry is one stored payload with its expiry.
type Entry struct {
	Payload   []byte
	ExpiresAt time.Time
}

// Store is the durable tier.
type Store interface {
	Get(ctx context.Context, key string) (Entry, error)
	Set(ctx context.Context, key string, entry Entry) error
	// Purge removes entries that expired before now.
	Purge(ctx context.Context, now time.Time) error
	Close() error
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// QueryKey derives the cache key for one scrape query. Normalization makes
// "Dentist, Austin" and "dentist , austin" share an entry.
func QueryKey(businessType, location string, maxResults int) string {
	sum := sha256.Sum256(fmt.Appendf(nil, "%s|%s|%d", normalize(businessType), normalize(location), maxResults))

	return hex.EncodeToString(sum[:])
}

// WebsiteKey derives the cache key for one website's enrichment result.
func WebsiteKey(rawURL string) string {
	sum := sha256.Sum256([]byte("website|" + normalize(rawURL)))

	return hex.EncodeToString(sum[:])
}

// Cache is the two-tier cache. Safe for concurrent use.
type Cache struct {
	store      Store
	now        func() time.Time
	queryTTL   time.Duration
	websiteTTL time.Duration
	logger     *slog.Logger
	capacity   int

	mu     sync.Mutex
	memory map[string]Entry
}

type Option func(*Cache)

// WithStore attaches a durable tier. Without one the cache is memory-only.
func WithStore(store Store) Option {
	return func(c *Cache) { c.store = store }
}

func WithQueryTTL(ttl time.Duration) Option {
	return func(c *Cache) { c.queryTTL = ttl }
}

func WithWebsiteTTL(ttl time.Duration) Option {
	return func(c *Cache) { c.websiteTTL = ttl }
}

func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) { c.logger = logger }
}

func WithCapacity(n int) Option {
	return func(c *Cache) { c.capacity = n }
}

func New(opts ...Option) *Cache {
	c := &Cache{
		now:        time.Now,
		queryTTL:   DefaultQueryTTL,
		websiteTTL: DefaultWebsiteTTL,
		logger:     slog.Default(),
		capacity:   defaultCapacity,
		memory:     make(map[string]Entry),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// GetLeads returns the cached lead list for key, if fresh.
func (c *Cache) GetLeads(ctx context.Context, key string) ([]leads.Lead, bool) {
	payload, ok := c.get(ctx, key)
	if !ok {
		return nil, false
	}

	var ans []leads.Lead
	if err := json.Unmarshal(payload, &ans); err != nil {
		c.logger.Warn("corrupt cache entry dropped", "key", key, "err", err)

		return nil, false
	}

	return ans, true
}

// SetLeads stores a query's lead list under the query TTL class.
func (c *Cache) SetLeads(ctx context.Context, key string, ls []leads.Lead) {
	payload, err := json.Marshal(ls)
	if err != nil {
		c.logger.Warn("cache encode failed", "key", key, "err", err)

		return
	}

	c.set(ctx, key, payload, c.queryTTL)
}

// GetContact returns the cached enrichment result for key, if fresh. An
// empty Contact is a valid cached value: it remembers that a website yielded
// nothing so we do not refetch it for the TTL.
func (c *Cache) GetContact(ctx context.Context, key string) (enrich.Contact, bool) {
	payload, ok := c.get(ctx, key)
	if !ok {
		return enrich.Contact{}, false
	}

	var contact enrich.Contact
	if err := json.Unmarshal(payload, &contact); err != nil {
		c.logger.Warn("corrupt cache entry dropped", "key", key, "err", err)

		return enrich.Contact{}, false
	}

	return contact, true
}

// SetContact stores an enrichment result under the website TTL class.
func (c *Cache) SetContact(ctx context.Context, key string, contact enrich.Contact) {
	payload, err := json.Marshal(contact)
	if err != nil {
		c.logger.Warn("cache encode failed", "key", key, "err", err)

		return
	}

	c.set(ctx, key, payload, c.websiteTTL)
}

func (c *Cache) get(ctx context.Context, key string) ([]byte, bool) {
	now := c.now()

	c.mu.Lock()

	if entry, ok := c.memory[key]; ok {
		if now.Before(entry.ExpiresAt) {
			c.mu.Unlock()

			return entry.Payload, true
		}

		delete(c.memory, key)
	}

	c.mu.Unlock()

	if c.store == nil {
		return nil, false
	}

	entry, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrMiss) {
			c.logger.Warn("cache store read failed", "key", key, "err", err)
		}

		return nil, false
	}

	if !now.Before(entry.ExpiresAt) {
		return nil, false
	}

	c.remember(key, entry)

	return entry.Payload, true
}

func (c *Cache) set(ctx context.Context, key string, payload []byte, ttl time.Duration) {
	entry := Entry{Payload: payload, ExpiresAt: c.now().Add(ttl)}

	c.remember(key, entry)

	if c.store == nil {
		return
	}

	if err := c.store.Set(ctx, key, entry); err != nil {
		c.logger.Warn("cache store write failed", "key", key, "err", err)
	}
}

// remember inserts into the memory tier, evicting the soonest-expiring entry
// when the tier is full.
func (c *Cache) remember(key string, entry Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.memory[key]; !exists && len(c.memory) >= c.capacity {
		var (
			victim   string
			earliest time.Time
		)

		for k, e := range c.memory {
			if victim == "" || e.ExpiresAt.Before(earliest) {
				victim, earliest = k, e.ExpiresAt
			}
		}

		delete(c.memory, victim)
	}

	c.memory[key] = entry
}

// Len reports the memory tier's entry count.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.memory)
}
