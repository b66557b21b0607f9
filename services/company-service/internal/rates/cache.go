package rates

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// fallbackRates are pinned conversion rates (base EUR) used when the
// upstream feed has never answered. Stale feed data is preferred over
// these whenever any fetch has succeeded.
var fallbackRates = map[string]float64{
	"EUR": 1.0,
	"USD": 1.09,
	"GBP": 0.86,
	"BGN": 1.96,
}

const DefaultTTL = time.Hour

// Cache holds exchange rates fetched from an HTTP feed with a TTL.
// The clock is injected so expiry is testable.
type Cache struct {
	url    string
	ttl    time.Duration
	client *http.Client
	now    func() time.Time

	mu        sync.Mutex
	rates     map[string]float64
	fetchedAt time.Time
}

func NewCache(url string, ttl time.Duration, now func() time.Time) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if now == nil {
		now = time.Now
	}
	return &Cache{
		url:    url,
		ttl:    ttl,
		client: &http.Client{Timeout: 5 * time.Second},
		now:    now,
	}
}

// Rates returns the current rate table. Within the TTL the cached table
// is served; after expiry a refetch is attempted, falling back to the
// last good table (or the pinned fallbacks) on failure.
func (c *Cache) Rates(ctx context.Context) (map[string]float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if c.rates != nil && now.Sub(c.fetchedAt) < c.ttl {
		return copyRates(c.rates), true
	}

	fetched, err := c.fetch(ctx)
	if err == nil {
		c.rates = fetched
		c.fetchedAt = now
		return copyRates(fetched), true
	}

	if c.rates != nil {
		return copyRates(c.rates), false
	}
	return copyRates(fallbackRates), false
}

// Convert translates amount between two currency codes using the current
// table. Unknown codes are an error, not a silent 1:1 conversion.
func (c *Cache) Convert(ctx context.Context, amount float64, from, to string) (float64, error) {
	rates, _ := c.Rates(ctx)
	fromRate, ok := rates[from]
	if !ok {
		return 0, fmt.Errorf("unknown currency %q", from)
	}
	toRate, ok := rates[to]
	if !ok {
		return 0, fmt.Errorf("unknown currency %q", to)
	}
	return amount / fromRate * toRate, nil
}

func (c *Cache) fetch(ctx context.Context) (map[string]float64, error) {
	if c.url == "" {
		return nil, fmt.Errorf("rates feed not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rates feed returned %d", resp.StatusCode)
	}

	var body struct {
		Rates map[string]float64 `json:"rates"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}
	if len(body.Rates) == 0 {
		return nil, fmt.Errorf("rates feed returned no rates")
	}
	return body.Rates, nil
}

func copyRates(in map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
