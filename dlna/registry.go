package dlna

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

const (
	// searchFetchCount is how many items a search requests before
	// client-side filtering. Some servers (Jellyfin among them) ignore
	// the criteria and return everything, so we over-fetch and filter.
	searchFetchCount = 500

	searchCacheTTL = 5 * time.Minute
	descCacheTTL   = 10 * time.Minute
)

// Registry hands out one Client per device location and caches resolved
// descriptions and search results across clients.
type Registry struct {
	mu      sync.Mutex
	clients map[string]*Client
	log     *zap.Logger

	descCache   *cache.Cache
	searchCache *cache.Cache
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		clients:     make(map[string]*Client),
		log:         logger,
		descCache:   cache.New(descCacheTTL, 2*descCacheTTL),
		searchCache: cache.New(searchCacheTTL, 2*searchCacheTTL),
	}
}

// Client returns the client for a location, creating it on first use.
// Resolved endpoints are restored from the description cache when a fresh
// client is created for a location seen before.
func (r *Registry) Client(location string) *Client {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.clients[location]; ok {
		return c
	}

	c := NewClient(location, r.log)
	if cached, ok := r.descCache.Get(location); ok {
		if eps, ok := cached.(*endpoints); ok {
			c.restoreEndpoints(eps)
		}
	}
	r.clients[location] = c
	return c
}

// Browse lists one page of a container on the server at location.
func (r *Registry) Browse(ctx context.Context, location, objectID string, startIndex int) ([]Item, int, error) {
	c := r.Client(location)
	items, total, err := c.Browse(ctx, objectID, startIndex, DefaultBrowseCount)
	if err != nil {
		return nil, 0, err
	}
	r.rememberDescription(c)
	return items, total, nil
}

// Search runs a title search on the server at location and filters the
// results case-insensitively over title, artist and album. Results are
// cached per (location, query).
func (r *Registry) Search(ctx context.Context, location, query string) ([]Item, error) {
	key := location + "\x00" + strings.ToLower(strings.TrimSpace(query))
	if cached, ok := r.searchCache.Get(key); ok {
		if items, ok := cached.([]Item); ok {
			return items, nil
		}
	}

	c := r.Client(location)

	cleanQuery := strings.ReplaceAll(query, `"`, "")
	criteria := `dc:title contains "` + cleanQuery + `"`

	raw, _, err := c.Search(ctx, criteria, 0, searchFetchCount)
	if err != nil {
		return nil, err
	}
	r.rememberDescription(c)

	q := strings.ToLower(query)
	filtered := make([]Item, 0, len(raw))
	for _, item := range raw {
		match := strings.Contains(strings.ToLower(item.Title), q) ||
			strings.Contains(strings.ToLower(item.Artist), q) ||
			strings.Contains(strings.ToLower(item.Album), q)
		if match {
			filtered = append(filtered, item)
		}
	}

	r.log.Info("search filtered",
		zap.String("location", location),
		zap.Int("matches", len(filtered)),
		zap.Int("raw", len(raw)))

	r.searchCache.Set(key, filtered, cache.DefaultExpiration)
	return filtered, nil
}

// PlayURL points the renderer at location to a stream URL and starts it.
func (r *Registry) PlayURL(ctx context.Context, location, url, metadata string) error {
	c := r.Client(location)
	if err := c.SetAVTransportURI(ctx, url, metadata); err != nil {
		return err
	}
	r.rememberDescription(c)
	return c.Play(ctx)
}

func (r *Registry) rememberDescription(c *Client) {
	if eps := c.endpoints(); eps != nil {
		r.descCache.Set(c.location, eps, cache.DefaultExpiration)
	}
}
