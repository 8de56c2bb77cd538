package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"google.golang.org/genai"

	"github.com/edgard/personabot/internal/completion"
)

// Cache maps caller cache names to Gemini cached-content resources, matching
// on the resource display name.
type Cache struct {
	client *genai.Client
	log    *slog.Logger

	mu        sync.Mutex
	resources map[string]string // display name -> cachedContents/<id>
}

func newCache(client *genai.Client, log *slog.Logger) *Cache {
	return &Cache{client: client, log: log, resources: make(map[string]string)}
}

func (c *Cache) resource(name string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.resources[name]
	return r, ok
}

func (c *Cache) remember(name, resource string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resources[name] = resource
}

func (c *Cache) forget(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.resources, name)
}

// Exists checks a known resource directly and otherwise scans the listing,
// since the API cannot look entries up by display name.
func (c *Cache) Exists(ctx context.Context, name string) (bool, error) {
	if resource, ok := c.resource(name); ok {
		_, err := c.client.Caches.Get(ctx, resource, nil)
		if err == nil {
			return true, nil
		}
		if statusCode(err) != http.StatusNotFound {
			return false, err
		}
		c.forget(name)
		return false, nil
	}

	for cc, err := range c.client.Caches.All(ctx) {
		if err != nil {
			return false, err
		}
		if cc.DisplayName == name {
			c.remember(name, cc.Name)
			return true, nil
		}
	}
	return false, nil
}

func (c *Cache) Create(ctx context.Context, name, model, content string, ttl time.Duration) (completion.CacheHandle, error) {
	cc, err := c.client.Caches.Create(ctx, model, &genai.CreateCachedContentConfig{
		DisplayName:       name,
		TTL:               ttl,
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: content}}},
	})
	if err != nil {
		return completion.CacheHandle{}, err
	}
	if cc == nil || cc.Name == "" {
		return completion.CacheHandle{}, errors.New("created cache has no name")
	}

	c.remember(name, cc.Name)
	c.log.InfoContext(ctx, "Created context cache", "cache", name, "resource", cc.Name, "ttl", ttl)
	return completion.CacheHandle{Name: cc.Name, ExpireTime: time.Now().Add(ttl)}, nil
}

func (c *Cache) Refresh(ctx context.Context, name string, ttl time.Duration) error {
	resource, ok := c.resource(name)
	if !ok {
		return fmt.Errorf("cache %q is not known", name)
	}
	if _, err := c.client.Caches.Update(ctx, resource, &genai.UpdateCachedContentConfig{TTL: ttl}); err != nil {
		return err
	}
	c.log.DebugContext(ctx, "Refreshed context cache", "cache", name, "ttl", ttl)
	return nil
}

var _ completion.ContextCache = (*Cache)(nil)
