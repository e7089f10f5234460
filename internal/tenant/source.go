package tenant

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/spf13/viper"

	"github.com/capitalize-ai/ai-engine/internal/model"
)

// Source looks up stored tenant profiles. It returns model.ErrNotFound for
// tenants that have no profile.
type Source interface {
	Lookup(ctx context.Context, tenantID string) (Profile, error)
}

// StaticSource serves profiles from memory.
type StaticSource struct {
	profiles map[string]Profile
}

// NewStaticSource creates a source over a fixed set of profiles.
func NewStaticSource(profiles map[string]Profile) *StaticSource {
	if profiles == nil {
		profiles = map[string]Profile{}
	}
	return &StaticSource{profiles: profiles}
}

// LoadFile reads profiles from a YAML, JSON or TOML file with the shape
//
//	defaults: {<profile fields>}
//	tenants:
//	  - id: <tenant id>
//	    <profile fields>
//
// Fields under defaults apply to every tenant that leaves them unset.
// Tenants are a list because viper lowercases map keys.
func LoadFile(path string) (*StaticSource, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read tenants file: %w", err)
	}

	var file struct {
		Defaults Profile `mapstructure:"defaults"`
		Tenants  []struct {
			ID      string `mapstructure:"id"`
			Profile `mapstructure:",squash"`
		} `mapstructure:"tenants"`
	}
	if err := v.Unmarshal(&file); err != nil {
		return nil, fmt.Errorf("failed to decode tenants file: %w", err)
	}

	profiles := make(map[string]Profile, len(file.Tenants))
	for _, t := range file.Tenants {
		if !model.ValidTenantID(t.ID) {
			return nil, fmt.Errorf("invalid tenant id %q in %s", t.ID, path)
		}
		profiles[t.ID] = merge(t.Profile, file.Defaults)
	}
	return NewStaticSource(profiles), nil
}

// Lookup returns the stored profile for tenantID.
func (s *StaticSource) Lookup(ctx context.Context, tenantID string) (Profile, error) {
	p, ok := s.profiles[tenantID]
	if !ok {
		return Profile{}, model.ErrNotFound
	}
	return p, nil
}

type cacheEntry struct {
	profile Profile
	expires time.Time
}

// Cache memoizes profiles from a Source for a fixed TTL. Unknown tenants
// resolve to DefaultProfile.
type Cache struct {
	source Source
	ttl    time.Duration
	now    func() time.Time

	mu      sync.Mutex
	entries map[string]cacheEntry
}

// NewCache wraps source with a TTL cache.
func NewCache(source Source, ttl time.Duration) *Cache {
	return NewCacheWithClock(source, ttl, time.Now)
}

// NewCacheWithClock wraps source with a TTL cache driven by now.
func NewCacheWithClock(source Source, ttl time.Duration, now func() time.Time) *Cache {
	return &Cache{
		source:  source,
		ttl:     ttl,
		now:     now,
		entries: make(map[string]cacheEntry),
	}
}

// Get returns the effective profile of tenantID with defaults applied. On a
// source error it returns DefaultProfile together with the error.
func (c *Cache) Get(ctx context.Context, tenantID string) (Profile, error) {
	now := c.now()

	c.mu.Lock()
	if e, ok := c.entries[tenantID]; ok && now.Before(e.expires) {
		c.mu.Unlock()
		return e.profile, nil
	}
	c.mu.Unlock()

	p, err := c.source.Lookup(ctx, tenantID)
	switch {
	case errors.Is(err, model.ErrNotFound):
		p = DefaultProfile()
	case err != nil:
		return DefaultProfile(), fmt.Errorf("failed to load tenant profile: %w", err)
	default:
		p = p.WithDefaults()
	}

	c.mu.Lock()
	c.entries[tenantID] = cacheEntry{profile: p, expires: now.Add(c.ttl)}
	c.mu.Unlock()
	return p, nil
}

// Invalidate drops the cached profile of tenantID.
func (c *Cache) Invalidate(tenantID string) {
	c.mu.Lock()
	delete(c.entries, tenantID)
	c.mu.Unlock()
}

// InvalidateAll empties the cache.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	c.entries = make(map[string]cacheEntry)
	c.mu.Unlock()
}
