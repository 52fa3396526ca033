package service

import (
	"context"
	"sync"
	"time"

	"chatbot-backend/internal/model"

	"golang.org/x/sync/singleflight"
)

type cachedSettings struct {
	general   *model.GeneralSettings
	commands  []model.BotCommand
	expiresAt time.Time
}

// SettingsCache is a read-through cache in front of the bot settings provider.
// Entries live for ttl and can be dropped early with Invalidate. Concurrent
// misses for one business share a single provider call. Errors are not cached.
type SettingsCache struct {
	provider BotSettingsProvider
	ttl      time.Duration
	now      func() time.Time

	group   singleflight.Group
	mu      sync.RWMutex
	entries map[string]cachedSettings
}

func NewSettingsCache(provider BotSettingsProvider, ttl time.Duration) *SettingsCache {
	return &SettingsCache{
		provider: provider,
		ttl:      ttl,
		now:      time.Now,
		entries:  make(map[string]cachedSettings),
	}
}

func (c *SettingsCache) GeneralSettings(ctx context.Context, businessID string) (*model.GeneralSettings, error) {
	entry, err := c.get(ctx, businessID)
	if err != nil {
		return nil, err
	}
	return entry.general, nil
}

func (c *SettingsCache) Commands(ctx context.Context, businessID string) ([]model.BotCommand, error) {
	entry, err := c.get(ctx, businessID)
	if err != nil {
		return nil, err
	}
	return entry.commands, nil
}

// Invalidate drops the cached settings of businessID.
func (c *SettingsCache) Invalidate(businessID string) {
	c.mu.Lock()
	delete(c.entries, businessID)
	c.mu.Unlock()
	c.group.Forget(businessID)
}

func (c *SettingsCache) get(ctx context.Context, businessID string) (cachedSettings, error) {
	c.mu.RLock()
	entry, ok := c.entries[businessID]
	c.mu.RUnlock()
	if ok && c.now().Before(entry.expiresAt) {
		return entry, nil
	}

	v, err, _ := c.group.Do(businessID, func() (any, error) {
		general, err := c.provider.GeneralSettings(ctx, businessID)
		if err != nil {
			return nil, err
		}
		commands, err := c.provider.Commands(ctx, businessID)
		if err != nil {
			return nil, err
		}
		fresh := cachedSettings{
			general:   general,
			commands:  commands,
			expiresAt: c.now().Add(c.ttl),
		}
		c.mu.Lock()
		c.entries[businessID] = fresh
		c.mu.Unlock()
		return fresh, nil
	})
	if err != nil {
		return cachedSettings{}, err
	}
	return v.(cachedSettings), nil
}
