package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"chatbot-backend/internal/model"
)

type countingProvider struct {
	calls   atomic.Int32
	release chan struct{}
	err     error
	name    string
}

func (p *countingProvider) GeneralSettings(_ context.Context, businessID string) (*model.GeneralSettings, error) {
	p.calls.Add(1)
	if p.release != nil {
		<-p.release
	}
	if p.err != nil {
		return nil, p.err
	}
	return &model.GeneralSettings{BusinessID: businessID, BotName: p.name}, nil
}

func (p *countingProvider) Commands(context.Context, string) ([]model.BotCommand, error) {
	return []model.BotCommand{{Type: model.CommandGreeting, Responses: []string{"hi"}}}, nil
}

func TestSettingsCacheTTL(t *testing.T) {
	p := &countingProvider{name: "Robo"}
	c := NewSettingsCache(p, time.Minute)
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		gs, err := c.GeneralSettings(ctx, "biz")
		if err != nil || gs.BotName != "Robo" {
			t.Fatalf("settings = %+v, %v", gs, err)
		}
	}
	if cmds, _ := c.Commands(ctx, "biz"); len(cmds) != 1 {
		t.Fatalf("commands = %v", cmds)
	}
	if got := p.calls.Load(); got != 1 {
		t.Fatalf("provider called %d times within ttl", got)
	}

	now = now.Add(2 * time.Minute)
	c.GeneralSettings(ctx, "biz")
	if got := p.calls.Load(); got != 2 {
		t.Fatalf("provider called %d times after expiry", got)
	}

	c.GeneralSettings(ctx, "other")
	if got := p.calls.Load(); got != 3 {
		t.Fatalf("businesses must be cached separately, calls = %d", got)
	}
}

func TestSettingsCacheInvalidate(t *testing.T) {
	p := &countingProvider{name: "Robo"}
	c := NewSettingsCache(p, time.Hour)
	ctx := context.Background()

	c.GeneralSettings(ctx, "biz")
	p.name = "Helper"
	c.Invalidate("biz")

	gs, err := c.GeneralSettings(ctx, "biz")
	if err != nil {
		t.Fatal(err)
	}
	if gs.BotName != "Helper" || p.calls.Load() != 2 {
		t.Fatalf("after invalidate: name %q calls %d", gs.BotName, p.calls.Load())
	}
}

func TestSettingsCacheSharesConcurrentMisses(t *testing.T) {
	p := &countingProvider{release: make(chan struct{})}
	c := NewSettingsCache(p, time.Hour)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.GeneralSettings(context.Background(), "biz"); err != nil {
				t.Errorf("settings: %v", err)
			}
		}()
	}
	// let the callers pile up behind the first provider call
	time.Sleep(50 * time.Millisecond)
	close(p.release)
	wg.Wait()

	if got := p.calls.Load(); got != 1 {
		t.Fatalf("provider called %d times for one miss", got)
	}
}

func TestSettingsCacheDoesNotCacheErrors(t *testing.T) {
	p := &countingProvider{err: errors.New("db down")}
	c := NewSettingsCache(p, time.Hour)
	ctx := context.Background()

	if _, err := c.GeneralSettings(ctx, "biz"); err == nil {
		t.Fatal("expected provider error")
	}
	p.err = nil
	if _, err := c.GeneralSettings(ctx, "biz"); err != nil {
		t.Fatalf("recovered provider: %v", err)
	}
	if got := p.calls.Load(); got != 2 {
		t.Fatalf("calls = %d", got)
	}
}
