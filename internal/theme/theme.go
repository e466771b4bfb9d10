// Package theme persists the light/dark display preference.
package theme

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"fintrack/internal/kv"
	"fintrack/internal/log"
)

const (
	Light Theme = "light"
	Dark  Theme = "dark"
)

type Theme string

var ErrInvalidTheme = errors.New("theme must be light or dark")

func Parse(raw string) (Theme, error) {
	switch t := Theme(strings.ToLower(strings.TrimSpace(raw))); t {
	case Light, Dark:
		return t, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidTheme, raw)
}

// Opposite returns the other theme.
func (t Theme) Opposite() Theme {
	if t == Dark {
		return Light
	}
	return Dark
}

// Preference reads and writes the theme under kv.ThemeKey. A missing or
// unreadable value falls back to the configured default.
type Preference struct {
	mu       sync.Mutex
	kv       kv.Store
	fallback Theme
	logger   *log.Logger
}

func New(store kv.Store, fallback Theme, logger *log.Logger) *Preference {
	if fallback != Dark {
		fallback = Light
	}
	if logger == nil {
		logger = log.Nop()
	}
	return &Preference{kv: store, fallback: fallback, logger: logger.WithComponent(log.ComponentTheme)}
}

func (p *Preference) Get(ctx context.Context) Theme {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.getLocked(ctx)
}

func (p *Preference) getLocked(ctx context.Context) Theme {
	blob, err := p.kv.Get(ctx, kv.ThemeKey)
	if err != nil {
		if !errors.Is(err, kv.ErrNotFound) {
			p.logger.WarnContext(ctx, "Failed to read theme, using default", log.FieldError, err)
		}
		return p.fallback
	}
	t, err := Parse(string(blob))
	if err != nil {
		return p.fallback
	}
	return t
}

func (p *Preference) Set(ctx context.Context, t Theme) error {
	if _, err := Parse(string(t)); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.setLocked(ctx, t)
}

func (p *Preference) setLocked(ctx context.Context, t Theme) error {
	if err := p.kv.Put(ctx, kv.ThemeKey, []byte(t)); err != nil {
		return fmt.Errorf("save theme: %w", err)
	}
	return nil
}

// Toggle flips the stored theme and returns the new value. When the write
// fails the new value is still returned alongside the error.
func (p *Preference) Toggle(ctx context.Context) (Theme, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	next := p.getLocked(ctx).Opposite()
	return next, p.setLocked(ctx, next)
}
