package theme

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fintrack/internal/kv"
	"fintrack/internal/kv/memory"
)

type brokenKV struct{}

func (brokenKV) Get(context.Context, string) ([]byte, error) { return nil, errors.New("down") }
func (brokenKV) Put(context.Context, string, []byte) error   { return errors.New("down") }

func TestParse(t *testing.T) {
	got, err := Parse(" Dark ")
	require.NoError(t, err)
	assert.Equal(t, Dark, got)

	_, err = Parse("blue")
	assert.ErrorIs(t, err, ErrInvalidTheme)
}

func TestDefaultWhenUnset(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, Light, New(memory.New(), Light, nil).Get(ctx))
	assert.Equal(t, Dark, New(memory.New(), Dark, nil).Get(ctx))
	assert.Equal(t, Light, New(memory.New(), "", nil).Get(ctx))
}

func TestToggleAndPersist(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	p := New(store, Light, nil)

	next, err := p.Toggle(ctx)
	require.NoError(t, err)
	assert.Equal(t, Dark, next)

	blob, err := store.Get(ctx, kv.ThemeKey)
	require.NoError(t, err)
	assert.Equal(t, "dark", string(blob))

	assert.Equal(t, Dark, New(store, Light, nil).Get(ctx))

	next, err = p.Toggle(ctx)
	require.NoError(t, err)
	assert.Equal(t, Light, next)
}

func TestGarbageFallsBack(t *testing.T) {
	ctx := context.Background()
	store := memory.NewWithData(map[string][]byte{kv.ThemeKey: []byte("neon")})
	assert.Equal(t, Dark, New(store, Dark, nil).Get(ctx))
}

func TestBackendFailures(t *testing.T) {
	ctx := context.Background()
	p := New(brokenKV{}, Dark, nil)
	assert.Equal(t, Dark, p.Get(ctx))

	next, err := p.Toggle(ctx)
	assert.Error(t, err)
	assert.Equal(t, Light, next)

	assert.ErrorIs(t, p.Set(ctx, "purple"), ErrInvalidTheme)
}
