package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedis(t *testing.T) {
	srv := miniredis.RunT(t)
	c := NewRedis(srv.Addr())
	defer c.Close()

	ctx := context.Background()

	var missing map[string]any
	ok, err := c.Load(ctx, "nope", &missing)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Save(ctx, "article", map[string]any{"id": 12, "title": "A"}, time.Minute))

	var got map[string]any
	ok, err = c.Load(ctx, "article", &got)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, json.Number("12"), got["id"])
	assert.Equal(t, "A", got["title"])

	srv.FastForward(2 * time.Minute)
	ok, err = c.Load(ctx, "article", &got)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Save(ctx, "tag", []int{1, 2}, 0))
	require.NoError(t, c.Remove(ctx, "tag"))
	ok, err = c.Load(ctx, "tag", &got)
	require.NoError(t, err)
	assert.False(t, ok)
}
