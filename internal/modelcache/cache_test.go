package modelcache

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type model struct {
	ID string `json:"id"`
}

func TestLoadMissingFileReturnsNotOK(t *testing.T) {
	c := New(filepath.Join(t.TempDir(), "models.json"))
	var out []model
	ok, err := c.Load(context.Background(), &out)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "models.json")
	c := New(path)

	in := []model{{ID: "gpt-x"}, {ID: "claude-y"}}
	require.NoError(t, c.Save(context.Background(), in))

	var out []model
	ok, err := c.Load(context.Background(), &out)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, in, out)
}

func TestLoadExpiredEntryReturnsNotOK(t *testing.T) {
	path := filepath.Join(t.TempDir(), "models.json")
	c := New(path).WithTTL(time.Millisecond)

	require.NoError(t, c.Save(context.Background(), []model{{ID: "gpt-x"}}))
	time.Sleep(10 * time.Millisecond)

	var out []model
	ok, err := c.Load(context.Background(), &out)
	require.NoError(t, err)
	assert.False(t, ok)
}
