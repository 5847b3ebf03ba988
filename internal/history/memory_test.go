// ABOUTME: Tests for the in-process history store
// ABOUTME: Validates TTL expiry, LRU eviction, cleanup, and concurrency safety

package history

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDoc(id string) *Document {
	return &Document{
		ID:          id,
		Type:        "rev",
		Title:       "Title " + id,
		CurrentNode: "node-2",
		Mapping: map[string]Node{
			"node-1": {ID: "node-1", Children: []string{"node-2"}},
			"node-2": {ID: "node-2", Parent: "node-1", Children: []string{}},
		},
		FetchedAt: time.Now().UTC(),
	}
}

func TestMemoryStore_GetMissing(t *testing.T) {
	s := NewMemoryStore(time.Hour, 10)
	defer s.Close()

	_, err := s.Get(context.Background(), "never-stored")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_PutGet(t *testing.T) {
	s := NewMemoryStore(time.Hour, 10)
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, testDoc("conv-1")))

	got, err := s.Get(ctx, "conv-1")
	require.NoError(t, err)
	assert.Equal(t, "Title conv-1", got.Title)
	assert.Len(t, got.Mapping, 2)
}

func TestMemoryStore_PutReplaces(t *testing.T) {
	s := NewMemoryStore(time.Hour, 10)
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, testDoc("conv-1")))
	updated := testDoc("conv-1")
	updated.Title = "Updated"
	require.NoError(t, s.Put(ctx, updated))

	got, err := s.Get(ctx, "conv-1")
	require.NoError(t, err)
	assert.Equal(t, "Updated", got.Title)
	assert.Equal(t, 1, s.Len())
}

func TestMemoryStore_Expired(t *testing.T) {
	s := NewMemoryStore(time.Minute, 10)
	defer s.Close()
	ctx := context.Background()

	now := time.Now()
	s.now = func() time.Time { return now }
	require.NoError(t, s.Put(ctx, testDoc("conv-1")))

	s.now = func() time.Time { return now.Add(2 * time.Minute) }
	_, err := s.Get(ctx, "conv-1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 0, s.Len(), "expired document should be dropped on read")
}

func TestMemoryStore_EvictsLeastRecentlyUsed(t *testing.T) {
	s := NewMemoryStore(time.Hour, 2)
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, testDoc("a")))
	require.NoError(t, s.Put(ctx, testDoc("b")))

	// Touch "a" so "b" becomes the eviction candidate.
	_, err := s.Get(ctx, "a")
	require.NoError(t, err)

	require.NoError(t, s.Put(ctx, testDoc("c")))

	_, err = s.Get(ctx, "a")
	assert.NoError(t, err)
	_, err = s.Get(ctx, "b")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Get(ctx, "c")
	assert.NoError(t, err)
}

func TestMemoryStore_DeleteAndClear(t *testing.T) {
	s := NewMemoryStore(time.Hour, 10)
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, testDoc("a")))
	require.NoError(t, s.Put(ctx, testDoc("b")))

	require.NoError(t, s.Delete(ctx, "a"))
	require.NoError(t, s.Delete(ctx, "missing"))
	_, err := s.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 1, s.Len())

	require.NoError(t, s.Clear(ctx))
	assert.Equal(t, 0, s.Len())

	// The store stays usable after Clear.
	require.NoError(t, s.Put(ctx, testDoc("c")))
	assert.Equal(t, 1, s.Len())
}

func TestMemoryStore_Cleanup(t *testing.T) {
	s := NewMemoryStore(time.Minute, 10)
	defer s.Close()
	ctx := context.Background()

	now := time.Now()
	s.now = func() time.Time { return now }
	require.NoError(t, s.Put(ctx, testDoc("old")))

	s.now = func() time.Time { return now.Add(30 * time.Second) }
	require.NoError(t, s.Put(ctx, testDoc("fresh")))

	s.now = func() time.Time { return now.Add(70 * time.Second) }
	s.runCleanup()

	assert.Equal(t, 1, s.Len())
	_, err := s.Get(ctx, "fresh")
	assert.NoError(t, err)
}

func TestMemoryStore_Concurrent(t *testing.T) {
	s := NewMemoryStore(time.Hour, 50)
	defer s.Close()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				id := fmt.Sprintf("conv-%d", (n*100+j)%75)
				_ = s.Put(ctx, testDoc(id))
				_, _ = s.Get(ctx, id)
				if j%10 == 0 {
					_ = s.Delete(ctx, id)
				}
			}
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, s.Len(), 50)
}

func TestMemoryStore_CloseTwice(t *testing.T) {
	s := NewMemoryStore(time.Hour, 10)
	assert.NoError(t, s.Close())
	assert.NoError(t, s.Close())
}
