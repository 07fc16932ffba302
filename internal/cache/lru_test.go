package cache

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLRU_GetPut(t *testing.T) {
	c := NewLRU(4)

	_, ok := c.Get("missing")
	assert.False(t, ok)

	c.Put("a", 1)
	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	c.Put("a", 2)
	v, _ = c.Get("a")
	assert.Equal(t, 2, v)
	assert.Equal(t, 1, c.Len())
}

func TestLRU_CapacityBound(t *testing.T) {
	c := NewLRU(3)
	for i := 0; i < 10; i++ {
		c.Put(fmt.Sprintf("k%d", i), i)
	}
	assert.Equal(t, 3, c.Len())
	assert.Equal(t, 3, c.Capacity())
}

func TestLRU_CapacityClampedToOne(t *testing.T) {
	c := NewLRU(0)
	c.Put("a", 1)
	c.Put("b", 2)
	assert.Equal(t, 1, c.Len())
	assert.True(t, c.Contains("b"))
	assert.False(t, c.Contains("a"))
}

func TestLRU_EvictsOldest(t *testing.T) {
	c := NewLRU(2)
	c.Put("a", 1)
	c.Put("b", 2)
	c.Put("c", 3)

	assert.False(t, c.Contains("a"))
	assert.True(t, c.Contains("b"))
	assert.True(t, c.Contains("c"))
}

func TestLRU_GetRefreshesRecency(t *testing.T) {
	c := NewLRU(2)
	c.Put("a", 1)
	c.Put("b", 2)

	// Touching a makes b the eviction candidate.
	_, _ = c.Get("a")
	c.Put("c", 3)

	assert.True(t, c.Contains("a"))
	assert.False(t, c.Contains("b"))
}

func TestLRU_ContainsDoesNotRefresh(t *testing.T) {
	c := NewLRU(2)
	c.Put("a", 1)
	c.Put("b", 2)

	assert.True(t, c.Contains("a"))
	c.Put("c", 3)

	assert.False(t, c.Contains("a"))
}

func TestLRU_Purge(t *testing.T) {
	c := NewLRU(4)
	c.Put("a", 1)
	c.Put("b", 2)

	c.Purge()
	assert.Equal(t, 0, c.Len())
	_, ok := c.Get("a")
	assert.False(t, ok)

	c.Put("c", 3)
	assert.Equal(t, 1, c.Len())
}

func TestLRU_GetOrCreate(t *testing.T) {
	c := NewLRU(4)
	calls := 0
	create := func() (any, error) {
		calls++
		return "built", nil
	}

	v, err := c.GetOrCreate("k", create)
	require.NoError(t, err)
	assert.Equal(t, "built", v)

	v, err = c.GetOrCreate("k", create)
	require.NoError(t, err)
	assert.Equal(t, "built", v)
	assert.Equal(t, 1, calls)
}

func TestLRU_GetOrCreateErrorNotCached(t *testing.T) {
	c := NewLRU(4)
	boom := errors.New("boom")

	_, err := c.GetOrCreate("k", func() (any, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)
	assert.False(t, c.Contains("k"))

	v, err := c.GetOrCreate("k", func() (any, error) { return "ok", nil })
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
}

func TestLRU_GetOrCreateFirstInsertWins(t *testing.T) {
	c := NewLRU(4)

	var wg sync.WaitGroup
	results := make([]any, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := c.GetOrCreate("k", func() (any, error) {
				return fmt.Sprintf("built-%d", i), nil
			})
			assert.NoError(t, err)
			results[i] = v
		}(i)
	}
	wg.Wait()

	// Builders may race, but every caller observes the same cached value.
	for _, v := range results {
		assert.Equal(t, results[0], v)
	}
	assert.Equal(t, 1, c.Len())
}

func TestLRU_ConcurrentAccess(t *testing.T) {
	c := NewLRU(16)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				key := fmt.Sprintf("k%d", i%32)
				c.Put(key, g)
				c.Get(key)
			}
		}(g)
	}
	wg.Wait()

	assert.LessOrEqual(t, c.Len(), 16)
}

func TestSourceHash(t *testing.T) {
	a := SourceHash("{{name}}")
	b := SourceHash("{{name}}")
	other := SourceHash("{{title}}")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, other)
	assert.Len(t, a, 64)
}

func TestRenderKey_StableAcrossInsertionOrder(t *testing.T) {
	ctx1 := map[string]any{"a": 1, "b": "x", "c": true}
	ctx2 := map[string]any{"c": true, "b": "x", "a": 1}

	k1, ok1 := RenderKey("{{a}}", ctx1)
	k2, ok2 := RenderKey("{{a}}", ctx2)
	require.True(t, ok1)
	require.True(t, ok2)
	assert.Equal(t, k1, k2)
}

func TestRenderKey_VariesWithSourceAndContext(t *testing.T) {
	base, _ := RenderKey("{{a}}", map[string]any{"a": 1})

	bySource, _ := RenderKey("{{b}}", map[string]any{"a": 1})
	assert.NotEqual(t, base, bySource)

	byContext, _ := RenderKey("{{a}}", map[string]any{"a": 2})
	assert.NotEqual(t, base, byContext)
}

func TestRenderKey_UnmarshalableContext(t *testing.T) {
	_, ok := RenderKey("{{a}}", map[string]any{"fn": func() {}})
	assert.False(t, ok)

	_, ok = RenderKey("{{a}}", make(chan int))
	assert.False(t, ok)
}
