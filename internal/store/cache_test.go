package store

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aweris/imgsync"
)

func TestLRUCache_EvictsLeastRecentlyUsed(t *testing.T) {
	t.Parallel()

	c := NewLRUCache(2)
	c.Add("a", imgsync.Container{URI: "a"})
	c.Add("b", imgsync.Container{URI: "b"})

	_, ok := c.Get("a")
	assert.True(t, ok)

	c.Add("c", imgsync.Container{URI: "c"})
	assert.Equal(t, 2, c.Len())

	_, ok = c.Get("b")
	assert.False(t, ok, "b was least recently used")
	_, ok = c.Get("a")
	assert.True(t, ok)
	_, ok = c.Get("c")
	assert.True(t, ok)
}

func TestLRUCache_ReplaceRemoveClear(t *testing.T) {
	t.Parallel()

	c := NewLRUCache(4)
	c.Add("a", imgsync.Container{ImagePath: "/old"})
	c.Add("a", imgsync.Container{ImagePath: "/new"})
	got, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, "/new", got.ImagePath)
	assert.Equal(t, 1, c.Len())

	c.Remove("a")
	_, ok = c.Get("a")
	assert.False(t, ok)

	c.Add("b", imgsync.Container{})
	c.Clear()
	assert.Equal(t, 0, c.Len())
}

func TestLRUCache_Disabled(t *testing.T) {
	t.Parallel()

	c := NewLRUCache(0)
	c.Add("a", imgsync.Container{})
	_, ok := c.Get("a")
	assert.False(t, ok)
}
