package book

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelTree_OrderedWalk(t *testing.T) {
	tree := newLevelTree()

	// Insertion order must not matter for the walks.
	for i := 0; i < 101; i++ {
		tree.getOrCreate(int64((i*37)%101 + 1))
	}
	require.Equal(t, 101, tree.size())

	var asc []int64
	tree.ascend(func(lvl *Level) bool {
		asc = append(asc, lvl.Price())
		return true
	})
	require.Len(t, asc, 101)
	for i, price := range asc {
		assert.Equal(t, int64(i+1), price)
	}

	var desc []int64
	tree.descend(func(lvl *Level) bool {
		desc = append(desc, lvl.Price())
		return true
	})
	require.Len(t, desc, 101)
	for i, price := range desc {
		assert.Equal(t, int64(101-i), price)
	}
}

func TestLevelTree_GetOrCreateIdempotent(t *testing.T) {
	tree := newLevelTree()

	a := tree.getOrCreate(50)
	b := tree.getOrCreate(50)

	assert.Same(t, a, b)
	assert.Equal(t, 1, tree.size())
}

func TestLevelTree_RemoveKeepsOrdering(t *testing.T) {
	tree := newLevelTree()
	for price := int64(1); price <= 64; price++ {
		tree.getOrCreate(price)
	}

	for price := int64(2); price <= 64; price += 2 {
		assert.True(t, tree.remove(price))
	}
	assert.Equal(t, 32, tree.size())

	var got []int64
	tree.ascend(func(lvl *Level) bool {
		got = append(got, lvl.Price())
		return true
	})
	require.Len(t, got, 32)
	for i, price := range got {
		assert.Equal(t, int64(2*i+1), price)
	}

	assert.False(t, tree.remove(2))
	assert.Nil(t, tree.find(2))
	assert.NotNil(t, tree.find(3))
}

func TestLevelTree_Empty(t *testing.T) {
	tree := newLevelTree()

	assert.Zero(t, tree.size())
	assert.Nil(t, tree.first())
	assert.Nil(t, tree.last())
	assert.Nil(t, tree.find(10))
	assert.False(t, tree.remove(10))

	called := false
	tree.ascend(func(*Level) bool { called = true; return true })
	assert.False(t, called)
}

func TestLevelTree_FirstLast(t *testing.T) {
	tree := newLevelTree()
	for _, price := range []int64{55, 10, 99, 42, 77} {
		tree.getOrCreate(price)
	}

	require.NotNil(t, tree.first())
	require.NotNil(t, tree.last())
	assert.Equal(t, int64(10), tree.first().Price())
	assert.Equal(t, int64(99), tree.last().Price())

	tree.remove(10)
	tree.remove(99)
	assert.Equal(t, int64(42), tree.first().Price())
	assert.Equal(t, int64(77), tree.last().Price())
}

func TestLevelTree_WalkEarlyStop(t *testing.T) {
	tree := newLevelTree()
	for price := int64(1); price <= 10; price++ {
		tree.getOrCreate(price)
	}

	var seen int
	tree.ascend(func(*Level) bool {
		seen++
		return seen < 3
	})
	assert.Equal(t, 3, seen)
}

func TestLevelTree_Churn(t *testing.T) {
	tree := newLevelTree()
	live := map[int64]bool{}

	// Alternating inserts and deletes over a fixed permutation exercises
	// the rebalancing paths on interior nodes.
	for i := 0; i < 500; i++ {
		price := int64((i*61)%251 + 1)
		if live[price] {
			require.True(t, tree.remove(price))
			delete(live, price)
		} else {
			tree.getOrCreate(price)
			live[price] = true
		}
	}
	assert.Equal(t, len(live), tree.size())

	prev := int64(0)
	tree.ascend(func(lvl *Level) bool {
		assert.Greater(t, lvl.Price(), prev)
		assert.True(t, live[lvl.Price()])
		prev = lvl.Price()
		return true
	})
}
