package list

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type item struct {
	name string
	link Node[*item]
}

func newList() *List[*item] {
	return New(func(it *item) *Node[*item] { return &it.link })
}

func collect(l *List[*item]) []string {
	var out []string
	c := l.Forward()
	for c.Next() {
		out = append(out, c.Item().name)
	}
	return out
}

func TestEmptyList(t *testing.T) {
	l := newList()
	assert.Equal(t, 0, l.Len())
	assert.True(t, l.IsEmpty())
	assert.Empty(t, collect(l))
	_, err := l.Leftmost()
	assert.ErrorIs(t, err, ErrEmpty)
	_, err = l.Rightmost()
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestAppendLeftFirst(t *testing.T) {
	l := newList()
	a := &item{name: "a"}
	require.NoError(t, l.AppendLeft(a))
	assert.Equal(t, []string{"a"}, collect(l))
}

func TestAppendLeftSecond(t *testing.T) {
	l := newList()
	a, b := &item{name: "1"}, &item{name: "2"}
	require.NoError(t, l.AppendLeft(a))
	require.NoError(t, l.AppendLeft(b))
	assert.Equal(t, []string{"2", "1"}, collect(l))
}

func TestAppendRightSecond(t *testing.T) {
	l := newList()
	a, b := &item{name: "1"}, &item{name: "2"}
	require.NoError(t, l.AppendRight(a))
	require.NoError(t, l.AppendRight(b))
	assert.Equal(t, []string{"1", "2"}, collect(l))
}

func TestAppendAlreadyLinked(t *testing.T) {
	l := newList()
	a := &item{name: "a"}
	require.NoError(t, l.AppendRight(a))
	err := l.AppendRight(a)
	assert.ErrorIs(t, err, ErrAlreadyLinked)
}

func TestRemoveMiddle(t *testing.T) {
	l := newList()
	a, b, c := &item{name: "1"}, &item{name: "2"}, &item{name: "3"}
	require.NoError(t, l.AppendRight(a))
	require.NoError(t, l.AppendRight(b))
	require.NoError(t, l.AppendRight(c))
	require.NoError(t, l.Remove(b))
	assert.Equal(t, []string{"1", "3"}, collect(l))
	assert.Equal(t, 2, l.Len())
}

func TestRemoveLeftAndRight(t *testing.T) {
	l := newList()
	a, b, c := &item{name: "1"}, &item{name: "2"}, &item{name: "3"}
	require.NoError(t, l.AppendRight(a))
	require.NoError(t, l.AppendRight(b))
	require.NoError(t, l.AppendRight(c))
	require.NoError(t, l.Remove(a))
	assert.Equal(t, []string{"2", "3"}, collect(l))

	require.NoError(t, l.Remove(c))
	assert.Equal(t, []string{"2"}, collect(l))
}

func TestRemoveLast(t *testing.T) {
	l := newList()
	a := &item{name: "1"}
	require.NoError(t, l.AppendRight(a))
	require.NoError(t, l.Remove(a))
	assert.Empty(t, collect(l))
	assert.True(t, l.IsEmpty())
}

func TestRemoveNotLinked(t *testing.T) {
	l := newList()
	a := &item{name: "a"}
	err := l.Remove(a)
	assert.ErrorIs(t, err, ErrNotLinked)
}

func TestRemoveThenReinsertGoesToTail(t *testing.T) {
	l := newList()
	a, b, c := &item{name: "1"}, &item{name: "2"}, &item{name: "3"}
	require.NoError(t, l.AppendRight(a))
	require.NoError(t, l.AppendRight(b))
	require.NoError(t, l.AppendRight(c))
	require.NoError(t, l.Remove(b))
	require.NoError(t, l.AppendRight(b))
	assert.Equal(t, []string{"1", "3", "2"}, collect(l))
}

func TestBackwardCursor(t *testing.T) {
	l := newList()
	a, b, c := &item{name: "1"}, &item{name: "2"}, &item{name: "3"}
	require.NoError(t, l.AppendRight(a))
	require.NoError(t, l.AppendRight(b))
	require.NoError(t, l.AppendRight(c))

	var out []string
	cur := l.Backward()
	for cur.Next() {
		out = append(out, cur.Item().name)
	}
	require.NoError(t, cur.Err())
	assert.Equal(t, []string{"3", "2", "1"}, out)
}

func TestConcurrentModificationOnAppend(t *testing.T) {
	l := newList()
	a, b := &item{name: "1"}, &item{name: "2"}
	require.NoError(t, l.AppendRight(a))
	require.NoError(t, l.AppendRight(b))

	cur := l.Forward()
	require.True(t, cur.Next())

	c := &item{name: "3"}
	require.NoError(t, l.AppendRight(c))

	assert.False(t, cur.Next())
	assert.ErrorIs(t, cur.Err(), ErrConcurrentModification)
}

func TestConcurrentModificationOnRemove(t *testing.T) {
	l := newList()
	a, b, c := &item{name: "1"}, &item{name: "2"}, &item{name: "3"}
	require.NoError(t, l.AppendRight(a))
	require.NoError(t, l.AppendRight(b))
	require.NoError(t, l.AppendRight(c))

	cur := l.Forward()
	require.NoError(t, l.Remove(c))
	assert.False(t, cur.Next())
	assert.ErrorIs(t, cur.Err(), ErrConcurrentModification)
}

func TestLeftmostOrRightmostOrDefaults(t *testing.T) {
	l := newList()
	def := &item{name: "default"}
	assert.Equal(t, def, l.LeftmostOr(def))
	assert.Equal(t, def, l.RightmostOr(def))

	a := &item{name: "a"}
	require.NoError(t, l.AppendRight(a))
	assert.Equal(t, a, l.LeftmostOr(def))
	assert.Equal(t, a, l.RightmostOr(def))
}

// dualItem carries two Node fields so a single item can belong to two
// lists at once, the way a Record lives in both its version chain and
// the global eviction list.
type dualItem struct {
	name string
	a    Node[*dualItem]
	b    Node[*dualItem]
}

func TestItemInTwoListsAtOnce(t *testing.T) {
	listA := New(func(it *dualItem) *Node[*dualItem] { return &it.a })
	listB := New(func(it *dualItem) *Node[*dualItem] { return &it.b })

	x := &dualItem{name: "x"}
	y := &dualItem{name: "y"}

	require.NoError(t, listA.AppendRight(x))
	require.NoError(t, listA.AppendRight(y))
	require.NoError(t, listB.AppendLeft(x))
	require.NoError(t, listB.AppendLeft(y))

	var namesA, namesB []string
	for c := listA.Forward(); c.Next(); {
		namesA = append(namesA, c.Item().name)
	}
	for c := listB.Forward(); c.Next(); {
		namesB = append(namesB, c.Item().name)
	}
	assert.Equal(t, []string{"x", "y"}, namesA)
	assert.Equal(t, []string{"y", "x"}, namesB)

	require.NoError(t, listA.Remove(x))
	require.NoError(t, listB.Remove(x))
	assert.Equal(t, 1, listA.Len())
	assert.Equal(t, 1, listB.Len())
}
