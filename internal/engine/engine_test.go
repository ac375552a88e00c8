package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func t0() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }

func TestPutGetRoundTrip(t *testing.T) {
	e := New()
	now := t0()

	v, err := e.Put("k", "1", []byte("v"), now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)

	data, err := e.Get("k", 1, now)
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), data)

	nv, err := e.NewestVersion("k", now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), nv)

	ov, err := e.OldestVersion("k", now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), ov)
}

func TestVersionsIncrementSequentially(t *testing.T) {
	e := New()
	now := t0()

	v1, err := e.Put("k", "1", []byte("v1"), now)
	require.NoError(t, err)
	v2, err := e.Put("k", "2", []byte("v2"), now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v1)
	assert.Equal(t, int64(2), v2)

	nv, err := e.NewestVersion("k", now)
	require.NoError(t, err)
	assert.Equal(t, int64(2), nv)

	ov, err := e.OldestVersion("k", now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), ov)
}

func TestIdempotentPutReturnsSameVersionOnce(t *testing.T) {
	e := New()
	now := t0()

	v1, err := e.Put("k", "1", []byte("v"), now)
	require.NoError(t, err)
	v2, err := e.Put("k", "1", []byte("v"), now)
	require.NoError(t, err)
	assert.Equal(t, v1, v2)
	assert.Len(t, e.records, 1)
}

func TestIdempotentPutDoesNotTouchOrAdvance(t *testing.T) {
	e := New()
	now := t0()

	_, err := e.Put("k", "1", []byte("v"), now)
	require.NoError(t, err)

	later := now.Add(10 * time.Second)
	v2, err := e.Put("k", "1", []byte("different"), later)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v2)

	r := e.records[recordKey{"k", 1}]
	assert.Equal(t, now, r.LastTouch, "idempotent replay must not touch the existing record")
	assert.Equal(t, []byte("v"), r.Data, "idempotent replay must not change stored data")

	nv, err := e.NewestVersion("k", later)
	require.NoError(t, err)
	assert.Equal(t, int64(1), nv, "idempotent replay must not advance newest version")
}

func TestGetNotFound(t *testing.T) {
	e := New()
	_, err := e.Get("missing", 1, t0())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOldestNewestNotFoundOnEmptyID(t *testing.T) {
	e := New()
	_, err := e.OldestVersion("missing", t0())
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = e.NewestVersion("missing", t0())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEvictionRemovesAfterIdleWindow(t *testing.T) {
	e := New(WithEvictionTime(300 * time.Second))
	now := t0()
	_, err := e.Put("k", "1", []byte("v"), now)
	require.NoError(t, err)

	data, err := e.Get("k", 1, now.Add(150*time.Second))
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), data)

	// The Get at 150s touched the record, so its idle window now ends
	// at 450s.
	_, err = e.Get("k", 1, now.Add(460*time.Second))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTouchExtendsLifetime(t *testing.T) {
	e := New(WithEvictionTime(300 * time.Second))
	now := t0()
	_, err := e.Put("k", "1", []byte("v"), now)
	require.NoError(t, err)

	e.Touch("k", 1, now.Add(250*time.Second))

	data, err := e.Get("k", 1, now.Add(400*time.Second))
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), data)
}

func TestTouchOnMissingRecordIsNoop(t *testing.T) {
	e := New()
	e.Touch("missing", 1, t0())
}

func TestEvictionRemovesFromAllIndexes(t *testing.T) {
	e := New(WithEvictionTime(10 * time.Second))
	now := t0()
	_, err := e.Put("k", "tok", []byte("v"), now)
	require.NoError(t, err)

	later := now.Add(time.Minute)
	_, err = e.Get("k", 1, later)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = e.OldestVersion("k", later)
	assert.ErrorIs(t, err, ErrNotFound)

	// A put reusing the same idepo token after eviction must be treated
	// as brand new, not as a replay of the evicted record.
	v, err := e.Put("k", "tok", []byte("v2"), later)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)
}

func TestPutValidation(t *testing.T) {
	e := New()
	now := t0()

	_, err := e.Put("", "tok", []byte("v"), now)
	assert.ErrorIs(t, err, ErrInvalid)

	_, err = e.Put("id", "", []byte("v"), now)
	assert.ErrorIs(t, err, ErrInvalid)

	_, err = e.Put("id", "tok", nil, now)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestMaxIDSizeIsStrictlyLessThan(t *testing.T) {
	e := New(WithMaxIDSize(4))
	now := t0()

	// len("abcd") == 4 == MaxIDSize: must fail.
	_, err := e.Put("abcd", "t", []byte("v"), now)
	assert.ErrorIs(t, err, ErrInvalid)

	// len("abc") == 3 < 4: must succeed.
	_, err = e.Put("abc", "t", []byte("v"), now)
	assert.NoError(t, err)
}

func TestMaxSizeBoundary(t *testing.T) {
	e := New(WithMaxSize(4))
	now := t0()

	_, err := e.Put("id1", "t", []byte("abcd"), now)
	assert.NoError(t, err, "len(data) == max_size must succeed")

	_, err = e.Put("id2", "t", []byte("abcde"), now)
	assert.ErrorIs(t, err, ErrInvalid, "len(data) == max_size+1 must fail")
}

func TestCapacityLimit(t *testing.T) {
	e := New(WithMaxRecords(2))
	now := t0()

	_, err := e.Put("a", "t", []byte("v"), now)
	require.NoError(t, err)
	_, err = e.Put("b", "t", []byte("v"), now)
	require.NoError(t, err)

	_, err = e.Put("c", "t", []byte("v"), now)
	assert.ErrorIs(t, err, ErrCapacity)
}

func TestEvictionListStaysOrderedByLastTouch(t *testing.T) {
	e := New()
	now := t0()
	_, err := e.Put("a", "t", []byte("1"), now)
	require.NoError(t, err)
	_, err = e.Put("b", "t", []byte("2"), now.Add(time.Second))
	require.NoError(t, err)
	_, err = e.Put("c", "t", []byte("3"), now.Add(2*time.Second))
	require.NoError(t, err)

	// Touching "a" moves it to the tail; the list must still be
	// non-decreasing in last_touch afterward.
	e.Touch("a", 1, now.Add(3*time.Second))

	var lastTouch time.Time
	cur := e.evictList.Forward()
	first := true
	for cur.Next() {
		r := cur.Item()
		if !first {
			assert.False(t, r.LastTouch.Before(lastTouch))
		}
		lastTouch = r.LastTouch
		first = false
	}
	require.NoError(t, cur.Err())
}

func TestOldestVersionDoesNotAffectNewest(t *testing.T) {
	e := New()
	now := t0()
	_, err := e.Put("k", "1", []byte("v1"), now)
	require.NoError(t, err)
	_, err = e.Put("k", "2", []byte("v2"), now)
	require.NoError(t, err)

	ov, err := e.OldestVersion("k", now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), ov)

	nv, err := e.NewestVersion("k", now)
	require.NoError(t, err)
	assert.Equal(t, int64(2), nv)
}
