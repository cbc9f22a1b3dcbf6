package live

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func next[T any](t *testing.T, ch <-chan Event[T]) Event[T] {
	t.Helper()
	select {
	case ev, ok := <-ch:
		require.True(t, ok, "stream closed")
		return ev
	case <-time.After(time.Second):
		require.FailNow(t, "no event")
	}
	return Event[T]{}
}

func TestWatchRerunsOnInvalidate(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tr := NewTracker()
	var calls atomic.Int32
	stream := Watch(ctx, tr, func(context.Context) (int32, error) {
		return calls.Add(1), nil
	}, TableEpisodes)

	assert.Equal(t, int32(1), next(t, stream).Value)

	tr.Invalidate(TablePodcasts)
	tr.Invalidate(TableEpisodes)
	assert.Equal(t, int32(2), next(t, stream).Value)
}

func TestWatchQueryError(t *testing.T) {
	tr := NewTracker()
	boom := errors.New("boom")
	stream := Watch(context.Background(), tr, func(context.Context) (int, error) {
		return 0, boom
	}, TableEpisodes)

	assert.ErrorIs(t, next(t, stream).Err, boom)
	_, ok := <-stream
	assert.False(t, ok)
	assert.Eventually(t, func() bool { return tr.Subscribers() == 0 }, time.Second, 10*time.Millisecond)
}

func TestWatchCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	tr := NewTracker()
	stream := Watch(ctx, tr, func(context.Context) (string, error) { return "v", nil }, TableFollowed)
	assert.Equal(t, "v", next(t, stream).Value)

	cancel()
	for range stream {
	}
	assert.Eventually(t, func() bool { return tr.Subscribers() == 0 }, time.Second, 10*time.Millisecond)
}

func TestFirst(t *testing.T) {
	v, err := First(context.Background(), Just(42))
	require.NoError(t, err)
	assert.Equal(t, 42, v)

	closed := make(chan Event[int])
	close(closed)
	_, err = First(context.Background(), closed)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestMap(t *testing.T) {
	out := Map(context.Background(), Just(2), func(v int) string { return string(rune('a' + v)) })
	assert.Equal(t, "c", next(t, out).Value)
	_, ok := <-out
	assert.False(t, ok)
}

func TestCombine2(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := make(chan Event[int])
	b := make(chan Event[string])
	out := Combine2(ctx, a, b, func(x int, y string) string { return y + ":" + string(rune('0'+x)) })

	a <- Event[int]{Value: 1}
	b <- Event[string]{Value: "x"}
	assert.Equal(t, "x:1", next(t, out).Value)

	a <- Event[int]{Value: 2}
	assert.Equal(t, "x:2", next(t, out).Value)

	boom := errors.New("boom")
	b <- Event[string]{Err: boom}
	assert.ErrorIs(t, next(t, out).Err, boom)
}

func TestCombine2ClosesWhenInputsClose(t *testing.T) {
	a := make(chan Event[int])
	b := make(chan Event[int])
	out := Combine2(context.Background(), a, b, func(x, y int) int { return x + y })
	close(a)
	close(b)

	select {
	case _, ok := <-out:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("not closed")
	}
}
