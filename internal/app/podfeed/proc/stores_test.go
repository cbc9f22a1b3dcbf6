package proc

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"podfeed/internal/app/podfeed/live"
	"podfeed/internal/app/podfeed/podcast"
)

func recvEvent[T any](t *testing.T, ch <-chan live.Event[T]) T {
	t.Helper()
	select {
	case ev, ok := <-ch:
		require.True(t, ok, "stream closed")
		require.NoError(t, ev.Err)
		return ev.Value
	case <-time.After(time.Second):
		require.FailNow(t, "no event")
	}
	var zero T
	return zero
}

func TestPodcastStore_ObserveFollowed(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := newBolt(t)
	seed(t, s)
	tracker := live.NewTracker()
	store := &PodcastStore{Storage: s, Tracker: tracker}

	followed := store.ObserveFollowedPodcasts(ctx)
	assert.Empty(t, recvEvent(t, followed))

	require.NoError(t, store.Follow(ctx, feedB))
	assert.Equal(t, []string{feedB}, podcastURIs(recvEvent(t, followed)))

	state, err := store.ToggleFollowed(ctx, feedA)
	require.NoError(t, err)
	assert.True(t, state)
	assert.Equal(t, []string{feedA, feedB}, podcastURIs(recvEvent(t, followed)))

	state, err = store.ToggleFollowed(ctx, feedA)
	require.NoError(t, err)
	assert.False(t, state)
	assert.Equal(t, []string{feedB}, podcastURIs(recvEvent(t, followed)))

	// new episode moves the podcast up
	require.NoError(t, store.Follow(ctx, feedA))
	recvEvent(t, followed)
	feed := sampleFeeds()[1]
	feed.Episodes = append(feed.Episodes, podcast.Episode{URI: "b2", Published: at(10)})
	require.NoError(t, store.SaveFeed(ctx, feed))
	assert.Equal(t, []string{feedB, feedA}, podcastURIs(recvEvent(t, followed)))

	assert.ErrorIs(t, store.Follow(ctx, "https://unknown.example.com"), ErrPodcastNotFound)
}

func TestEpisodeStore_ObserveEpisodes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := newSQLite(t)
	seed(t, s)
	tracker := live.NewTracker()
	podcasts := &PodcastStore{Storage: s, Tracker: tracker}
	episodes := &EpisodeStore{Storage: s, Tracker: tracker}

	stream := episodes.ObserveEpisodes(ctx, feedA, 2)
	assert.Equal(t, []string{"a3", "a1"}, episodeURIs(recvEvent(t, stream)))

	feed := sampleFeeds()[0]
	feed.Episodes = []podcast.Episode{{URI: "a4", Title: "A four", Published: at(6)}}
	require.NoError(t, podcasts.SaveFeed(ctx, feed))
	assert.Equal(t, []string{"a4", "a3"}, episodeURIs(recvEvent(t, stream)))

	cancel()
	assert.Eventually(t, func() bool { return tracker.Subscribers() == 0 }, time.Second, 10*time.Millisecond)
}

func TestCategoryStore(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := newBolt(t)
	seed(t, s)
	store := &CategoryStore{Storage: s, Tracker: live.NewTracker()}

	assert.Equal(t, []podcast.Category{{Name: "Technology"}, {Name: "News"}},
		recvEvent(t, store.ObserveCategoriesSortedByPodcastCount(ctx, 10)))
	assert.Equal(t, []string{feedA, feedB}, podcastURIs(recvEvent(t, store.ObservePodcastsInCategory(ctx, "Technology", 10))))
	assert.Equal(t, []string{"a3", "b1"}, episodeURIs(recvEvent(t, store.ObserveEpisodesFromPodcastsInCategory(ctx, "Technology", 2))))
}
