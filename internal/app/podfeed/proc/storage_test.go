package proc

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/boltdb/bolt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"podfeed/internal/app/podfeed/podcast"
)

const (
	feedA = "https://a.example.com/feed"
	feedB = "https://b.example.com/feed"
	feedC = "https://c.example.com/feed"
)

var base = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

func at(hours int) time.Time { return base.Add(time.Duration(hours) * time.Hour) }

func newBolt(t *testing.T) *BoltDB {
	t.Helper()
	db, err := bolt.Open(filepath.Join(t.TempDir(), "podfeed.bdb"), 0o600, &bolt.Options{Timeout: time.Second})
	require.NoError(t, err)
	s, err := NewBoltStorage(db)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newSQLite(t *testing.T) *SQLite {
	t.Helper()
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "podfeed.db"))
	require.NoError(t, err)
	s := NewSQLiteStorage(db)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func engines(t *testing.T) map[string]func(t *testing.T) Storage {
	t.Helper()
	return map[string]func(t *testing.T) Storage{
		"bolt":   func(t *testing.T) Storage { return newBolt(t) },
		"sqlite": func(t *testing.T) Storage { return newSQLite(t) },
	}
}

func sampleFeeds() []podcast.Feed {
	return []podcast.Feed{
		{
			Podcast: podcast.Podcast{URI: feedA, Title: "Podcast A", Author: "Alice"},
			Episodes: []podcast.Episode{
				{URI: "a1", Title: "A one", Published: at(3), Duration: 90 * time.Second},
				{URI: "a2", Title: "A two", Published: at(1)},
				{URI: "a3", Title: "A three", Published: at(5)},
			},
			Categories: []podcast.Category{{Name: "News"}, {Name: "Technology"}},
		},
		{
			Podcast:    podcast.Podcast{URI: feedB, Title: "Podcast B"},
			Episodes:   []podcast.Episode{{URI: "b1", Title: "B one", Published: at(4)}},
			Categories: []podcast.Category{{Name: "Technology"}},
		},
		{Podcast: podcast.Podcast{URI: feedC, Title: "Podcast C"}},
	}
}

func podcastURIs(items []podcast.PodcastWithExtraInfo) []string {
	res := make([]string, 0, len(items))
	for _, p := range items {
		res = append(res, p.Podcast.URI)
	}
	return res
}

func episodeURIs(items []podcast.EpisodeToPodcast) []string {
	res := make([]string, 0, len(items))
	for _, e := range items {
		res = append(res, e.Episode.URI)
	}
	return res
}

func seed(t *testing.T, s Storage) {
	t.Helper()
	ctx := context.Background()
	empty, err := s.IsEmpty(ctx)
	require.NoError(t, err)
	assert.True(t, empty)

	for _, f := range sampleFeeds() {
		require.NoError(t, s.SaveFeed(ctx, f))
	}

	empty, err = s.IsEmpty(ctx)
	require.NoError(t, err)
	assert.False(t, empty)
}

func TestStorage_Podcasts(t *testing.T) {
	for name, open := range engines(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)
			seed(t, s)

			p, err := s.Podcast(ctx, feedA)
			require.NoError(t, err)
			assert.Equal(t, "Podcast A", p.Podcast.Title)
			assert.Equal(t, "Alice", p.Podcast.Author)
			assert.True(t, at(5).Equal(p.LastEpisodeDate))
			assert.False(t, p.IsFollowed)

			_, err = s.Podcast(ctx, "https://unknown.example.com")
			assert.ErrorIs(t, err, ErrPodcastNotFound)

			all, err := s.PodcastsSortedByLastEpisode(ctx, 0)
			require.NoError(t, err)
			assert.Equal(t, []string{feedA, feedB, feedC}, podcastURIs(all))
			assert.True(t, all[2].LastEpisodeDate.IsZero())

			top, err := s.PodcastsSortedByLastEpisode(ctx, 2)
			require.NoError(t, err)
			assert.Equal(t, []string{feedA, feedB}, podcastURIs(top))
		})
	}
}

func TestStorage_Follow(t *testing.T) {
	for name, open := range engines(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)
			seed(t, s)

			followed, err := s.FollowedPodcastsSortedByLastEpisode(ctx, 0)
			require.NoError(t, err)
			assert.Empty(t, followed)

			require.NoError(t, s.FollowPodcast(ctx, feedC))
			require.NoError(t, s.FollowPodcast(ctx, feedB))
			require.NoError(t, s.FollowPodcast(ctx, feedB))
			assert.ErrorIs(t, s.FollowPodcast(ctx, "https://unknown.example.com"), ErrPodcastNotFound)

			followed, err = s.FollowedPodcastsSortedByLastEpisode(ctx, 0)
			require.NoError(t, err)
			assert.Equal(t, []string{feedB, feedC}, podcastURIs(followed))
			assert.True(t, followed[0].IsFollowed)
			assert.True(t, at(4).Equal(followed[0].LastEpisodeDate))

			require.NoError(t, s.UnfollowPodcast(ctx, feedC))
			require.NoError(t, s.UnfollowPodcast(ctx, feedA))
			followed, err = s.FollowedPodcastsSortedByLastEpisode(ctx, 0)
			require.NoError(t, err)
			assert.Equal(t, []string{feedB}, podcastURIs(followed))

			p, err := s.Podcast(ctx, feedB)
			require.NoError(t, err)
			assert.True(t, p.IsFollowed)
		})
	}
}

func TestStorage_Episodes(t *testing.T) {
	for name, open := range engines(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)
			seed(t, s)

			episodes, err := s.EpisodesInPodcast(ctx, feedA, 2)
			require.NoError(t, err)
			assert.Equal(t, []string{"a3", "a1"}, episodeURIs(episodes))
			assert.Equal(t, feedA, episodes[1].Episode.PodcastURI)
			assert.Equal(t, feedA, episodes[1].Podcast.URI)
			assert.Equal(t, "Podcast A", episodes[1].Podcast.Title)
			assert.Equal(t, 90*time.Second, episodes[1].Episode.Duration)
			assert.True(t, at(3).Equal(episodes[1].Episode.Published))

			episodes, err = s.EpisodesInPodcast(ctx, feedA, 0)
			require.NoError(t, err)
			assert.Equal(t, []string{"a3", "a1", "a2"}, episodeURIs(episodes))

			episodes, err = s.EpisodesInPodcast(ctx, "https://unknown.example.com", 5)
			require.NoError(t, err)
			assert.Empty(t, episodes)
		})
	}
}

func TestStorage_SaveFeedUpserts(t *testing.T) {
	for name, open := range engines(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)
			seed(t, s)

			feed := sampleFeeds()[1]
			feed.Podcast.Title = "Podcast B renamed"
			feed.Episodes[0].Title = "B one renamed"
			feed.Episodes = append(feed.Episodes, podcast.Episode{URI: "b2", Title: "B two", Published: at(8)})
			require.NoError(t, s.SaveFeed(ctx, feed))

			episodes, err := s.EpisodesInPodcast(ctx, feedB, 0)
			require.NoError(t, err)
			assert.Equal(t, []string{"b2", "b1"}, episodeURIs(episodes))
			assert.Equal(t, "B one renamed", episodes[1].Episode.Title)
			assert.Equal(t, "Podcast B renamed", episodes[1].Podcast.Title)

			all, err := s.PodcastsSortedByLastEpisode(ctx, 0)
			require.NoError(t, err)
			assert.Equal(t, []string{feedB, feedA, feedC}, podcastURIs(all))

			categories, err := s.CategoriesSortedByPodcastCount(ctx, 0)
			require.NoError(t, err)
			assert.Len(t, categories, 2)
		})
	}
}

func TestStorage_Categories(t *testing.T) {
	for name, open := range engines(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)
			seed(t, s)

			categories, err := s.CategoriesSortedByPodcastCount(ctx, 0)
			require.NoError(t, err)
			assert.Equal(t, []podcast.Category{{Name: "Technology"}, {Name: "News"}}, categories)

			categories, err = s.CategoriesSortedByPodcastCount(ctx, 1)
			require.NoError(t, err)
			assert.Equal(t, []podcast.Category{{Name: "Technology"}}, categories)

			podcasts, err := s.PodcastsInCategorySortedByLastEpisode(ctx, "Technology", 0)
			require.NoError(t, err)
			assert.Equal(t, []string{feedA, feedB}, podcastURIs(podcasts))

			podcasts, err = s.PodcastsInCategorySortedByLastEpisode(ctx, "Comedy", 0)
			require.NoError(t, err)
			assert.Empty(t, podcasts)

			episodes, err := s.EpisodesFromPodcastsInCategory(ctx, "Technology", 3)
			require.NoError(t, err)
			assert.Equal(t, []string{"a3", "b1", "a1"}, episodeURIs(episodes))
			assert.Equal(t, feedB, episodes[1].Podcast.URI)

			episodes, err = s.EpisodesFromPodcastsInCategory(ctx, "News", 0)
			require.NoError(t, err)
			assert.Equal(t, []string{"a3", "a1", "a2"}, episodeURIs(episodes))
		})
	}
}

func TestStorage_LargeFeed(t *testing.T) {
	for name, open := range engines(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)

			feed := podcast.Feed{Podcast: podcast.Podcast{URI: feedA, Title: "Daily show"}}
			for i := 0; i < 5000; i++ {
				feed.Episodes = append(feed.Episodes, podcast.Episode{
					URI:       fmt.Sprintf("a%04d", i),
					Title:     fmt.Sprintf("Day %d", i),
					Published: base.Add(time.Duration(i) * 24 * time.Hour),
				})
			}
			require.NoError(t, s.SaveFeed(ctx, feed))

			all, err := s.EpisodesInPodcast(ctx, feedA, 0)
			require.NoError(t, err)
			assert.Len(t, all, 5000)

			latest, err := s.EpisodesInPodcast(ctx, feedA, 2)
			require.NoError(t, err)
			assert.Equal(t, []string{"a4999", "a4998"}, episodeURIs(latest))
		})
	}
}

func TestStorage_PublishedOutsideNanosRange(t *testing.T) {
	early := time.Date(1600, 1, 1, 0, 0, 0, 0, time.UTC)
	late := time.Date(2300, 6, 1, 12, 0, 0, 500, time.UTC)

	for name, open := range engines(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)

			require.NoError(t, s.SaveFeed(ctx, podcast.Feed{
				Podcast: podcast.Podcast{URI: feedA, Title: "Podcast A"},
				Episodes: []podcast.Episode{
					{URI: "early", Published: early},
					{URI: "now", Published: at(1)},
					{URI: "now-and-a-bit", Published: at(1).Add(time.Nanosecond)},
				},
			}))
			require.NoError(t, s.SaveFeed(ctx, podcast.Feed{
				Podcast:  podcast.Podcast{URI: feedB, Title: "Podcast B"},
				Episodes: []podcast.Episode{{URI: "late", Published: late}},
			}))

			episodes, err := s.EpisodesInPodcast(ctx, feedA, 0)
			require.NoError(t, err)
			assert.Equal(t, []string{"now-and-a-bit", "now", "early"}, episodeURIs(episodes))
			assert.True(t, early.Equal(episodes[2].Episode.Published), episodes[2].Episode.Published)

			all, err := s.PodcastsSortedByLastEpisode(ctx, 0)
			require.NoError(t, err)
			assert.Equal(t, []string{feedB, feedA}, podcastURIs(all))
			assert.True(t, late.Equal(all[0].LastEpisodeDate), all[0].LastEpisodeDate)
			assert.True(t, at(1).Add(time.Nanosecond).Equal(all[1].LastEpisodeDate), all[1].LastEpisodeDate)
		})
	}
}

func TestStorage_ToggleFollowConcurrent(t *testing.T) {
	for name, open := range engines(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)
			seed(t, s)

			_, err := s.ToggleFollowPodcast(ctx, "https://unknown.example.com")
			assert.ErrorIs(t, err, ErrPodcastNotFound)

			const toggles = 20
			var (
				wg       sync.WaitGroup
				mu       sync.Mutex
				followed int
			)
			for i := 0; i < toggles; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					state, err := s.ToggleFollowPodcast(ctx, feedA)
					assert.NoError(t, err)
					if state {
						mu.Lock()
						followed++
						mu.Unlock()
					}
				}()
			}
			wg.Wait()

			// every toggle flips the state, even number of them ends unfollowed
			assert.Equal(t, toggles/2, followed)
			p, err := s.Podcast(ctx, feedA)
			require.NoError(t, err)
			assert.False(t, p.IsFollowed)
		})
	}
}

func TestMigrateTwice(t *testing.T) {
	path := filepath.Join(t.TempDir(), "podfeed.db")
	require.NoError(t, Migrate(path))
	require.NoError(t, Migrate(path))
}
