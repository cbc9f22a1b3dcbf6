// Package proc keeps podcasts locally and refreshes them from their feeds
package proc

import (
	"context"
	"errors"
	"sort"
	"time"

	"podfeed/internal/app/podfeed/podcast"
)

// ErrPodcastNotFound returned for unknown podcast URI
var ErrPodcastNotFound = errors.New("podcast not found")

// Storage is a storage engine for podcasts, episodes and categories.
// Limit <= 0 means no limit.
type Storage interface {
	SaveFeed(ctx context.Context, feed podcast.Feed) error
	IsEmpty(ctx context.Context) (bool, error)

	Podcast(ctx context.Context, uri string) (podcast.PodcastWithExtraInfo, error)
	PodcastsSortedByLastEpisode(ctx context.Context, limit int) ([]podcast.PodcastWithExtraInfo, error)
	FollowedPodcastsSortedByLastEpisode(ctx context.Context, limit int) ([]podcast.PodcastWithExtraInfo, error)
	FollowPodcast(ctx context.Context, uri string) error
	UnfollowPodcast(ctx context.Context, uri string) error
	// ToggleFollowPodcast flips follow mark in one transaction, returns the new state
	ToggleFollowPodcast(ctx context.Context, uri string) (bool, error)

	EpisodesInPodcast(ctx context.Context, uri string, limit int) ([]podcast.EpisodeToPodcast, error)

	CategoriesSortedByPodcastCount(ctx context.Context, limit int) ([]podcast.Category, error)
	PodcastsInCategorySortedByLastEpisode(ctx context.Context, category string, limit int) ([]podcast.PodcastWithExtraInfo, error)
	EpisodesFromPodcastsInCategory(ctx context.Context, category string, limit int) ([]podcast.EpisodeToPodcast, error)

	Close() error
}

func sortByLastEpisode(podcasts []podcast.PodcastWithExtraInfo) {
	sort.SliceStable(podcasts, func(i, j int) bool {
		return podcasts[i].LastEpisodeDate.After(podcasts[j].LastEpisodeDate)
	})
}

func limited[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}

func lastPublished(episodes []podcast.Episode) time.Time {
	var last time.Time
	for _, e := range episodes {
		if e.Published.After(last) {
			last = e.Published
		}
	}
	return last
}
