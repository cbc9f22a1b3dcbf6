package proc

import (
	"context"

	"podfeed/internal/app/podfeed/live"
	"podfeed/internal/app/podfeed/podcast"
)

// PodcastStore keeps podcasts and follow marks
type PodcastStore struct {
	Storage Storage
	Tracker *live.Tracker
}

// SaveFeed stores fetched feed and notifies live views
func (s *PodcastStore) SaveFeed(ctx context.Context, feed podcast.Feed) error {
	if err := s.Storage.SaveFeed(ctx, feed); err != nil {
		return err
	}
	s.Tracker.Invalidate(live.TablePodcasts, live.TableEpisodes, live.TableCategories)
	return nil
}

// IsEmpty checks if no podcasts stored yet
func (s *PodcastStore) IsEmpty(ctx context.Context) (bool, error) {
	return s.Storage.IsEmpty(ctx)
}

// Podcast by uri
func (s *PodcastStore) Podcast(ctx context.Context, uri string) (podcast.PodcastWithExtraInfo, error) {
	return s.Storage.Podcast(ctx, uri)
}

// Follow podcast
func (s *PodcastStore) Follow(ctx context.Context, uri string) error {
	if err := s.Storage.FollowPodcast(ctx, uri); err != nil {
		return err
	}
	s.Tracker.Invalidate(live.TableFollowed)
	return nil
}

// Unfollow podcast
func (s *PodcastStore) Unfollow(ctx context.Context, uri string) error {
	if err := s.Storage.UnfollowPodcast(ctx, uri); err != nil {
		return err
	}
	s.Tracker.Invalidate(live.TableFollowed)
	return nil
}

// ToggleFollowed follows unfollowed podcast and the other way round, returns the new state
func (s *PodcastStore) ToggleFollowed(ctx context.Context, uri string) (bool, error) {
	followed, err := s.Storage.ToggleFollowPodcast(ctx, uri)
	if err != nil {
		return false, err
	}
	s.Tracker.Invalidate(live.TableFollowed)
	return followed, nil
}

// ObserveFollowedPodcasts emits followed podcasts, the most recently updated first
func (s *PodcastStore) ObserveFollowedPodcasts(ctx context.Context) <-chan live.Event[[]podcast.PodcastWithExtraInfo] {
	return live.Watch(ctx, s.Tracker, func(ctx context.Context) ([]podcast.PodcastWithExtraInfo, error) {
		return s.Storage.FollowedPodcastsSortedByLastEpisode(ctx, 0)
	}, live.TablePodcasts, live.TableEpisodes, live.TableFollowed)
}

// ObservePodcastsSortedByLastEpisode emits all podcasts, the most recently updated first
func (s *PodcastStore) ObservePodcastsSortedByLastEpisode(ctx context.Context, limit int) <-chan live.Event[[]podcast.PodcastWithExtraInfo] {
	return live.Watch(ctx, s.Tracker, func(ctx context.Context) ([]podcast.PodcastWithExtraInfo, error) {
		return s.Storage.PodcastsSortedByLastEpisode(ctx, limit)
	}, live.TablePodcasts, live.TableEpisodes, live.TableFollowed)
}

// EpisodeStore gives access to episodes
type EpisodeStore struct {
	Storage Storage
	Tracker *live.Tracker
}

// ObserveEpisodes emits up to limit latest episodes of the podcast, newest first
func (s *EpisodeStore) ObserveEpisodes(ctx context.Context, podcastURI string, limit int) <-chan live.Event[[]podcast.EpisodeToPodcast] {
	return live.Watch(ctx, s.Tracker, func(ctx context.Context) ([]podcast.EpisodeToPodcast, error) {
		return s.Storage.EpisodesInPodcast(ctx, podcastURI, limit)
	}, live.TablePodcasts, live.TableEpisodes)
}

// CategoryStore gives access to categories
type CategoryStore struct {
	Storage Storage
	Tracker *live.Tracker
}

// ObserveCategoriesSortedByPodcastCount emits categories with most podcasts first
func (s *CategoryStore) ObserveCategoriesSortedByPodcastCount(ctx context.Context, limit int) <-chan live.Event[[]podcast.Category] {
	return live.Watch(ctx, s.Tracker, func(ctx context.Context) ([]podcast.Category, error) {
		return s.Storage.CategoriesSortedByPodcastCount(ctx, limit)
	}, live.TableCategories)
}

// ObservePodcastsInCategory emits podcasts of the category, the most recently updated first
func (s *CategoryStore) ObservePodcastsInCategory(ctx context.Context, name string, limit int) <-chan live.Event[[]podcast.PodcastWithExtraInfo] {
	return live.Watch(ctx, s.Tracker, func(ctx context.Context) ([]podcast.PodcastWithExtraInfo, error) {
		return s.Storage.PodcastsInCategorySortedByLastEpisode(ctx, name, limit)
	}, live.TableCategories, live.TablePodcasts, live.TableEpisodes, live.TableFollowed)
}

// ObserveEpisodesFromPodcastsInCategory emits latest episodes of the category, newest first
func (s *CategoryStore) ObserveEpisodesFromPodcastsInCategory(ctx context.Context, name string, limit int) <-chan live.Event[[]podcast.EpisodeToPodcast] {
	return live.Watch(ctx, s.Tracker, func(ctx context.Context) ([]podcast.EpisodeToPodcast, error) {
		return s.Storage.EpisodesFromPodcastsInCategory(ctx, name, limit)
	}, live.TableCategories, live.TableEpisodes, live.TablePodcasts)
}
