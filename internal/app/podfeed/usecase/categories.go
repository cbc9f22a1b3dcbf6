package usecase

import (
	"context"

	"github.com/samber/lo"

	"podfeed/internal/app/podfeed/live"
	"podfeed/internal/app/podfeed/podcast"
)

const (
	filterableCategoriesLimit = 10
	topPodcastsInCategory     = 10
	episodesInCategory        = 20
)

// CategorySource provides live category queries
type CategorySource interface {
	ObserveCategoriesSortedByPodcastCount(ctx context.Context, limit int) <-chan live.Event[[]podcast.Category]
	ObservePodcastsInCategory(ctx context.Context, name string, limit int) <-chan live.Event[[]podcast.PodcastWithExtraInfo]
	ObserveEpisodesFromPodcastsInCategory(ctx context.Context, name string, limit int) <-chan live.Event[[]podcast.EpisodeToPodcast]
}

// FilterableCategoriesModel is a list of categories with the selected one
type FilterableCategoriesModel struct {
	Categories []podcast.Category `json:"categories"`
	Selected   string             `json:"selected,omitempty"`
}

// FilterableCategories lists the most popular categories
type FilterableCategories struct {
	categories CategorySource
}

// NewFilterableCategories makes the use case
func NewFilterableCategories(categories CategorySource) *FilterableCategories {
	return &FilterableCategories{categories: categories}
}

// Observe categories sorted by podcast count. Selected falls back to the first category
// when the requested one is not in the list.
func (u *FilterableCategories) Observe(ctx context.Context, selected string) <-chan live.Event[FilterableCategoriesModel] {
	src := u.categories.ObserveCategoriesSortedByPodcastCount(ctx, filterableCategoriesLimit)
	return live.Map(ctx, src, func(categories []podcast.Category) FilterableCategoriesModel {
		res := FilterableCategoriesModel{Categories: categories}
		switch {
		case lo.ContainsBy(categories, func(c podcast.Category) bool { return c.Name == selected }):
			res.Selected = selected
		case len(categories) > 0:
			res.Selected = categories[0].Name
		}
		return res
	})
}

// PodcastCategoryFilterResult is the content of one category
type PodcastCategoryFilterResult struct {
	TopPodcasts []podcast.PodcastWithExtraInfo `json:"top_podcasts"`
	Episodes    []podcast.EpisodeToPodcast     `json:"episodes"`
}

// PodcastCategoryFilter shows top podcasts and latest episodes of a category
type PodcastCategoryFilter struct {
	categories CategorySource
}

// NewPodcastCategoryFilter makes the use case
func NewPodcastCategoryFilter(categories CategorySource) *PodcastCategoryFilter {
	return &PodcastCategoryFilter{categories: categories}
}

// Observe content of the category, an empty name gives an empty result right away
func (u *PodcastCategoryFilter) Observe(ctx context.Context, category string) <-chan live.Event[PodcastCategoryFilterResult] {
	if category == "" {
		return live.Just(PodcastCategoryFilterResult{
			TopPodcasts: []podcast.PodcastWithExtraInfo{},
			Episodes:    []podcast.EpisodeToPodcast{},
		})
	}

	return live.Combine2(ctx,
		u.categories.ObservePodcastsInCategory(ctx, category, topPodcastsInCategory),
		u.categories.ObserveEpisodesFromPodcastsInCategory(ctx, category, episodesInCategory),
		func(podcasts []podcast.PodcastWithExtraInfo, episodes []podcast.EpisodeToPodcast) PodcastCategoryFilterResult {
			return PodcastCategoryFilterResult{TopPodcasts: podcasts, Episodes: episodes}
		})
}
