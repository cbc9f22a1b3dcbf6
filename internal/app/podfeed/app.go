package podfeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	log "github.com/go-pkgz/lgr"
	"github.com/samber/lo"

	"podfeed/internal/app/podfeed/live"
	"podfeed/internal/app/podfeed/podcast"
	"podfeed/internal/app/podfeed/proc"
	"podfeed/internal/app/podfeed/usecase"
	"podfeed/internal/configs"
)

// ErrExportDisabled returned by Export without configured cloud storage
var ErrExportDisabled = errors.New("cloud storage is not configured")

// Exporter uploads snapshots
type Exporter interface {
	UploadSnapshot(ctx context.Context, objectName string, data []byte, contentType string) (string, error)
}

// App holds all shared components, made once at startup and closed at shutdown
type App struct {
	config    *configs.Conf
	storage   proc.Storage
	processor *proc.Processor
	exporter  Exporter

	Podcasts   *proc.PodcastStore
	Episodes   *proc.EpisodeStore
	Categories *proc.CategoryStore

	LatestFollowedEpisodes *usecase.LatestFollowedEpisodes
	FilterableCategories   *usecase.FilterableCategories
	PodcastCategoryFilter  *usecase.PodcastCategoryFilter
}

// NewApplication makes application on top of opened storage. Exporter can be nil.
func NewApplication(conf *configs.Conf, storage proc.Storage, fetcher proc.FeedFetcher, exporter Exporter) (*App, error) {
	if conf == nil || storage == nil || fetcher == nil {
		return nil, errors.New("config, storage and fetcher are required")
	}

	tracker := live.NewTracker()
	app := App{
		config:     conf,
		storage:    storage,
		exporter:   exporter,
		Podcasts:   &proc.PodcastStore{Storage: storage, Tracker: tracker},
		Episodes:   &proc.EpisodeStore{Storage: storage, Tracker: tracker},
		Categories: &proc.CategoryStore{Storage: storage, Tracker: tracker},
	}

	app.processor = &proc.Processor{
		Store:   app.Podcasts,
		Fetcher: fetcher,
		Workers: conf.Feed.RefreshWorkers,
		Sources: lo.Map(conf.PodcastList(), func(p configs.Podcast, _ int) proc.Source {
			return proc.Source{URL: p.URL, Follow: p.Follow}
		}),
	}

	app.LatestFollowedEpisodes = usecase.NewLatestFollowedEpisodes(app.Podcasts, app.Episodes,
		usecase.WithEpisodesPerPodcast(conf.Feed.EpisodesPerPodcast),
		usecase.WithFailureIsolation(conf.Feed.IsolateFailures))
	app.FilterableCategories = usecase.NewFilterableCategories(app.Categories)
	app.PodcastCategoryFilter = usecase.NewPodcastCategoryFilter(app.Categories)

	return &app, nil
}

// Update find and store new episodes of configured podcasts
func (a *App) Update(ctx context.Context, force bool) (int, error) {
	return a.processor.Update(ctx, force)
}

// Follow podcasts by uri
func (a *App) Follow(ctx context.Context, uris ...string) error {
	for _, uri := range uris {
		if err := a.Podcasts.Follow(ctx, uri); err != nil {
			return fmt.Errorf("can't follow %s: %w", uri, err)
		}
		log.Printf("[INFO] follow %s", uri)
	}
	return nil
}

// Unfollow podcasts by uri
func (a *App) Unfollow(ctx context.Context, uris ...string) error {
	for _, uri := range uris {
		if err := a.Podcasts.Unfollow(ctx, uri); err != nil {
			return fmt.Errorf("can't unfollow %s: %w", uri, err)
		}
		log.Printf("[INFO] unfollow %s", uri)
	}
	return nil
}

// Toggle follows unfollowed podcast and the other way round, returns true if podcast is followed now
func (a *App) Toggle(ctx context.Context, uri string) (bool, error) {
	followed, err := a.Podcasts.ToggleFollowed(ctx, uri)
	if err != nil {
		return false, fmt.Errorf("can't toggle %s: %w", uri, err)
	}
	log.Printf("[INFO] %s followed: %v", uri, followed)
	return followed, nil
}

// PodcastList returns all stored podcasts, the most recently updated first
func (a *App) PodcastList(ctx context.Context) ([]podcast.PodcastWithExtraInfo, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	return live.First(ctx, a.Podcasts.ObservePodcastsSortedByLastEpisode(ctx, 0))
}

// LatestEpisodes returns the current latest episodes of followed podcasts
func (a *App) LatestEpisodes(ctx context.Context) ([]podcast.EpisodeToPodcast, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	return live.First(ctx, a.LatestFollowedEpisodes.ObserveAggregatedFeed(ctx))
}

// Watch calls fn on every change of latest episodes of followed podcasts until ctx is done
// or the feed fails
func (a *App) Watch(ctx context.Context, fn func([]podcast.EpisodeToPodcast)) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	for ev := range a.LatestFollowedEpisodes.ObserveAggregatedFeed(ctx) {
		if ev.Err != nil {
			return ev.Err
		}
		fn(ev.Value)
	}
	return ctx.Err()
}

// CategoryList returns popular categories with the selected one
func (a *App) CategoryList(ctx context.Context, selected string) (usecase.FilterableCategoriesModel, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	return live.First(ctx, a.FilterableCategories.Observe(ctx, selected))
}

// Category returns top podcasts and latest episodes of the category
func (a *App) Category(ctx context.Context, name string) (usecase.PodcastCategoryFilterResult, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	return live.First(ctx, a.PodcastCategoryFilter.Observe(ctx, name))
}

// Export uploads latest episodes of followed podcasts as json, returns location of the object
func (a *App) Export(ctx context.Context, objectName string) (string, error) {
	if a.exporter == nil {
		return "", ErrExportDisabled
	}

	episodes, err := a.LatestEpisodes(ctx)
	if err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(episodes, "", "  ")
	if err != nil {
		return "", err
	}
	return a.exporter.UploadSnapshot(ctx, objectName, data, "application/json")
}

// Close storage
func (a *App) Close() error {
	return a.storage.Close()
}
