// Package usecase combines live store queries into the views the client shows
package usecase

import (
	"context"

	log "github.com/go-pkgz/lgr"
	"github.com/samber/lo"

	"podfeed/internal/app/podfeed/live"
	"podfeed/internal/app/podfeed/podcast"
)

// EpisodesPerPodcast is the default number of latest episodes taken from each followed podcast
const EpisodesPerPodcast = 5

// FollowedPodcastSource provides followed podcasts, most recently updated first
type FollowedPodcastSource interface {
	ObserveFollowedPodcasts(ctx context.Context) <-chan live.Event[[]podcast.PodcastWithExtraInfo]
}

// EpisodeSource provides up to limit latest episodes of the podcast, newest first
type EpisodeSource interface {
	ObserveEpisodes(ctx context.Context, podcastURI string, limit int) <-chan live.Event[[]podcast.EpisodeToPodcast]
}

// LatestFollowedEpisodes merges the latest episodes of all followed podcasts into one feed
type LatestFollowedEpisodes struct {
	podcasts FollowedPodcastSource
	episodes EpisodeSource
	limit    int
	isolate  bool
}

// Option of LatestFollowedEpisodes
type Option func(u *LatestFollowedEpisodes)

// WithEpisodesPerPodcast sets how many episodes are taken from every podcast
func WithEpisodesPerPodcast(limit int) Option {
	return func(u *LatestFollowedEpisodes) {
		if limit > 0 {
			u.limit = limit
		}
	}
}

// WithFailureIsolation keeps the feed alive when episodes of a single podcast fail.
// The failed podcast contributes its last known episodes.
func WithFailureIsolation(isolate bool) Option {
	return func(u *LatestFollowedEpisodes) { u.isolate = isolate }
}

// NewLatestFollowedEpisodes makes the use case
func NewLatestFollowedEpisodes(podcasts FollowedPodcastSource, episodes EpisodeSource, opts ...Option) *LatestFollowedEpisodes {
	u := &LatestFollowedEpisodes{podcasts: podcasts, episodes: episodes, limit: EpisodesPerPodcast}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// ObserveAggregatedFeed emits the latest episodes of all followed podcasts, newest first.
// Every change of the followed podcasts restarts the episode subscriptions; the feed is emitted
// once all of them reported. No followed podcasts emits an empty feed right away.
func (u *LatestFollowedEpisodes) ObserveAggregatedFeed(ctx context.Context) <-chan live.Event[[]podcast.EpisodeToPodcast] {
	out := make(chan live.Event[[]podcast.EpisodeToPodcast])
	go u.run(ctx, out)
	return out
}

// innerEvent is an event of a per-podcast subscription, tagged with its generation
type innerEvent struct {
	gen    uint64
	index  int
	ev     live.Event[[]podcast.EpisodeToPodcast]
	closed bool
}

// generation holds the episode subscriptions made for one snapshot of followed podcasts
type generation struct {
	id       uint64
	cancel   context.CancelFunc
	podcasts []podcast.PodcastWithExtraInfo
	values   [][]podcast.EpisodeToPodcast
	reported []bool
	waiting  int // subscriptions without a value yet
	open     int // subscriptions not closed yet
}

func (u *LatestFollowedEpisodes) run(ctx context.Context, out chan<- live.Event[[]podcast.EpisodeToPodcast]) {
	defer close(out)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	followed := u.podcasts.ObserveFollowedPodcasts(ctx)
	inner := make(chan innerEvent)

	var (
		gen      *generation
		lastGen  uint64
		pending  *live.Event[[]podcast.EpisodeToPodcast]
		finished bool // no more snapshots will come
	)

	stop := func() {
		if gen != nil {
			gen.cancel()
			gen = nil
		}
	}
	defer stop()

	fail := func(err error) {
		stop()
		pending = &live.Event[[]podcast.EpisodeToPodcast]{Err: err}
		finished, followed = true, nil
	}

	for {
		if finished && pending == nil && (gen == nil || gen.open == 0) {
			return
		}

		// a nil channel blocks, so the send case is enabled only with a result to deliver
		var send chan<- live.Event[[]podcast.EpisodeToPodcast]
		var next live.Event[[]podcast.EpisodeToPodcast]
		if pending != nil {
			send, next = out, *pending
		}

		select {
		case <-ctx.Done():
			return

		case send <- next:
			pending = nil
			if next.Err != nil {
				return
			}

		case snap, ok := <-followed:
			if !ok {
				finished, followed = true, nil
				continue
			}
			if snap.Err != nil {
				fail(snap.Err)
				continue
			}

			stop()
			pending = nil
			lastGen++
			gen = u.subscribe(ctx, lastGen, snap.Value, inner)
			generationsStarted.Inc()
			if len(snap.Value) == 0 {
				pending = &live.Event[[]podcast.EpisodeToPodcast]{Value: []podcast.EpisodeToPodcast{}}
			}

		case ie := <-inner:
			if gen == nil || ie.gen != gen.id {
				continue // superseded generation
			}
			if ie.closed {
				gen.open--
				continue
			}
			if ie.ev.Err != nil {
				if !u.isolate {
					fail(ie.ev.Err)
					continue
				}
				log.Printf("[WARN] episodes of %s failed, keep last known, %v", gen.podcasts[ie.index].Podcast.URI, ie.ev.Err)
				podcastFailures.Inc()
			} else {
				gen.values[ie.index] = ie.ev.Value
			}

			if !gen.reported[ie.index] {
				gen.reported[ie.index] = true
				gen.waiting--
			}
			if gen.waiting == 0 {
				pending = &live.Event[[]podcast.EpisodeToPodcast]{Value: combine(gen.values)}
			}
		}
	}
}

// subscribe starts one episode subscription per podcast, all bound to the generation context
func (u *LatestFollowedEpisodes) subscribe(ctx context.Context, id uint64, podcasts []podcast.PodcastWithExtraInfo,
	inner chan<- innerEvent) *generation {
	genCtx, cancel := context.WithCancel(ctx)
	g := &generation{
		id:       id,
		cancel:   cancel,
		podcasts: podcasts,
		values:   make([][]podcast.EpisodeToPodcast, len(podcasts)),
		reported: make([]bool, len(podcasts)),
		waiting:  len(podcasts),
		open:     len(podcasts),
	}

	log.Printf("[DEBUG] subscribe to episodes of %d followed podcasts, generation %d", len(podcasts), id)
	for i, p := range podcasts {
		go forward(genCtx, id, i, u.episodes.ObserveEpisodes(genCtx, p.Podcast.URI, u.limit), inner)
	}
	return g
}

func forward(ctx context.Context, gen uint64, index int, src <-chan live.Event[[]podcast.EpisodeToPodcast], dst chan<- innerEvent) {
	for ev := range src {
		select {
		case dst <- innerEvent{gen: gen, index: index, ev: ev}:
		case <-ctx.Done():
			return
		}
	}
	select {
	case dst <- innerEvent{gen: gen, index: index, closed: true}:
	case <-ctx.Done():
	}
}

// combine flattens episodes of all podcasts and sorts them newest first
func combine(values [][]podcast.EpisodeToPodcast) []podcast.EpisodeToPodcast {
	res := lo.Flatten(values)
	podcast.SortByPublished(res)
	aggregationsComputed.Inc()
	return res
}
