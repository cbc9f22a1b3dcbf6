package proc

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/go-pkgz/lgr"
	"golang.org/x/sync/errgroup"

	"podfeed/internal/app/podfeed/podcast"
)

// FeedFetcher downloads a feed by url
type FeedFetcher interface {
	Fetch(ctx context.Context, feedURL string) (podcast.Feed, error)
}

// Source is a feed to keep up to date
type Source struct {
	URL    string
	Follow bool // follow podcast when it gets stored first time
}

// Processor refreshes podcasts from their feeds and writes them to store
type Processor struct {
	Store   *PodcastStore
	Fetcher FeedFetcher
	Sources []Source
	Workers int

	running atomic.Bool
}

// Update fetches all sources and stores them. Without force the update is done only if nothing
// stored yet. Failed feeds are skipped. Returns number of stored feeds, zero if another
// update is in progress.
func (p *Processor) Update(ctx context.Context, force bool) (int, error) {
	if !p.running.CompareAndSwap(false, true) {
		log.Printf("[INFO] update already in progress")
		return 0, nil
	}
	defer p.running.Store(false)

	if !force {
		empty, err := p.Store.IsEmpty(ctx)
		if err != nil {
			return 0, err
		}
		if !empty {
			return 0, nil
		}
	}

	st := time.Now()
	defer func() { updateDuration.Observe(time.Since(st).Seconds()) }()

	workers := p.Workers
	if workers <= 0 {
		workers = 4
	}

	var (
		mu     sync.Mutex
		stored int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, src := range p.Sources {
		src := src
		g.Go(func() error {
			ok, err := p.updateSource(gctx, src)
			if err != nil {
				return err
			}
			if ok {
				mu.Lock()
				stored++
				mu.Unlock()
			}
			return nil
		})
	}
	err := g.Wait()

	log.Printf("[INFO] updated %d of %d podcasts in %v", stored, len(p.Sources), time.Since(st).Round(time.Millisecond))
	return stored, err
}

// updateSource returns storage errors only, fetch errors are logged and skipped
func (p *Processor) updateSource(ctx context.Context, src Source) (bool, error) {
	feed, err := p.Fetcher.Fetch(ctx, src.URL)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		log.Printf("[WARN] can't fetch %s, %v", src.URL, err)
		return false, nil
	}

	_, err = p.Store.Podcast(ctx, feed.Podcast.URI)
	isNew := errors.Is(err, ErrPodcastNotFound)
	if err != nil && !isNew {
		return false, err
	}

	if err = p.Store.SaveFeed(ctx, feed); err != nil {
		return false, err
	}
	podcastsStored.Inc()
	log.Printf("[INFO] stored %s %q with %d episodes", feed.Podcast.URI, feed.Podcast.Title, len(feed.Episodes))

	if isNew && src.Follow {
		if err = p.Store.Follow(ctx, feed.Podcast.URI); err != nil {
			return false, err
		}
		log.Printf("[INFO] follow %s", feed.Podcast.URI)
	}
	return true, nil
}
