package proc

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	log "github.com/go-pkgz/lgr"
	"github.com/gregjones/httpcache"
	"github.com/gregjones/httpcache/diskcache"
	"github.com/mmcdole/gofeed"
	"github.com/samber/lo"

	"podfeed/internal/app/podfeed/podcast"
)

// Fetcher downloads and parses podcast feeds
type Fetcher struct {
	Client        *http.Client
	Retries       uint64
	RetryInterval time.Duration
}

// NewFetcher makes fetcher with the http client
func NewFetcher(client *http.Client, retries uint64) *Fetcher {
	return &Fetcher{Client: client, Retries: retries, RetryInterval: 500 * time.Millisecond}
}

// NewHTTPClient makes http client caching responses in cacheDir, in memory if cacheDir is empty
func NewHTTPClient(cacheDir string, timeout time.Duration, debug bool) *http.Client {
	var cache httpcache.Cache = httpcache.NewMemoryCache()
	if cacheDir != "" {
		cache = diskcache.New(cacheDir)
	}

	transport := httpcache.NewTransport(cache)
	if debug {
		transport.Transport = &loggingTransport{next: http.DefaultTransport}
	}
	return &http.Client{Transport: transport, Timeout: timeout}
}

// Fetch feed by url. Network errors and server errors are retried.
func (f *Fetcher) Fetch(ctx context.Context, feedURL string) (podcast.Feed, error) {
	var parsed *gofeed.Feed
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := f.Client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close() // nolint

		if resp.StatusCode >= 500 {
			return fmt.Errorf("%s responded with %d", feedURL, resp.StatusCode)
		}
		if resp.StatusCode >= 300 {
			return backoff.Permanent(fmt.Errorf("%s responded with %d", feedURL, resp.StatusCode))
		}

		// gofeed parser keeps state while parsing, one per call
		if parsed, err = gofeed.NewParser().Parse(resp.Body); err != nil {
			return backoff.Permanent(fmt.Errorf("can't parse %s: %w", feedURL, err))
		}
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = f.RetryInterval
	notify := func(err error, d time.Duration) {
		log.Printf("[WARN] fetch %s failed, retry in %v, %v", feedURL, d, err)
	}
	if err := backoff.RetryNotify(op, backoff.WithContext(backoff.WithMaxRetries(b, f.Retries), ctx), notify); err != nil {
		feedFetches.WithLabelValues("error").Inc()
		return podcast.Feed{}, err
	}

	feedFetches.WithLabelValues("ok").Inc()
	return toFeed(feedURL, parsed, time.Now().UTC()), nil
}

func toFeed(feedURL string, src *gofeed.Feed, fetched time.Time) podcast.Feed {
	res := podcast.Feed{Podcast: podcast.Podcast{
		URI:         feedURL,
		Title:       strings.TrimSpace(src.Title),
		Description: strings.TrimSpace(src.Description),
		Copyright:   src.Copyright,
	}}

	if len(src.Authors) > 0 {
		res.Podcast.Author = src.Authors[0].Name
	}
	if src.Image != nil {
		res.Podcast.ImageURL = src.Image.URL
	}

	var categories []string
	if src.ITunesExt != nil {
		if src.ITunesExt.Author != "" {
			res.Podcast.Author = src.ITunesExt.Author
		}
		if res.Podcast.ImageURL == "" {
			res.Podcast.ImageURL = src.ITunesExt.Image
		}
		for _, c := range src.ITunesExt.Categories {
			categories = append(categories, c.Text)
		}
	}
	if len(categories) == 0 {
		categories = src.Categories
	}
	categories = lo.Uniq(lo.Compact(lo.Map(categories, func(c string, _ int) string { return strings.TrimSpace(c) })))
	res.Categories = lo.Map(categories, func(c string, _ int) podcast.Category { return podcast.Category{Name: c} })

	for _, item := range src.Items {
		if e, ok := toEpisode(feedURL, item, fetched); ok {
			res.Episodes = append(res.Episodes, e)
		}
	}
	return res
}

func toEpisode(feedURL string, item *gofeed.Item, fetched time.Time) (podcast.Episode, bool) {
	uri := lo.Ternary(item.GUID != "", item.GUID, item.Link)
	if uri == "" {
		log.Printf("[DEBUG] skip item %q of %s without guid and link", item.Title, feedURL)
		return podcast.Episode{}, false
	}

	res := podcast.Episode{
		URI:        uri,
		PodcastURI: feedURL,
		Title:      strings.TrimSpace(item.Title),
		Summary:    item.Description,
		Published:  fetched,
	}
	switch {
	case item.PublishedParsed != nil:
		res.Published = item.PublishedParsed.UTC()
	case item.UpdatedParsed != nil:
		res.Published = item.UpdatedParsed.UTC()
	}
	if len(item.Authors) > 0 {
		res.Author = item.Authors[0].Name
	}

	if ext := item.ITunesExt; ext != nil {
		res.Subtitle = ext.Subtitle
		if ext.Summary != "" {
			res.Summary = ext.Summary
		}
		if ext.Author != "" {
			res.Author = ext.Author
		}
		res.Duration = parseDuration(ext.Duration)
	}
	return res, true
}

// parseDuration parses itunes duration, one of SS, MM:SS, HH:MM:SS
func parseDuration(s string) time.Duration {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) == 0 || len(parts) > 3 {
		return 0
	}

	var res time.Duration
	for _, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 {
			return 0
		}
		res = res*60 + time.Duration(n)
	}
	return res * time.Second
}

type loggingTransport struct {
	next http.RoundTripper
}

func (t *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	st := time.Now()
	resp, err := t.next.RoundTrip(req)
	if err != nil {
		log.Printf("[DEBUG] %s %s failed in %v, %v", req.Method, req.URL, time.Since(st), err)
		return nil, err
	}
	log.Printf("[DEBUG] %s %s %d in %v", req.Method, req.URL, resp.StatusCode, time.Since(st))
	return resp, nil
}
