package proc

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/boltdb/bolt"
	log "github.com/go-pkgz/lgr"

	"podfeed/internal/app/podfeed/podcast"
)

var (
	podcastsBucket   = []byte("podcasts")
	episodesBucket   = []byte("episodes")
	categoriesBucket = []byte("categories")
	followedBucket   = []byte("followed")
)

// BoltDB store. Episodes and category members are kept in nested buckets keyed by podcast URI
// and category name.
type BoltDB struct {
	DB *bolt.DB
}

// NewBoltStorage makes storage on top of opened bolt db
func NewBoltStorage(db *bolt.DB) (*BoltDB, error) {
	err := db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{podcastsBucket, episodesBucket, categoriesBucket, followedBucket} {
			if _, e := tx.CreateBucketIfNotExists(name); e != nil {
				return fmt.Errorf("can't create bucket %s: %w", name, e)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &BoltDB{DB: db}, nil
}

// SaveFeed saves podcast with its episodes and categories in one transaction
func (b *BoltDB) SaveFeed(_ context.Context, feed podcast.Feed) error {
	return b.DB.Update(func(tx *bolt.Tx) error {
		uri := []byte(feed.Podcast.URI)
		if err := putJSON(tx.Bucket(podcastsBucket), uri, feed.Podcast); err != nil {
			return err
		}

		episodes, err := tx.Bucket(episodesBucket).CreateBucketIfNotExists(uri)
		if err != nil {
			return err
		}
		for _, episode := range feed.Episodes {
			episode.PodcastURI = feed.Podcast.URI
			if err = putJSON(episodes, []byte(episode.URI), episode); err != nil {
				return err
			}
		}

		for _, category := range feed.Categories {
			members, e := tx.Bucket(categoriesBucket).CreateBucketIfNotExists([]byte(category.Name))
			if e != nil {
				return e
			}
			if e = members.Put(uri, []byte{}); e != nil {
				return e
			}
		}

		log.Printf("[DEBUG] saved %s with %d episodes", feed.Podcast.URI, len(feed.Episodes))
		return nil
	})
}

// IsEmpty checks if any podcast stored
func (b *BoltDB) IsEmpty(_ context.Context) (bool, error) {
	empty := true
	err := b.DB.View(func(tx *bolt.Tx) error {
		k, _ := tx.Bucket(podcastsBucket).Cursor().First()
		empty = k == nil
		return nil
	})
	return empty, err
}

// Podcast get podcast by uri
func (b *BoltDB) Podcast(_ context.Context, uri string) (res podcast.PodcastWithExtraInfo, err error) {
	err = b.DB.View(func(tx *bolt.Tx) error {
		p, ok, e := b.podcastInfo(tx, []byte(uri))
		if e != nil {
			return e
		}
		if !ok {
			return fmt.Errorf("%s: %w", uri, ErrPodcastNotFound)
		}
		res = p
		return nil
	})
	return res, err
}

// PodcastsSortedByLastEpisode get all podcasts, the most recently updated first
func (b *BoltDB) PodcastsSortedByLastEpisode(_ context.Context, limit int) ([]podcast.PodcastWithExtraInfo, error) {
	return b.podcasts(limit, func(podcast.PodcastWithExtraInfo) bool { return true })
}

// FollowedPodcastsSortedByLastEpisode get followed podcasts, the most recently updated first
func (b *BoltDB) FollowedPodcastsSortedByLastEpisode(_ context.Context, limit int) ([]podcast.PodcastWithExtraInfo, error) {
	return b.podcasts(limit, func(p podcast.PodcastWithExtraInfo) bool { return p.IsFollowed })
}

// FollowPodcast marks podcast as followed
func (b *BoltDB) FollowPodcast(_ context.Context, uri string) error {
	return b.DB.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(podcastsBucket).Get([]byte(uri)) == nil {
			return fmt.Errorf("%s: %w", uri, ErrPodcastNotFound)
		}
		return tx.Bucket(followedBucket).Put([]byte(uri), []byte(time.Now().UTC().Format(time.RFC3339)))
	})
}

// UnfollowPodcast removes follow mark
func (b *BoltDB) UnfollowPodcast(_ context.Context, uri string) error {
	return b.DB.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(followedBucket).Delete([]byte(uri))
	})
}

// ToggleFollowPodcast follows unfollowed podcast and the other way round
func (b *BoltDB) ToggleFollowPodcast(_ context.Context, uri string) (followed bool, err error) {
	err = b.DB.Update(func(tx *bolt.Tx) error {
		key := []byte(uri)
		if tx.Bucket(podcastsBucket).Get(key) == nil {
			return fmt.Errorf("%s: %w", uri, ErrPodcastNotFound)
		}
		bucket := tx.Bucket(followedBucket)
		if bucket.Get(key) != nil {
			followed = false
			return bucket.Delete(key)
		}
		followed = true
		return bucket.Put(key, []byte(time.Now().UTC().Format(time.RFC3339)))
	})
	return followed, err
}

// EpisodesInPodcast get latest episodes of podcast
func (b *BoltDB) EpisodesInPodcast(_ context.Context, uri string, limit int) (res []podcast.EpisodeToPodcast, err error) {
	err = b.DB.View(func(tx *bolt.Tx) error {
		items, e := b.episodesToPodcast(tx, []byte(uri))
		if e != nil {
			return e
		}
		podcast.SortByPublished(items)
		res = limited(items, limit)
		return nil
	})
	return res, err
}

// CategoriesSortedByPodcastCount get categories with most podcasts first
func (b *BoltDB) CategoriesSortedByPodcastCount(_ context.Context, limit int) ([]podcast.Category, error) {
	type counted struct {
		category podcast.Category
		count    int
	}
	var items []counted
	err := b.DB.View(func(tx *bolt.Tx) error {
		return tx.Bucket(categoriesBucket).ForEach(func(k, _ []byte) error {
			var count int
			err := b.forEachInCategory(tx, string(k), func([]byte) error {
				count++
				return nil
			})
			items = append(items, counted{category: podcast.Category{Name: string(k)}, count: count})
			return err
		})
	})
	if err != nil {
		return nil, err
	}

	// categories are iterated by name, stable sort keeps names ordered within the same count
	sort.SliceStable(items, func(i, j int) bool { return items[i].count > items[j].count })
	res := make([]podcast.Category, 0, len(items))
	for _, item := range limited(items, limit) {
		res = append(res, item.category)
	}
	return res, nil
}

// PodcastsInCategorySortedByLastEpisode get podcasts of category, the most recently updated first
func (b *BoltDB) PodcastsInCategorySortedByLastEpisode(_ context.Context, category string, limit int) (res []podcast.PodcastWithExtraInfo, err error) {
	err = b.DB.View(func(tx *bolt.Tx) error {
		res = []podcast.PodcastWithExtraInfo{}
		return b.forEachInCategory(tx, category, func(uri []byte) error {
			p, ok, e := b.podcastInfo(tx, uri)
			if e != nil || !ok {
				return e
			}
			res = append(res, p)
			return nil
		})
	})
	sortByLastEpisode(res)
	return limited(res, limit), err
}

// EpisodesFromPodcastsInCategory get latest episodes of all podcasts in category
func (b *BoltDB) EpisodesFromPodcastsInCategory(_ context.Context, category string, limit int) (res []podcast.EpisodeToPodcast, err error) {
	err = b.DB.View(func(tx *bolt.Tx) error {
		res = []podcast.EpisodeToPodcast{}
		return b.forEachInCategory(tx, category, func(uri []byte) error {
			items, e := b.episodesToPodcast(tx, uri)
			res = append(res, items...)
			return e
		})
	})
	podcast.SortByPublished(res)
	return limited(res, limit), err
}

// Close bolt db
func (b *BoltDB) Close() error {
	return b.DB.Close()
}

func (b *BoltDB) podcasts(limit int, filter func(podcast.PodcastWithExtraInfo) bool) ([]podcast.PodcastWithExtraInfo, error) {
	res := []podcast.PodcastWithExtraInfo{}
	err := b.DB.View(func(tx *bolt.Tx) error {
		return tx.Bucket(podcastsBucket).ForEach(func(k, _ []byte) error {
			p, ok, e := b.podcastInfo(tx, k)
			if e != nil {
				return e
			}
			if ok && filter(p) {
				res = append(res, p)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sortByLastEpisode(res)
	return limited(res, limit), nil
}

func (b *BoltDB) podcastInfo(tx *bolt.Tx, uri []byte) (podcast.PodcastWithExtraInfo, bool, error) {
	data := tx.Bucket(podcastsBucket).Get(uri)
	if data == nil {
		return podcast.PodcastWithExtraInfo{}, false, nil
	}

	res := podcast.PodcastWithExtraInfo{IsFollowed: tx.Bucket(followedBucket).Get(uri) != nil}
	if err := json.Unmarshal(data, &res.Podcast); err != nil {
		return res, false, fmt.Errorf("can't unmarshal podcast %s: %w", uri, err)
	}

	episodes, err := b.episodes(tx, uri)
	if err != nil {
		return res, false, err
	}
	res.LastEpisodeDate = lastPublished(episodes)
	return res, true, nil
}

func (b *BoltDB) episodes(tx *bolt.Tx, uri []byte) ([]podcast.Episode, error) {
	bucket := tx.Bucket(episodesBucket).Bucket(uri)
	if bucket == nil {
		return nil, nil
	}

	var res []podcast.Episode
	c := bucket.Cursor()
	for k, v := c.First(); k != nil; k, v = c.Next() {
		item := podcast.Episode{}
		if err := json.Unmarshal(v, &item); err != nil {
			log.Printf("[WARN] failed to unmarshal episode %s, %v", k, err)
			continue
		}
		res = append(res, item)
	}
	return res, nil
}

func (b *BoltDB) episodesToPodcast(tx *bolt.Tx, uri []byte) ([]podcast.EpisodeToPodcast, error) {
	res := []podcast.EpisodeToPodcast{}
	data := tx.Bucket(podcastsBucket).Get(uri)
	if data == nil {
		return res, nil
	}
	var p podcast.Podcast
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("can't unmarshal podcast %s: %w", uri, err)
	}

	episodes, err := b.episodes(tx, uri)
	if err != nil {
		return nil, err
	}
	for _, e := range episodes {
		res = append(res, podcast.EpisodeToPodcast{Episode: e, Podcast: p})
	}
	return res, nil
}

func (b *BoltDB) forEachInCategory(tx *bolt.Tx, category string, fn func(uri []byte) error) error {
	members := tx.Bucket(categoriesBucket).Bucket([]byte(category))
	if members == nil {
		return nil
	}
	return members.ForEach(func(k, _ []byte) error { return fn(k) })
}

func putJSON(bucket *bolt.Bucket, key []byte, v any) error {
	jdata, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return bucket.Put(key, jdata)
}
