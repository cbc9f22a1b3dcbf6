package podcast

import (
	"sort"
	"time"
)

// Episode of podcast
type Episode struct {
	URI        string        `json:"uri"`
	PodcastURI string        `json:"podcast_uri"`
	Title      string        `json:"title"`
	Subtitle   string        `json:"subtitle,omitempty"`
	Summary    string        `json:"summary,omitempty"`
	Author     string        `json:"author,omitempty"`
	Published  time.Time     `json:"published"`
	Duration   time.Duration `json:"duration,omitempty"`
}

// EpisodeToPodcast pairs an episode with the podcast it belongs to
type EpisodeToPodcast struct {
	Episode Episode `json:"episode"`
	Podcast Podcast `json:"podcast"`
}

// SortByPublished orders episodes newest first. Episodes published at the same
// time keep their relative order.
func SortByPublished(episodes []EpisodeToPodcast) {
	sort.SliceStable(episodes, func(i, j int) bool {
		return episodes[i].Episode.Published.After(episodes[j].Episode.Published)
	})
}
