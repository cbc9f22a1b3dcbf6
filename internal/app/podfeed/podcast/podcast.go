// Package podcast holds the domain model shared by stores, fetcher and use cases
package podcast

import "time"

// Podcast is identified by the URI of its feed
type Podcast struct {
	URI         string `json:"uri"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Author      string `json:"author,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
	Copyright   string `json:"copyright,omitempty"`
}

// PodcastWithExtraInfo is a podcast with its derived state
type PodcastWithExtraInfo struct {
	Podcast         Podcast   `json:"podcast"`
	LastEpisodeDate time.Time `json:"last_episode_date"`
	IsFollowed      bool      `json:"is_followed"`
}

// Category of podcasts, the name is the identity
type Category struct {
	Name string `json:"name"`
}

// Feed is a single fetched podcast feed, stored as a whole
type Feed struct {
	Podcast    Podcast
	Episodes   []Episode
	Categories []Category
}
