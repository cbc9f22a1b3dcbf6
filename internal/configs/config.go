// Package configs for work with configurations
package configs

import (
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// Storage engines
const (
	EngineBolt   = "bolt"
	EngineSQLite = "sqlite"
)

// Conf for config yaml
type Conf struct {
	Podcasts map[string]Podcast `yaml:"podcasts"`
	Storage  struct {
		Engine string `yaml:"engine"`
		Path   string `yaml:"path"`
	} `yaml:"storage"`
	HTTP struct {
		CacheDir string        `yaml:"cache_dir"`
		Timeout  time.Duration `yaml:"timeout"`
		Retries  uint64        `yaml:"retries"`
	} `yaml:"http"`
	Feed struct {
		EpisodesPerPodcast int  `yaml:"episodes_per_podcast"`
		IsolateFailures    bool `yaml:"isolate_failures"`
		RefreshWorkers     int  `yaml:"refresh_workers"`
	} `yaml:"feed"`
	CloudStorage struct {
		EndPointURL string `yaml:"endpoint_url"`
		Bucket      string `yaml:"bucket"`
		Region      string `yaml:"region"`
		Secure      bool   `yaml:"secure"`
		Secrets     struct {
			Key    string `yaml:"aws_key"`
			Secret string `yaml:"aws_secret"`
		} `yaml:"secrets"`
	} `yaml:"cloud_storage"`
	Metrics struct {
		Listen string `yaml:"listen"`
	} `yaml:"metrics"`
}

// Podcast defines podcast section
type Podcast struct {
	Title  string `yaml:"title"`
	URL    string `yaml:"url"`
	Follow bool   `yaml:"follow"`
}

// Load config from file
func Load(fileName string) (res *Conf, err error) {
	res = &Conf{}
	data, err := os.ReadFile(fileName) // nolint
	if err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, res); err != nil {
		return nil, err
	}
	res.setDefaults()

	if err := res.validate(); err != nil {
		return nil, err
	}
	return res, nil
}

// PodcastList returns podcasts sorted by key, map order is random
func (c *Conf) PodcastList() []Podcast {
	keys := make([]string, 0, len(c.Podcasts))
	for k := range c.Podcasts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	res := make([]Podcast, 0, len(keys))
	for _, k := range keys {
		res = append(res, c.Podcasts[k])
	}
	return res
}

// ExportEnabled checks if cloud storage configured
func (c *Conf) ExportEnabled() bool {
	return c.CloudStorage.EndPointURL != "" && c.CloudStorage.Bucket != ""
}

func (c *Conf) setDefaults() {
	if c.Storage.Engine == "" {
		c.Storage.Engine = EngineBolt
	}
	if c.Storage.Path == "" {
		c.Storage.Path = "var/podfeed.db"
	}
	if c.HTTP.Timeout == 0 {
		c.HTTP.Timeout = 20 * time.Second
	}
	if c.HTTP.Retries == 0 {
		c.HTTP.Retries = 3
	}
	if c.Feed.EpisodesPerPodcast == 0 {
		c.Feed.EpisodesPerPodcast = 5
	}
	if c.Feed.RefreshWorkers == 0 {
		c.Feed.RefreshWorkers = 4
	}
}

func (c *Conf) validate() error {
	if c.Storage.Engine != EngineBolt && c.Storage.Engine != EngineSQLite {
		return fmt.Errorf("unknown storage engine %q", c.Storage.Engine)
	}
	for name, p := range c.Podcasts {
		if p.URL == "" {
			return fmt.Errorf("podcast %s has no url", name)
		}
	}
	return nil
}
