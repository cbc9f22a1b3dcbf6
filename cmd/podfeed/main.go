package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	log "github.com/go-pkgz/lgr"
	"github.com/jessevdk/go-flags"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/lo"

	"podfeed/internal/app/podfeed"
	"podfeed/internal/app/podfeed/podcast"
	"podfeed/internal/app/podfeed/proc"
	"podfeed/internal/configs"
)

var opts struct {
	Conf string `short:"c" long:"conf" env:"PODFEED_CONF" default:"podfeed.yml" description:"config file (yml)"`
	DB   string `short:"d" long:"db" env:"PODFEED_DB" description:"db file, overrides storage path from config"`

	Refresh bool `short:"r" long:"refresh" description:"Fetch configured feeds and store new episodes"`
	Force   bool `short:"f" long:"force" description:"Refresh even if podcasts already stored"`

	Follow   []string `long:"follow" description:"Follow podcast by uri"`
	Unfollow []string `long:"unfollow" description:"Unfollow podcast by uri"`
	Toggle   string   `short:"t" long:"toggle" description:"Follow or unfollow podcast by uri"`

	Podcasts   bool   `short:"p" long:"podcasts" description:"Show stored podcasts"`
	Latest     bool   `short:"l" long:"latest" description:"Show latest episodes of followed podcasts"`
	Watch      bool   `short:"w" long:"watch" description:"Keep showing latest episodes on every change"`
	Categories bool   `long:"categories" description:"Show popular categories"`
	Category   string `long:"category" description:"Show top podcasts and episodes of category"`
	Export     string `short:"e" long:"export" description:"Upload latest episodes as json object to cloud storage"`

	Dbg bool `long:"dbg" env:"DEBUG" description:"show debug info"`
}

func checkFileExists(filepath string) bool {
	if _, err := os.Stat(filepath); errors.Is(err, os.ErrNotExist) {
		return false
	}

	return true
}

func main() {
	p := flags.NewParser(&opts, flags.PassDoubleDash|flags.HelpFlag)
	if _, err := p.Parse(); err != nil {
		if err.(*flags.Error).Type != flags.ErrHelp {
			fmt.Printf("%v\n", err)
			os.Exit(1)
		}
		p.WriteHelp(os.Stderr)
		os.Exit(2)
	}

	if opts.Dbg {
		log.Setup(log.Debug, log.CallerFile)
	}

	configFile := opts.Conf

	if !checkFileExists(configFile) {
		configFile = "configs/podfeed.yaml"

		if !checkFileExists(configFile) {
			log.Fatalf("[ERROR] config file not found")
		}
	}

	conf, err := configs.Load(configFile)
	if err != nil {
		log.Fatalf("[ERROR] can't load config %s, %v", configFile, err)
	}
	if opts.DB != "" {
		conf.Storage.Path = opts.DB
	}

	storage, err := podfeed.NewStorage(conf.Storage.Engine, conf.Storage.Path)
	if err != nil {
		log.Fatalf("[ERROR] can't open %s storage %s, %v", conf.Storage.Engine, conf.Storage.Path, err)
	}

	var exporter podfeed.Exporter
	if conf.ExportEnabled() {
		s3client, err := podfeed.NewS3Client(
			conf.CloudStorage.EndPointURL,
			conf.CloudStorage.Secrets.Key,
			conf.CloudStorage.Secrets.Secret,
			conf.CloudStorage.Secure)
		if err != nil {
			log.Fatalf("[ERROR] can't create s3client instance, %v", err)
		}
		exporter = &proc.S3Store{Client: s3client, Location: conf.CloudStorage.Region, Bucket: conf.CloudStorage.Bucket}
	}

	client := proc.NewHTTPClient(conf.HTTP.CacheDir, conf.HTTP.Timeout, opts.Dbg)
	app, err := podfeed.NewApplication(conf, storage, proc.NewFetcher(client, conf.HTTP.Retries), exporter)
	if err != nil {
		log.Fatalf("[ERROR] can't create app, %v", err)
	}
	defer func() {
		if err := app.Close(); err != nil {
			log.Printf("[WARN] can't close storage, %v", err)
		}
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if conf.Metrics.Listen != "" {
		go serveMetrics(ctx, conf.Metrics.Listen)
	}

	if err := run(ctx, app); err != nil {
		log.Printf("[ERROR] %v", err)
		cancel()
		_ = app.Close()
		os.Exit(1)
	}
}

func run(ctx context.Context, app *podfeed.App) error {
	if opts.Refresh {
		if _, err := app.Update(ctx, opts.Force); err != nil {
			return fmt.Errorf("can't refresh podcasts: %w", err)
		}
	}

	if err := app.Follow(ctx, opts.Follow...); err != nil {
		return err
	}
	if err := app.Unfollow(ctx, opts.Unfollow...); err != nil {
		return err
	}

	if opts.Toggle != "" {
		if _, err := app.Toggle(ctx, opts.Toggle); err != nil {
			return err
		}
	}

	if opts.Podcasts {
		podcasts, err := app.PodcastList(ctx)
		if err != nil {
			return fmt.Errorf("can't get podcasts: %w", err)
		}
		for _, p := range podcasts {
			mark := lo.Ternary(p.IsFollowed, "+", " ")
			fmt.Printf("%s %-40.40s  %s\n", mark, p.Podcast.Title, p.Podcast.URI)
		}
	}

	if opts.Categories {
		list, err := app.CategoryList(ctx, opts.Category)
		if err != nil {
			return fmt.Errorf("can't get categories: %w", err)
		}
		for _, c := range list.Categories {
			mark := lo.Ternary(c.Name == list.Selected, "*", " ")
			fmt.Printf("%s %s\n", mark, c.Name)
		}
	}

	if opts.Category != "" {
		res, err := app.Category(ctx, opts.Category)
		if err != nil {
			return fmt.Errorf("can't get category %s: %w", opts.Category, err)
		}
		fmt.Printf("Top podcasts in %s:\n", opts.Category)
		for _, p := range res.TopPodcasts {
			fmt.Printf("  %s (%s)\n", p.Podcast.Title, p.Podcast.URI)
		}
		fmt.Printf("Latest episodes in %s:\n", opts.Category)
		printEpisodes(res.Episodes)
	}

	if opts.Latest {
		episodes, err := app.LatestEpisodes(ctx)
		if err != nil {
			return fmt.Errorf("can't get latest episodes: %w", err)
		}
		printEpisodes(episodes)
	}

	if opts.Export != "" {
		location, err := app.Export(ctx, opts.Export)
		if err != nil {
			return fmt.Errorf("can't export %s: %w", opts.Export, err)
		}
		log.Printf("[INFO] exported to %s", location)
	}

	if opts.Watch {
		err := app.Watch(ctx, func(episodes []podcast.EpisodeToPodcast) {
			fmt.Printf("--- %s\n", time.Now().Format(time.DateTime))
			printEpisodes(episodes)
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("watch failed: %w", err)
		}
	}
	return nil
}

func printEpisodes(episodes []podcast.EpisodeToPodcast) {
	for _, e := range episodes {
		title := strings.TrimSpace(e.Episode.Title)
		fmt.Printf("%s  %-30.30s  %s\n", e.Episode.Published.Local().Format(time.DateOnly), e.Podcast.Title, title)
	}
}

func serveMetrics(ctx context.Context, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Printf("[INFO] metrics on %s/metrics", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Printf("[WARN] metrics server failed, %v", err)
	}
}
