package proc

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	log "github.com/go-pkgz/lgr"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite" // sqlite driver for migrations
	"github.com/golang-migrate/migrate/v4/source/iofs"
	sqlbuilder "github.com/huandu/go-sqlbuilder"
	"github.com/samber/lo"
	_ "modernc.org/sqlite" // sqlite driver

	"podfeed/internal/app/podfeed/podcast"
)

// episodesPerInsert keeps bound parameters of one insert under the sqlite limit of 32766
const episodesPerInsert = 500

//go:embed migrations/*.sql
var migrations embed.FS

// Migrate runs the SQLite database migrations
func Migrate(dbPath string) error {
	d, err := iofs.New(migrations, "migrations")
	if err != nil {
		return err
	}

	m, err := migrate.NewWithSourceInstance("iofs", d, "sqlite://"+dbPath)
	if err != nil {
		return fmt.Errorf("can't create migrate instance: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("can't migrate %s: %w", dbPath, err)
	}
	return nil
}

// OpenSQLite migrates and opens the database file
func OpenSQLite(dbPath string) (*sql.DB, error) {
	if err := Migrate(dbPath); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", fmt.Sprintf("%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", dbPath))
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1) // SQLite only supports one writer at a time
	db.SetConnMaxLifetime(time.Hour)
	return db, nil
}

// SQLite store
type SQLite struct {
	DB *sql.DB
}

// NewSQLiteStorage makes storage on top of migrated sqlite db
func NewSQLiteStorage(db *sql.DB) *SQLite {
	return &SQLite{DB: db}
}

// SaveFeed saves podcast with its episodes and categories in one transaction
func (s *SQLite) SaveFeed(ctx context.Context, feed podcast.Feed) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() // nolint

	p := feed.Podcast
	ib := sqlbuilder.SQLite.NewInsertBuilder()
	ib.InsertInto("podcasts").Cols("uri", "title", "description", "author", "image_url", "copyright").
		Values(p.URI, p.Title, p.Description, p.Author, p.ImageURL, p.Copyright).
		SQL(`ON CONFLICT(uri) DO UPDATE SET title = excluded.title, description = excluded.description,
			author = excluded.author, image_url = excluded.image_url, copyright = excluded.copyright`)
	if err = exec(ctx, tx, ib); err != nil {
		return fmt.Errorf("can't save podcast %s: %w", p.URI, err)
	}

	for _, chunk := range lo.Chunk(feed.Episodes, episodesPerInsert) {
		ib = sqlbuilder.SQLite.NewInsertBuilder()
		ib.InsertInto("episodes").Cols("uri", "podcast_uri", "title", "subtitle", "summary", "author",
			"published", "published_nanos", "duration")
		for _, e := range chunk {
			ib.Values(e.URI, p.URI, e.Title, e.Subtitle, e.Summary, e.Author,
				e.Published.Unix(), e.Published.Nanosecond(), int64(e.Duration))
		}
		ib.SQL(`ON CONFLICT(podcast_uri, uri) DO UPDATE SET title = excluded.title, subtitle = excluded.subtitle,
			summary = excluded.summary, author = excluded.author, published = excluded.published,
			published_nanos = excluded.published_nanos, duration = excluded.duration`)
		if err = exec(ctx, tx, ib); err != nil {
			return fmt.Errorf("can't save episodes of %s: %w", p.URI, err)
		}
	}

	for _, c := range feed.Categories {
		ib = sqlbuilder.SQLite.NewInsertBuilder()
		ib.InsertIgnoreInto("categories").Cols("name").Values(c.Name)
		if err = exec(ctx, tx, ib); err != nil {
			return fmt.Errorf("can't save category %s: %w", c.Name, err)
		}

		ib = sqlbuilder.SQLite.NewInsertBuilder()
		ib.InsertIgnoreInto("podcast_category_entries").Cols("podcast_uri", "category").Values(p.URI, c.Name)
		if err = exec(ctx, tx, ib); err != nil {
			return fmt.Errorf("can't add %s to category %s: %w", p.URI, c.Name, err)
		}
	}

	log.Printf("[DEBUG] saved %s with %d episodes", p.URI, len(feed.Episodes))
	return tx.Commit()
}

// IsEmpty checks if any podcast stored
func (s *SQLite) IsEmpty(ctx context.Context) (bool, error) {
	var count int
	if err := s.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM podcasts").Scan(&count); err != nil {
		return false, err
	}
	return count == 0, nil
}

// Podcast get podcast by uri
func (s *SQLite) Podcast(ctx context.Context, uri string) (podcast.PodcastWithExtraInfo, error) {
	sb := podcastsQuery()
	sb.Where(sb.Equal("p.uri", uri))
	res, err := s.queryPodcasts(ctx, sb)
	if err != nil {
		return podcast.PodcastWithExtraInfo{}, err
	}
	if len(res) == 0 {
		return podcast.PodcastWithExtraInfo{}, fmt.Errorf("%s: %w", uri, ErrPodcastNotFound)
	}
	return res[0], nil
}

// PodcastsSortedByLastEpisode get all podcasts, the most recently updated first
func (s *SQLite) PodcastsSortedByLastEpisode(ctx context.Context, limit int) ([]podcast.PodcastWithExtraInfo, error) {
	sb := podcastsQuery()
	return s.queryPodcasts(ctx, sortedPodcasts(sb, limit))
}

// FollowedPodcastsSortedByLastEpisode get followed podcasts, the most recently updated first
func (s *SQLite) FollowedPodcastsSortedByLastEpisode(ctx context.Context, limit int) ([]podcast.PodcastWithExtraInfo, error) {
	sb := podcastsQuery()
	sb.Where(sb.IsNotNull("f.podcast_uri"))
	return s.queryPodcasts(ctx, sortedPodcasts(sb, limit))
}

// FollowPodcast marks podcast as followed
func (s *SQLite) FollowPodcast(ctx context.Context, uri string) error {
	exists, err := s.podcastExists(ctx, uri)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%s: %w", uri, ErrPodcastNotFound)
	}

	ib := sqlbuilder.SQLite.NewInsertBuilder()
	ib.InsertIgnoreInto("podcast_followed_entries").Cols("podcast_uri", "followed_at").Values(uri, time.Now().UnixNano())
	query, args := ib.Build()
	_, err = s.DB.ExecContext(ctx, query, args...)
	return err
}

// UnfollowPodcast removes follow mark
func (s *SQLite) UnfollowPodcast(ctx context.Context, uri string) error {
	db := sqlbuilder.SQLite.NewDeleteBuilder()
	db.DeleteFrom("podcast_followed_entries").Where(db.Equal("podcast_uri", uri))
	query, args := db.Build()
	_, err := s.DB.ExecContext(ctx, query, args...)
	return err
}

// ToggleFollowPodcast follows unfollowed podcast and the other way round
func (s *SQLite) ToggleFollowPodcast(ctx context.Context, uri string) (bool, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback() // nolint

	var exists, followed int
	err = tx.QueryRowContext(ctx, `SELECT COUNT(*), (SELECT COUNT(*) FROM podcast_followed_entries WHERE podcast_uri = ?)
		FROM podcasts WHERE uri = ?`, uri, uri).Scan(&exists, &followed)
	if err != nil {
		return false, err
	}
	if exists == 0 {
		return false, fmt.Errorf("%s: %w", uri, ErrPodcastNotFound)
	}

	var query string
	var args []any
	if followed > 0 {
		db := sqlbuilder.SQLite.NewDeleteBuilder()
		db.DeleteFrom("podcast_followed_entries").Where(db.Equal("podcast_uri", uri))
		query, args = db.Build()
	} else {
		ib := sqlbuilder.SQLite.NewInsertBuilder()
		ib.InsertInto("podcast_followed_entries").Cols("podcast_uri", "followed_at").Values(uri, time.Now().UnixNano())
		query, args = ib.Build()
	}
	if _, err = tx.ExecContext(ctx, query, args...); err != nil {
		return false, err
	}
	return followed == 0, tx.Commit()
}

// EpisodesInPodcast get latest episodes of podcast
func (s *SQLite) EpisodesInPodcast(ctx context.Context, uri string, limit int) ([]podcast.EpisodeToPodcast, error) {
	sb := episodesQuery()
	sb.Where(sb.Equal("e.podcast_uri", uri))
	return s.queryEpisodes(ctx, sortedEpisodes(sb, limit))
}

// CategoriesSortedByPodcastCount get categories with most podcasts first
func (s *SQLite) CategoriesSortedByPodcastCount(ctx context.Context, limit int) ([]podcast.Category, error) {
	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select("c.name").From("categories AS c").
		JoinWithOption(sqlbuilder.LeftJoin, "podcast_category_entries AS pc", "pc.category = c.name").
		GroupBy("c.name").OrderBy("COUNT(pc.podcast_uri) DESC", "c.name ASC")
	if limit > 0 {
		sb.Limit(limit)
	}

	query, args := sb.Build()
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query categories: %w", err)
	}
	defer rows.Close()

	res := []podcast.Category{}
	for rows.Next() {
		var c podcast.Category
		if err := rows.Scan(&c.Name); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

// PodcastsInCategorySortedByLastEpisode get podcasts of category, the most recently updated first
func (s *SQLite) PodcastsInCategorySortedByLastEpisode(ctx context.Context, category string, limit int) ([]podcast.PodcastWithExtraInfo, error) {
	sb := podcastsQuery()
	sb.Join("podcast_category_entries AS pc", "pc.podcast_uri = p.uri")
	sb.Where(sb.Equal("pc.category", category))
	return s.queryPodcasts(ctx, sortedPodcasts(sb, limit))
}

// EpisodesFromPodcastsInCategory get latest episodes of all podcasts in category
func (s *SQLite) EpisodesFromPodcastsInCategory(ctx context.Context, category string, limit int) ([]podcast.EpisodeToPodcast, error) {
	sb := episodesQuery()
	sb.Join("podcast_category_entries AS pc", "pc.podcast_uri = e.podcast_uri")
	sb.Where(sb.Equal("pc.category", category))
	return s.queryEpisodes(ctx, sortedEpisodes(sb, limit))
}

// Close sqlite db
func (s *SQLite) Close() error {
	return s.DB.Close()
}

func (s *SQLite) podcastExists(ctx context.Context, uri string) (bool, error) {
	var count int
	err := s.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM podcasts WHERE uri = ?", uri).Scan(&count)
	return count > 0, err
}

func podcastsQuery() *sqlbuilder.SelectBuilder {
	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select("p.uri", "p.title", "p.description", "p.author", "p.image_url", "p.copyright",
		lastEpisodeColumn("published", "last_published"),
		lastEpisodeColumn("published_nanos", "last_published_nanos"),
		"f.podcast_uri IS NOT NULL AS followed").
		From("podcasts AS p").
		JoinWithOption(sqlbuilder.LeftJoin, "podcast_followed_entries AS f", "f.podcast_uri = p.uri")
	return sb
}

// lastEpisodeColumn selects a column of the newest episode of the podcast
func lastEpisodeColumn(column, alias string) string {
	return fmt.Sprintf(`(SELECT e.%s FROM episodes AS e WHERE e.podcast_uri = p.uri
		ORDER BY e.published DESC, e.published_nanos DESC LIMIT 1) AS %s`, column, alias)
}

func sortedPodcasts(sb *sqlbuilder.SelectBuilder, limit int) *sqlbuilder.SelectBuilder {
	// podcasts without episodes go last, same as zero time in bolt
	sb.OrderBy("last_published IS NULL", "last_published DESC", "last_published_nanos DESC", "p.uri ASC")
	if limit > 0 {
		sb.Limit(limit)
	}
	return sb
}

func (s *SQLite) queryPodcasts(ctx context.Context, sb *sqlbuilder.SelectBuilder) ([]podcast.PodcastWithExtraInfo, error) {
	query, args := sb.Build()
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query podcasts: %w", err)
	}
	defer rows.Close()

	res := []podcast.PodcastWithExtraInfo{}
	for rows.Next() {
		var item podcast.PodcastWithExtraInfo
		var last, lastNanos sql.NullInt64
		p := &item.Podcast
		if err := rows.Scan(&p.URI, &p.Title, &p.Description, &p.Author, &p.ImageURL, &p.Copyright,
			&last, &lastNanos, &item.IsFollowed); err != nil {
			return nil, fmt.Errorf("scan podcast: %w", err)
		}
		if last.Valid {
			item.LastEpisodeDate = time.Unix(last.Int64, lastNanos.Int64).UTC()
		}
		res = append(res, item)
	}
	return res, rows.Err()
}

func episodesQuery() *sqlbuilder.SelectBuilder {
	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select("e.uri", "e.podcast_uri", "e.title", "e.subtitle", "e.summary", "e.author", "e.published", "e.published_nanos", "e.duration",
		"p.title", "p.description", "p.author", "p.image_url", "p.copyright").
		From("episodes AS e").
		Join("podcasts AS p", "p.uri = e.podcast_uri")
	return sb
}

func sortedEpisodes(sb *sqlbuilder.SelectBuilder, limit int) *sqlbuilder.SelectBuilder {
	sb.OrderBy("e.published DESC", "e.published_nanos DESC", "e.podcast_uri ASC", "e.uri ASC")
	if limit > 0 {
		sb.Limit(limit)
	}
	return sb
}

func (s *SQLite) queryEpisodes(ctx context.Context, sb *sqlbuilder.SelectBuilder) ([]podcast.EpisodeToPodcast, error) {
	query, args := sb.Build()
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query episodes: %w", err)
	}
	defer rows.Close()

	res := []podcast.EpisodeToPodcast{}
	for rows.Next() {
		var item podcast.EpisodeToPodcast
		var published, publishedNanos, duration int64
		e, p := &item.Episode, &item.Podcast
		if err := rows.Scan(&e.URI, &e.PodcastURI, &e.Title, &e.Subtitle, &e.Summary, &e.Author, &published, &publishedNanos, &duration,
			&p.Title, &p.Description, &p.Author, &p.ImageURL, &p.Copyright); err != nil {
			return nil, fmt.Errorf("scan episode: %w", err)
		}
		// seconds and nanos, UnixNano overflows outside of years 1678-2262
		e.Published = time.Unix(published, publishedNanos).UTC()
		e.Duration = time.Duration(duration)
		p.URI = e.PodcastURI
		res = append(res, item)
	}
	return res, rows.Err()
}

func exec(ctx context.Context, tx *sql.Tx, ib *sqlbuilder.InsertBuilder) error {
	query, args := ib.Build()
	_, err := tx.ExecContext(ctx, query, args...)
	return err
}
