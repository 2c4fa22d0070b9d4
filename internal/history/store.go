package history

import (
	"cmp"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite"

	"github.com/loqalabs/loqa-reader/internal/config"
	"github.com/loqalabs/loqa-reader/internal/reading"
)

const (
	RetentionEphemeral  = "ephemeral"
	RetentionPersistent = "persistent"

	settingAPIKey = "api_key"
)

var ErrDuplicateID = errors.New("article id already in history")

// Store keeps processed articles most-recent-first. Audio handles are
// never persisted. In ephemeral mode nothing touches the disk.
type Store struct {
	db    *sql.DB
	cfg   config.HistoryConfig
	log   *slog.Logger
	clock func() time.Time

	mu       sync.Mutex
	mem      []reading.Article
	settings map[string]string
}

// Open initializes the store according to config.
func Open(ctx context.Context, cfg config.HistoryConfig, log *slog.Logger) (*Store, error) {
	log = log.With(slog.String("component", "history"))
	if cfg.RetentionMode == RetentionEphemeral {
		return &Store{cfg: cfg, log: log, clock: time.Now, settings: make(map[string]string)}, nil
	}

	dir := filepath.Dir(cfg.Path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, cfg: cfg, log: log, clock: time.Now}

	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	if cfg.VacuumOnStart {
		if err := s.vacuum(ctx); err != nil {
			log.Warn("history vacuum failed", slog.String("error", err.Error()))
		}
	}

	if err := s.Prune(ctx); err != nil {
		log.Warn("history prune on start failed", slog.String("error", err.Error()))
	}

	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS articles (
    id TEXT PRIMARY KEY,
    created_at INTEGER NOT NULL,
    payload TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_articles_created ON articles(created_at DESC);
CREATE TABLE IF NOT EXISTS settings (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

func (s *Store) vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// Close releases underlying resources.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Persistent reports whether the store writes to disk.
func (s *Store) Persistent() bool { return s.db != nil }

// Append adds an article at the head of the history. The audio handle is
// dropped and a duplicate ID is rejected.
func (s *Store) Append(ctx context.Context, article reading.Article) error {
	if article.ID == "" {
		return errors.New("article id must not be empty")
	}
	article = article.WithoutAudio()
	if article.CreatedAt.IsZero() {
		article.CreatedAt = s.clock().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		for _, a := range s.mem {
			if a.ID == article.ID {
				return fmt.Errorf("%w: %s", ErrDuplicateID, article.ID)
			}
		}
		s.mem = append(s.mem, article)
		sortRecentFirst(s.mem)
		s.pruneMemory()
		return nil
	}

	if err := s.insert(ctx, article); err != nil {
		return err
	}
	return s.pruneLocked(ctx)
}

func (s *Store) insert(ctx context.Context, article reading.Article) error {
	exists, err := s.exists(ctx, article.ID)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %s", ErrDuplicateID, article.ID)
	}
	payload, err := encodeArticle(article)
	if err != nil {
		return err
	}
	query, args, err := sq.Insert("articles").
		Columns("id", "created_at", "payload").
		Values(article.ID, article.CreatedAt.UnixMilli(), string(payload)).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert article: %w", err)
	}
	return nil
}

func (s *Store) exists(ctx context.Context, id string) (bool, error) {
	query, args, err := sq.Select("COUNT(1)").From("articles").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return false, err
	}
	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return false, fmt.Errorf("check article: %w", err)
	}
	return n > 0, nil
}

// List returns up to limit articles, most recent first. A limit <= 0
// returns everything.
func (s *Store) List(ctx context.Context, limit int) ([]reading.Article, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		n := len(s.mem)
		if limit > 0 && limit < n {
			n = limit
		}
		return slices.Clone(s.mem[:n]), nil
	}

	builder := sq.Select("payload").From("articles").OrderBy("created_at DESC", "id DESC")
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list articles: %w", err)
	}
	defer rows.Close()

	var out []reading.Article
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		a, err := decodeArticle([]byte(payload))
		if err != nil {
			s.log.Warn("skipping unreadable history entry", slog.String("error", err.Error()))
			continue
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Get returns one article or reading.ErrArticleNotFound.
func (s *Store) Get(ctx context.Context, id string) (reading.Article, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		for _, a := range s.mem {
			if a.ID == id {
				return a, nil
			}
		}
		return reading.Article{}, fmt.Errorf("%w: %s", reading.ErrArticleNotFound, id)
	}

	query, args, err := sq.Select("payload").From("articles").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return reading.Article{}, err
	}
	var payload string
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return reading.Article{}, fmt.Errorf("%w: %s", reading.ErrArticleNotFound, id)
	}
	if err != nil {
		return reading.Article{}, fmt.Errorf("get article: %w", err)
	}
	return decodeArticle([]byte(payload))
}

// Clear removes every article. Settings are kept.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		s.mem = nil
		return nil
	}
	query, args, err := sq.Delete("articles").ToSql()
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	return nil
}

// Prune keeps the max_items most recent articles.
func (s *Store) Prune(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		s.pruneMemory()
		return nil
	}
	return s.pruneLocked(ctx)
}

func (s *Store) pruneLocked(ctx context.Context) error {
	if s.cfg.MaxItems <= 0 {
		return nil
	}
	query, args, err := sq.Delete("articles").
		Where("id IN (SELECT id FROM articles ORDER BY created_at DESC, id DESC LIMIT -1 OFFSET ?)", s.cfg.MaxItems).
		ToSql()
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("prune history: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		s.log.Info("pruned history", slog.Int64("removed", n))
	}
	return nil
}

func (s *Store) pruneMemory() {
	if s.cfg.MaxItems > 0 && len(s.mem) > s.cfg.MaxItems {
		s.mem = s.mem[:s.cfg.MaxItems]
	}
}

func sortRecentFirst(articles []reading.Article) {
	slices.SortStableFunc(articles, func(a, b reading.Article) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
}

// SetAPIKey stores the user's key alongside the history.
func (s *Store) SetAPIKey(ctx context.Context, key string) error {
	return s.setSetting(ctx, settingAPIKey, key)
}

// APIKey returns the stored key, or "" when none was saved.
func (s *Store) APIKey(ctx context.Context) (string, error) {
	return s.setting(ctx, settingAPIKey)
}

func (s *Store) ClearAPIKey(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		delete(s.settings, settingAPIKey)
		return nil
	}
	query, args, err := sq.Delete("settings").Where(sq.Eq{"key": settingAPIKey}).ToSql()
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, query, args...)
	return err
}

func (s *Store) setSetting(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		s.settings[key] = value
		return nil
	}
	query, args, err := sq.Insert("settings").
		Columns("key", "value").
		Values(key, value).
		Suffix("ON CONFLICT(key) DO UPDATE SET value = excluded.value").
		ToSql()
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("save setting %s: %w", key, err)
	}
	return nil
}

func (s *Store) setting(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return s.settings[key], nil
	}
	query, args, err := sq.Select("value").From("settings").Where(sq.Eq{"key": key}).ToSql()
	if err != nil {
		return "", err
	}
	var value string
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read setting %s: %w", key, err)
	}
	return value, nil
}
