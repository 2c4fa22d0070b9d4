package history

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/loqalabs/loqa-reader/internal/config"
	"github.com/loqalabs/loqa-reader/internal/reading"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func article(id string, created time.Time) reading.Article {
	return reading.Article{
		ID:                 id,
		OriginalURL:        "https://example.com/" + id,
		Title:              "Title " + id,
		SummaryQuote:       "Quote",
		Content:            "# Heading\n\nBody",
		ReadingTimeMinutes: 3,
		SourceName:         "Example",
		LanguageCode:       "FR",
		Date:               "16 octobre 2026",
		CreatedAt:          created,
		Config:             reading.DefaultConfiguration(),
		AudioURL:           "/audio/" + id + ".wav",
	}
}

func openStores(t *testing.T, maxItems int) map[string]*Store {
	t.Helper()
	persistent, err := Open(context.Background(), config.HistoryConfig{
		Path:          filepath.Join(t.TempDir(), "history.db"),
		RetentionMode: RetentionPersistent,
		MaxItems:      maxItems,
	}, newLogger())
	if err != nil {
		t.Fatalf("open persistent store: %v", err)
	}
	t.Cleanup(func() { _ = persistent.Close() })

	ephemeral, err := Open(context.Background(), config.HistoryConfig{RetentionMode: RetentionEphemeral, MaxItems: maxItems}, newLogger())
	if err != nil {
		t.Fatalf("open ephemeral store: %v", err)
	}
	return map[string]*Store{"persistent": persistent, "ephemeral": ephemeral}
}

func TestAppendListGet(t *testing.T) {
	base := time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)
	for name, store := range openStores(t, 0) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for i, id := range []string{"1", "2", "3"} {
				if err := store.Append(ctx, article(id, base.Add(time.Duration(i)*time.Minute))); err != nil {
					t.Fatalf("append %s: %v", id, err)
				}
			}
			list, err := store.List(ctx, 0)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(list) != 3 || list[0].ID != "3" || list[2].ID != "1" {
				t.Fatalf("expected most recent first, got %v", ids(list))
			}
			for _, a := range list {
				if a.AudioURL != "" {
					t.Fatalf("audio handle persisted for %s", a.ID)
				}
			}

			limited, _ := store.List(ctx, 2)
			if len(limited) != 2 || limited[0].ID != "3" {
				t.Fatalf("unexpected limited list %v", ids(limited))
			}

			got, err := store.Get(ctx, "2")
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if got.Title != "Title 2" || got.Config != reading.DefaultConfiguration() {
				t.Fatalf("unexpected article %+v", got)
			}
			if _, err := store.Get(ctx, "missing"); !errors.Is(err, reading.ErrArticleNotFound) {
				t.Fatalf("expected ErrArticleNotFound, got %v", err)
			}
		})
	}
}

func TestAppendRejectsDuplicate(t *testing.T) {
	now := time.Now()
	for name, store := range openStores(t, 0) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := store.Append(ctx, article("42", now)); err != nil {
				t.Fatalf("append: %v", err)
			}
			if err := store.Append(ctx, article("42", now)); !errors.Is(err, ErrDuplicateID) {
				t.Fatalf("expected ErrDuplicateID, got %v", err)
			}
			list, _ := store.List(ctx, 0)
			if len(list) != 1 {
				t.Fatalf("expected 1 article, got %d", len(list))
			}
		})
	}
}

func TestClearAndPrune(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for name, store := range openStores(t, 2) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for i, id := range []string{"a", "b", "c"} {
				if err := store.Append(ctx, article(id, base.Add(time.Duration(i)*time.Hour))); err != nil {
					t.Fatalf("append: %v", err)
				}
			}
			list, _ := store.List(ctx, 0)
			if len(list) != 2 || list[0].ID != "c" || list[1].ID != "b" {
				t.Fatalf("expected pruning to keep newest two, got %v", ids(list))
			}

			if err := store.SetAPIKey(ctx, "secret"); err != nil {
				t.Fatalf("set key: %v", err)
			}
			if err := store.Clear(ctx); err != nil {
				t.Fatalf("clear: %v", err)
			}
			list, _ = store.List(ctx, 0)
			if len(list) != 0 {
				t.Fatalf("expected empty history, got %v", ids(list))
			}
			if key, _ := store.APIKey(ctx); key != "secret" {
				t.Fatalf("clear must keep settings, got %q", key)
			}
		})
	}
}

func TestAPIKeySettings(t *testing.T) {
	for name, store := range openStores(t, 0) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if key, err := store.APIKey(ctx); err != nil || key != "" {
				t.Fatalf("expected no key, got %q %v", key, err)
			}
			_ = store.SetAPIKey(ctx, "one")
			_ = store.SetAPIKey(ctx, "two")
			if key, _ := store.APIKey(ctx); key != "two" {
				t.Fatalf("expected overwrite, got %q", key)
			}
			if err := store.ClearAPIKey(ctx); err != nil {
				t.Fatalf("clear key: %v", err)
			}
			if key, _ := store.APIKey(ctx); key != "" {
				t.Fatalf("expected cleared key, got %q", key)
			}
		})
	}
}

func TestMarshalRoundTripDropsAudio(t *testing.T) {
	created := time.Date(2026, 10, 16, 12, 30, 0, 0, time.UTC)
	in := []reading.Article{article("1", created), article("2", created.Add(time.Second))}
	in[1].OriginalURL = ""

	data, err := Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if strings.Contains(string(data), "audioUrl") {
		t.Fatalf("serialized history contains audio handle: %s", data)
	}
	out, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for i := range in {
		want := in[i].WithoutAudio()
		got := out[i]
		if !got.CreatedAt.Equal(want.CreatedAt) {
			t.Fatalf("created at mismatch: %v vs %v", got.CreatedAt, want.CreatedAt)
		}
		got.CreatedAt = want.CreatedAt
		if got != want {
			t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", got, want)
		}
	}

	withAudio := []byte(`[{"id":"9","title":"t","audioUrl":"/audio/x.wav"}]`)
	decoded, err := Unmarshal(withAudio)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded[0].AudioURL != "" {
		t.Fatal("audio handle must be discarded on read")
	}
}

func TestExportImport(t *testing.T) {
	stores := openStores(t, 0)
	src, dst := stores["persistent"], stores["ephemeral"]
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"x", "y"} {
		if err := src.Append(ctx, article(id, base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	_ = dst.Append(ctx, article("x", base))

	var buf bytes.Buffer
	if err := src.Export(ctx, &buf); err != nil {
		t.Fatalf("export: %v", err)
	}
	added, err := dst.Import(ctx, &buf)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if added != 1 {
		t.Fatalf("expected 1 new article, got %d", added)
	}
	list, _ := dst.List(ctx, 0)
	if len(list) != 2 || list[0].ID != "y" {
		t.Fatalf("unexpected imported history %v", ids(list))
	}
}

func TestReopenKeepsHistory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	cfg := config.HistoryConfig{Path: path, RetentionMode: RetentionPersistent, VacuumOnStart: true}
	ctx := context.Background()

	store, err := Open(ctx, cfg, newLogger())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := store.Append(ctx, article("1", time.Now())); err != nil {
		t.Fatalf("append: %v", err)
	}
	_ = store.Close()

	store, err = Open(ctx, cfg, newLogger())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer store.Close()
	if _, err := store.Get(ctx, "1"); err != nil {
		t.Fatalf("expected article to survive reopen: %v", err)
	}
}

func ids(list []reading.Article) []string {
	out := make([]string, len(list))
	for i, a := range list {
		out[i] = a.ID
	}
	return out
}
