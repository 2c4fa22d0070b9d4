package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/loqalabs/loqa-reader/internal/reading"
)

// Marshal serializes a history as a JSON array without audio handles.
func Marshal(articles []reading.Article) ([]byte, error) {
	out := make([]reading.Article, len(articles))
	for i, a := range articles {
		out[i] = a.WithoutAudio()
	}
	return json.MarshalIndent(out, "", "  ")
}

// Unmarshal reads a history written by Marshal. Any audio handle present
// in the input is discarded.
func Unmarshal(data []byte) ([]reading.Article, error) {
	var articles []reading.Article
	if err := json.Unmarshal(data, &articles); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}
	for i := range articles {
		articles[i] = articles[i].WithoutAudio()
	}
	return articles, nil
}

func encodeArticle(a reading.Article) ([]byte, error) {
	return json.Marshal(a.WithoutAudio())
}

func decodeArticle(data []byte) (reading.Article, error) {
	var a reading.Article
	if err := json.Unmarshal(data, &a); err != nil {
		return reading.Article{}, fmt.Errorf("decode article: %w", err)
	}
	return a.WithoutAudio(), nil
}

// Export writes the whole history to w.
func (s *Store) Export(ctx context.Context, w io.Writer) error {
	articles, err := s.List(ctx, 0)
	if err != nil {
		return err
	}
	data, err := Marshal(articles)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// Import appends the articles read from r and returns how many were
// added. Articles whose ID is already present are skipped.
func (s *Store) Import(ctx context.Context, r io.Reader) (int, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return 0, fmt.Errorf("read history: %w", err)
	}
	articles, err := Unmarshal(data)
	if err != nil {
		return 0, err
	}
	added := 0
	for _, a := range articles {
		err := s.Append(ctx, a)
		switch {
		case errors.Is(err, ErrDuplicateID):
			continue
		case err != nil:
			return added, err
		}
		added++
	}
	return added, nil
}
