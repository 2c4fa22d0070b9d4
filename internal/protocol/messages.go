package protocol

import "time"

// ArticleProcessed is announced after an article lands in history.
type ArticleProcessed struct {
	ArticleID    string    `json:"article_id"`
	Title        string    `json:"title"`
	SourceName   string    `json:"source_name"`
	OriginalURL  string    `json:"original_url,omitempty"`
	LanguageCode string    `json:"language_code"`
	Mode         string    `json:"mode"`
	Outcome      string    `json:"outcome"`
	HasAudio     bool      `json:"has_audio"`
	Warning      string    `json:"warning,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// ProcessRequest asks the reader to process input over the bus.
type ProcessRequest struct {
	Input    string `json:"input"`
	Language string `json:"language,omitempty"`
	Tone     string `json:"tone,omitempty"`
	Mode     string `json:"mode,omitempty"`
	Voice    string `json:"voice,omitempty"`
	APIKey   string `json:"api_key,omitempty"`
}

// ProcessReply answers a ProcessRequest. Error holds a category name when
// processing failed.
type ProcessReply struct {
	ArticleID string `json:"article_id,omitempty"`
	Title     string `json:"title,omitempty"`
	Outcome   string `json:"outcome,omitempty"`
	AudioURL  string `json:"audio_url,omitempty"`
	Warning   string `json:"warning,omitempty"`
	Error     string `json:"error,omitempty"`
	Message   string `json:"message,omitempty"`
}

const (
	SubjectArticleProcessed = "reader.article.processed"
	SubjectArticleProcess   = "reader.article.process"
)
