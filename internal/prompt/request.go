package prompt

import "github.com/loqalabs/loqa-reader/internal/reading"

// Request is what the content capability is asked to do. It is either a
// StructuredRequest or a FreeTextJSONRequest; schema enforcement and the
// retrieval tool cannot be combined, so the two shapes are distinct types.
type Request interface {
	Instructions() string
	// Schema is nil when the capability cannot enforce structured output.
	Schema() *Schema
	UseRetrieval() bool
	// Source is the URL to retrieve, empty for free text input.
	Source() string
	Temperature() float64
	Configuration() reading.Configuration

	sealed()
}

// StructuredRequest asks for schema-enforced JSON about literal input text.
type StructuredRequest struct {
	instructions string
	schema       *Schema
	temperature  float64
	config       reading.Configuration
}

func (r StructuredRequest) Instructions() string                 { return r.instructions }
func (r StructuredRequest) Schema() *Schema                      { return r.schema }
func (r StructuredRequest) UseRetrieval() bool                   { return false }
func (r StructuredRequest) Source() string                       { return "" }
func (r StructuredRequest) Temperature() float64                 { return r.temperature }
func (r StructuredRequest) Configuration() reading.Configuration { return r.config }
func (StructuredRequest) sealed()                                {}

// FreeTextJSONRequest enables retrieval and describes the JSON shape in
// prose. Replies may come back wrapped in code fences.
type FreeTextJSONRequest struct {
	instructions string
	url          string
	temperature  float64
	config       reading.Configuration
}

func (r FreeTextJSONRequest) Instructions() string                 { return r.instructions }
func (r FreeTextJSONRequest) Schema() *Schema                      { return nil }
func (r FreeTextJSONRequest) UseRetrieval() bool                   { return true }
func (r FreeTextJSONRequest) Source() string                       { return r.url }
func (r FreeTextJSONRequest) Temperature() float64                 { return r.temperature }
func (r FreeTextJSONRequest) Configuration() reading.Configuration { return r.config }
func (FreeTextJSONRequest) sealed()                                {}

// Schema is the subset of OpenAPI schema the content capability accepts.
type Schema struct {
	Type        string             `json:"type"`
	Description string             `json:"description,omitempty"`
	Properties  map[string]*Schema `json:"properties,omitempty"`
	Required    []string           `json:"required,omitempty"`
}

// Field names of the expected reply.
const (
	FieldTitle              = "title"
	FieldSummaryQuote       = "summaryQuote"
	FieldContent            = "content"
	FieldReadingTimeMinutes = "readingTimeMinutes"
	FieldSourceName         = "sourceName"
)

// RequiredFields lists every field of the reply; none are optional.
var RequiredFields = []string{FieldTitle, FieldSummaryQuote, FieldContent, FieldReadingTimeMinutes, FieldSourceName}

// ArticleSchema describes the reply object.
func ArticleSchema() *Schema {
	return &Schema{
		Type: "OBJECT",
		Properties: map[string]*Schema{
			FieldTitle:              {Type: "STRING", Description: "Title of the article in the target language."},
			FieldSummaryQuote:       {Type: "STRING", Description: "One or two sentence hook summarizing the article."},
			FieldContent:            {Type: "STRING", Description: "Article body in markdown."},
			FieldReadingTimeMinutes: {Type: "INTEGER", Description: "Estimated reading time in minutes."},
			FieldSourceName:         {Type: "STRING", Description: "Name of the publication or website."},
		},
		Required: append([]string(nil), RequiredFields...),
	}
}
