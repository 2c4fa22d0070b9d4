package prompt

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/loqalabs/loqa-reader/internal/reading"
)

const DefaultTemperature = 0.3

// Phrases that carry the fidelity contract of each mode. FULL and SUMMARY
// never share one.
const (
	FidelityClaim     = "Reproduce the COMPLETE source content with strict structural fidelity."
	CondensationClaim = "Write a CONDENSED synthesis of the source, not a structural mirror of it."
	RawJSONClaim      = "Return raw JSON only, no markdown fences, no commentary."
)

var languageNames = map[reading.Language]string{
	reading.French:   "French",
	reading.English:  "English",
	reading.Spanish:  "Spanish",
	reading.German:   "German",
	reading.Italian:  "Italian",
	reading.Japanese: "Japanese",
}

var toneGuides = map[reading.Tone]string{
	reading.Neutral:  "a neutral, journalistic tone",
	reading.Formal:   "a formal, polished tone",
	reading.Casual:   "a casual, conversational tone",
	reading.Academic: "a precise, academic tone",
}

// Builder turns user input into a content Request.
type Builder struct {
	Temperature float64
}

func NewBuilder(temperature float64) *Builder {
	if temperature <= 0 {
		temperature = DefaultTemperature
	}
	return &Builder{Temperature: temperature}
}

// Build uses the default temperature.
func Build(input string, cfg reading.Configuration) (Request, error) {
	return NewBuilder(DefaultTemperature).Build(input, cfg)
}

// IsURL reports whether input should be fetched through retrieval.
func IsURL(input string) bool {
	s := strings.ToLower(strings.TrimSpace(input))
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

func (b *Builder) Build(input string, cfg reading.Configuration) (Request, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, reading.ErrEmptyInput
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if IsURL(input) {
		var sb strings.Builder
		fmt.Fprintf(&sb, "Use the search tool to read the web page at %s.\n\n", input)
		writeContract(&sb, cfg)
		sb.WriteString("\nRespond with a single JSON object of exactly this shape:\n")
		sb.WriteString(jsonShape)
		sb.WriteString("\n")
		sb.WriteString(RawJSONClaim)
		sb.WriteString("\n")
		return FreeTextJSONRequest{
			instructions: sb.String(),
			url:          input,
			temperature:  b.Temperature,
			config:       cfg,
		}, nil
	}

	text := input
	if looksLikeHTML(text) {
		if extracted := readableText(text); extracted != "" {
			text = extracted
		}
	}

	var sb strings.Builder
	writeContract(&sb, cfg)
	sb.WriteString("\nSource text:\n\"\"\"\n")
	sb.WriteString(text)
	sb.WriteString("\n\"\"\"\n")
	return StructuredRequest{
		instructions: sb.String(),
		schema:       ArticleSchema(),
		temperature:  b.Temperature,
		config:       cfg,
	}, nil
}

const jsonShape = `{
  "title": string,
  "summaryQuote": string,
  "content": string (markdown),
  "readingTimeMinutes": integer,
  "sourceName": string
}`

func writeContract(sb *strings.Builder, cfg reading.Configuration) {
	lang := languageNames[cfg.Language]
	fmt.Fprintf(sb, "You are an expert editor and translator. Write everything in %s, using %s.\n", lang, toneGuides[cfg.Tone])

	switch cfg.Mode {
	case reading.ModeFull:
		sb.WriteString(FidelityClaim + "\n")
		sb.WriteString("- Keep every paragraph, heading and list exactly where it is; one output paragraph per source paragraph.\n")
		sb.WriteString("- Do not summarize, do not omit anything, do not merge or split paragraphs.\n")
		sb.WriteString("- Preserve markdown formatting verbatim. Only the language changes.\n")
	case reading.ModeSummary:
		sb.WriteString(CondensationClaim + "\n")
		sb.WriteString("- Keep only the key ideas, arguments and conclusions.\n")
		sb.WriteString("- Organize the summary with short markdown sections and bullet points.\n")
	}

	sb.WriteString("Also produce a title, a one or two sentence summaryQuote hook, ")
	sb.WriteString("an estimated readingTimeMinutes for the output and the sourceName of the publication.\n")
}

func looksLikeHTML(s string) bool {
	return strings.HasPrefix(s, "<") && strings.Contains(s, "</")
}

// readableText keeps the block-level text of an HTML fragment, one block
// per paragraph.
func readableText(fragment string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return ""
	}
	doc.Find("script, style, noscript, nav, footer").Remove()

	var blocks []string
	doc.Find("h1, h2, h3, h4, h5, h6, p, li, blockquote, pre").Each(func(_ int, sel *goquery.Selection) {
		if sel.ParentsFiltered("p, li, blockquote").Length() > 0 {
			return
		}
		if text := strings.TrimSpace(sel.Text()); text != "" {
			blocks = append(blocks, text)
		}
	})
	if len(blocks) == 0 {
		return strings.TrimSpace(doc.Text())
	}
	return strings.Join(blocks, "\n\n")
}
