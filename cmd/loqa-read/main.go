package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/loqalabs/loqa-reader/internal/audio"
	"github.com/loqalabs/loqa-reader/internal/config"
	"github.com/loqalabs/loqa-reader/internal/router"
	"github.com/loqalabs/loqa-reader/internal/runtime"
	"github.com/loqalabs/loqa-reader/internal/session"
)

var version = "0.1.0-dev"

const usage = "expected 'process', 'history', 'export', 'import' or 'version'"

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var err error
	switch os.Args[1] {
	case "process":
		err = runProcess(ctx, os.Args[2:])
	case "history":
		err = runHistory(ctx, os.Args[2:])
	case "export":
		err = runExport(ctx, os.Args[2:])
	case "import":
		err = runImport(ctx, os.Args[2:])
	case "version":
		fmt.Println(version)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", os.Args[1])
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runProcess(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("process", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	input := fs.String("input", "", "Article URL or text; '-' reads stdin")
	language := fs.String("language", "", "Target language")
	tone := fs.String("tone", "", "Tone of the rewrite")
	mode := fs.String("mode", "", "FULL or SUMMARY")
	voice := fs.String("voice", "", "Narration voice")
	key := fs.String("key", "", "Gemini API key")
	out := fs.String("out", "", "Write the narration to this WAV file")
	verbose := fs.Bool("v", false, "Verbose logging")
	_ = fs.Parse(args)

	text := *input
	if text == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
		text = string(data)
	}

	p, err := openPipeline(ctx, *configPath, *verbose)
	if err != nil {
		return err
	}
	defer p.Close()

	cfg, v, err := router.Resolve(p.Defaults, *language, *tone, *mode, *voice)
	if err != nil {
		return err
	}
	res, err := p.Orchestrator.Process(ctx, text, cfg, *key, session.WithVoice(v))
	if err != nil {
		return errors.New(session.UserMessage(err))
	}

	a := res.Article
	fmt.Printf("%s\n\n%s\n\n%s\n\n", a.Title, a.SummaryQuote, a.Content)
	fmt.Printf("id=%s source=%s language=%s reading_time=%dmin date=%s\n",
		a.ID, a.SourceName, a.LanguageCode, a.ReadingTimeMinutes, a.Date)
	if res.Warning != "" {
		fmt.Fprintln(os.Stderr, "warning:", res.Warning)
	}

	if *out != "" && a.AudioURL != "" {
		data, err := p.Registry.Open(a.AudioURL)
		if err != nil {
			return fmt.Errorf("narration expired: %w", err)
		}
		if err := os.WriteFile(*out, data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", *out, err)
		}
		if info, err := audio.Inspect(data); err == nil {
			fmt.Printf("wrote %s (%s, %d Hz)\n", *out, info.Duration.Round(time.Millisecond), info.SampleRate)
		}
	}
	return nil
}

func runHistory(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	limit := fs.Int("limit", 20, "Number of entries to show; 0 shows all")
	_ = fs.Parse(args)

	p, err := openPipeline(ctx, *configPath, false)
	if err != nil {
		return err
	}
	defer p.Close()

	articles, err := p.History.List(ctx, *limit)
	if err != nil {
		return err
	}
	if len(articles) == 0 {
		fmt.Println("history is empty")
		return nil
	}
	for _, a := range articles {
		fmt.Printf("%s  %s  %-8s %s\n", a.ID, a.CreatedAt.Format("2006-01-02 15:04"), a.LanguageCode, a.Title)
	}
	return nil
}

func runExport(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	file := fs.String("file", "", "Destination file; stdout when empty")
	_ = fs.Parse(args)

	p, err := openPipeline(ctx, *configPath, false)
	if err != nil {
		return err
	}
	defer p.Close()

	var w io.Writer = os.Stdout
	if *file != "" {
		f, err := os.Create(*file)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	return p.History.Export(ctx, w)
}

func runImport(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	file := fs.String("file", "", "History export to import")
	_ = fs.Parse(args)
	if *file == "" {
		return errors.New("-file is required")
	}

	f, err := os.Open(*file)
	if err != nil {
		return err
	}
	defer f.Close()

	p, err := openPipeline(ctx, *configPath, false)
	if err != nil {
		return err
	}
	defer p.Close()

	n, err := p.History.Import(ctx, f)
	if err != nil {
		return err
	}
	fmt.Printf("imported %d articles\n", n)
	return nil
}

func openPipeline(ctx context.Context, configPath string, verbose bool) (*runtime.Pipeline, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	level := slog.LevelWarn
	if verbose || strings.EqualFold(cfg.Telemetry.LogLevel, "debug") {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	return runtime.NewPipeline(ctx, cfg, nil, logger)
}
