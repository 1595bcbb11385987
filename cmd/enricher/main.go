package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/shpitdev/byline-enricher/internal/app"
	"github.com/shpitdev/byline-enricher/internal/article"
	"github.com/shpitdev/byline-enricher/internal/config"
	"github.com/shpitdev/byline-enricher/internal/logging"
	"github.com/shpitdev/byline-enricher/internal/version"
	"github.com/shpitdev/byline-enricher/pkg/pipeline/core"
	"github.com/shpitdev/byline-enricher/pkg/pipeline/io/local"
	"github.com/shpitdev/byline-enricher/pkg/pipeline/redact"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		usage(stderr)
		return 2
	}

	// A missing .env is normal; real environment variables win over it.
	_ = godotenv.Load()

	switch args[0] {
	case "help", "-h", "--help":
		usage(stdout)
		return 0
	case "version":
		_, _ = fmt.Fprintln(stdout, version.Current)
		return 0
	case "run":
		return runEnrich(ctx, args[1:], stderr)
	case "validate":
		return runValidate(ctx, args[1:], stdout, stderr)
	default:
		_, _ = fmt.Fprintf(stderr, "unknown command: %s\n\n", args[0])
		usage(stderr)
		return 2
	}
}

func runEnrich(ctx context.Context, args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", strings.TrimSpace(os.Getenv("CONFIG_FILE")), "YAML config file (env: CONFIG_FILE)")
	urlsPath := fs.String("urls", "", "File of article URLs: a CSV with a 'url' column, or one URL per line")
	urlList := fs.String("url-list", "", "Comma separated article URLs")
	articlesPath := fs.String("articles", "", "CSV of already extracted articles (url, title, author, source_domain, ...)")
	outputDir := fs.String("output", "", "Output directory (env: OUTPUT_DIR)")
	provider := fs.String("provider", "", "Lookup provider: rocketreach or gemini (env: LOOKUP_PROVIDER)")
	noLookup := fs.Bool("no-lookup", false, "Skip contact lookups and export article columns only")
	smtpCheck := fs.Bool("smtp", false, "Check each found address against its mail server (env: SMTP_CHECK)")
	xlsx := fs.Bool("xlsx", false, "Also write an Excel workbook (env: OUTPUT_XLSX)")
	workers := fs.Int("workers", 0, "Concurrent article extractions (env: EXTRACT_WORKERS)")
	failFast := fs.Bool("fail-fast", false, "Abort on the first URL that cannot be extracted (env: EXTRACT_FAIL_FAST)")
	logLevel := fs.String("log-level", "", "debug, info, warn or error (env: LOG_LEVEL)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "config error: %s\n", redact.Secrets(err.Error()))
		return 2
	}
	// Flags that were set explicitly override file and environment.
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "output":
			cfg.Output.Dir = *outputDir
		case "provider":
			cfg.Lookup.Provider = *provider
		case "no-lookup":
			cfg.Lookup.Enabled = !*noLookup
		case "smtp":
			cfg.Validation.SMTP = *smtpCheck
		case "xlsx":
			cfg.Output.XLSX = *xlsx
		case "workers":
			cfg.Extract.Workers = *workers
		case "fail-fast":
			cfg.Extract.FailFast = *failFast
		case "log-level":
			cfg.Log.Level = *logLevel
		}
	})
	if err := cfg.Validate(); err != nil {
		_, _ = fmt.Fprintf(stderr, "config error: %s\n", redact.Secrets(err.Error()))
		return 2
	}

	in, err := inputs(*urlsPath, *urlList, *articlesPath)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "%s\n\n", err)
		usage(stderr)
		return 2
	}

	if err := os.MkdirAll(cfg.Output.Dir, 0o755); err != nil {
		_, _ = fmt.Fprintf(stderr, "output dir error: %s\n", err)
		return 1
	}
	logger, err := logging.New(logging.Config{
		Level:       cfg.Log.Level,
		Development: cfg.Log.Development,
		OutputPaths: logOutputs(cfg),
	})
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "logger error: %s\n", err)
		return 2
	}
	defer func() {
		_ = logger.Sync()
	}()

	rep, err := app.Run(ctx, cfg, in, app.Deps{}, logger)
	if err != nil {
		msg := redact.Secrets(err.Error())
		logger.Error("run failed", zap.String("error", msg))
		_, _ = fmt.Fprintf(stderr, "run failed: %s\n", msg)
		return 1
	}

	_, _ = fmt.Fprintf(stderr, "Processed %d articles (%d failed), %d unique bylines, %d contacts found\n",
		rep.Articles, rep.ExtractFailed, rep.Enrich.Keys, rep.Enrich.Found)
	for _, p := range []string{rep.Artifacts.EnrichedCSV, rep.Artifacts.ContactsCSV, rep.Artifacts.Summary, rep.Artifacts.XLSX, rep.MetricsFile} {
		if p != "" {
			_, _ = fmt.Fprintf(stderr, "  wrote %s\n", p)
		}
	}
	return 0
}

func inputs(urlsPath, urlList, articlesPath string) (app.Inputs, error) {
	var in app.Inputs
	switch {
	case urlsPath != "" && urlList != "":
		return in, errors.New("--urls and --url-list are mutually exclusive")
	case urlsPath != "":
		in.URLs = local.URLFile(urlsPath)
	case urlList != "":
		list := local.SplitURLList(urlList)
		in.URLs = core.SourceFunc[string](func(context.Context) ([]string, error) { return list, nil })
	}
	if articlesPath != "" {
		in.Articles = core.SourceFunc[article.Record](func(context.Context) ([]article.Record, error) {
			f, err := os.Open(articlesPath)
			if err != nil {
				return nil, err
			}
			defer func() {
				_ = f.Close()
			}()
			return article.ReadCSV(f)
		})
	}
	if in.URLs == nil && in.Articles == nil {
		return in, errors.New("run requires --urls, --url-list or --articles")
	}
	return in, nil
}

func logOutputs(cfg config.Config) []string {
	out := []string{"stderr"}
	f := strings.TrimSpace(cfg.Log.File)
	if f == "" {
		return out
	}
	if !filepath.IsAbs(f) {
		f = filepath.Join(cfg.Output.Dir, f)
	}
	return append(out, f)
}

func runValidate(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", strings.TrimSpace(os.Getenv("CONFIG_FILE")), "YAML config file (env: CONFIG_FILE)")
	smtpCheck := fs.Bool("smtp", false, "Also ask the mail server (env: SMTP_CHECK)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		_, _ = fmt.Fprintln(stderr, "validate requires at least one email address")
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "config error: %s\n", redact.Secrets(err.Error()))
		return 2
	}
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "smtp" {
			cfg.Validation.SMTP = *smtpCheck
		}
	})

	logger, err := logging.New(logging.Config{Level: cfg.Log.Level, Development: cfg.Log.Development})
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "logger error: %s\n", err)
		return 2
	}
	defer func() {
		_ = logger.Sync()
	}()

	v := app.NewValidator(cfg, logger)
	tw := table.NewWriter()
	tw.SetOutputMirror(stdout)
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(table.Row{"Email", "Syntax", "MX", "SMTP", "Valid", "Reason"})
	results := v.ValidateAll(ctx, fs.Args(), cfg.Validation.SMTP)
	invalid := 0
	seen := make(map[string]bool, len(results))
	for _, email := range fs.Args() {
		res, ok := results[email]
		if !ok || seen[email] {
			continue
		}
		seen[email] = true
		if !res.Valid {
			invalid++
		}
		smtp := res.SMTPValid.String()
		if smtp == "" {
			smtp = "-"
		}
		tw.AppendRow(table.Row{email, res.SyntaxValid, res.MXValid, smtp, res.Valid, res.Reason})
	}
	tw.Render()
	if invalid > 0 {
		return 1
	}
	return 0
}

func usage(w io.Writer) {
	_, _ = fmt.Fprintf(w, `enricher: extract news articles and enrich their bylines with contact emails

Usage:
  enricher <command> [flags]

Commands:
  run       Extract articles, look up author contacts, validate emails and export
  validate  Check email addresses (syntax, MX, optional SMTP check)
  version   Print the version

Examples:
  enricher run --urls urls.txt --output output
  enricher run --articles articles.csv --smtp --xlsx
  enricher validate jane.doe@nytimes.com

Environment (lookup):
  LOOKUP_PROVIDER      rocketreach (default) or gemini
  LOOKUP_API_KEY       Lookup service API key (ROCKETREACH_API_KEY also accepted)
  LOOKUP_BASE_URL      Optional base URL override (proxies/testing)
  LOOKUP_RATE_LIMIT_RPS  Client-side request rate limit, 0 disables
  EXTRACT_RATE_LIMIT_RPS Page fetch rate limit across workers, 0 disables

Environment (Gemini):
  GEMINI_API_KEY       Gemini API key (provider=gemini)
  GEMINI_MODEL         Gemini model name (provider=gemini)
  GEMINI_GROUNDING     If true, let the model search the web

Environment (run):
  CONFIG_FILE          YAML config file; values here override it
  OUTPUT_DIR           Output directory (default: output)
  SMTP_CHECK           If true, check found addresses against mail servers
  LOG_LEVEL            debug, info, warn or error

A .env file in the working directory is loaded if present.

`)
}
