package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/lithammer/dedent"
	"github.com/raine/visual-tagger/config"
	"github.com/raine/visual-tagger/internal/analyzer"
	"github.com/raine/visual-tagger/internal/batch"
	"github.com/raine/visual-tagger/internal/llm"
	"github.com/raine/visual-tagger/internal/preview"
	"github.com/raine/visual-tagger/internal/session"
	"github.com/raine/visual-tagger/internal/storage"
	"github.com/raine/visual-tagger/internal/validate"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const apiKeyCredential = "api_key"

// fmtMsg formats a multi-line message with the indentation stripped.
func fmtMsg(text string, a ...any) string {
	return fmt.Sprintf(strings.TrimSpace(dedent.Dedent(text)), a...)
}

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	config.LoadEnvFile()
	cfg := config.FromEnv()

	var (
		flagService     = flag.String("service", cfg.ServiceURL, "base URL of the analysis service")
		flagBackend     = flag.String("backend", cfg.Backend, "analyzer backend: http or gemini")
		flagConcurrency = flag.Int("concurrency", cfg.Concurrency, "max concurrent analyses")
		flagAttempts    = flag.Int("attempts", cfg.MaxAttempts, "attempt budget per image, including the first try")
		flagBaseDelay   = flag.Duration("base-delay", cfg.BaseDelay, "backoff after the first failed attempt")
		flagNoCache     = flag.Bool("no-cache", !cfg.CacheEnabled, "disable the tag result cache")
		flagHealth      = flag.Bool("health", false, "check the analysis service health and exit")
		flagRetryFailed = flag.Bool("retry-failed", false, "re-run items that failed with a retryable error once more")
		flagSetAPIKey   = flag.String("set-api-key", "", "store the service API key encrypted and exit")
		flagVerbose     = flag.Bool("verbose", false, "enable debug logging")
	)
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, fmtMsg(`
			Usage: %s [flags] <image files...>

			Submits images to a visual content analysis service and prints
			descriptive tags with confidence scores for each one.
		`, filepath.Base(os.Args[0])))
		fmt.Fprintln(os.Stderr)
		flag.PrintDefaults()
	}
	flag.Parse()

	if *flagVerbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var store storage.Store
	if !*flagNoCache || *flagSetAPIKey != "" || cfg.CredentialKey != "" {
		sqliteStore, err := storage.NewSQLiteStore(cfg.DBPath, storage.DeriveKey(cfg.CredentialKey))
		if err != nil {
			log.Fatal().Err(err).Str("dbPath", cfg.DBPath).Msg("failed to open store")
		}
		defer sqliteStore.Close()
		store = sqliteStore
	}

	if *flagSetAPIKey != "" {
		if cfg.CredentialKey == "" {
			log.Fatal().Msg("TAGGER_CREDENTIAL_KEY must be set to store credentials")
		}
		if err := store.SetCredential(apiKeyCredential, *flagSetAPIKey); err != nil {
			log.Fatal().Err(err).Msg("failed to store API key")
		}
		fmt.Println("API key stored")
		return
	}

	tagAnalyzer, client := buildAnalyzer(ctx, store, analyzerOpts{
		serviceURL:  *flagService,
		backend:     *flagBackend,
		noCache:     *flagNoCache,
		maxAttempts: *flagAttempts,
		baseDelay:   *flagBaseDelay,
	})

	if *flagHealth {
		if client == nil {
			log.Fatal().Msg("health check requires the http backend")
		}
		health, err := client.Health(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("health check failed")
		}
		fmt.Printf("service status: %s\n", health.Status)
		return
	}

	files := flag.Args()
	if len(files) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	previews, err := preview.NewTempFileProvider()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create preview provider")
	}
	defer previews.Close()

	sess := session.NewStore(previews)
	defer sess.Clear()

	items := submitFiles(sess, files)
	if len(items) == 0 {
		log.Fatal().Msg("no valid images to analyze")
	}

	orch := batch.NewOrchestrator(tagAnalyzer, *flagConcurrency)
	summary := runBatch(ctx, orch, sess, items)

	if *flagRetryFailed {
		retryItems := collectRetryable(sess)
		if len(retryItems) > 0 {
			log.Info().Int("count", len(retryItems)).Msg("retrying failed items")
			retrySummary := runBatch(ctx, orch, sess, retryItems)
			summary.Succeeded += retrySummary.Succeeded
			summary.Failed = retrySummary.Failed + (summary.Failed - retrySummary.Total)
		}
	}

	printResults(sess.Snapshot())
	printSummary(summary)

	if summary.Failed > 0 {
		sess.Clear()
		os.Exit(1)
	}
}

type analyzerOpts struct {
	serviceURL  string
	backend     string
	noCache     bool
	maxAttempts int
	baseDelay   time.Duration
}

// buildAnalyzer assembles the analyzer chain: backend, optional cache, retry.
// The returned client is non-nil only for the http backend.
func buildAnalyzer(ctx context.Context, store storage.Store, opts analyzerOpts) (analyzer.Analyzer, *analyzer.Client) {
	var base analyzer.Analyzer
	var client *analyzer.Client

	switch opts.backend {
	case "gemini":
		gemini, err := llm.NewGeminiAnalyzer(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize gemini analyzer")
		}
		base = gemini
	case "http":
		clientOpts := analyzer.ClientOpts{BaseURL: opts.serviceURL}
		if store != nil {
			key, err := store.GetCredential(apiKeyCredential)
			if err != nil {
				log.Warn().Err(err).Msg("failed to read stored API key")
			} else {
				clientOpts.APIKey = key
			}
		}
		client = analyzer.NewClient(clientOpts)
		base = client
	default:
		log.Fatal().Str("backend", opts.backend).Msg("unknown backend (use http or gemini)")
	}

	if !opts.noCache && store != nil {
		base = analyzer.NewCachedAnalyzer(base, store)
	}

	retryCfg := analyzer.RetryConfig{
		MaxAttempts: opts.maxAttempts,
		BaseDelay:   opts.baseDelay,
	}
	return analyzer.NewRetryingAnalyzer(base, retryCfg), client
}

// submitFiles validates and submits each file, returning the batch items for
// the ones that were accepted.
func submitFiles(sess *session.Store, files []string) []batch.Item {
	var items []batch.Item
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			log.Error().Err(err).Str("path", path).Msg("failed to read file")
			continue
		}
		name := filepath.Base(path)

		if result := validate.File(name, data); !result.Valid {
			for _, msg := range result.Errors {
				fmt.Fprintf(os.Stderr, "%s: %s\n", name, msg)
			}
			continue
		}

		item, err := sess.Submit(name, data)
		if err != nil {
			log.Error().Err(err).Str("name", name).Msg("failed to submit file")
			continue
		}
		items = append(items, batch.Item{ID: item.ID, Name: item.Name, Data: item.Data})
	}
	return items
}

// runBatch runs the orchestrator with hooks wired into the session store and
// a progress line on stderr.
func runBatch(ctx context.Context, orch *batch.Orchestrator, sess *session.Store, items []batch.Item) batch.Summary {
	summary := orch.Run(ctx, items, batch.Hooks{
		ItemStarted: sess.Dispatch,
		ItemSettled: func(id string, outcome batch.Outcome) {
			if outcome.Succeeded() {
				sess.SettleSuccess(id, outcome.Analysis)
			} else {
				sess.SettleFailure(id, outcome.Err)
			}
		},
		Progress: func(fraction float64) {
			fmt.Fprintf(os.Stderr, "\ranalyzing... %3.0f%%", fraction*100)
		},
	})
	fmt.Fprintln(os.Stderr)
	return summary
}

// collectRetryable requests a retry for every failed item whose last error
// was retryable, and returns the corresponding batch items.
func collectRetryable(sess *session.Store) []batch.Item {
	var items []batch.Item
	for _, item := range sess.Snapshot() {
		if item.State != session.StateFailed || item.Err == nil || !item.Err.Retryable {
			continue
		}
		if err := sess.RequestRetry(item.ID); err != nil {
			log.Warn().Err(err).Str("id", item.ID).Msg("retry rejected")
			continue
		}
		items = append(items, batch.Item{ID: item.ID, Name: item.Name, Data: item.Data})
	}
	return items
}

func printResults(items []session.Item) {
	for _, item := range items {
		switch item.State {
		case session.StateTagged:
			fmt.Printf("\n%s (%dx%d, %.2fs, %s)\n", item.Name, item.Result.Width, item.Result.Height, item.Result.ProcessingTime, item.Result.Model)
			for _, tag := range item.Result.Tags {
				fmt.Printf("  %5.1f%%  %s\n", tag.Confidence*100, tag.Label)
			}
		case session.StateFailed:
			retryHint := ""
			if item.Err.Retryable {
				retryHint = " (retryable)"
			}
			fmt.Printf("\n%s: failed%s: %s\n", item.Name, retryHint, item.Err.Message)
		}
	}
}

func printSummary(summary batch.Summary) {
	fmt.Println()
	fmt.Println(fmtMsg(`
		analyzed %d image(s): %d tagged, %d failed
		average processing time: %.2fs
	`, summary.Total, summary.Succeeded, summary.Failed, summary.AvgProcessingTime))
}
