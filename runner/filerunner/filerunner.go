// Package filerunner wires the whole pipeline together for CLI runs: a
// playwright driver behind a context pool, the tiered result cache, the
// rate-limited enricher, and the orchestrator, with CSV or JSON output.
package filerunner

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kryptonlabs/leadscraper/browser"
	"github.com/kryptonlabs/leadscraper/cache"
	"github.com/kryptonlabs/leadscraper/cache/postgres"
	"github.com/kryptonlabs/leadscraper/cache/sqlite"
	"github.com/kryptonlabs/leadscraper/enrich"
	"github.com/kryptonlabs/leadscraper/extract"
	"github.com/kryptonlabs/leadscraper/leads"
	"github.com/kryptonlabs/leadscraper/ratelimit"
	"github.com/kryptonlabs/leadscraper/runner"
	"github.com/kryptonlabs/leadscraper/scraper"
	"github.com/kryptonlabs/leadscraper/selectors"
	"github.com/kryptonlabs/leadscraper/tlmt"
)

type fileRunner struct {
	cfg     *runner.Config
	logger  *slog.Logger
	queries []scraper.Query

	out     io.Writer
	outfile *os.File

	driver browser.Driver
	pool   *browser.Pool
	store  cache.Store
	orch   *scraper.Orchestrator
}

func New(cfg *runner.Config) (runner.Runner, error) {
	if cfg.RunMode != runner.RunModeFile {
		return nil, fmt.Errorf("%w: %d", runner.ErrInvalidRunMode, cfg.RunMode)
	}

	ans := &fileRunner{
		cfg:    cfg,
		logger: slog.Default(),
	}

	if err := ans.setQueries(); err != nil {
		return nil, err
	}

	if err := ans.setOutput(); err != nil {
		return nil, err
	}

	if err := ans.setPipeline(); err != nil {
		return nil, err
	}

	return ans, nil
}

func (r *fileRunner) Run(ctx context.Context) (err error) {
	runID := uuid.New().String()
	t0 := time.Now().UTC()

	var collected int

	defer func() {
		params := map[string]any{
			"run_id":      runID,
			"query_count": len(r.queries),
			"lead_count":  collected,
			"duration":    time.Now().UTC().Sub(t0).String(),
		}

		if err != nil {
			params["error"] = err.Error()
		}

		_ = runner.Telemetry().Send(ctx, tlmt.NewEvent("file_runner", params))
	}()

	var all []leads.Lead

	for _, query := range r.queries {
		r.logger.Info("scraping", "run_id", runID,
			"business_type", query.BusinessType, "location", query.Location)

		found, err := r.orch.Scrape(ctx, query)
		if err != nil {
			return err
		}

		all = append(all, found...)
	}

	collected = len(all)

	if err := r.write(all); err != nil {
		return err
	}

	r.printSummary(all)

	return nil
}

func (r *fileRunner) Close(context.Context) error {
	if r.pool != nil {
		r.pool.Close()
	}

	if r.driver != nil {
		_ = r.driver.Close()
	}

	if r.store != nil {
		_ = r.store.Close()
	}

	if r.outfile != nil {
		return r.outfile.Close()
	}

	return nil
}

func (r *fileRunner) setQueries() error {
	if r.cfg.InputFile == "" {
		r.queries = []scraper.Query{{
			BusinessType: r.cfg.BusinessType,
			Location:     r.cfg.Location,
			MaxResults:   r.cfg.MaxResults,
		}}

		return nil
	}

	var input io.Reader

	switch r.cfg.InputFile {
	case "stdin":
		input = os.Stdin
	default:
		f, err := os.Open(r.cfg.InputFile)
		if err != nil {
			return err
		}
		defer f.Close()

		input = f
	}

	scanner := bufio.NewScanner(input)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		category, location, ok := strings.Cut(line, "|")
		if !ok {
			return fmt.Errorf("invalid query line (want 'category|location'): %q", line)
		}

		r.queries = append(r.queries, scraper.Query{
			BusinessType: category,
			Location:     location,
			MaxResults:   r.cfg.MaxResults,
		})
	}

	if err := scanner.Err(); err != nil {
		return err
	}

	if len(r.queries) == 0 {
		return fmt.Errorf("no queries in %s", r.cfg.InputFile)
	}

	return nil
}

func (r *fileRunner) setOutput() error {
	switch r.cfg.ResultsFile {
	case "stdout":
		r.out = os.Stdout
	default:
		f, err := os.Create(r.cfg.ResultsFile)
		if err != nil {
			return err
		}

		r.outfile = f
		r.out = f
	}

	// UTF-8 BOM so Excel detects the encoding of exported CSV files.
	if !r.cfg.JSON && r.outfile != nil {
		if _, err := r.out.Write([]byte{0xEF, 0xBB, 0xBF}); err != nil {
			return fmt.Errorf("failed to write UTF-8 BOM: %w", err)
		}
	}

	return nil
}

func (r *fileRunner) setPipeline() error {
	driver, err := browser.NewPlaywright(browser.PlaywrightOptions{
		Headless: !r.cfg.Debug,
		Proxies:  r.cfg.Proxies,
	})
	if err != nil {
		return err
	}

	r.driver = driver

	// One extra context beyond the worker cap for the results page itself.
	pool, err := browser.NewPool(context.Background(), driver, r.cfg.Concurrency+1)
	if err != nil {
		return err
	}

	r.pool = pool
	r.store = r.openStore()

	cacheOpts := []cache.Option{
		cache.WithQueryTTL(r.cfg.QueryTTL),
		cache.WithWebsiteTTL(r.cfg.WebsiteTTL),
		cache.WithLogger(r.logger),
	}

	if r.store != nil {
		cacheOpts = append(cacheOpts, cache.WithStore(r.store))
	}

	results := cache.New(cacheOpts...)

	catalog := selectors.Default()
	extractor := extract.New(catalog, r.logger)

	enricher := enrich.New(
		enrich.WithLimiter(ratelimit.New()),
		enrich.WithLogger(r.logger),
	)

	processor := scraper.NewProcessor(extractor, enricher,
		scraper.WithContactCache(results),
		scraper.WithProcessorLogger(r.logger),
	)

	orchOpts := []scraper.OrchestratorOption{
		scraper.WithResultCache(results),
		scraper.WithMaxInFlight(r.cfg.Concurrency),
		scraper.WithLogger(r.logger),
	}

	if r.cfg.PlacesAPIKey != "" {
		orchOpts = append(orchOpts, scraper.WithPlacesFallback(scraper.NewPlacesClient(r.cfg.PlacesAPIKey)))
	}

	r.orch = scraper.NewOrchestrator(pool, catalog, processor, orchOpts...)

	return nil
}

// openStore picks the durable cache tier. A store failure is not fatal; the
// run degrades to the memory tier.
func (r *fileRunner) openStore() cache.Store {
	if r.cfg.DatabaseURL != "" {
		store, err := postgres.New(r.cfg.DatabaseURL)
		if err != nil {
			r.logger.Warn("postgres cache unavailable, continuing without durable tier", "err", err)

			return nil
		}

		_ = store.Purge(context.Background(), time.Now())

		return store
	}

	store, err := sqlite.New(r.cfg.CacheFile)
	if err != nil {
		r.logger.Warn("sqlite cache unavailable, continuing without durable tier", "err", err)

		return nil
	}

	_ = store.Purge(context.Background(), time.Now())

	return store
}

func (r *fileRunner) write(all []leads.Lead) error {
	if r.cfg.JSON {
		enc := json.NewEncoder(r.out)

		for i := range all {
			if err := enc.Encode(&all[i]); err != nil {
				return err
			}
		}

		return nil
	}

	w := csv.NewWriter(r.out)

	if err := w.Write(leads.CsvHeaders()); err != nil {
		return err
	}

	for i := range all {
		if err := w.Write(all[i].CsvRow()); err != nil {
			return err
		}
	}

	w.Flush()

	return w.Error()
}

func (r *fileRunner) printSummary(all []leads.Lead) {
	summary := leads.Summarize(all)

	fmt.Fprintf(os.Stderr, "\n%d leads (%d with website, %d with email, %d with phone)\n",
		summary.Total, summary.WithWebsite, summary.WithEmail, summary.WithPhone)
	fmt.Fprintf(os.Stderr, "quality: %d high / %d medium / %d low\n",
		summary.HighQuality, summary.MediumQuality, summary.LowQuality)
}
