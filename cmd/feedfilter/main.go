// Command feedfilter hides unwanted activity categories from a LinkedIn
// feed driven through Chrome.
//
// Usage:
//
//	feedfilter -config feedfilter.yaml              # run from YAML config
//	feedfilter -url https://www.linkedin.com/feed/  # run with defaults
//	feedfilter -exclude promoted_post,group_post    # store filters and exit
//	feedfilter -show-filters                        # print the stored filters
//	feedfilter -classify page.html                  # classify saved markup, "-" reads stdin
//	feedfilter -mcp                                 # serve MCP tools on stdio
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/feedfilter"
	"github.com/hazyhaar/feedfilter/activity"
)

var version = "dev"

type options struct {
	configPath  string
	url         string
	dbPath      string
	classify    string
	exclude     string
	showFilters bool
	httpListen  string
	mcp         bool
	headful     bool
}

func main() {
	var o options
	flag.StringVar(&o.configPath, "config", "", "path to feedfilter.yaml config file")
	flag.StringVar(&o.url, "url", "", "feed URL to open (overrides config)")
	flag.StringVar(&o.dbPath, "db", "", "SQLite database path (overrides config)")
	flag.StringVar(&o.classify, "classify", "", "classify an HTML file (- for stdin) and exit")
	flag.StringVar(&o.exclude, "exclude", "", "store a comma-separated exclusion set and exit; \"none\" clears it")
	flag.BoolVar(&o.showFilters, "show-filters", false, "print every category with its state and exit")
	flag.StringVar(&o.httpListen, "http", "", "preference panel listen address (overrides config)")
	flag.BoolVar(&o.mcp, "mcp", false, "serve MCP tools on stdin/stdout instead of driving the browser")
	flag.BoolVar(&o.headful, "headful", false, "show the Chrome window")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, o); err != nil {
		logger.Error("feedfilter: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, o options) error {
	cfg, err := loadConfig(o)
	if err != nil {
		return err
	}

	if o.classify != "" {
		return runClassify(cfg, o.classify)
	}

	f, err := feedfilter.New(cfg, logger)
	if err != nil {
		return err
	}
	defer f.Stop()

	switch {
	case o.exclude != "":
		return runExclude(ctx, f, o.exclude)
	case o.showFilters:
		return printJSON(f.Categories(ctx))
	case o.mcp:
		return runMCP(ctx, f)
	}
	return runFeed(ctx, logger, f, cfg)
}

func loadConfig(o options) (*feedfilter.Config, error) {
	cfg := feedfilter.DefaultConfig()
	if o.configPath != "" {
		c, err := feedfilter.LoadConfigFile(o.configPath)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg = c
	}
	if o.url != "" {
		cfg.Feed.URL = o.url
	}
	if o.dbPath != "" {
		cfg.Storage.DBPath = o.dbPath
	}
	if o.httpListen != "" {
		cfg.HTTP.Listen = o.httpListen
	}
	if o.headful {
		cfg.Browser.Headful = true
	}
	return cfg, nil
}

func runClassify(cfg *feedfilter.Config, path string) error {
	var r io.Reader = os.Stdin
	if path != "-" {
		fh, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("classify: %w", err)
		}
		defer fh.Close()
		r = fh
	}
	sel, err := activity.Compile(cfg.Feed.ActivitySelector)
	if err != nil {
		return fmt.Errorf("classify: %w", err)
	}
	res, err := feedfilter.Classify(r, sel)
	if err != nil {
		return fmt.Errorf("classify: %w", err)
	}
	return printJSON(res)
}

func runExclude(ctx context.Context, f *feedfilter.Filter, list string) error {
	var ids []string
	if list == "none" {
		list = ""
	}
	for _, id := range strings.Split(list, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	set, bad := activity.ParseExclusionSet(ids)
	if len(bad) > 0 {
		return fmt.Errorf("unrecognized categories: %s", strings.Join(bad, ", "))
	}
	if err := f.StoreFilters(ctx, set); err != nil {
		return err
	}
	return printJSON(f.Categories(ctx))
}

func runMCP(ctx context.Context, f *feedfilter.Filter) error {
	srv := mcp.NewServer(&mcp.Implementation{Name: "feedfilter", Version: version}, nil)
	f.RegisterMCP(srv)
	if err := srv.Run(ctx, &mcp.StdioTransport{}); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("mcp: %w", err)
	}
	return nil
}

func runFeed(ctx context.Context, logger *slog.Logger, f *feedfilter.Filter, cfg *feedfilter.Config) error {
	if err := f.Start(ctx); err != nil {
		return fmt.Errorf("start: %w", err)
	}

	var srv *http.Server
	if cfg.HTTP.Listen != "" {
		srv = &http.Server{
			Addr:              cfg.HTTP.Listen,
			Handler:           f.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("feedfilter: preference panel listening", "addr", cfg.HTTP.Listen)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("feedfilter: http server", "error", err)
			}
		}()
	}

	<-ctx.Done()

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
