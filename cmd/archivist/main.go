package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/pevans/archivist/archiver"
	"github.com/pevans/archivist/auth"
	"github.com/pevans/archivist/browser"
	"github.com/pevans/archivist/config"
	"github.com/pevans/archivist/fetcher"
	"github.com/pevans/archivist/journal"
	"github.com/pevans/archivist/logger"
)

// options hold the raw flag values. Only flags the user set override the
// configuration file.
type options struct {
	url         string
	limit       int
	premium     bool
	headless    bool
	browserPath string
	remoteURL   string
	userAgent   string
	output      string
	configPath  string
	logLevel    string
	logFormat   string
	journal     string
}

func newRootCmd() *cobra.Command {
	return newRootCmdWith(&options{})
}

func newRootCmdWith(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archivist",
		Short: "Archive a newsletter's posts as Markdown and HTML",
		Long: `Discovers every post of a site from its sitemap (or feed), fetches each
post anonymously or through a signed-in browser, and writes Markdown, an HTML
mirror, a JSON index and a browsable index page. Posts already archived are
skipped, so the command can be re-run to pick up new posts.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := buildConfig(cmd, opts)
			if err != nil {
				return err
			}
			return runArchive(cmd.Context(), cmd, cfg)
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "Config file (default ~/.archivist/config.yaml)")
	flags.StringVar(&opts.output, "output", "", "Directory that holds one folder per site")
	flags.StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	flags.StringVar(&opts.logFormat, "log-format", "", "Log format: console or json")
	flags.StringVar(&opts.journal, "journal", "", "Run journal database (default <output>/journal.db)")

	cmd.Flags().StringVarP(&opts.url, "url", "u", "", "Base URL of the site to archive")
	cmd.Flags().IntVarP(&opts.limit, "number", "n", 0, "Number of posts to process (0 for all)")
	cmd.Flags().BoolVarP(&opts.premium, "premium", "p", false, "Sign in to fetch subscriber-only posts")
	cmd.Flags().BoolVar(&opts.headless, "headless", false, "Run the browser without a window (premium only)")
	cmd.Flags().StringVar(&opts.browserPath, "browser-path", "", "Browser executable (premium only)")
	cmd.Flags().StringVar(&opts.remoteURL, "remote-url", "", "DevTools websocket of a running browser (premium only)")
	cmd.Flags().StringVar(&opts.userAgent, "user-agent", "", "User-Agent for requests and the browser")

	cmd.AddCommand(newHistoryCmd(opts))
	return cmd
}

// buildConfig layers the set flags over the file and environment.
func buildConfig(cmd *cobra.Command, opts *options) (config.Config, error) {
	path := opts.configPath
	if path == "" {
		p, err := config.DefaultPath()
		if err == nil {
			path = p
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		return cfg, err
	}

	changed := func(name string) bool {
		f := cmd.Flags().Lookup(name)
		return f != nil && f.Changed
	}
	if changed("url") {
		cfg.BaseURL = opts.url
	}
	if changed("number") {
		cfg.Limit = opts.limit
	}
	if changed("premium") {
		cfg.Premium = opts.premium
	}
	if changed("headless") {
		cfg.Headless = opts.headless
	}
	if changed("browser-path") {
		cfg.BrowserPath = opts.browserPath
	}
	if changed("remote-url") {
		cfg.RemoteURL = opts.remoteURL
	}
	if changed("user-agent") {
		cfg.UserAgent = opts.userAgent
	}
	if changed("output") {
		cfg.OutputDir = opts.output
	}
	if changed("log-level") {
		cfg.Log.Level = opts.logLevel
	}
	if changed("log-format") {
		cfg.Log.Format = opts.logFormat
	}
	if changed("journal") {
		cfg.JournalPath = opts.journal
	}
	if cfg.JournalPath == "" {
		cfg.JournalPath = filepath.Join(cfg.OutputDir, "journal.db")
	}

	return cfg, nil
}

func runArchive(ctx context.Context, cmd *cobra.Command, cfg config.Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	defer log.Sync()

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	f, err := newFetcher(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer f.Close()

	archiverOpts := []archiver.Option{archiver.WithLogger(log)}
	if err := os.MkdirAll(filepath.Dir(cfg.JournalPath), 0o755); err == nil {
		j, err := journal.Open(cfg.JournalPath)
		if err != nil {
			log.Warn("run journal unavailable", logger.String("path", cfg.JournalPath), logger.Error(err))
		} else {
			defer j.Close()
			archiverOpts = append(archiverOpts, archiver.WithJournal(j))
		}
	}

	a, err := archiver.New(cfg, f, archiverOpts...)
	if err != nil {
		return err
	}

	report, err := a.Run(ctx)
	if err != nil {
		log.Error("failed to write index", logger.Error(err))
	}
	if report != nil {
		printReport(cmd.OutOrStdout(), report, a.Store().Dir())
	}
	return nil
}

func newFetcher(ctx context.Context, cfg config.Config, log logger.Logger) (fetcher.Fetcher, error) {
	if !cfg.Premium {
		return fetcher.NewAnonymous(cfg.AnonymousOptions(), log), nil
	}

	chrome, err := browser.NewChrome(ctx, cfg.ChromeOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}
	f, err := fetcher.NewAuthenticated(ctx, chrome, cfg.AuthenticatedOptions(), log)
	if err != nil {
		if errors.Is(err, auth.ErrAuthentication) {
			log.Error("sign-in failed", logger.Error(err))
		}
		return nil, err
	}
	return f, nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
