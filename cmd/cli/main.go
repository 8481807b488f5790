package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"comoview/internal/config"
	"comoview/internal/filter"
	"comoview/internal/loader"
	"comoview/internal/logging"
	"comoview/internal/search"
	"comoview/internal/storage"
	"comoview/internal/version"
)

var errNothingLoaded = errors.New("no file could be loaded")

type cliOptions struct {
	includes    []string
	excludes    []string
	query       string
	maxOpenDirs int
	configPath  string
	logLevel    string
	countOnly   bool
	verbose     bool
	noProgress  bool
}

func newRootCmd() *cobra.Command {
	opts := &cliOptions{}
	cmd := &cobra.Command{
		Use:   "como [paths...]",
		Short: "Merge, filter and search large log collections",
		Long: `Loads log files, directories and globs into one chronologically merged
stream, then prints the lines that pass the filters or the matches of a search.
Example: como -i error -x healthcheck -s timeout /var/log/app "logs/**/*.log"`,
		Version:       version.String(),
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			// Handle Ctrl+C
			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(sigChan)
			go func() {
				select {
				case <-sigChan:
					fmt.Fprintln(cmd.ErrOrStderr(), "\nLoad interrupted by user")
					cancel()
				case <-ctx.Done():
				}
			}()

			return run(ctx, cmd, opts, args)
		},
	}

	f := cmd.Flags()
	f.StringSliceVarP(&opts.includes, "include", "i", nil, "Show only lines containing this text (repeatable)")
	f.StringSliceVarP(&opts.excludes, "exclude", "x", nil, "Hide lines containing this text (repeatable)")
	f.StringVarP(&opts.query, "search", "s", "", "Print every match of this text as line:start-end")
	f.IntVar(&opts.maxOpenDirs, "max-open-dirs", 0, "Maximum directory handles held during discovery (default from config or "+config.EnvMaxOpenDirs+")")
	f.StringVar(&opts.configPath, "config", "", "Config file (default ~/.config/como/config.toml)")
	f.StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn or error")
	f.BoolVarP(&opts.countOnly, "count", "c", false, "Print only the number of visible lines or matches")
	f.BoolVar(&opts.verbose, "verbose", false, "Also write log records to stderr")
	f.BoolVar(&opts.noProgress, "no-progress", false, "Do not show the progress bar")
	return cmd
}

func run(ctx context.Context, cmd *cobra.Command, opts *cliOptions, paths []string) error {
	stdout, stderr := cmd.OutOrStdout(), cmd.ErrOrStderr()

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("max-open-dirs") {
		if opts.maxOpenDirs <= 0 {
			return fmt.Errorf("--max-open-dirs must be positive, got %d", opts.maxOpenDirs)
		}
		cfg.MaxOpenDirs = opts.maxOpenDirs
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}

	logger, closeLog, err := logging.New(logging.Options{Level: cfg.LogLevel, Dir: cfg.LogDir, Stderr: opts.verbose})
	if err != nil {
		return err
	}
	defer closeLog()
	for _, w := range cfg.Warnings {
		logger.Warn("config", zap.String("warning", w))
		fmt.Fprintln(stderr, warnStyle.Render("warning: "+w))
	}

	ld := loader.New(loader.Options{
		MaxOpenDirs:  cfg.MaxOpenDirs,
		FilePatterns: cfg.FilePatterns,
		Retry:        loader.RetryPolicy{Initial: cfg.RetryInitial, Multiplier: 2, MaxRetries: cfg.RetryMax},
		Logger:       logger,
	})

	var bar *progressbar.ProgressBar
	if !opts.noProgress {
		bar = progressbar.NewOptions(-1,
			progressbar.OptionSetWriter(stderr),
			progressbar.OptionSetDescription("Loading"),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
	}
	sum := ld.Load(ctx, paths, func(ev loader.Event) {
		if p, ok := ev.(loader.Progress); ok && bar != nil {
			bar.Add(1)
			bar.Describe(fmt.Sprintf("Loading (%s lines)", humanize.Comma(int64(p.LinesDone))))
		}
	})
	if bar != nil {
		bar.Finish()
	}
	st := sum.Storage
	defer st.Close()

	fmt.Fprintln(stderr, renderSummary(sum))
	if sum.Succeeded == 0 && sum.Failed > 0 {
		return errNothingLoaded
	}

	engine := filter.New()
	for _, text := range opts.includes {
		engine.AddInclude(text)
	}
	for _, text := range opts.excludes {
		engine.AddExclude(text)
	}
	view := engine.Apply(st)

	out := bufio.NewWriter(stdout)
	defer out.Flush()

	if opts.query != "" {
		session := search.NewSession(view, cfg.SearchCacheSize, logger)
		session.Start(opts.query)
		if opts.countOnly {
			fmt.Fprintln(out, session.Count())
			return nil
		}
		return printMatches(out, st, view, session)
	}

	if opts.countOnly {
		fmt.Fprintln(out, view.Len())
		return nil
	}
	for _, idx := range view.All() {
		if _, err := fmt.Fprintln(out, st.Get(idx).Text()); err != nil {
			return err
		}
	}
	return nil
}

// printMatches walks the search cursor once around all matches.
func printMatches(w io.Writer, st *storage.Storage, view *filter.View, s *search.Session) error {
	p, ok := s.Current()
	for i := 0; ok && i < s.Count(); i++ {
		idx := view.SourceIndex(p.Line)
		if _, err := fmt.Fprintf(w, "%s\t%s\n", formatMatch(idx, p), st.Get(idx).Text()); err != nil {
			return err
		}
		p, ok = s.Advance(search.Next)
	}
	return nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errStyle.Render(err.Error()))
		os.Exit(1)
	}
}
