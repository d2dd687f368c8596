package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/credsweep/credsweep"
	"github.com/credsweep/credsweep/config"
	"github.com/credsweep/credsweep/logging"
	"github.com/credsweep/credsweep/regexp"
	"github.com/credsweep/credsweep/report"
	"github.com/credsweep/credsweep/scan"
	"github.com/credsweep/credsweep/sources/files"
	"github.com/credsweep/credsweep/version"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

const banner = `
   ┌─┐┬─┐┌─┐┌┬┐┌─┐┬ ┬┌─┐┌─┐┌─┐
   │  ├┬┘├┤  ││└─┐│││├┤ ├┤ ├─┘
   └─┘┴└─└─┘─┴┘└─┘└┴┘└─┘└─┘┴   %s

`

var rootCmd = &cobra.Command{
	Use:     "credsweep [flags] [-i ext...]",
	Short:   "credsweep searches a directory tree for leaked credentials",
	Version: version.Version,
	// trailing arguments extend -i, so "-i log txt" ignores both
	Args: cobra.ArbitraryArgs,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Set the timeout for all the commands
		if timeout, err := cmd.Flags().GetInt("timeout"); err != nil {
			return err
		} else if timeout > 0 {
			ctx, cancel := context.WithTimeout(cmd.Context(), time.Duration(timeout)*time.Second)
			cmd.SetContext(ctx)
			cobra.OnFinalize(cancel)
		}
		return nil
	},
	RunE: runScan,
}

func init() {
	cobra.OnInitialize(initLog)
	rootCmd.Flags().StringP("directory", "d", "", "directory to scan (default: current directory)")
	rootCmd.Flags().IntP("threads", "t", 1, "number of concurrent file workers")
	rootCmd.Flags().StringSliceP("ignore", "i", []string{}, "file extensions to ignore, e.g. -i log,.tmp")
	rootCmd.Flags().StringP("config", "c", "", "rule catalog file (default: built-in catalog)")
	rootCmd.Flags().String("ignore-path", "", "path to a .credsweepignore file or folder containing one")
	rootCmd.Flags().StringP("report-path", "r", "", "report file (use \"-\" for stdout)")
	rootCmd.Flags().StringP("report-format", "f", "", "report format (json, csv)")
	rootCmd.Flags().Int("exit-code", 0, "exit code when credentials have been found")
	rootCmd.Flags().StringP("log-level", "l", "info", "log level (trace, debug, info, warn, error, fatal)")
	rootCmd.Flags().Bool("no-color", false, "turn off color for logs and results")
	rootCmd.Flags().Bool("no-banner", false, "suppress banner")
	rootCmd.Flags().Bool("skip-binary", false, "skip the content of images, archives and executables")
	rootCmd.Flags().Int("max-target-megabytes", 0, "files larger than this will be skipped")
	rootCmd.Flags().String("regex-engine", regexp.EngineStdlib, "regular expression engine (stdlib, re2)")
	rootCmd.Flags().Int("timeout", 0, "set a timeout for the scan in seconds (default \"0\", no timeout is set)")
}

var logLevel = zerolog.InfoLevel

func initLog() {
	ll, err := rootCmd.Flags().GetString("log-level")
	if err != nil {
		logging.Fatal().Msg(err.Error())
	}
	noColor, err := rootCmd.Flags().GetBool("no-color")
	if err != nil {
		logging.Fatal().Msg(err.Error())
	}
	if !noColor && !logging.IsTerminal(os.Stderr.Fd()) {
		noColor = true
	}

	switch strings.ToLower(ll) {
	case "trace":
		logLevel = zerolog.TraceLevel
	case "debug":
		logLevel = zerolog.DebugLevel
	case "info":
		logLevel = zerolog.InfoLevel
	case "warn":
		logLevel = zerolog.WarnLevel
	case "err", "error":
		logLevel = zerolog.ErrorLevel
	case "fatal":
		logLevel = zerolog.FatalLevel
	default:
		logging.Warn().Msgf("unknown log level: %s", ll)
	}
	logging.Logger = logging.New(os.Stderr, noColor).Level(logLevel)
}

func runScan(cmd *cobra.Command, args []string) error {
	threads := mustGetIntFlag(cmd, "threads")
	if threads < 1 {
		return fmt.Errorf("%w: got %d", scan.ErrInvalidThreads, threads)
	}
	root, err := scanRoot(mustGetStringFlag(cmd, "directory"))
	if err != nil {
		return err
	}
	reporter, reportPath, err := reporterFor(mustGetStringFlag(cmd, "report-format"), mustGetStringFlag(cmd, "report-path"))
	if err != nil {
		return err
	}

	if !mustGetBoolFlag(cmd, "no-banner") {
		_, _ = fmt.Fprintf(os.Stderr, banner, version.Version)
	}

	if err := regexp.SetEngine(mustGetStringFlag(cmd, "regex-engine")); err != nil {
		return err
	}
	logging.Debug().Msgf("using %s regex engine", regexp.Version())
	cat := loadCatalog(mustGetStringFlag(cmd, "config"))

	ignored := ignoredExtensions(mustGetStringSliceFlag(cmd, "ignore"), args)
	scanner := scan.NewScanner(cat,
		scan.WithIgnoredExtensions(ignored...),
		scan.WithSkipBinary(mustGetBoolFlag(cmd, "skip-binary")),
	)
	src := files.Tree{
		Root:         root,
		ExcludeNames: selfExclusions(),
		MaxFileSize:  int64(mustGetIntFlag(cmd, "max-target-megabytes")) * 1_000_000,
	}

	// SilenceUsage from here on: failures below are not usage errors
	cmd.SilenceUsage = true

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p := scan.NewPipeline(src, scanner, threads)
	p.SetIgnore(scan.LoadIgnoreFiles(mustGetStringFlag(cmd, "ignore-path"), root))

	start := time.Now()
	matches, err := p.Run(ctx)
	if err != nil {
		if ctx.Err() == nil {
			return err
		}
		logging.Warn().Err(err).Msg("scan interrupted, reporting partial results")
	}

	noColor := mustGetBoolFlag(cmd, "no-color") || !logging.IsTerminal(os.Stdout.Fd())
	if reportPath != "-" {
		if err := scan.PrintReport(os.Stdout, matches, noColor); err != nil {
			return err
		}
	}
	if reporter != nil {
		if err := writeReport(reporter, reportPath, matches); err != nil {
			logging.Error().Err(err).Msg("could not write report")
		}
	}

	logging.Info().Msgf("scanned %s in %s", root, FormatDuration(time.Since(start)))
	if len(matches) > 0 {
		logging.Warn().Msgf("credentials found: %d", len(matches))
		if code := mustGetIntFlag(cmd, "exit-code"); code != 0 {
			os.Exit(code)
		}
	} else {
		logging.Info().Msg("no credentials found")
	}
	return nil
}

// scanRoot resolves the directory flag, defaulting to the working directory.
func scanRoot(dir string) (string, error) {
	if dir == "" {
		return os.Getwd()
	}
	info, err := os.Stat(dir)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%s is not a directory", dir)
	}
	return dir, nil
}

func loadCatalog(path string) *config.Catalog {
	if path == "" {
		cat, err := config.Default()
		if err != nil {
			logging.Fatal().Err(err).Msg("failed to load built-in catalog")
		}
		return cat
	}
	cat, err := config.Load(path)
	if err != nil {
		logging.Fatal().Err(err).Str("path", path).Msg("failed to load catalog")
	}
	logging.Debug().Msgf("using catalog %s from `--config`", path)
	return cat
}

// ignoredExtensions merges the -i values with the positional arguments that
// follow them and normalizes the result.
func ignoredExtensions(flagValues, args []string) []string {
	return normalizeExtensions(append(slices.Clone(flagValues), args...))
}

// normalizeExtensions lower-cases the ignored extensions and adds the leading
// dot where it is missing.
func normalizeExtensions(exts []string) []string {
	out := make([]string, 0, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		out = append(out, ext)
	}
	return out
}

// selfExclusions returns the basename of the running executable so the
// scanner never reports its own rule table.
func selfExclusions() []string {
	exe, err := os.Executable()
	if err != nil {
		logging.Debug().Err(err).Msg("could not resolve own executable")
		return nil
	}
	return []string{filepath.Base(exe)}
}

// reporterFor picks the report writer. The format falls back to the report
// file extension when it is not given.
func reporterFor(format, path string) (credsweep.Reporter, string, error) {
	if path == "" {
		if format != "" {
			return nil, "", fmt.Errorf("--report-format %s requires --report-path", format)
		}
		return nil, "", nil
	}
	if format == "" {
		format = strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	}
	switch strings.ToLower(format) {
	case "json":
		return &report.JsonReporter{}, path, nil
	case "csv":
		return &report.CsvReporter{}, path, nil
	default:
		return nil, "", fmt.Errorf("unknown report format %q (json, csv)", format)
	}
}

func writeReport(r credsweep.Reporter, path string, matches []credsweep.Match) error {
	var w io.WriteCloser
	if path == "-" {
		w = nopWriteCloser{os.Stdout}
	} else {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		w = f
	}
	if err := r.Write(w, matches); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		if strings.Contains(err.Error(), "unknown flag") {
			// exit code 126: Command invoked cannot execute
			os.Exit(126)
		}
		logging.Fatal().Msg(err.Error())
	}
}

func FormatDuration(d time.Duration) string {
	scale := 100 * time.Second
	// look for the max scale that is smaller than d
	for scale > d {
		scale = scale / 10
	}
	return d.Round(scale / 100).String()
}

func mustGetBoolFlag(cmd *cobra.Command, name string) bool {
	value, err := cmd.Flags().GetBool(name)
	if err != nil {
		logging.Fatal().Err(err).Msgf("could not get flag: %s", name)
	}
	return value
}

func mustGetIntFlag(cmd *cobra.Command, name string) int {
	value, err := cmd.Flags().GetInt(name)
	if err != nil {
		logging.Fatal().Err(err).Msgf("could not get flag: %s", name)
	}
	return value
}

func mustGetStringFlag(cmd *cobra.Command, name string) string {
	value, err := cmd.Flags().GetString(name)
	if err != nil {
		logging.Fatal().Err(err).Msgf("could not get flag: %s", name)
	}
	return value
}

func mustGetStringSliceFlag(cmd *cobra.Command, name string) []string {
	value, err := cmd.Flags().GetStringSlice(name)
	if err != nil {
		logging.Fatal().Err(err).Msgf("could not get flag: %s", name)
	}
	return value
}
