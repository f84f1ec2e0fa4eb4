package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/gzillgi/splunkutils"
	"github.com/gzillgi/splunkutils/internal/config"
	"github.com/gzillgi/splunkutils/internal/forwarder"
	"github.com/gzillgi/splunkutils/internal/metrics"
)

// usageError marks a command-line parse failure.
type usageError struct {
	err error
}

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

// exitCode maps a command error to the process exit status.
func exitCode(err error) int {
	var ue usageError
	switch {
	case err == nil:
		return 0
	case errors.As(err, &ue):
		return 2
	case errors.Is(err, forwarder.ErrPayloadTooLarge):
		return 2
	default:
		return 1
	}
}

// execute runs the command line and returns the exit status.
func execute(args []string, stdout, stderr io.Writer) int {
	opts := &options{}
	cmd := newRootCmd(opts)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.Execute()
	if opts.metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if shutdownErr := opts.metricsServer.Shutdown(ctx); shutdownErr != nil {
			slog.Warn("failed to stop metrics server", "error", shutdownErr)
		}
		cancel()
	}

	code := exitCode(err)
	if err != nil {
		if code == 2 && !errors.Is(err, forwarder.ErrPayloadTooLarge) {
			fmt.Fprintf(stderr, "Error: %v\nRun '%s --help' for usage.\n", err, splunkutils.AppName)
		} else {
			slog.Error("command failed", "error", err, "exit_code", code)
		}
	}
	return code
}

func newRootCmd(opts *options) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           splunkutils.AppName,
		Short:         "Send newline-delimited events to Splunk HEC",
		Long:          "Upload event files and single events to a Splunk HTTP Event Collector raw endpoint, split into bounded payloads that never cut a record in two.",
		Version:       splunkutils.Version(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			setupLogging(cmd.ErrOrStderr(), opts.logLevel)
			metrics.Init(splunkutils.Version())

			srv, err := metrics.StartServer(opts.metricsAddr)
			if err != nil {
				return fmt.Errorf("failed to start metrics server: %w", err)
			}
			opts.metricsServer = srv
			return nil
		},
	}
	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError{err}
	})

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&opts.configFile, "config", "c", "", "Path to configuration file (.yml, .yaml or .properties); defaults to "+config.DefaultFile+" when present")
	pf.StringVar(&opts.logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	pf.StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve expvar metrics at /debug/vars on this address (disabled when empty)")

	rootCmd.AddCommand(newSendCmd(opts))
	rootCmd.AddCommand(newEventCmd(opts))
	rootCmd.AddCommand(newSmokeTestCmd(opts))
	rootCmd.AddCommand(newTemplateCmd())

	return rootCmd
}

// setupLogging installs the JSON slog handler on w.
func setupLogging(w io.Writer, logLevel string) {
	var level slog.Level
	switch strings.ToLower(logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		fmt.Fprintf(w, "invalid log level %q, using info\n", logLevel)
		level = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			// Convert all timestamps to UTC
			if a.Key == slog.TimeKey {
				if t, ok := a.Value.Any().(time.Time); ok {
					a.Value = slog.TimeValue(t.UTC())
				}
			}
			return a
		},
	})
	slog.SetDefault(slog.New(handler))
}

// addHECFlags registers the destination and connection flags shared by every
// command that talks to HEC.
func addHECFlags(fs *pflag.FlagSet, opts *options) {
	fs.StringVar(&opts.protocol, "protocol", config.DefaultProtocol, "HEC protocol (http: or https:)")
	fs.StringVar(&opts.server, "server", config.DefaultServer, "HEC server host")
	fs.StringVar(&opts.port, "port", config.DefaultPort, "HEC port")
	fs.StringVar(&opts.endpoint, "endpoint", config.DefaultEndpoint, "HEC endpoint path")
	fs.StringVar(&opts.url, "url", "", "Full HEC URL; replaces protocol, server, port and endpoint")
	fs.StringVar(&opts.token, "token", "", "HEC token")
	fs.StringVar(&opts.index, "index", "", "Splunk index")
	fs.StringVar(&opts.source, "source", "", "Splunk source")
	fs.StringVar(&opts.sourceType, "sourcetype", "", "Splunk sourcetype")
	fs.BoolVar(&opts.gzip, "gzip", false, "Gzip request bodies")
	fs.BoolVar(&opts.keepAlive, "keep-alive", false, "Reuse connections between requests")
	fs.DurationVar(&opts.clientTimeout, "client-timeout", 0, "Per-request timeout (0 for none)")
}

// flagLayer collects the flags set explicitly on the command line.
func flagLayer(fs *pflag.FlagSet, opts *options) config.Layer {
	var l config.Layer
	str := func(name string, v string) *string {
		if fs.Changed(name) {
			return &v
		}
		return nil
	}
	boolean := func(name string, v bool) *bool {
		if fs.Changed(name) {
			return &v
		}
		return nil
	}
	integer := func(name string, v int) *int {
		if fs.Changed(name) {
			return &v
		}
		return nil
	}

	l.Protocol = str("protocol", opts.protocol)
	l.Server = str("server", opts.server)
	l.Port = str("port", opts.port)
	l.Endpoint = str("endpoint", opts.endpoint)
	l.URL = str("url", opts.url)
	l.Token = str("token", opts.token)
	l.Index = str("index", opts.index)
	l.Source = str("source", opts.source)
	l.SourceType = str("sourcetype", opts.sourceType)
	l.Gzip = boolean("gzip", opts.gzip)
	l.KeepAlive = boolean("keep-alive", opts.keepAlive)
	if fs.Changed("client-timeout") {
		d := opts.clientTimeout
		l.ClientTimeout = &d
	}

	l.InputFile = str("file", opts.file)
	l.JournalDir = str("journal-dir", opts.journalDir)
	l.AWSRegion = str("aws-region", opts.awsRegion)
	l.SplitOversized = boolean("split-oversized", opts.splitOversized)
	l.BlockSize = integer("block-size", opts.blockSize)
	l.JournalMaxAge = integer("journal-max-age", opts.journalMaxAge)
	l.JournalCompressAge = integer("journal-compress-age", opts.journalCompressAge)
	return l
}

// loadConfig composes defaults, the configuration file and the command-line
// flags, then validates the result.
func loadConfig(cmd *cobra.Command, opts *options) (config.Config, error) {
	var (
		fileLayer config.Layer
		err       error
	)
	if opts.configFile != "" {
		fileLayer, err = config.LoadFile(opts.configFile)
	} else {
		fileLayer, err = config.LoadOptional(config.DefaultFile)
	}
	if err != nil {
		return config.Config{}, fmt.Errorf("failed to load configuration: %w", err)
	}

	cfg := config.Compose(config.Defaults(), fileLayer, flagLayer(cmd.Flags(), opts))
	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	slog.Debug("configuration composed", "config", cfg)
	return cfg, nil
}
