package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/gzillgi/splunkutils/internal/chunker"
	"github.com/gzillgi/splunkutils/internal/config"
	"github.com/gzillgi/splunkutils/internal/forwarder"
	"github.com/gzillgi/splunkutils/internal/journal"
)

func newSendCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send [file]",
		Short: "Upload a file of newline-delimited events",
		Long: "Upload a local file or s3://bucket/key object to the HEC raw endpoint.\n" +
			"The input is read in blocks and every request ends on a record boundary.",
		Args: func(cmd *cobra.Command, args []string) error {
			if err := cobra.MaximumNArgs(1)(cmd, args); err != nil {
				return usageError{err}
			}
			if len(args) == 1 && cmd.Flags().Changed("file") {
				return usageError{fmt.Errorf("input given both as argument and --file")}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				if err := cmd.Flags().Set("file", args[0]); err != nil {
					return usageError{err}
				}
			}
			return runSend(cmd, opts)
		},
	}

	fs := cmd.Flags()
	addHECFlags(fs, opts)
	fs.StringVarP(&opts.file, "file", "f", "", "Input file path or s3://bucket/key")
	fs.IntVar(&opts.blockSize, "block-size", chunker.DefaultBlockSize, "Bytes read from the input per request")
	fs.BoolVar(&opts.splitOversized, "split-oversized", false, "Split records longer than the block size instead of failing")
	fs.StringVar(&opts.journalDir, "journal-dir", "", "Write an NDJSON transfer journal to this directory")
	fs.IntVar(&opts.journalMaxAge, "journal-max-age", 0, "Delete journal files older than this many days (0 keeps them)")
	fs.IntVar(&opts.journalCompressAge, "journal-compress-age", 0, "Gzip journal files older than this many days (0 disables)")
	fs.StringVar(&opts.awsRegion, "aws-region", "", "AWS region for s3:// inputs")

	return cmd
}

func runSend(cmd *cobra.Command, opts *options) error {
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}
	if err := cfg.ValidateInput(); err != nil {
		return fmt.Errorf("no valid file to process: %w", err)
	}

	sink, closeSink, err := newSink(cfg)
	if err != nil {
		return err
	}
	defer closeSink()

	hec := forwarder.New(cfg.Uploader(sink))
	slog.Info("sending file", "path", cfg.InputFile, "uploader", hec.String())

	result, err := hec.SendFile(cfg.InputFile)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "response: %s\n", result.LastResponse)
	fmt.Fprintf(out, "channel: %s\n", hec.Channel())
	fmt.Fprintf(out, "read %s, sent %s in %d request(s)\n",
		humanize.Bytes(uint64(result.BytesRead)), humanize.Bytes(uint64(result.BytesSent)), result.Chunks)

	if err != nil {
		return fmt.Errorf("error sending file %s: %w", cfg.InputFile, err)
	}
	return nil
}

// newSink returns the reporting sink for a transfer: the log, plus the
// journal when a journal directory is configured.
func newSink(cfg config.Config) (forwarder.Sink, func(), error) {
	if cfg.JournalDir == "" {
		return forwarder.LogSink{}, func() {}, nil
	}

	w, err := journal.New(cfg.JournalDir)
	if err != nil {
		return nil, nil, err
	}

	retention := journal.Retention{MaxAge: cfg.JournalMaxAge, CompressAge: cfg.JournalCompressAge}
	if _, err := retention.Apply(cfg.JournalDir, time.Now()); err != nil {
		slog.Warn("journal retention failed", "dir", cfg.JournalDir, "error", err)
	}
	closeFn := func() {
		if err := w.Close(); err != nil {
			slog.Warn("failed to close transfer journal", "error", err)
		}
	}
	return forwarder.MultiSink{forwarder.LogSink{}, w}, closeFn, nil
}
