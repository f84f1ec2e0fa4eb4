package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gzillgi/splunkutils/internal/event"
	"github.com/gzillgi/splunkutils/internal/forwarder"
)

func newEventCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "event [raw event...]",
		Short: "Send single events",
		Long: "Send raw events given as arguments, or one event built from --field name=value pairs.\n" +
			"Field events are prefixed with the current time and joined with the delimiter.",
		Example: "  splunkutils event 'user=alice action=login'\n" +
			"  splunkutils event -F user=alice -F action=login",
		Args: func(cmd *cobra.Command, args []string) error {
			switch {
			case len(args) == 0 && len(opts.fields) == 0:
				return usageError{errors.New("an event argument or at least one --field is required")}
			case len(args) > 0 && len(opts.fields) > 0:
				return usageError{errors.New("raw events and --field cannot be combined")}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEvent(cmd, opts, args)
		},
	}

	fs := cmd.Flags()
	addHECFlags(fs, opts)
	fs.StringArrayVarP(&opts.fields, "field", "F", nil, "Event field as name=value (repeatable, order kept)")
	fs.StringVar(&opts.delimiter, "delimiter", event.DefaultDelimiter, "Delimiter between the timestamp and each field")

	return cmd
}

func parseFields(raw []string) (event.Fields, error) {
	fields := make(event.Fields, 0, len(raw))
	for _, r := range raw {
		f, ok := event.ParseField(r)
		if !ok {
			return nil, usageError{fmt.Errorf("invalid field %q: want name=value", r)}
		}
		fields = append(fields, f)
	}
	return fields, nil
}

func runEvent(cmd *cobra.Command, opts *options, args []string) error {
	fields, err := parseFields(opts.fields)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}
	resp, err := sendEvents(forwarder.New(cfg.Uploader(nil)), fields, opts.delimiter, args)
	fmt.Fprintf(cmd.OutOrStdout(), "response: %s\n", resp)
	if err != nil {
		return fmt.Errorf("error sending event: %w", err)
	}
	return nil
}

// sendEvents sends either the field event or the raw events, whichever was given.
func sendEvents(u forwarder.Uploader, fields event.Fields, delimiter string, raw []string) (forwarder.Response, error) {
	switch {
	case len(fields) > 0 && delimiter == event.DefaultDelimiter:
		return u.SendFields(fields)
	case len(fields) > 0:
		return u.SendEvent(event.NewBuilder(delimiter).AddFields(fields).String())
	case len(raw) == 1:
		return u.SendEvent(raw[0])
	default:
		return u.SendEvents(raw)
	}
}
