package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gzillgi/splunkutils/internal/forwarder"
)

func newSmokeTestCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "smoke-test",
		Short: "Test Splunk HEC connectivity",
		Long:  "Check the HEC health endpoint with the configured token and exit",
		Args: func(cmd *cobra.Command, args []string) error {
			if err := cobra.NoArgs(cmd, args); err != nil {
				return usageError{err}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return performSmokeTest(cmd, opts)
		},
	}
	addHECFlags(cmd.Flags(), opts)
	return cmd
}

// performSmokeTest tests connectivity to Splunk HEC
func performSmokeTest(cmd *cobra.Command, opts *options) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "🔍 Testing Splunk HEC connectivity...\n")

	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		fmt.Fprintf(out, "❌ Error: %v\n", err)
		return err
	}

	dest := cfg.Destination()
	fmt.Fprintf(out, "URL: %s\n", dest.HealthURL())

	hec := forwarder.New(cfg.Uploader(nil))
	if err := hec.HealthCheck(); err != nil {
		fmt.Fprintf(out, "❌ Error: %v\n", err)
		fmt.Fprintf(out, "Please verify your Splunk HEC URL and token are correct\n")
		return err
	}

	fmt.Fprintf(out, "✅ Success: Splunk HEC is reachable and token is valid\n")
	return nil
}
