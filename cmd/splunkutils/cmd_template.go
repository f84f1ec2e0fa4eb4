package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gzillgi/splunkutils/internal/config"
)

func newTemplateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "template",
		Short: "Output configuration template",
		Long:  "Output a YAML configuration template and exit",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprint(cmd.OutOrStdout(), config.GetTemplate())
		},
	}
}
