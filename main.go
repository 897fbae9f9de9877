package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// newRootCmd serves when invoked without a subcommand.
func newRootCmd() *cobra.Command {
	v := newViper()
	var configPath string
	cmd := &cobra.Command{
		Use:           "mediagate",
		Short:         "HTTP gateway that submits and tracks media collection transactions",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := bindFlags(v, cmd.Flags()); err != nil {
				return err
			}
			return readConfigFile(v, configPath)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, v)
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&configPath, "config", os.Getenv(envPrefix+"_CONFIG"), "Path to a config file (yaml, json or toml)")
	pf.String("log-level", "info", "Log level (debug, info, warn, error)")
	pf.String("log-format", "text", "Log format (text, json)")
	addServeFlags(cmd.Flags())

	cmd.AddCommand(
		newServeCmd(v),
		newVersionCmd(),
		newAccountCmd(),
	)
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := readBuildInfo()
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "mediagate %s (git %s, built %s)\n", info.Version, orDash(info.GitSHA), orDash(info.BuildTime))
			return err
		},
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
