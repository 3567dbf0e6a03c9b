package main

import (
	"io"

	"github.com/spf13/cobra"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configFile string
	logLevel   string
	logPretty  bool
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	gf := &globalFlags{}

	root := &cobra.Command{
		Use:           "rmsync",
		Short:         "Mirror the Rick and Morty API to local JSON files",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	pf := root.PersistentFlags()
	pf.StringVar(&gf.configFile, "config", "", "TOML configuration file")
	pf.StringVar(&gf.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	pf.BoolVar(&gf.logPretty, "log-pretty", false, "human readable console logs instead of JSON")

	root.AddCommand(newSyncCmd(gf))
	root.AddCommand(newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("rmsync version %s\n", version)
		},
	}
}
