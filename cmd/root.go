package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version is set during build using ldflags
var Version = "dev"

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "depinspect",
	Short: "Inspects the resolved dependency graph of a project",
	Long: `Dependency Inspector reads the lockfile of a yarn, npm, poetry or Go project,
reports the installed version of every dependency, suggests safe and latest
updates from the registry and lists known vulnerabilities.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
