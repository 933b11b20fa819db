// Command arbor reads and writes a JSON document tree from the command line.
//
// Paths address the tree the same way the realtime REST surface does:
//
//	arbor put /users/alice '{"age":30}'
//	arbor get /users --order-by age --start-at 18 --limit-first 10
//	arbor index set /users '["age"]'
//
// Configuration is read from flags, ARBOR_* environment variables and .env
// files, in that order of precedence.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const (
	Version = "0.3.0"
)

var (
	// rootCmd represents the base command when called without any subcommands
	rootCmd = &cobra.Command{
		Use:   "arbor",
		Short: "path-addressable JSON document tree",
		Long: fmt.Sprintf(`arbor (v%s)

A JSON document tree addressed by slash-delimited paths, stored as flat
records in DynamoDB or a local bolt database.`, Version),
		SilenceUsage: true,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of arbor",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "arbor v%s\n", Version)
		},
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	setupStoreFlags(rootCmd)
	rootCmd.PersistentPreRunE = openTree
	rootCmd.PersistentPostRunE = closeTree

	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(putCmd)
	rootCmd.AddCommand(patchCmd)
	rootCmd.AddCommand(postCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(versionCmd)

	setupQueryFlags(getCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
