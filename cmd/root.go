package cmd

import (
	"fmt"
	"os"

	"github.com/ValentinKolb/dMap/cmd/maps"
	"github.com/ValentinKolb/dMap/cmd/util"
	"github.com/spf13/cobra"
)

const (
	Version = "0.1.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "dmap",
		Short: "client for distributed caches",
		Long: fmt.Sprintf(`dMap (v%s)

A typed client for named maps of a distributed cache, reached
through a gRPC proxy. Supports CRUD access, paged iteration and
live change events.`, Version),
		SilenceUsage: true,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of dMap",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("dMap v%s\n", Version)
		},
	}
)

func init() {
	// Add Commands
	RootCmd.AddCommand(maps.MapCommands)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	key := "format"
	RootCmd.PersistentFlags().String(key, "json", util.WrapString("serializer format for keys, values and filters (json, msgpack, gob)"))
	key = "log-level"
	RootCmd.PersistentFlags().String(key, "warn", util.WrapString("log level of the client (debug, info, warn, error)"))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
