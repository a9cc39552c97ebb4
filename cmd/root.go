package cmd

import (
	"fmt"
	"os"

	"github.com/ValentinKolb/ibs/cmd/db"
	"github.com/ValentinKolb/ibs/cmd/storage"
	"github.com/ValentinKolb/ibs/cmd/util"
	"github.com/spf13/cobra"
)

const (
	Version = "0.3.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "ibs",
		Short: "schema-versioned indexed object stores",
		Long: fmt.Sprintf(`iBS (v%s)

Schema-versioned, transactional object stores with secondary indexes on top
of an embedded key-value engine (memory, bolt, leveldb or sqlite).`, Version),
		SilenceUsage: true,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of iBS",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("iBS v%s\n", Version)
		},
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitConfig)

	// Add Commands
	RootCmd.AddCommand(db.DBCommands)
	RootCmd.AddCommand(storage.StorageCommands)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	key := "log-level"
	RootCmd.PersistentFlags().String(key, "warn", util.WrapString("level at which logs are written to stderr (debug, info, warn, error)"))
	key = "log-format"
	RootCmd.PersistentFlags().String(key, "text", util.WrapString("log format (text, json)"))
	key = "output"
	RootCmd.PersistentFlags().StringP(key, "o", "json", util.WrapString("output format (json, yaml)"))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
