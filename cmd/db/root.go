package db

import (
	"github.com/ValentinKolb/ibs/cmd/util"
	"github.com/ValentinKolb/ibs/lib/common"
	"github.com/ValentinKolb/ibs/lib/engine"
	"github.com/ValentinKolb/ibs/lib/ibs"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	plog = logger.GetLogger(common.LoggerCLI)

	eng      engine.Engine
	database *ibs.DB

	// DBCommands represents the database command group
	DBCommands = &cobra.Command{
		Use:                "db",
		Short:              "Work with a schema-versioned database",
		Long:               `Work with the database declared in the descriptor file (--config). The database is opened (and upgraded if a declared store is missing) before every command.`,
		PersistentPreRunE:  setupDB,
		PersistentPostRunE: closeDB,
	}
)

func init() {
	// Add flags
	key := "backend"
	DBCommands.PersistentFlags().String(key, "bolt", util.WrapString("storage engine backend (memory, bolt, leveldb, sqlite)"))
	key = "path"
	DBCommands.PersistentFlags().String(key, "ibs.db", util.WrapString("file (bolt, sqlite) or directory (leveldb) of the engine, ignored for memory"))
	key = "config"
	DBCommands.PersistentFlags().StringP(key, "c", "ibs.yaml", util.WrapString("database descriptor file (YAML, or JSON if the extension is .json)"))

	// Add subcommands
	DBCommands.AddCommand(openCmd)
	DBCommands.AddCommand(addCmd)
	DBCommands.AddCommand(putCmd)
	DBCommands.AddCommand(getCmd)
	DBCommands.AddCommand(allCmd)
	DBCommands.AddCommand(queryCmd)
	DBCommands.AddCommand(filterCmd)
	DBCommands.AddCommand(delCmd)
	DBCommands.AddCommand(countCmd)
	DBCommands.AddCommand(clearCmd)
	DBCommands.AddCommand(statsCmd)
	DBCommands.AddCommand(perfTestCmd)
}

// setupDB opens the engine and the database of the descriptor
func setupDB(cmd *cobra.Command, _ []string) error {
	// Bind command flags to viper
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}
	if err := util.InitLogging(); err != nil {
		return err
	}

	desc, err := util.LoadDescriptor(viper.GetString("config"))
	if err != nil {
		return err
	}

	if eng, err = util.GetEngine(); err != nil {
		return err
	}

	if database, err = ibs.New(eng, desc); err != nil {
		_ = eng.Close()
		return err
	}
	if err := database.Open(cmd.Context()); err != nil {
		_ = eng.Close()
		return err
	}
	plog.Debugf("opened %s on %s backend", desc, viper.GetString("backend"))
	return nil
}

// closeDB closes the database and the engine
func closeDB(_ *cobra.Command, _ []string) error {
	if database != nil {
		if err := database.Close(); err != nil {
			plog.Warningf("closing database: %v", err)
		}
	}
	if eng != nil {
		return eng.Close()
	}
	return nil
}

// store returns the accessor of a declared store
func store(name string) (*ibs.Store, error) {
	return database.Store(name)
}
