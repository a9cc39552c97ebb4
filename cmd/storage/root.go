package storage

import (
	"fmt"
	"os"

	"github.com/ValentinKolb/ibs/cmd/util"
	"github.com/ValentinKolb/ibs/lib/bs"
	"github.com/spf13/cobra"
)

var (
	storage bs.Storage

	// StorageCommands represents the storage command group
	StorageCommands = &cobra.Command{
		Use:   "storage",
		Short: "Work with local and session storages",
		Long: `Work with flat string key-value storages. Local storages persist in a bbolt file (--storage-path),
session storages only live as long as the process and are mostly useful for testing.`,
		PersistentPreRunE:  setupStorage,
		PersistentPostRunE: closeStorage,
	}
)

func init() {
	key := "kind"
	StorageCommands.PersistentFlags().String(key, string(bs.KindLocal), util.WrapString("storage kind (local, session)"))
	key = "storage-path"
	StorageCommands.PersistentFlags().String(key, "ibs-local.db", util.WrapString("bbolt file of the local storage"))
	key = "namespace"
	StorageCommands.PersistentFlags().String(key, bs.DefaultNamespace, util.WrapString("namespace of the storage"))

	StorageCommands.AddCommand(getCmd)
	StorageCommands.AddCommand(setCmd)
	StorageCommands.AddCommand(rmCmd)
	StorageCommands.AddCommand(clearCmd)
	StorageCommands.AddCommand(keysCmd)
}

func setupStorage(cmd *cobra.Command, _ []string) error {
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}
	if err := util.InitLogging(); err != nil {
		return err
	}
	var err error
	storage, err = bs.New(util.GetStorageConfig())
	return err
}

func closeStorage(_ *cobra.Command, _ []string) error {
	if storage != nil {
		return storage.Close()
	}
	return nil
}

var (
	getCmd = &cobra.Command{
		Use:   "get [key]",
		Short: "Reads the value for a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, ok, err := storage.Get(args[0])
			if err != nil {
				return err
			}
			return util.Print(os.Stdout, map[string]any{"key": args[0], "found": ok, "value": value})
		},
	}
	setCmd = &cobra.Command{
		Use:   "set [key] [value]",
		Short: "Sets the value for a key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := storage.Set(args[0], args[1]); err != nil {
				return err
			}
			fmt.Println("set successfully")
			return nil
		},
	}
	rmCmd = &cobra.Command{
		Use:   "rm [key]",
		Short: "Removes a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := storage.Remove(args[0]); err != nil {
				return err
			}
			fmt.Println("removed successfully")
			return nil
		},
	}
	clearCmd = &cobra.Command{
		Use:   "clear",
		Short: "Removes all keys of the namespace",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := storage.Clear(); err != nil {
				return err
			}
			fmt.Println("cleared successfully")
			return nil
		},
	}
	keysCmd = &cobra.Command{
		Use:   "keys",
		Short: "Lists all keys in ascending order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := storage.Len()
			if err != nil {
				return err
			}
			keys := make([]string, 0, n)
			for i := 0; i < n; i++ {
				k, ok, err := storage.Key(i)
				if err != nil {
					return err
				}
				if ok {
					keys = append(keys, k)
				}
			}
			return util.Print(os.Stdout, keys)
		},
	}
)
