package db

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/ValentinKolb/ibs/cmd/util"
	"github.com/ValentinKolb/ibs/lib/common"
	"github.com/ValentinKolb/ibs/lib/engine"
	"github.com/ValentinKolb/ibs/lib/ibs"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	openCmd = &cobra.Command{
		Use:   "open",
		Short: "Opens (and upgrades) the database and prints its version and stores",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			stores := make([]string, 0)
			for name := range database.API() {
				stores = append(stores, name)
			}
			sort.Strings(stores)
			return util.Print(os.Stdout, map[string]any{
				"name":    database.Name(),
				"version": database.Version(),
				"stores":  stores,
			})
		},
	}
	addCmd = &cobra.Command{
		Use:   "add [store] [json]...",
		Short: "Inserts records, fails for existing keys",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return write(cmd, args, (*ibs.Store).Adds)
		},
	}
	putCmd = &cobra.Command{
		Use:   "put [store] [json]...",
		Short: "Inserts or replaces records",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return write(cmd, args, (*ibs.Store).Updates)
		},
	}
	getCmd = &cobra.Command{
		Use:   "get [store] [key]",
		Short: "Reads the record for a key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := store(args[0])
			if err != nil {
				return err
			}
			rec, err := s.Get(ctx(cmd), util.ParseKey(args[1]))
			if err != nil {
				return err
			}
			if rec == nil {
				return fmt.Errorf("no record for key %s in %s", args[1], args[0])
			}
			return util.Print(os.Stdout, rec)
		},
	}
	allCmd = &cobra.Command{
		Use:   "all [store]",
		Short: "Reads all records in primary key order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := store(args[0])
			if err != nil {
				return err
			}
			recs, err := s.GetAll(ctx(cmd))
			if err != nil {
				return err
			}
			return util.Print(os.Stdout, recs)
		},
	}
	queryCmd = &cobra.Command{
		Use:   "query [store]",
		Short: "Reads the records of an index (or the store) within a key range",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := store(args[0])
			if err != nil {
				return err
			}
			r, err := keyRange()
			if err != nil {
				return err
			}
			index := viper.GetString("index")
			if viper.GetBool("keys") {
				keys, err := s.QueryKeys(ctx(cmd), index, r)
				if err != nil {
					return err
				}
				return util.Print(os.Stdout, keys)
			}
			recs, err := s.Query(ctx(cmd), index, r)
			if err != nil {
				return err
			}
			return util.Print(os.Stdout, recs)
		},
	}
	filterCmd = &cobra.Command{
		Use:   "filter [store] [field=value]...",
		Short: "Reads the records whose fields have the given values",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := store(args[0])
			if err != nil {
				return err
			}
			match, err := matcher(args[1:])
			if err != nil {
				return err
			}
			recs, err := s.Filter(ctx(cmd), match)
			if err != nil {
				return err
			}
			return util.Print(os.Stdout, recs)
		},
	}
	delCmd = &cobra.Command{
		Use:   "del [store] [key]...",
		Short: "Deletes records by primary key",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := store(args[0])
			if err != nil {
				return err
			}
			keys := make([]any, len(args)-1)
			for i, arg := range args[1:] {
				keys[i] = util.ParseKey(arg)
			}
			if err := s.Deletes(ctx(cmd), keys); err != nil {
				return err
			}
			fmt.Printf("deleted %d key(s)\n", len(keys))
			return nil
		},
	}
	countCmd = &cobra.Command{
		Use:   "count [store]",
		Short: "Counts the records of a store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := store(args[0])
			if err != nil {
				return err
			}
			n, err := s.Count(ctx(cmd))
			if err != nil {
				return err
			}
			fmt.Println(n)
			return nil
		},
	}
	clearCmd = &cobra.Command{
		Use:   "clear [store]",
		Short: "Deletes all records of a store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := store(args[0])
			if err != nil {
				return err
			}
			if err := s.Clear(ctx(cmd)); err != nil {
				return err
			}
			fmt.Println("cleared successfully")
			return nil
		},
	}
	statsCmd = &cobra.Command{
		Use:   "stats",
		Short: "Prints the database statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if viper.GetBool("prometheus") {
				common.WritePrometheus(os.Stdout)
				return nil
			}
			return util.Print(os.Stdout, database.Stats())
		},
	}
)

func init() {
	key := "index"
	queryCmd.Flags().String(key, "", util.WrapString("index to query (the primary key if empty)"))
	key = "only"
	queryCmd.Flags().String(key, "", util.WrapString("select exactly this key"))
	key = "lower"
	queryCmd.Flags().String(key, "", util.WrapString("lower bound of the key range"))
	key = "upper"
	queryCmd.Flags().String(key, "", util.WrapString("upper bound of the key range"))
	key = "lower-open"
	queryCmd.Flags().Bool(key, false, util.WrapString("exclude the lower bound"))
	key = "upper-open"
	queryCmd.Flags().Bool(key, false, util.WrapString("exclude the upper bound"))
	key = "keys"
	queryCmd.Flags().Bool(key, false, util.WrapString("print primary keys only"))

	key = "prometheus"
	statsCmd.Flags().Bool(key, false, util.WrapString("print all counters in the Prometheus text format"))
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func ctx(cmd *cobra.Command) context.Context {
	if c := cmd.Context(); c != nil {
		return c
	}
	return context.Background()
}

// write parses the records of args[1:] and writes them to the store args[0]
func write(cmd *cobra.Command, args []string, fn func(*ibs.Store, context.Context, []engine.Record) ([]any, error)) error {
	s, err := store(args[0])
	if err != nil {
		return err
	}
	recs := make([]engine.Record, len(args)-1)
	for i, arg := range args[1:] {
		if recs[i], err = util.ParseRecord(arg); err != nil {
			return fmt.Errorf("argument %d: %w", i+1, err)
		}
	}

	keys, err := fn(s, ctx(cmd), recs)
	var batchErr *ibs.BatchError
	if errors.As(err, &batchErr) {
		for _, f := range batchErr.Failed {
			fmt.Fprintf(os.Stderr, "record %d failed: %v\n", f.Index+1, f.Err)
		}
		keys = make([]any, len(recs))
		for _, r := range batchErr.Succeeded {
			keys[r.Index] = r.Key
		}
		if perr := util.Print(os.Stdout, keys); perr != nil {
			return perr
		}
		return err
	}
	if err != nil {
		return err
	}
	return util.Print(os.Stdout, keys)
}

// keyRange builds the key range of the query flags (nil if none is set)
func keyRange() (*engine.KeyRange, error) {
	only, lower, upper := viper.GetString("only"), viper.GetString("lower"), viper.GetString("upper")
	lowerOpen, upperOpen := viper.GetBool("lower-open"), viper.GetBool("upper-open")
	switch {
	case only != "":
		if lower != "" || upper != "" {
			return nil, fmt.Errorf("--only cannot be combined with --lower or --upper")
		}
		return engine.Only(util.ParseKey(only)), nil
	case lower != "" && upper != "":
		return engine.Bound(util.ParseKey(lower), util.ParseKey(upper), lowerOpen, upperOpen)
	case lower != "":
		return engine.LowerBound(util.ParseKey(lower), lowerOpen), nil
	case upper != "":
		return engine.UpperBound(util.ParseKey(upper), upperOpen), nil
	default:
		return nil, nil
	}
}

// matcher builds a filter from field=value conditions. A field is a dotted
// key path; values are compared by their key form (so 1 matches 1.0).
func matcher(conditions []string) (func(engine.Record) bool, error) {
	type condition struct {
		path  engine.KeyPath
		value any
	}
	conds := make([]condition, len(conditions))
	for i, c := range conditions {
		field, value, ok := strings.Cut(c, "=")
		if !ok {
			return nil, fmt.Errorf("invalid condition %q (expected field=value)", c)
		}
		path := engine.Path(field)
		if err := path.Validate(); err != nil {
			return nil, err
		}
		conds[i] = condition{path: path, value: util.ParseKey(value)}
	}
	return func(rec engine.Record) bool {
		for _, c := range conds {
			v, found := c.path.Evaluate(rec)
			if !found {
				return false
			}
			if cmp, err := engine.CompareKeys(v, c.value); err != nil || cmp != 0 {
				return false
			}
		}
		return true
	}, nil
}
