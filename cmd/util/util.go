package util

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ValentinKolb/ibs/lib/bs"
	"github.com/ValentinKolb/ibs/lib/common"
	"github.com/ValentinKolb/ibs/lib/engine"
	"github.com/ValentinKolb/ibs/lib/engine/backends/bolt"
	"github.com/ValentinKolb/ibs/lib/engine/backends/leveldb"
	"github.com/ValentinKolb/ibs/lib/engine/backends/memory"
	"github.com/ValentinKolb/ibs/lib/engine/backends/sqlite"
	"github.com/ValentinKolb/ibs/lib/ibs"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		// Check if we need to wrap
		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// --------------------------------------------------------------------------
// Configuration
// --------------------------------------------------------------------------

// InitConfig loads .env files and binds IBS_* environment variables
func InitConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("ibs")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// BindCommandFlags binds a command's flags (including inherited ones) to viper
func BindCommandFlags(cmd *cobra.Command) error {
	if err := viper.BindPFlags(cmd.InheritedFlags()); err != nil {
		return err
	}
	return viper.BindPFlags(cmd.Flags())
}

// InitLogging configures the package loggers from the log-level and
// log-format settings
func InitLogging() error {
	return common.InitLoggers(common.LogConfig{
		Level:  viper.GetString("log-level"),
		Format: viper.GetString("log-format"),
	})
}

// GetEngine creates the engine selected by the backend setting
func GetEngine() (engine.Engine, error) {
	path := viper.GetString("path")
	switch backend := viper.GetString("backend"); backend {
	case "memory":
		return memory.New(nil), nil
	case "bolt":
		return bolt.New(path, nil)
	case "leveldb":
		return leveldb.New(path, nil)
	case "sqlite":
		return sqlite.New(path, nil)
	default:
		return nil, fmt.Errorf("invalid backend %s (expected one of: memory, bolt, leveldb, sqlite)", backend)
	}
}

// GetStorageConfig reads the browser-style storage configuration
func GetStorageConfig() bs.Config {
	return bs.Config{
		Kind:      bs.Kind(viper.GetString("kind")),
		Path:      viper.GetString("storage-path"),
		Namespace: viper.GetString("namespace"),
	}
}

// LoadDescriptor reads a database descriptor from a YAML or JSON file.
// The format is chosen by the file extension (.json, else YAML).
func LoadDescriptor(path string) (ibs.Descriptor, error) {
	var desc ibs.Descriptor
	data, err := os.ReadFile(path)
	if err != nil {
		return desc, fmt.Errorf("read descriptor: %w", err)
	}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(data, &desc)
	} else {
		err = yaml.Unmarshal(data, &desc)
	}
	if err != nil {
		return desc, fmt.Errorf("parse descriptor %s: %w", path, err)
	}
	return desc, nil
}

// --------------------------------------------------------------------------
// Input / Output
// --------------------------------------------------------------------------

// ParseRecord parses a JSON object
func ParseRecord(text string) (engine.Record, error) {
	var rec engine.Record
	if err := json.Unmarshal([]byte(text), &rec); err != nil {
		return nil, fmt.Errorf("record must be a JSON object: %w", err)
	}
	if rec == nil {
		return nil, fmt.Errorf("record must be a JSON object, got null")
	}
	return rec, nil
}

// ParseKey parses a key argument: JSON numbers, strings and arrays are
// decoded, anything else is taken as a plain string.
func ParseKey(text string) any {
	var v any
	if err := json.Unmarshal([]byte(text), &v); err == nil {
		switch v.(type) {
		case float64, string, []any:
			return v
		}
	}
	return text
}

// Print writes v to w in the format of the output setting (json or yaml)
func Print(w io.Writer, v any) error {
	switch format := viper.GetString("output"); format {
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	case "json", "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	default:
		return fmt.Errorf("invalid output format %s (expected json or yaml)", format)
	}
}
