// Command tripsync keeps a shared trip itinerary in sync with its remote store.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/mschirtzinger/tripsync/internal/config"
	"github.com/mschirtzinger/tripsync/internal/logging"
)

var (
	cfgFile string
	v       *viper.Viper
	cfg     *config.Config
	logs    *logging.Factory
)

var rootCmd = &cobra.Command{
	Use:   "tripsync",
	Short: "Collaborative trip itinerary sync",
	Long: `tripsync keeps one shared trip document (days, activities, flights, stays and
expenses) in sync between collaborators through a remote store.

Edits are saved automatically, last writer wins. Configure the trip and the backend in
tripsync.toml (see 'tripsync config init'), TRIPSYNC_* environment variables or flags.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		v = config.NewViper(cfgFile)
		if err := bindFlags(v, cmd.Flags()); err != nil {
			return err
		}

		loaded, err := config.Load(v)
		if err != nil {
			return err
		}
		cfg = loaded

		logs, err = logging.New(logging.Options{
			File:       cfg.Log.File,
			MaxSizeMB:  cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
			MaxAgeDays: cfg.Log.MaxAgeDays,
			Verbose:    cfg.Log.Verbose,
		})
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logs != nil {
			_ = logs.Close()
		}
	},
}

// flagKeys maps command-line flags to configuration keys.
var flagKeys = map[string]string{
	"backend":    "backend.kind",
	"credential": "credential",
	"verbose":    "log.verbose",
	"log-file":   "log.file",
	"port":       "dashboard.port",
	"listen":     "registry.listen",
	"db":         "registry.db",
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	var err error
	flags.VisitAll(func(f *pflag.Flag) {
		key, ok := flagKeys[f.Name]
		if !ok || err != nil {
			return
		}
		err = v.BindPFlag(key, f)
	})
	return err
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "sync", Title: "Sync:"},
		&cobra.Group{ID: "edit", Title: "Editing:"},
		&cobra.Group{ID: "setup", Title: "Setup:"},
		&cobra.Group{ID: "server", Title: "Server:"},
	)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Config file (default: ./tripsync.toml or "+config.DefaultDir()+"/tripsync.toml)")
	rootCmd.PersistentFlags().String("backend", "", "Backend kind: "+strings.Join([]string{
		config.BackendGitHub, config.BackendRegistry, config.BackendRedis, config.BackendFile, config.BackendGCS,
	}, ", "))
	rootCmd.PersistentFlags().String("credential", "", "Write credential (overrides the cached one)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Verbose logging")
	rootCmd.PersistentFlags().String("log-file", "", "Log to a rotating file instead of stderr")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
