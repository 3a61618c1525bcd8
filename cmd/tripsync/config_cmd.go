package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/tripsync/internal/config"
	"github.com/mschirtzinger/tripsync/internal/ui"
)

const redacted = "********"

var configCmd = &cobra.Command{
	Use:     "config",
	GroupID: "setup",
	Short:   "Create or inspect configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write an example config file",
	Long: `Write an example configuration with every setting and its default value.

The file is written to ./tripsync.toml (or tripsync.yaml with --format yaml) unless
--path is given. Existing files are kept unless --force is set.`,
	Run: func(cmd *cobra.Command, args []string) {
		format, _ := cmd.Flags().GetString("format")
		path, _ := cmd.Flags().GetString("path")
		force, _ := cmd.Flags().GetBool("force")

		if path == "" {
			path = "tripsync." + format
		}
		if err := config.WriteExample(path, format, force); err != nil {
			fatal("%v", err)
		}

		abs, err := filepath.Abs(path)
		if err != nil {
			abs = path
		}
		fmt.Printf("%s Wrote %s\n", ui.RenderPass("✓"), abs)
		fmt.Println("Edit the trip and backend sections, then run 'tripsync token set'.")
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long: `Print the configuration after merging the config file, TRIPSYNC_* environment
variables and flags. Secrets are redacted.`,
	Run: func(cmd *cobra.Command, args []string) {
		format, _ := cmd.Flags().GetString("format")

		if used := v.ConfigFileUsed(); used != "" {
			fmt.Fprintf(os.Stderr, "%s\n", ui.RenderMuted("# from "+used))
		}
		if err := config.Encode(os.Stdout, redact(cfg), format); err != nil {
			fatal("%v", err)
		}
	},
}

// redact returns a copy of c with secrets masked.
func redact(c *config.Config) *config.Config {
	out := *c
	if out.Credential != "" {
		out.Credential = redacted
	}
	if out.Backend.Redis.Password != "" {
		out.Backend.Redis.Password = redacted
	}
	if out.Registry.SigningKey != "" {
		out.Registry.SigningKey = redacted
	}
	return &out
}

func init() {
	configInitCmd.Flags().String("format", config.FormatTOML, "File format: toml or yaml")
	configInitCmd.Flags().String("path", "", "Where to write the file")
	configInitCmd.Flags().Bool("force", false, "Overwrite an existing file")
	configShowCmd.Flags().String("format", config.FormatTOML, "Output format: toml or yaml")

	configCmd.AddCommand(configInitCmd, configShowCmd)
	rootCmd.AddCommand(configCmd)
}
