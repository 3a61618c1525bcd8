package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/tripsync/internal/registryserver"
)

var registryCmd = &cobra.Command{
	Use:     "registry",
	GroupID: "server",
	Short:   "Run or administer a timestamp registry",
	Long: `A small HTTP registry that stores one JSON document per key. Anyone can read;
writes need a bearer token signed with the registry's signing key.

The registry does not check versions. Clients stamp each document with a logical
timestamp and the newest stamp a client sees wins.`,
}

var registryServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the registry API",
	Run: func(cmd *cobra.Command, args []string) {
		if cfg.Registry.SigningKey == "" {
			fatal("registry.signing_key is required (set it in the config file or TRIPSYNC_REGISTRY_SIGNING_KEY)")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		storage, err := registryserver.OpenStorage(ctx, cfg.Registry.DB)
		if err != nil {
			fatal("%v", err)
		}
		defer storage.Close()

		server, err := registryserver.New(registryserver.Config{
			Listen:      cfg.Registry.Listen,
			SigningKey:  []byte(cfg.Registry.SigningKey),
			CORSOrigins: cfg.Registry.CORSOrigins,
			Logger:      logs.Logger("registry"),
		}, storage)
		if err != nil {
			fatal("%v", err)
		}

		fmt.Printf("Registry listening on %s (db %s)\n", cfg.Registry.Listen, cfg.Registry.DB)
		if err := server.ListenAndServe(ctx); err != nil {
			fatal("%v", err)
		}
	},
}

var registryMintCmd = &cobra.Command{
	Use:   "mint-token <key>",
	Short: "Mint a write token for a document key",
	Long: `Mint a write token for one document key, or "*" for every key.

Give the token to collaborators who should be able to save; they cache it with
'tripsync token set'.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ttl, _ := cmd.Flags().GetDuration("ttl")

		if cfg.Registry.SigningKey == "" {
			fatal("registry.signing_key is required")
		}
		token, err := registryserver.MintToken(args[0], []byte(cfg.Registry.SigningKey), ttl)
		if err != nil {
			fatal("%v", err)
		}
		fmt.Println(token)
	},
}

func init() {
	registryServeCmd.Flags().String("listen", ":8090", "Listen address")
	registryServeCmd.Flags().String("db", "", "SQLite database path (default: registry.db in the tripsync config dir)")
	registryMintCmd.Flags().Duration("ttl", 30*24*time.Hour, "Token lifetime (0 for no expiry)")

	registryCmd.AddCommand(registryServeCmd, registryMintCmd)
	rootCmd.AddCommand(registryCmd)
}
