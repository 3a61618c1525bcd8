package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/mschirtzinger/tripsync/internal/localstate"
	"github.com/mschirtzinger/tripsync/internal/store"
	"github.com/mschirtzinger/tripsync/internal/ui"
)

var tokenCmd = &cobra.Command{
	Use:     "token",
	GroupID: "setup",
	Short:   "Manage the cached write credential",
	Long: `Manage the write credential cached on this machine for the configured backend.

Without a credential tripsync runs read-only: you see everyone's changes but your
edits are not saved for others. A credential from the config file, TRIPSYNC_CREDENTIAL
or --credential always takes precedence over the cached one.`,
}

var tokenSetCmd = &cobra.Command{
	Use:   "set [credential]",
	Short: "Cache a write credential",
	Long: `Cache a write credential for the configured backend. Without an argument the
credential is prompted for (hidden input) or read from standard input.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		var credential string
		if len(args) == 1 {
			credential = args[0]
		} else {
			var err error
			credential, err = promptCredential()
			if err != nil {
				fatal("%v", err)
			}
		}
		credential = strings.TrimSpace(credential)
		if credential == "" {
			fatal("credential cannot be empty")
		}

		state, err := localstate.Open(ctx, cfg.State.Path)
		if err != nil {
			fatal("failed to open local state: %v", err)
		}
		defer state.Close()

		scope := cfg.CredentialScope()
		if err := state.SetCredential(ctx, scope, credential); err != nil {
			fatal("%v", err)
		}
		fmt.Printf("%s Credential saved for %s\n", ui.RenderPass("✓"), scope)
	},
}

var tokenClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Forget the cached write credential",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		state, err := localstate.Open(ctx, cfg.State.Path)
		if err != nil {
			fatal("failed to open local state: %v", err)
		}
		defer state.Close()

		scope := cfg.CredentialScope()
		existed, err := state.ClearCredential(ctx, scope)
		if err != nil {
			fatal("%v", err)
		}
		if !existed {
			fmt.Printf("%s No cached credential for %s\n", ui.RenderMuted("-"), scope)
			return
		}
		fmt.Printf("%s Credential cleared for %s\n", ui.RenderPass("✓"), scope)
	},
}

var tokenTestCmd = &cobra.Command{
	Use:   "test",
	Short: "Check access to the remote document",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		c, err := openClient(ctx)
		if err != nil {
			fatal("%v", err)
		}
		defer c.Close()

		name := c.backend.Store.Name()
		_, version, err := c.backend.Store.Read(ctx)
		switch {
		case err == nil:
			fmt.Printf("%s Read %s (version %s)\n", ui.RenderPass("✓"), name, version)
		case errors.Is(err, store.ErrNotFound):
			fmt.Printf("%s %s does not exist yet; the first save creates it\n", ui.RenderWarn("⚠"), name)
		default:
			fatal("cannot read %s: %v", name, err)
		}

		if c.writable {
			fmt.Printf("%s Write credential present\n", ui.RenderPass("✓"))
		} else {
			fmt.Printf("%s Read-only: no write credential for %s\n", ui.RenderWarn("⚠"), cfg.CredentialScope())
		}
	},
}

// promptCredential asks on the terminal, or reads one line when stdin is not a terminal.
func promptCredential() (string, error) {
	if term.IsTerminal(int(os.Stdin.Fd())) {
		var credential string
		err := huh.NewInput().
			Title("Write credential for " + cfg.CredentialScope()).
			EchoMode(huh.EchoModePassword).
			Value(&credential).
			Run()
		if err != nil {
			return "", fmt.Errorf("prompt cancelled: %w", err)
		}
		return credential, nil
	}

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("failed to read credential from stdin: %w", err)
	}
	return line, nil
}

func init() {
	tokenCmd.AddCommand(tokenSetCmd, tokenClearCmd, tokenTestCmd)
	rootCmd.AddCommand(tokenCmd)
}
