package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/tripsync/internal/dashboard"
	"github.com/mschirtzinger/tripsync/internal/session"
	"github.com/mschirtzinger/tripsync/internal/trip"
	"github.com/mschirtzinger/tripsync/internal/ui"
)

var watchCmd = &cobra.Command{
	Use:     "watch",
	GroupID: "sync",
	Short:   "Keep a live session and serve the dashboard",
	Long: `Run a long-lived sync session with a WebSocket dashboard.

The session polls the remote store, saves edits made from the dashboard after a
short delay and prints every status change. Open http://localhost:<port>/ in a
browser, or connect a WebSocket client to ws://localhost:<port>/ws.

Stop with Ctrl+C; pending edits are saved before exit.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		c, err := openClient(ctx)
		if err != nil {
			fatal("%v", err)
		}
		defer c.Close()

		sess, err := session.NewWithConfig(c.backend.Store, c.sessionConfig())
		if err != nil {
			fatal("%v", err)
		}

		server := dashboard.NewServer(&dashboard.Config{
			Port:   cfg.Dashboard.Port,
			Logger: logs.Logger("dashboard"),
		}, sess)
		sess.AddListener(dashboard.NewHandler(server, logs.Debug("dashboard")))
		sess.AddListener(session.ListenerFuncs{Status: printStatus, Replaced: printReplaced})

		if err := server.Start(); err != nil {
			fatal("failed to start dashboard: %v", err)
		}

		// The initial load error is already reported as a status; keep running on defaults.
		_ = sess.Start(ctx)

		fmt.Printf("Dashboard: http://%s/\n", displayAddr(server.GetAddr()))
		fmt.Println("Press Ctrl+C to stop...")

		<-ctx.Done()
		fmt.Println("\nShutting down...")

		closeCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		// Stop the dashboard first so no command lands after the final flush.
		stopErr := server.Stop()
		if err := sess.Close(closeCtx); err != nil {
			fatal("failed to save pending changes: %v", err)
		}
		if stopErr != nil {
			fatal("%v", stopErr)
		}
	},
}

func printStatus(st session.Status) {
	text := st.Text()
	switch {
	case st.IsError():
		text = ui.RenderFail(text)
	case st.Kind == session.KindReadOnly || st.Kind == session.KindRemotePending:
		text = ui.RenderWarn(text)
	case st.Kind == session.KindSaved || st.Kind == session.KindUpdated:
		text = ui.RenderPass(text)
	default:
		text = ui.RenderMuted(text)
	}
	fmt.Println(text)
}

func printReplaced(doc *trip.Document) {
	t := trip.ComputeTotals(doc)
	fmt.Printf("   %s: %s total\n", doc.Meta.Title, ui.Money(t.Total, doc.Meta.Currency))
}

func displayAddr(addr string) string {
	if len(addr) > 0 && addr[0] == ':' {
		return "localhost" + addr
	}
	if len(addr) > 5 && addr[:5] == "[::]:" {
		return "localhost:" + addr[5:]
	}
	return addr
}

func init() {
	watchCmd.Flags().IntP("port", "p", 8080, "Dashboard port")

	rootCmd.AddCommand(watchCmd)
}
