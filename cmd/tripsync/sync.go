package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/tripsync/internal/trip"
	"github.com/mschirtzinger/tripsync/internal/ui"
)

var pullCmd = &cobra.Command{
	Use:     "pull",
	GroupID: "sync",
	Short:   "Read the shared document",
	Long: `Read the shared document from the remote store, normalize it against the
configured trip and print a summary, or write it to a file with --out.`,
	Run: func(cmd *cobra.Command, args []string) {
		out, _ := cmd.Flags().GetString("out")
		ctx := cmd.Context()

		c, err := openClient(ctx)
		if err != nil {
			fatal("%v", err)
		}
		defer c.Close()

		doc, version, err := c.backend.Store.Read(ctx)
		if err != nil {
			fatal("failed to read %s: %v", c.backend.Store.Name(), err)
		}
		doc = trip.Normalize(doc, cfg.Fixed())

		if out != "" {
			if err := trip.WriteFile(out, doc); err != nil {
				fatal("%v", err)
			}
			fmt.Printf("%s Wrote %s (version %s)\n", ui.RenderPass("✓"), out, version)
			return
		}
		printSummary(doc, version.String(), c.writable)
	},
}

var pushCmd = &cobra.Command{
	Use:     "push <file>",
	GroupID: "sync",
	Short:   "Replace the shared document with a local file",
	Long: `Replace the shared document with the contents of a local JSON file.

The file is normalized against the configured trip first. If someone else saved in the
meantime their version is overwritten (last writer wins).`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		local, err := trip.ReadFile(args[0])
		if err != nil {
			fatal("%v", err)
		}

		c, err := openClient(ctx)
		if err != nil {
			fatal("%v", err)
		}
		defer c.Close()

		sess, err := c.startSession(ctx)
		if err != nil {
			fatal("%v", err)
		}
		err = sess.Update(func(doc *trip.Document) error {
			*doc = *trip.Normalize(local, cfg.Fixed())
			return nil
		})
		if err != nil {
			fatal("%v", err)
		}
		if err := saveAndClose(ctx, sess); err != nil {
			fatal("%v", err)
		}
	},
}

var totalsCmd = &cobra.Command{
	Use:     "totals",
	GroupID: "sync",
	Short:   "Print cost totals",
	Long:    `Print the flights, stays and expenses totals of the shared document. Activities are not counted.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		c, err := openClient(ctx)
		if err != nil {
			fatal("%v", err)
		}
		defer c.Close()

		doc, _, err := c.backend.Store.Read(ctx)
		if err != nil {
			fatal("failed to read %s: %v", c.backend.Store.Name(), err)
		}
		doc = trip.Normalize(doc, cfg.Fixed())
		fmt.Println(ui.TotalsTable(trip.ComputeTotals(doc), doc.Meta.Currency))
	},
}

func printSummary(doc *trip.Document, version string, writable bool) {
	activities := 0
	for _, d := range doc.Days {
		activities += len(d.Activities)
	}

	fmt.Printf("\n%s\n", ui.RenderAccent(doc.Meta.Title))
	fmt.Printf("   Dates:      %s .. %s (%d days)\n", doc.Meta.StartDate, doc.Meta.EndDate, len(doc.Days))
	fmt.Printf("   Currency:   %s\n", doc.Meta.Currency)
	fmt.Printf("   Activities: %d\n", activities)
	fmt.Printf("   Flights:    %d\n", len(doc.Flights))
	fmt.Printf("   Stays:      %d\n", len(doc.Stays))
	fmt.Printf("   Expenses:   %d\n", len(doc.Expenses))
	fmt.Printf("   Version:    %s\n", version)
	if doc.Meta.LastWriterID != "" {
		fmt.Printf("   Last writer: %s\n", ui.RenderMuted(doc.Meta.LastWriterID))
	}
	if !writable {
		fmt.Printf("\n%s Read-only: no write credential\n", ui.RenderWarn("⚠"))
	}
	fmt.Println()
	fmt.Println(ui.TotalsTable(trip.ComputeTotals(doc), doc.Meta.Currency))
}

func init() {
	pullCmd.Flags().StringP("out", "o", "", "Write the document to this file")

	rootCmd.AddCommand(pullCmd, pushCmd, totalsCmd)
}
