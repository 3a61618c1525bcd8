package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/tripsync/internal/trip"
	"github.com/mschirtzinger/tripsync/internal/ui"
)

var setCmd = &cobra.Command{
	Use:     "set <path> <value>",
	GroupID: "edit",
	Short:   "Set one field and save",
	Long: `Set one field of the shared document and save it.

Paths:
  meta.currency
  flights.<id>.<field>    stays.<id>.<field>    expenses.<id>.<field>
  days.<date>.activities.<id>.<field>

Item fields are title, price, link, image and note. Activities also have time,
expenses have category and day. Title and dates come from configuration and
cannot be set.

Examples:
  tripsync set meta.currency EUR
  tripsync set flights.01J2Z3.price "1,234.50"`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		c, err := openClient(ctx)
		if err != nil {
			fatal("%v", err)
		}
		defer c.Close()

		sess, err := c.startSession(ctx)
		if err != nil {
			fatal("%v", err)
		}
		if err := sess.SetField(args[0], args[1]); err != nil {
			_ = sess.Close(ctx)
			fatal("%v", err)
		}
		if err := saveAndClose(ctx, sess); err != nil {
			fatal("%v", err)
		}
	},
}

var addCmd = &cobra.Command{
	Use:     "add <collection>",
	GroupID: "edit",
	Short:   "Add an item and save",
	Long: `Add a new item to flights, stays, expenses or activities and print its id.

Activities need --day. Expenses accept --day to record when they happened. Days can
be given as a date (2026-07-22), a trip day ("day 2") or in words ("july 23").`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		dayRef, _ := cmd.Flags().GetString("day")
		title, _ := cmd.Flags().GetString("title")
		price, _ := cmd.Flags().GetString("price")
		ctx := cmd.Context()

		coll, err := trip.ParseCollection(args[0])
		if err != nil {
			fatal("%v", err)
		}
		day, err := trip.ParseDayRef(dayRef, cfg.Fixed())
		if err != nil {
			fatal("%v", err)
		}
		if coll == trip.CollectionActivities && day == "" {
			fatal("activities need --day")
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

		id, err := sess.AddItem(coll, day)
		if err == nil {
			err = setItemFields(sess.SetField, coll, day, id, map[string]string{
				"title": title,
				"price": price,
			})
		}
		if err == nil && coll == trip.CollectionExpenses && day != "" {
			err = sess.SetField(fmt.Sprintf("expenses.%s.day", id), day)
		}
		if err != nil {
			_ = sess.Close(ctx)
			fatal("%v", err)
		}

		if err := saveAndClose(ctx, sess); err != nil {
			fatal("%v", err)
		}
		fmt.Printf("Added %s %s\n", coll, ui.RenderAccent(id))
	},
}

var rmCmd = &cobra.Command{
	Use:     "rm <collection> <id>",
	GroupID: "edit",
	Short:   "Delete an item and save",
	Args:    cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		coll, err := trip.ParseCollection(args[0])
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
		if err := sess.DeleteItem(coll, args[1]); err != nil {
			_ = sess.Close(ctx)
			fatal("%v", err)
		}
		if err := saveAndClose(ctx, sess); err != nil {
			fatal("%v", err)
		}
	},
}

// setItemFields sets the non-empty fields of a freshly added item.
func setItemFields(set func(path, value string) error, coll trip.Collection, day, id string, fields map[string]string) error {
	prefix := fmt.Sprintf("%s.%s.", coll, id)
	if coll == trip.CollectionActivities {
		prefix = fmt.Sprintf("days.%s.activities.%s.", day, id)
	}
	for _, name := range []string{"title", "price"} {
		value := fields[name]
		if value == "" {
			continue
		}
		if err := set(prefix+name, value); err != nil {
			return err
		}
	}
	return nil
}

func init() {
	addCmd.Flags().String("day", "", "Day of the activity or expense")
	addCmd.Flags().String("title", "", "Item title")
	addCmd.Flags().String("price", "", "Item price")

	rootCmd.AddCommand(setCmd, addCmd, rmCmd)
}
