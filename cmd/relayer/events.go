package main

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"bridge/relayer/internal/models"
	"bridge/relayer/internal/services"
	"bridge/relayer/internal/stores"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
)

func eventsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Inspect and repair the processed-event log",
	}
	cmd.AddCommand(
		eventsListCmd(opts),
		eventsShowCmd(opts),
		eventsRetryCmd(opts),
		eventsAbandonCmd(opts),
		cursorsCmd(opts),
	)
	return cmd
}

func eventsListCmd(opts *rootOptions) *cobra.Command {
	var status, role string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded events, oldest block first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var statuses []models.Status
			if status != "" {
				st, ok := models.ParseStatus(status)
				if !ok {
					return errors.Newf("unknown status %q", status)
				}
				statuses = append(statuses, st)
			}

			l, err := openLedger(cmd.Context(), opts.cfg, false)
			if err != nil {
				return err
			}
			defer l.close()

			recs, err := stores.FilterStatus(cmd.Context(), l.events, statuses...)
			if err != nil {
				return err
			}
			sort.SliceStable(recs, func(i, j int) bool {
				if recs[i].BlockNumber != recs[j].BlockNumber {
					return recs[i].BlockNumber < recs[j].BlockNumber
				}
				return recs[i].LogIndex < recs[j].LogIndex
			})

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tROLE\tBLOCK\tMETHOD\tSTATUS\tATTEMPTS\tREVERTS\tMIRROR TX\tERROR")
			for _, r := range recs {
				if role != "" && string(r.Role) != role {
					continue
				}
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%d\t%d\t%s\t%s\n",
					r.ID, r.Role, r.BlockNumber, r.Method, r.Status, r.Attempts, r.Reverts, r.MirrorTxHash, r.Error)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "only events in this status, e.g. FAILED")
	cmd.Flags().StringVar(&role, "role", "", "only events watched on this role")
	return cmd
}

func eventsShowCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Print one event record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := openLedger(cmd.Context(), opts.cfg, false)
			if err != nil {
				return err
			}
			defer l.close()

			rec, err := l.events.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(rec)
		},
	}
}

func eventsRetryCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <id>",
		Short: "Make a failed event eligible for a fresh submission",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := openLedger(cmd.Context(), opts.cfg, true)
			if err != nil {
				return err
			}
			defer l.close()

			rec, err := services.RetryEvent(cmd.Context(), l.events, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("%s is now %s\n", rec.ID, rec.Status)
			return nil
		},
	}
}

func eventsAbandonCmd(opts *rootOptions) *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "abandon <id>",
		Short: "Give up on an event so it stops holding the scan cursor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := openLedger(cmd.Context(), opts.cfg, true)
			if err != nil {
				return err
			}
			defer l.close()

			rec, err := services.AbandonEvent(cmd.Context(), l.events, args[0], reason)
			if err != nil {
				return err
			}
			fmt.Printf("%s is now %s\n", rec.ID, rec.Status)
			return nil
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "recorded on the event")
	return cmd
}

func cursorsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "cursors",
		Short: "Print the last fully processed block of each role",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			l, err := openLedger(cmd.Context(), opts.cfg, false)
			if err != nil {
				return err
			}
			defer l.close()

			cursors, err := stores.LoadAll(cmd.Context(), l.cursors)
			if err != nil {
				return err
			}
			return printJSON(cursors)
		},
	}
}
