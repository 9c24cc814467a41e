package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/notifyhub/pantry-pipeline/internal/expiry"
	"github.com/notifyhub/pantry-pipeline/internal/scheduler"
	"github.com/notifyhub/pantry-pipeline/internal/service"
	"github.com/notifyhub/pantry-pipeline/internal/worker"
)

// deps is what the commands operate on.
type deps struct {
	reconciler *service.Reconciler
	newRelay   func(grace time.Duration, batch int) *worker.OutboxRelay
	index      expiry.Index
	sched      *scheduler.Scheduler
}

type opener func(ctx context.Context) (*deps, func(), error)

// withDeps opens the dependencies for one command run and closes them after.
func withDeps(open opener, run func(cmd *cobra.Command, d *deps) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		d, closeFn, err := open(cmd.Context())
		if err != nil {
			return fmt.Errorf("connect: %w", err)
		}
		defer closeFn()
		return run(cmd, d)
	}
}

func newRootCmd(open opener) *cobra.Command {
	root := &cobra.Command{
		Use:          "pipelinectl",
		Short:        "Pantry pipeline maintenance CLI",
		Long:         "pipelinectl repairs derived pipeline state (expiration index, reminder jobs) replays unpublished expiration events and prunes published ones.",
		SilenceUsage: true,
	}

	// reconcile index|jobs
	reconcileCmd := &cobra.Command{Use: "reconcile", Short: "Rebuild derived state from the record store"}
	reconcileCmd.AddCommand(&cobra.Command{
		Use:   "index",
		Short: "Re-index every Active item with an expiry date",
		RunE: withDeps(open, func(cmd *cobra.Command, d *deps) error {
			n, err := d.reconciler.RebuildIndex(cmd.Context())
			if err != nil {
				return err
			}
			cmd.Printf("indexed %d items\n", n)
			return nil
		}),
	})
	reconcileCmd.AddCommand(&cobra.Command{
		Use:   "jobs",
		Short: "Schedule a job for every pending reminder and cancel orphan jobs",
		RunE: withDeps(open, func(cmd *cobra.Command, d *deps) error {
			scheduled, canceled, err := d.reconciler.RebuildJobs(cmd.Context())
			if err != nil {
				return err
			}
			cmd.Printf("scheduled %d jobs, canceled %d orphans\n", scheduled, canceled)
			return nil
		}),
	})
	root.AddCommand(reconcileCmd)

	// outbox replay|prune
	outboxCmd := &cobra.Command{Use: "outbox", Short: "Expiration event outbox operations"}
	replayCmd := &cobra.Command{
		Use:   "replay",
		Short: "Publish every outbox row that is still unpublished",
		RunE: withDeps(open, func(cmd *cobra.Command, d *deps) error {
			grace, _ := cmd.Flags().GetDuration("grace")
			batch, _ := cmd.Flags().GetInt("batch")
			relay := d.newRelay(grace, batch)

			total := 0
			for {
				n, err := relay.RunOnce(cmd.Context())
				total += n
				if err != nil {
					return fmt.Errorf("replay stopped after %d events: %w", total, err)
				}
				if n == 0 || n < batch {
					break
				}
			}
			cmd.Printf("replayed %d events\n", total)
			return nil
		}),
	}
	replayCmd.Flags().Duration("grace", 0, "Only replay rows older than this")
	replayCmd.Flags().Int("batch", 500, "Rows per round")
	outboxCmd.AddCommand(replayCmd)

	pruneCmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete outbox rows published longer ago than --older-than",
		RunE: withDeps(open, func(cmd *cobra.Command, d *deps) error {
			olderThan, _ := cmd.Flags().GetDuration("older-than")
			n, err := d.newRelay(0, 0).Prune(cmd.Context(), olderThan)
			if err != nil {
				return err
			}
			cmd.Printf("pruned %d events\n", n)
			return nil
		}),
	}
	pruneCmd.Flags().Duration("older-than", 7*24*time.Hour, "Keep rows published more recently than this")
	outboxCmd.AddCommand(pruneCmd)
	root.AddCommand(outboxCmd)

	// status
	root.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show expiration index depth and scheduled reminder jobs",
		RunE: withDeps(open, func(cmd *cobra.Command, d *deps) error {
			depth, err := d.index.Len(cmd.Context())
			if err != nil {
				return err
			}
			jobs, err := d.sched.Jobs(cmd.Context(), service.SendReminderJob)
			if err != nil {
				return err
			}
			cmd.Printf("expiration index: %d entries\n", depth)
			if next, ok, err := d.index.Next(cmd.Context()); err == nil && ok {
				cmd.Printf("next expiration:  %s at %s\n", next.ItemID, next.ExpiresAt.Format(time.RFC3339))
			}
			cmd.Printf("reminder jobs:    %d\n", len(jobs))
			return nil
		}),
	})

	return root
}
