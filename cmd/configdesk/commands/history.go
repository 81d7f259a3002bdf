package commands

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/configdesk/configdesk/pkg/config"
	"github.com/configdesk/configdesk/pkg/stores"
)

func newHistoryCommand() *cobra.Command {
	var (
		limit  int
		offset int
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List saved config revisions",
		Long: `List revisions kept by the SQLite store, newest first.

Requires store.driver to be sqlite (CONFIGDESK_STORE_DRIVER=sqlite).`,
		Example: `  configdesk history --limit 10
  configdesk history show 3f1c...
  configdesk history restore 3f1c...
  configdesk history prune --keep 20`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openRevisionStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			revs, err := store.ListRevisions(cmd.Context(), limit, offset)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				return printJSON(out, revs)
			}
			if len(revs) == 0 {
				fmt.Fprintln(out, "No revisions found")
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tCREATED\tCHECKSUM\tVALID")
			for _, r := range revs {
				_, decodeErr := config.Decode(r.Text, nil)
				fmt.Fprintf(tw, "%s\t%s\t%s\t%v\n", r.ID, r.CreatedAt.Local().Format(time.RFC3339), r.Checksum[:12], decodeErr == nil)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum revisions to list")
	cmd.Flags().IntVar(&offset, "offset", 0, "revisions to skip")

	cmd.AddCommand(newHistoryShowCommand())
	cmd.AddCommand(newHistoryRestoreCommand())
	cmd.AddCommand(newHistoryPruneCommand())

	return cmd
}

func newHistoryShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Print one revision",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openRevisionStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			rev, err := store.GetRevision(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), rev)
			}
			fmt.Fprint(cmd.OutOrStdout(), rev.Text)
			return nil
		},
	}
}

func newHistoryRestoreCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "restore ID",
		Short: "Make an earlier revision current",
		Long: `Save the text of revision ID as a new revision. The revision must be
valid against the schema.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := openRevisionStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			rev, err := store.GetRevision(ctx, args[0])
			if err != nil {
				return err
			}
			if _, err := config.Decode(rev.Text, nil); err != nil {
				return fmt.Errorf("revision %s is not a valid config: %w", rev.ID, err)
			}

			snap := &stores.Snapshot{Text: rev.Text}
			if err := store.Save(ctx, snap); err != nil {
				return err
			}
			log.Info().Str("from", rev.ID).Str("revision", snap.ID).Msg("Restored revision")
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Restored %s as %s\n", rev.ID, snap.ID)
			return nil
		},
	}
}

func newHistoryPruneCommand() *cobra.Command {
	var keep int

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete all but the newest revisions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openRevisionStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			n, err := store.PruneRevisions(cmd.Context(), keep)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Removed %d revisions\n", n)
			return nil
		},
	}

	cmd.Flags().IntVar(&keep, "keep", 20, "revisions to keep")

	return cmd
}

// openRevisionStore opens the configured store and checks that it keeps
// history.
func openRevisionStore(ctx context.Context) (stores.RevisionStore, error) {
	cfg, err := loadSettings()
	if err != nil {
		return nil, err
	}
	store, err := cfg.OpenStore(ctx, log.Logger)
	if err != nil {
		return nil, err
	}
	rs, ok := store.(stores.RevisionStore)
	if !ok {
		_ = store.Close()
		return nil, fmt.Errorf("the %s store keeps no history; set store.driver to sqlite", store.Name())
	}
	return rs, nil
}
