package commands

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/configdesk/configdesk/pkg/stores"
)

func newInitCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init [PATH]",
		Short: "Write the default configuration",
		Long: `Write the default configuration to PATH (default .data/config.yaml),
creating parent directories as needed. An existing file is left alone
unless --force is given.`,
		Example: `  configdesk init
  configdesk init ./config.yaml --force`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := stores.DefaultFilePath
			if len(args) > 0 {
				path = args[0]
			}

			_, err := os.Stat(path)
			switch {
			case err == nil && !force:
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			case err != nil && !errors.Is(err, fs.ErrNotExist):
				return fmt.Errorf("failed to check %s: %w", path, err)
			}

			if err := stores.NewFileStore(path).Save(cmd.Context(), &stores.Snapshot{Text: stores.DefaultText()}); err != nil {
				return err
			}

			log.Info().Str("path", path).Msg("Wrote default config")
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Created %s\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing file")

	return cmd
}
