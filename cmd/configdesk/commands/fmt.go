package commands

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/configdesk/configdesk/pkg/config"
	"github.com/configdesk/configdesk/pkg/stores"
)

func newFmtCommand() *cobra.Command {
	var write bool

	cmd := &cobra.Command{
		Use:   "fmt FILE",
		Short: "Rewrite a config in canonical form",
		Long: `Decode FILE and print it re-serialized with two-space indentation and
keys in schema order. Comments are not preserved. With --write the file is
replaced atomically instead.`,
		Example: `  configdesk fmt config.yaml
  configdesk fmt config.yaml --write`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			text, err := readDocument(cmd, path)
			if err != nil {
				return err
			}

			cfg, err := config.Decode(text, nil)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			formatted, err := config.Serialize(cfg, nil)
			if err != nil {
				return err
			}

			if !write || path == "-" {
				fmt.Fprint(cmd.OutOrStdout(), formatted)
				return nil
			}
			if formatted == text {
				log.Debug().Str("file", path).Msg("Already formatted")
				return nil
			}
			if err := stores.NewFileStore(path).Save(cmd.Context(), &stores.Snapshot{Text: formatted}); err != nil {
				return err
			}
			log.Info().Str("file", path).Msg("Formatted")
			return nil
		},
	}

	cmd.Flags().BoolVarP(&write, "write", "w", false, "write the result back to FILE")

	return cmd
}
