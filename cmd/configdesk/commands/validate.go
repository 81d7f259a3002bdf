package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/configdesk/configdesk/pkg/config"
)

// fileReport is the validation outcome for one file.
type fileReport struct {
	File   string              `json:"file"`
	Valid  bool                `json:"valid"`
	Kind   string              `json:"kind,omitempty"`
	Error  string              `json:"error,omitempty"`
	Errors []config.FieldError `json:"errors,omitempty"`
}

func newValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate FILE...",
		Short: "Validate configuration files against the schema",
		Long: `Validate configuration files against the schema.

This command checks:
  - YAML syntax validity
  - Unknown, duplicate and missing keys
  - Value types, ranges and enum membership

Every problem is reported with its key path. The command fails if any
file is invalid.`,
		Example: `  # Validate the default config
  configdesk validate .data/config.yaml

  # Validate several files, JSON report
  configdesk validate a.yaml b.yaml --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reports := make([]fileReport, 0, len(args))
			failed := 0
			for _, path := range args {
				text, err := readDocument(cmd, path)
				if err != nil {
					return err
				}
				r := checkDocument(path, text)
				if !r.Valid {
					failed++
				}
				reports = append(reports, r)
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				if err := printJSON(out, reports); err != nil {
					return err
				}
			} else {
				for _, r := range reports {
					if r.Valid {
						fmt.Fprintf(out, "✓ %s\n", r.File)
						continue
					}
					fmt.Fprintf(out, "✗ %s\n", r.File)
					if len(r.Errors) == 0 {
						fmt.Fprintf(out, "    %s\n", r.Error)
					}
					for _, fe := range r.Errors {
						fmt.Fprintf(out, "    %s\n", fe)
					}
				}
			}

			if failed > 0 {
				return fmt.Errorf("%d of %d files invalid", failed, len(args))
			}
			return nil
		},
	}

	return cmd
}

func checkDocument(path, text string) fileReport {
	r := fileReport{File: path, Valid: true}
	if _, err := config.Decode(text, nil); err != nil {
		r.Valid = false
		r.Error = err.Error()

		var ve *config.ValidationError
		if errors.As(err, &ve) {
			r.Kind = "validation_error"
			r.Errors = ve.Errors
		} else {
			r.Kind = "parse_error"
		}
	}
	return r
}
