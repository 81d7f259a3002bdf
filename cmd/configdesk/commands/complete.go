package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/configdesk/configdesk/pkg/completion"
)

func newCompleteCommand() *cobra.Command {
	var (
		line   int
		column int
	)

	cmd := &cobra.Command{
		Use:   "complete FILE",
		Short: "Print completion suggestions at a cursor position",
		Long: `Resolve the cursor at --line and --column in FILE and print the
suggestions an editor would offer there.

Lines are 1-based; columns are 0-based character offsets. Use "-" to read
the document from stdin.`,
		Example: `  # Suggest keys at the end of line 3
  configdesk complete config.yaml --line 3 --column 4

  # Machine-readable output
  configdesk complete config.yaml --line 2 --column 9 --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if line < 1 {
				return fmt.Errorf("--line must be at least 1")
			}
			if column < 0 {
				return fmt.Errorf("--column must not be negative")
			}

			text, err := readDocument(cmd, args[0])
			if err != nil {
				return err
			}

			svc := completion.NewService(nil, nil)
			res, err := svc.CompleteAt(cmd.Context(), text, line-1, column)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				return printJSON(out, res)
			}

			fmt.Fprintf(out, "path: %s (%s)\n", displayPath(res.Context.Path.String()), res.Context.TokenKind)
			if !res.Located {
				fmt.Fprintln(out, "no schema node at this position")
				return nil
			}
			if len(res.Items) == 0 {
				fmt.Fprintln(out, "no suggestions")
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			for _, it := range res.Items {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", it.Label, it.Kind, it.Detail)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().IntVarP(&line, "line", "l", 1, "cursor line (1-based)")
	cmd.Flags().IntVar(&column, "column", 0, "cursor column (0-based)")

	return cmd
}

func displayPath(p string) string {
	if p == "" {
		return "<root>"
	}
	return p
}
