package commands

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/configdesk/configdesk/pkg/api"
	"github.com/configdesk/configdesk/pkg/schema"
)

func newSchemaCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Print the configuration schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			root := schema.Default()
			if jsonOutput {
				return printJSON(out, api.DescribeSchema(root))
			}
			for _, c := range root.Children() {
				printNode(out, c, 0)
			}
			return nil
		},
	}
	return cmd
}

func printNode(w io.Writer, n *schema.Node, depth int) {
	indent := strings.Repeat("  ", depth)
	switch {
	case n.IsSection():
		fmt.Fprintf(w, "%s%s:  # %s\n", indent, n.Name, n.Description)
		for _, c := range n.Children() {
			printNode(w, c, depth+1)
		}
	case n.ValueType == schema.TypeEnum:
		fmt.Fprintf(w, "%s%s: %s  # %s\n", indent, n.Name, strings.Join(n.EnumValues, " | "), n.Description)
	default:
		fmt.Fprintf(w, "%s%s: <%s>  # %s\n", indent, n.Name, n.ValueType, n.Description)
	}
}
