package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/nexpy/nxguard/internal/storage"
	"github.com/nexpy/nxguard/internal/tree"
)

var getCmd = &cobra.Command{
	Use:   "get <file> [path]",
	Short: "Print a field or group from a data file",
	Long: `Print the value of a field, or every field below a group.

Without a path the whole file is printed. Reads never take the lock; they
reload only when the file changed since it was last read.

Examples:
  nxguard get scan.nxs entry/title
  nxguard get scan.nxs entry/sample`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runGet,
}

func init() {
	rootCmd.AddCommand(getCmd)
}

func runGet(cmd *cobra.Command, args []string) error {
	mgr, logger, err := newManager()
	if err != nil {
		return err
	}
	defer logger.Close()

	root, err := mgr.Load(args[0], storage.ReadOnly)
	if err != nil {
		return err
	}
	t, err := root.Tree()
	if err != nil {
		return err
	}

	path := ""
	if len(args) == 2 {
		path = args[1]
	}
	node, err := t.Lookup(path)
	if err != nil {
		return err
	}
	return printNode(cmd.OutOrStdout(), path, node)
}

// printNode prints a field's value on its own, or "path: value" for every
// field below a group.
func printNode(w io.Writer, path string, node *tree.Node) error {
	if !node.IsGroup() {
		s, err := formatValue(node.Value)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, s)
		return err
	}

	sub := &tree.Tree{Root: node}
	var werr error
	sub.Walk(func(rel string, n *tree.Node) {
		if werr != nil || n.IsGroup() {
			return
		}
		s, err := formatValue(n.Value)
		if err != nil {
			werr = err
			return
		}
		full := rel
		if p := strings.Trim(path, "/"); p != "" {
			full = p + "/" + rel
		}
		_, werr = fmt.Fprintf(w, "%s: %s\n", full, s)
	})
	return werr
}

// formatValue renders a value as single-line YAML.
func formatValue(v any) (string, error) {
	out, err := yaml.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("format value: %w", err)
	}
	s := strings.TrimSpace(string(out))
	if strings.Contains(s, "\n") {
		// Collections print in flow style to stay on one line
		var node yaml.Node
		if err := node.Encode(v); err == nil {
			node.Style = yaml.FlowStyle
			if flow, err := yaml.Marshal(&node); err == nil {
				s = strings.TrimSpace(string(flow))
			}
		}
	}
	return s, nil
}
