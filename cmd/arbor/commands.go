package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/jacentio/arbor/tree"
	"github.com/jacentio/arbor/treepath"
	"github.com/jacentio/arbor/value"
)

var (
	getCmd = &cobra.Command{
		Use:   "get [path]",
		Short: "Reads the value at a path, optionally ordered, filtered and limited",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := tree.ParseQuery(queryParams(cmd))
			if err != nil {
				return err
			}
			res, err := tr.Query(cmd.Context(), treepath.Parse(args[0]), q)
			if err != nil {
				return err
			}
			pretty, _ := cmd.Flags().GetBool("pretty")
			return writeJSON(cmd.OutOrStdout(), res, pretty)
		},
	}
	putCmd = &cobra.Command{
		Use:   "put [path] [json]",
		Short: "Replaces the value at a path (use - to read the value from stdin)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := readValue(cmd, args[1])
			if err != nil {
				return err
			}
			stored, err := tr.Replace(cmd.Context(), treepath.Parse(args[0]), v)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), stored, false)
		},
	}
	patchCmd = &cobra.Command{
		Use:   "patch [path] [json]",
		Short: "Merges an object into the value at a path; null entries remove fields",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := readValue(cmd, args[1])
			if err != nil {
				return err
			}
			merged, err := tr.Merge(cmd.Context(), treepath.Parse(args[0]), v)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), merged, false)
		},
	}
	postCmd = &cobra.Command{
		Use:   "post [path] [json]",
		Short: "Adds a value under a generated name and prints the name",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := readValue(cmd, args[1])
			if err != nil {
				return err
			}
			name, err := tr.Create(cmd.Context(), treepath.Parse(args[0]), v)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), map[string]string{"name": name}, false)
		},
	}
	deleteCmd = &cobra.Command{
		Use:   "delete [path]",
		Short: "Removes the value at a path",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := tr.Remove(cmd.Context(), treepath.Parse(args[0])); err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), nil, false)
		},
	}

	indexCmd = &cobra.Command{
		Use:   "index",
		Short: "Manage the index rules that permit value and field ordering",
	}
	indexSetCmd = &cobra.Command{
		Use:   "set [path] [json]",
		Short: `Declares what queries at a path may order by (default ".value")`,
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			spec := value.Null()
			if len(args) == 2 {
				v, err := readValue(cmd, args[1])
				if err != nil {
					return err
				}
				spec = v
			}
			rule, err := tr.SetIndex(cmd.Context(), treepath.Parse(args[0]), spec)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), rule.IndexOn, false)
		},
	}
	indexGetCmd = &cobra.Command{
		Use:   "get [path]",
		Short: "Prints the index rule for a path, or null",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rule, ok, err := tr.GetIndex(cmd.Context(), treepath.Parse(args[0]))
			if err != nil {
				return err
			}
			if !ok {
				return writeJSON(cmd.OutOrStdout(), nil, false)
			}
			return writeJSON(cmd.OutOrStdout(), rule.IndexOn, false)
		},
	}
	indexDeleteCmd = &cobra.Command{
		Use:   "delete [path]",
		Short: "Removes the index rule for a path",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return tr.DeleteIndex(cmd.Context(), treepath.Parse(args[0]))
		},
	}
)

func init() {
	indexCmd.AddCommand(indexSetCmd)
	indexCmd.AddCommand(indexGetCmd)
	indexCmd.AddCommand(indexDeleteCmd)
}

// readValue parses raw as JSON, reading it from stdin when raw is "-".
func readValue(cmd *cobra.Command, raw string) (value.Value, error) {
	data := []byte(raw)
	if raw == "-" {
		var err error
		if data, err = io.ReadAll(cmd.InOrStdin()); err != nil {
			return value.Value{}, fmt.Errorf("read stdin: %w", err)
		}
	}
	v, err := value.Parse(data)
	if err != nil {
		return value.Value{}, fmt.Errorf("%w: %w", tree.ErrInvalidPayload, err)
	}
	return v, nil
}

func writeJSON(w io.Writer, x any, pretty bool) error {
	data, err := json.Marshal(x)
	if err != nil {
		return err
	}
	if pretty {
		var buf bytes.Buffer
		if err := json.Indent(&buf, data, "", "  "); err != nil {
			return err
		}
		data = buf.Bytes()
	}
	_, err = fmt.Fprintf(w, "%s\n", data)
	return err
}
