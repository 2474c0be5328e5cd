package cli

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/internal/domain/table"
)

// NewTablesCmd creates the tables command group.
func NewTablesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tables",
		Short: "Inspect tables in the configured store",
	}
	cmd.AddCommand(newTablesListCmd(), newTablesShowCmd(), newTablesDeleteCmd())
	return cmd
}

func newTablesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list [prefix]",
		Short: "List table names, optionally filtered by prefix",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := commandContext(cmd, cliCtx)
			defer cancel()

			store, closeStore, err := openStore(ctx, cliCtx.Config, cliCtx.Logger)
			if err != nil {
				return err
			}
			defer closeStore()

			prefix := ""
			if len(args) == 1 {
				prefix = args[0]
			}
			names, err := store.List(ctx, prefix)
			if err != nil {
				return err
			}
			return PrintResult(cmd, nameList(names))
		},
	}
}

func newTablesShowCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "show NAME",
		Short: "Print the rows of a table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := commandContext(cmd, cliCtx)
			defer cancel()

			store, closeStore, err := openStore(ctx, cliCtx.Config, cliCtx.Logger)
			if err != nil {
				return err
			}
			defer closeStore()

			t, err := store.Get(ctx, args[0])
			if err != nil {
				return err
			}
			return PrintResult(cmd, &tableView{Table: t, limit: limit})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum rows to print (0 = all)")
	return cmd
}

func newTablesDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete NAME...",
		Short: "Delete tables",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := commandContext(cmd, cliCtx)
			defer cancel()

			store, closeStore, err := openStore(ctx, cliCtx.Config, cliCtx.Logger)
			if err != nil {
				return err
			}
			defer closeStore()

			for _, name := range args {
				if err := store.Delete(ctx, name); err != nil {
					return err
				}
				PrintSuccess(cmd, "deleted "+name)
			}
			return nil
		},
	}
}

type nameList []string

func (n nameList) String() string { return strings.Join(n, "\n") }

func (n nameList) TableHeaders() []string { return []string{"TABLE"} }

func (n nameList) TableRows() [][]string {
	rows := make([][]string, len(n))
	for i, name := range n {
		rows[i] = []string{name}
	}
	return rows
}

// tableView renders the first limit rows of a table, keys ascending. Null
// cells print as an empty string.
type tableView struct {
	*table.Table
	limit int
}

func (v *tableView) keys() []int64 {
	keys := v.Keys()
	if v.limit > 0 && len(keys) > v.limit {
		keys = keys[:v.limit]
	}
	return keys
}

func (v *tableView) TableHeaders() []string {
	return append([]string{v.KeyName}, v.Columns()...)
}

func (v *tableView) TableRows() [][]string {
	cols := v.Columns()
	keys := v.keys()
	rows := make([][]string, 0, len(keys))
	for _, k := range keys {
		row := []string{strconv.FormatInt(k, 10)}
		for _, c := range cols {
			cell := ""
			if val, ok := v.Get(k, c); ok {
				cell = strconv.FormatFloat(val, 'g', -1, 64)
			}
			row = append(row, cell)
		}
		rows = append(rows, row)
	}
	return rows
}

func (v *tableView) String() string {
	out := fmt.Sprintf("%s (%d rows)\n", v.Name, v.Len())
	out += FormatTable(v.TableHeaders(), v.TableRows())
	if v.limit > 0 && v.Len() > v.limit {
		out += fmt.Sprintf("... %d more rows\n", v.Len()-v.limit)
	}
	return strings.TrimRight(out, "\n")
}

// MarshalJSON emits the attributes and the printed rows.
func (v *tableView) MarshalJSON() ([]byte, error) {
	type jsonRow struct {
		Key    int64               `json:"key"`
		Values map[string]*float64 `json:"values"`
	}
	out := struct {
		Name    string            `json:"name"`
		KeyName string            `json:"key_name"`
		Columns []string          `json:"columns"`
		Attrs   map[string]string `json:"attrs,omitempty"`
		Rows    []jsonRow         `json:"rows"`
	}{Name: v.Name, KeyName: v.KeyName, Columns: v.Columns(), Attrs: v.Attrs()}
	for _, k := range v.keys() {
		r := jsonRow{Key: k, Values: map[string]*float64{}}
		for _, c := range out.Columns {
			if val, ok := v.Get(k, c); ok {
				val := val
				r.Values[c] = &val
			} else {
				r.Values[c] = nil
			}
		}
		out.Rows = append(out.Rows, r)
	}
	return json.Marshal(out)
}
