package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/shp"
	"github.com/spf13/cobra"

	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/internal/domain/grid"
	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/internal/domain/table"
	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/internal/infrastructure/monitoring/logging"
	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/internal/infrastructure/storage/tablecsv"
	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/pkg/errors"
)

// NewExportCmd creates the export command group.
func NewExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export stored tables to CSV or to a planning unit shapefile",
	}
	cmd.AddCommand(newExportCSVCmd(), newExportShapefileCmd())
	return cmd
}

func newExportCSVCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "csv NAME",
		Short: "Write a table as CSV (stdout unless --file is given)",
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

			var w io.Writer = cmd.OutOrStdout()
			if file != "" {
				f, err := os.Create(file)
				if err != nil {
					return errors.Wrap(err, errors.ErrCodeInternal, "creating export file").WithDetail(file)
				}
				defer f.Close()
				w = f
			}
			return tablecsv.Encode(w, t)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "output file")
	return cmd
}

// unitRecord is one shapefile record: a planning unit polygon and the value
// of the exported column. DBF field names are limited to ten characters.
type unitRecord struct {
	geom.Polygon
	UnitID int
	Value  float64
}

func newExportShapefileCmd() *cobra.Command {
	var file, column string
	cmd := &cobra.Command{
		Use:   "shp NAME",
		Short: "Join a unit keyed table to the grid and write it as a shapefile",
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
			cat, err := newCatalog(cliCtx)
			if err != nil {
				return err
			}
			ref, err := cat.LoadReference(ctx)
			if err != nil {
				return err
			}
			if file == "" {
				file = t.Name + ".shp"
			}
			n, err := writeUnitShapefile(file, t, column, ref.Grid, cliCtx.Logger)
			if err != nil {
				return err
			}
			PrintSuccess(cmd, fmt.Sprintf("wrote %s (%d units)", file, n))
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "output .shp path (default: NAME.shp)")
	cmd.Flags().StringVar(&column, "column", "", "column to export (default: the last column)")
	return cmd
}

// writeUnitShapefile writes one record per table row whose key is a grid unit
// and whose column value is not null. It returns the number of records.
func writeUnitShapefile(path string, t *table.Table, column string, g *grid.Grid, logger logging.Logger) (int, error) {
	if t.KeyName != table.KeyUnit {
		return 0, errors.InvalidParam("only unit keyed tables can be joined to the grid").WithDetail(t.Name)
	}
	if column == "" {
		cols := t.Columns()
		if len(cols) == 0 {
			return 0, errors.InvalidParam("table has no columns").WithDetail(t.Name)
		}
		column = cols[len(cols)-1]
	}
	if !t.HasColumn(column) {
		return 0, errors.InvalidParam("unknown column").WithDetailf("table=%s column=%s", t.Name, column)
	}

	enc, err := shp.NewEncoder(path, unitRecord{})
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeInternal, "creating shapefile").WithDetail(path)
	}
	defer enc.Close()

	n := 0
	for _, k := range t.Keys() {
		v, ok := t.Get(k, column)
		if !ok {
			continue
		}
		u, ok := g.Unit(k)
		if !ok || u.Geometry == nil {
			logger.Warn("unit not in grid", logging.Int64("unit_id", k), logging.Table(t.Name))
			continue
		}
		rec := unitRecord{Polygon: flatten(u.Geometry), UnitID: int(k), Value: v}
		if err := enc.Encode(rec); err != nil {
			return n, errors.Wrap(err, errors.ErrCodeInternal, "writing shapefile record").WithDetailf("unit_id=%d", k)
		}
		n++
	}
	return n, nil
}

// flatten merges the rings of every polygon into one shapefile polygon.
func flatten(p geom.Polygonal) geom.Polygon {
	var out geom.Polygon
	for _, poly := range p.Polygons() {
		out = append(out, poly...)
	}
	return out
}
