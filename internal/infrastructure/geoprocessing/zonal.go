package geoprocessing

import (
	"context"

	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/internal/domain/spatial"
)

// Zonal assigns every non-zero cell to the zone containing its centre and
// returns, per zone, Σ value × cell area / zone area. Cells outside the
// raster count as zero, so the result is the zone's area-weighted mean.
func (e *Engine) Zonal(ctx context.Context, r *spatial.Raster, zones []spatial.Zone) (map[int64]float64, error) {
	out := make(map[int64]float64)
	if r == nil {
		return out, nil
	}
	ix := newZoneIndex(zones)
	cellArea := r.CellArea()
	areas := make(map[int64]float64, len(zones))
	for _, z := range zones {
		areas[z.ID] = z.EffectiveArea()
	}

	for j := 0; j < r.NY; j++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for i := 0; i < r.NX; i++ {
			v := r.At(i, j)
			if v == 0 {
				continue
			}
			if z := ix.locate(r.Center(i, j)); z != nil {
				out[z.ID] += v * cellArea
			}
		}
	}
	for id, sum := range out {
		if a := areas[id]; a > 0 {
			out[id] = sum / a
		} else {
			delete(out, id)
		}
	}
	return out, nil
}
