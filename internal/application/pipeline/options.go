package pipeline

import (
	"time"

	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/internal/application/composition"
	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/internal/application/cumulative"
	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/internal/application/intensity"
	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/internal/application/reduction"
	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/internal/application/weighting"
	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/internal/config"
	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/internal/domain/activity"
	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/internal/domain/table"
	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/internal/infrastructure/monitoring/logging"
)

// Options holds the settings of every stage.
type Options struct {
	Intensity   intensity.Options
	Weighting   weighting.Options
	Reduction   reduction.Options
	Composition composition.Options

	// SlowStage is the duration above which a stage is logged at Warn.
	SlowStage time.Duration
	// LockKey names the output lock; empty uses DefaultLockKey.
	LockKey string
}

// DefaultLockKey is the output lock of a run.
const DefaultLockKey = "outputs"

// OptionsFromConfig maps the pipeline section of the configuration.
func OptionsFromConfig(cfg config.PipelineConfig) Options {
	method, err := activity.ParseMethod(cfg.Method)
	if err != nil {
		method = activity.MethodRescale
	}
	return Options{
		Intensity: intensity.Options{
			Method:           method,
			ReclassClasses:   cfg.ReclassClasses,
			ReclassSlope:     cfg.ReclassSlope,
			ReclassIntercept: cfg.ReclassIntercept,
		},
		Weighting: weighting.Options{
			DefaultStressorWeight: cfg.DefaultStressorWeight,
			LandIndexScale:        cfg.LandIndexScale,
		},
		Reduction: reduction.Options{
			CellSize: cfg.DecayCellSize,
			Classes:  cfg.DecayClasses,
		},
		Composition: composition.Options{
			FishingPrefixes:   cfg.FishingPrefixes,
			LenientGearScores: cfg.LenientGearScores,
		},
		SlowStage: cfg.SlowStage,
	}
}

// Services are the stage services of a run.
type Services struct {
	Intensity   intensity.Service
	Weighting   weighting.Service
	Reduction   reduction.Service
	Composition composition.Service
	Cumulative  cumulative.Service
}

// NewServices builds every stage service over the same spatial ports and
// table store.
func NewServices(ports reduction.Ports, store table.Store, opts Options, logger logging.Logger) Services {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return Services{
		Intensity:   intensity.NewService(ports.Classifier, store, opts.Intensity, logger.Named("intensity")),
		Weighting:   weighting.NewService(ports.Overlay, store, opts.Weighting, logger.Named("weighting")),
		Reduction:   reduction.NewService(ports, store, opts.Reduction, logger.Named("reduction")),
		Composition: composition.NewService(ports.Overlay, opts.Composition, logger.Named("composition")),
		Cumulative:  cumulative.NewService(store, logger.Named("cumulative")),
	}
}
