package telemetry

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"

	"github.com/murmursim/murmur/config"
	"github.com/murmursim/murmur/swarm"
)

// GroupRecord is one detected group flattened for groups.csv.
type GroupRecord struct {
	WindowEndStep uint64  `csv:"window_end"`
	GroupID       int     `csv:"group_id"`
	Size          int     `csv:"size"`
	CentroidX     float32 `csv:"cx"`
	CentroidY     float32 `csv:"cy"`
	CentroidZ     float32 `csv:"cz"`
	Speed         float32 `csv:"speed"`
}

// OutputManager handles structured experiment output with CSV logging.
type OutputManager struct {
	dir           string
	telemetryFile *os.File
	groupsFile    *os.File
	perfFile      *os.File

	// Track if headers have been written
	telemetryHeaderWritten bool
	groupsHeaderWritten    bool
	perfHeaderWritten      bool
}

// NewOutputManager creates a new output manager and initializes the output directory.
// Returns nil if dir is empty (output disabled).
func NewOutputManager(dir string) (*OutputManager, error) {
	if dir == "" {
		return nil, nil
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	om := &OutputManager{dir: dir}

	f, err := os.Create(filepath.Join(dir, "telemetry.csv"))
	if err != nil {
		return nil, fmt.Errorf("creating telemetry.csv: %w", err)
	}
	om.telemetryFile = f

	f, err = os.Create(filepath.Join(dir, "groups.csv"))
	if err != nil {
		om.telemetryFile.Close()
		return nil, fmt.Errorf("creating groups.csv: %w", err)
	}
	om.groupsFile = f

	f, err = os.Create(filepath.Join(dir, "perf.csv"))
	if err != nil {
		om.telemetryFile.Close()
		om.groupsFile.Close()
		return nil, fmt.Errorf("creating perf.csv: %w", err)
	}
	om.perfFile = f

	return om, nil
}

// WriteConfig saves the current configuration as YAML.
func (om *OutputManager) WriteConfig(cfg *config.Config) error {
	if om == nil {
		return nil
	}
	return cfg.WriteYAML(filepath.Join(om.dir, "config.yaml"))
}

// WriteTelemetry writes a window stats record to telemetry.csv.
func (om *OutputManager) WriteTelemetry(stats WindowStats) error {
	if om == nil {
		return nil
	}

	records := []WindowStats{stats}
	if !om.telemetryHeaderWritten {
		if err := gocsv.Marshal(records, om.telemetryFile); err != nil {
			return fmt.Errorf("writing telemetry: %w", err)
		}
		om.telemetryHeaderWritten = true
		return nil
	}
	if err := gocsv.MarshalWithoutHeaders(records, om.telemetryFile); err != nil {
		return fmt.Errorf("writing telemetry: %w", err)
	}
	return nil
}

// WriteGroups appends one record per detected group to groups.csv.
func (om *OutputManager) WriteGroups(windowEnd uint64, groups []swarm.Group) error {
	if om == nil || len(groups) == 0 {
		return nil
	}

	records := make([]GroupRecord, len(groups))
	for i, g := range groups {
		records[i] = GroupRecord{
			WindowEndStep: windowEnd,
			GroupID:       g.ID,
			Size:          g.Size,
			CentroidX:     g.Centroid.X,
			CentroidY:     g.Centroid.Y,
			CentroidZ:     g.Centroid.Z,
			Speed:         g.MeanVelocity.Norm(),
		}
	}

	if !om.groupsHeaderWritten {
		if err := gocsv.Marshal(records, om.groupsFile); err != nil {
			return fmt.Errorf("writing groups: %w", err)
		}
		om.groupsHeaderWritten = true
		return nil
	}
	if err := gocsv.MarshalWithoutHeaders(records, om.groupsFile); err != nil {
		return fmt.Errorf("writing groups: %w", err)
	}
	return nil
}

// WritePerf writes a performance record to perf.csv.
func (om *OutputManager) WritePerf(rec PerfStatsCSV) error {
	if om == nil {
		return nil
	}

	records := []PerfStatsCSV{rec}
	if !om.perfHeaderWritten {
		if err := gocsv.Marshal(records, om.perfFile); err != nil {
			return fmt.Errorf("writing perf: %w", err)
		}
		om.perfHeaderWritten = true
		return nil
	}
	if err := gocsv.MarshalWithoutHeaders(records, om.perfFile); err != nil {
		return fmt.Errorf("writing perf: %w", err)
	}
	return nil
}

// Close flushes and closes all output files.
func (om *OutputManager) Close() error {
	if om == nil {
		return nil
	}
	var firstErr error
	for _, f := range []*os.File{om.telemetryFile, om.groupsFile, om.perfFile} {
		if f == nil {
			continue
		}
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
