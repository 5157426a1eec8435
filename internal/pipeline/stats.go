package pipeline

import (
	"encoding/json"
	"os"
	"time"

	"github.com/google/uuid"

	"i94_etl/internal/engine"
)

const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"

	StageOK      = "ok"
	StageFailed  = "failed"
	StageSkipped = "skipped"
)

// RunStats holds the metrics of one ETL run.
type RunStats struct {
	RunID              string       `json:"run_id"`
	Status             string       `json:"status"`
	Error              string       `json:"error,omitempty"`
	StartedAt          time.Time    `json:"started_at"`
	TotalExecutionTime string       `json:"total_execution_time"`
	Stages             []StageStats `json:"stages"`
	Tables             []TableStats `json:"tables"`
	TotalRowsWritten   int64        `json:"total_rows_written"`
	TotalFilesWritten  int          `json:"total_files_written"`
	TotalBytesWritten  int64        `json:"total_bytes_written"`
}

type StageStats struct {
	Name     string `json:"name"`
	Status   string `json:"status"`
	Duration string `json:"duration"`
}

type TableStats struct {
	Name string `json:"name"`
	engine.WriteResult
}

func newRunStats(start time.Time) *RunStats {
	return &RunStats{
		RunID:     uuid.NewString(),
		StartedAt: start.UTC(),
		Stages:    []StageStats{},
		Tables:    []TableStats{},
	}
}

func (s *RunStats) addStage(name, status string, d time.Duration) {
	s.Stages = append(s.Stages, StageStats{Name: name, Status: status, Duration: d.String()})
}

func (s *RunStats) addTable(name string, res engine.WriteResult) {
	s.Tables = append(s.Tables, TableStats{Name: name, WriteResult: res})
	s.TotalRowsWritten += res.Rows
	s.TotalFilesWritten += res.Files
	s.TotalBytesWritten += res.Bytes
}

func (s *RunStats) finish(d time.Duration, err error) {
	s.TotalExecutionTime = d.String()
	s.Status = StatusSucceeded
	if err != nil {
		s.Status = StatusFailed
		s.Error = err.Error()
	}
}

// writeStats dumps the run stats as JSON. Failures only produce a warning.
func (p *Pipeline) writeStats() {
	if p.cfg.Paths.StatsFile == "" {
		return
	}
	statsJSON, err := json.MarshalIndent(p.stats, "", "  ")
	if err != nil {
		p.log.Warn("Failed to serialize stats", "error", err)
		return
	}
	if err := os.WriteFile(p.cfg.Paths.StatsFile, statsJSON, 0644); err != nil {
		p.log.Warn("Failed to write stats file", "path", p.cfg.Paths.StatsFile, "error", err)
		return
	}
	p.log.Info("Wrote stats", "path", p.cfg.Paths.StatsFile)
}
