package model

import "time"

// RunStatus represents the state of a training run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// PartitionSizes records how many rows landed in each partition.
type PartitionSizes struct {
	Train      int `json:"train"`
	Validation int `json:"validation"`
	Test       int `json:"test"`
	Excluded   int `json:"excluded"`
}

// Run is a recorded training run.
type Run struct {
	ID        string     `json:"id"`
	Status    RunStatus  `json:"status"`
	InputPath string     `json:"input_path"`
	Result    *RunResult `json:"result,omitempty"`
	Error     string     `json:"error,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// RunResult holds the outcome of a completed training run.
type RunResult struct {
	ArtifactPath string             `json:"artifact_path"`
	Checksum     string             `json:"checksum"`
	Median       float64            `json:"median"`
	Partitions   PartitionSizes     `json:"partitions"`
	Validation   map[string]float64 `json:"validation"`
	Test         map[string]float64 `json:"test"`
}
