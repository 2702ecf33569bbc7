package model

import "time"

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// Action is a 2-D control command: forward/backward intent followed by turn intent.
type Action [2]float64

func (a Action) Forward() float64 { return a[0] }

func (a Action) Turn() float64 { return a[1] }

// Observation maps named sensor channels to their readings.
type Observation map[string][]float64

const (
	HazardsLidarChannel = "hazards_lidar"
	GoalLidarChannel    = "goal_lidar"
	VelocimeterChannel  = "velocimeter"
)

// Clone returns a deep copy so callers can retain readings across steps.
func (o Observation) Clone() Observation {
	if o == nil {
		return nil
	}
	out := make(Observation, len(o))
	for k, v := range o {
		out[k] = append([]float64(nil), v...)
	}
	return out
}

// StepResult is the outcome of one environment step.
type StepResult struct {
	Observation Observation
	Reward      float64
	Terminated  bool
	Truncated   bool
	Info        map[string]any
}

func (r StepResult) Done() bool {
	return r.Terminated || r.Truncated
}

type RunRecord struct {
	VersionedRecord
	ID        string    `json:"id"`
	Env       string    `json:"env"`
	Policy    string    `json:"policy"`
	Masked    bool      `json:"masked"`
	Debug     bool      `json:"debug"`
	Seed      int64     `json:"seed"`
	Episodes  int       `json:"episodes"`
	BandStart float64   `json:"band_start"`
	BandEnd   float64   `json:"band_end"`
	CreatedAt time.Time `json:"created_at"`
}

type EpisodeSummary struct {
	VersionedRecord
	RunID         string  `json:"run_id"`
	Episode       int     `json:"episode"`
	Steps         int     `json:"steps"`
	Return        float64 `json:"return"`
	Cost          float64 `json:"cost"`
	Interventions int     `json:"interventions"`
	Inversions    int     `json:"inversions"`
	ReachedGoal   bool    `json:"reached_goal"`
}

// StepTrace records one limiter decision for later inspection.
type StepTrace struct {
	Episode      int     `json:"episode"`
	Step         int     `json:"step"`
	Forward      float64 `json:"forward"`
	Backward     float64 `json:"backward"`
	Raw          Action  `json:"raw"`
	Min          Action  `json:"min"`
	Max          Action  `json:"max"`
	Scaled       Action  `json:"scaled"`
	Reward       float64 `json:"reward"`
	Cost         float64 `json:"cost"`
	Intervention bool    `json:"intervention"`
	Inverted     bool    `json:"inverted"`
}
