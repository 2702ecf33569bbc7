package stats

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

const comparisonsDir = "comparisons"

// Comparison pairs a masked and an unmasked run started from the same seed.
type Comparison struct {
	ID            string  `json:"id"`
	StartedAtUTC  string  `json:"started_at_utc,omitempty"`
	Env           string  `json:"env"`
	Seed          int64   `json:"seed"`
	MaskedRunID   string  `json:"masked_run_id"`
	UnmaskedRunID string  `json:"unmasked_run_id"`
	Masked        Summary `json:"masked"`
	Unmasked      Summary `json:"unmasked"`
	CostReduction float64 `json:"cost_reduction"`
}

func WriteComparison(baseDir string, c Comparison) error {
	if c.ID == "" {
		return fmt.Errorf("comparison id is required")
	}
	path := comparisonPath(baseDir, c.ID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return writeJSON(path, c)
}

func ReadComparison(baseDir, id string) (Comparison, bool, error) {
	if id == "" {
		return Comparison{}, false, fmt.Errorf("comparison id is required")
	}
	data, err := os.ReadFile(comparisonPath(baseDir, id))
	if err != nil {
		if os.IsNotExist(err) {
			return Comparison{}, false, nil
		}
		return Comparison{}, false, err
	}
	var c Comparison
	if err := json.Unmarshal(data, &c); err != nil {
		return Comparison{}, false, err
	}
	return c, true, nil
}

// ListComparisons returns stored comparisons newest first; undated ones sort last.
func ListComparisons(baseDir string) ([]Comparison, error) {
	entries, err := os.ReadDir(filepath.Join(baseDir, comparisonsDir))
	if err != nil {
		if os.IsNotExist(err) {
			return []Comparison{}, nil
		}
		return nil, err
	}

	out := make([]Comparison, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		c, ok, err := ReadComparison(baseDir, entry.Name())
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		switch {
		case out[i].StartedAtUTC == out[j].StartedAtUTC:
			return out[i].ID < out[j].ID
		case out[i].StartedAtUTC == "":
			return false
		case out[j].StartedAtUTC == "":
			return true
		default:
			return out[i].StartedAtUTC > out[j].StartedAtUTC
		}
	})
	return out, nil
}

func comparisonPath(baseDir, id string) string {
	return filepath.Join(baseDir, comparisonsDir, id, "comparison.json")
}
