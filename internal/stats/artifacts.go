package stats

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"safegym/internal/model"
)

const (
	runIndexFile    = "run_index.json"
	runFile         = "run.json"
	episodesFile    = "episodes.csv"
	traceFile       = "trace.csv"
	envelopePlotPNG = "envelope.png"
)

var episodesHeader = []string{"episode", "steps", "return", "cost", "interventions", "inversions", "reached_goal"}

var traceHeader = []string{
	"episode", "step", "forward", "backward",
	"raw_forward", "raw_turn", "min_forward", "max_forward",
	"scaled_forward", "scaled_turn", "reward", "cost", "intervention", "inverted",
}

type RunArtifacts struct {
	Run      model.RunRecord
	Episodes []model.EpisodeSummary
	Trace    []model.StepTrace
}

type runDocument struct {
	Run     model.RunRecord `json:"run"`
	Summary Summary         `json:"summary"`
}

type RunIndexEntry struct {
	RunID            string  `json:"run_id"`
	Env              string  `json:"env"`
	Policy           string  `json:"policy"`
	Masked           bool    `json:"masked"`
	Episodes         int     `json:"episodes"`
	MeanReturn       float64 `json:"mean_return"`
	CostRate         float64 `json:"cost_rate"`
	InterventionRate float64 `json:"intervention_rate"`
	CreatedAtUTC     string  `json:"created_at_utc"`
}

// WriteRunArtifacts writes run.json and episodes.csv under baseDir/<run-id>.
// When a trace is present it also writes trace.csv and envelope.png.
func WriteRunArtifacts(baseDir string, artifacts RunArtifacts) (string, error) {
	if artifacts.Run.ID == "" {
		return "", fmt.Errorf("run id is required")
	}

	runDir := filepath.Join(baseDir, artifacts.Run.ID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", err
	}

	doc := runDocument{Run: artifacts.Run, Summary: Summarize(artifacts.Episodes)}
	if err := writeJSON(filepath.Join(runDir, runFile), doc); err != nil {
		return "", err
	}
	if err := writeEpisodesCSV(filepath.Join(runDir, episodesFile), artifacts.Episodes); err != nil {
		return "", err
	}
	if len(artifacts.Trace) > 0 {
		if err := writeTraceCSV(filepath.Join(runDir, traceFile), artifacts.Trace); err != nil {
			return "", err
		}
		if err := PlotEnvelope(artifacts.Trace, filepath.Join(runDir, envelopePlotPNG)); err != nil {
			return "", err
		}
	}

	if err := AppendRunIndex(baseDir, IndexEntry(artifacts.Run, doc.Summary)); err != nil {
		return "", err
	}
	return runDir, nil
}

func IndexEntry(run model.RunRecord, summary Summary) RunIndexEntry {
	return RunIndexEntry{
		RunID:            run.ID,
		Env:              run.Env,
		Policy:           run.Policy,
		Masked:           run.Masked,
		Episodes:         summary.Episodes,
		MeanReturn:       summary.MeanReturn,
		CostRate:         summary.CostRate,
		InterventionRate: summary.InterventionRate,
		CreatedAtUTC:     run.CreatedAt.UTC().Format("2006-01-02T15:04:05.000000000Z"),
	}
}

func AppendRunIndex(baseDir string, entry RunIndexEntry) error {
	if entry.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return err
	}

	index, err := ListRunIndex(baseDir)
	if err != nil {
		return err
	}

	for i := range index {
		if index[i].RunID == entry.RunID {
			index[i] = entry
			return writeJSON(filepath.Join(baseDir, runIndexFile), index)
		}
	}

	index = append(index, entry)
	return writeJSON(filepath.Join(baseDir, runIndexFile), index)
}

// ListRunIndex returns index entries newest first.
func ListRunIndex(baseDir string) ([]RunIndexEntry, error) {
	data, err := os.ReadFile(filepath.Join(baseDir, runIndexFile))
	if err != nil {
		if os.IsNotExist(err) {
			return []RunIndexEntry{}, nil
		}
		return nil, err
	}

	var entries []RunIndexEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].CreatedAtUTC > entries[j].CreatedAtUTC
	})
	return entries, nil
}

func ReadRun(baseDir, runID string) (model.RunRecord, Summary, bool, error) {
	data, err := os.ReadFile(filepath.Join(baseDir, runID, runFile))
	if err != nil {
		if os.IsNotExist(err) {
			return model.RunRecord{}, Summary{}, false, nil
		}
		return model.RunRecord{}, Summary{}, false, err
	}
	var doc runDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return model.RunRecord{}, Summary{}, false, err
	}
	return doc.Run, doc.Summary, true, nil
}

func ReadEpisodesCSV(baseDir, runID string) ([]model.EpisodeSummary, bool, error) {
	file, err := os.Open(filepath.Join(baseDir, runID, episodesFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	if _, err := reader.Read(); err != nil {
		if err == io.EOF {
			return []model.EpisodeSummary{}, true, nil
		}
		return nil, false, err
	}

	episodes := make([]model.EpisodeSummary, 0, 16)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, false, err
		}
		ep, err := parseEpisodeRow(runID, record)
		if err != nil {
			return nil, false, err
		}
		episodes = append(episodes, ep)
	}
	return episodes, true, nil
}

func parseEpisodeRow(runID string, record []string) (model.EpisodeSummary, error) {
	if len(record) != len(episodesHeader) {
		return model.EpisodeSummary{}, fmt.Errorf("episodes row must have %d columns, got %d", len(episodesHeader), len(record))
	}
	ep := model.EpisodeSummary{RunID: runID}
	var err error
	if ep.Episode, err = strconv.Atoi(record[0]); err != nil {
		return model.EpisodeSummary{}, err
	}
	if ep.Steps, err = strconv.Atoi(record[1]); err != nil {
		return model.EpisodeSummary{}, err
	}
	if ep.Return, err = strconv.ParseFloat(record[2], 64); err != nil {
		return model.EpisodeSummary{}, err
	}
	if ep.Cost, err = strconv.ParseFloat(record[3], 64); err != nil {
		return model.EpisodeSummary{}, err
	}
	if ep.Interventions, err = strconv.Atoi(record[4]); err != nil {
		return model.EpisodeSummary{}, err
	}
	if ep.Inversions, err = strconv.Atoi(record[5]); err != nil {
		return model.EpisodeSummary{}, err
	}
	if ep.ReachedGoal, err = strconv.ParseBool(record[6]); err != nil {
		return model.EpisodeSummary{}, err
	}
	return ep, nil
}

func writeEpisodesCSV(path string, episodes []model.EpisodeSummary) error {
	rows := make([][]string, 0, len(episodes))
	for _, ep := range episodes {
		rows = append(rows, []string{
			strconv.Itoa(ep.Episode),
			strconv.Itoa(ep.Steps),
			formatFloat(ep.Return),
			formatFloat(ep.Cost),
			strconv.Itoa(ep.Interventions),
			strconv.Itoa(ep.Inversions),
			strconv.FormatBool(ep.ReachedGoal),
		})
	}
	return writeCSV(path, episodesHeader, rows)
}

func writeTraceCSV(path string, trace []model.StepTrace) error {
	rows := make([][]string, 0, len(trace))
	for _, s := range trace {
		rows = append(rows, []string{
			strconv.Itoa(s.Episode),
			strconv.Itoa(s.Step),
			formatFloat(s.Forward),
			formatFloat(s.Backward),
			formatFloat(s.Raw[0]),
			formatFloat(s.Raw[1]),
			formatFloat(s.Min[0]),
			formatFloat(s.Max[0]),
			formatFloat(s.Scaled[0]),
			formatFloat(s.Scaled[1]),
			formatFloat(s.Reward),
			formatFloat(s.Cost),
			strconv.FormatBool(s.Intervention),
			strconv.FormatBool(s.Inverted),
		})
	}
	return writeCSV(path, traceHeader, rows)
}

func writeCSV(path string, header []string, rows [][]string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(header); err != nil {
		return err
	}
	if err := writer.WriteAll(rows); err != nil {
		return err
	}
	return writer.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}
