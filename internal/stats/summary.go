package stats

import (
	"gonum.org/v1/gonum/stat"

	"safegym/internal/model"
)

// Summary aggregates the episodes of one run.
type Summary struct {
	Episodes         int     `json:"episodes"`
	Steps            int     `json:"steps"`
	MeanReturn       float64 `json:"mean_return"`
	StdReturn        float64 `json:"std_return"`
	MeanCost         float64 `json:"mean_cost"`
	StdCost          float64 `json:"std_cost"`
	CostRate         float64 `json:"cost_rate"`
	InterventionRate float64 `json:"intervention_rate"`
	InversionRate    float64 `json:"inversion_rate"`
	GoalRate         float64 `json:"goal_rate"`
}

// Summarize computes per-episode means and per-step rates. Standard
// deviations are zero for fewer than two episodes.
func Summarize(episodes []model.EpisodeSummary) Summary {
	if len(episodes) == 0 {
		return Summary{}
	}
	returns := make([]float64, len(episodes))
	costs := make([]float64, len(episodes))
	var (
		steps, interventions, inversions, goals int
		totalCost                               float64
	)
	for i, ep := range episodes {
		returns[i] = ep.Return
		costs[i] = ep.Cost
		steps += ep.Steps
		interventions += ep.Interventions
		inversions += ep.Inversions
		totalCost += ep.Cost
		if ep.ReachedGoal {
			goals++
		}
	}

	s := Summary{
		Episodes: len(episodes),
		Steps:    steps,
		GoalRate: float64(goals) / float64(len(episodes)),
	}
	s.MeanReturn, s.StdReturn = meanStd(returns)
	s.MeanCost, s.StdCost = meanStd(costs)
	if steps > 0 {
		s.CostRate = totalCost / float64(steps)
		s.InterventionRate = float64(interventions) / float64(steps)
		s.InversionRate = float64(inversions) / float64(steps)
	}
	return s
}

func meanStd(values []float64) (float64, float64) {
	if len(values) < 2 {
		return stat.Mean(values, nil), 0
	}
	return stat.MeanStdDev(values, nil)
}
