package policy

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"strings"

	"safegym/internal/model"
)

// Policy chooses a raw action from an observation.
type Policy interface {
	Name() string
	Act(ctx context.Context, obs model.Observation) (model.Action, error)
}

const (
	RandomName     = "random"
	ConstantName   = "constant"
	GoalSeekerName = "goal_seeker"
)

// Random draws each component uniformly from [-1, 1].
type Random struct {
	rng *rand.Rand
}

func NewRandom(seed int64) *Random {
	return &Random{rng: rand.New(rand.NewSource(seed))}
}

func (*Random) Name() string { return RandomName }

func (p *Random) Act(_ context.Context, _ model.Observation) (model.Action, error) {
	return model.Action{p.rng.Float64()*2 - 1, p.rng.Float64()*2 - 1}, nil
}

type Constant struct {
	Action model.Action
}

func (Constant) Name() string { return ConstantName }

func (p Constant) Act(_ context.Context, _ model.Observation) (model.Action, error) {
	return p.Action, nil
}

// GoalSeeker steers toward the brightest goal lidar bin and drives forward
// harder the closer that bin is to the heading. It is oblivious to hazards.
type GoalSeeker struct{}

func (GoalSeeker) Name() string { return GoalSeekerName }

func (GoalSeeker) Act(_ context.Context, obs model.Observation) (model.Action, error) {
	lidar, ok := obs[model.GoalLidarChannel]
	if !ok || len(lidar) == 0 {
		return model.Action{}, fmt.Errorf("goal seeker requires %q observation", model.GoalLidarChannel)
	}
	best := 0
	for i, v := range lidar {
		if v > lidar[best] {
			best = i
		}
	}
	if lidar[best] == 0 {
		// Goal out of range: sweep in place.
		return model.Action{0, 1}, nil
	}
	binSize := 2 * math.Pi / float64(len(lidar))
	bearing := (float64(best) + 0.5) * binSize
	if bearing > math.Pi {
		bearing -= 2 * math.Pi
	}
	return model.Action{
		math.Max(-1, math.Min(1, math.Cos(bearing))),
		math.Max(-1, math.Min(1, 2*bearing)),
	}, nil
}

// FromName builds a policy. constant takes its action from params.
func FromName(name string, seed int64, params model.Action) (Policy, error) {
	switch strings.ReplaceAll(strings.TrimSpace(strings.ToLower(name)), "-", "_") {
	case "", RandomName:
		return NewRandom(seed), nil
	case ConstantName:
		return Constant{Action: params}, nil
	case GoalSeekerName, "goal":
		return GoalSeeker{}, nil
	default:
		return nil, fmt.Errorf("unsupported policy: %s", name)
	}
}

func Names() []string {
	return []string{ConstantName, GoalSeekerName, RandomName}
}
