package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func repeat(s TreeState, n int) []TreeState {
	out := make([]TreeState, n)
	for i := range out {
		out[i] = s
	}
	return out
}

var (
	calm     = TreeState{Blood: 0.8, Oxygen: 0.8, Decay: 0.2, Lifeforce: 0.8, Fear: 0.1, Pain: 0.1}
	strained = TreeState{Blood: 0.5, Oxygen: 0.4, Decay: 0.5, Lifeforce: 0.5, Fear: 0.5, Pain: 0.3}
	crushed  = TreeState{Blood: 0.3, Oxygen: 0.2, Decay: 0.6, Lifeforce: 0.3, Fear: 0.6, Pain: 0.8}
)

func TestCalmStable(t *testing.T) {
	assert.True(t, CalmStable(repeat(calm, 10), 10))
	assert.False(t, CalmStable(repeat(calm, 9), 10), "too short")
	assert.False(t, CalmStable(repeat(strained, 10), 10))
	assert.False(t, CalmStable(nil, 0))
}

func TestOverloaded(t *testing.T) {
	history := append(repeat(strained, 3), repeat(crushed, 10)...)
	assert.True(t, Overloaded(history, 10, 3))
	assert.False(t, Overloaded(history[1:], 10, 3), "too short")
	assert.False(t, Overloaded(repeat(crushed, 13), 10, 3), "high but not rising")
}

func TestRecovery(t *testing.T) {
	history := append(repeat(strained, 8), repeat(calm, 4)...)
	assert.True(t, Recovery(history, 8, 4))
	assert.False(t, Recovery(history[1:], 8, 4), "too short")
	assert.False(t, Recovery(repeat(calm, 12), 8, 4), "no improvement")
}

func TestUnfairDrain(t *testing.T) {
	peers := []float64{0.8, 0.9, 0.7}
	assert.True(t, UnfairDrain(peers, 0.5, 0.7))
	assert.False(t, UnfairDrain(peers, 0.5, 0.2))
	assert.False(t, UnfairDrain(peers, 0.7, 0.7))
	assert.False(t, UnfairDrain(nil, 0.1, 1))
	assert.Equal(t, []float64{0.8, 0.9, 0.7}, peers, "peers are not reordered")
}

func TestNormalizeAssets(t *testing.T) {
	best := TreeState{Blood: 1, Oxygen: 1, Lifeforce: 1}
	assert.InDelta(t, 1.0, NormalizeAssets(best), 1e-9)
	worst := TreeState{Fear: 1, Pain: 1}
	assert.InDelta(t, 0.47, NormalizeAssets(worst), 1e-9)
}

func TestEvaluateAndAux(t *testing.T) {
	w := DefaultWindows()
	obs := []Observation{
		{AgentID: "calm-1", History: repeat(calm, 12)},
		{AgentID: "calm-2", History: repeat(calm, 12)},
		{AgentID: "drained", History: append(repeat(strained, 3), repeat(crushed, 10)...)},
		{AgentID: "healing", History: append(repeat(strained, 8), repeat(calm, 4)...)},
		{AgentID: "empty"},
	}
	preds := Evaluate(obs, w)

	assert.Len(t, preds, 4)
	assert.True(t, preds["calm-1"].CalmStable)
	assert.True(t, preds["drained"].Overloaded)
	assert.False(t, preds["drained"].CalmStable)
	assert.True(t, preds["drained"].UnfairDrain)
	assert.True(t, preds["healing"].Recovery)
	assert.False(t, preds["calm-1"].UnfairDrain)

	aux := AuxFromObservations(obs, w)
	assert.Equal(t, 1, aux.UnfairDrainCount)
	assert.Equal(t, 1, aux.RecoveryCount)
	assert.Greater(t, aux.AssetTerm, 0.0)
	assert.LessOrEqual(t, aux.AssetTerm, 1.0)
}
