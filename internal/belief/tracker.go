// Package belief implements the adaptive Bayesian belief tracker (C7): a
// per-(phase, dimension) Beta-Binomial posterior plus a per-phase bias
// profile, consulted by predict/update and by the bias-adjusted decision
// threshold supplemented from original_source's
// udo_bayesian_integration.py.
package belief

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/positivef/udo-sync/internal/domain"
)

// BaseThresholds are the per-phase default decision thresholds carried
// over from the original UDO orchestrator integration.
var BaseThresholds = map[domain.Phase]float64{
	domain.PhaseIdeation:       0.60,
	domain.PhaseDesign:         0.65,
	domain.PhaseMVP:            0.65,
	domain.PhaseImplementation: 0.70,
	domain.PhaseTesting:        0.70,
}

// maxBiasErrors caps the rolling window of signed prediction errors kept
// per phase for bias classification.
const maxBiasErrors = 200

// successThreshold is the maximum per-dimension |predicted - observed| gap
// that still counts as a correct point prediction.
const successThreshold = 0.25

// Tracker holds all per-(phase, dimension) beliefs and per-phase bias
// profiles for a single project.
type Tracker struct {
	mu       sync.Mutex
	beliefs  map[domain.Phase]map[domain.Dimension]domain.Belief
	profiles map[domain.Phase]domain.BiasProfile
	now      func() time.Time

	predictionLog *JSONLLogger
	groundTruth   *JSONLLogger
}

// Options configures a new Tracker.
type Options struct {
	Now           func() time.Time
	PredictionLog *JSONLLogger // predictions_log.jsonl
	GroundTruth   *JSONLLogger // prediction_ground_truth.jsonl
}

// New constructs a Tracker with uninformed priors for every (phase,
// dimension) pair.
func New(opts Options) *Tracker {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	t := &Tracker{
		beliefs:       make(map[domain.Phase]map[domain.Dimension]domain.Belief),
		profiles:      make(map[domain.Phase]domain.BiasProfile),
		now:           now,
		predictionLog: opts.PredictionLog,
		groundTruth:   opts.GroundTruth,
	}
	for _, p := range domain.AllPhases {
		t.beliefs[p] = make(map[domain.Dimension]domain.Belief)
		for _, d := range domain.AllDimensions {
			t.beliefs[p][d] = domain.NewBelief(p, d)
		}
		t.profiles[p] = domain.BiasProfile{Phase: p}
	}
	return t
}

// Predict blends the current observed vector with each dimension's learned
// posterior mean, weighted by how many observations that belief has
// accumulated (more history -> more trust in the prior, a simplified
// analogue of the original's Kalman-filtered blend). The overall magnitude
// is the mean of the blended per-dimension values.
func (t *Tracker) Predict(phase domain.Phase, current domain.BeliefVector, horizon time.Duration) (domain.Prediction, error) {
	if _, ok := t.beliefs[phase]; !ok {
		return domain.Prediction{}, fmt.Errorf("belief: unknown phase %q", phase)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	perDim := make(map[domain.Dimension]float64, len(domain.AllDimensions))
	var magnitudeSum, confidenceSum float64
	for _, d := range domain.AllDimensions {
		b := t.beliefs[phase][d]
		weight := beliefWeight(b.Observations)
		blended := (1-weight)*current[d] + weight*b.Mean()
		perDim[d] = blended
		magnitudeSum += blended
		confidenceSum += dimensionConfidence(b.Observations)
	}
	magnitude := magnitudeSum / float64(len(domain.AllDimensions))
	confidence := confidenceSum / float64(len(domain.AllDimensions))

	correction := t.profiles[phase].MeanError()
	magnitude = clamp01(magnitude - correction*0.5)

	prediction := domain.Prediction{
		Phase:              phase,
		PredictedMagnitude: magnitude,
		Confidence:         confidence,
		PerDimension:       perDim,
		QuantumState:       domain.ClassifyQuantumState(magnitude),
		Recommendations:    recommendationsFor(perDim),
	}

	if t.predictionLog != nil {
		t.predictionLog.Append(map[string]any{
			"phase":               phase,
			"predicted_magnitude": magnitude,
			"confidence":          confidence,
			"quantum_state":       prediction.QuantumState,
			"horizon_seconds":     horizon.Seconds(),
			"timestamp":           t.now().Format(time.RFC3339),
		})
	}

	return prediction, nil
}

// beliefWeight grows from 0 toward 1 as observations accumulate, so a
// belief with no history defers entirely to the current vector and a
// well-observed belief pulls the prediction toward its learned mean.
func beliefWeight(observations int) float64 {
	return float64(observations) / float64(observations+5)
}

// dimensionConfidence is monotonically non-decreasing in observations and
// bounded in [0, 1), satisfying P8.
func dimensionConfidence(observations int) float64 {
	return float64(observations) / float64(observations+10)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func recommendationsFor(perDim map[domain.Dimension]float64) []string {
	var out []string
	for _, d := range domain.AllDimensions {
		v := perDim[d]
		switch {
		case v >= 0.6:
			out = append(out, fmt.Sprintf("prioritize reducing %s uncertainty (urgency: high, level: %.2f)", d, v))
		case v >= 0.3:
			out = append(out, fmt.Sprintf("monitor %s uncertainty (urgency: medium, level: %.2f)", d, v))
		}
	}
	sort.Strings(out)
	return out
}

// Update records an observed outcome for the prediction made with
// Predict: each dimension's point estimate scores a hit if it is within
// successThreshold of the observed value, incrementing Alpha on a hit and
// Beta otherwise; the mean signed error feeds the phase's bias profile.
func (t *Tracker) Update(phase domain.Phase, prediction domain.Prediction, observed domain.BeliefVector, success bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	var errSum float64
	for _, d := range domain.AllDimensions {
		predicted := prediction.PerDimension[d]
		obs := observed[d]
		b := t.beliefs[phase][d]
		if abs(predicted-obs) <= successThreshold {
			b.Alpha++
		} else {
			b.Beta++
		}
		b.Observations++
		b.LastUpdated = now
		t.beliefs[phase][d] = b
		errSum += predicted - obs
	}

	profile := t.profiles[phase]
	meanErr := errSum / float64(len(domain.AllDimensions))
	profile.Errors = append(profile.Errors, meanErr)
	if len(profile.Errors) > maxBiasErrors {
		profile.Errors = profile.Errors[len(profile.Errors)-maxBiasErrors:]
	}
	t.profiles[phase] = profile

	if t.groundTruth != nil {
		t.groundTruth.Append(map[string]any{
			"phase":     phase,
			"predicted": prediction.PredictedMagnitude,
			"success":   success,
			"timestamp": now.Format(time.RFC3339),
		})
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// BiasProfile reports the current bias classification for phase.
func (t *Tracker) BiasProfile(phase domain.Phase) domain.BiasType {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.profiles[phase].Type()
}

// AdaptiveThreshold computes a bias- and confidence-adjusted decision
// threshold for phase, per the supplemented
// udo_bayesian_integration.py:get_adaptive_threshold behavior: bias
// adjustments of +-0.05/+-0.10 by severity, a confidence factor of
// (baseConfidence-0.5)*0.1, clamped to [0.4, 0.9].
func (t *Tracker) AdaptiveThreshold(phase domain.Phase, baseConfidence float64) (float64, domain.ThresholdReport) {
	t.mu.Lock()
	biasType := t.profiles[phase].Type()
	t.mu.Unlock()

	base, ok := BaseThresholds[phase]
	if !ok {
		base = 0.65
	}

	var biasAdjustment float64
	switch biasType {
	case domain.BiasOptimistic:
		biasAdjustment = 0.05
	case domain.BiasHighlyOptimistic:
		biasAdjustment = 0.10
	case domain.BiasPessimistic:
		biasAdjustment = -0.05
	case domain.BiasHighlyPessimistic:
		biasAdjustment = -0.10
	}

	confidenceFactor := (baseConfidence - 0.5) * 0.1
	adjusted := base + biasAdjustment + confidenceFactor
	if adjusted < 0.4 {
		adjusted = 0.4
	}
	if adjusted > 0.9 {
		adjusted = 0.9
	}

	return adjusted, domain.ThresholdReport{
		BaseThreshold:     base,
		AdjustedThreshold: adjusted,
		BiasType:          biasType,
		BiasAdjustment:    biasAdjustment,
		ConfidenceFactor:  confidenceFactor,
		Reason:            explainAdjustment(biasType, biasAdjustment, confidenceFactor),
	}
}

func explainAdjustment(biasType domain.BiasType, biasAdj, confFactor float64) string {
	if biasType == domain.BiasUnbiased && abs(confFactor) <= 0.01 {
		return "no adjustment, standard threshold applied"
	}
	var reason string
	if biasType != domain.BiasUnbiased {
		reason = fmt.Sprintf("bias=%s adjustment=%+.2f", biasType, biasAdj)
	}
	if abs(confFactor) > 0.01 {
		if reason != "" {
			reason += " "
		}
		reason += fmt.Sprintf("confidence_factor=%+.2f", confFactor)
	}
	return reason
}

// Snapshot returns a deep copy of all beliefs and bias profiles, used by
// the persistence layer.
func (t *Tracker) Snapshot() (map[domain.Phase]map[domain.Dimension]domain.Belief, map[domain.Phase]domain.BiasProfile) {
	t.mu.Lock()
	defer t.mu.Unlock()

	beliefs := make(map[domain.Phase]map[domain.Dimension]domain.Belief, len(t.beliefs))
	for p, dims := range t.beliefs {
		copyDims := make(map[domain.Dimension]domain.Belief, len(dims))
		for d, b := range dims {
			copyDims[d] = b
		}
		beliefs[p] = copyDims
	}

	profiles := make(map[domain.Phase]domain.BiasProfile, len(t.profiles))
	for p, prof := range t.profiles {
		errs := make([]float64, len(prof.Errors))
		copy(errs, prof.Errors)
		profiles[p] = domain.BiasProfile{Phase: prof.Phase, Errors: errs}
	}
	return beliefs, profiles
}

// Restore replaces the tracker's in-memory state, used by the persistence
// layer on startup. Restore is idempotent: restoring the same snapshot
// twice leaves the tracker in the same state.
func (t *Tracker) Restore(beliefs map[domain.Phase]map[domain.Dimension]domain.Belief, profiles map[domain.Phase]domain.BiasProfile) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if beliefs != nil {
		t.beliefs = beliefs
	}
	if profiles != nil {
		t.profiles = profiles
	}
}

// Observe is the BeliefSink contract the event queue publishes derived
// observations through: it re-predicts with the observed vector as the
// current vector (so PerDimension reflects the dimension values actually
// observed) before recording the update.
func (t *Tracker) Observe(phase domain.Phase, vector domain.BeliefVector, success bool) {
	prediction, err := t.Predict(phase, vector, 0)
	if err != nil {
		return
	}
	t.Update(phase, prediction, vector, success)
}
