package domain

import "time"

// Phase is one of the five development-lifecycle stages the belief tracker
// conditions on.
type Phase string

const (
	PhaseIdeation       Phase = "ideation"
	PhaseDesign         Phase = "design"
	PhaseMVP            Phase = "mvp"
	PhaseImplementation Phase = "implementation"
	PhaseTesting        Phase = "testing"
)

// AllPhases lists every recognized phase, in canonical order.
var AllPhases = []Phase{PhaseIdeation, PhaseDesign, PhaseMVP, PhaseImplementation, PhaseTesting}

// Dimension is an uncertainty dimension the belief tracker conditions on.
type Dimension string

const (
	DimensionTechnical Dimension = "technical"
	DimensionMarket    Dimension = "market"
	DimensionResource  Dimension = "resource"
	DimensionTimeline  Dimension = "timeline"
	DimensionQuality   Dimension = "quality"
)

// AllDimensions lists every recognized dimension, in canonical order.
var AllDimensions = []Dimension{DimensionTechnical, DimensionMarket, DimensionResource, DimensionTimeline, DimensionQuality}

// BeliefVector holds a value per uncertainty dimension, in [0, 1].
type BeliefVector map[Dimension]float64

// Belief is the Beta-Binomial posterior for a single (phase, dimension)
// pair, plus its observation count and last-update timestamp.
type Belief struct {
	Phase        Phase
	Dimension    Dimension
	Alpha        float64
	Beta         float64
	Observations int
	LastUpdated  time.Time
}

// NewBelief returns an uninformed prior: Alpha = Beta = 1 (uniform).
func NewBelief(phase Phase, dim Dimension) Belief {
	return Belief{Phase: phase, Dimension: dim, Alpha: 1, Beta: 1}
}

// Mean is the posterior mean, alpha/(alpha+beta).
func (b Belief) Mean() float64 {
	return b.Alpha / (b.Alpha + b.Beta)
}

// QuantumState is the categorical label derived from thresholding a
// predicted magnitude.
type QuantumState string

const (
	StateDeterministic QuantumState = "deterministic"
	StateProbabilistic QuantumState = "probabilistic"
	StateQuantum       QuantumState = "quantum"
	StateChaotic       QuantumState = "chaotic"
	StateVoid          QuantumState = "void"
)

// ClassifyQuantumState thresholds a predicted magnitude at the boundaries
// {0.1, 0.3, 0.6, 0.9} into the five quantum states.
func ClassifyQuantumState(magnitude float64) QuantumState {
	switch {
	case magnitude < 0.1:
		return StateDeterministic
	case magnitude < 0.3:
		return StateProbabilistic
	case magnitude < 0.6:
		return StateQuantum
	case magnitude < 0.9:
		return StateChaotic
	default:
		return StateVoid
	}
}

// BiasType classifies the rolling mean prediction error for a phase.
type BiasType string

const (
	BiasUnbiased          BiasType = "unbiased"
	BiasOptimistic        BiasType = "optimistic"
	BiasHighlyOptimistic  BiasType = "highly_optimistic"
	BiasPessimistic       BiasType = "pessimistic"
	BiasHighlyPessimistic BiasType = "highly_pessimistic"
)

// ClassifyBias maps a rolling mean signed error to a BiasType using cutoffs
// at ±0.05 and ±0.15.
func ClassifyBias(meanError float64) BiasType {
	switch {
	case meanError > 0.15:
		return BiasHighlyOptimistic
	case meanError > 0.05:
		return BiasOptimistic
	case meanError < -0.15:
		return BiasHighlyPessimistic
	case meanError < -0.05:
		return BiasPessimistic
	default:
		return BiasUnbiased
	}
}

// BiasProfile is the rolling list of signed prediction errors for a phase,
// used to derive a BiasType and to bias-correct adaptive thresholds.
type BiasProfile struct {
	Phase  Phase
	Errors []float64
}

// MeanError returns the arithmetic mean of recorded errors, 0 if empty.
func (p BiasProfile) MeanError() float64 {
	if len(p.Errors) == 0 {
		return 0
	}
	var sum float64
	for _, e := range p.Errors {
		sum += e
	}
	return sum / float64(len(p.Errors))
}

// Type classifies the profile's current bias.
func (p BiasProfile) Type() BiasType {
	return ClassifyBias(p.MeanError())
}

// Prediction is the output of Belief Tracker.predict.
type Prediction struct {
	Phase             Phase
	PredictedMagnitude float64
	Confidence        float64
	PerDimension      map[Dimension]float64
	QuantumState      QuantumState
	Recommendations   []string
}

// ThresholdReport documents how an adaptive decision threshold was derived
// from a base threshold, observed bias, and confidence.
type ThresholdReport struct {
	BaseThreshold     float64
	AdjustedThreshold float64
	BiasType          BiasType
	BiasAdjustment    float64
	ConfidenceFactor  float64
	Reason            string
}
