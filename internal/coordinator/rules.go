package coordinator

import (
	"github.com/positivef/udo-sync/internal/domain"
	"github.com/positivef/udo-sync/internal/queue"
)

// DefaultObservationRules implements spec.md §9's "observation derivation"
// open question as an explicit, inspectable configuration table rather
// than an inferred mapping: a flushed event's type selects a rule that
// derives the (phase, vector, success) observation the belief tracker
// records. Event types with no rule here are skipped (ok=false).
//
// The phase and vector each rule derives are a judgment call — spec.md
// leaves the mapping unspecified and explicitly tells implementers not to
// guess an ingestion path beyond treating it as configuration. The choices
// below are recorded in DESIGN.md:
//   - phase_transition moves belief toward the destination phase's prior,
//     reporting success (a transition is evidence the prior phase's plan
//     held up) with a moderate, uniform uncertainty vector.
//   - task_completion is attributed to the implementation phase (where
//     discrete tasks are tracked) and its vector reflects low uncertainty
//     on success, high uncertainty on failure.
//   - error_resolution is attributed to the testing phase (debugging is a
//     testing-phase activity) and always reports success, since a
//     resolution was found; its vector stays moderate since an error's
//     root cause was not always close to the original estimate.
func DefaultObservationRules() map[string]queue.ObservationRule {
	return map[string]queue.ObservationRule{
		domain.EventPhaseTransition: observePhaseTransition,
		domain.EventTaskCompletion:  observeTaskCompletion,
		domain.EventErrorResolution: observeErrorResolution,
	}
}

func uniformVector(v float64) domain.BeliefVector {
	return domain.BeliefVector{
		domain.DimensionTechnical: v,
		domain.DimensionMarket:    v,
		domain.DimensionResource:  v,
		domain.DimensionTimeline:  v,
		domain.DimensionQuality:   v,
	}
}

func phaseFromTransition(data domain.PhaseTransitionData) (domain.Phase, bool) {
	for _, p := range domain.AllPhases {
		if string(p) == data.To {
			return p, true
		}
	}
	return "", false
}

func observePhaseTransition(evt domain.Event) (domain.Phase, domain.BeliefVector, bool, bool) {
	data, ok := evt.Data.(domain.PhaseTransitionData)
	if !ok {
		return "", nil, false, false
	}
	phase, ok := phaseFromTransition(data)
	if !ok {
		return "", nil, false, false
	}
	return phase, uniformVector(0.3), true, true
}

func observeTaskCompletion(evt domain.Event) (domain.Phase, domain.BeliefVector, bool, bool) {
	data, ok := evt.Data.(domain.TaskCompletionData)
	if !ok {
		return "", nil, false, false
	}
	if data.Success {
		return domain.PhaseImplementation, uniformVector(0.1), true, true
	}
	return domain.PhaseImplementation, uniformVector(0.8), false, true
}

func observeErrorResolution(evt domain.Event) (domain.Phase, domain.BeliefVector, bool, bool) {
	if _, ok := evt.Data.(domain.ErrorResolutionData); !ok {
		return "", nil, false, false
	}
	return domain.PhaseTesting, uniformVector(0.4), true, true
}
