package planner

import "context"

// AnomalyReport describes one flagged anomaly the consensus hook may act on
// (spec.md §8 S3's "anomaly gate records stat_outlier(v)" is the motivating
// case, generalised beyond just Monte Carlo sampling).
type AnomalyReport struct {
	Kind    string // e.g. "stat_outlier"
	Detail  string
	Context map[string]any
}

// ConsensusHook is the optional external collaborator consulted after an
// anomaly is flagged, gated by Options.EnableConsensus /
// FLOW_ENABLE_CONSENSUS (off by default per spec.md §9: "treated as
// optional, not blocking execution"). It is a thin interface so it can be
// wired to an external collaborator (a second model, a human-in-the-loop
// queue) without the planner depending on what that collaborator is.
type ConsensusHook interface {
	Consult(ctx context.Context, report AnomalyReport) (accept bool, err error)
}

// NoopConsensusHook always accepts, used when consensus is disabled.
type NoopConsensusHook struct{}

func (NoopConsensusHook) Consult(context.Context, AnomalyReport) (bool, error) { return true, nil }

// maybeConsult runs hook only if enabled; a disabled or nil hook always
// accepts, matching the "optional, never blocking" contract.
func maybeConsult(ctx context.Context, enabled bool, hook ConsensusHook, report AnomalyReport) bool {
	if !enabled || hook == nil {
		return true
	}
	accept, err := hook.Consult(ctx, report)
	if err != nil {
		return true
	}
	return accept
}
