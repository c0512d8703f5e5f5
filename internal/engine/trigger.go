package engine

import "github.com/helicon-ai/mnemo/internal/core"

// ConsolidationSignal tells the caller whether a consolidation job should
// be enqueued and why.
type ConsolidationSignal struct {
	Enqueue bool   `json:"enqueue"`
	Reason  string `json:"reason,omitempty"`
}

// ShouldConsolidate classifies the enqueue decision. Explicit session-end
// and manual requests always win; otherwise token pressure against the
// trigger ratio decides.
func ShouldConsolidate(pressure, trigger float64, sessionEnd, manual bool) ConsolidationSignal {
	switch {
	case manual:
		return ConsolidationSignal{Enqueue: true, Reason: core.ReasonManual}
	case sessionEnd:
		return ConsolidationSignal{Enqueue: true, Reason: core.ReasonSessionEnd}
	case pressure >= trigger:
		return ConsolidationSignal{Enqueue: true, Reason: core.ReasonTokenPressure}
	default:
		return ConsolidationSignal{}
	}
}
