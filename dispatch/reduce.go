package dispatch

import (
	"github.com/dshills/agenthook/audit"
	"github.com/dshills/agenthook/dispatch/handler"
	"github.com/dshills/agenthook/event"
)

// reduce folds per-handler verdicts into one final verdict.
//
// Precedence on the permission axis: any Deny wins, then any Ask, then any
// Allow; all-Abstain falls back to the kind's configured default. Reasons
// come from the first handler that voted the winning decision, keeping the
// outcome deterministic under fixed registration order.
//
// Payload rewrites and continue-session flags fold independently: the last
// non-abstaining handler that set the field wins, so later handlers can
// refine earlier rewrites. Both are honored only for kinds that support
// them, and a final Deny never carries ContinueSession=true.
func reduce(kind event.Kind, verdicts []audit.HandlerVerdict, fallback handler.Decision) handler.Verdict {
	var final handler.Verdict

	denyIdx, askIdx, allowIdx := -1, -1, -1
	for i, hv := range verdicts {
		switch hv.Verdict.Decision {
		case handler.DecisionDeny:
			if denyIdx < 0 {
				denyIdx = i
			}
		case handler.DecisionAsk:
			if askIdx < 0 {
				askIdx = i
			}
		case handler.DecisionAllow:
			if allowIdx < 0 {
				allowIdx = i
			}
		}
	}

	switch {
	case denyIdx >= 0:
		final.Decision = handler.DecisionDeny
		final.ReasonForUser = verdicts[denyIdx].Verdict.ReasonForUser
		final.ReasonForAgent = verdicts[denyIdx].Verdict.ReasonForAgent
	case askIdx >= 0:
		final.Decision = handler.DecisionAsk
		final.ReasonForUser = verdicts[askIdx].Verdict.ReasonForUser
		final.ReasonForAgent = verdicts[askIdx].Verdict.ReasonForAgent
	case allowIdx >= 0:
		final.Decision = handler.DecisionAllow
	default:
		final.Decision = fallback
	}

	if kind.SupportsMutation() {
		for _, hv := range verdicts {
			if hv.Verdict.IsAbstain() {
				continue
			}
			if len(hv.Verdict.MutatedPayload) > 0 {
				final.MutatedPayload = hv.Verdict.MutatedPayload
			}
		}
	}

	if kind.HonorsContinue() {
		for _, hv := range verdicts {
			if hv.Verdict.IsAbstain() {
				continue
			}
			if hv.Verdict.ContinueSession != nil {
				cont := *hv.Verdict.ContinueSession
				final.ContinueSession = &cont
			}
		}
		if final.Denies() && final.ContinueSession != nil && *final.ContinueSession {
			// A continue flag must not silently override a Deny.
			final.ContinueSession = nil
		}
	}

	return final
}
