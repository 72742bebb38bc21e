package health

import (
	"fmt"

	"github.com/hyperke/client-health/internal/model"
)

// ReasonDataMissing is the reason reported for a client with no contacted
// volume in the window.
const ReasonDataMissing = "Data missing: no contacted volume in last 7 days"

// ReasonWithinThresholds is the fallback reason.
const ReasonWithinThresholds = "Performance within acceptable thresholds"

// Reason picks the human-readable justification. It is derived separately
// from Decide and can describe a different aspect of the same snapshot.
// Flags must already be set on s.
func Reason(s *model.HealthSnapshot, th Thresholds) string {
	replies := deref(s.Replies)
	positives := deref(s.Positives)
	rr := s.ReplyRate
	prr := rawPositiveRate(s)

	switch {
	case s.Flags.DataMissing:
		return ReasonDataMissing
	case replies > 0 && positives == 0:
		return fmt.Sprintf("No positive replies: %d replies with 0 positives", replies)
	case rr != nil && *rr < th.ReplyRate.Red:
		return fmt.Sprintf("Critical: reply rate is %s (below %s)", pct(*rr, 2), trimPct(th.ReplyRate.Red))
	case s.BouncePct != nil && *s.BouncePct >= th.BounceRate.Red:
		return fmt.Sprintf("Critical: bounce rate is %s (%s or higher)", pct(*s.BouncePct, 2), trimPct(th.BounceRate.Red))
	case hasTarget(s) && s.VolumeAttainment != nil && *s.VolumeAttainment < th.Volume.Red:
		return fmt.Sprintf("Critical: volume attainment is %s (below %s)", pct(*s.VolumeAttainment, 1), trimPct(th.Volume.Red))
	case rr != nil && *rr < th.ReplyRate.Amber && replies > 0 && positives > 0 && prr != nil && *prr < th.PositiveRate.Red:
		return fmt.Sprintf("Multiple issues: reply rate %s, positive rate %s", pct(*rr, 2), pct(*prr, 2))
	case s.Flags.Volume && s.Flags.Deliverability:
		return "Multiple issues: volume and deliverability concerns"
	case s.Flags.Volume:
		return fmt.Sprintf("Volume below target: attainment is %s", pct(derefF(s.VolumeAttainment), 1))
	case s.Flags.Deliverability:
		return deliverabilityReason(s, th)
	case prr != nil && *prr < th.PositiveRate.Red:
		return fmt.Sprintf("MMF risk: positive reply rate is %s", pct(*prr, 2))
	case s.PCPLProxy != nil && *s.PCPLProxy > th.CostPerPositive.Red:
		return fmt.Sprintf("PCPL high: %.1f leads per positive reply", round(*s.PCPLProxy, 1))
	default:
		return ReasonWithinThresholds
	}
}

// rawPositiveRate is positives/replies before rounding, matching
// positiveRateSignal so a rate just under a boundary is not rounded onto it.
func rawPositiveRate(s *model.HealthSnapshot) *float64 {
	if s.Replies == nil || *s.Replies == 0 || s.Positives == nil {
		return nil
	}
	r := float64(*s.Positives) / float64(*s.Replies)
	return &r
}

func deliverabilityReason(s *model.HealthSnapshot, th Thresholds) string {
	if s.ReplyRate != nil && *s.ReplyRate < th.DeliverabilityReplyRate {
		return fmt.Sprintf("Deliverability risk: reply rate is %s", pct(*s.ReplyRate, 2))
	}
	if s.BouncePct != nil && *s.BouncePct >= th.DeliverabilityBounce {
		return fmt.Sprintf("Deliverability risk: bounce rate is %s", pct(*s.BouncePct, 2))
	}
	return "Deliverability risk: check reply and bounce rates"
}

// pct renders a fraction as a percentage with the given decimals.
func pct(v float64, places int) string {
	return fmt.Sprintf("%.*f%%", places, round(v*100, places))
}

// trimPct renders a threshold fraction without trailing zeros, e.g. 0.015 as 1.5%.
func trimPct(v float64) string {
	return fmt.Sprintf("%g%%", round(v*100, 4))
}

func deref(p *int64) int64 {
	if p == nil {
		return 0
	}
	return *p
}

func derefF(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}
