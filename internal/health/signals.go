package health

import (
	"github.com/hyperke/client-health/internal/model"
)

// EvaluateSignals computes the five metric verdicts. A signal is SignalNone
// when its inputs are unknown.
func EvaluateSignals(s *model.HealthSnapshot, th Thresholds) model.Signals {
	return model.Signals{
		ReplyRate:       replyRateSignal(s.ReplyRate, th),
		PositiveRate:    positiveRateSignal(s.Replies, s.Positives, th),
		CostPerPositive: costPerPositiveSignal(s.NewLeadsReached, s.Positives, th),
		BounceRate:      bounceSignal(s.BouncePct, th),
		Volume:          volumeSignal(s.VolumeAttainment, th),
	}
}

func replyRateSignal(rate *float64, th Thresholds) model.Signal {
	switch {
	case rate == nil:
		return model.SignalNone
	case *rate < th.ReplyRate.Red:
		return model.SignalRed
	case *rate < th.ReplyRate.Amber:
		return model.SignalAmber
	default:
		return model.SignalGreen
	}
}

// positiveRateSignal judges positives/replies. Zero replies means there is
// nothing to judge; replies with zero positives is Red.
func positiveRateSignal(replies, positives *int64, th Thresholds) model.Signal {
	if replies == nil || *replies == 0 || positives == nil {
		return model.SignalNone
	}
	if *positives == 0 {
		return model.SignalRed
	}
	r := float64(*positives) / float64(*replies)
	switch {
	case r < th.PositiveRate.Red:
		return model.SignalRed
	case r < th.PositiveRate.Amber:
		return model.SignalAmber
	default:
		return model.SignalGreen
	}
}

// costPerPositiveSignal judges new leads reached per positive reply.
func costPerPositiveSignal(newLeads, positives *int64, th Thresholds) model.Signal {
	if positives == nil || newLeads == nil {
		return model.SignalNone
	}
	if *positives == 0 {
		return model.SignalRed
	}
	c := float64(*newLeads) / float64(*positives)
	switch {
	case c > th.CostPerPositive.Red:
		return model.SignalRed
	case c > th.CostPerPositive.Amber:
		return model.SignalAmber
	default:
		return model.SignalGreen
	}
}

func bounceSignal(pct *float64, th Thresholds) model.Signal {
	switch {
	case pct == nil:
		return model.SignalNone
	case *pct >= th.BounceRate.Red:
		return model.SignalRed
	case *pct >= th.BounceRate.Amber:
		return model.SignalAmber
	default:
		return model.SignalGreen
	}
}

func volumeSignal(attainment *float64, th Thresholds) model.Signal {
	switch {
	case attainment == nil:
		return model.SignalNone
	case *attainment < th.Volume.Red:
		return model.SignalRed
	case *attainment < th.Volume.Amber:
		return model.SignalAmber
	default:
		return model.SignalGreen
	}
}

// EvaluateFlags computes the boolean risk markers. Unknown values never set
// a flag.
func EvaluateFlags(s *model.HealthSnapshot, th Thresholds) model.Flags {
	var f model.Flags
	f.Deliverability = (s.ReplyRate != nil && *s.ReplyRate < th.DeliverabilityReplyRate) ||
		(s.BouncePct != nil && *s.BouncePct >= th.DeliverabilityBounce)
	f.Volume = s.WeeklyTargetInt != nil && *s.WeeklyTargetInt > 0 &&
		s.VolumeAttainment != nil && *s.VolumeAttainment < th.Volume.Amber
	f.MMF = s.ReplyRate != nil && *s.ReplyRate >= th.MMFReplyRate &&
		s.PositiveReplyRate != nil && *s.PositiveReplyRate < th.MMFPositiveRate
	f.DataMissing = s.Contacted == nil || *s.Contacted == 0
	f.DataStale = s.MostRecentEndDate != nil && s.MostRecentEndDate.Before(s.Period.End)
	return f
}
