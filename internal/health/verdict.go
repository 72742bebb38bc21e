package health

import "github.com/hyperke/client-health/internal/model"

// Rule identifies which verdict rule decided a status.
type Rule int

const (
	RuleCriticalOverride Rule = iota + 1
	RuleThreeRed
	RuleTwoRedOneAmber
	RuleThreeAmber
	RuleFourGreen
	RuleThreeGreenTwoAmber
	RuleThreeGreenMixed
	RuleDefault
)

var ruleNames = map[Rule]string{
	RuleCriticalOverride:   "critical_override",
	RuleThreeRed:           "three_red",
	RuleTwoRedOneAmber:     "two_red_one_amber",
	RuleThreeAmber:         "three_amber",
	RuleFourGreen:          "four_green",
	RuleThreeGreenTwoAmber: "three_green_two_amber",
	RuleThreeGreenMixed:    "three_green_mixed",
	RuleDefault:            "default",
}

func (r Rule) String() string {
	if n, ok := ruleNames[r]; ok {
		return n
	}
	return "unknown"
}

// Decide evaluates the verdict rules in priority order and returns the first
// match. The critical overrides look at raw metrics, not at signals, so a
// NULL signal cannot mask them.
func Decide(s *model.HealthSnapshot, th Thresholds) (model.RAGStatus, Rule) {
	if critical(s, th) {
		return model.RAGRed, RuleCriticalOverride
	}

	sig := s.Signals
	red := sig.Count(model.SignalRed)
	amber := sig.Count(model.SignalAmber)
	green := sig.Count(model.SignalGreen)

	switch {
	case red >= 3:
		return model.RAGRed, RuleThreeRed
	case red >= 2 && amber >= 1:
		return model.RAGRed, RuleTwoRedOneAmber
	case amber >= 3:
		return model.RAGYellow, RuleThreeAmber
	case green >= 4:
		return model.RAGGreen, RuleFourGreen
	case green == 3 && amber == 2:
		return model.RAGYellow, RuleThreeGreenTwoAmber
	case green == 3 && red+amber >= 1:
		return model.RAGYellow, RuleThreeGreenMixed
	default:
		return model.RAGYellow, RuleDefault
	}
}

func critical(s *model.HealthSnapshot, th Thresholds) bool {
	if s.Contacted == nil || *s.Contacted == 0 {
		return true
	}
	if s.ReplyRate != nil && *s.ReplyRate < th.ReplyRate.Red {
		return true
	}
	if s.BouncePct != nil && *s.BouncePct >= th.BounceRate.Red {
		return true
	}
	return hasTarget(s) && s.VolumeAttainment != nil && *s.VolumeAttainment < th.Volume.Red
}

func hasTarget(s *model.HealthSnapshot) bool {
	return s.WeeklyTargetInt != nil && *s.WeeklyTargetInt > 0
}
