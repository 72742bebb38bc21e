package health

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperke/client-health/internal/model"
)

func i64(v int64) *int64     { return &v }
func f64(v float64) *float64 { return &v }

// snap builds a snapshot whose raw metrics are all healthy.
func snap() *model.HealthSnapshot {
	return &model.HealthSnapshot{
		ClientCode:        "ACME",
		WeeklyTargetInt:   i64(1000),
		Period:            model.RollupPeriod{Start: date(2025, 2, 7), End: date(2025, 2, 11)},
		Contacted:         i64(1000),
		NewLeadsReached:   i64(1000),
		Replies:           i64(30),
		Positives:         i64(3),
		Bounces:           i64(5),
		ReplyRate:         f64(0.03),
		PositiveReplyRate: f64(0.1),
		BouncePct:         f64(0.005),
		VolumeAttainment:  f64(1.0),
		PCPLProxy:         f64(333.33),
		MostRecentEndDate: timep(date(2025, 2, 11)),
	}
}

func timep(t time.Time) *time.Time { return &t }

func finish(s *model.HealthSnapshot, th Thresholds) (model.RAGStatus, Rule) {
	s.Signals = EvaluateSignals(s, th)
	s.Flags = EvaluateFlags(s, th)
	status, rule := Decide(s, th)
	s.RAGStatus = status
	s.RAGReason = Reason(s, th)
	return status, rule
}

func TestEvaluateSignals(t *testing.T) {
	t.Parallel()
	th := DefaultThresholds()

	t.Run("all green", func(t *testing.T) {
		sig := EvaluateSignals(snap(), th)
		assert.Equal(t, 5, sig.Count(model.SignalGreen))
	})

	t.Run("reply rate bands", func(t *testing.T) {
		for rate, want := range map[float64]model.Signal{
			0.0149: model.SignalRed,
			0.015:  model.SignalAmber,
			0.0199: model.SignalAmber,
			0.02:   model.SignalGreen,
		} {
			s := snap()
			s.ReplyRate = f64(rate)
			assert.Equal(t, want, EvaluateSignals(s, th).ReplyRate, "rate %v", rate)
		}
	})

	t.Run("positive rate", func(t *testing.T) {
		s := snap()
		s.Replies, s.Positives = i64(0), i64(0)
		assert.Equal(t, model.SignalNone, EvaluateSignals(s, th).PositiveRate)

		s.Replies, s.Positives = i64(10), i64(0)
		assert.Equal(t, model.SignalRed, EvaluateSignals(s, th).PositiveRate)

		s.Replies, s.Positives = i64(100), i64(6)
		assert.Equal(t, model.SignalAmber, EvaluateSignals(s, th).PositiveRate)

		s.Replies, s.Positives = i64(100), i64(8)
		assert.Equal(t, model.SignalGreen, EvaluateSignals(s, th).PositiveRate)
	})

	t.Run("cost per positive", func(t *testing.T) {
		s := snap()
		s.Positives = i64(0)
		assert.Equal(t, model.SignalRed, EvaluateSignals(s, th).CostPerPositive)

		s.Positives, s.NewLeadsReached = i64(1), i64(801)
		assert.Equal(t, model.SignalRed, EvaluateSignals(s, th).CostPerPositive)

		s.NewLeadsReached = i64(800)
		assert.Equal(t, model.SignalAmber, EvaluateSignals(s, th).CostPerPositive)

		s.NewLeadsReached = i64(500)
		assert.Equal(t, model.SignalGreen, EvaluateSignals(s, th).CostPerPositive)
	})

	t.Run("bounce bands", func(t *testing.T) {
		s := snap()
		s.BouncePct = f64(0.04)
		assert.Equal(t, model.SignalRed, EvaluateSignals(s, th).BounceRate)
		s.BouncePct = f64(0.02)
		assert.Equal(t, model.SignalAmber, EvaluateSignals(s, th).BounceRate)
	})

	t.Run("unknown inputs are null", func(t *testing.T) {
		s := &model.HealthSnapshot{}
		sig := EvaluateSignals(s, th)
		for _, v := range sig.All() {
			assert.Equal(t, model.SignalNone, v)
		}
	})
}

func TestDecide_Rules(t *testing.T) {
	t.Parallel()
	th := DefaultThresholds()

	tests := []struct {
		name       string
		mutate     func(s *model.HealthSnapshot)
		wantStatus model.RAGStatus
		wantRule   Rule
	}{
		{
			name:       "reply rate red with everything else green",
			mutate:     func(s *model.HealthSnapshot) { s.ReplyRate = f64(0.01) },
			wantStatus: model.RAGRed,
			wantRule:   RuleCriticalOverride,
		},
		{
			name:       "zero contacted",
			mutate:     func(s *model.HealthSnapshot) { s.Contacted = i64(0) },
			wantStatus: model.RAGRed,
			wantRule:   RuleCriticalOverride,
		},
		{
			name:       "critical bounce",
			mutate:     func(s *model.HealthSnapshot) { s.BouncePct = f64(0.05) },
			wantStatus: model.RAGRed,
			wantRule:   RuleCriticalOverride,
		},
		{
			name:       "critical volume",
			mutate:     func(s *model.HealthSnapshot) { s.VolumeAttainment = f64(0.4) },
			wantStatus: model.RAGRed,
			wantRule:   RuleCriticalOverride,
		},
		{
			name: "two red one amber",
			mutate: func(s *model.HealthSnapshot) {
				s.Replies, s.Positives = i64(30), i64(0)
				s.BouncePct = f64(0.03)
				s.WeeklyTargetInt = nil
				s.VolumeAttainment = nil
			},
			// prr Red, pcpl Red, bounce Amber, volume NULL.
			wantStatus: model.RAGRed,
			wantRule:   RuleTwoRedOneAmber,
		},
		{
			name: "three amber",
			mutate: func(s *model.HealthSnapshot) {
				s.ReplyRate = f64(0.018)
				s.BouncePct = f64(0.03)
				s.VolumeAttainment = f64(0.7)
			},
			wantStatus: model.RAGYellow,
			wantRule:   RuleThreeAmber,
		},
		{
			name:       "all green",
			mutate:     func(s *model.HealthSnapshot) {},
			wantStatus: model.RAGGreen,
			wantRule:   RuleFourGreen,
		},
		{
			name: "four green one null",
			mutate: func(s *model.HealthSnapshot) {
				s.WeeklyTargetInt = nil
				s.VolumeAttainment = nil
			},
			wantStatus: model.RAGGreen,
			wantRule:   RuleFourGreen,
		},
		{
			name: "three green two amber",
			mutate: func(s *model.HealthSnapshot) {
				s.ReplyRate = f64(0.018)
				s.BouncePct = f64(0.03)
			},
			wantStatus: model.RAGYellow,
			wantRule:   RuleThreeGreenTwoAmber,
		},
		{
			name: "three green one amber one null",
			mutate: func(s *model.HealthSnapshot) {
				s.BouncePct = f64(0.03)
				s.WeeklyTargetInt = nil
				s.VolumeAttainment = nil
			},
			wantStatus: model.RAGYellow,
			wantRule:   RuleThreeGreenMixed,
		},
		{
			name: "sparse votes",
			mutate: func(s *model.HealthSnapshot) {
				s.Replies, s.Positives = i64(0), i64(0)
				s.PositiveReplyRate = nil
				s.NewLeadsReached = i64(1000)
				s.Positives = nil
				s.WeeklyTargetInt = nil
				s.VolumeAttainment = nil
			},
			// rr Green, bounce Green, the rest NULL.
			wantStatus: model.RAGYellow,
			wantRule:   RuleDefault,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := snap()
			tt.mutate(s)
			status, rule := finish(s, th)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantRule, rule, "rule %s", rule)
		})
	}
}

func TestDecide_ThreeRedVotes(t *testing.T) {
	t.Parallel()
	th := DefaultThresholds()
	s := snap()
	s.Signals = model.Signals{
		ReplyRate:       model.SignalGreen,
		PositiveRate:    model.SignalRed,
		CostPerPositive: model.SignalRed,
		BounceRate:      model.SignalGreen,
		Volume:          model.SignalRed,
	}
	status, rule := Decide(s, th)
	assert.Equal(t, model.RAGRed, status)
	assert.Equal(t, RuleThreeRed, rule)
}

func TestDecide_ContactedZeroAlwaysDataMissing(t *testing.T) {
	t.Parallel()
	th := DefaultThresholds()

	mutations := []func(s *model.HealthSnapshot){
		func(s *model.HealthSnapshot) {},
		func(s *model.HealthSnapshot) { s.ReplyRate = f64(0.001) },
		func(s *model.HealthSnapshot) { s.BouncePct = f64(0.5) },
		func(s *model.HealthSnapshot) { s.Replies, s.Positives = i64(10), i64(0) },
	}
	for _, m := range mutations {
		s := snap()
		m(s)
		s.Contacted = i64(0)
		status, _ := finish(s, th)
		assert.Equal(t, model.RAGRed, status)
		assert.Equal(t, "Data missing: no contacted volume in last 7 days", s.RAGReason)
		assert.True(t, s.Flags.DataMissing)
	}
}

func TestDecide_ReplyRateMonotonic(t *testing.T) {
	t.Parallel()
	th := DefaultThresholds()

	for _, base := range []func(s *model.HealthSnapshot){
		func(s *model.HealthSnapshot) {},
		func(s *model.HealthSnapshot) { s.BouncePct = f64(0.03) },
		func(s *model.HealthSnapshot) { s.VolumeAttainment = f64(0.7) },
		func(s *model.HealthSnapshot) { s.WeeklyTargetInt, s.VolumeAttainment = nil, nil },
	} {
		prev := 0
		for rate := 0.03; rate >= 0.00999; rate -= 0.001 {
			s := snap()
			base(s)
			s.ReplyRate = f64(round(rate, 4))
			status, _ := finish(s, th)
			rank := statusRank[status]
			assert.GreaterOrEqual(t, rank, prev, "rate %.4f improved status to %s", rate, status)
			prev = rank
		}
	}
}

func TestReason_Ladder(t *testing.T) {
	t.Parallel()
	th := DefaultThresholds()

	tests := []struct {
		name   string
		mutate func(s *model.HealthSnapshot)
		want   string
	}{
		{
			name:   "no contacted",
			mutate: func(s *model.HealthSnapshot) { s.Contacted = nil },
			want:   "Data missing: no contacted volume in last 7 days",
		},
		{
			name:   "replies without positives",
			mutate: func(s *model.HealthSnapshot) { s.Replies, s.Positives = i64(12), i64(0) },
			want:   "No positive replies: 12 replies with 0 positives",
		},
		{
			name:   "critical reply rate",
			mutate: func(s *model.HealthSnapshot) { s.ReplyRate = f64(0.0123) },
			want:   "Critical: reply rate is 1.23% (below 1.5%)",
		},
		{
			name:   "critical bounce",
			mutate: func(s *model.HealthSnapshot) { s.BouncePct = f64(0.0456) },
			want:   "Critical: bounce rate is 4.56% (4% or higher)",
		},
		{
			name:   "critical volume",
			mutate: func(s *model.HealthSnapshot) { s.VolumeAttainment = f64(0.4567) },
			want:   "Critical: volume attainment is 45.7% (below 50%)",
		},
		{
			name: "reply and positive issue",
			mutate: func(s *model.HealthSnapshot) {
				s.ReplyRate = f64(0.018)
				s.Replies, s.Positives = i64(50), i64(2)
				s.PositiveReplyRate = f64(0.04)
			},
			want: "Multiple issues: reply rate 1.80%, positive rate 4.00%",
		},
		{
			name: "volume and deliverability",
			mutate: func(s *model.HealthSnapshot) {
				s.VolumeAttainment = f64(0.7)
				s.ReplyRate = f64(0.018)
			},
			want: "Multiple issues: volume and deliverability concerns",
		},
		{
			name:   "volume only",
			mutate: func(s *model.HealthSnapshot) { s.VolumeAttainment = f64(0.75) },
			want:   "Volume below target: attainment is 75.0%",
		},
		{
			name:   "deliverability via reply rate",
			mutate: func(s *model.HealthSnapshot) { s.ReplyRate = f64(0.019) },
			want:   "Deliverability risk: reply rate is 1.90%",
		},
		{
			name: "mmf",
			mutate: func(s *model.HealthSnapshot) {
				s.Replies, s.Positives = i64(100), i64(3)
				s.PositiveReplyRate = f64(0.03)
			},
			want: "MMF risk: positive reply rate is 3.00%",
		},
		{
			name:   "pcpl",
			mutate: func(s *model.HealthSnapshot) { s.PCPLProxy = f64(912.345) },
			want:   "PCPL high: 912.3 leads per positive reply",
		},
		{
			name:   "default",
			mutate: func(s *model.HealthSnapshot) {},
			want:   "Performance within acceptable thresholds",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := snap()
			tt.mutate(s)
			finish(s, th)
			assert.Equal(t, tt.want, s.RAGReason)
		})
	}
}

func TestReason_PositiveRateUsesUnroundedRatio(t *testing.T) {
	t.Parallel()
	th := DefaultThresholds()

	// 1000/20001 is 0.049997, stored rounded as 0.05.
	s := snap()
	s.Replies, s.Positives = i64(20001), i64(1000)
	s.PositiveReplyRate = f64(0.05)
	finish(s, th)
	assert.Equal(t, model.SignalRed, s.Signals.PositiveRate)
	assert.Equal(t, "MMF risk: positive reply rate is 5.00%", s.RAGReason)

	s = snap()
	s.ReplyRate = f64(0.018)
	s.Replies, s.Positives = i64(20001), i64(1000)
	s.PositiveReplyRate = f64(0.05)
	finish(s, th)
	assert.Equal(t, "Multiple issues: reply rate 1.80%, positive rate 5.00%", s.RAGReason)
}

func TestReason_DeliverabilityBounce(t *testing.T) {
	t.Parallel()
	th := DefaultThresholds()
	th.BounceRate.Red = 0.10
	s := snap()
	s.BouncePct = f64(0.06)
	finish(s, th)
	assert.Equal(t, "Deliverability risk: bounce rate is 6.00%", s.RAGReason)
}

func TestEvaluateFlags(t *testing.T) {
	t.Parallel()
	th := DefaultThresholds()

	s := snap()
	f := EvaluateFlags(s, th)
	assert.Equal(t, model.Flags{}, f)

	s.MostRecentEndDate = timep(date(2025, 2, 9))
	s.VolumeAttainment = f64(0.79)
	s.PositiveReplyRate = f64(0.04)
	f = EvaluateFlags(s, th)
	assert.True(t, f.DataStale)
	assert.True(t, f.Volume)
	assert.True(t, f.MMF)
	assert.False(t, f.Deliverability)

	empty := &model.HealthSnapshot{}
	f = EvaluateFlags(empty, th)
	assert.True(t, f.DataMissing)
	assert.False(t, f.DataStale)
	assert.False(t, f.Volume)
}

func TestScore(t *testing.T) {
	t.Parallel()
	th := DefaultThresholds()
	period := model.RollupPeriod{Start: date(2025, 2, 10), End: date(2025, 2, 14)}
	now := date(2025, 2, 15)

	target := int64(1000)
	exit := date(2025, 1, 1)
	clients := []model.Client{
		{ID: 2, Code: "ZED", WeeklyTargetInt: &target},
		{ID: 1, Code: "ACME", WeeklyTargetInt: &target},
		{ID: 3, Code: "GONE", ExitDate: &exit},
	}
	rr, prr, bp := 0.03, 0.1, 0.005
	end := date(2025, 2, 14)
	rollups := map[int64]model.ClientRollup{
		1: {
			ClientID: 1, ClientCode: "ACME", Period: period,
			Contacted: 1200, NewLeadsReached: 1000, Replies: 30, Positives: 3, Bounces: 6,
			ReplyRate: &rr, PositiveReplyRate: &prr, BouncePct: &bp, MostRecentEndDate: &end,
		},
	}

	out := Score(clients, rollups, period, th, now)
	require.Len(t, out, 2)

	acme := out[0]
	assert.Equal(t, "ACME", acme.ClientCode)
	assert.Equal(t, model.RAGGreen, acme.RAGStatus)
	require.NotNil(t, acme.ProratedTarget)
	assert.Equal(t, 1000.0, *acme.ProratedTarget)
	require.NotNil(t, acme.VolumeAttainment)
	assert.Equal(t, 1.0, *acme.VolumeAttainment)
	require.NotNil(t, acme.PCPLProxy)
	assert.Equal(t, 333.33, *acme.PCPLProxy)
	assert.Equal(t, now, acme.ComputedAt)

	zed := out[1]
	assert.Equal(t, "ZED", zed.ClientCode)
	assert.Nil(t, zed.Contacted)
	assert.Nil(t, zed.VolumeAttainment)
	assert.Equal(t, model.RAGRed, zed.RAGStatus)
	assert.Equal(t, ReasonDataMissing, zed.RAGReason)
}

func TestCombineWeeks(t *testing.T) {
	t.Parallel()

	w1 := *snap()
	w1.Period = model.RollupPeriod{Start: date(2025, 1, 31), End: date(2025, 2, 6), WeekNumber: 1}
	w1.RAGStatus, w1.RAGReason = model.RAGGreen, ReasonWithinThresholds

	w2 := *snap()
	w2.Period = model.RollupPeriod{Start: date(2025, 1, 24), End: date(2025, 1, 30), WeekNumber: 2}
	w2.ReplyRate = f64(0.01)
	w2.Flags.Deliverability = true
	w2.RAGStatus, w2.RAGReason = model.RAGRed, "Critical: reply rate is 1.00% (below 1.5%)"

	got := CombineWeeks([]model.HealthSnapshot{w1, w2})
	require.NotNil(t, got.Contacted)
	assert.Equal(t, int64(2000), *got.Contacted)
	require.NotNil(t, got.ReplyRate)
	assert.Equal(t, 0.02, *got.ReplyRate)
	assert.True(t, got.Flags.Deliverability)
	assert.Equal(t, model.RAGRed, got.RAGStatus)
	assert.Equal(t, w2.RAGReason, got.RAGReason)
	assert.Equal(t, date(2025, 1, 24), got.Period.Start)
	assert.Equal(t, date(2025, 2, 6), got.Period.End)

	assert.Equal(t, model.HealthSnapshot{}, CombineWeeks(nil))
}

func TestUnmatched(t *testing.T) {
	t.Parallel()
	today := date(2025, 2, 15)
	exit := date(2025, 1, 1)
	clients := []model.Client{
		{ID: 1, Code: "ACME"},
		{ID: 2, Code: "Lonely"},
		{ID: 3, Code: "Exited", ExitDate: &exit},
	}
	records := []model.PerformanceRecord{
		rec("acme", date(2025, 2, 10), 1, 1, 0, 0, 0),
		rec("Stray", date(2025, 2, 10), 1, 1, 0, 0, 0),
		rec("stray ", date(2025, 2, 12), 1, 1, 0, 0, 0),
		rec("ancient", date(2024, 12, 1), 1, 1, 0, 0, 0),
	}
	assocs := Resolve(clients, records)

	got := Unmatched(clients, assocs, records, today, 30)
	require.Len(t, got, 2)

	assert.Equal(t, model.UnmatchedClient, got[0].Kind)
	require.NotNil(t, got[0].ClientCode)
	assert.Equal(t, "Lonely", *got[0].ClientCode)
	assert.Equal(t, "lonely", got[0].LabelNorm)
	assert.Equal(t, today, got[0].LastSeen)
	assert.Equal(t, int64(1), got[0].RecordCount)

	assert.Equal(t, model.UnmatchedLabel, got[1].Kind)
	assert.Nil(t, got[1].ClientCode)
	assert.Equal(t, "stray", got[1].LabelNorm)
	assert.Equal(t, date(2025, 2, 12), got[1].LastSeen)
	assert.Equal(t, int64(2), got[1].RecordCount)
}

func TestLoadThresholds(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "thresholds.yaml")
	require.NoError(t, os.WriteFile(path, []byte("thresholds:\n  reply_rate:\n    red: 0.01\n  cost_per_positive:\n    red: 900\n    amber: 600\n"), 0o644))

	th, err := LoadThresholds(path)
	require.NoError(t, err)
	assert.Equal(t, 0.01, th.ReplyRate.Red)
	assert.Equal(t, 0.02, th.ReplyRate.Amber)
	assert.Equal(t, 900.0, th.CostPerPositive.Red)
	assert.Equal(t, 0.04, th.BounceRate.Red)
}

func TestLoadThresholds_Invalid(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("thresholds:\n  bounce_rate:\n    red: 0.01\n    amber: 0.03\n"), 0o644))

	_, err := LoadThresholds(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bounce_rate")

	_, err = LoadThresholds(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
