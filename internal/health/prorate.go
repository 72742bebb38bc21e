package health

import (
	"github.com/hyperke/client-health/internal/model"
)

// Proration is a weekly target scaled to a specific window.
type Proration struct {
	SendingDays    int
	ProratedTarget *float64
	Attainment     *float64
}

// Prorate scales a weekly target onto the sending days in period. The daily
// rate is target/7 for weekend senders and target/5 otherwise. Attainment is
// nil without a positive target, a zero prorated target, or unknown volume.
func Prorate(weeklyTarget *int64, weekendSending bool, period model.RollupPeriod, newLeadsReached *int64) Proration {
	p := Proration{SendingDays: CountSendingDays(period.Start, period.End, weekendSending)}
	if weeklyTarget == nil || *weeklyTarget <= 0 {
		return p
	}

	perDay := float64(*weeklyTarget) / 5
	if weekendSending {
		perDay = float64(*weeklyTarget) / 7
	}
	prorated := perDay * float64(p.SendingDays)
	rounded := round(prorated, 2)
	p.ProratedTarget = &rounded

	if prorated == 0 || newLeadsReached == nil {
		return p
	}
	att := round(float64(*newLeadsReached)/prorated, 4)
	p.Attainment = &att
	return p
}
