package health

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Band is a Red/Amber cut-off pair for one metric.
type Band struct {
	Red   float64 `yaml:"red"`
	Amber float64 `yaml:"amber"`
}

// Thresholds are the scoring cut-offs. Rates are fractions (0.02 = 2%).
type Thresholds struct {
	ReplyRate       Band `yaml:"reply_rate"`        // Red below, Amber below
	PositiveRate    Band `yaml:"positive_rate"`     // Red below, Amber below
	CostPerPositive Band `yaml:"cost_per_positive"` // Red above, Amber above
	BounceRate      Band `yaml:"bounce_rate"`       // Red at or above, Amber at or above
	Volume          Band `yaml:"volume"`            // Red below, Amber below

	DeliverabilityReplyRate float64 `yaml:"deliverability_reply_rate"`
	DeliverabilityBounce    float64 `yaml:"deliverability_bounce"`
	MMFReplyRate            float64 `yaml:"mmf_reply_rate"`
	MMFPositiveRate         float64 `yaml:"mmf_positive_rate"`
}

// DefaultThresholds returns the standard scoring cut-offs.
func DefaultThresholds() Thresholds {
	return Thresholds{
		ReplyRate:       Band{Red: 0.015, Amber: 0.02},
		PositiveRate:    Band{Red: 0.05, Amber: 0.08},
		CostPerPositive: Band{Red: 800, Amber: 500},
		BounceRate:      Band{Red: 0.04, Amber: 0.02},
		Volume:          Band{Red: 0.5, Amber: 0.8},

		DeliverabilityReplyRate: 0.02,
		DeliverabilityBounce:    0.05,
		MMFReplyRate:            0.02,
		MMFPositiveRate:         0.05,
	}
}

// LoadThresholds reads a YAML override file. Keys missing from the file keep
// their default values.
func LoadThresholds(path string) (Thresholds, error) {
	th := DefaultThresholds()
	data, err := os.ReadFile(path)
	if err != nil {
		return th, eris.Wrapf(err, "health: read thresholds %s", path)
	}

	var wrapper struct {
		Thresholds *Thresholds `yaml:"thresholds"`
	}
	wrapper.Thresholds = &th
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return DefaultThresholds(), eris.Wrap(err, "health: parse thresholds")
	}
	if err := th.Validate(); err != nil {
		return DefaultThresholds(), err
	}
	return th, nil
}

// Validate checks that every band is ordered the way its comparison expects.
func (t Thresholds) Validate() error {
	var errs []string
	lower := map[string]Band{"reply_rate": t.ReplyRate, "positive_rate": t.PositiveRate, "volume": t.Volume}
	for name, b := range lower {
		if b.Red < 0 || b.Red > b.Amber {
			errs = append(errs, fmt.Sprintf("%s: red must be >= 0 and <= amber", name))
		}
	}
	higher := map[string]Band{"cost_per_positive": t.CostPerPositive, "bounce_rate": t.BounceRate}
	for name, b := range higher {
		if b.Amber < 0 || b.Amber > b.Red {
			errs = append(errs, fmt.Sprintf("%s: amber must be >= 0 and <= red", name))
		}
	}
	if len(errs) > 0 {
		sort.Strings(errs)
		return eris.Errorf("health: invalid thresholds: %s", strings.Join(errs, "; "))
	}
	return nil
}
