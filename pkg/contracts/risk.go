package contracts

import (
	"encoding/json"
	"fmt"
	"strings"
)

// RiskLevel categorizes the severity of a proposed operation.
// Levels are totally ordered: Safe < Low < Medium < High < Critical.
// Later pipeline stages may raise a level but never lower one.
type RiskLevel int

const (
	RiskSafe RiskLevel = iota
	RiskLow
	RiskMedium
	RiskHigh
	RiskCritical
)

var riskNames = map[RiskLevel]string{
	RiskSafe:     "SAFE",
	RiskLow:      "LOW",
	RiskMedium:   "MEDIUM",
	RiskHigh:     "HIGH",
	RiskCritical: "CRITICAL",
}

func (r RiskLevel) String() string {
	if name, ok := riskNames[r]; ok {
		return name
	}
	return fmt.Sprintf("RISK(%d)", int(r))
}

// ParseRiskLevel converts a string (any case) into a RiskLevel.
func ParseRiskLevel(s string) (RiskLevel, error) {
	for level, name := range riskNames {
		if strings.EqualFold(s, name) {
			return level, nil
		}
	}
	return RiskSafe, fmt.Errorf("unknown risk level %q", s)
}

// MaxRisk returns the higher of two risk levels.
func MaxRisk(a, b RiskLevel) RiskLevel {
	if a > b {
		return a
	}
	return b
}

// AtLeast reports whether r is at or above the given level.
func (r RiskLevel) AtLeast(min RiskLevel) bool {
	return r >= min
}

// MarshalJSON encodes the level as its canonical string form.
func (r RiskLevel) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

// UnmarshalJSON accepts the canonical string form (any case).
func (r *RiskLevel) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	level, err := ParseRiskLevel(s)
	if err != nil {
		return err
	}
	*r = level
	return nil
}
