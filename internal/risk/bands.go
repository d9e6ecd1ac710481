package risk

import (
	"encoding/json"
	"fmt"

	"github.com/pulsecare/platform/internal/vitals"
)

// Level is the ordinal risk classification: low < medium < high < critical
type Level int

const (
	LevelLow Level = iota
	LevelMedium
	LevelHigh
	LevelCritical
)

func (l Level) String() string {
	switch l {
	case LevelLow:
		return "low"
	case LevelMedium:
		return "medium"
	case LevelHigh:
		return "high"
	default:
		return "critical"
	}
}

// ParseLevel parses a level name, reporting whether it was recognized
func ParseLevel(s string) (Level, bool) {
	switch s {
	case "low":
		return LevelLow, true
	case "medium":
		return LevelMedium, true
	case "high":
		return LevelHigh, true
	case "critical":
		return LevelCritical, true
	}
	return LevelLow, false
}

// MarshalJSON encodes the level by name
func (l Level) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.String())
}

// UnmarshalJSON decodes a level name
func (l *Level) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, ok := ParseLevel(s)
	if !ok {
		return fmt.Errorf("unknown risk level %q", s)
	}
	*l = parsed
	return nil
}

// anomaly category, used to pick recommendation templates
type category string

const (
	categoryTachycardia  category = "tachycardia"
	categoryBradycardia  category = "bradycardia"
	categoryHypertension category = "hypertension"
	categoryHypoxemia    category = "hypoxemia"
	categoryFever        category = "fever"
	categoryHypothermia  category = "hypothermia"
)

type finding struct {
	level    Level
	category category
	anomaly  string
}

// heartRateBand evaluates the heart rate against the clinical bands:
// 60-100 normal; 50-59 or 101-120 warning; 40-49 or 121-140 high;
// further out critical.
func heartRateBand(bpm int) *finding {
	switch {
	case bpm >= 60 && bpm <= 100:
		return nil
	case (bpm >= 50 && bpm <= 59) || (bpm >= 101 && bpm <= 120):
		cat := categoryTachycardia
		if bpm < 60 {
			cat = categoryBradycardia
		}
		return &finding{LevelMedium, cat, fmt.Sprintf("heart rate %d bpm slightly out of range (expected 60-100)", bpm)}
	case (bpm >= 40 && bpm <= 49) || (bpm >= 121 && bpm <= 140):
		cat := categoryTachycardia
		if bpm < 60 {
			cat = categoryBradycardia
		}
		return &finding{LevelHigh, cat, fmt.Sprintf("heart rate %d bpm out of range (expected 60-100)", bpm)}
	default:
		cat := categoryTachycardia
		if bpm < 60 {
			cat = categoryBradycardia
		}
		return &finding{LevelCritical, cat, fmt.Sprintf("heart rate %d bpm severely out of range (expected 60-100)", bpm)}
	}
}

// systolicBand: <=120 normal; 121-140 warning; 141-160 high; >160 critical
func systolicBand(mmHg int) *finding {
	switch {
	case mmHg <= 120:
		return nil
	case mmHg <= 140:
		return &finding{LevelMedium, categoryHypertension, fmt.Sprintf("systolic blood pressure %d mmHg elevated (expected <=120)", mmHg)}
	case mmHg <= 160:
		return &finding{LevelHigh, categoryHypertension, fmt.Sprintf("systolic blood pressure %d mmHg high (expected <=120)", mmHg)}
	default:
		return &finding{LevelCritical, categoryHypertension, fmt.Sprintf("systolic blood pressure %d mmHg critically high (expected <=120)", mmHg)}
	}
}

// diastolicBand: <=80 normal; 81-90 warning; 91-100 high; >100 critical
func diastolicBand(mmHg int) *finding {
	switch {
	case mmHg <= 80:
		return nil
	case mmHg <= 90:
		return &finding{LevelMedium, categoryHypertension, fmt.Sprintf("diastolic blood pressure %d mmHg elevated (expected <=80)", mmHg)}
	case mmHg <= 100:
		return &finding{LevelHigh, categoryHypertension, fmt.Sprintf("diastolic blood pressure %d mmHg high (expected <=80)", mmHg)}
	default:
		return &finding{LevelCritical, categoryHypertension, fmt.Sprintf("diastolic blood pressure %d mmHg critically high (expected <=80)", mmHg)}
	}
}

// spo2Band: >=95 normal; 90-94 warning; <90 critical. There is no high
// band: oxygen saturation below 90 is an immediate critical signal.
func spo2Band(pct int) *finding {
	switch {
	case pct >= 95:
		return nil
	case pct >= 90:
		return &finding{LevelMedium, categoryHypoxemia, fmt.Sprintf("oxygen saturation %d%% below normal (expected >=95%%)", pct)}
	default:
		return &finding{LevelCritical, categoryHypoxemia, fmt.Sprintf("oxygen saturation %d%% critically low (expected >=95%%)", pct)}
	}
}

// temperatureBand: 97.0-99.5 normal; 96.0-96.9 or 99.6-100.4 warning;
// 95.0-96.0 or 100.4-103.0 high; below 95 or above 103 critical.
func temperatureBand(f float64) *finding {
	switch {
	case f >= 97.0 && f <= 99.5:
		return nil
	case (f >= 96.0 && f < 97.0) || (f > 99.5 && f <= 100.4):
		cat := categoryFever
		if f < 97.0 {
			cat = categoryHypothermia
		}
		return &finding{LevelMedium, cat, fmt.Sprintf("body temperature %.1f F slightly out of range (expected 97.0-99.5)", f)}
	case (f >= 95.0 && f < 96.0) || (f > 100.4 && f <= 103.0):
		cat := categoryFever
		if f < 96.0 {
			cat = categoryHypothermia
		}
		return &finding{LevelHigh, cat, fmt.Sprintf("body temperature %.1f F out of range (expected 97.0-99.5)", f)}
	default:
		cat := categoryFever
		if f < 95.0 {
			cat = categoryHypothermia
		}
		return &finding{LevelCritical, cat, fmt.Sprintf("body temperature %.1f F severely out of range (expected 97.0-99.5)", f)}
	}
}

var recommendationTemplates = map[category]string{
	categoryTachycardia:  "Your heart rate is elevated. Rest, avoid caffeine and stimulants, and contact your care team if it persists.",
	categoryBradycardia:  "Your heart rate is low. If you feel dizzy or faint, contact your care team promptly.",
	categoryHypertension: "Your blood pressure is elevated. Reduce sodium intake, rest, and re-measure in 30 minutes; contact your care team if it stays high.",
	categoryHypoxemia:    "Your oxygen saturation is low. Sit upright, take slow deep breaths, and seek medical attention if it does not improve.",
	categoryFever:        "Your temperature is elevated. Stay hydrated, rest, and contact your care team if the fever persists or worsens.",
	categoryHypothermia:  "Your temperature is low. Warm up gradually and re-measure; seek care if it remains below normal.",
}

const allNormalRecommendation = "All vitals are within normal ranges. Keep up your current routine."

// evaluate applies every metric band to a record. Pure arithmetic over
// already-validated numbers; it cannot fail.
func evaluate(record vitals.VitalRecord) (Level, []string, []string) {
	findings := make([]*finding, 0, 5)
	for _, f := range []*finding{
		heartRateBand(record.HeartRate),
		systolicBand(record.BPSystolic),
		diastolicBand(record.BPDiastolic),
		spo2Band(record.OxygenSaturation),
		temperatureBand(record.BodyTemperature),
	} {
		if f != nil {
			findings = append(findings, f)
		}
	}

	if len(findings) == 0 {
		return LevelLow, []string{}, []string{allNormalRecommendation}
	}

	level := LevelLow
	anomalies := make([]string, 0, len(findings))
	seen := make(map[category]bool)
	recommendations := make([]string, 0, len(findings))

	for _, f := range findings {
		if f.level > level {
			level = f.level
		}
		anomalies = append(anomalies, f.anomaly)
		if !seen[f.category] {
			seen[f.category] = true
			recommendations = append(recommendations, recommendationTemplates[f.category])
		}
	}

	// Two or more breaching metrics with at least one in the high band
	// indicate a compounding condition; escalate the aggregate.
	if level == LevelHigh && len(findings) >= 2 {
		level = LevelCritical
	}

	return level, anomalies, recommendations
}
