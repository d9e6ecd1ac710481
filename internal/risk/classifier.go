package risk

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/pulsecare/platform/internal/ai"
	"github.com/pulsecare/platform/internal/patient"
	"github.com/pulsecare/platform/internal/shared/metrics"
	"github.com/pulsecare/platform/internal/shared/types"
	"github.com/pulsecare/platform/internal/vitals"
	"go.uber.org/zap"
)

// AssessmentSource identifies which tier produced an assessment
type AssessmentSource string

const (
	SourceRuleEngine AssessmentSource = "rule-engine"
	SourceRemoteAI   AssessmentSource = "remote-ai"
)

const (
	ruleEngineConfidence    = 0.85
	defaultRemoteConfidence = 0.8
	cacheTTL                = 5 * time.Minute
)

// RiskAssessment is derived from one VitalRecord. It is ephemeral:
// recomputable on demand and cached per record ID, never a system of
// record.
type RiskAssessment struct {
	RecordID        types.ID         `json:"record_id"`
	RiskLevel       Level            `json:"risk_level"`
	Anomalies       []string         `json:"anomalies"`
	Recommendations []string         `json:"recommendations"`
	Confidence      float64          `json:"confidence"`
	Source          AssessmentSource `json:"source"`
}

// IsCritical reports whether the assessment is at the critical level
func (a RiskAssessment) IsCritical() bool {
	return a.RiskLevel == LevelCritical
}

// Classifier maps a VitalRecord to a RiskAssessment. Tier one asks the
// remote analysis service; any failure there falls through to the rule
// engine, which cannot fail on a normalized record.
type Classifier struct {
	remote *ai.Client
	logger *zap.Logger

	mu    sync.Mutex
	cache map[types.ID]cachedAssessment
}

type cachedAssessment struct {
	assessment RiskAssessment
	expires    time.Time
}

// NewClassifier creates a classifier. A nil remote client disables the
// remote tier entirely.
func NewClassifier(remote *ai.Client, logger *zap.Logger) *Classifier {
	return &Classifier{
		remote: remote,
		logger: logger,
		cache:  make(map[types.ID]cachedAssessment),
	}
}

// Classify assesses one record, optionally informed by a patient profile.
// It never returns an error: a degraded-confidence local answer is
// preferred over no answer.
func (c *Classifier) Classify(ctx context.Context, record vitals.VitalRecord, profile *patient.Profile) RiskAssessment {
	if cached, ok := c.lookup(record.ID); ok {
		return cached
	}

	// The rule tier always runs: it is the fallback, and its result
	// floors the remote answer so the aggregate is never below the
	// worst single-metric band.
	ruleLevel, anomalies, recommendations := evaluate(record)

	assessment := RiskAssessment{
		RecordID:        record.ID,
		RiskLevel:       ruleLevel,
		Anomalies:       anomalies,
		Recommendations: recommendations,
		Confidence:      ruleEngineConfidence,
		Source:          SourceRuleEngine,
	}

	if remote := c.tryRemote(ctx, record, profile, ruleLevel); remote != nil {
		assessment = *remote
	}

	metrics.RecordClassification(string(assessment.Source), assessment.RiskLevel.String())
	c.store(record.ID, assessment)
	return assessment
}

// tryRemote attempts the remote tier. Returns nil on any failure.
func (c *Classifier) tryRemote(ctx context.Context, record vitals.VitalRecord, profile *patient.Profile, floor Level) *RiskAssessment {
	if c.remote == nil || !c.remote.Enabled() {
		return nil
	}

	req := ai.AnalyzeRequest{
		Vitals: ai.VitalsPayload{
			HeartRate:        record.HeartRate,
			BPSystolic:       record.BPSystolic,
			BPDiastolic:      record.BPDiastolic,
			OxygenSaturation: record.OxygenSaturation,
			BodyTemperature:  record.BodyTemperature,
		},
	}
	if profile != nil {
		req.Profile = map[string]any{
			"age":        profile.Age,
			"sex":        profile.Sex,
			"conditions": profile.Conditions,
		}
	}

	resp, err := c.remote.AnalyzeVitals(ctx, req)
	if err != nil {
		metrics.RecordRemoteAnalysisFailure()
		c.logger.Warn("remote analysis failed, using rule engine",
			zap.String("record_id", record.ID.String()), zap.Error(err))
		return nil
	}

	level, ok := ParseLevel(resp.RiskLevel)
	if !ok {
		metrics.RecordRemoteAnalysisFailure()
		c.logger.Warn("remote analysis returned unknown risk level",
			zap.String("risk_level", resp.RiskLevel))
		return nil
	}

	// The remote answer may refine upward but never below the worst
	// single-metric band.
	if level < floor {
		level = floor
	}

	confidence := resp.Confidence
	if math.IsNaN(confidence) || confidence <= 0 || confidence > 1 {
		confidence = defaultRemoteConfidence
	}

	anomalies := resp.Anomalies
	if anomalies == nil {
		anomalies = []string{}
	}
	recommendations := resp.Recommendations
	if recommendations == nil {
		recommendations = []string{}
	}

	return &RiskAssessment{
		RecordID:        record.ID,
		RiskLevel:       level,
		Anomalies:       anomalies,
		Recommendations: recommendations,
		Confidence:      confidence,
		Source:          SourceRemoteAI,
	}
}

// EvaluateRules runs only the deterministic rule tier. Used by the admin
// monitoring loop, which reclassifies every patient each tick and must
// stay off the network.
func EvaluateRules(record vitals.VitalRecord) RiskAssessment {
	level, anomalies, recommendations := evaluate(record)
	return RiskAssessment{
		RecordID:        record.ID,
		RiskLevel:       level,
		Anomalies:       anomalies,
		Recommendations: recommendations,
		Confidence:      ruleEngineConfidence,
		Source:          SourceRuleEngine,
	}
}

func (c *Classifier) lookup(id types.ID) (RiskAssessment, bool) {
	if id.IsZero() {
		return RiskAssessment{}, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.cache[id]
	if !ok || time.Now().After(entry.expires) {
		delete(c.cache, id)
		return RiskAssessment{}, false
	}
	return entry.assessment, true
}

func (c *Classifier) store(id types.ID, assessment RiskAssessment) {
	if id.IsZero() {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Opportunistic pruning keeps the cache bounded without a timer.
	if len(c.cache) > 4096 {
		now := time.Now()
		for k, v := range c.cache {
			if now.After(v.expires) {
				delete(c.cache, k)
			}
		}
	}

	c.cache[id] = cachedAssessment{assessment: assessment, expires: time.Now().Add(cacheTTL)}
}
