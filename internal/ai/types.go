package ai

// AnalyzeRequest is the payload sent to the remote analysis service
type AnalyzeRequest struct {
	Vitals  VitalsPayload  `json:"vitals"`
	Profile map[string]any `json:"profile,omitempty"`
}

// VitalsPayload is the wire form of one reading
type VitalsPayload struct {
	HeartRate        int     `json:"heart_rate"`
	BPSystolic       int     `json:"bp_systolic"`
	BPDiastolic      int     `json:"bp_diastolic"`
	OxygenSaturation int     `json:"oxygen_saturation"`
	BodyTemperature  float64 `json:"body_temperature"`
}

// AnalyzeResponse is the remote service's assessment payload. It is
// treated as untrusted input; the caller validates every field before
// use.
type AnalyzeResponse struct {
	RiskLevel       string   `json:"risk_level"`
	Anomalies       []string `json:"anomalies"`
	Recommendations []string `json:"recommendations"`
	Confidence      float64  `json:"confidence"`
	ModelUsed       string   `json:"model_used,omitempty"`
}

// ChatRequest is a free-form question with optional context
type ChatRequest struct {
	Message string         `json:"message"`
	Context map[string]any `json:"context,omitempty"`
}

// ChatResponse is the text answer from the assistant service
type ChatResponse struct {
	Reply string `json:"reply"`
}
