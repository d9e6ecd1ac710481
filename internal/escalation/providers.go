package escalation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pulsecare/platform/internal/shared/config"
	"github.com/pulsecare/platform/internal/shared/types"
	"go.uber.org/zap"
)

// Gateway talks to the external telephony/SMS/geolocation gateway. It
// implements every escalation provider interface over one HTTP surface.
type Gateway struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewGateway creates a gateway client, or nil when no URL is configured
func NewGateway(cfg config.EscalationConfig) *Gateway {
	if cfg.GatewayURL == "" {
		return nil
	}
	return &Gateway{
		baseURL:    cfg.GatewayURL,
		token:      cfg.GatewayToken,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Dial places the emergency voice call
func (g *Gateway) Dial(ctx context.Context, number string) error {
	return g.post(ctx, "/v1/calls", map[string]string{"number": number})
}

// Notify sends an SMS to the emergency contact
func (g *Gateway) Notify(ctx context.Context, name, phone, message string) error {
	return g.post(ctx, "/v1/sms", map[string]string{
		"recipient_name": name,
		"phone":          phone,
		"message":        message,
	})
}

// Locate fetches the last reported position of the patient's device
func (g *Gateway) Locate(ctx context.Context, patientID types.ID) (*Location, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		g.baseURL+"/v1/devices/"+patientID.String()+"/location", nil)
	if err != nil {
		return nil, err
	}
	g.authorize(req)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("gateway returned status %d", resp.StatusCode)
	}

	var loc Location
	if err := json.NewDecoder(resp.Body).Decode(&loc); err != nil {
		return nil, fmt.Errorf("failed to decode location: %w", err)
	}
	return &loc, nil
}

// Share pushes a position fix to responders
func (g *Gateway) Share(ctx context.Context, patientID types.ID, loc Location) error {
	return g.post(ctx, "/v1/location-shares", map[string]any{
		"patient_id": patientID,
		"latitude":   loc.Latitude,
		"longitude":  loc.Longitude,
		"accuracy":   loc.Accuracy,
	})
}

func (g *Gateway) post(ctx context.Context, path string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	g.authorize(req)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("gateway returned status %d", resp.StatusCode)
	}
	return nil
}

func (g *Gateway) authorize(req *http.Request) {
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}
}

// LogProviders is the development stand-in for the gateway: every step
// succeeds and is logged. Location is never available, so the share step
// reports its real failure mode.
type LogProviders struct {
	Logger *zap.Logger
}

func (l LogProviders) Dial(ctx context.Context, number string) error {
	l.Logger.Info("DEV: would dial emergency number", zap.String("number", number))
	return nil
}

func (l LogProviders) Notify(ctx context.Context, name, phone, message string) error {
	l.Logger.Info("DEV: would notify emergency contact",
		zap.String("name", name), zap.String("phone", phone), zap.String("message", message))
	return nil
}

func (l LogProviders) Locate(ctx context.Context, patientID types.ID) (*Location, error) {
	return nil, fmt.Errorf("no geolocation source configured")
}

func (l LogProviders) Share(ctx context.Context, patientID types.ID, loc Location) error {
	l.Logger.Info("DEV: would share location",
		zap.String("patient_id", patientID.String()),
		zap.Float64("latitude", loc.Latitude), zap.Float64("longitude", loc.Longitude))
	return nil
}
