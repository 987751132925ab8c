// Package bridge adapts the external environmental-sensor bridge. The core
// never polls; this adapter does, and feeds already-resolved readings (or
// explicit per-measurement absence) into ingestion.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/homemic/sleep-server/internal/models"
	"github.com/homemic/sleep-server/internal/realtime"
)

// Measurement endpoint paths on the sensor bridge. Each is polled
// independently; any subset may fail without invalidating the rest.
const (
	pathCO2         = "/measurements/co2"
	pathTemperature = "/measurements/temperature"
	pathHumidity    = "/measurements/humidity"
)

type measurementResponse struct {
	Value float64 `json:"value"`
}

// Client talks to the sensor bridge's HTTP API.
type Client struct {
	httpClient *resty.Client
	logger     *zap.Logger
}

// NewClient creates a sensor bridge client.
func NewClient(baseURL string, logger *zap.Logger) *Client {
	c := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(10 * time.Second).
		SetHeader("Accept", "application/json")
	return &Client{httpClient: c, logger: logger}
}

// fetch polls one measurement endpoint. A failed poll returns nil: absence
// of a measurement is data, not an error.
func (c *Client) fetch(ctx context.Context, path string) *float64 {
	resp, err := c.httpClient.R().
		SetContext(ctx).
		Get(path)
	if err != nil {
		c.logger.Debug("sensor poll failed", zap.String("path", path), zap.Error(err))
		return nil
	}
	if resp.StatusCode() != 200 {
		c.logger.Debug("sensor poll non-200", zap.String("path", path), zap.Int("status", resp.StatusCode()))
		return nil
	}
	// Some bridges answer JSON under a text/plain content type; decode the
	// body directly rather than gating on the header.
	var out measurementResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		c.logger.Debug("sensor poll undecodable payload", zap.String("path", path), zap.Error(err))
		return nil
	}
	v := out.Value
	return &v
}

// ReadAll polls the three measurements independently.
func (c *Client) ReadAll(ctx context.Context) (co2, temperature, humidity *float64) {
	return c.fetch(ctx, pathCO2), c.fetch(ctx, pathTemperature), c.fetch(ctx, pathHumidity)
}

// SessionSource locates the session for a date, nil when none exists.
type SessionSource interface {
	GetByDate(ctx context.Context, date time.Time) (*models.Session, error)
}

// ReadingSink appends an environmental reading; the ingest repository
// satisfies this.
type ReadingSink interface {
	RecordReading(ctx context.Context, sessionID uuid.UUID, at time.Time, co2, temperature, humidity *float64) (*models.EnvironmentalReading, error)
}

// Poller polls the bridge on an interval and records a reading against the
// open session for today. No open session, no reading.
type Poller struct {
	client   *Client
	sessions SessionSource
	readings ReadingSink
	hub      *realtime.Hub
	interval time.Duration
	logger   *zap.Logger
}

// NewPoller creates a bridge poller.
func NewPoller(client *Client, sessions SessionSource, readings ReadingSink, hub *realtime.Hub, interval time.Duration, logger *zap.Logger) *Poller {
	return &Poller{
		client:   client,
		sessions: sessions,
		readings: readings,
		hub:      hub,
		interval: interval,
		logger:   logger,
	}
}

// Run polls until ctx is done.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	p.logger.Info("sensor bridge poller started", zap.Duration("interval", p.interval))
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("sensor bridge poller stopping")
			return
		case <-ticker.C:
			if err := p.pollOnce(ctx); err != nil {
				p.logger.Warn("sensor poll", zap.Error(err))
			}
		}
	}
}

func (p *Poller) pollOnce(ctx context.Context) error {
	session, err := p.sessions.GetByDate(ctx, models.DateOf(time.Now()))
	if err != nil {
		return fmt.Errorf("resolve session: %w", err)
	}
	if session == nil || !session.Open() {
		return nil // nothing being tracked right now
	}

	co2, temperature, humidity := p.client.ReadAll(ctx)
	if co2 == nil && temperature == nil && humidity == nil {
		p.logger.Debug("all sensors unavailable, skipping reading")
		return nil
	}

	rd, err := p.readings.RecordReading(ctx, session.ID, time.Now(), co2, temperature, humidity)
	if err != nil {
		return fmt.Errorf("record reading: %w", err)
	}
	p.hub.Publish(realtime.EventEnvironment, rd)
	return nil
}
