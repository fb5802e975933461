package config

import (
	"time"

	"github.com/stipator/stipator/internal/lib/route"
)

// Config represents the complete server configuration.
type Config struct {
	Tracking   TrackingConfig   `yaml:"tracking"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Google     GoogleConfig     `yaml:"google"`
	Twilio     TwilioConfig     `yaml:"twilio"`
}

// TrackingConfig holds device fix subscription settings.
type TrackingConfig struct {
	MinInterval       time.Duration `yaml:"min_interval"`
	MinDistanceMeters float64       `yaml:"min_distance_meters"`
}

// MonitoringConfig holds the trip monitoring cadence and thresholds.
type MonitoringConfig struct {
	CheckInInterval          time.Duration `yaml:"check_in_interval"`
	DeviationPollInterval    time.Duration `yaml:"deviation_poll_interval"`
	DeviationThresholdMeters float64       `yaml:"deviation_threshold_meters"`
	StaleTripAge             time.Duration `yaml:"stale_trip_age"`
	StaleSweepInterval       time.Duration `yaml:"stale_sweep_interval"`
}

// GoogleConfig holds routing/geocoding provider settings.
type GoogleConfig struct {
	APIKey string `yaml:"api_key"`
}

// TwilioConfig holds messaging gateway settings.
type TwilioConfig struct {
	AccountSID string `yaml:"account_sid"`
	AuthToken  string `yaml:"auth_token"`
	FromNumber string `yaml:"from_number"`
}

// DefaultConfig returns a default configuration.
func DefaultConfig() *Config {
	return &Config{
		Tracking: TrackingConfig{
			MinInterval:       30 * time.Second,
			MinDistanceMeters: 50,
		},
		Monitoring: MonitoringConfig{
			CheckInInterval:          2 * time.Minute,
			DeviationPollInterval:    30 * time.Second,
			DeviationThresholdMeters: route.DefaultThresholdMeters,
			StaleTripAge:             4 * time.Hour,
			StaleSweepInterval:       5 * time.Minute,
		},
	}
}
