package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"notify-dispatch/internal/handler/http/auth"
	"notify-dispatch/internal/usecase/notify"
)

// apiConfig is the API process configuration. Dispatcher settings use the
// same variables as the worker so both processes dispatch alike.
type apiConfig struct {
	Addr            string        `env:"API_ADDR" envDefault:":8080"`
	JWTSecret       string        `env:"JWT_SECRET,unset"`
	MaxBodyBytes    int64         `env:"API_MAX_BODY_BYTES" envDefault:"1048576"`
	ReadTimeout     time.Duration `env:"API_READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout    time.Duration `env:"API_WRITE_TIMEOUT" envDefault:"60s"`
	ShutdownTimeout time.Duration `env:"API_SHUTDOWN_TIMEOUT" envDefault:"30s"`

	ProviderTimeout  time.Duration `env:"PROVIDER_TIMEOUT" envDefault:"10s"`
	ClaimLease       time.Duration `env:"RETRY_CLAIM_LEASE" envDefault:"5m"`
	NoEligiblePolicy string        `env:"NO_ELIGIBLE_POLICY" envDefault:"fail"`
}

func loadAPIConfig() (apiConfig, error) {
	var cfg apiConfig
	if err := env.Parse(&cfg); err != nil {
		return apiConfig{}, fmt.Errorf("parse api config: %w", err)
	}
	return cfg, cfg.validate()
}

func (c apiConfig) validate() error {
	var errs []error
	if err := auth.ValidateSecret(c.JWTSecret); err != nil {
		errs = append(errs, err)
	}
	if c.MaxBodyBytes < 1024 {
		errs = append(errs, fmt.Errorf("API_MAX_BODY_BYTES must be at least 1024, got %d", c.MaxBodyBytes))
	}
	if c.ProviderTimeout < 100*time.Millisecond || c.ProviderTimeout > 5*time.Minute {
		errs = append(errs, fmt.Errorf("PROVIDER_TIMEOUT must be between 100ms and 5m, got %s", c.ProviderTimeout))
	}
	if c.ClaimLease < 10*time.Second {
		errs = append(errs, fmt.Errorf("RETRY_CLAIM_LEASE must be at least 10s, got %s", c.ClaimLease))
	}
	if !notify.NoEligiblePolicy(c.NoEligiblePolicy).IsValid() {
		errs = append(errs, fmt.Errorf("NO_ELIGIBLE_POLICY must be fail or keep_processing, got %q", c.NoEligiblePolicy))
	}
	return errors.Join(errs...)
}

func (c apiConfig) dispatcherConfig() notify.Config {
	nc := notify.DefaultConfig()
	nc.ProviderTimeout = c.ProviderTimeout
	nc.ClaimLease = c.ClaimLease
	nc.NoEligiblePolicy = notify.NoEligiblePolicy(c.NoEligiblePolicy)
	return nc
}
