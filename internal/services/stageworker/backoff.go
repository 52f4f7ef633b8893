package stageworker

import "time"

type BackoffConfig struct {
	Step1 time.Duration // default: 5s
	Step2 time.Duration // default: 15s
	Step3 time.Duration // default: 30s
	Step4 time.Duration // default: 60s

	MaxAttempts int // default: 5
}

func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		Step1:       5 * time.Second,
		Step2:       15 * time.Second,
		Step3:       30 * time.Second,
		Step4:       60 * time.Second,
		MaxAttempts: 5,
	}
}

type Backoff struct {
	cfg BackoffConfig
}

func NewBackoff(cfg BackoffConfig) *Backoff {
	def := DefaultBackoffConfig()
	if cfg.Step1 <= 0 {
		cfg.Step1 = def.Step1
	}
	if cfg.Step2 <= 0 {
		cfg.Step2 = def.Step2
	}
	if cfg.Step3 <= 0 {
		cfg.Step3 = def.Step3
	}
	if cfg.Step4 <= 0 {
		cfg.Step4 = def.Step4
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	return &Backoff{cfg: cfg}
}

// Delay returns the pause before retry number failCount (1-based).
func (b *Backoff) Delay(failCount int) time.Duration {
	switch {
	case failCount <= 1:
		return b.cfg.Step1
	case failCount == 2:
		return b.cfg.Step2
	case failCount == 3:
		return b.cfg.Step3
	default:
		return b.cfg.Step4
	}
}

func (b *Backoff) MaxAttempts() int {
	return b.cfg.MaxAttempts
}
