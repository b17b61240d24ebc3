package settlement

import "time"

type Config struct {
	// PollInterval is the base delay between attestation polls; actual
	// delays grow from it per the backoff schedule.
	PollInterval time.Duration

	// MaxBackoff caps the poll delay.
	MaxBackoff time.Duration

	// Timeout is how long a poller waits for the external attestation
	// before falling back to direct escrow funding. Zero disables the
	// fallback; the poller then waits indefinitely.
	Timeout time.Duration

	// TxTimeout bounds each redemption transaction including the wait
	// for its receipt.
	TxTimeout time.Duration
}

func (c *Config) withDefaults() *Config {
	out := *c
	if out.PollInterval == 0 {
		out.PollInterval = 10 * time.Second
	}
	if out.MaxBackoff == 0 {
		out.MaxBackoff = 2 * time.Minute
	}
	if out.TxTimeout == 0 {
		out.TxTimeout = 3 * time.Minute
	}
	return &out
}
