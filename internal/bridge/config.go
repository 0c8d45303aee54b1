package bridge

import "time"

// Config defines supervisor lifecycle policy.
type Config struct {
	// PairingWait bounds how long a fresh session may sit without a pairing
	// challenge or open signal before a network/firewall diagnostic is
	// logged. Diagnostic only; no transition is forced.
	PairingWait time.Duration

	Policy Policy
}

func DefaultConfig() Config {
	return Config{
		PairingWait: 10 * time.Second,
		Policy:      DefaultPolicy(),
	}
}

func (c Config) WithDefaults() Config {
	if c.PairingWait <= 0 {
		c.PairingWait = DefaultConfig().PairingWait
	}
	c.Policy = c.Policy.WithDefaults()
	return c
}
