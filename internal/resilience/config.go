package resilience

import (
	"time"
)

// PolicyFromConfig converts config values to a Policy. Non-positive timeout
// and delay values and negative retries fall back to the supplied defaults.
func PolicyFromConfig(name string, timeoutSecs, retries, delayMs int, def Policy) Policy {
	p := def
	p.Name = name
	if timeoutSecs > 0 {
		p.Timeout = time.Duration(timeoutSecs) * time.Second
	}
	if retries >= 0 {
		p.Retries = retries
	}
	if delayMs > 0 {
		p.Delay = time.Duration(delayMs) * time.Millisecond
	}
	return p
}
