package dispatch

import "time"

const (
	defaultIdleInterval = 50 * time.Millisecond
)

// schedulerConfig overrides scheduler behavior for tests or tuning.
type schedulerConfig struct {
	now          func() time.Time
	spacing      time.Duration
	idleInterval time.Duration
	observer     Observer
}

// defaultSchedulerConfig returns the production scheduler defaults.
func defaultSchedulerConfig() schedulerConfig {
	return schedulerConfig{
		now:          time.Now,
		idleInterval: defaultIdleInterval,
	}
}
