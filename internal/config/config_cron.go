package config

import "time"

// CronConfig configures the stale-mission sweep: a periodic reconciliation
// job, not named explicitly in spec.md, that implements the "crash safety"
// paragraph of spec.md §4.6 operationally — if a process died mid-mission,
// a user's mission-control flag can be left stuck `running` forever with
// nothing left to clear it (the in-memory registry dies with the process,
// but a restart-surviving backing store would not). The sweep periodically
// clears any mission-control entry whose "running" flag has been set for
// longer than StaleAfter, so a re-dispatch is never rejected by a ghost.
type CronConfig struct {
	SweepInterval time.Duration `yaml:"sweep_interval"`
	StaleAfter    time.Duration `yaml:"stale_after"`
}
