package types

import (
	"time"

	"github.com/robfig/cron/v3"
)

type CronManager interface {
	LifecycleManager
	Add(jobName, spec string, job func()) error
	Remove(jobName string) error
	Jobs() map[string]*JobEntry
}

type JobEntry struct {
	ID           cron.EntryID  `json:"id"`
	Name         string        `json:"name"`
	Spec         string        `json:"spec"`
	Job          func()        `json:"-"`
	AddedAt      time.Time     `json:"added_at"`
	NextRun      time.Time     `json:"next_run"`
	LastRun      time.Time     `json:"last_run"`
	RunCount     uint64        `json:"run_count"`
	ErrorCount   uint64        `json:"error_count"`
	LastDuration time.Duration `json:"last_duration"`
}
