package cron

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-pipeline/types"
)

type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

// Manager schedules named background jobs on a robfig cron instance. Jobs
// run with a timeout and panic isolation so a bad job never takes the
// scheduler down.
type Manager struct {
	ctx      context.Context
	cancel   context.CancelFunc
	config   types.ConfigManager
	logger   types.Logger
	metrics  types.MetricsManager
	cron     *cron.Cron
	timezone *time.Location

	mu   sync.RWMutex
	jobs map[string]*types.JobEntry

	state        atomic.Value
	shutdown     chan struct{}
	shutdownOnce sync.Once
	jobTimeout   time.Duration
}

func NewManager(ctx context.Context, config types.ConfigManager, logger types.Logger, metrics types.MetricsManager) (types.CronManager, error) {
	timezone, err := time.LoadLocation(config.GetConfig().Cron.Timezone)
	if err != nil {
		timezone = time.UTC
	}

	managerCtx, cancel := context.WithCancel(ctx)

	manager := &Manager{
		ctx:     managerCtx,
		cancel:  cancel,
		config:  config,
		logger:  logger,
		metrics: metrics,
		cron: cron.New(
			cron.WithLocation(timezone),
			cron.WithSeconds(),
			cron.WithChain(cron.Recover(cronLogger{logger: logger})),
		),
		timezone:   timezone,
		jobs:       make(map[string]*types.JobEntry),
		shutdown:   make(chan struct{}),
		jobTimeout: 30 * time.Minute,
	}
	manager.state.Store(StateStopped)

	return manager, nil
}

func (m *Manager) Add(jobName, spec string, job func()) error {
	if jobName == "" {
		return types.ErrCronJobNameIsEmpty
	}
	if spec == "" {
		return types.ErrCronExpressionInvalid
	}
	if job == nil {
		return types.ErrCronJobIsNil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	select {
	case <-m.shutdown:
		return types.ErrCronSchedulerStopped
	default:
	}

	if _, exists := m.jobs[jobName]; exists {
		return types.Errorf(types.ErrCronJobExists, "%s", jobName)
	}

	entryID, err := m.cron.AddFunc(spec, m.wrapJob(jobName, job))
	if err != nil {
		return types.Errorf(types.ErrCronExpressionInvalid, "%s: %v", spec, err)
	}

	entry := &types.JobEntry{
		ID:      entryID,
		Name:    jobName,
		Spec:    spec,
		Job:     job,
		AddedAt: time.Now(),
		NextRun: m.cron.Entry(entryID).Next,
	}
	m.jobs[jobName] = entry

	m.logger.Info("Cron job added",
		zap.String("job_name", jobName),
		zap.String("spec", spec))

	return nil
}

func (m *Manager) Remove(jobName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.jobs[jobName]
	if !exists {
		return types.Errorf(types.ErrCronJobNotFound, "%s", jobName)
	}

	m.cron.Remove(entry.ID)
	delete(m.jobs, jobName)

	m.logger.Info("Cron job removed", zap.String("job_name", jobName))
	return nil
}

func (m *Manager) Jobs() map[string]*types.JobEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	jobs := make(map[string]*types.JobEntry, len(m.jobs))
	for name, entry := range m.jobs {
		copied := *entry
		jobs[name] = &copied
	}
	return jobs
}

func (m *Manager) Start() error {
	if !m.state.CompareAndSwap(StateStopped, StateStarting) {
		return types.ErrCronIsRunning
	}

	m.cron.Start()
	m.state.Store(StateRunning)

	if m.metrics != nil {
		m.metrics.Gauge("cron_scheduler_up", nil).Set(1)
	}

	m.logger.Info("Cron manager started", zap.String("timezone", m.timezone.String()))
	return nil
}

func (m *Manager) Stop() error {
	if !m.state.CompareAndSwap(StateRunning, StateStopping) &&
		!m.state.CompareAndSwap(StateStarting, StateStopping) {
		return types.ErrServerNotRunning
	}

	m.shutdownOnce.Do(func() {
		close(m.shutdown)
	})

	defer func() {
		m.state.Store(StateStopped)
		m.cancel()
	}()

	stopCtx := m.cron.Stop()
	select {
	case <-stopCtx.Done():
		m.logger.Info("Cron scheduler stopped gracefully")
	case <-time.After(10 * time.Second):
		m.logger.Warn("Cron scheduler shutdown timeout")
	}

	if m.metrics != nil {
		m.metrics.Gauge("cron_scheduler_up", nil).Set(0)
	}

	return nil
}

func (m *Manager) IsRunning() bool {
	return m.state.Load().(State) == StateRunning
}

func (m *Manager) wrapJob(jobName string, job func()) func() {
	return func() {
		select {
		case <-m.shutdown:
			m.logger.Info("Job skipped due to shutdown", zap.String("job_name", jobName))
			return
		default:
		}

		start := time.Now()
		m.logger.Debug("Cron job started", zap.String("job_name", jobName))

		jobCtx, cancel := context.WithTimeout(m.ctx, m.jobTimeout)
		defer cancel()

		var jobErr error
		done := make(chan struct{})

		go func() {
			defer func() {
				if rec := recover(); rec != nil {
					jobErr = types.Errorf(types.ErrCronJobFailed, "job panic: %v", rec)
					m.logger.Error("Cron job panicked",
						zap.String("job_name", jobName),
						zap.Any("panic", rec))
				}
				close(done)
			}()
			job()
		}()

		select {
		case <-done:
		case <-jobCtx.Done():
			if types.IsError(jobCtx.Err(), context.DeadlineExceeded) {
				jobErr = types.Errorf(types.ErrCronJobTimeout, "timeout after %v", m.jobTimeout)
			} else {
				jobErr = types.WrapError(jobCtx.Err(), "job canceled")
			}

			graceful := time.NewTimer(5 * time.Second)
			select {
			case <-done:
				graceful.Stop()
			case <-graceful.C:
				m.logger.Warn("Job goroutine did not finish gracefully",
					zap.String("job_name", jobName))
			}
		}

		duration := time.Since(start)
		m.recordRun(jobName, duration, jobErr)
	}
}

func (m *Manager) recordRun(jobName string, duration time.Duration, jobErr error) {
	result := "success"
	if jobErr != nil {
		result = "error"
	}

	if m.metrics != nil {
		m.metrics.Counter("cron_job_executions_total", map[string]string{
			"job":    jobName,
			"result": result,
		}).Inc()
		m.metrics.Histogram("cron_job_duration_seconds",
			[]float64{0.01, 0.1, 1.0, 10.0, 60.0},
			map[string]string{"job": jobName},
		).Observe(duration.Seconds())
	}

	m.mu.Lock()
	if entry, exists := m.jobs[jobName]; exists {
		entry.LastRun = time.Now()
		entry.RunCount++
		entry.LastDuration = duration
		entry.NextRun = m.cron.Entry(entry.ID).Next
		if jobErr != nil {
			entry.ErrorCount++
		}
	}
	m.mu.Unlock()

	if jobErr != nil {
		m.logger.Error("Cron job failed",
			zap.String("job_name", jobName),
			zap.Duration("duration", duration),
			zap.Error(jobErr))
	} else {
		m.logger.Info("Cron job completed",
			zap.String("job_name", jobName),
			zap.Duration("duration", duration))
	}
}

type cronLogger struct {
	logger types.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, zap.Any("details", keysAndValues))
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, zap.Error(err), zap.Any("details", keysAndValues))
}
