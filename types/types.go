package types

// LifecycleManager is implemented by every component the service
// starts and stops as a unit.
type LifecycleManager interface {
	Start() error
	Stop() error
	IsRunning() bool
}
