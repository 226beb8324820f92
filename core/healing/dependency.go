package healing

// RestartFunc restarts a named dependency. Errors are deliberately not
// absorbed here: a failed restart is a more severe condition than a
// locator or executor failure and aborts the current run outright.
type RestartFunc func() error

// DependencyManager maps dependency names to restart callbacks and counts
// every restart attempt, registered or not.
type DependencyManager struct {
	restarters map[string]RestartFunc
	counts     map[string]int
}

// NewDependencyManager creates a manager for the given restarters. A nil
// map is valid; unregistered dependencies are still counted on restart.
func NewDependencyManager(restarters map[string]RestartFunc) *DependencyManager {
	cloned := make(map[string]RestartFunc, len(restarters))
	for name, fn := range restarters {
		cloned[name] = fn
	}
	return &DependencyManager{
		restarters: cloned,
		counts:     make(map[string]int),
	}
}

// Restart increments the dependency's counter unconditionally, then invokes
// the registered callback if one exists. It reports whether a callback ran.
// Callback errors propagate to the caller.
func (m *DependencyManager) Restart(name string) (bool, error) {
	m.counts[name]++
	callback, ok := m.restarters[name]
	if !ok {
		return false, nil
	}
	if err := callback(); err != nil {
		return false, err
	}
	return true, nil
}

// Counts returns a copy of the per-dependency restart counters.
func (m *DependencyManager) Counts() map[string]int {
	counts := make(map[string]int, len(m.counts))
	for name, count := range m.counts {
		counts[name] = count
	}
	return counts
}

// Count returns the restart counter for a single dependency.
func (m *DependencyManager) Count(name string) int {
	return m.counts[name]
}
