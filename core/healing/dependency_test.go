package healing

import (
	"errors"
	"testing"
)

func TestDependencyManager_RestartCountsUnregistered(t *testing.T) {
	manager := NewDependencyManager(nil)

	for i := 0; i < 3; i++ {
		restarted, err := manager.Restart("db")
		if err != nil {
			t.Fatalf("Restart(db) error = %v", err)
		}
		if restarted {
			t.Error("Restart(db) reported a callback ran with none registered")
		}
	}

	if got := manager.Count("db"); got != 3 {
		t.Errorf("Count(db) = %d, want 3", got)
	}
}

func TestDependencyManager_RestartInvokesCallback(t *testing.T) {
	calls := 0
	manager := NewDependencyManager(map[string]RestartFunc{
		"cache": func() error {
			calls++
			return nil
		},
	})

	restarted, err := manager.Restart("cache")
	if err != nil {
		t.Fatalf("Restart(cache) error = %v", err)
	}
	if !restarted {
		t.Error("Restart(cache) = false, want true")
	}
	if calls != 1 {
		t.Errorf("callback called %d times, want 1", calls)
	}
}

func TestDependencyManager_CallbackErrorPropagates(t *testing.T) {
	boom := errors.New("restart blew up")
	manager := NewDependencyManager(map[string]RestartFunc{
		"db": func() error { return boom },
	})

	_, err := manager.Restart("db")
	if !errors.Is(err, boom) {
		t.Errorf("Restart(db) error = %v, want %v", err, boom)
	}
	// The counter still increments on a failed restart attempt.
	if got := manager.Count("db"); got != 1 {
		t.Errorf("Count(db) = %d, want 1", got)
	}
}

func TestDependencyManager_CountsIsACopy(t *testing.T) {
	manager := NewDependencyManager(nil)
	manager.Restart("db")

	counts := manager.Counts()
	counts["db"] = 100

	if got := manager.Count("db"); got != 1 {
		t.Errorf("Count(db) = %d after mutating Counts() copy, want 1", got)
	}
}
