package obs

import (
	"sync"
	"testing"

	"go.uber.org/zap"
)

func TestLoggerNeverNil(t *testing.T) {
	if Logger() == nil {
		t.Fatal("Logger() returned nil")
	}
}

func TestSetLoggerIsSafeUnderConcurrentReads(t *testing.T) {
	replacement := zap.NewNop()

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				if Logger() == nil {
					t.Error("Logger() returned nil during swap")
					return
				}
			}
		}()
	}
	SetLogger(replacement)
	wg.Wait()

	if Logger() != replacement {
		t.Fatal("SetLogger did not take effect")
	}
	SetLogger(nil)
	if Logger() != replacement {
		t.Fatal("SetLogger(nil) must be a no-op")
	}
}
