package testutil_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/AkaraChen/fama/internal/testutil"
	"github.com/AkaraChen/fama/pkg/fama"
)

func TestRecordingHooksConcurrent(t *testing.T) {
	h := testutil.NewRecordingHooks()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = h.OnFileStatusUpdate("a.go", fama.StatusProcessing, "", 0)
			_ = h.OnFileDiscovered("a.go")
		}()
	}
	wg.Wait()
	assert.Len(t, h.Statuses["a.go"], 16)
	assert.Len(t, h.Discovered, 16)
	assert.Equal(t, fama.StatusProcessing, h.Final("a.go"))
	assert.Equal(t, fama.Status(""), h.Final("missing.go"))
}
