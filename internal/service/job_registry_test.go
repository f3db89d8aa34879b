package service

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestJobRegistryTryStart(t *testing.T) {
	r := NewJobRegistry()

	assert.True(t, r.TryStart("module:1"))
	assert.False(t, r.TryStart("module:1"), "second start of the same job must be rejected")
	assert.True(t, r.TryStart("module:2"))

	r.Finish("module:1")
	assert.False(t, r.IsRunning("module:1"))
	assert.True(t, r.TryStart("module:1"))
}

func TestJobRegistryGoRunsAndFinishes(t *testing.T) {
	r := NewJobRegistry()

	var wg sync.WaitGroup
	wg.Add(1)
	started := r.Go("module:1", func() {
		wg.Done()
	})
	assert.True(t, started)
	wg.Wait()

	// Finish 在任务返回后异步执行
	deadline := time.Now().Add(time.Second)
	for r.IsRunning("module:1") && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	assert.False(t, r.IsRunning("module:1"))
}

func TestJobRegistryGoRejectsDuplicate(t *testing.T) {
	r := NewJobRegistry()
	block := make(chan struct{})

	assert.True(t, r.Go("module:1", func() { <-block }))
	assert.False(t, r.Go("module:1", func() {}))

	close(block)
}

func TestJobRegistryRecoversFromPanic(t *testing.T) {
	r := NewJobRegistry()

	assert.True(t, r.Go("module:1", func() {
		panic("pipeline exploded")
	}))

	deadline := time.Now().Add(time.Second)
	for r.IsRunning("module:1") && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	assert.False(t, r.IsRunning("module:1"), "panicked job must still be marked finished")
}
