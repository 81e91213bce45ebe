package attendance

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimerSchedulerFires(t *testing.T) {
	s := NewTimerScheduler(nil)
	defer s.Stop()

	fired := make(chan string, 2)
	s.Schedule("a", time.Now().Add(10*time.Millisecond), func() { fired <- "a" })
	s.Schedule("b", time.Now().Add(-time.Second), func() { fired <- "b" })

	got := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case id := <-fired:
			got[id] = true
		case <-time.After(2 * time.Second):
			t.Fatal("timer did not fire")
		}
	}
	assert.True(t, got["a"] && got["b"])
	assert.Eventually(t, func() bool { return s.Pending() == 0 }, time.Second, 5*time.Millisecond)
}

func TestTimerSchedulerRescheduleAndCancel(t *testing.T) {
	s := NewTimerScheduler(nil)
	defer s.Stop()

	var mu sync.Mutex
	calls := []string{}
	record := func(v string) func() {
		return func() {
			mu.Lock()
			calls = append(calls, v)
			mu.Unlock()
		}
	}

	s.Schedule("x", time.Now().Add(20*time.Millisecond), record("old"))
	s.Schedule("x", time.Now().Add(30*time.Millisecond), record("new"))
	s.Schedule("y", time.Now().Add(20*time.Millisecond), record("cancelled"))
	s.Cancel("y")
	require.Equal(t, 1, s.Pending())

	time.Sleep(150 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"new"}, calls)
}

func TestTimerSchedulerStop(t *testing.T) {
	s := NewTimerScheduler(nil)
	fired := make(chan struct{}, 1)
	s.Schedule("x", time.Now().Add(20*time.Millisecond), func() { fired <- struct{}{} })
	s.Stop()
	s.Schedule("y", time.Now(), func() { fired <- struct{}{} })

	select {
	case <-fired:
		t.Fatal("stopped scheduler fired")
	case <-time.After(100 * time.Millisecond):
	}
	assert.Zero(t, s.Pending())
}

func TestKeyedMutexSerializesPerKey(t *testing.T) {
	k := newKeyedMutex()
	var wg sync.WaitGroup
	counter := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := k.Lock("s")
			counter++
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, counter)
	k.mu.Lock()
	assert.Empty(t, k.locks)
	k.mu.Unlock()
}
