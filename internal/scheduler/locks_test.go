package scheduler

import (
	"sync"
	"testing"
	"time"
)

func TestResourceLockManager_SamePathSerializes(t *testing.T) {
	mgr := NewResourceLockManager()
	order := make(chan int, 2)

	go func() {
		mgr.Lock("build/a.bar")
		order <- 1
		time.Sleep(50 * time.Millisecond)
		mgr.Unlock("build/a.bar")
	}()

	time.Sleep(10 * time.Millisecond)

	go func() {
		mgr.Lock("build/a.bar")
		order <- 2
		mgr.Unlock("build/a.bar")
	}()

	if first, second := <-order, <-order; first != 1 || second != 2 {
		t.Errorf("expected order [1 2], got [%d %d]", first, second)
	}
}

func TestResourceLockManager_DifferentPathsDoNotBlock(t *testing.T) {
	mgr := NewResourceLockManager()
	mgr.Lock("build/a.bar")
	defer mgr.Unlock("build/a.bar")

	acquired := make(chan struct{})
	go func() {
		mgr.Lock("build/b.bar")
		close(acquired)
		mgr.Unlock("build/b.bar")
	}()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("locking a different path blocked")
	}
}

func TestResourceLockManager_LockAllOrdering(t *testing.T) {
	mgr := NewResourceLockManager()
	var wg sync.WaitGroup
	wg.Add(2)

	// Opposite orders would deadlock without sorted acquisition.
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			mgr.LockAll([]string{"build/b.bar", "build/a.bar"})
			mgr.UnlockAll([]string{"build/b.bar", "build/a.bar"})
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			mgr.LockAll([]string{"build/a.bar", "build/b.bar"})
			mgr.UnlockAll([]string{"build/a.bar", "build/b.bar"})
		}
	}()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("deadlock: LockAll did not order acquisition")
	}
}

func TestResourceLockManager_DuplicatePaths(t *testing.T) {
	mgr := NewResourceLockManager()
	paths := []string{"build/a.bar", "build/a.bar"}

	done := make(chan struct{})
	go func() {
		mgr.LockAll(paths)
		mgr.UnlockAll(paths)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("a task declaring the same output twice deadlocked on itself")
	}

	mgr.LockAll(nil)
	mgr.UnlockAll(nil)
}
