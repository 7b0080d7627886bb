package main

import (
	"testing"
	"time"
)

func TestNewWorkerPoolDefaults(t *testing.T) {
	pool := NewWorkerPool(0, 10)
	if pool.workers <= 0 {
		t.Errorf("Expected a positive default worker count, got %d", pool.workers)
	}

	pool = NewWorkerPool(3, 10)
	if pool.workers != 3 {
		t.Errorf("Expected 3 workers, got %d", pool.workers)
	}
}

func TestWorkerPoolProcessesTasks(t *testing.T) {
	pool := NewWorkerPool(2, 10)
	pool.Start()
	defer pool.Shutdown()

	// Unknown task types surface as failed results without touching storage
	ok := pool.SubmitTask(Task{
		ID:      "test-task",
		Type:    "unknown",
		Created: time.Now(),
	})
	if !ok {
		t.Fatal("Expected task submission to succeed")
	}

	// Give the worker a moment to drain the queue
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(pool.taskQueue) == 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if len(pool.taskQueue) != 0 {
		t.Error("Expected queue drained")
	}
}

func TestSubmitTaskReportsFullQueue(t *testing.T) {
	// No workers started, so the single queue slot never drains
	pool := NewWorkerPool(1, 1)

	if ok := pool.SubmitTask(Task{ID: "first", Type: TaskProgressRefresh, Created: time.Now()}); !ok {
		t.Fatal("Expected first submission to succeed")
	}
	if ok := pool.SubmitTask(Task{ID: "second", Type: TaskProgressRefresh, Created: time.Now()}); ok {
		t.Error("Expected submission to a full queue to report failure")
	}
}

func TestWorkerPoolStats(t *testing.T) {
	pool := NewWorkerPool(4, 25)

	stats := pool.GetStats()
	if stats["workers"] != 4 {
		t.Errorf("Expected 4 workers in stats, got %v", stats["workers"])
	}
	if stats["queue_capacity"] != 25 {
		t.Errorf("Expected queue capacity 25, got %v", stats["queue_capacity"])
	}
}
