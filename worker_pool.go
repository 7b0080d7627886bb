// worker_pool.go
package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"os"
	"runtime"
	"sync"
	"time"
)

// Task types processed by the pool
const (
	TaskArchiveDelivery = "archive_delivery"
	TaskProgressRefresh = "progress_refresh"
)

// WorkerPool manages a pool of worker goroutines for background work that
// must not block request handling: shipping archive copies of uploaded PDFs
// and refreshing derived progress stats.
type WorkerPool struct {
	workers    int
	taskQueue  chan Task
	resultChan chan TaskResult
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

// Task represents a unit of background work
type Task struct {
	ID      string
	Type    string
	FileID  uint
	Created time.Time
}

// TaskResult represents the result of a processed task
type TaskResult struct {
	TaskID      string
	Success     bool
	Error       error
	Duration    time.Duration
	ProcessedAt time.Time
}

// NewWorkerPool creates a new worker pool with specified number of workers
func NewWorkerPool(workers int, queueSize int) *WorkerPool {
	if workers <= 0 {
		workers = runtime.NumCPU() * 2 // I/O bound: deliveries wait on the network
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &WorkerPool{
		workers:    workers,
		taskQueue:  make(chan Task, queueSize),
		resultChan: make(chan TaskResult, queueSize),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start initializes and starts all worker goroutines
func (wp *WorkerPool) Start() {
	log.Printf("Starting worker pool with %d workers", wp.workers)

	for i := 0; i < wp.workers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}

	go wp.resultProcessor()
}

// worker represents a single worker goroutine
func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()

	for {
		select {
		case task, ok := <-wp.taskQueue:
			if !ok {
				log.Printf("Worker %d: Task queue closed, shutting down", id)
				return
			}

			result := wp.processTask(task)

			select {
			case wp.resultChan <- result:
			case <-wp.ctx.Done():
				return
			}

		case <-wp.ctx.Done():
			log.Printf("Worker %d: Context cancelled, shutting down", id)
			return
		}
	}
}

// processTask handles the actual task processing
func (wp *WorkerPool) processTask(task Task) TaskResult {
	start := time.Now()

	result := TaskResult{
		TaskID:      task.ID,
		ProcessedAt: start,
	}

	switch task.Type {
	case TaskArchiveDelivery:
		result.Error = deliverArchiveCopy(task.FileID)
	case TaskProgressRefresh:
		_, result.Error = engine.Progress(task.FileID)
	default:
		result.Error = fmt.Errorf("unknown task type: %s", task.Type)
	}
	result.Success = result.Error == nil
	result.Duration = time.Since(start)
	return result
}

// resultProcessor handles task results
func (wp *WorkerPool) resultProcessor() {
	for {
		select {
		case result := <-wp.resultChan:
			if result.Success {
				log.Printf("Task %s completed in %v", result.TaskID, result.Duration)
			} else {
				log.Printf("Task %s failed: %v", result.TaskID, result.Error)
			}

		case <-wp.ctx.Done():
			return
		}
	}
}

// SubmitTask adds a new task to the worker pool
func (wp *WorkerPool) SubmitTask(task Task) bool {
	select {
	case wp.taskQueue <- task:
		return true
	case <-time.After(time.Second * 5): // Timeout after 5 seconds
		log.Printf("Failed to submit task %s: queue full", task.ID)
		return false
	}
}

// Shutdown gracefully shuts down the worker pool
func (wp *WorkerPool) Shutdown() {
	log.Println("Shutting down worker pool...")

	wp.cancel()
	close(wp.taskQueue)
	wp.wg.Wait()

	log.Println("Worker pool shutdown complete")
}

// GetStats returns worker pool statistics
func (wp *WorkerPool) GetStats() map[string]interface{} {
	return map[string]interface{}{
		"workers":        wp.workers,
		"queued_tasks":   len(wp.taskQueue),
		"queue_capacity": cap(wp.taskQueue),
	}
}

// queueArchiveDelivery records a pending delivery and hands it to the pool.
func queueArchiveDelivery(fileID uint) {
	if !serverConfig.Archive.Enabled || workerPool == nil {
		return
	}
	delivery := ArchiveDelivery{FileID: fileID, Status: DeliveryPending}
	if err := db.Create(&delivery).Error; err != nil {
		log.Printf("Failed to record archive delivery for file %d: %v", fileID, err)
		return
	}
	submitted := workerPool.SubmitTask(Task{
		ID:      fmt.Sprintf("archive-%d", fileID),
		Type:    TaskArchiveDelivery,
		FileID:  fileID,
		Created: time.Now(),
	})
	if !submitted {
		// The delivery row stays pending; the retry sweep picks it up later
		log.Printf("Archive delivery for file %d deferred to retry sweep: queue full", fileID)
	}
}

// queueProgressRefresh recomputes a file's progress stats off the request path.
func queueProgressRefresh(fileID uint) {
	if workerPool == nil {
		return
	}
	workerPool.SubmitTask(Task{
		ID:      fmt.Sprintf("progress-%d", fileID),
		Type:    TaskProgressRefresh,
		FileID:  fileID,
		Created: time.Now(),
	})
}

// deliverArchiveCopy ships the stored PDF to the archive server and updates
// the delivery record. Failures leave the delivery pending for the retry
// sweep until the retry attempts run out.
func deliverArchiveCopy(fileID uint) error {
	var file File
	if err := db.First(&file, fileID).Error; err != nil {
		return fmt.Errorf("file %d not found for delivery: %w", fileID, err)
	}
	var delivery ArchiveDelivery
	if err := db.Where("file_id = ?", fileID).Order("id DESC").First(&delivery).Error; err != nil {
		return fmt.Errorf("no delivery record for file %d: %w", fileID, err)
	}

	err := sendFileToArchive(file.PDFPath, file.Name, file.Checksum)
	if err != nil {
		delivery.RetryCount++
		if delivery.RetryCount >= serverConfig.Archive.RetryAttempts {
			delivery.Status = DeliveryFailed
			log.Printf("Archive delivery failed after %d attempts: %s", delivery.RetryCount, file.Name)
		}
		if saveErr := db.Save(&delivery).Error; saveErr != nil {
			log.Printf("Failed to update delivery status: %v", saveErr)
		}
		return err
	}

	delivery.Status = DeliveryCompleted
	return db.Save(&delivery).Error
}

// sendFileToArchive posts the stored PDF to the archive server.
func sendFileToArchive(filePath, name, checksum string) error {
	ctx, cancel := context.WithTimeout(context.Background(),
		time.Duration(serverConfig.Archive.Timeout)*time.Second)
	defer cancel()

	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open file: %v", err)
	}
	defer file.Close()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", name)
	if err != nil {
		return fmt.Errorf("failed to create form file: %v", err)
	}
	if _, err = io.Copy(part, file); err != nil {
		return fmt.Errorf("failed to copy file content: %v", err)
	}
	if err := writer.WriteField("name", name); err != nil {
		return fmt.Errorf("failed to add name field: %v", err)
	}
	if err := writer.WriteField("checksum", checksum); err != nil {
		return fmt.Errorf("failed to add checksum field: %v", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close multipart writer: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", serverConfig.Archive.URL+"/upload_file", body)
	if err != nil {
		return fmt.Errorf("failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	client := &http.Client{}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request to archive server failed: %v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("archive upload failed (status %d): %s", resp.StatusCode, string(respBody))
	}

	log.Printf("Archive copy delivered: %s", name)
	return nil
}

// isArchiveServerOnline checks if the archive server is responding
func isArchiveServerOnline() bool {
	resp, err := http.Get(serverConfig.Archive.HealthCheckURL)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// startArchiveRetryService periodically re-queues pending deliveries.
func startArchiveRetryService() {
	interval := time.Duration(serverConfig.Archive.RetryInterval) * time.Second
	go func() {
		for {
			time.Sleep(interval)
			retryPendingDeliveries()
		}
	}()
}

// retryPendingDeliveries re-submits deliveries that have attempts left.
func retryPendingDeliveries() {
	var pending []ArchiveDelivery
	err := db.Where("status = ? AND retry_count < ?", DeliveryPending, serverConfig.Archive.RetryAttempts).
		Find(&pending).Error
	if err != nil {
		log.Printf("Failed to fetch pending deliveries: %v", err)
		return
	}

	for _, delivery := range pending {
		workerPool.SubmitTask(Task{
			ID:      fmt.Sprintf("archive-retry-%d-%d", delivery.FileID, delivery.RetryCount),
			Type:    TaskArchiveDelivery,
			FileID:  delivery.FileID,
			Created: time.Now(),
		})
	}
}
