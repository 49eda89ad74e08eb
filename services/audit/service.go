// Package audit persists the policy decision trail off the request path.
package audit

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/upb/paylynx-policy/models"
	"github.com/upb/paylynx-policy/repositories"
	"go.uber.org/zap"
)

// insertTimeout bounds a single write to the decision store
const insertTimeout = 5 * time.Second

// AuditService writes decision logs asynchronously through a worker pool
type AuditService struct {
	repo        repositories.DecisionLogRepository
	logger      *zap.Logger
	queue       chan *models.DecisionLog
	workerCount int
	bufferSize  int
	wg          sync.WaitGroup
	dropped     atomic.Uint64

	// running is read on every decision; queueMu is only held
	// exclusively while the queue is closed.
	running atomic.Bool
	queueMu sync.RWMutex

	// mu serializes Start and Stop
	mu      sync.Mutex
	started bool
	stopped bool
}

// Config holds configuration for the AuditService
type Config struct {
	BufferSize  int // Size of the queue
	WorkerCount int // Number of concurrent workers
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		BufferSize:  1000,
		WorkerCount: 2,
	}
}

// NewAuditService creates a new AuditService instance
func NewAuditService(repo repositories.DecisionLogRepository, logger *zap.Logger, config Config) *AuditService {
	return &AuditService{
		repo:        repo,
		logger:      logger,
		queue:       make(chan *models.DecisionLog, config.BufferSize),
		workerCount: config.WorkerCount,
		bufferSize:  config.BufferSize,
	}
}

// Start starts the background workers
func (s *AuditService) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("audit service already started")
	}

	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.started = true
	s.running.Store(true)
	s.logger.Info("started audit service",
		zap.Int("worker_count", s.workerCount),
		zap.Int("buffer_size", s.bufferSize))

	return nil
}

// Stop stops accepting entries and waits for queued ones to be written
func (s *AuditService) Stop(timeout time.Duration) error {
	s.mu.Lock()
	if !s.started || s.stopped {
		s.mu.Unlock()
		return fmt.Errorf("audit service not running")
	}
	s.stopped = true
	s.logger.Info("stopping audit service", zap.Int("pending_events", len(s.queue)))

	s.queueMu.Lock()
	s.running.Store(false)
	close(s.queue)
	s.queueMu.Unlock()
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("audit service stopped gracefully")
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("audit service stop timeout after %v", timeout)
	}
}

// LogDecision queues a decision log without blocking.
// A full queue drops the entry and returns an error.
func (s *AuditService) LogDecision(log *models.DecisionLog) error {
	if !s.running.Load() {
		return fmt.Errorf("audit service not running")
	}

	s.queueMu.RLock()
	defer s.queueMu.RUnlock()

	// Stop may have closed the queue between the check above and the read lock
	if !s.running.Load() {
		return fmt.Errorf("audit service not running")
	}

	select {
	case s.queue <- log:
		return nil
	default:
		s.dropped.Add(1)
		s.logger.Warn("audit queue full, dropping decision log",
			zap.String("action", string(log.Action)),
			zap.String("user_id", log.UserID),
			zap.String("request_id", log.RequestID))
		return fmt.Errorf("audit event buffer full")
	}
}

// Record queues a decision and discards the error; it never blocks a payment check
func (s *AuditService) Record(log *models.DecisionLog) {
	if err := s.LogDecision(log); err != nil {
		s.logger.Debug("decision log not recorded", zap.Error(err))
	}
}

// LogSettingsUpdated records a change to a user's policy settings
func (s *AuditService) LogSettingsUpdated(userID, requestID string) error {
	return s.LogDecision(models.NewDecisionLog(userID, models.DecisionActionSettingsUpdated).
		WithRequest(requestID))
}

func (s *AuditService) worker(id int) {
	defer s.wg.Done()

	s.logger.Debug("audit worker started", zap.Int("worker_id", id))

	for log := range s.queue {
		if err := s.persist(log); err != nil {
			s.logger.Error("failed to persist decision log",
				zap.Int("worker_id", id),
				zap.Error(err),
				zap.String("action", string(log.Action)),
				zap.String("user_id", log.UserID))
		}
	}

	s.logger.Debug("audit worker stopped", zap.Int("worker_id", id))
}

func (s *AuditService) persist(log *models.DecisionLog) error {
	ctx, cancel := context.WithTimeout(context.Background(), insertTimeout)
	defer cancel()

	if err := s.repo.Insert(ctx, log); err != nil {
		return fmt.Errorf("failed to insert decision log: %w", err)
	}
	return nil
}

// GetStats returns statistics about the audit service
func (s *AuditService) GetStats() Stats {
	return Stats{
		BufferSize:    s.bufferSize,
		PendingEvents: len(s.queue),
		WorkerCount:   s.workerCount,
		Dropped:       s.dropped.Load(),
		Started:       s.running.Load(),
	}
}

// Stats represents audit service statistics
type Stats struct {
	BufferSize    int
	PendingEvents int
	WorkerCount   int
	Dropped       uint64
	Started       bool
}
