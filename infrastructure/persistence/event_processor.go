package persistence

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"journal-relay/domain/persistence"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// MoodScorer rates the user side of a conversation
type MoodScorer interface {
	Score(userTexts []string) (label string, score int)
}

// EventProcessor implements persistence.EventProcessor
type EventProcessor struct {
	entryRepo   persistence.EntryRepository
	messageRepo persistence.MessageRepository
	scorer      MoodScorer
	eventChan   chan any
	workerCount int
	bufferSize  int

	// State management
	ctx            context.Context
	cancel         context.CancelFunc
	wg             sync.WaitGroup
	mu             sync.RWMutex
	isRunning      atomic.Bool
	processedCount atomic.Int64
	errorCount     atomic.Int64

	lastProcessedTime atomic.Value
}

// NewEventProcessor creates a new event processor
func NewEventProcessor(
	entryRepo persistence.EntryRepository,
	messageRepo persistence.MessageRepository,
	scorer MoodScorer,
	workerCount int,
	bufferSize int,
) *EventProcessor {
	if workerCount <= 0 {
		workerCount = 2
	}
	if bufferSize <= 0 {
		bufferSize = 256
	}

	return &EventProcessor{
		entryRepo:   entryRepo,
		messageRepo: messageRepo,
		scorer:      scorer,
		workerCount: workerCount,
		bufferSize:  bufferSize,
	}
}

// Start begins processing events from the channel
func (ep *EventProcessor) Start(ctx context.Context) error {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	if ep.isRunning.Load() {
		return fmt.Errorf("event processor is already running")
	}

	ep.ctx, ep.cancel = context.WithCancel(ctx)
	ep.eventChan = make(chan any, ep.bufferSize)
	ep.lastProcessedTime.Store(time.Now())
	ep.isRunning.Store(true)

	for i := 0; i < ep.workerCount; i++ {
		ep.wg.Add(1)
		go ep.worker(i, ep.eventChan)
	}

	logrus.WithFields(logrus.Fields{
		"worker_count": ep.workerCount,
		"buffer_size":  ep.bufferSize,
	}).Info("Event processor started")

	return nil
}

// Stop drains queued events and shuts the workers down
func (ep *EventProcessor) Stop() error {
	ep.mu.Lock()
	if !ep.isRunning.Load() {
		ep.mu.Unlock()
		return nil
	}
	ep.isRunning.Store(false)
	close(ep.eventChan)
	ep.mu.Unlock()

	logrus.Info("Stopping event processor...")

	done := make(chan struct{})
	go func() {
		ep.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logrus.Info("Event processor stopped gracefully")
	case <-time.After(30 * time.Second):
		logrus.Warn("Event processor stop timed out")
	}

	ep.cancel()
	return nil
}

// ProcessEvent queues an event without blocking
func (ep *EventProcessor) ProcessEvent(event any) error {
	ep.mu.RLock()
	defer ep.mu.RUnlock()

	if !ep.isRunning.Load() {
		return fmt.Errorf("event processor is not running")
	}

	select {
	case ep.eventChan <- event:
		return nil
	case <-ep.ctx.Done():
		return fmt.Errorf("event processor is shutting down")
	default:
		ep.errorCount.Add(1)
		logrus.Warn("Event processor queue is full, dropping event")
		return fmt.Errorf("event processor queue is full")
	}
}

// Health returns the health status of the processor
func (ep *EventProcessor) Health() persistence.ProcessorHealth {
	ep.mu.RLock()
	defer ep.mu.RUnlock()

	health := persistence.ProcessorHealth{
		IsRunning:      ep.isRunning.Load(),
		QueueSize:      len(ep.eventChan),
		ProcessedCount: ep.processedCount.Load(),
		ErrorCount:     ep.errorCount.Load(),
	}
	if last, ok := ep.lastProcessedTime.Load().(time.Time); ok {
		health.LastProcessedAt = last
	}
	return health
}

func (ep *EventProcessor) worker(workerID int, events <-chan any) {
	defer ep.wg.Done()

	logger := logrus.WithField("worker_id", workerID)
	logger.Debug("Event processor worker started")

	for event := range events {
		// Per-op timeout to avoid long hangs
		opCtx, cancel := context.WithTimeout(ep.ctx, 10*time.Second)
		if err := ep.processEvent(opCtx, event); err != nil {
			ep.errorCount.Add(1)
			logger.WithError(err).Error("Failed to process event")
		} else {
			ep.processedCount.Add(1)
			ep.lastProcessedTime.Store(time.Now())
		}
		cancel()
	}

	logger.Debug("Event channel closed, worker stopping")
}

func (ep *EventProcessor) processEvent(ctx context.Context, event any) error {
	switch e := event.(type) {
	case persistence.PersistenceEvent[persistence.RecomputeMoodEvent]:
		return ep.handleRecomputeMood(ctx, e.Data)

	case persistence.RecomputeMoodEvent:
		return ep.handleRecomputeMood(ctx, e)

	default:
		return fmt.Errorf("unknown event type: %T", event)
	}
}

// handleRecomputeMood scores the entry's user messages and stores the result on the entry
func (ep *EventProcessor) handleRecomputeMood(ctx context.Context, event persistence.RecomputeMoodEvent) error {
	messages, err := ep.messageRepo.ListByEntry(ctx, event.EntryID)
	if err != nil {
		return fmt.Errorf("failed to load messages for mood: %w", err)
	}

	label, score := ep.scorer.Score(UserTexts(messages))
	if err := ep.entryRepo.UpdateMood(ctx, event.EntryID, label, score); err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{
		"entry_id": event.EntryID,
		"mood":     label,
		"score":    score,
	}).Debug("Entry mood updated")
	return nil
}

// UserTexts returns the contents of the user-authored messages in order
func UserTexts(messages []*persistence.ConversationMessage) []string {
	texts := make([]string, 0, len(messages))
	for _, m := range messages {
		if m.Role == "user" {
			texts = append(texts, m.Content)
		}
	}
	return texts
}

// MoodTracker schedules mood recomputation on the event processor
type MoodTracker struct {
	processor persistence.EventProcessor
}

// NewMoodTracker creates a new mood tracker
func NewMoodTracker(processor persistence.EventProcessor) *MoodTracker {
	return &MoodTracker{processor: processor}
}

// ScheduleRecompute queues a mood update for the entry
func (mt *MoodTracker) ScheduleRecompute(ctx context.Context, entryID uuid.UUID) error {
	return mt.processor.ProcessEvent(persistence.PersistenceEvent[persistence.RecomputeMoodEvent]{
		Type: persistence.EventTypeRecomputeMood,
		Data: persistence.RecomputeMoodEvent{EntryID: entryID},
	})
}
