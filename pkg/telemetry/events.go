package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event is a notable occurrence during planning or running a plan.
type Event struct {
	// ID is the unique identifier for this event.
	ID string `json:"id"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Type is the event type.
	Type string `json:"type"`

	// Source identifies where the event originated.
	Source string `json:"source"`

	// PlanID is the associated plan ID, if applicable.
	PlanID string `json:"plan_id,omitempty"`

	// Unit is the associated unit name, if applicable.
	Unit string `json:"unit,omitempty"`

	// Message is a human-readable event message.
	Message string `json:"message"`

	// Level is the event severity level (info, warning, error).
	Level string `json:"level"`

	// Data contains additional event-specific data.
	Data map[string]interface{} `json:"data,omitempty"`
}

// Event types.
const (
	EventTypeRunStarted     = "run.started"
	EventTypeRunCompleted   = "run.completed"
	EventTypeUnitStarted    = "unit.started"
	EventTypeUnitCompleted  = "unit.completed"
	EventTypeUnitFailed     = "unit.failed"
	EventTypeUnitSkipped    = "unit.skipped"
	EventTypePolicyReloaded = "policy.reloaded"
)

// EventLevel constants for event severity.
const (
	EventLevelInfo    = "info"
	EventLevelWarning = "warning"
	EventLevelError   = "error"
)

// EventSubscriber is a function that handles events.
type EventSubscriber func(event Event)

// EventFilter determines if an event should be processed.
type EventFilter func(event Event) bool

// EventPublisher fans events out to subscribers. Synchronous publishers call
// subscribers in subscription order before Publish returns.
type EventPublisher struct {
	config      EventsConfig
	buffer      chan Event
	subscribers []subscriberEntry
	filters     []EventFilter
	wg          sync.WaitGroup
	mu          sync.RWMutex
	ctx         context.Context
	cancel      context.CancelFunc
}

type subscriberEntry struct {
	subscriber EventSubscriber
	filter     EventFilter
}

// NewEventPublisher creates a new event publisher with the given configuration.
func NewEventPublisher(cfg EventsConfig) (*EventPublisher, error) {
	if !cfg.Enabled {
		return &EventPublisher{config: cfg}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())

	ep := &EventPublisher{
		config: cfg,
		ctx:    ctx,
		cancel: cancel,
	}

	if cfg.EnableAsync {
		ep.buffer = make(chan Event, cfg.BufferSize)
		ep.wg.Add(1)
		go ep.processEvents()
	}

	return ep, nil
}

// Publish publishes an event to all subscribers.
func (ep *EventPublisher) Publish(event Event) error {
	if ep == nil || !ep.config.Enabled {
		return nil
	}

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Level == "" {
		event.Level = EventLevelInfo
	}

	ep.mu.RLock()
	for _, filter := range ep.filters {
		if !filter(event) {
			ep.mu.RUnlock()
			return nil
		}
	}
	ep.mu.RUnlock()

	if ep.config.EnableAsync {
		select {
		case ep.buffer <- event:
			return nil
		case <-ep.ctx.Done():
			return fmt.Errorf("event publisher stopped")
		default:
			return fmt.Errorf("event buffer full, event dropped")
		}
	}

	ep.deliverEvent(event)
	return nil
}

// PublishRunStarted publishes a run started event.
func (ep *EventPublisher) PublishRunStarted(planID string, units, waves int) error {
	return ep.Publish(Event{
		Type:    EventTypeRunStarted,
		Source:  "engine",
		PlanID:  planID,
		Message: fmt.Sprintf("Run of plan %s started: %d units in %d waves", planID, units, waves),
		Level:   EventLevelInfo,
		Data: map[string]interface{}{
			"units": units,
			"waves": waves,
		},
	})
}

// PublishRunCompleted publishes a run completed event.
func (ep *EventPublisher) PublishRunCompleted(planID, status string, duration time.Duration) error {
	level := EventLevelInfo
	if status != "succeeded" {
		level = EventLevelWarning
	}
	return ep.Publish(Event{
		Type:    EventTypeRunCompleted,
		Source:  "engine",
		PlanID:  planID,
		Message: fmt.Sprintf("Run of plan %s completed with status: %s", planID, status),
		Level:   level,
		Data: map[string]interface{}{
			"status":   status,
			"duration": duration.Seconds(),
		},
	})
}

// PublishUnitStarted publishes a unit started event.
func (ep *EventPublisher) PublishUnitStarted(planID, unit string, wave int) error {
	return ep.Publish(Event{
		Type:    EventTypeUnitStarted,
		Source:  "engine",
		PlanID:  planID,
		Unit:    unit,
		Message: fmt.Sprintf("Installing %s (wave %d)", unit, wave),
		Level:   EventLevelInfo,
		Data: map[string]interface{}{
			"wave": wave,
		},
	})
}

// PublishUnitCompleted publishes a unit completed event.
func (ep *EventPublisher) PublishUnitCompleted(planID, unit string, duration time.Duration) error {
	return ep.Publish(Event{
		Type:    EventTypeUnitCompleted,
		Source:  "engine",
		PlanID:  planID,
		Unit:    unit,
		Message: fmt.Sprintf("Installed %s", unit),
		Level:   EventLevelInfo,
		Data: map[string]interface{}{
			"duration": duration.Seconds(),
		},
	})
}

// PublishUnitFailed publishes a unit failed event.
func (ep *EventPublisher) PublishUnitFailed(planID, unit, reason string) error {
	return ep.Publish(Event{
		Type:    EventTypeUnitFailed,
		Source:  "engine",
		PlanID:  planID,
		Unit:    unit,
		Message: fmt.Sprintf("Install of %s failed: %s", unit, reason),
		Level:   EventLevelError,
		Data: map[string]interface{}{
			"reason": reason,
		},
	})
}

// PublishUnitSkipped publishes a unit skipped event.
func (ep *EventPublisher) PublishUnitSkipped(planID, unit, reason string) error {
	return ep.Publish(Event{
		Type:    EventTypeUnitSkipped,
		Source:  "engine",
		PlanID:  planID,
		Unit:    unit,
		Message: fmt.Sprintf("Skipped %s: %s", unit, reason),
		Level:   EventLevelInfo,
		Data: map[string]interface{}{
			"reason": reason,
		},
	})
}

// PublishPolicyReloaded publishes a policy reload event.
func (ep *EventPublisher) PublishPolicyReloaded(dir string, modules int) error {
	return ep.Publish(Event{
		Type:    EventTypePolicyReloaded,
		Source:  "policy",
		Message: fmt.Sprintf("Reloaded %d advisory modules from %s", modules, dir),
		Level:   EventLevelInfo,
		Data: map[string]interface{}{
			"dir":     dir,
			"modules": modules,
		},
	})
}

// Subscribe adds a new event subscriber. A nil filter accepts every event.
func (ep *EventPublisher) Subscribe(subscriber EventSubscriber, filter EventFilter) {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	ep.subscribers = append(ep.subscribers, subscriberEntry{
		subscriber: subscriber,
		filter:     filter,
	})
}

// AddFilter adds a global event filter.
func (ep *EventPublisher) AddFilter(filter EventFilter) {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	ep.filters = append(ep.filters, filter)
}

// processEvents delivers buffered events until shutdown.
func (ep *EventPublisher) processEvents() {
	defer ep.wg.Done()

	for {
		select {
		case event := <-ep.buffer:
			ep.deliverEvent(event)
		case <-ep.ctx.Done():
			// Drain what is already buffered
			for {
				select {
				case event := <-ep.buffer:
					ep.deliverEvent(event)
				default:
					return
				}
			}
		}
	}
}

// deliverEvent delivers an event to all subscribers.
func (ep *EventPublisher) deliverEvent(event Event) {
	ep.mu.RLock()
	defer ep.mu.RUnlock()

	for _, entry := range ep.subscribers {
		if entry.filter != nil && !entry.filter(event) {
			continue
		}
		entry.subscriber(event)
	}
}

// Shutdown stops the publisher, delivering buffered events first.
func (ep *EventPublisher) Shutdown(ctx context.Context) error {
	if ep == nil || !ep.config.Enabled {
		return nil
	}

	ep.cancel()

	done := make(chan struct{})
	go func() {
		ep.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("event publisher shutdown timeout")
	}
}

// FilterByLevel creates a filter that only allows events of a specific level or higher.
func FilterByLevel(minLevel string) EventFilter {
	levels := map[string]int{
		EventLevelInfo:    0,
		EventLevelWarning: 1,
		EventLevelError:   2,
	}

	minLevelValue := levels[minLevel]

	return func(event Event) bool {
		return levels[event.Level] >= minLevelValue
	}
}

// FilterByType creates a filter that only allows events of specific types.
func FilterByType(types ...string) EventFilter {
	typeSet := make(map[string]bool)
	for _, t := range types {
		typeSet[t] = true
	}

	return func(event Event) bool {
		return typeSet[event.Type]
	}
}

// FilterByPlanID creates a filter that only allows events for a specific plan.
func FilterByPlanID(planID string) EventFilter {
	return func(event Event) bool {
		return event.PlanID == planID
	}
}
