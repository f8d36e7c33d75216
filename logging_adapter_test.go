package tinykernel

import (
	"fmt"
	"testing"

	"github.com/joeycumines/logiface"
)

// logifaceEvent is a minimal logiface.Event implementation, the same shape
// the teacher's own test suite uses to exercise its logging integration
// points without depending on a concrete backend (zerolog, stumpy, ...).
type logifaceEvent struct {
	logiface.UnimplementedEvent
	level  logiface.Level
	fields map[string]any
}

func (e *logifaceEvent) Level() logiface.Level { return e.level }

func (e *logifaceEvent) AddField(key string, val any) {
	if e.fields == nil {
		e.fields = make(map[string]any)
	}
	e.fields[key] = val
}

type logifaceEventFactory struct{}

func (logifaceEventFactory) NewEvent(level logiface.Level) *logifaceEvent {
	return &logifaceEvent{level: level}
}

type logifaceEventWriter struct {
	onWrite func(*logifaceEvent)
}

func (w *logifaceEventWriter) Write(event *logifaceEvent) error {
	if w.onWrite != nil {
		w.onWrite(event)
	}
	return nil
}

// logifaceLogger adapts a *logiface.Logger[*logifaceEvent] to this
// package's Logger interface, demonstrating how an embedder wires an
// existing structured-logging stack in place of DefaultLogger.
type logifaceLogger struct {
	logger *logiface.Logger[*logifaceEvent]
}

func toLogifaceLevel(l LogLevel) logiface.Level {
	switch l {
	case LevelDebug:
		return logiface.LevelDebug
	case LevelWarn:
		return logiface.LevelWarning
	case LevelError:
		return logiface.LevelError
	default:
		return logiface.LevelInformational
	}
}

func (a *logifaceLogger) IsEnabled(level LogLevel) bool {
	return toLogifaceLevel(level) <= a.logger.Level()
}

func (a *logifaceLogger) Log(entry LogEntry) {
	b := a.logger.Build(toLogifaceLevel(entry.Level)).Str("category", entry.Category)
	for k, v := range entry.Context {
		if s, ok := v.(string); ok {
			b = b.Str(k, s)
		} else {
			b = b.Str(k, fmt.Sprint(v))
		}
	}
	if entry.Err != nil {
		b = b.Err(entry.Err)
	}
	b.Log(entry.Message)
}

func TestLogifaceAdapter_ReceivesKernelEvents(t *testing.T) {
	var captured []*logifaceEvent
	writer := &logifaceEventWriter{onWrite: func(e *logifaceEvent) {
		captured = append(captured, e)
	}}
	typed := logiface.New[*logifaceEvent](
		logiface.WithEventFactory[*logifaceEvent](logifaceEventFactory{}),
		logiface.WithWriter[*logifaceEvent](writer),
	)
	adapter := &logifaceLogger{logger: typed}

	k, err := New(WithLogger(adapter), WithPriorityLevels(4))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := k.CreateTask(TaskParams{
		Fn:        func(any) { select {} },
		StackSize: 1,
		Name:      "probe",
	}); err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	if len(captured) == 0 {
		t.Fatal("expected the logiface writer to receive at least one event from kernel logging")
	}
	var found bool
	for _, e := range captured {
		if e.fields["name"] == "probe" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected a logged event carrying the created task's name")
	}
}
