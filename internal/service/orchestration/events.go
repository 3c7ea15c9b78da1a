package orchestration

import (
	"time"

	"labmate/internal/domain/models/orchestration"
	services "labmate/internal/domain/services/orchestration"
)

// emitter stamps events for one thread and forwards them to an optional sink.
type emitter struct {
	threadID string
	sink     services.EventSink
	now      func() time.Time
}

func newEmitter(threadID string, sink services.EventSink, now func() time.Time) *emitter {
	return &emitter{threadID: threadID, sink: sink, now: now}
}

func (e *emitter) emit(t orchestration.EventType, data any) {
	if e.sink == nil {
		return
	}
	e.sink.Emit(orchestration.StreamEvent{
		Type:     t,
		ThreadID: e.threadID,
		Data:     data,
		At:       e.now(),
	})
}

func (e *emitter) log(stage string, worker orchestration.WorkerName, step int, msg string) {
	e.emit(orchestration.EventLog, orchestration.LogData{Stage: stage, Worker: worker, Step: step, Message: msg})
}

func (e *emitter) message(content string) {
	e.emit(orchestration.EventMessage, orchestration.MessageData{Content: content})
}

func (e *emitter) questions(data orchestration.QuestionsData) {
	e.emit(orchestration.EventQuestions, data)
}

func (e *emitter) error(worker orchestration.WorkerName, code, msg string) {
	e.emit(orchestration.EventError, orchestration.ErrorData{Worker: worker, Code: code, Message: msg})
}

func (e *emitter) done(state *orchestration.ConversationState) {
	e.emit(orchestration.EventDone, orchestration.DoneData{
		Done:          state.Done,
		AwaitingHuman: state.AwaitingHuman(),
		Phase:         state.Phase,
	})
}
