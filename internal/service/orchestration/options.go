package orchestration

import (
	"time"

	"labmate/internal/config"
	"labmate/internal/domain/models/orchestration"
)

// Options tune the state machine.
type Options struct {
	// MaxPlanSteps caps the number of planned workers in one plan. A forced
	// summarizer step comes on top.
	MaxPlanSteps int

	// MaxQuestions caps the questions asked in one interrupt.
	MaxQuestions int

	// QuestionMode is how new interrupts deliver their questions.
	QuestionMode orchestration.QuestionMode

	// WorkerTimeout bounds one worker invocation. Zero disables the deadline.
	WorkerTimeout time.Duration

	// MaxRetries is how often a failed worker is re-invoked.
	MaxRetries int

	Compaction CompactionPolicy
}

// DefaultOptions returns the configuration defaults.
func DefaultOptions() Options {
	return Options{
		MaxPlanSteps:  config.DefaultMaxPlanSteps,
		MaxQuestions:  config.DefaultMaxClarificationQuestions,
		QuestionMode:  orchestration.QuestionModeBatch,
		WorkerTimeout: config.DefaultWorkerTimeout,
		MaxRetries:    0,
		Compaction: CompactionPolicy{
			Threshold:    config.DefaultCompactionThreshold,
			KeepMessages: config.DefaultCompactionKeepMessages,
		},
	}
}

// OptionsFromConfig maps service configuration onto Options.
func OptionsFromConfig(cfg *config.Config) Options {
	mode := orchestration.QuestionModeBatch
	if cfg.ClarificationMode == string(orchestration.QuestionModeWizard) {
		mode = orchestration.QuestionModeWizard
	}
	return Options{
		MaxPlanSteps:  cfg.MaxPlanSteps,
		MaxQuestions:  cfg.MaxClarificationQuestions,
		QuestionMode:  mode,
		WorkerTimeout: cfg.WorkerTimeout,
		MaxRetries:    cfg.WorkerMaxRetries,
		Compaction: CompactionPolicy{
			Threshold:    cfg.CompactionThreshold,
			KeepMessages: cfg.CompactionKeepMessages,
		},
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MaxPlanSteps <= 0 {
		o.MaxPlanSteps = d.MaxPlanSteps
	}
	if o.MaxQuestions <= 0 {
		o.MaxQuestions = d.MaxQuestions
	}
	if o.QuestionMode == "" {
		o.QuestionMode = d.QuestionMode
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.Compaction.Threshold <= 0 {
		o.Compaction.Threshold = d.Compaction.Threshold
	}
	if o.Compaction.KeepMessages < 0 {
		o.Compaction.KeepMessages = 0
	}
	return o
}
