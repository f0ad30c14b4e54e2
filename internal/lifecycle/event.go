package lifecycle

import (
	"errors"
	"fmt"
	"time"

	"github.com/JakeFAU/fileops/internal/progress"
)

// Stage denotes the milestone represented by an Event.
type Stage string

// Supported lifecycle stages.
const (
	StageStart     Stage = "OPERATION_START"
	StageDone      Stage = "OPERATION_DONE"
	StageCancelled Stage = "OPERATION_CANCELLED"
	StageError     Stage = "OPERATION_ERROR"
	StageRejected  Stage = "OPERATION_REJECTED"
)

// Terminal reports whether the stage closes an operation.
func (s Stage) Terminal() bool {
	return s != StageStart
}

// Result is the metrics label for a terminal stage.
func (s Stage) Result() string {
	switch s {
	case StageDone:
		return "completed"
	case StageCancelled:
		return "cancelled"
	case StageError:
		return "failed"
	case StageRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Event captures one milestone of an operation.
type Event struct {
	// OperationID is the caller supplied (or generated) id.
	OperationID string
	// Kind names the pipeline.
	Kind progress.Kind
	// TS is the UTC timestamp recorded by the emitter.
	TS    time.Time
	Stage Stage
	// Items, Succeeded and Failed are only meaningful on terminal stages.
	Items     int
	Succeeded int
	Failed    int
	// Dur is the operation's wall time, set on terminal stages.
	Dur       time.Duration
	ReportURI string
	// Note lets emitters attach low-volume context (e.g. error text).
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.OperationID == "" {
		return errors.New("operation id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Kind {
	case progress.KindSearch, progress.KindDelete, progress.KindList, progress.KindRename:
	default:
		return fmt.Errorf("unknown kind %q", e.Kind)
	}
	switch e.Stage {
	case StageStart, StageDone, StageCancelled, StageRejected:
	case StageError:
		if e.Note == "" {
			return errors.New("error stage requires a note")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	if e.Items < 0 || e.Succeeded < 0 || e.Failed < 0 {
		return errors.New("counters must be >= 0")
	}
	return nil
}
