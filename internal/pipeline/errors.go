package pipeline

import (
	"errors"
	"fmt"
)

// Pipeline stages, used as the "stage" log and metric label.
const (
	StageGenerate = "generate"
	StagePersist  = "persist"
	StageRegister = "register"
	StageDeliver  = "deliver"
)

// StageError records which stage of the pipeline failed.
type StageError struct {
	Stage string
	Err   error
	File  string // image already written when the stage failed, if any
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

func AsStageError(err error) (*StageError, bool) {
	var se *StageError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}
