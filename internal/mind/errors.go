package mind

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownMood = errors.New("unknown mood")
	ErrGeneration  = errors.New("generation failed")
)

// UnknownMoodError is returned when a transition names a mood outside the catalog.
type UnknownMoodError struct {
	Name string
}

func (e *UnknownMoodError) Error() string {
	return fmt.Sprintf("unknown mood %q", e.Name)
}

func (e *UnknownMoodError) Is(target error) bool { return target == ErrUnknownMood }

// GenerationError wraps a failed call to the text generator.
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string {
	if e.Err == nil {
		return ErrGeneration.Error()
	}
	return "generation failed: " + e.Err.Error()
}

func (e *GenerationError) Unwrap() error { return e.Err }

func (e *GenerationError) Is(target error) bool { return target == ErrGeneration }
