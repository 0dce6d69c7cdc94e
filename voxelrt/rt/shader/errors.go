package shader

import (
	"errors"
	"fmt"
)

type ErrorKind int

const (
	CompilationError ErrorKind = iota
	LinkingError
)

func (k ErrorKind) String() string {
	switch k {
	case CompilationError:
		return "compilation error"
	case LinkingError:
		return "linking error"
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

var (
	ErrCompilation = errors.New("shader compilation failed")
	ErrLinking     = errors.New("shader linking failed")

	// ErrUniformNotFound is returned by the uniform setters when the compiled
	// program does not declare the name. Callers treat it as non-fatal.
	ErrUniformNotFound = errors.New("uniform not found")
)

// Error carries the diagnostic log of a failed compile or link.
type Error struct {
	Kind    ErrorKind
	Program string
	Stage   Stage // only meaningful for CompilationError
	Log     string
}

func (e *Error) Error() string {
	if e.Kind == CompilationError {
		return fmt.Sprintf("%s: %s %s: %s", e.Program, e.Stage, e.Kind, e.Log)
	}
	return fmt.Sprintf("%s: %s: %s", e.Program, e.Kind, e.Log)
}

func (e *Error) Is(target error) bool {
	switch target {
	case ErrCompilation:
		return e.Kind == CompilationError
	case ErrLinking:
		return e.Kind == LinkingError
	}
	return false
}

type Stage int

const (
	VertexStage Stage = iota
	FragmentStage
)

func (s Stage) String() string {
	if s == VertexStage {
		return "vertex"
	}
	return "fragment"
}
