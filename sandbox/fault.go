package sandbox

import (
	"fmt"
	"strconv"
)

// FaultKind classifies a script fault.
type FaultKind string

// Fault kinds
const (
	SyntaxError       FaultKind = "SyntaxError"
	NameError         FaultKind = "NameError"
	TypeError         FaultKind = "TypeError"
	ZeroDivisionError FaultKind = "ZeroDivisionError"
	IndexError        FaultKind = "IndexError"
	KeyError          FaultKind = "KeyError"
	ValueError        FaultKind = "ValueError"
	UnknownCapability FaultKind = "UnknownCapability"
	CapabilityError   FaultKind = "CapabilityError"
	StepLimitExceeded FaultKind = "StepLimitExceeded"
	RecursionError    FaultKind = "RecursionError"
	Cancelled         FaultKind = "Cancelled"
	InternalError     FaultKind = "InternalError"
)

// Fault is an unhandled runtime fault that halted a script.
// It is reported in the Result, and never returned as an error by Execute.
type Fault struct {
	Kind    FaultKind `json:"kind"`
	Message string    `json:"message"`
	// Line is 1-based, zero when unknown
	Line int `json:"line,omitempty"`
}

func (f *Fault) Error() string {
	return string(f.Kind) + ": " + f.Message
}

// Diagnostic returns the text reported to the model.
func (f *Fault) Diagnostic() string {
	s := "Error: " + f.Error()
	if f.Line > 0 {
		s += " (line " + strconv.Itoa(f.Line) + ")"
	}
	return s
}

func newFault(kind FaultKind, line int, format string, args ...any) *Fault {
	return &Fault{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
		Line:    line,
	}
}

func syntaxError(line int, format string, args ...any) *Fault {
	return newFault(SyntaxError, line, format, args...)
}
