package model

import (
	"fmt"
	"strings"
)

// SchemaError reports a table row that is structurally unusable.
type SchemaError struct {
	Table  string
	Row    int // 1-based; 0 when the error is not tied to a row
	Field  string
	Reason string
}

func (e *SchemaError) Error() string {
	var b strings.Builder
	b.WriteString("schema error in ")
	b.WriteString(e.Table)
	if e.Row > 0 {
		fmt.Fprintf(&b, " row %d", e.Row)
	}
	if e.Field != "" {
		fmt.Fprintf(&b, " field %q", e.Field)
	}
	b.WriteString(": ")
	b.WriteString(e.Reason)
	return b.String()
}

// MissingParameterError names the exact scalar key that no lookup level resolved.
type MissingParameterError struct {
	Name    string
	Sub     string
	Carrier Carrier
	// Entity is the arc, node or facility that needed the value, if any.
	Entity string
}

func (e *MissingParameterError) Error() string {
	msg := fmt.Sprintf("missing parameter (%s, %q, %q)", e.Name, e.Sub, e.Carrier)
	if e.Entity != "" {
		msg += " required by " + e.Entity
	}
	return msg
}

// DanglingReferenceError reports an id that points at an entity that does not exist.
type DanglingReferenceError struct {
	Kind  string // arc, storage, demand, ...
	ID    string
	Field string
	Ref   string
}

func (e *DanglingReferenceError) Error() string {
	return fmt.Sprintf("%s %q: %s references unknown %q", e.Kind, e.ID, e.Field, e.Ref)
}

// FormulaDomainError reports an input outside the domain of a derived formula.
type FormulaDomainError struct {
	Entity   string
	Quantity string
	Value    float64
	Reason   string
}

func (e *FormulaDomainError) Error() string {
	return fmt.Sprintf("%s: %s=%g %s", e.Entity, e.Quantity, e.Value, e.Reason)
}

// ConstraintGenerationError wraps a failure while emitting one constraint family.
type ConstraintGenerationError struct {
	Family string
	Index  string
	Err    error
}

func (e *ConstraintGenerationError) Error() string {
	if e.Index == "" {
		return fmt.Sprintf("constraint family %s: %v", e.Family, e.Err)
	}
	return fmt.Sprintf("constraint family %s at [%s]: %v", e.Family, e.Index, e.Err)
}

func (e *ConstraintGenerationError) Unwrap() error { return e.Err }

// SolveStatusError is returned when the solver did not produce a usable solution.
type SolveStatusError struct {
	Status string
	Detail string
}

func (e *SolveStatusError) Error() string {
	if e.Detail == "" {
		return "solve finished with status " + e.Status
	}
	return fmt.Sprintf("solve finished with status %s: %s", e.Status, e.Detail)
}
