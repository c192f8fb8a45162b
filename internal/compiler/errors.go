package compiler

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/funvibe/optijit/internal/ast"
	"github.com/funvibe/optijit/internal/token"
)

// ErrPreconditionUnmet is wrapped by the CompilationError of a phase whose
// input lacks a required state.
var ErrPreconditionUnmet = errors.New("precondition unmet")

// CompilationError is the only error a failed compilation returns. The job
// is abandoned and nothing is installed.
type CompilationError struct {
	Phase    string
	Function string
	Pos      token.Token
	Err      error
}

func (e *CompilationError) Error() string {
	if e.Pos.Line > 0 {
		return fmt.Sprintf("%s: compiling %s in phase %s: %v", e.Pos.Position(), e.Function, e.Phase, e.Err)
	}
	return fmt.Sprintf("compiling %s in phase %s: %v", e.Function, e.Phase, e.Err)
}

func (e *CompilationError) Unwrap() error { return e.Err }

// Format prints the wrapped error's stack trace with %+v.
func (e *CompilationError) Format(s fmt.State, verb rune) {
	if verb == 'v' && s.Flag('+') {
		fmt.Fprintf(s, "%s\n%+v", e.Error(), e.Err)
		return
	}
	fmt.Fprint(s, e.Error())
}

func newCompilationError(p *Phase, fn *ast.FunctionNode, err error) *CompilationError {
	return &CompilationError{Phase: p.Name, Function: fn.DisplayName(), Pos: fn.Token, Err: err}
}

// IsPreconditionUnmet reports whether err comes from a phase that refused
// its input.
func IsPreconditionUnmet(err error) bool {
	return errors.Is(err, ErrPreconditionUnmet)
}
