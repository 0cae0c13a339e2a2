package codegen

import (
	"fmt"

	"github.com/pkg/errors"

	"qlower/internal/diag"
)

// internalError reports a broken emitter invariant. These indicate a bug in
// the caller rather than in the program being lowered.
func internalError(format string, args ...interface{}) error {
	return errors.WithStack(&diag.Error{
		Kind:    diag.EvaluationFailure,
		Message: "internal emitter error: " + fmt.Sprintf(format, args...),
	})
}
