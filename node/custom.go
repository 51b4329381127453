package node

import (
	"fmt"
	"sync/atomic"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/sctg-development/rust-photoacoustic-sub001/errors"
	"github.com/sctg-development/rust-photoacoustic-sub001/frame"
)

// TypeCustom is the catalog tag of the scripted stage.
const TypeCustom = "custom"

// customProgram pairs a compiled expression with its source so a reload
// swaps both together.
type customProgram struct {
	source  string
	program *vm.Program
}

// CustomStage runs a user-supplied expression over each frame, for
// transformations that have no built-in stage. The expression sees the
// samples as a list of numbers plus frame metadata and must evaluate to a
// list of numbers, which becomes the outgoing frame's samples. The
// compiled program sits behind an atomic pointer so a reload swaps it
// without tearing a running frame pass.
type CustomStage struct {
	base
	program atomic.Pointer[customProgram]
}

// NewCustomStage builds a scripted stage from the "script" parameter,
// e.g. "map(samples, # * 0.5)".
func NewCustomStage(id string, params map[string]any, deps Dependencies) (Stage, error) {
	p, err := compileCustomScript(params)
	if err != nil {
		return nil, err
	}

	s := &CustomStage{base: newBase(id, TypeCustom, deps)}
	s.program.Store(p)
	return s, nil
}

func compileCustomScript(params map[string]any) (*customProgram, error) {
	source, err := StringParam(params, "script")
	if err != nil {
		return nil, err
	}
	program, err := expr.Compile(source)
	if err != nil {
		return nil, errors.WrapValidation(err, "custom", "compile", "compiling script")
	}
	return &customProgram{source: source, program: program}, nil
}

// Script returns the active expression source.
func (s *CustomStage) Script() string {
	return s.program.Load().source
}

// Accepts reports the shapes consumable by this stage.
func (s *CustomStage) Accepts(shape frame.Shape) bool {
	return shape == frame.ShapeSingleChannel
}

// OutputShape returns the produced shape for an accepted input.
func (s *CustomStage) OutputShape(in frame.Shape) frame.Shape { return in }

// Process evaluates the expression against the frame. The log closure is
// the only side effect the script can perform.
func (s *CustomStage) Process(f frame.Frame) (frame.Frame, error) {
	if f.Shape != frame.ShapeSingleChannel {
		return frame.Frame{}, errors.WrapProcessing(
			errors.ErrUnsupportedShape, s.id, "process", "checking input shape")
	}

	samples := make([]float64, len(f.Samples))
	for i, x := range f.Samples {
		samples[i] = float64(x)
	}

	p := s.program.Load()
	result, err := expr.Run(p.program, map[string]any{
		"samples":     samples,
		"sequence":    f.Sequence,
		"sample_rate": f.SampleRate,
		"log": func(msg string) bool {
			s.logger.Info("script log", "message", msg)
			return true
		},
	})
	if err != nil {
		return frame.Frame{}, errors.WrapProcessing(err, s.id, "process", "evaluating script")
	}

	out, err := samplesFromResult(result)
	if err != nil {
		return frame.Frame{}, errors.WrapProcessing(err, s.id, "process", "reading script result")
	}

	f.Samples = out
	return f, nil
}

func samplesFromResult(v any) ([]float32, error) {
	switch vals := v.(type) {
	case []float32:
		return vals, nil
	case []float64:
		out := make([]float32, len(vals))
		for i, x := range vals {
			out[i] = float32(x)
		}
		return out, nil
	case []any:
		out := make([]float32, len(vals))
		for i, item := range vals {
			x, ok := coerceFloat(item)
			if !ok {
				return nil, fmt.Errorf("script produced a non-numeric element (%T) at index %d", item, i)
			}
			out[i] = float32(x)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("script produced %T, want a list of numbers", v)
	}
}

// Reconfigure compiles and swaps in a new script. A script that fails to
// compile leaves the previous one live.
func (s *CustomStage) Reconfigure(params map[string]any) (Outcome, error) {
	p, err := compileCustomScript(params)
	if err != nil {
		return OutcomeError, err
	}

	s.program.Store(p)
	s.logger.Info("script updated")
	return OutcomeApplied, nil
}

// Reset is a no-op; the expression holds no state between frames.
func (s *CustomStage) Reset() {}
