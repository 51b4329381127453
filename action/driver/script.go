package driver

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/sctg-development/rust-photoacoustic-sub001/errors"
	"github.com/sctg-development/rust-photoacoustic-sub001/node"
)

// scriptDriver bridges deliveries into an embedded expression. The
// expression sees read-only copies of the record fields plus a log
// function; it cannot reach back into the engine. An expression that
// evaluates to false signals a delivery failure, which the action stage
// counts like any other driver error.
type scriptDriver struct {
	updateSource string
	alertSource  string
	update       *vm.Program
	alert        *vm.Program
	logger       *slog.Logger
	stats        stats
}

func newScriptDriver(params map[string]any, deps node.Dependencies) (Driver, error) {
	updateSource, err := node.StringParam(params, "update_script")
	if err != nil {
		return nil, err
	}
	alertSource, err := node.OptionalStringParam(params, "alert_script", updateSource)
	if err != nil {
		return nil, err
	}

	update, err := expr.Compile(updateSource)
	if err != nil {
		return nil, errors.WrapValidation(err, "script_driver", "create", "compiling update_script")
	}
	alert, err := expr.Compile(alertSource)
	if err != nil {
		return nil, errors.WrapValidation(err, "script_driver", "create", "compiling alert_script")
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &scriptDriver{
		updateSource: updateSource,
		alertSource:  alertSource,
		update:       update,
		alert:        alert,
		logger:       logger.With("driver", KindScript),
	}, nil
}

func (d *scriptDriver) Initialize(context.Context) error { return nil }

// env builds the read-only evaluation environment. The log closure is the
// only side effect the script can perform.
func (d *scriptDriver) env(event string, fields map[string]any) map[string]any {
	env := map[string]any{
		"event": event,
		"log": func(msg string) bool {
			d.logger.Info("script log", "event", event, "message", msg)
			return true
		},
	}
	for k, v := range fields {
		env[k] = v
	}
	return env
}

func (d *scriptDriver) run(program *vm.Program, event string, fields map[string]any) error {
	result, err := expr.Run(program, d.env(event, fields))
	if err != nil {
		d.stats.recordFailure()
		return errors.WrapDriver(err, "script_driver", "run", fmt.Sprintf("evaluating %s script", event))
	}
	if ok, isBool := result.(bool); isBool && !ok {
		d.stats.recordFailure()
		return errors.WrapDriver(
			fmt.Errorf("script rejected %s delivery", event),
			"script_driver", "run", "checking script result")
	}

	d.stats.recordSuccess()
	return nil
}

func (d *scriptDriver) UpdateAction(_ context.Context, m Measurement) error {
	return d.run(d.update, "measurement", map[string]any{
		"source_node_id":    m.SourceNodeID,
		"concentration_ppm": m.ConcentrationPPM,
		"peak_frequency":    m.PeakFrequency,
		"peak_amplitude":    m.PeakAmplitude,
		"timestamp":         m.Timestamp,
	})
}

func (d *scriptDriver) ShowAlert(_ context.Context, a Alert) error {
	return d.run(d.alert, "alert", map[string]any{
		"kind":     a.Kind,
		"severity": a.Severity,
		"message":  a.Message,
		"data":     a.Data,
	})
}

func (d *scriptDriver) ClearAction(context.Context) error {
	return d.run(d.alert, "clear", map[string]any{
		"kind": "clear",
	})
}

func (d *scriptDriver) Status() Status {
	status := Status{
		Kind:    KindScript,
		Healthy: true,
		Details: map[string]any{"update_script": d.updateSource},
	}
	d.stats.fill(&status)
	return status
}

func (d *scriptDriver) Shutdown(context.Context) error { return nil }
