// Package evaluator runs a submission against a level's test cases and
// collects one verdict per case.
package evaluator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/michaelbrown/oracle/internal/diagnostic"
	"github.com/michaelbrown/oracle/internal/harness"
	"github.com/michaelbrown/oracle/internal/level"
	"github.com/michaelbrown/oracle/internal/sandbox"
	"github.com/michaelbrown/oracle/internal/validator"
)

var (
	// ErrInvalidFunction wraps harness failures for a bad target name.
	ErrInvalidFunction = harness.ErrInvalidFunction
	// ErrEnvironment wraps sandbox failures that are not the submission's fault.
	ErrEnvironment = errors.New("execution environment unavailable")
)

// Status summarizes a report.
type Status string

const (
	StatusPassed   Status = "passed"
	StatusFailed   Status = "failed"
	StatusRejected Status = "rejected"
)

// Verdict is the outcome of one test case.
type Verdict struct {
	Index        int                    `json:"index"`
	TestCase     level.TestCase         `json:"test_case"`
	Passed       bool                   `json:"passed"`
	ActualOutput *string                `json:"actual_output,omitempty"`
	Printed      string                 `json:"printed,omitempty"`
	Error        string                 `json:"error,omitempty"`
	Diagnostic   *diagnostic.Diagnostic `json:"diagnostic,omitempty"`
	Elapsed      time.Duration          `json:"elapsed"`
}

// Rejection explains why a submission was refused before execution.
type Rejection struct {
	Rule       string                `json:"rule"`
	Match      string                `json:"match"`
	Reason     string                `json:"reason"`
	Diagnostic diagnostic.Diagnostic `json:"diagnostic"`
}

// Report is the result of evaluating one submission.
type Report struct {
	Status    Status        `json:"status"`
	Verdicts  []Verdict     `json:"verdicts"`
	Rejection *Rejection    `json:"rejection,omitempty"`
	Elapsed   time.Duration `json:"elapsed"`
}

// AllPassed reports whether there was at least one verdict and all passed.
func (r *Report) AllPassed() bool {
	if len(r.Verdicts) == 0 {
		return false
	}
	for _, v := range r.Verdicts {
		if !v.Passed {
			return false
		}
	}
	return true
}

// PassedCount returns how many verdicts passed.
func (r *Report) PassedCount() int {
	n := 0
	for _, v := range r.Verdicts {
		if v.Passed {
			n++
		}
	}
	return n
}

// VerdictHandler is called once per finished test case. Calls are serialized
// but arrive in completion order, which differs from index order when cases
// run concurrently.
type VerdictHandler func(Verdict)

// Evaluator wires the validator, harness, sandbox and translator together.
type Evaluator struct {
	sandbox     sandbox.Sandbox
	validator   *validator.Validator
	translator  diagnostic.Translator
	concurrency int
	log         *zap.Logger
}

// New creates an evaluator that runs cases one at a time.
func New(sb sandbox.Sandbox, log *zap.Logger) *Evaluator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Evaluator{
		sandbox:     sb,
		validator:   validator.Default(),
		translator:  diagnostic.Default,
		concurrency: 1,
		log:         log.Named("evaluator"),
	}
}

// SetValidator replaces the static validator.
func (e *Evaluator) SetValidator(v *validator.Validator) {
	e.validator = v
}

// SetTranslator replaces the error translator.
func (e *Evaluator) SetTranslator(t diagnostic.Translator) {
	e.translator = t
}

// SetConcurrency sets how many test cases may run at once (minimum 1).
func (e *Evaluator) SetConcurrency(n int) {
	e.concurrency = max(n, 1)
}

// Evaluate runs code against every test case.
func (e *Evaluator) Evaluate(ctx context.Context, code, functionName string, cases []level.TestCase) (*Report, error) {
	return e.EvaluateStreaming(ctx, code, functionName, cases, nil)
}

// EvaluateStreaming is Evaluate with a per-verdict callback.
//
// A rejected submission yields a report with no verdicts and a nil error.
// Errors are reserved for conditions that are not the submission's fault:
// an invalid target name, a broken sandbox, or ctx ending.
func (e *Evaluator) EvaluateStreaming(ctx context.Context, code, functionName string, cases []level.TestCase, onVerdict VerdictHandler) (*Report, error) {
	start := time.Now()
	log := e.log.With(zap.String("function", functionName), zap.Int("cases", len(cases)))

	if err := e.validator.Validate(code); err != nil {
		var viol *validator.Violation
		if !errors.As(err, &viol) {
			return nil, fmt.Errorf("validating submission: %w", err)
		}
		log.Info("submission rejected", zap.String("rule", viol.Rule), zap.String("match", viol.Match))
		return &Report{
			Status:   StatusRejected,
			Verdicts: []Verdict{},
			Rejection: &Rejection{
				Rule:       viol.Rule,
				Match:      viol.Match,
				Reason:     viol.Reason,
				Diagnostic: diagnostic.ForViolation(viol.Match, viol.Reason),
			},
			Elapsed: time.Since(start),
		}, nil
	}
	if !harness.ValidFunctionName(functionName) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidFunction, functionName)
	}

	verdicts := make([]Verdict, len(cases))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, tc := range cases {
		g.Go(func() error {
			v, err := e.runCase(gctx, i, code, functionName, tc)
			if err != nil {
				return err
			}
			verdicts[i] = v
			if onVerdict != nil {
				mu.Lock()
				onVerdict(v)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		log.Error("evaluation aborted", zap.Error(err))
		return nil, err
	}

	report := &Report{Status: StatusFailed, Verdicts: verdicts, Elapsed: time.Since(start)}
	if report.AllPassed() {
		report.Status = StatusPassed
	}
	log.Info("submission evaluated",
		zap.String("status", string(report.Status)),
		zap.Int("passed", report.PassedCount()),
		zap.Duration("elapsed", report.Elapsed),
	)
	return report, nil
}

func (e *Evaluator) runCase(ctx context.Context, index int, code, functionName string, tc level.TestCase) (Verdict, error) {
	prog, err := harness.Build(code, functionName, tc.Inputs)
	if err != nil {
		return Verdict{}, fmt.Errorf("building harness for case %d: %w", index, err)
	}
	res, err := e.sandbox.Exec(ctx, sandbox.ExecOpts{Code: prog.Source, Filename: harness.Filename})
	if err != nil {
		var sbErr *sandbox.Error
		if errors.As(err, &sbErr) {
			return Verdict{}, fmt.Errorf("%w: case %d: %w", ErrEnvironment, index, err)
		}
		return Verdict{}, fmt.Errorf("running case %d: %w", index, err)
	}
	v := interpret(prog, res, tc, e.translator)
	v.Index = index
	e.log.Debug("case finished",
		zap.Int("index", index),
		zap.Bool("passed", v.Passed),
		zap.String("state", string(res.State)),
		zap.Duration("elapsed", res.Elapsed),
	)
	return v, nil
}
