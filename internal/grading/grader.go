package grading

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/algoprep/algoprep-backend/internal/executor"
	"github.com/algoprep/algoprep-backend/internal/model"
)

// Runner is the slice of the execution gateway client that grading needs.
type Runner interface {
	Execute(ctx context.Context, req executor.Request) (*executor.Result, error)
}

// Grader gathers execution reports from the gateway and applies the rubric.
type Grader struct {
	runner Runner
	log    zerolog.Logger
}

// NewGrader creates a Grader backed by the given gateway runner.
func NewGrader(runner Runner, log zerolog.Logger) *Grader {
	return &Grader{
		runner: runner,
		log:    log.With().Str("component", "grader").Logger(),
	}
}

// Grade scores a submitted source text against a question. Static stages
// short-circuit without touching the gateway; otherwise the code is compiled
// once with empty stdin, then run against every visible and hidden test case.
// Every gateway call carries the exam's language; an empty language falls back
// to the client's configured default. A failure executing a single test case
// degrades that case to "failed" with its error captured; it never aborts the
// grading pass.
func (g *Grader) Grade(ctx context.Context, q *model.ExamQuestion, submittedCode, language string) *model.GradeBreakdown {
	if breakdown, done := EvaluateStatic(q.StarterCode, submittedCode, q.Marks); done {
		return breakdown
	}

	report := ExecutionReport{}

	// Compilation check: empty stdin, we only care about the compiler stream.
	compileRun, err := g.runner.Execute(ctx, executor.Request{Language: language, Source: submittedCode})
	if err != nil {
		// Gateway unreachable. The submission cannot be proven to compile, so
		// it is scored as a compilation failure rather than aborting grading.
		g.log.Warn().Err(err).Str("question_id", q.ID.String()).Msg("Compilation check failed")
		report.CompileError = "compilation check failed: " + err.Error()
		return EvaluateExecuted(submittedCode, q.Marks, report)
	}
	if !compileRun.Compiled() {
		report.CompileError = compileRun.CompileError
		return EvaluateExecuted(submittedCode, q.Marks, report)
	}

	for _, tc := range q.AllTests() {
		result := TestCaseResult{Input: tc.Input, Expected: tc.Expected}

		run, err := g.runner.Execute(ctx, executor.Request{Language: language, Source: submittedCode, Stdin: tc.Input})
		switch {
		case err != nil:
			result.Err = err.Error()
		case !run.Compiled():
			// Should not happen after the compile check, but the gateway is
			// not required to be deterministic.
			result.Err = run.CompileError
		default:
			result.Actual = run.Stdout
			result.Passed = OutputMatches(tc.Expected, run.Stdout)
		}

		report.Tests = append(report.Tests, result)
	}

	return EvaluateExecuted(submittedCode, q.Marks, report)
}
