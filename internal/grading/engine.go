// Package grading implements the partial-credit scoring rubric for exam
// submissions. The rubric itself is a pure function of (starter code,
// submitted code, max marks, execution report); gathering the execution
// report from the gateway lives in Grader so the rubric is unit-testable
// without a live execution backend.
package grading

import (
	"fmt"
	"math"
	"strings"

	"github.com/algoprep/algoprep-backend/internal/model"
)

// Rubric stages, recorded in the grade breakdown.
const (
	StageNoChanges  = "no-changes"
	StageEmpty      = "empty"
	StagePseudocode = "pseudocode"
	StageNoCompile  = "no-compile"
	StageZeroPassed = "zero-passed"
	StagePassRate   = "pass-rate"
)

// minCodeLength is the minimal stripped-code length below which a submission
// is treated as empty or pseudocode rather than executed.
const minCodeLength = 20

// Rubric weights.
const (
	pseudocodeShare  = 0.15
	noCompileBase    = 0.20
	noCompileCap     = 0.25
	zeroPassedBase   = 0.25
	zeroPassedCap    = 0.30
	passBaseShare    = 0.30
	passRateShare    = 0.70
	effortBonusShare = 0.01
	effortLinesUnit  = 20
	effortBonusMax   = 5
)

// TestCaseResult is the outcome of executing one test case.
type TestCaseResult struct {
	Input    string `json:"input"`
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
	Passed   bool   `json:"passed"`
	Err      string `json:"err,omitempty"`
}

// ExecutionReport aggregates everything the rubric needs from the gateway:
// the compiler error stream (empty when compilation succeeded) and per-test
// outcomes.
type ExecutionReport struct {
	CompileError string
	Tests        []TestCaseResult
}

// EvaluateStatic applies the stages that need no execution: the
// unchanged-from-starter check and the emptiness/pseudocode check. The second
// return value reports whether the outcome is final; when false the caller
// must gather an execution report and call EvaluateExecuted.
func EvaluateStatic(starterCode, submittedCode string, maxMarks int) (*model.GradeBreakdown, bool) {
	normalized := NormalizeCode(submittedCode)

	// Stage 1: unchanged from starter, or collapses to nothing.
	if normalized == "" || normalized == NormalizeCode(starterCode) {
		return &model.GradeBreakdown{
			Stage:    StageNoChanges,
			Reason:   "no changes",
			Score:    0,
			MaxMarks: maxMarks,
		}, true
	}

	// Stage 2: too short to be a real solution.
	stripped := StripCode(submittedCode)
	if len(stripped) < minCodeLength {
		if strings.TrimSpace(stripped) == "" {
			return &model.GradeBreakdown{
				Stage:    StageEmpty,
				Reason:   "empty",
				Score:    0,
				MaxMarks: maxMarks,
			}, true
		}
		return &model.GradeBreakdown{
			Stage:    StagePseudocode,
			Reason:   "pseudocode/comments only",
			Score:    roundScore(pseudocodeShare * float64(maxMarks)),
			MaxMarks: maxMarks,
		}, true
	}

	return nil, false
}

// EvaluateExecuted applies the compilation and test-execution stages to a
// gathered execution report. Deterministic given identical inputs.
func EvaluateExecuted(submittedCode string, maxMarks int, report ExecutionReport) *model.GradeBreakdown {
	max := float64(maxMarks)
	bonus := effortBonus(CountLines(submittedCode), max)

	// Stage 3: does not compile. Effort earns a small line-count bonus on top
	// of the base share, capped overall.
	if strings.TrimSpace(report.CompileError) != "" {
		raw := math.Min(noCompileBase*max+bonus, noCompileCap*max)
		return &model.GradeBreakdown{
			Stage:    StageNoCompile,
			Reason:   "does not compile",
			Score:    roundScore(raw),
			MaxMarks: maxMarks,
		}
	}

	passed := 0
	for _, t := range report.Tests {
		if t.Passed {
			passed++
		}
	}
	total := len(report.Tests)

	// Stage 4a: compiles but passes nothing.
	if passed == 0 {
		raw := math.Min(zeroPassedBase*max+bonus, zeroPassedCap*max)
		return &model.GradeBreakdown{
			Stage:       StageZeroPassed,
			Reason:      "compiles, 0 passed",
			Score:       roundScore(raw),
			MaxMarks:    maxMarks,
			TestsPassed: 0,
			TestsTotal:  total,
		}
	}

	// Stage 4b: proportional credit for the pass rate.
	rate := float64(passed) / float64(total)
	raw := passBaseShare*max + rate*passRateShare*max
	return &model.GradeBreakdown{
		Stage:       StagePassRate,
		Reason:      reasonPassRate(passed, total),
		Score:       roundScore(raw),
		MaxMarks:    maxMarks,
		TestsPassed: passed,
		TestsTotal:  total,
		PassRate:    rate,
	}
}

// OutputMatches compares actual program output to the expected output under
// the rubric's normalization rules.
func OutputMatches(expected, actual string) bool {
	return NormalizeOutput(expected) == NormalizeOutput(actual)
}

func effortBonus(lines int, maxMarks float64) float64 {
	units := math.Min(float64(lines)/effortLinesUnit, effortBonusMax)
	return units * effortBonusShare * maxMarks
}

func roundScore(raw float64) int {
	return int(math.Round(raw))
}

func reasonPassRate(passed, total int) string {
	return fmt.Sprintf("%d/%d test cases passed", passed, total)
}
