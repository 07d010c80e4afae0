package grading

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const starter = "int main() {\n    // your code here\n    return 0;\n}\n"

func TestEvaluateStaticUnchangedStarter(t *testing.T) {
	b, final := EvaluateStatic(starter, starter, 25)
	require.True(t, final)
	assert.Equal(t, StageNoChanges, b.Stage)
	assert.Equal(t, 0, b.Score)
}

func TestEvaluateStaticWhitespaceAndCommentsDoNotCount(t *testing.T) {
	// Reformatting the starter and editing comments is still "no changes".
	edited := "int main()   {\n\t/* solved below */\n    return 0; }\n"
	b, final := EvaluateStatic(starter, edited, 25)
	require.True(t, final)
	assert.Equal(t, StageNoChanges, b.Stage)
	assert.Equal(t, 0, b.Score)
}

func TestEvaluateStaticEmptySubmission(t *testing.T) {
	b, final := EvaluateStatic(starter, "   \n\n\t ", 25)
	require.True(t, final)
	assert.Equal(t, StageNoChanges, b.Stage)
	assert.Equal(t, 0, b.Score)
}

func TestEvaluateStaticCommentsOnlySubmission(t *testing.T) {
	b, final := EvaluateStatic(starter, "// I will solve this later\n/* promise */", 25)
	require.True(t, final)
	assert.Equal(t, StageNoChanges, b.Stage)
	assert.Equal(t, 0, b.Score)
}

func TestEvaluateStaticPseudocode(t *testing.T) {
	// Short but real text: changed from starter, under the length floor.
	b, final := EvaluateStatic(starter, "int x = 1;", 25)
	require.True(t, final)
	assert.Equal(t, StagePseudocode, b.Stage)
	// round(0.15 * 25) = 4
	assert.Equal(t, 4, b.Score)
}

func TestEvaluateStaticRealCodeNotFinal(t *testing.T) {
	code := "int main() {\n    int a, b;\n    std::cin >> a >> b;\n    std::cout << a + b;\n}\n"
	b, final := EvaluateStatic(starter, code, 25)
	assert.False(t, final)
	assert.Nil(t, b)
}

func TestEvaluateExecutedCompileError(t *testing.T) {
	// 8 lines of effort on 25 marks: bonus = min(8/20, 5) * 0.01 * 25 = 0.1,
	// raw = min(5 + 0.1, 6.25) = 5.1 -> 5.
	code := lines(8)
	b := EvaluateExecuted(code, 25, ExecutionReport{CompileError: "error: expected ';'"})
	assert.Equal(t, StageNoCompile, b.Stage)
	assert.Equal(t, 5, b.Score)
}

func TestEvaluateExecutedCompileErrorEffortBonus(t *testing.T) {
	// 40 lines: bonus = 2 * 0.01 * 25 = 0.5, raw = min(5.5, 6.25) = 5.5 -> 6.
	b := EvaluateExecuted(lines(40), 25, ExecutionReport{CompileError: "error: x"})
	assert.Equal(t, StageNoCompile, b.Stage)
	assert.Equal(t, 6, b.Score)
}

func TestEvaluateExecutedCompileErrorCapped(t *testing.T) {
	// Hundreds of lines cannot push past the cap: min(5 + 1.25, 6.25) -> 6.
	b := EvaluateExecuted(lines(500), 25, ExecutionReport{CompileError: "error: x"})
	assert.Equal(t, 6, b.Score)
}

func TestEvaluateExecutedZeroPassed(t *testing.T) {
	// bonus at 40 lines = 0.5, raw = min(6.25 + 0.5, 7.5) = 6.75 -> 7.
	report := ExecutionReport{Tests: []TestCaseResult{
		{Passed: false}, {Passed: false},
	}}
	b := EvaluateExecuted(lines(40), 25, report)
	assert.Equal(t, StageZeroPassed, b.Stage)
	assert.Equal(t, 7, b.Score)
	assert.Equal(t, 0, b.TestsPassed)
	assert.Equal(t, 2, b.TestsTotal)
}

func TestEvaluateExecutedPartialPass(t *testing.T) {
	// 3/5 of 25: 0.3*25 + 0.6*0.7*25 = 7.5 + 10.5 = 18.
	report := ExecutionReport{Tests: []TestCaseResult{
		{Passed: true}, {Passed: true}, {Passed: true}, {Passed: false}, {Passed: false},
	}}
	b := EvaluateExecuted(lines(30), 25, report)
	assert.Equal(t, StagePassRate, b.Stage)
	assert.Equal(t, 18, b.Score)
	assert.Equal(t, 3, b.TestsPassed)
	assert.Equal(t, 5, b.TestsTotal)
	assert.InDelta(t, 0.6, b.PassRate, 1e-9)
	assert.Equal(t, "3/5 test cases passed", b.Reason)
}

func TestEvaluateExecutedFullPass(t *testing.T) {
	report := ExecutionReport{Tests: []TestCaseResult{
		{Passed: true}, {Passed: true},
	}}
	b := EvaluateExecuted(lines(30), 25, report)
	assert.Equal(t, 25, b.Score)
}

func TestEvaluateExecutedDeterministic(t *testing.T) {
	report := ExecutionReport{Tests: []TestCaseResult{
		{Passed: true}, {Passed: false},
	}}
	first := EvaluateExecuted(lines(30), 40, report)
	second := EvaluateExecuted(lines(30), 40, report)
	assert.Equal(t, first, second)
}

func TestEvaluateExecutedScoreNeverExceedsMax(t *testing.T) {
	for passed := 0; passed <= 10; passed++ {
		tests := make([]TestCaseResult, 10)
		for i := range tests {
			tests[i].Passed = i < passed
		}
		b := EvaluateExecuted(lines(100), 25, ExecutionReport{Tests: tests})
		assert.LessOrEqual(t, b.Score, 25, "passed=%d", passed)
		assert.GreaterOrEqual(t, b.Score, 0, "passed=%d", passed)
	}
}

func TestOutputMatches(t *testing.T) {
	assert.True(t, OutputMatches("Hello World\n", "hello world"))
	assert.True(t, OutputMatches("a \r\nb\t", "a\nb"))
	assert.True(t, OutputMatches("  42  ", "42"))
	assert.False(t, OutputMatches("42", "43"))
	assert.False(t, OutputMatches("a\nb", "a b"))
}

// lines builds source with n non-blank lines that passes the length floor.
func lines(n int) string {
	var b []byte
	for i := 0; i < n; i++ {
		b = append(b, "int v = 123456789;\n"...)
	}
	return string(b)
}
