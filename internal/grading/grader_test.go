package grading

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/algoprep/algoprep-backend/internal/executor"
	"github.com/algoprep/algoprep-backend/internal/model"
)

// fakeRunner scripts gateway behavior per stdin value. An empty stdin request
// is the compilation check.
type fakeRunner struct {
	compileError string
	execErr      error
	outputs      map[string]string
	calls        int
}

func (f *fakeRunner) Execute(_ context.Context, req executor.Request) (*executor.Result, error) {
	f.calls++
	if f.execErr != nil {
		return nil, f.execErr
	}
	if f.compileError != "" {
		return &executor.Result{CompileError: f.compileError}, nil
	}
	return &executor.Result{Stdout: f.outputs[req.Stdin]}, nil
}

func testQuestion() *model.ExamQuestion {
	return &model.ExamQuestion{
		Marks:       25,
		StarterCode: starter,
		VisibleTests: []model.TestCase{
			{Input: "1 2", Expected: "3"},
			{Input: "5 5", Expected: "10"},
		},
		HiddenTests: []model.TestCase{
			{Input: "100 1", Expected: "101"},
		},
	}
}

const solution = "int main() {\n    int a, b;\n    std::cin >> a >> b;\n    std::cout << a + b;\n    return 0;\n}\n"

func newTestGrader(r Runner) *Grader {
	return NewGrader(r, zerolog.Nop())
}

func TestGradeStaticShortCircuitSkipsGateway(t *testing.T) {
	runner := &fakeRunner{}
	g := newTestGrader(runner)

	b := g.Grade(context.Background(), testQuestion(), starter, "c++")
	assert.Equal(t, StageNoChanges, b.Stage)
	assert.Equal(t, 0, runner.calls)
}

func TestGradeCompileError(t *testing.T) {
	runner := &fakeRunner{compileError: "error: expected ';'"}
	g := newTestGrader(runner)

	b := g.Grade(context.Background(), testQuestion(), solution, "c++")
	assert.Equal(t, StageNoCompile, b.Stage)
	// Only the compile check hit the gateway.
	assert.Equal(t, 1, runner.calls)
}

func TestGradeGatewayDownScoredAsNoCompile(t *testing.T) {
	runner := &fakeRunner{execErr: errors.New("connection refused")}
	g := newTestGrader(runner)

	b := g.Grade(context.Background(), testQuestion(), solution, "c++")
	assert.Equal(t, StageNoCompile, b.Stage)
}

func TestGradeRunsAllVisibleAndHiddenTests(t *testing.T) {
	runner := &fakeRunner{outputs: map[string]string{
		"1 2":   "3",
		"5 5":   "10",
		"100 1": "101",
	}}
	g := newTestGrader(runner)

	b := g.Grade(context.Background(), testQuestion(), solution, "c++")
	require.Equal(t, StagePassRate, b.Stage)
	assert.Equal(t, 3, b.TestsPassed)
	assert.Equal(t, 3, b.TestsTotal)
	assert.Equal(t, 25, b.Score)
	// One compile check plus one run per test case.
	assert.Equal(t, 4, runner.calls)
}

func TestGradePartialPass(t *testing.T) {
	runner := &fakeRunner{outputs: map[string]string{
		"1 2":   "3",
		"5 5":   "wrong",
		"100 1": "101",
	}}
	g := newTestGrader(runner)

	b := g.Grade(context.Background(), testQuestion(), solution, "c++")
	assert.Equal(t, 2, b.TestsPassed)
	// 2/3 of 25: 7.5 + (2/3)*17.5 = 19.1... -> 19.
	assert.Equal(t, 19, b.Score)
}

// languageRunner records the language of every gateway request it sees.
type languageRunner struct {
	outputs   map[string]string
	languages []string
}

func (f *languageRunner) Execute(_ context.Context, req executor.Request) (*executor.Result, error) {
	f.languages = append(f.languages, req.Language)
	return &executor.Result{Stdout: f.outputs[req.Stdin]}, nil
}

func TestGradeForwardsExamLanguage(t *testing.T) {
	runner := &languageRunner{outputs: map[string]string{
		"1 2":   "3",
		"5 5":   "10",
		"100 1": "101",
	}}
	g := newTestGrader(runner)

	g.Grade(context.Background(), testQuestion(), solution, "python")

	// One compile check plus one run per test case, all in the exam's language.
	require.Len(t, runner.languages, 4)
	for _, lang := range runner.languages {
		assert.Equal(t, "python", lang)
	}
}

func TestGradeOutputComparedNormalized(t *testing.T) {
	runner := &fakeRunner{outputs: map[string]string{
		"1 2":   "3 \r\n",
		"5 5":   "10",
		"100 1": "101\n",
	}}
	g := newTestGrader(runner)

	b := g.Grade(context.Background(), testQuestion(), solution, "c++")
	assert.Equal(t, 3, b.TestsPassed)
}
