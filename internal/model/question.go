package model

import (
	"github.com/google/uuid"
)

// TestCase is a single input/expected-output pair for a coding question.
type TestCase struct {
	Input    string `json:"input"`
	Expected string `json:"expected"`
}

// ExamQuestion represents a single coding question. Immutable during a
// session; read-only input to grading.
type ExamQuestion struct {
	ID           uuid.UUID  `json:"id"`
	ExamID       uuid.UUID  `json:"exam_id"`
	OrderNum     int        `json:"order_num"`
	Title        string     `json:"title"`
	Category     string     `json:"category"`
	Marks        int        `json:"marks"`
	StarterCode  string     `json:"starter_code"`
	VisibleTests []TestCase `json:"visible_tests"`
	HiddenTests  []TestCase `json:"hidden_tests,omitempty"`
}

// AllTests returns visible followed by hidden test cases, the order grading
// executes them in.
func (q *ExamQuestion) AllTests() []TestCase {
	tests := make([]TestCase, 0, len(q.VisibleTests)+len(q.HiddenTests))
	tests = append(tests, q.VisibleTests...)
	tests = append(tests, q.HiddenTests...)
	return tests
}

// QuestionForStudent is a question without hidden test cases, sent to students.
type QuestionForStudent struct {
	ID           uuid.UUID  `json:"id"`
	OrderNum     int        `json:"order_num"`
	Title        string     `json:"title"`
	Category     string     `json:"category"`
	Marks        int        `json:"marks"`
	StarterCode  string     `json:"starter_code"`
	VisibleTests []TestCase `json:"visible_tests"`
}

// ForStudent strips the hidden test cases from a question.
func (q *ExamQuestion) ForStudent() QuestionForStudent {
	return QuestionForStudent{
		ID:           q.ID,
		OrderNum:     q.OrderNum,
		Title:        q.Title,
		Category:     q.Category,
		Marks:        q.Marks,
		StarterCode:  q.StarterCode,
		VisibleTests: q.VisibleTests,
	}
}

// AddQuestionRequest is the payload for adding a question to an exam.
type AddQuestionRequest struct {
	Title        string     `json:"title" binding:"required,notblank,max=255"`
	Category     string     `json:"category" binding:"omitempty,max=100"`
	Marks        int        `json:"marks" binding:"required,min=1,max=100"`
	StarterCode  string     `json:"starter_code" binding:"required"`
	VisibleTests []TestCase `json:"visible_tests" binding:"required,min=1,dive"`
	HiddenTests  []TestCase `json:"hidden_tests" binding:"omitempty,dive"`
	OrderNum     int        `json:"order_num" binding:"min=0"`
}
