package config

type WorkerKeyStruct struct {
	PersistViolationsQueue  string
	GradeAttemptsQueue      string
	GradeAttemptsDeadLetter string
}

var WorkerKey = &WorkerKeyStruct{
	PersistViolationsQueue:  "persist_violations_queue",
	GradeAttemptsQueue:      "grade_attempts_queue",
	GradeAttemptsDeadLetter: "grade_attempts_dead_letter",
}
