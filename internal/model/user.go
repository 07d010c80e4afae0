package model

import "time"

// UserRole distinguishes learners from instructors.
type UserRole string

const (
	RoleStudent    UserRole = "STUDENT"
	RoleInstructor UserRole = "INSTRUCTOR"
)

// User represents a platform account.
type User struct {
	ID           int       `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         UserRole  `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

// ExamStats holds a user's cumulative exam aggregates. LifetimeTotal is
// additive across graded attempts, BestScore is a running maximum, and
// AttemptCount increments by exactly one per graded attempt.
type ExamStats struct {
	UserID        int     `json:"user_id"`
	LifetimeTotal float64 `json:"lifetime_total"`
	AttemptCount  int     `json:"attempt_count"`
	BestScore     float64 `json:"best_score"`
}

// LeaderboardEntry is one row of the public leaderboard.
type LeaderboardEntry struct {
	UserID        int     `json:"user_id"`
	Name          string  `json:"name"`
	BestScore     float64 `json:"best_score"`
	LifetimeTotal float64 `json:"lifetime_total"`
	AttemptCount  int     `json:"attempt_count"`
}

// RegisterRequest is the payload for creating a new account.
type RegisterRequest struct {
	Name     string `json:"name" binding:"required,min=2,max=100"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8,max=72"`
}

// LoginRequest is the payload for logging in.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}
