package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/algoprep/algoprep-backend/internal/model"
	"github.com/algoprep/algoprep-backend/internal/repository"
	"github.com/algoprep/algoprep-backend/internal/response"
)

// LeaderboardHandler serves the public standings.
type LeaderboardHandler struct {
	userRepo *repository.UserRepository
}

// NewLeaderboardHandler creates a new LeaderboardHandler.
func NewLeaderboardHandler(userRepo *repository.UserRepository) *LeaderboardHandler {
	return &LeaderboardHandler{userRepo: userRepo}
}

// List godoc
// GET /api/v1/leaderboard?limit=
// Returns the top users by best score.
func (h *LeaderboardHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "25"))
	if limit < 1 || limit > 100 {
		limit = 25
	}

	entries, err := h.userRepo.Leaderboard(c.Request.Context(), limit)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	if entries == nil {
		entries = []model.LeaderboardEntry{}
	}

	response.Success(c, http.StatusOK, gin.H{"leaderboard": entries})
}
