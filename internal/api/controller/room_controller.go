package controller

import (
	"net/http"
	"strconv"

	"ctchen222/Battleship/internal/api/response"
	"ctchen222/Battleship/internal/match"
	"ctchen222/Battleship/internal/repository"

	"github.com/gin-gonic/gin"
)

// RoomLister exposes the live rooms.
type RoomLister interface {
	Snapshots() []match.Snapshot
}

// RoomController serves read-only views of rooms and players.
type RoomController struct {
	rooms    RoomLister
	history  repository.HistoryRepository
	presence repository.PresenceRepository
}

// NewRoomController creates a new RoomController.
func NewRoomController(rooms RoomLister, history repository.HistoryRepository, presence repository.PresenceRepository) *RoomController {
	return &RoomController{rooms: rooms, history: history, presence: presence}
}

// List returns every live room.
func (rc *RoomController) List(c *gin.Context) {
	snaps := rc.rooms.Snapshots()
	list := make([]any, 0, len(snaps))
	for _, s := range snaps {
		list = append(list, s)
	}
	response.SuccessResponseList(c, list)
}

// Recent returns recently finished matches. ?limit=N caps the result.
func (rc *RoomController) Recent(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	summaries, err := rc.history.Recent(c.Request.Context(), limit)
	if err != nil {
		response.ErrorResponse(c, http.StatusInternalServerError, err.Error())
		return
	}
	list := make([]any, 0, len(summaries))
	for _, s := range summaries {
		list = append(list, s)
	}
	response.SuccessResponseList(c, list)
}

// Online returns the names of connected accounts.
func (rc *RoomController) Online(c *gin.Context) {
	names, err := rc.presence.Online(c.Request.Context())
	if err != nil {
		response.ErrorResponse(c, http.StatusInternalServerError, err.Error())
		return
	}
	list := make([]any, 0, len(names))
	for _, n := range names {
		list = append(list, n)
	}
	response.SuccessResponseList(c, list)
}

// Health reports liveness along with the live room count.
func (rc *RoomController) Health(c *gin.Context) {
	response.SuccessResponse(c, gin.H{"status": "ok", "rooms": len(rc.rooms.Snapshots())})
}
