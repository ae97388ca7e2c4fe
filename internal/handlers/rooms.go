package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/learnchain/course-mesh/internal/mesh"
	"github.com/learnchain/course-mesh/internal/models"
)

// CreateRoom creates a new sharing room (requires authentication).
func CreateRoom(coord *mesh.Coordinator) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, exists := c.Get("user_id")
		if !exists {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
			return
		}

		var req models.CreateRoomRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		code, err := coord.CreateRoom(c.Request.Context(), userID.(string), req.DisplayName)
		if err != nil {
			if errors.Is(err, mesh.ErrAuthRequired) {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
				return
			}
			log.Printf("Failed to create room: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create room"})
			return
		}

		log.Printf("Room created: %s by user %s", code, userID)
		c.JSON(http.StatusCreated, models.CreateRoomResponse{Code: code})
	}
}

// JoinRoom joins a room by code. An absent or inactive room is reported as
// not found, not as a server fault.
func JoinRoom(coord *mesh.Coordinator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.JoinRoomRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		joined, err := coord.JoinRoom(c.Request.Context(), req.Code, req.DisplayName)
		if err != nil {
			log.Printf("Failed to join room %s: %v", req.Code, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to join room"})
			return
		}
		if !joined {
			c.JSON(http.StatusNotFound, gin.H{"error": "Room not found or inactive"})
			return
		}

		log.Printf("Joined room %s as %s", req.Code, req.DisplayName)
		c.JSON(http.StatusOK, gin.H{"code": req.Code, "joined": true})
	}
}

// LeaveRoom leaves the current room; a no-op without one.
func LeaveRoom(coord *mesh.Coordinator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := coord.LeaveRoom(c.Request.Context()); err != nil {
			log.Printf("Failed to leave room: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to leave room"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Left room"})
	}
}
