package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/learnchain/course-mesh/internal/mesh"
)

// GetPeers returns a snapshot of the established peers.
func GetPeers(coord *mesh.Coordinator) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"selfId": coord.SelfID(),
			"peers":  coord.GetPeers(),
		})
	}
}

// RequestCourseRequest is the body for requesting a course from a peer.
type RequestCourseRequest struct {
	CourseID string `json:"courseId" binding:"required"`
}

// RequestCourse asks a connected peer for one course bundle.
func RequestCourse(coord *mesh.Coordinator) gin.HandlerFunc {
	return func(c *gin.Context) {
		peerID := c.Param("peerId")

		var req RequestCourseRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		if !coord.RequestCourse(peerID, req.CourseID) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Peer not found or not connected"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"requested": true})
	}
}

// SharingRequest is the body for toggling course sharing.
type SharingRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

// SetSharing toggles whether incoming course requests are answered.
func SetSharing(coord *mesh.Coordinator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req SharingRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		coord.SetSharingEnabled(*req.Enabled)
		c.JSON(http.StatusOK, gin.H{"sharingEnabled": *req.Enabled})
	}
}
