package handlers

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/learnchain/course-mesh/internal/coursecache"
)

// OfflineCourses lists the locally cached course bundles with storage counts.
func OfflineCourses(cache *coursecache.Cache) gin.HandlerFunc {
	return func(c *gin.Context) {
		courses, err := cache.AllCourses()
		if err != nil {
			log.Printf("Failed to list cached courses: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read cache"})
			return
		}
		courseCount, pendingCount, err := cache.Counts()
		if err != nil {
			log.Printf("Failed to read cache stats: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read cache"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"courses": courses,
			"storage": gin.H{"courses": courseCount, "total": courseCount + pendingCount},
		})
	}
}

// DownloadCourse pulls a course from the record store into the local cache.
func DownloadCourse(syncer *coursecache.Syncer) gin.HandlerFunc {
	return func(c *gin.Context) {
		courseID := c.Param("courseId")

		found, err := syncer.DownloadCourse(c.Request.Context(), courseID)
		if err != nil {
			log.Printf("Failed to download course %s: %v", courseID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to download course"})
			return
		}
		if !found {
			c.JSON(http.StatusNotFound, gin.H{"error": "Course not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"downloaded": true})
	}
}

// ClearCache wipes all cached offline data.
func ClearCache(cache *coursecache.Cache) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := cache.ClearAll(); err != nil {
			log.Printf("Failed to clear cache: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to clear cache"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Cache cleared"})
	}
}
