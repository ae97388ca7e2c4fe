package main

import (
	"context"
	"log"

	"github.com/gin-gonic/gin"

	"github.com/learnchain/course-mesh/config"
	"github.com/learnchain/course-mesh/internal/coursecache"
	"github.com/learnchain/course-mesh/internal/handlers"
	"github.com/learnchain/course-mesh/internal/mesh"
	"github.com/learnchain/course-mesh/internal/middleware"
	"github.com/learnchain/course-mesh/internal/peerconn"
	"github.com/learnchain/course-mesh/internal/realtime"
	"github.com/learnchain/course-mesh/internal/recordstore"
	"github.com/learnchain/course-mesh/internal/signaling"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Connect to the record store
	store, err := recordstore.New(cfg.DatabaseDSN)
	if err != nil {
		log.Fatalf("Failed to connect to record store: %v", err)
	}
	defer store.Close()

	if err := store.AutoMigrate(); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}
	log.Println("Record store connection established")

	// Connect to the realtime feed
	feed, err := realtime.Connect(cfg.Redis)
	if err != nil {
		log.Fatalf("Failed to connect to realtime feed: %v", err)
	}
	defer feed.Close()

	log.Println("Realtime feed connection established")

	// Open the local course cache
	cache, err := coursecache.Open(cfg.CachePath)
	if err != nil {
		log.Fatalf("Failed to open course cache: %v", err)
	}
	defer cache.Close()

	// Start the offline sync manager
	syncer := coursecache.NewSyncer(cache, store)
	syncer.Start(context.Background(), cfg.SyncInterval)
	defer syncer.Stop()

	// Assemble the mesh coordinator
	relay := signaling.NewRelay(store, feed)
	coord := mesh.NewCoordinator(mesh.Options{
		Relay:   relay,
		Store:   store,
		Cache:   cache,
		Dial:    peerconn.NewWebRTCFactory(cfg.STUNServer),
		Backlog: cfg.SignalingBacklog,
	})
	defer coord.LeaveRoom(context.Background())

	log.Printf("Mesh coordinator ready, peer id %s", coord.SelfID())

	// Setup Gin router
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()

	// Global CORS middleware (runs before routing)
	router.Use(handlers.OriginFilter(cfg.AllowedOrigins))

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	apiGroup := router.Group("/api")
	{
		// Login endpoint (public)
		apiGroup.POST("/auth/login", handlers.Login(cfg.JWTSecret))

		// Room membership; creation requires a session token
		apiGroup.POST("/rooms", middleware.JWTAuth(cfg.JWTSecret), handlers.CreateRoom(coord))
		apiGroup.POST("/rooms/join", handlers.JoinRoom(coord))
		apiGroup.POST("/rooms/leave", handlers.LeaveRoom(coord))

		// Peers and sharing
		apiGroup.GET("/peers", handlers.GetPeers(coord))
		apiGroup.POST("/peers/:peerId/request", handlers.RequestCourse(coord))
		apiGroup.PUT("/sharing", handlers.SetSharing(coord))

		// Offline cache
		apiGroup.GET("/courses/offline", handlers.OfflineCourses(cache))
		apiGroup.POST("/courses/:courseId/download", handlers.DownloadCourse(syncer))
		apiGroup.DELETE("/courses/offline", handlers.ClearCache(cache))
	}

	// Coordinator event stream for the UI
	wsGroup := router.Group("/ws")
	{
		wsGroup.GET("/events", handlers.StreamEvents(coord))
	}

	// Start server
	log.Printf("Starting course-mesh agent on port %s", cfg.Port)
	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}
