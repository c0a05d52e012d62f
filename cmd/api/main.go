package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"rollcall/internal/attendance"
	"rollcall/internal/auth"
	"rollcall/internal/config"
	"rollcall/internal/httpmiddleware"
	"rollcall/internal/queue"
	"rollcall/internal/store"
)

func main() {
	cfg := config.Load()

	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}

	if err := runHTTP(cfg); err != nil {
		logrus.WithError(err).Fatal("http server failed")
	}
}

func runHTTP(cfg config.App) error {
	var (
		engineStore  attendance.Store
		roster       attendance.RosterProvider
		db           *store.DB
		ensureSchema func(context.Context) error
	)

	if cfg.StoreBackend == "memory" {
		mem := attendance.NewMemoryStore()
		engineStore = mem
		roster = mem
		logrus.Warn("using in-memory store, state is lost on restart")
	} else {
		var err error
		db, err = store.NewDB(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()
		repo := attendance.NewRepository(db.Client)
		engineStore = repo
		roster = repo
		ensureSchema = repo.EnsureSchema
	}

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, cfg.EventQueueKey)
	}

	ctx := context.Background()
	if ensureSchema != nil {
		if err := ensureSchema(ctx); err != nil {
			return err
		}
	}

	clock := attendance.SystemClock{}
	reconciler := attendance.NewReconciler(engineStore, roster, clock)
	manager := attendance.NewManager(engineStore, reconciler, clock, attendance.RandomTokenSource{}, q, cfg.SessionWindow, cfg.LateThreshold)
	processor := attendance.NewProcessor(engineStore, roster, clock)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(corsMiddleware())
	r.Use(securityHeaders())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/healthz", func(c *gin.Context) {
		redisHealthy := cfg.QueueBackend == "memory" || redisClient.Healthy(c.Request.Context())
		dbHealthy := db == nil || db.Client.PingContext(c.Request.Context()) == nil
		status := http.StatusOK
		if !redisHealthy || !dbHealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": "ok", "redis": redisHealthy, "db": dbHealthy})
	})

	// Identity lives in an external collaborator; this endpoint only
	// mints role-scoped bearer tokens for callers it already vouched for.
	r.POST("/v1/auth/token", func(c *gin.Context) {
		var req struct {
			Subject string `json:"subject" binding:"required"`
			Role    string `json:"role" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if req.Role != auth.RoleTeacher && req.Role != auth.RoleStudent {
			c.JSON(http.StatusBadRequest, gin.H{"error": "role must be teacher or student"})
			return
		}
		token, exp, err := auth.Issue(req.Subject, req.Role, cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"access_token": token, "expires_at": exp.Unix()})
	})

	v1 := r.Group("/v1", auth.BearerAuth(cfg.JWTSigningKey, cfg.JWTIssuer))
	v1.Use(httpmiddleware.NewTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin).GinMiddleware())

	teacherOnly := v1.Group("", auth.RequireRole(auth.RoleTeacher))

	teacherOnly.POST("/classes/:id/sessions", func(c *gin.Context) {
		s, err := manager.OpenSession(c.Request.Context(), c.Param("id"))
		if err != nil {
			abortWith(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{
			"session":    s,
			"token":      s.Token,
			"expires_at": s.ExpiresAt,
		})
	})

	teacherOnly.POST("/sessions/:id/close", func(c *gin.Context) {
		backfilled, err := manager.CloseSession(c.Request.Context(), c.Param("id"))
		if err != nil {
			abortWith(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"absent_backfilled": backfilled})
	})

	v1.POST("/checkins", func(c *gin.Context) {
		var req struct {
			Token     string `json:"token" binding:"required"`
			StudentID string `json:"student_id"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		claims := auth.FromContext(c)
		studentID := claims.Subject
		if req.StudentID != "" {
			if claims.Subject != "" && claims.Subject != req.StudentID {
				c.JSON(http.StatusForbidden, gin.H{"error": "student mismatch"})
				return
			}
			studentID = req.StudentID
		}
		if studentID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "student id required"})
			return
		}

		rec, err := processor.SubmitCheckIn(c.Request.Context(), req.Token, studentID)
		if err != nil {
			abortWith(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"record": rec})
	})

	v1.GET("/classes/:id/sessions", func(c *gin.Context) {
		sessions, err := manager.ListClassSessions(c.Request.Context(), c.Param("id"))
		if err != nil {
			abortWith(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"sessions": sessions})
	})

	v1.GET("/sessions/:id/attendance", func(c *gin.Context) {
		records, err := manager.ListSessionAttendance(c.Request.Context(), c.Param("id"))
		if err != nil {
			abortWith(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"records": records})
	})

	v1.GET("/classes/:id/attendance", func(c *gin.Context) {
		records, err := manager.ListClassAttendance(c.Request.Context(), c.Param("id"))
		if err != nil {
			abortWith(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"records": records})
	})

	v1.GET("/students/:id/attendance", func(c *gin.Context) {
		records, err := manager.ListStudentAttendance(c.Request.Context(), c.Param("id"))
		if err != nil {
			abortWith(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"records": records})
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logrus.Infof("starting server on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.WithError(err).Fatal("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logrus.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Warn("server forced shutdown")
	}

	logrus.Info("server exited")
	return nil
}

// abortWith maps domain errors onto HTTP statuses.
func abortWith(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, attendance.ErrClassNotFound),
		errors.Is(err, attendance.ErrSessionNotFound),
		errors.Is(err, attendance.ErrInvalidToken):
		status = http.StatusNotFound
	case errors.Is(err, attendance.ErrAlreadyActive),
		errors.Is(err, attendance.ErrAlreadyRecorded):
		status = http.StatusConflict
	case errors.Is(err, attendance.ErrSessionExpired):
		status = http.StatusGone
	case errors.Is(err, attendance.ErrNotEnrolled):
		status = http.StatusForbidden
	}
	if status == http.StatusInternalServerError {
		logrus.WithError(err).Error("request failed")
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// CORS middleware for browser requests
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// Security headers middleware
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}
