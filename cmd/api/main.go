package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"classattend/internal/attendance"
	"classattend/internal/config"
	"classattend/internal/docstore"
	"classattend/internal/httpmiddleware"
	"classattend/internal/identity"
	"classattend/internal/netinfo"
	"classattend/internal/queue"
	"classattend/internal/scancode"
	"classattend/internal/session"
	"classattend/internal/timetable"
)

func main() {
	cfg := config.Load()

	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func runHTTP(cfg config.App) error {
	var store docstore.Store
	var pg *docstore.Postgres
	if cfg.StoreBackend == "memory" {
		store = docstore.NewMemory()
		log.Println("using in-memory document store")
	} else {
		var err error
		pg, err = docstore.NewPostgres(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pg.Close()
		store = pg
	}

	var redisClient *redis.Client
	var events queue.Queue
	if cfg.QueueBackend == "memory" {
		events = queue.NewInMemory(64)
	} else {
		redisClient = queue.NewRedisClient(cfg.RedisAddr)
		events = queue.NewRedisQueue(redisClient, "classattend:scans")
	}

	net := netinfo.New(cfg.NetInfoURL, cfg.NetInfoIP)
	resolver := timetable.NewResolver(store)
	sessions := session.NewManager(store, resolver, net)
	recorder := attendance.NewRecorder(store, net, events)
	stats := attendance.NewStats(store)
	users := identity.NewService(store, cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL, cfg.RefreshTTL)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(corsMiddleware())
	r.Use(securityHeaders())
	r.Use(httpmiddleware.NewSimpleTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin).GinMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/healthz", func(c *gin.Context) {
		storeHealthy := true
		if pg != nil {
			storeHealthy = pg.Ping(c.Request.Context()) == nil
		}
		redisHealthy := redisClient == nil || queue.RedisHealthy(c.Request.Context(), redisClient)
		status := http.StatusOK
		if !storeHealthy || !redisHealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": "ok", "store": storeHealthy, "redis": redisHealthy})
	})

	r.POST("/v1/auth/register", func(c *gin.Context) {
		var req struct {
			Name  string `json:"name" binding:"required"`
			Email string `json:"email" binding:"required"`
			Role  string `json:"role" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		user, tokens, err := users.Register(c.Request.Context(), req.Name, req.Email, req.Role)
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, tokenResponse(user, tokens))
	})

	r.POST("/v1/auth/login", func(c *gin.Context) {
		var req struct {
			Email string `json:"email" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		user, tokens, err := users.Login(c.Request.Context(), req.Email)
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, tokenResponse(user, tokens))
	})

	authed := r.Group("/v1", identity.Verify(cfg.JWTSigningKey, cfg.JWTIssuer))

	authed.GET("/timetable/current", func(c *gin.Context) {
		subjects, err := resolver.CurrentSubjects(c.Request.Context(), time.Now())
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		if subjects == nil {
			subjects = []string{}
		}
		c.JSON(http.StatusOK, gin.H{"subjects": subjects})
	})

	authed.GET("/timetable/day/:weekday", func(c *gin.Context) {
		weekday, ok := parseWeekday(c.Param("weekday"))
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown weekday"})
			return
		}
		ranges, err := resolver.Ranges(c.Request.Context(), weekday)
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"weekday": weekday.String(), "slots": ranges})
	})

	teacher := authed.Group("", identity.RequireRole(identity.RoleTeacher))

	teacher.POST("/sessions/:subject", func(c *gin.Context) {
		subject := c.Param("subject")
		sess, err := sessions.EnsureActive(c.Request.Context(), subject, time.Now())
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		payload := scancode.Encode(scancode.Payload{IP: sess.IP, Subject: sess.Subject})
		c.JSON(http.StatusOK, gin.H{"session": sess, "payload": payload})
	})

	teacher.GET("/sessions/:subject/code.png", func(c *gin.Context) {
		subject := c.Param("subject")
		sess, err := sessions.Get(c.Request.Context(), subject)
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		png, err := scancode.PNG(scancode.Payload{IP: sess.IP, Subject: sess.Subject}, 256)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "render failed"})
			return
		}
		c.Data(http.StatusOK, "image/png", png)
	})

	// Live view of a session's scans for the teacher dashboard; one JSON
	// snapshot per change until the client goes away.
	teacher.GET("/sessions/:subject/scans/stream", func(c *gin.Context) {
		subject := c.Param("subject")
		updates, cancel, err := store.Watch(c.Request.Context(), session.ScansCollection(subject))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		defer cancel()

		c.Header("Content-Type", "application/x-ndjson")
		c.Stream(func(w io.Writer) bool {
			select {
			case snapshot, ok := <-updates:
				if !ok {
					return false
				}
				if err := json.NewEncoder(w).Encode(snapshot); err != nil {
					return false
				}
				return true
			case <-c.Request.Context().Done():
				return false
			}
		})
	})

	teacher.GET("/stats/sessions", func(c *gin.Context) {
		out, err := stats.SessionStats(c.Request.Context())
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		if out == nil {
			out = []attendance.SessionStat{}
		}
		c.JSON(http.StatusOK, gin.H{"sessions": out})
	})

	teacher.POST("/admin/seed", func(c *gin.Context) {
		if err := timetable.Seed(c.Request.Context(), store); err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "seeded"})
	})

	teacher.POST("/admin/sweep", func(c *gin.Context) {
		removed, err := sessions.SweepInvalid(c.Request.Context())
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"removed": removed})
	})

	student := authed.Group("", identity.RequireRole(identity.RoleStudent))

	student.POST("/scans", func(c *gin.Context) {
		var req struct {
			Payload string `json:"payload" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		claims, _ := identity.ClaimsFrom(c)
		user, err := users.User(c.Request.Context(), claims.Subject)
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		decoded, err := scancode.Decode(req.Payload)
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		rec, err := recorder.Record(c.Request.Context(), user.ID, user.Name, decoded.Subject, time.Now())
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"record": rec, "subject": decoded.Subject})
	})

	student.GET("/me/history", func(c *gin.Context) {
		claims, _ := identity.ClaimsFrom(c)
		user, err := users.User(c.Request.Context(), claims.Subject)
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		out, err := stats.History(c.Request.Context(), user.Name)
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		if out == nil {
			out = []attendance.Attended{}
		}
		c.JSON(http.StatusOK, gin.H{"attended": out})
	})

	student.GET("/me/attendance", func(c *gin.Context) {
		claims, _ := identity.ClaimsFrom(c)
		out, err := stats.GroupedByDate(c.Request.Context(), claims.Subject)
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"days": out})
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Starting server on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Give outstanding requests 10 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced shutdown: %v", err)
	}

	log.Println("Server exited")
	return nil
}

func tokenResponse(user identity.User, tokens identity.TokenPair) gin.H {
	return gin.H{
		"user":          user,
		"access_token":  tokens.AccessToken,
		"refresh_token": tokens.RefreshToken,
		"expires_at":    tokens.AccessExp.Unix(),
	}
}

func parseWeekday(s string) (time.Weekday, bool) {
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.EqualFold(d.String(), s) {
			return d, true
		}
	}
	return 0, false
}

// statusFor maps domain sentinels onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, scancode.ErrMalformed),
		errors.Is(err, identity.ErrInvalidRole):
		return http.StatusBadRequest
	case errors.Is(err, timetable.ErrNotScheduled),
		errors.Is(err, session.ErrNoActiveSlot),
		errors.Is(err, attendance.ErrSessionNotFound),
		errors.Is(err, identity.ErrUnknownUser),
		errors.Is(err, docstore.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, attendance.ErrSessionExpired):
		return http.StatusGone
	case errors.Is(err, netinfo.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// CORS middleware for browser requests
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
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
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		// Only add HSTS in production
		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}
