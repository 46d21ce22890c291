package main

import (
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/NTA1210/learning-management-system-sub007/internal/handler"
	"github.com/NTA1210/learning-management-system-sub007/internal/middleware"
	"github.com/NTA1210/learning-management-system-sub007/internal/models"
	"github.com/NTA1210/learning-management-system-sub007/internal/repository"
	"github.com/NTA1210/learning-management-system-sub007/internal/service"
	"github.com/NTA1210/learning-management-system-sub007/pkg/cache"
	"github.com/NTA1210/learning-management-system-sub007/pkg/config"
	"github.com/NTA1210/learning-management-system-sub007/pkg/database"
	"github.com/NTA1210/learning-management-system-sub007/pkg/logger"
	"github.com/NTA1210/learning-management-system-sub007/pkg/mailer"
	corsmiddleware "github.com/NTA1210/learning-management-system-sub007/pkg/middleware/cors"
	reqidmiddleware "github.com/NTA1210/learning-management-system-sub007/pkg/middleware/requestid"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		// Stats caching is best-effort; the core works without Redis.
		logr.Sugar().Warnw("redis unavailable, stats caching disabled", "error", err)
		redisClient = nil
	}

	validate := validator.New()
	metricsSvc := service.NewMetricsService()

	attendanceRepo := repository.NewAttendanceRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	userRepo := repository.NewUserRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	authSvc := service.NewAuthService(cfg.JWT)
	attendanceSvc := service.NewAttendanceService(attendanceRepo, courseRepo, enrollmentRepo, cacheRepo, cfg.Attendance, validate, logr, metricsSvc)
	statsSvc := service.NewStatsService(attendanceRepo, courseRepo, userRepo, cacheRepo, cfg.Attendance, logr)
	exportSvc := service.NewExportService(attendanceSvc, attendanceRepo, nil, nil, logr)
	mailSender := mailer.NewSMTPMailer(cfg.Mail, logr)
	notifySvc := service.NewNotificationService(attendanceRepo, courseRepo, enrollmentRepo, userRepo, mailSender, cfg.Attendance, logr, metricsSvc)

	attendanceHandler := handler.NewAttendanceHandler(attendanceSvc, exportSvc)
	statsHandler := handler.NewStatsHandler(statsSvc)
	notificationHandler := handler.NewNotificationHandler(notifySvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.JWT(authSvc))

	manage := middleware.RequireRoles(models.RoleAdmin, models.RoleTeacher)

	attendances := api.Group("/attendances")
	{
		attendances.GET("", manage, attendanceHandler.List)
		attendances.GET("/export", manage, attendanceHandler.Export)
		attendances.GET("/me", attendanceHandler.SelfHistory)
		attendances.GET("/students/:id", attendanceHandler.StudentHistory)
		attendances.POST("", manage, attendanceHandler.Mark)
		attendances.PATCH("", manage, attendanceHandler.Update)
		attendances.DELETE("", manage, attendanceHandler.DeleteMany)
		attendances.DELETE("/:id", manage, attendanceHandler.DeleteOne)
	}

	courses := api.Group("/courses")
	{
		courses.GET("/:id/attendance-stats", manage, statsHandler.CourseStats)
		courses.GET("/:id/students/:studentId/attendance-stats", manage, statsHandler.StudentStats)
		courses.POST("/:id/absence-notifications", manage, notificationHandler.Send)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
