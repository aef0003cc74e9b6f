package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/noah-isme/edu-authoring-api/api/swagger"
	"github.com/noah-isme/edu-authoring-api/internal/handler"
	"github.com/noah-isme/edu-authoring-api/internal/middleware"
	"github.com/noah-isme/edu-authoring-api/internal/models"
	"github.com/noah-isme/edu-authoring-api/internal/service"
	"github.com/noah-isme/edu-authoring-api/pkg/config"
)

type routeDeps struct {
	tokens     *service.TokenService
	metrics    *service.MetricsService
	templates  *handler.TemplateHandler
	wizard     *handler.WizardHandler
	activity   *handler.ActivityHandler
	correction *handler.CorrectionHandler
	ops        *handler.MetricsHandler
}

func registerRoutes(r *gin.Engine, cfg *config.Config, deps routeDeps) {
	r.Use(middleware.Metrics(deps.metrics))

	r.GET("/health", deps.ops.Health)
	r.GET("/ready", deps.ops.Ready)
	r.GET("/metrics", deps.ops.Prometheus)
	r.GET(cfg.APIPrefix+"/exports/:token", deps.activity.Download)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.JWT(deps.tokens), middleware.RateLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window))

	teacher := middleware.RequireRoles(models.RoleTeacher)
	staff := middleware.RequireRoles(models.RoleTeacher, models.RoleManager)

	api.GET("/templates", teacher, deps.templates.List)

	wizard := api.Group("/wizard/sessions", teacher)
	wizard.POST("", deps.wizard.Start)
	wizard.GET("/:id", deps.wizard.Get)
	wizard.DELETE("/:id", deps.wizard.Cancel)
	wizard.POST("/:id/class", deps.wizard.SelectClass)
	wizard.POST("/:id/mode", deps.wizard.SelectMode)
	wizard.POST("/:id/template", deps.wizard.ApplyTemplate)
	wizard.POST("/:id/generate", deps.wizard.GenerateActivity)
	wizard.POST("/:id/questions/generate", deps.wizard.GenerateQuestions)
	wizard.DELETE("/:id/generation", deps.wizard.CancelGeneration)
	wizard.PATCH("/:id/draft", deps.wizard.UpdateDraft)
	wizard.POST("/:id/questions", deps.wizard.AddQuestion)
	wizard.PATCH("/:id/questions/:questionId", deps.wizard.UpdateQuestion)
	wizard.DELETE("/:id/questions/:questionId", deps.wizard.RemoveQuestion)
	wizard.POST("/:id/review", deps.wizard.Review)
	wizard.POST("/:id/submit", deps.wizard.Submit)

	api.GET("/classes/:classId/activities", staff, deps.activity.ListByClass)

	activities := api.Group("/activities/:id")
	activities.GET("", staff, deps.activity.Get)
	activities.GET("/submissions", staff, deps.activity.ListSubmissions)
	activities.POST("/submissions", middleware.RequireRoles(models.RoleStudent), deps.activity.RecordAnswers)
	activities.POST("/submissions/missing", teacher, deps.activity.MarkNotSubmitted)
	activities.GET("/stats", staff, deps.activity.Stats)
	activities.GET("/export", staff, deps.activity.Export)
	activities.POST("/export/link", staff, deps.activity.PublishExport)
	activities.POST("/corrections", teacher, deps.correction.BatchCorrect)
	activities.POST("/corrections/async", teacher, deps.correction.EnqueueBatch)

	submissions := api.Group("/submissions/:id", teacher)
	submissions.POST("/correct", deps.correction.Correct)
	submissions.POST("/confirm", deps.correction.Confirm)
	submissions.POST("/review", deps.correction.ForceReview)
	submissions.POST("/finalize", deps.correction.Finalize)

	ops := api.Group("/ops", middleware.RequireRoles(models.RoleManager))
	ops.DELETE("/cache", deps.ops.FlushCache)
	ops.GET("/metrics/summary", deps.ops.Summary)
}
