package app

import (
	"net/http"
	"time"

	"github.com/casevine/core/internal/middleware"
	"github.com/casevine/core/internal/modules/agent"
	"github.com/casevine/core/internal/modules/auth"
	"github.com/casevine/core/internal/modules/casefile"
	"github.com/casevine/core/internal/modules/drafting"
	"github.com/casevine/core/internal/modules/eligibility"
	"github.com/casevine/core/internal/modules/gap"
	"github.com/casevine/core/internal/modules/tasks"
	"github.com/casevine/core/internal/modules/vault"
	"github.com/casevine/core/internal/pkg/bark"
	pkgredis "github.com/casevine/core/internal/pkg/redis"
	"github.com/casevine/core/internal/pkg/response"
	"github.com/casevine/core/internal/pkg/taskqueue"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func (a *App) registerRoutes(rc *pkgredis.Client) {
	r := a.router
	db := a.db
	cfg := a.cfg
	authMW := middleware.Auth()

	r.NoRoute(func(c *gin.Context) {
		response.NotFound(c)
	})
	r.NoMethod(func(c *gin.Context) {
		response.MethodNotAllowed(c)
	})

	appInfo := gin.H{
		"name":    "casevine-core",
		"version": "1.0.0",
	}

	// Bark push service for rate-limit alerts and generation pushes.
	barkSvc := bark.New(func() (key, serverURL, siteTitle string) {
		title := cfg.Bark.Title
		if title == "" {
			title = "casevine"
		}
		return cfg.Bark.Key, cfg.Bark.ServerURL, title
	})

	// Rate limiting and idempotence run on every route (requires Redis).
	r.Use(middleware.RateLimit(rc.Raw(), barkSvc))
	r.Use(middleware.Idempotence(rc.Raw()))

	taskSvc := taskqueue.NewService(rc)
	searcher := vault.NewClient(cfg.Vault)

	draftingOrch := agent.NewOrchestrator(cfg.AI.EnabledProvider(cfg.AI.DraftingModel), a.logger.Named("drafting"))
	evaluatorOrch := agent.NewOrchestrator(cfg.AI.EnabledProvider(cfg.AI.EvaluatorModel), a.logger.Named("evaluator"))

	api := r.Group("/api/v1")
	api.Use(middleware.OptionalAuth())

	api.GET("", func(c *gin.Context) { c.PureJSON(http.StatusOK, appInfo) })
	api.GET("/info", func(c *gin.Context) { c.PureJSON(http.StatusOK, appInfo) })
	api.GET("/ping", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"data": "pong"}) })
	api.GET("/uptime", func(c *gin.Context) {
		uptimeMs := time.Since(a.startTime()).Milliseconds()
		c.JSON(http.StatusOK, gin.H{
			"timestamp": uptimeMs,
			"humanize":  humanizeDuration(time.Duration(uptimeMs) * time.Millisecond),
		})
	})

	// Auth
	authSvc := auth.NewService(db)
	if err := authSvc.EnsureOwner(cfg.Owner); err != nil {
		a.logger.Error("failed to seed owner account", zap.Error(err))
	}
	auth.NewHandler(authSvc).RegisterRoutes(api, authMW)

	// Case file
	casefile.NewClientHandler(casefile.NewClientService(db)).RegisterRoutes(api, authMW)
	recommenderSvc := casefile.NewRecommenderService(db, searcher, draftingOrch, taskSvc, a.logger.Named("recommender"))
	casefile.NewRecommenderHandler(recommenderSvc).RegisterRoutes(api, authMW)

	// Eligibility evaluation
	evalSvc := eligibility.NewService(db, searcher, evaluatorOrch, taskSvc, a.logger.Named("eligibility"))
	evalSvc.SetNotifier(barkSvc)
	eligibility.NewHandler(evalSvc).RegisterRoutes(api, authMW)

	// Gap analysis
	gapSvc := gap.NewService(db, searcher, evaluatorOrch, taskSvc, a.logger.Named("gap"))
	gap.NewHandler(gapSvc).RegisterRoutes(api, authMW)

	// Drafting
	a.autosaver = drafting.NewAutosaver(db, 0, a.logger.Named("autosave"))
	draftSvc := drafting.NewService(db, searcher, draftingOrch, taskSvc, a.logger.Named("drafting"))
	draftSvc.SetNotifier(barkSvc)
	drafting.NewHandler(draftSvc, a.autosaver).RegisterRoutes(api, authMW)

	// Background task polling
	tasks.NewHandler(taskSvc).RegisterRoutes(api, authMW)
}
