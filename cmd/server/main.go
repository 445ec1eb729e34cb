package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerfiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"open-blog/internal/api"
	"open-blog/internal/blog"
	"open-blog/internal/cache"
	"open-blog/internal/config"
	"open-blog/internal/database"
	"open-blog/internal/logging"
	"open-blog/internal/obfuscate"
	"open-blog/internal/permalink"
	"open-blog/internal/plugins"
	"open-blog/internal/rewrite"
	"open-blog/internal/routing"

	_ "open-blog/docs"
)

// @title           Open Blog Admin API
// @version         1.0
// @description     Route overrides, permalink settings, cache and plugin administration for the blog's URL dispatcher.

// @host      localhost:8080
// @BasePath  /admin/api

// @securityDefinitions.apikey  ApiKeyAuth
// @in                          header
// @name                        Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New("info", "text").Fatal(err)
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	log := logging.Component(logger, "server")

	db := database.New(cfg.DBPath)
	repo := database.NewRepository(db)
	store := cache.New(cfg.Cache.Capacity)

	// --- Permalinks ---
	obf := obfuscate.New(cfg.Permalink.Salt, cfg.Permalink.IDLength, store)
	codec := permalink.New(repo, obf, store, logging.Component(logger, "permalink"))
	pattern := cfg.Permalink.Pattern
	if saved, ok, err := repo.GetSetting(database.SettingArticleURLPattern); err != nil {
		log.WithError(err).Fatal("load permalink setting")
	} else if ok {
		pattern = saved
	}
	if err := codec.SetPattern(pattern); err != nil {
		log.WithError(err).WithField("pattern", pattern).Fatal("invalid permalink pattern")
	}

	// --- Route table: built-ins, overrides, plugins ---
	table := routing.NewTable(logging.Component(logger, "route-table"))
	site := blog.New(repo, codec, logging.Component(logger, "blog"))
	if err := site.Register(table); err != nil {
		log.WithError(err).Fatal("register built-in endpoints")
	}

	engineLog := logging.Component(logger, "rewrite-engine")
	engine := rewrite.New(table, repo, store, engineLog,
		rewrite.WithDebounce(cfg.Routes.Debounce),
		rewrite.WithTrailingRefresh(),
	)
	defer engine.Close()
	site.SetLinker(engine)
	if !engine.Force() {
		log.Error("initial route refresh failed, serving built-in paths only")
	}

	pluginLog := logging.Component(logger, "plugins")
	manager := plugins.NewManager(routing.NewRegistrar(table, pluginLog), repo, pluginLog)
	if err := manager.Register(plugins.NewSitemap(repo, codec)); err != nil {
		log.WithError(err).Fatal("register plugin")
	}
	if err := manager.Restore(); err != nil {
		log.WithError(err).Error("restore plugins")
	}

	// --- HTTP ---
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery(), logging.RequestID())

	h := api.New(api.Deps{
		Routes:   rewrite.NewService(repo, table, engine, engineLog),
		Engine:   engine,
		Table:    table,
		Codec:    codec,
		Settings: repo,
		Cache:    store,
		Plugins:  manager,
		Log:      logging.Component(logger, "api"),
	})
	h.RegisterHealthCheck(r)

	admin := r.Group("/admin/api")
	if cfg.APIKey != "" {
		admin.Use(api.APIKeyAuth(cfg.APIKey))
	} else {
		log.Warn("API_KEY not set, admin API is unauthenticated")
	}
	h.RegisterRoutes(admin)

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerfiles.Handler))

	// Everything else goes through the dynamic route table.
	r.NoRoute(table.ServeGin)

	// Graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{Addr: cfg.Addr, Handler: r}

	go func() {
		log.WithField("addr", cfg.Addr).Info("blog listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("listen")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("shutdown")
	}
	log.Info("blog stopped")
}
