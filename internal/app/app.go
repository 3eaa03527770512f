package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"launchpad/internal/autosave"
	"launchpad/internal/cache"
	"launchpad/internal/config"
	"launchpad/internal/form"
	"launchpad/internal/logger"
	"launchpad/internal/repository"
	"launchpad/internal/service"
	"launchpad/internal/transport/rest"
	"launchpad/internal/transport/ws"
)

const (
	pingTimeout = 5 * time.Second
	maxRules    = 1024
)

// App holds the wired service
type App struct {
	Config *config.Config
	Log    logger.Logger

	Mongo *mongo.Client
	Redis *redis.Client

	SubmissionRepo repository.SubmissionRepo
	FlushJournal   repository.FlushJournalRepo
	SessionCache   cache.SessionCache

	Backend  *service.BackendClient
	Auth     *service.AuthService
	Sessions *service.SessionManager
	Hub      *ws.Hub
}

// ConnectMongo opens a client and pings it.
func ConnectMongo(ctx context.Context, cfg config.MongoConfig) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return client, nil
}

func ConnectRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}

// New connects the stores and builds every service. Close releases them.
func New(ctx context.Context, cfg *config.Config, log logger.Logger) (*App, error) {
	mongoClient, err := ConnectMongo(ctx, cfg.Mongo)
	if err != nil {
		return nil, err
	}
	log.Infow("connected to mongo", "database", cfg.Mongo.Database)

	rdb, err := ConnectRedis(ctx, cfg.Redis)
	if err != nil {
		_ = mongoClient.Disconnect(context.Background())
		return nil, err
	}
	log.Infow("connected to redis", "addr", cfg.Redis.Addr)

	rules, err := form.NewRuleSet(maxRules)
	if err != nil {
		_ = rdb.Close()
		_ = mongoClient.Disconnect(context.Background())
		return nil, fmt.Errorf("rule cache: %w", err)
	}

	db := mongoClient.Database(cfg.Mongo.Database)
	a := &App{
		Config:         cfg,
		Log:            log,
		Mongo:          mongoClient,
		Redis:          rdb,
		SubmissionRepo: repository.NewSubmissionRepo(db),
		FlushJournal:   repository.NewFlushJournalRepo(db),
		SessionCache:   cache.NewSessionCache(rdb, cfg.Session.SnapshotTTL),
		Backend:        service.NewBackendClient(cfg.Backend, log),
		Auth:           service.NewAuthService(cfg.Auth.JWTSecret),
		Hub:            ws.NewHub(log),
	}

	opts := autosave.Options{
		FieldDebounce:    cfg.Autosave.FieldDebounce,
		FileDebounce:     cfg.Autosave.FileDebounce,
		StatusResetAfter: cfg.Autosave.StatusResetAfter,
		RequestTimeout:   cfg.Autosave.RequestTimeout,
		RestoreOnFailure: cfg.Autosave.RestoreOnFailure,
		Logger:           log,
	}
	if cfg.Autosave.DistributedLock {
		opts.Guard = cache.NewFlushLock(rdb, 2*cfg.Autosave.RequestTimeout)
	}

	a.Sessions = service.NewSessionManager(
		a.Backend,
		a.SessionCache,
		a.SubmissionRepo,
		a.FlushJournal,
		rules,
		service.SessionManagerConfig{
			Autosave:  opts,
			IdleTTL:   cfg.Session.IdleTTL,
			SweepSpec: cfg.Session.SweepSpec,
		},
		log,
	)
	a.Sessions.SetBroadcaster(a.Hub)
	return a, nil
}

// Router builds the HTTP handler for the REST and WebSocket endpoints.
func (a *App) Router() http.Handler {
	wsHandler := ws.NewHandler(a.Hub, a.Auth, a.Sessions, originChecker(a.Config.CORS.AllowedOrigins), a.Log)
	return rest.NewRouter(&rest.Container{
		AuthService:    a.Auth,
		Sessions:       a.Sessions,
		WSHandler:      wsHandler,
		AllowedOrigins: a.Config.CORS.AllowedOrigins,
	})
}

// Close stops the sessions first so their pending drafts reach Redis
// before the clients go away.
func (a *App) Close(ctx context.Context) {
	a.Sessions.Stop(ctx)
	a.Hub.Stop()
	if err := a.Redis.Close(); err != nil {
		a.Log.Warnw("close redis", "error", err)
	}
	if err := a.Mongo.Disconnect(ctx); err != nil {
		a.Log.Warnw("disconnect mongo", "error", err)
	}
}

// originChecker mirrors the CORS allow list for WebSocket upgrades.
// Requests without an Origin header are not from a browser and pass.
func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}
