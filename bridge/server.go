package bridge

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/asaskevich/EventBus"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"golang.org/x/sync/errgroup"

	"github.com/smartvideo/ytdlp-bridge/bridge/archive"
	"github.com/smartvideo/ytdlp-bridge/bridge/config"
	"github.com/smartvideo/ytdlp-bridge/bridge/internal/correlation"
	"github.com/smartvideo/ytdlp-bridge/bridge/internal/nativemsg"
	"github.com/smartvideo/ytdlp-bridge/bridge/internal/videos"
	middlewares "github.com/smartvideo/ytdlp-bridge/bridge/middleware"
	"github.com/smartvideo/ytdlp-bridge/bridge/orchestrator"
	"github.com/smartvideo/ytdlp-bridge/bridge/progress"
	"github.com/smartvideo/ytdlp-bridge/bridge/rest"
	"github.com/smartvideo/ytdlp-bridge/bridge/settings"
	"github.com/smartvideo/ytdlp-bridge/bridge/user"

	bolt "go.etcd.io/bbolt"
	_ "modernc.org/sqlite"
)

type serverConfig struct {
	bus      EventBus.Bus
	channel  *nativemsg.Channel
	session  *videos.Session
	orc      *orchestrator.Orchestrator
	archive  *archive.Service
	settings *settings.Store
}

func Run(ctx context.Context) error {
	conf := config.Instance()

	dbPath := filepath.Join(conf.Paths.LocalDatabasePath, "bolt.db")

	boltdb, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return err
	}
	defer boltdb.Close()

	settingsStore, err := settings.NewStore(boltdb)
	if err != nil {
		return err
	}

	sqldb, err := sql.Open("sqlite", filepath.Join(conf.Paths.LocalDatabasePath, "archive.db"))
	if err != nil {
		return err
	}
	defer sqldb.Close()

	archiveService, err := archive.New(sqldb)
	if err != nil {
		return err
	}

	archiver := archive.NewArchiver(archiveService)
	go archiver.Run(ctx)

	var (
		bus      = EventBus.New()
		registry = correlation.NewRegistry()
	)

	channel := nativemsg.NewChannel(func() (nativemsg.Transport, error) {
		return nativemsg.NewStdioTransport(conf.Paths.HelperPath, conf.Paths.HelperArgs...)
	}, registry, bus)

	session := videos.NewSession()
	orc := orchestrator.New(channel, session, settingsStore, archiver, bus)

	srv := newServer(serverConfig{
		bus:      bus,
		channel:  channel,
		session:  session,
		orc:      orc,
		archive:  archiveService,
		settings: settingsStore,
	})

	var (
		network = "tcp"
		address = fmt.Sprintf("%s:%d", conf.Server.Host, conf.Server.Port)
	)

	// support unix sockets
	if strings.HasPrefix(conf.Server.Host, "/") {
		network = "unix"
		address = conf.Server.Host
	}

	listener, err := net.Listen(network, address)
	if err != nil {
		slog.Error("failed to listen", slog.String("err", err.Error()))
		return err
	}

	slog.Info("ytdlp-bridge started", slog.String("address", address))

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.Serve(listener); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		slog.Info("shutdown signal received")

		channel.Close()
		return srv.Shutdown(context.Background())
	})

	return g.Wait()
}

func newServer(c serverConfig) *http.Server {
	r := chi.NewRouter()

	corsMiddleware := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodPatch,
			http.MethodDelete,
		},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	r.Use(corsMiddleware.Handler)

	// Authentication routes
	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", user.Login)
		r.Get("/logout", user.Logout)
	})

	// REST API handlers
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middlewares.ApplyAuthenticationByConfig)
		rest.ApplyRouter(&rest.ContainerArgs{
			Orchestrator: c.orc,
			Session:      c.session,
			Archive:      c.archive,
			Settings:     c.settings,
		})(r)
	})

	// Progress push for UI surfaces
	r.Route("/progress", func(r chi.Router) {
		r.Use(middlewares.ApplyAuthenticationByConfig)
		r.Get("/ws", progress.WebSocket(progress.NewHub(c.bus)))
	})

	return &http.Server{Handler: r}
}
