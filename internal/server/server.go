package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/oscar-bek/Telegram-clone/internal/router"
	"github.com/oscar-bek/Telegram-clone/internal/server/middleware"
	"github.com/oscar-bek/Telegram-clone/pkg/call"
	"github.com/oscar-bek/Telegram-clone/pkg/config"
	"github.com/oscar-bek/Telegram-clone/pkg/presence"
	"github.com/oscar-bek/Telegram-clone/pkg/transport"
)

// App is the gateway: it owns the HTTP server, the connection lifecycle, and
// the background sweep for expired ringing calls.
type App struct {
	logger      *slog.Logger
	registry    *presence.Registry
	calls       *call.Store
	eventRouter *router.Router
	wg          sync.WaitGroup
	http        *http.Server
	config      *config.Config

	ctx context.Context
}

func NewApp(logger *slog.Logger, rootCtx context.Context, cfg *config.Config) *App {
	registry := presence.NewRegistry(logger)
	calls := call.NewStore(logger, cfg.Call.RingTimeout)
	eventRouter := router.New(logger, registry, calls)

	app := &App{
		logger:      logger,
		registry:    registry,
		calls:       calls,
		eventRouter: eventRouter,
		config:      cfg,
		ctx:         rootCtx,
	}

	mux := http.NewServeMux()
	upgradeHandler := http.HandlerFunc(app.upgradeHandler)
	// Cycling closes the user's existing connection so the new one can take
	// over; the registry supersede on re-association covers the same ground,
	// but cycling frees the slot before the upgrade is admitted.
	connCycler := func(userID string) {
		if rec, found := registry.Lookup(userID); found {
			logger.Info("Cycling connection: closing existing", "userID", userID, "connID", rec.ID)
			rec.Transport.Close(errors.New("connection cycled by new connection"))
		}
	}

	// Auth must run before the limiter: the limiter keys on the
	// authenticated identity.
	mux.Handle("/ws",
		middleware.Chain(upgradeHandler,
			middleware.RequestMetadataMiddleware(),
			middleware.NewRequestLogger(app.logger),
			middleware.NewAuthMiddleware(logger, app.config.Server.Auth.JWTSecret),
			middleware.NewConnectionLimiter(
				logger,
				registry.Count,
				connCycler,
				app.config.Server.ConnectionLimit,
			),
		),
	)

	app.http = &http.Server{Addr: app.config.Server.Address, Handler: mux, BaseContext: func(l net.Listener) context.Context {
		return app.ctx
	}}

	return app
}

func (a *App) Run() error {
	go func() {
		a.logger.Info("Server starting", slog.String("addr", a.http.Addr))
		if err := a.http.ListenAndServe(); err != http.ErrServerClosed {
			a.logger.Error("HTTP server failed", slog.Any("error", err))
		}
	}()

	go a.sweepRingingCalls()

	<-a.ctx.Done()
	return a.Shutdown()
}

// sweepRingingCalls periodically fails ringing sessions that nobody answered.
func (a *App) sweepRingingCalls() {
	if a.config.Call.RingTimeout <= 0 {
		return
	}
	interval := a.config.Call.SweepInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case now := <-ticker.C:
			a.eventRouter.ExpireRingingCalls(now)
		case <-a.ctx.Done():
			return
		}
	}
}

func (a *App) upgradeHandler(w http.ResponseWriter, r *http.Request) {
	reqMeta, _ := middleware.ReqMetadataFrom(r.Context())
	connLogger := a.logger.With(
		slog.String("remoteAddr", reqMeta.IP),
		slog.String("userID", reqMeta.UserID),
	)

	wsConn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		a.logger.Error("Failed to accept websocket connection", slog.Any("error", err))
		return
	}

	conn := transport.NewConnection(
		r.Context(),
		&a.wg,
		wsConn,
		transport.ConnectionConfig(a.config.Transport),
		a.logger,
	)
	// Register the transport; the connection stays unaddressable until the
	// client associates via addOnlineUser.
	if _, err := a.registry.Register(conn, reqMeta.UserID, reqMeta.IP); err != nil {
		connLogger.Error("Failed to register connection", slog.Any("error", err))
		conn.Close(err)
		return
	}
	conn.SetOnMessageHandler(a.eventRouter.HandleMessage)
	conn.SetOnCloseHandler(a.eventRouter.HandleDisconnect)

	connLogger.Info("Connection established, awaiting association")
	conn.Run()
	<-conn.Done()
}

// Shutdown runs the graceful shutdown sequence.
func (a *App) Shutdown() error {
	a.logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.http.Shutdown(shutdownCtx); err != nil {
		return err
	}

	// Close all active WebSocket connections.
	a.logger.Info("Closing all active connections...")
	for _, conn := range a.registry.Connections() {
		conn.Close(errors.New("graceful shutdown"))
	}

	// Wait for all connection goroutines to finish their cleanup.
	a.wg.Wait()
	a.logger.Info("Server shut down gracefully.")
	return nil
}
