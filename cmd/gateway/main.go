package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/agrisense/geogateway/apiclient"
	"github.com/agrisense/geogateway/auth"
	"github.com/agrisense/geogateway/internal/config"
	"github.com/agrisense/geogateway/server"
	"github.com/agrisense/geogateway/session"
	"github.com/agrisense/geogateway/tiles"
	"github.com/agrisense/geogateway/token"
	"github.com/agrisense/geogateway/users"
	"github.com/agrisense/geogateway/users/repomemory"
)

func main() {
	log := newLogger()
	for {
		if err := run(log); err != nil {
			log.Error().Err(err).Msg("gateway exited with error")
			time.Sleep(1 * time.Second)
		} else {
			break
		}
	}
	log.Info().Msg("gateway stopped")
}

func run(log zerolog.Logger) (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("recovered from panic")
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "[run] config load")
	}

	if cfg.IsDev() {
		log = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
		displayAppname(cfg.AppName)
	}

	httpServer, cleanup, err := buildServer(cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	go listenAndServe(log, httpServer)
	waitForStopSignal()
	return shutdown(httpServer)
}

func buildServer(cfg *config.Config, log zerolog.Logger) (*http.Server, func(), error) {
	issuer, err := token.NewIssuer(
		token.NewHMACSigner(cfg.Auth.JWTSecret),
		cfg.Auth.Issuer,
		cfg.Auth.Audience,
		token.WithTokenExpiry(cfg.Auth.AccessTokenExpiry, cfg.Auth.RefreshTokenExpiry),
	)
	if err != nil {
		return nil, nil, errors.Wrap(err, "[buildServer] token issuer")
	}

	userRepo := repomemory.NewUserRepo()
	if err := bootstrapAdmin(cfg, userRepo, log); err != nil {
		return nil, nil, err
	}

	authService, err := auth.NewService(userRepo, issuer, auth.WithLogger(log))
	if err != nil {
		return nil, nil, errors.Wrap(err, "[buildServer] auth service")
	}

	dataAPI, err := apiclient.NewClient(cfg.DataAPI.BaseURL,
		apiclient.WithTimeout(cfg.DataAPI.RequestTimeout),
		apiclient.WithLogger(log),
	)
	if err != nil {
		return nil, nil, errors.Wrap(err, "[buildServer] data API client")
	}

	sessions, err := session.NewManager(authService, dataAPI,
		session.WithRefreshTimeout(cfg.Auth.RefreshTimeout),
		session.WithLogger(log),
	)
	if err != nil {
		return nil, nil, errors.Wrap(err, "[buildServer] session manager")
	}

	tileStore, closeStore, err := newTileStore(cfg)
	if err != nil {
		return nil, nil, errors.Wrap(err, "[buildServer] tile store")
	}

	tileClient, err := tiles.NewClient(tiles.ClientConfig{
		BaseURL:  cfg.Tiles.BaseURL,
		APIKey:   cfg.Tiles.APIKey,
		MapType:  cfg.Tiles.MapType,
		Language: cfg.Tiles.Language,
		Region:   cfg.Tiles.Region,
	},
		tiles.WithClientTimeout(cfg.Tiles.RequestTimeout),
		tiles.WithClientLogger(log),
	)
	if err != nil {
		closeStore()
		return nil, nil, errors.Wrap(err, "[buildServer] tile client")
	}

	tileCache, err := tiles.NewCache(tileClient, tileStore, tiles.WithCacheLogger(log))
	if err != nil {
		closeStore()
		return nil, nil, errors.Wrap(err, "[buildServer] tile cache")
	}

	srv, err := server.New(cfg, log, server.Deps{
		Auth:     authService,
		Sessions: sessions,
		Issuer:   issuer,
		Users:    userRepo,
		Tiles:    tileCache,
		DataAPI:  dataAPI,
	})
	if err != nil {
		closeStore()
		return nil, nil, errors.Wrap(err, "[buildServer] server")
	}

	return &http.Server{Addr: cfg.Addr(), Handler: srv}, closeStore, nil
}

func newTileStore(cfg *config.Config) (tiles.Store, func(), error) {
	switch cfg.Tiles.StoreBackend {
	case "badger":
		store, err := tiles.OpenBadgerStore(cfg.Tiles.StorePath)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	default:
		return tiles.NewMemoryStore(), func() {}, nil
	}
}

// bootstrapAdmin seeds the initial admin account. Skipped when no admin
// password is configured.
func bootstrapAdmin(cfg *config.Config, repo users.UserRepo, log zerolog.Logger) error {
	if cfg.Admin.Password == "" {
		log.Warn().Msg("no admin password configured, skipping admin bootstrap")
		return nil
	}

	if err := users.ValidatePasswordStrength(cfg.Admin.Password); err != nil {
		return errors.Wrap(err, "[bootstrapAdmin] admin password")
	}

	hash, err := users.HashPassword(cfg.Admin.Password)
	if err != nil {
		return errors.Wrap(err, "[bootstrapAdmin] hash password")
	}

	admin := &users.User{
		ID:           uuid.New().String(),
		Email:        cfg.Admin.Email,
		Username:     "admin",
		PasswordHash: hash,
		DateJoined:   time.Now().UTC(),
		Roles:        []users.RoleType{users.RoleAdmin},
		Verified:     true,
	}

	if err := repo.Upsert(admin); err != nil {
		return errors.Wrap(err, "[bootstrapAdmin] upsert")
	}

	log.Info().Str("email", admin.Email).Msg("admin account bootstrapped")
	return nil
}

func newLogger() zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	return zerolog.New(os.Stderr).With().Timestamp().Str("service", "geogateway").Logger()
}

func listenAndServe(log zerolog.Logger, srv *http.Server) {
	log.Info().Str("addr", srv.Addr).Msg("gateway listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error().Err(err).Msg("listen and serve")
	}
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func shutdown(srv *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return errors.Wrap(err, "[shutdown] server shutdown")
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
