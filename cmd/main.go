package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	"spabridge"
	"spabridge/internal/gateway"
	"spabridge/internal/handlers"
	"spabridge/internal/logger"
	"spabridge/internal/repository"
	"spabridge/internal/server"
	"spabridge/internal/service"

	"github.com/spf13/viper"
)

const loginTimeout = 30 * time.Second

func main() {
	// init logger
	log := logger.Get(logger.InfoLevel)

	// load config.yml
	if err := loadConfig(); err != nil {
		log.Fatalw("error reading config", "err", err)
	}

	// open DB
	db, err := openDB(log)
	if err != nil {
		log.Fatalw("failed to init sqlite", "err", err)
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			log.Fatalw("failed to close sqlite", "err", cerr)
		}
	}()

	repos := repository.NewRepository(db)

	// context for background goroutines
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// single login at startup; the session is not refreshed afterwards
	gw := gateway.NewClient(viper.GetString("cloud.base_url"), viper.GetDuration("cloud.timeout"))
	login, err := cloudLogin(ctx, gw, repos, log)
	if err != nil {
		log.Fatalw("cloud login failed", "err", err)
	}

	// wire dependencies
	services := service.NewService(repos, gw, service.Options{
		DeviceID:   login.DeviceID,
		CacheTTL:   viper.GetDuration("poll.cache_ttl"),
		SigningKey: viper.GetString("auth.signing_key"),
	}, log)
	apiHandler := handlers.NewHandler(services, log)

	// start poll loop (via composed service)
	go services.Poller.Run(ctx, viper.GetDuration("poll.interval"))

	// start HTTP server
	srv := &server.Server{}
	runHTTPServer(srv, viper.GetString("port"), apiHandler, log)

	// graceful shutdown
	waitForShutdown(cancel, srv, log)
}

func loadConfig() error {
	viper.AddConfigPath("configs") // configs/config.yml
	viper.SetConfigName("config")
	return viper.ReadInConfig()
}

// openDB initializes the SQLite database using configuration.
func openDB(log *logger.Logger) (*sql.DB, error) {
	dbPath := viper.GetString("db.path")
	if dbPath == "" {
		log.Infow("db.path not set in config; using default file", "default", "spabridge.db")
		dbPath = "spabridge.db"
	}
	return repository.InitDB(dbPath)
}

// cloudLogin authenticates against the vendor cloud and records the paired
// device in the registry.
func cloudLogin(ctx context.Context, gw *gateway.Client, repos *repository.Repository, log *logger.Logger) (gateway.LoginResult, error) {
	loginCtx, loginCancel := context.WithTimeout(ctx, loginTimeout)
	defer loginCancel()

	login, err := gw.Login(loginCtx,
		viper.GetString("cloud.username"),
		viper.GetString("cloud.password"),
		viper.GetString("cloud.lang"),
	)
	if err != nil {
		return gateway.LoginResult{}, err
	}

	log.Infow("cloud login ok", "device_id", login.DeviceID, "name", login.Name)

	if err := repos.Devices.Save(ctx, spabridge.Device{
		DeviceID: login.DeviceID,
		Name:     login.Name,
		Model:    login.Model,
	}); err != nil {
		// Registry is a cache; a failed write is not fatal.
		log.Warnw("failed to save device registry entry", "device_id", login.DeviceID, "err", err)
	}
	return login, nil
}

// runHTTPServer runs the HTTP server in a separate goroutine.
func runHTTPServer(srv *server.Server, port string, handler *handlers.Handler, log *logger.Logger) {
	go func() {
		if port == "" {
			port = "8080"
		}
		if err := srv.Run(port, handler.InitRoutes()); err != nil {
			log.Fatalw("error starting server", "err", err)
		}
	}()
}

// waitForShutdown listens for termination signals and performs graceful shutdown.
func waitForShutdown(cancel context.CancelFunc, srv *server.Server, log *logger.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Infow("shutting down server...")

	// stop background goroutines
	cancel()

	// allow in-flight requests to complete
	ctx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalw("server forced to shutdown", "err", err)
	}
}
