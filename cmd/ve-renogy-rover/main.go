package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	adactor "github.com/sebmartin/ve-renogy-rover/internal/adapter/actor"
	"github.com/sebmartin/ve-renogy-rover/internal/config"
	"github.com/sebmartin/ve-renogy-rover/internal/core/actor"
	"github.com/sebmartin/ve-renogy-rover/internal/core/domain"
	"github.com/sebmartin/ve-renogy-rover/internal/core/store"
	"github.com/sebmartin/ve-renogy-rover/internal/server"
	"github.com/sebmartin/ve-renogy-rover/internal/settings"
	"github.com/sebmartin/ve-renogy-rover/internal/util/actorutil"
	"github.com/sebmartin/ve-renogy-rover/pkg/rover_modbus"
	"github.com/sebmartin/ve-renogy-rover/pkg/vedbus"

	pactor "github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/carlmjohnson/versioninfo"
	"github.com/godbus/dbus/v5"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func gracefulShutdown(apiServer *http.Server, done chan bool) {
	// Create context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Listen for the interrupt signal.
	<-ctx.Done()

	log.Println("shutting down gracefully, press Ctrl+C again to force")

	// The context is used to inform the server it has 5 seconds to finish
	// the request it is currently handling
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown with error: %v", err)
	}

	log.Println("Server exiting")

	// Notify the main goroutine that the shutdown is complete
	done <- true
}

func main() {

	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [--debug] <device>\n", os.Args[0])
		pflag.PrintDefaults()
	}
	debug := pflag.Bool("debug", false, "force debug log level")
	pflag.Parse()

	// load and print config
	cfg, err := initConfig()
	if err != nil {
		slog.Error("config errors", "error", err)
		os.Exit(1)
	}

	// serial-starter passes the tty as the only argument
	if pflag.NArg() > 0 {
		cfg.Device.Path = pflag.Arg(0)
	}
	devicePath, err := config.CheckDevicePath(cfg.Device.Path)
	if err != nil {
		pflag.Usage()
		os.Exit(2)
	}
	cfg.Device.Path = devicePath
	if *debug {
		cfg.LogLevel = zap.DebugLevel
	}

	identity, err := domain.IdentityFromDevicePath(cfg.Device.Path)
	if err != nil {
		slog.Error("unsupported device", "error", err)
		os.Exit(2)
	}

	slog.Info("Using", "config", *cfg)
	slog.Info("Starting", "version", versioninfo.Short(), "service", identity.ServiceName,
		"instance", identity.DeviceInstance)

	// zap logger
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)

	logger := zap.Must(zapCfg.Build())

	// init actor system
	as := actorutil.NewActorSystemWithZapLogger(logger)
	ctx := as.Root

	defer logger.Sync()

	// custom name and identity cache survive restarts here
	sett := settings.NewStore(cfg.SettingsPath, logger)

	// init rover actor provider
	roverProv, err := roverActorProvider(cfg, logger)
	if err != nil {
		panic(err)
	}

	conn, err := connectBus(cfg.DBus.UseSessionBus)
	if err != nil {
		logger.Error("could not connect to the d-bus daemon", zap.Error(err))
		os.Exit(1)
	}
	defer conn.Close()

	props := pactor.PropsFromProducer(func() pactor.Actor {
		return actor.NewMasterOfPuppetsActor(*cfg, identity, sett, roverProv,
			dbusActorProvider(conn, identity, logger), logger)
	})
	pid, err := ctx.SpawnNamed(props, domain.ACTOR_ID_MASTER)
	if err != nil {
		panic(err)
	}

	server := server.NewServer(*cfg, ctx, pid)
	// Create a done channel to signal when the shutdown is complete
	done := make(chan bool, 1)

	// Run graceful shutdown in a separate goroutine
	go gracefulShutdown(server, done)

	err = server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		panic(fmt.Sprintf("http server error: %s", err))
	}

	// Wait for the graceful shutdown to complete
	<-done
	log.Println("Graceful shutdown complete.")

	// stopping the tree releases the bus name before the connection closes
	ctx.StopFuture(pid).Wait()
	as.Shutdown()
}

func initConfig() (*config.Config, error) {

	// alias PORT => ROVER_PORT
	if port := os.Getenv("PORT"); port != "" {
		os.Setenv("ROVER_PORT", port)
	}

	setConfigDefaults()

	viper.SetEnvPrefix("rover")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// if defined, try to load config from yaml file
	if cfgFile := os.Getenv("CONFIG_FILE"); cfgFile != "" {
		if _, err := os.Stat(cfgFile); err == nil {
			slog.Info("Using config", "file", cfgFile)
			viper.SetConfigFile(cfgFile)

			err = viper.ReadInConfig()
			if err != nil {
				slog.Error("Error reading config file", "error", err)
			}
		}
	}

	var cfg config.Config

	err := viper.Unmarshal(&cfg)
	if err != nil {
		return nil, err
	}

	// parse log level
	switch viper.GetString("log_level") {
	case "trace":
		cfg.LogLevel = zap.DebugLevel
	case "debug":
		cfg.LogLevel = zap.DebugLevel
	case "info":
		cfg.LogLevel = zap.InfoLevel
	case "error":
		cfg.LogLevel = zap.ErrorLevel
	case "warn":
		cfg.LogLevel = zap.WarnLevel
	case "fatal":
		cfg.LogLevel = zap.FatalLevel
	default:
		cfg.LogLevel = zap.InfoLevel
	}

	// check bounds
	if cfg.Device.UnitId < 1 || cfg.Device.UnitId > 247 {
		return nil, errors.New("config param device.unit_id must be between 1 and 247")
	}
	if cfg.Device.ReadTimeoutMillis < 100 {
		return nil, errors.New("config param device.read_timeout_millis should be >= 100")
	}
	if cfg.Monitor.PollIntervalMillis < 500 {
		return nil, errors.New("config param monitor.poll_interval_millis should be >= 500")
	}
	if cfg.Monitor.ReconnectDelayMillis < 100 {
		return nil, errors.New("config param monitor.reconnect_delay_millis should be >= 100")
	}
	if cfg.Monitor.ReconnectMaxDelayMillis < cfg.Monitor.ReconnectDelayMillis {
		return nil, errors.New("config param monitor.reconnect_max_delay_millis must be >= monitor.reconnect_delay_millis")
	}
	if cfg.SettingsPath == "" {
		return nil, errors.New("config param settings_path cannot be empty")
	}

	return &cfg, nil
}

func roverActorProvider(cfg *config.Config, logger *zap.Logger) (actor.RoverActorProvider, error) {

	reader, err := rover_modbus.CreateRoverModbusReader(cfg.Device.Path, uint8(cfg.Device.UnitId),
		time.Duration(cfg.Device.ReadTimeoutMillis)*time.Millisecond, logger, nil)

	if err != nil {
		return nil, err
	}

	return func() *adactor.RoverActor {
		return adactor.NewRoverActor(reader, logger)
	}, nil
}

func dbusActorProvider(conn *dbus.Conn, identity domain.DeviceIdentity, logger *zap.Logger) actor.DBusActorProvider {
	factory := func(specs []vedbus.ItemSpec, onSet vedbus.SetValueFunc) (vedbus.ItemService, error) {
		return vedbus.NewVeDbusService(conn, identity.ServiceName, specs, onSet, logger)
	}
	return func(pathStore *store.PathStore, es *eventstream.EventStream) *adactor.DBusActor {
		return adactor.NewDBusActor(pathStore, es, factory, logger)
	}
}

func connectBus(useSessionBus bool) (*dbus.Conn, error) {
	if useSessionBus {
		return dbus.ConnectSessionBus()
	}
	return dbus.ConnectSystemBus()
}

func setConfigDefaults() {
	viper.SetDefault("log_level", "info")
	viper.SetDefault("port", 8080)
	viper.SetDefault("http_log", false)
	viper.SetDefault("settings_path", "/data/renogy/rover.json")
	viper.SetDefault("device.unit_id", 1)
	viper.SetDefault("device.read_timeout_millis", 500)
	viper.SetDefault("monitor.poll_interval_millis", 1000)
	viper.SetDefault("monitor.reconnect_delay_millis", 1000)
	viper.SetDefault("monitor.reconnect_max_delay_millis", 30000)
	viper.SetDefault("dbus.use_session_bus", false)
}
