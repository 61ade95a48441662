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
	"syscall"
	"time"

	adactor "github.com/nijel/pvgis2mqtt/internal/adapter/actor"
	"github.com/nijel/pvgis2mqtt/internal/adapter/store"
	"github.com/nijel/pvgis2mqtt/internal/adapter/weather"
	"github.com/nijel/pvgis2mqtt/internal/config"
	"github.com/nijel/pvgis2mqtt/internal/core/actor"
	"github.com/nijel/pvgis2mqtt/internal/server"
	"github.com/nijel/pvgis2mqtt/internal/util/actorutil"
	"github.com/nijel/pvgis2mqtt/pkg/pvgis"

	pactor "github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
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

	// load and print config
	cfg, err := initConfig()
	if err != nil {
		slog.Error("config errors", "error", err)
		return
	}
	safePrintConfig(*cfg)

	// zap logger
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)

	logger := zap.Must(zapCfg.Build())

	// init actor system
	as := actorutil.NewActorSystemWithZapLogger(logger)
	ctx := as.Root

	defer logger.Sync()

	stateStore := store.NewFileStateStore(cfg.StateFile, logger)

	props := pactor.PropsFromProducer(func() pactor.Actor {
		return actor.NewMasterOfPuppetsActor(*cfg, pvgisActorProvider(cfg, logger),
			weatherActorProvider(cfg, logger), mqttActorProvider(cfg, logger), stateStore, logger)
	})
	pid, err := ctx.SpawnNamed(props, "master")
	if err != nil {
		return
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

	ctx.Stop(pid)
	as.Shutdown()
}

func initConfig() (*config.Config, error) {

	// alias PORT => PVGIS2MQTT_PORT
	if port := os.Getenv("PORT"); port != "" {
		os.Setenv("PVGIS2MQTT_PORT", port)
	}

	setConfigDefaults()

	viper.SetEnvPrefix("pvgis2mqtt")
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

	// check and fix base topic
	baseTopic, err := config.CheckMQTTTopic(cfg.MQTT.BaseTopic)
	if err != nil {
		return nil, errors.New("invalid base topic. can only contain letters, numbers and underscores")
	}
	cfg.MQTT.BaseTopic = baseTopic

	// check and fix homeassistant discovery topic
	hadBaseTopic, err := config.CheckMQTTTopic(cfg.MQTT.HADiscoveryTopic)
	if err != nil {
		return nil, errors.New("invalid homeassistant discovery topic. can only contain letters, numbers and underscores")
	}
	cfg.MQTT.HADiscoveryTopic = hadBaseTopic

	// check and normalize solar arrays
	arrays, err := config.CheckArrays(cfg.Arrays)
	if err != nil {
		return nil, err
	}
	cfg.Arrays = arrays

	// check bounds
	if cfg.Location.Latitude < -90 || cfg.Location.Latitude > 90 {
		return nil, errors.New("config param location.latitude must be between -90 and 90")
	}
	if cfg.Location.Longitude < -180 || cfg.Location.Longitude > 180 {
		return nil, errors.New("config param location.longitude must be between -180 and 180")
	}
	if cfg.ForecastConfig.Days < 1 {
		return nil, errors.New("config param forecast.days should be >= 1")
	}
	if cfg.ForecastConfig.RefreshIntervalMinutes < 1 {
		return nil, errors.New("config param forecast.refresh_interval_minutes should be >= 1")
	}
	if cfg.ForecastConfig.StartupRetryMinutes < 1 {
		return nil, errors.New("config param forecast.startup_retry_minutes should be >= 1")
	}
	if cfg.ForecastConfig.PVGISRefreshDays < 1 {
		return nil, errors.New("config param forecast.pvgis_refresh_days should be >= 1")
	}
	if cfg.ForecastConfig.HistoricalDays < 1 {
		return nil, errors.New("config param forecast.historical_days should be >= 1")
	}
	if cfg.WeatherConfig.SecondaryEnable && cfg.WeatherConfig.SecondaryURL == "" {
		return nil, errors.New("config param weather.secondary_url is required when weather.secondary_enable is set")
	}

	return &cfg, nil
}

func pvgisActorProvider(cfg *config.Config, logger *zap.Logger) actor.PVGISActorProvider {
	client := pvgis.CreateHTTPClient(nil)
	return func() *adactor.PVGISActor {
		return adactor.NewPVGISActor(cfg, client, logger)
	}
}

func weatherActorProvider(cfg *config.Config, logger *zap.Logger) actor.WeatherActorProvider {
	var primary, secondary weather.Provider
	if cfg.WeatherConfig.Enable {
		primary = weather.NewOpenMeteoProvider("open-meteo", weather.OpenMeteoURL,
			cfg.Location.Latitude, cfg.Location.Longitude, cfg.ForecastConfig.Days, nil, logger)
		if cfg.WeatherConfig.SecondaryEnable {
			secondary = weather.NewOpenMeteoProvider("secondary", cfg.WeatherConfig.SecondaryURL,
				cfg.Location.Latitude, cfg.Location.Longitude, cfg.ForecastConfig.Days, nil, logger)
		}
	}
	return func() *adactor.WeatherActor {
		return adactor.NewWeatherActor(cfg.WeatherConfig.Enable, primary, secondary, logger)
	}
}

func mqttActorProvider(cfg *config.Config, logger *zap.Logger) actor.MQTTActorProvider {
	return func(eventStream *eventstream.EventStream) *adactor.MQTTActor {
		return adactor.NewMQTTActor(cfg, eventStream, logger)
	}
}

func setConfigDefaults() {
	viper.SetDefault("log_level", "warn")
	viper.SetDefault("mqtt.ha_discovery_enable", false)
	viper.SetDefault("mqtt.base_topic", "pvgis2mqtt")
	viper.SetDefault("mqtt.ha_discovery_topic", "homeassistant")
	viper.SetDefault("weather.enable", true)
	viper.SetDefault("forecast.days", 7)
	viper.SetDefault("forecast.refresh_interval_minutes", 30)
	viper.SetDefault("forecast.startup_retry_minutes", 1)
	viper.SetDefault("forecast.pvgis_refresh_days", 30)
	viper.SetDefault("forecast.historical_days", 7)
	viper.SetDefault("state_file", "data/state.json")
	viper.SetDefault("port", 8080)
}

func safePrintConfig(cfg config.Config) {
	cfg.MQTT.Username = "*redacted*"
	cfg.MQTT.Password = "*redacted*"
	slog.Info("Using", "config", cfg)
}
