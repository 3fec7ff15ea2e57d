package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"github.com/uber-go/tally"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/bitmark-inc/geoquest-agent/api"
	"github.com/bitmark-inc/geoquest-agent/capture"
	"github.com/bitmark-inc/geoquest-agent/external/camera"
	"github.com/bitmark-inc/geoquest-agent/external/geoinfo"
	"github.com/bitmark-inc/geoquest-agent/external/heic"
	"github.com/bitmark-inc/geoquest-agent/external/metadata"
	"github.com/bitmark-inc/geoquest-agent/external/position"
	"github.com/bitmark-inc/geoquest-agent/external/streetview"
	client "github.com/bitmark-inc/geoquest-agent/external/submission"
	"github.com/bitmark-inc/geoquest-agent/geo"
	"github.com/bitmark-inc/geoquest-agent/logmodule"
	"github.com/bitmark-inc/geoquest-agent/safety"
	"github.com/bitmark-inc/geoquest-agent/store"
	"github.com/bitmark-inc/geoquest-agent/utils"
)

const (
	positionDriverMQTT = "mqtt"
	positionDriverNATS = "nats"
)

var (
	server     *api.Server
	mongoStore store.MongoStore
	closers    []io.Closer
)

func initLog() {
	logLevel, err := log.ParseLevel(viper.GetString("log.level"))
	if err != nil {
		log.SetLevel(log.DebugLevel)
	} else {
		log.SetLevel(logLevel)
	}

	log.SetOutput(os.Stdout)

	log.SetFormatter(&prefixed.TextFormatter{
		ForceFormatting: true,
		FullTimestamp:   true,
	})
}

func loadConfig(file string) {
	// values from .env are visible to viper through the environment
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Println("Cannot load .env:", err)
	}

	// Config from file
	viper.SetConfigType("yaml")
	if file != "" {
		viper.SetConfigFile(file)
	}

	viper.AddConfigPath("/.config/")
	viper.AddConfigPath(".")
	err := viper.ReadInConfig()
	if err != nil {
		fmt.Println("No config file. Read config from env.")
		viper.AllowEmptyEnv(false)
	}

	// Config from env if possible
	viper.AutomaticEnv()
	viper.SetEnvPrefix("geoquest")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("server.port", 8080)
	viper.SetDefault("redis.ttl", 24*time.Hour)
	viper.SetDefault("streetview.radius", safety.PanoramaRadius)
	viper.SetDefault("streetview.timeout", safety.DefaultProbeTimeout)
	viper.SetDefault("camera.jpeg_quality", capture.DefaultJPEGQuality)
	viper.SetDefault("submission.timeout", 60*time.Second)
	viper.SetDefault("position.driver", positionDriverMQTT)
	viper.SetDefault("i18n.dir", "i18n")
	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.interval", time.Minute)
	viper.SetDefault("metrics.level", "info")
}

type closerFunc func() error

func (f closerFunc) Close() error {
	return f()
}

// newPositionSource connects the device position bus chosen by position.driver
func newPositionSource() (position.Source, error) {
	switch driver := viper.GetString("position.driver"); driver {
	case positionDriverMQTT:
		source, err := position.NewMQTTSource(position.MQTTConfig{
			Broker:       viper.GetString("position.mqtt.broker"),
			ClientID:     viper.GetString("position.mqtt.client_id"),
			Topic:        viper.GetString("position.mqtt.topic"),
			ControlTopic: viper.GetString("position.mqtt.control_topic"),
		})
		if err != nil {
			return nil, err
		}
		closers = append(closers, source)
		return source, nil

	case positionDriverNATS:
		nc, err := nats.Connect(viper.GetString("position.nats.url"))
		if err != nil {
			return nil, err
		}
		source, err := position.NewNATSSource(nc,
			viper.GetString("position.nats.subject"),
			viper.GetString("position.nats.control_subject"))
		if err != nil {
			nc.Close()
			return nil, err
		}
		closers = append(closers, source, closerFunc(func() error {
			nc.Close()
			return nil
		}))
		return source, nil

	default:
		return nil, fmt.Errorf("unknown position driver %q", driver)
	}
}

// newPlaceResolver chains google reverse geocoding with the curated places
// in mongodb, cached in redis when it is configured
func newPlaceResolver(cache store.Cache) (geo.PlaceResolver, error) {
	var resolvers []geo.PlaceResolver

	if key := viper.GetString("map.apikey"); key != "" {
		g, err := geoinfo.New(key)
		if err != nil {
			return nil, err
		}
		resolvers = append(resolvers, geo.NewGeocodingPlaceResolver(g))
	}

	if mongoStore != nil {
		resolvers = append(resolvers, geo.NewMongodbPlaceResolver(mongoStore, viper.GetFloat64("mongo.place_distance")))
	}

	var resolver geo.PlaceResolver = geo.NewMultiplePlaceResolver(resolvers...)
	if cache != nil {
		resolver = geo.NewCachedPlaceResolver(resolver, cache, viper.GetDuration("redis.ttl"))
	}
	return resolver, nil
}

func main() {
	var configFile string

	initialCtx, cancelInitialization := context.WithCancel(context.Background())

	c := make(chan os.Signal, 2)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-c
		log.Info("Agent is preparing to shutdown")

		if initialCtx != nil && cancelInitialization != nil {
			log.Info("Cancelling initialization")
			cancelInitialization()
			<-initialCtx.Done()
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if server != nil {
			log.Info("Shutdown api server")
			if err := server.Shutdown(ctx); err != nil {
				log.Error("Server Shutdown:", err)
			}
		}

		for _, closer := range closers {
			if err := closer.Close(); err != nil {
				log.Error(err)
			}
		}

		if mongoStore != nil {
			log.Info("Shutting down db store")
			mongoStore.Close()
		}

		sentry.Flush(2 * time.Second)
		os.Exit(1)
	}()

	flag.StringVar(&configFile, "c", "./config.yaml", "[optional] path of configuration file")
	flag.Parse()

	loadConfig(configFile)

	initLog()

	httpClient := &http.Client{
		Timeout: 10 * time.Second,
	}

	// Sentry
	if err := sentry.Init(sentry.ClientOptions{
		Dsn:              viper.GetString("sentry.dsn"),
		AttachStacktrace: true,
		Environment:      viper.GetString("sentry.environment"),
		Dist:             viper.GetString("sentry.dist"),
	}); err != nil {
		log.Error(err)
	}
	log.WithField("prefix", "init").Info("Initialized sentry")

	if err := utils.InitI18NBundle(viper.GetString("i18n.dir")); err != nil {
		log.WithField("prefix", "init").WithError(err).Warn("messages are not localized")
	}

	var reporter tally.StatsReporter = tally.NullStatsReporter
	if viper.GetBool("metrics.enabled") {
		level, err := log.ParseLevel(viper.GetString("metrics.level"))
		if err != nil {
			level = log.InfoLevel
		}
		reporter = logmodule.NewStatsReporter("metrics", level)
	}
	scope, scopeCloser := tally.NewRootScope(tally.ScopeOptions{
		Prefix:   "geoquest",
		Tags:     map[string]string{},
		Reporter: reporter,
	}, viper.GetDuration("metrics.interval"))
	closers = append(closers, scopeCloser)

	// initialise mongodb connections
	if conn := viper.GetString("mongo.conn"); conn != "" {
		opts := options.Client().ApplyURI(conn)
		opts.SetMaxPoolSize(viper.GetUint64("mongo.pool"))
		mongoClient, err := mongo.Connect(initialCtx, opts)
		if nil != err {
			log.Panicf("connect mongo database with error: %s", err)
		}
		mongoStore = store.NewMongoStore(mongoClient, viper.GetString("mongo.database"))
		log.WithField("prefix", "init").Info("Connected mongo db")
	}

	var cache store.Cache
	if addr := viper.GetString("redis.conn"); addr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr: addr,
			DB:   viper.GetInt("redis.db"),
		})
		if err := redisClient.Ping(initialCtx).Err(); err != nil {
			log.WithField("prefix", "init").WithError(err).Warn("redis unavailable, cache disabled")
			redisClient.Close()
		} else {
			cache = store.NewRedisCache(redisClient)
			closers = append(closers, redisClient)
			log.WithField("prefix", "init").Info("Connected redis")
		}
	}

	resolver, err := newPlaceResolver(cache)
	if err != nil {
		log.Panic(err)
	}

	streetviewKey := viper.GetString("streetview.apikey")
	if streetviewKey == "" {
		streetviewKey = viper.GetString("map.apikey")
	}
	prober := streetview.New(streetviewKey, viper.GetString("streetview.url"), httpClient)
	if cache != nil {
		prober = streetview.NewCachedProber(prober, cache, viper.GetDuration("redis.ttl"))
	}

	classifier := safety.NewWithStrategies(resolver,
		safety.NewPanoramaStrategy(prober, viper.GetFloat64("streetview.radius"), viper.GetDuration("streetview.timeout")),
		safety.PlaceTypeStrategy{},
	)

	source, err := newPositionSource()
	if err != nil {
		log.Panicf("connect position source with error: %s", err)
	}
	log.WithField("prefix", "init").Infof("Position source: %s", viper.GetString("position.driver"))

	quality := viper.GetInt("camera.jpeg_quality")
	extractor := capture.NewExtractor(
		camera.NewSnapshotCamera(viper.GetString("camera.rear_url"), viper.GetString("camera.front_url"), httpClient),
		metadata.New(),
		heic.New(quality),
		quality,
		scope,
	)

	submitter := client.New(
		viper.GetString("submission.url"),
		viper.GetString("submission.token"),
		&http.Client{Timeout: viper.GetDuration("submission.timeout")},
	)

	var pinger store.Pinger
	if mongoStore != nil {
		pinger = mongoStore
	}

	// Init http server
	server = api.NewServer(pinger, source, extractor, classifier, submitter, scope)
	log.WithField("prefix", "init").Info("Initialized http server")

	// Remove initial context
	initialCtx = nil
	cancelInitialization = nil

	log.WithField("prefix", "init").Infof("Listening on port %d", viper.GetInt("server.port"))
	if err := server.Run(fmt.Sprintf(":%d", viper.GetInt("server.port"))); err != nil && err != http.ErrServerClosed {
		log.Panic(err)
	}
}
