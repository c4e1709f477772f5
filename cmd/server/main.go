package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"medresponse/internal/aggregator"
	"medresponse/internal/config"
	"medresponse/internal/handlers"
	"medresponse/internal/services"
	storemongo "medresponse/internal/store/mongodb"
	"medresponse/pkg/cache"
	"medresponse/pkg/database"
	"medresponse/pkg/logger"
	"medresponse/pkg/maps"
	"medresponse/pkg/push"
	"medresponse/pkg/sms"
	"medresponse/pkg/storage"
	"medresponse/pkg/websocket"
	"medresponse/routes"

	"github.com/gin-gonic/gin"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	log, err := logger.NewLogger(&logger.Config{
		Level:  logger.LogLevel(cfg.App.LogLevel),
		Format: cfg.App.LogFormat,
		Output: "stdout",
	})
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mongodb, err := database.NewMongoDB(&database.DatabaseConfig{
		URI:            cfg.Database.URI,
		Database:       cfg.Database.Database,
		MaxPoolSize:    cfg.Database.MaxPoolSize,
		MinPoolSize:    cfg.Database.MinPoolSize,
		ConnectTimeout: cfg.Database.ConnectTimeout,
		SocketTimeout:  cfg.Database.SocketTimeout,
	})
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to MongoDB")
	}
	defer mongodb.Close()

	if err := mongodb.EnsureIndexes(ctx); err != nil {
		log.WithError(err).Warn("Failed to ensure indexes")
	}

	// Redis is optional. Without it ambulance lookups go straight to the
	// store on every enrichment pass.
	var redisCache *cache.RedisCache
	redisCache, err = cache.NewRedisCache(&cache.RedisConfig{
		Host:         cfg.Redis.Host,
		Port:         cfg.Redis.Port,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	})
	if err != nil {
		log.WithError(err).Warn("Redis unavailable, ambulance lookups will not be cached")
		redisCache = nil
	} else {
		defer redisCache.Close()
	}

	liveStore := storemongo.NewLiveStore(mongodb.Database, log)

	wsHandler := websocket.NewHandler(log)

	emergencyService := services.NewEmergencyService(
		liveStore,
		buildStorage(cfg, log),
		buildGeocoder(cfg, log),
		buildPush(cfg, log),
		buildSMS(cfg, log),
		firstOrEmpty(cfg.SMS.DispatchNumbers),
		log,
	)

	ambulanceReader := services.NewCachedAmbulanceReader(liveStore, redisCache, cfg.Dashboard.AmbulanceCacheTTL, log)
	agg := aggregator.NewAggregator(liveStore, log, aggregator.Config{
		StaleAfter: cfg.Dashboard.StaleAfter,
	})
	enricher := aggregator.NewEnricher(ambulanceReader, log, cfg.Dashboard.LookupTimeout)

	dashboardService := services.NewDashboardService(agg, enricher, liveStore, wsHandler.GetHub(), log)
	startDashboardFeeds(ctx, dashboardService, log)

	// Requester tracking feeds are opened per connected user rather than
	// globally; updates reach the user_<id> room through the hub.
	wsHandler.GetHub().SetUserFeed(func(userID string) (func(), error) {
		return dashboardService.SubscribeUserView(ctx, userID,
			func(*services.UserView) {},
			func(err error) {
				log.WithError(err).WithField("user_id", userID).Warn("User tracking feed error")
			})
	})

	emergencyHandler := handlers.NewEmergencyHandler(emergencyService)
	dashboardHandler := handlers.NewDashboardHandler(dashboardService)

	if config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	routes.Setup(router, emergencyHandler, dashboardHandler, wsHandler, log)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.App.Port),
		Handler: router,
	}

	go func() {
		log.WithField("port", cfg.App.Port).Info("Server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("Server failed")
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Graceful shutdown failed")
	}
}

// startDashboardFeeds opens the long-lived role subscriptions that keep the
// websocket rooms fed. Updates reach clients through the hub; the callbacks
// here only log.
func startDashboardFeeds(ctx context.Context, dashboards *services.DashboardService, log *logger.Logger) {
	onError := func(view string) func(error) {
		return func(err error) {
			log.WithError(err).WithField("view", view).Warn("Dashboard feed error")
		}
	}

	if _, err := dashboards.SubscribeHospitalView(ctx, func(*services.HospitalView) {}, onError("hospital")); err != nil {
		log.WithError(err).Error("Failed to start hospital feed")
	}
	if _, err := dashboards.SubscribePoliceView(ctx, services.PoliceViewOptions{}, func(*services.PoliceView) {}, onError("police")); err != nil {
		log.WithError(err).Error("Failed to start police feed")
	}
	if _, err := dashboards.SubscribeAdminView(ctx, func(*services.AdminView) {}, onError("admin")); err != nil {
		log.WithError(err).Error("Failed to start admin feed")
	}
}

func buildStorage(cfg *config.Config, log *logger.Logger) storage.StorageProvider {
	switch cfg.Storage.Provider {
	case "s3":
		provider, err := storage.NewAWSS3Storage(cfg.Storage.AWS.Region, cfg.Storage.AWS.Bucket, cfg.Storage.AWS.CDNDomain)
		if err != nil {
			log.WithError(err).Warn("S3 storage unavailable, falling back to local")
			break
		}
		return provider
	case "gcs":
		provider, err := storage.NewGCPStorage(cfg.Storage.GCP.Bucket, cfg.Storage.GCP.CredentialsFile, cfg.Storage.GCP.CDNDomain)
		if err != nil {
			log.WithError(err).Warn("GCS storage unavailable, falling back to local")
			break
		}
		return provider
	}

	provider, err := storage.NewLocalStorage(cfg.Storage.Local.BasePath, cfg.Storage.Local.BaseURL)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize local storage")
	}
	return provider
}

func buildGeocoder(cfg *config.Config, log *logger.Logger) maps.Geocoder {
	if cfg.Maps.GoogleMaps.APIKey == "" {
		log.Info("No maps API key, addresses will fall back to raw coordinates")
		return nil
	}

	geocoder, err := maps.NewGoogleGeocoder(cfg.Maps.GoogleMaps.APIKey, 0)
	if err != nil {
		log.WithError(err).Warn("Geocoder unavailable")
		return nil
	}
	return geocoder
}

func buildPush(cfg *config.Config, log *logger.Logger) push.PushProvider {
	if cfg.Push.FCM.Credentials == "" {
		log.Info("No FCM credentials, push notifications disabled")
		return nil
	}

	provider, err := push.NewFCMProvider(cfg.Push.FCM.Credentials)
	if err != nil {
		log.WithError(err).Warn("Push provider unavailable")
		return nil
	}
	return provider
}

func buildSMS(cfg *config.Config, log *logger.Logger) sms.SMSProvider {
	if cfg.SMS.Twilio.AccountSID == "" {
		log.Info("No Twilio credentials, dispatch SMS disabled")
		return nil
	}
	return sms.NewTwilioProvider(cfg.SMS.Twilio.AccountSID, cfg.SMS.Twilio.AuthToken, cfg.SMS.Twilio.FromNumber)
}

func firstOrEmpty(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}
