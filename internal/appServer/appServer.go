// launching the server, redis, mongo, storage, kafka
package appServer

import (
	"context"
	"crypto/tls"
	"log"

	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/HarshTuring/docklens/config"
	"github.com/HarshTuring/docklens/internal/database/mongodb"
	redisrepo "github.com/HarshTuring/docklens/internal/database/redis"
	"github.com/HarshTuring/docklens/internal/pkg/authclient"
	"github.com/HarshTuring/docklens/internal/pkg/fetcher"
	"github.com/HarshTuring/docklens/internal/pkg/kafka"
	"github.com/HarshTuring/docklens/internal/pkg/processor"
	"github.com/HarshTuring/docklens/internal/pkg/storage"
	"github.com/HarshTuring/docklens/internal/service"
	"github.com/HarshTuring/docklens/internal/transport"
	mongoclient "github.com/HarshTuring/docklens/pkg/mongo"
	redisclient "github.com/HarshTuring/docklens/pkg/redis"
)

type Server struct {
	httpServer *http.Server
}

func (s *Server) Run(cfg *config.Config, handler http.Handler) error {
	s.httpServer = &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           handler,
		MaxHeaderBytes:    1 << 20,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.Server.Timeout,
		IdleTimeout:       cfg.Server.Idle_timeout,
		ReadHeaderTimeout: 3 * time.Second,
		TLSConfig:         &tls.Config{MinVersion: tls.VersionTLS12},
		ErrorLog:          log.New(os.Stderr, "SERVER ERROR: ", log.LstdFlags),
	}
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func NewServer(cfg *config.Config) {

	logrus.SetFormatter(new(logrus.JSONFormatter))

	ctx := context.Background()

	mongoClient, err := mongoclient.NewMongoClient(ctx, cfg.Mongo.URI)
	if err != nil {
		logrus.Fatalf("failed to connect to mongo: %s", err.Error())
	}
	versionRepo := mongodb.NewVersionRepository(mongoClient, cfg.Mongo.Database)

	redisClient := redisclient.NewRedisClient(&cfg.Redis)
	cacheRepo := redisrepo.NewCacheRepository(redisClient)

	fileStorage, err := buildStorage(ctx, cfg)
	if err != nil {
		logrus.Fatalf("failed to initialize storage: %s", err.Error())
	}

	producer := kafka.NewNoopProducer()
	if cfg.Kafka.Enabled {
		producer = kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
	}

	authClient := authclient.NewClient(authclient.Config{
		BaseURL:      cfg.Auth.URL,
		Timeout:      cfg.Auth.Timeout,
		MaxRetries:   cfg.Auth.MaxRetries,
		FallbackMode: cfg.Auth.FallbackMode,
	})

	imgService := service.NewImageService(
		versionRepo,
		cacheRepo,
		fileStorage,
		processor.NewImageProcessor(),
		fetcher.NewURLFetcher(cfg.App.FetchTimeout, cfg.App.MaxUploadSize),
		producer,
		service.ServiceConfig{
			CacheTTL:      cfg.App.CacheTTL,
			MaxUploadSize: cfg.App.MaxUploadSize,
			KafkaTopic:    cfg.Kafka.Topic,
		},
	)
	imgHandler := transport.NewImageHandler(imgService, authClient, cfg.App.MaxUploadSize)

	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	srv := new(Server)
	go func() {
		if err := srv.Run(cfg, transport.InitRoutes(imgHandler, authClient)); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("error occured while running http server: %s", err.Error())
		}
	}()

	logrus.Print("App Started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)
	<-quit

	logrus.Print("App Shutting Down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.Errorf("error occured on server shutting down: %s", err.Error())
	}

	producer.Close()
	redisClient.Close()
	mongoClient.Disconnect(shutdownCtx)
}

func buildStorage(ctx context.Context, cfg *config.Config) (storage.FileStorage, error) {
	if cfg.Storage.Type == "minio" {
		return storage.NewMinioStorage(ctx, storage.MinioConfig{
			Endpoint:  cfg.Storage.Minio.Endpoint,
			AccessKey: cfg.Storage.Minio.AccessKey,
			SecretKey: cfg.Storage.Minio.SecretKey,
			Bucket:    cfg.Storage.Minio.Bucket,
			UseSSL:    cfg.Storage.Minio.UseSSL,
		})
	}

	basePath := cfg.Storage.Local.BasePath
	if basePath == "" {
		basePath = "./storage"
	}
	return storage.NewFileStorage(basePath), nil
}
