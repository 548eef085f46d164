// @title Interval-Sync API
// @version 1.0.0
// @description Five minutes interval store for the steps, heart rate and HRV health metrics
// @license.name BSD 2-Clause "Simplified" License
// @BasePath /
// @accept json
// @produce json
// @schemes https
// @contact.name Diabeloop
// @contact.email platforms@diabeloop.fr
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tidepool-org/go-common"
	"github.com/tidepool-org/go-common/clients"
	"github.com/tidepool-org/go-common/clients/disc"
	"github.com/tidepool-org/go-common/clients/mongo"
	muxprom "gitlab.com/msvechla/mux-prometheus/pkg/middleware"

	"github.com/mdblp/interval-sync/api"
	"github.com/mdblp/interval-sync/infrastructure"
	"github.com/mdblp/interval-sync/schema"
	"github.com/mdblp/interval-sync/usecase"
)

const (
	backendMongo  = "mongo"
	backendBadger = "badger"

	badgerGCInterval = 10 * time.Minute
)

type (
	// ISConfig holds the configuration for the `interval-sync` service
	ISConfig struct {
		clients.Config
		Service disc.ServiceListing `json:"service"`
		Mongo   mongo.Config        `json:"mongo"`
	}

	intervalStore interface {
		usecase.IntervalRepository
		usecase.DatabaseAdapter
	}
)

// newStore opens the store selected by STORE_BACKEND, mongo by default
func newStore(ctx context.Context, isconfig *ISConfig, logger *log.Logger) (intervalStore, error) {
	backend := os.Getenv("STORE_BACKEND")
	if backend == backendBadger {
		badgerConfig := infrastructure.BadgerConfig{Path: os.Getenv("BADGER_PATH")}
		if badgerConfig.Path == "" {
			badgerConfig.InMemory = true
			logger.Println("Env var BADGER_PATH not provided, using an in-memory badger store")
		}
		repo, err := infrastructure.NewIntervalBadgerRepository(badgerConfig, logger)
		if err != nil {
			return nil, err
		}
		go repo.RunGCLoop(ctx, badgerGCInterval)
		return repo, nil
	}
	if backend != "" && backend != backendMongo {
		logger.Printf("Unknown STORE_BACKEND %q, using %s", backend, backendMongo)
	}

	isconfig.Mongo.FromEnv()
	repo, err := infrastructure.NewIntervalMongoRepository(&isconfig.Mongo, logger)
	if err != nil {
		return nil, err
	}
	repo.Start()
	return repo, nil
}

// newUploader returns nil when EXPORT_BUCKET is not set: the export routes are then disabled
func newUploader(ctx context.Context, logger *log.Logger) (usecase.Uploader, error) {
	bucket := os.Getenv("EXPORT_BUCKET")
	if bucket == "" {
		logger.Println("Env var EXPORT_BUCKET not provided, day export disabled")
		return nil, nil
	}
	region := os.Getenv("REGION")
	if region == "" {
		region = "eu-west-1"
		logger.Println("Using default aws region: ", region)
	}

	url := os.Getenv("S3_ENDPOINT_URL")
	customResolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
		if url != "" {
			logger.Println("Using custom s3 endpoint: ", url)
			return aws.Endpoint{
				PartitionID:       "aws",
				URL:               url,
				SigningRegion:     region,
				HostnameImmutable: true,
			}, nil
		}
		return aws.Endpoint{}, &aws.EndpointNotFoundError{}
	})

	awsconfig, err := config.LoadDefaultConfig(ctx, config.WithEndpointResolverWithOptions(customResolver), config.WithRegion(region))
	if err != nil {
		return nil, err
	}
	return infrastructure.NewS3Uploader(s3.NewFromConfig(awsconfig), bucket)
}

func main() {
	var isconfig ISConfig
	logger := log.New(os.Stdout, api.DataAPIPrefix, log.LstdFlags|log.Lshortfile)

	if err := common.LoadEnvironmentConfig(
		[]string{"INTERVAL_SYNC_SERVICE", "INTERVAL_SYNC_ENV"},
		&isconfig,
	); err != nil {
		logger.Fatal("Problem loading config: ", err)
	}

	location := time.UTC
	if tz := os.Getenv("SERVICE_TIMEZONE"); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			logger.Fatalf("Invalid SERVICE_TIMEZONE %q: %s", tz, err)
		}
		location = loc
	}
	defaultUserID, found := os.LookupEnv("DEFAULT_USER_ID")
	switch {
	case !found:
		defaultUserID = schema.DefaultUserID
		logger.Printf("Env var DEFAULT_USER_ID not provided, using %q for requests without user", defaultUserID)
	case defaultUserID == "":
		logger.Println("Env var DEFAULT_USER_ID is empty, requests must name their user")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := newStore(ctx, &isconfig, logger)
	if err != nil {
		logger.Fatal(err)
	}

	uploader, err := newUploader(ctx, logger)
	if err != nil {
		logger.Fatal(err)
	}

	/*
	 * Instrumentation setup
	 */
	instrumentation := muxprom.NewCustomInstrumentation(true, "dblp", "intervalsync", prometheus.DefBuckets, nil, prometheus.DefaultRegisterer)

	rtr := mux.NewRouter()
	rtr.Use(instrumentation.Middleware)
	rtr.Path("/metrics").Handler(promhttp.Handler())

	/*
	 * Interval API setup
	 */
	intervalData := usecase.NewIntervalData(logger, store, location)
	var exporter api.ExporterUseCase
	if uploader != nil {
		exporter = usecase.NewExporter(logger, intervalData, uploader)
	}

	intervalAPI := api.InitAPI(intervalData, exporter, store, defaultUserID, logger)
	intervalAPI.SetHandlers("", rtr)

	// gzip/deflate responses when the client accepts it
	gzipHandler := handlers.CompressHandler(rtr)

	done := make(chan bool)
	server := common.NewServer(&http.Server{
		Addr:    isconfig.Service.GetPort(),
		Handler: gzipHandler,
	})

	var start func() error
	if isconfig.Service.Scheme == "https" {
		sslSpec := isconfig.Service.GetSSLSpec()
		start = func() error { return server.ListenAndServeTLS(sslSpec.CertFile, sslSpec.KeyFile) }
	} else {
		start = func() error { return server.ListenAndServe() }
	}
	if err := start(); err != nil {
		logger.Fatal(err)
	}

	// Wait for SIGINT (Ctrl+C) or SIGTERM to stop the service
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigc
		cancel()
		server.Close()
		store.Close()
		done <- true
	}()

	<-done
}
