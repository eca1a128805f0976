// Package main is the application entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"docuquery-go/internal/chunker"
	"docuquery-go/internal/config"
	"docuquery-go/internal/extractor"
	"docuquery-go/internal/handler"
	"docuquery-go/internal/middleware"
	"docuquery-go/internal/model"
	"docuquery-go/internal/pipeline"
	"docuquery-go/internal/repository"
	"docuquery-go/internal/service"
	"docuquery-go/internal/vectorstore"
	"docuquery-go/pkg/database"
	"docuquery-go/pkg/embedding"
	"docuquery-go/pkg/kafka"
	"docuquery-go/pkg/llm"
	"docuquery-go/pkg/log"
	"docuquery-go/pkg/storage"
	"docuquery-go/pkg/tika"
	"docuquery-go/pkg/token"
)

func main() {
	cfg, err := config.Load("./configs/config.yaml")
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync()
	log.Info("logger initialized")

	// Databases.
	db, err := database.NewMySQL(cfg.Database.MySQL.DSN)
	if err != nil {
		log.Fatalf("mysql init failed: %v", err)
	}
	if err := db.AutoMigrate(&model.IngestionJob{}, &model.VectorNamespace{}); err != nil {
		log.Fatalf("migrate schema failed: %v", err)
	}
	rdb, err := database.NewRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
	if err != nil {
		log.Fatalf("redis init failed: %v", err)
	}

	// Storage and index.
	objectStore, err := storage.NewMinioStore(cfg.MinIO)
	if err != nil {
		log.Fatalf("minio init failed: %v", err)
	}
	chain := embedding.NewChain(
		cfg.Embedding.Dimensions,
		embedding.NewOpenAIProvider(cfg.Embedding.Primary),
		embedding.NewOllamaProvider(cfg.Embedding.Fallback),
	)
	store, err := vectorstore.NewElasticStore(cfg.Elasticsearch, chain.Dimensions())
	if err != nil {
		log.Fatalf("elasticsearch init failed: %v", err)
	}
	if err := store.EnsureIndex(context.Background()); err != nil {
		log.Fatalf("ensure index failed: %v", err)
	}

	// Pipeline components.
	tikaClient := tika.NewClient(cfg.Tika)
	extractors := extractor.NewRegistry(map[string]extractor.Extractor{
		extractor.TypePDF:  extractor.NewPDFExtractor(),
		extractor.TypeDOCX: extractor.NewDOCXExtractor(),
		extractor.TypeDOC:  extractor.NewDOCExtractor(tikaClient),
		extractor.TypeEML:  extractor.NewEMLExtractor(),
	})
	splitter, err := chunker.New(cfg.Chunking.MaxChunkSize, cfg.Chunking.Overlap)
	if err != nil {
		log.Fatalf("invalid chunking config: %v", err)
	}

	// Repositories and services.
	jobRepo := repository.NewJobRepository(db, rdb)
	namespaceRepo := repository.NewNamespaceRepository(db)
	producer := kafka.NewProducer(cfg.Kafka)
	defer producer.Close()
	llmClient := llm.NewClient(cfg.LLM)

	ingestionService := service.NewIngestionService(jobRepo, producer)
	answerService := service.NewAnswerService(
		namespaceRepo, chain, store, llmClient,
		cfg.Retrieval.TopK, cfg.Retrieval.MaxContextChars, cfg.LLM.MaxRetries,
	)

	// Background consumer.
	processor := pipeline.NewProcessor(objectStore, extractors, splitter, chain, store, jobRepo, namespaceRepo, cfg.Embedding.BatchSize)
	consumerCtx, stopConsumer := context.WithCancel(context.Background())
	defer stopConsumer()
	consumer := kafka.NewConsumer(
		cfg.Kafka, processor, jobRepo,
		cfg.Ingestion.MaxAttempts,
		time.Duration(cfg.Ingestion.StageTimeoutSeconds)*time.Second,
	)
	go func() {
		if err := consumer.Run(consumerCtx); err != nil {
			log.Errorf("consumer stopped: %v", err)
		}
	}()

	// HTTP surface.
	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	r.Use(middleware.RequestLogger(), gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	jwtManager := token.NewJWTManager(cfg.JWT.Secret)
	apiV1 := r.Group("/api/v1")
	apiV1.Use(middleware.AuthMiddleware(jwtManager))
	{
		ingestionHandler := handler.NewIngestionHandler(ingestionService)
		apiV1.POST("/ingestions", ingestionHandler.Submit)
		apiV1.GET("/ingestions/:documentId", ingestionHandler.Status)

		apiV1.POST("/ask", handler.NewAskHandler(answerService).Ask)
		apiV1.GET("/ask/stream", handler.NewStreamHandler(answerService).Handle)
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("server listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down")

	stopConsumer()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("server shutdown: %v", err)
	}
	log.Info("server exited")
}
