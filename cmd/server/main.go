package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/darim/darim/internal/config"
	"github.com/darim/darim/internal/handlers"
	"github.com/darim/darim/internal/mail"
	"github.com/darim/darim/internal/middleware"
	"github.com/darim/darim/internal/repository"
	"github.com/darim/darim/internal/service"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(logrus.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}

	dynamoClient, err := initDynamoDB(cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize DynamoDB")
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Endpoint,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		logger.WithError(err).Fatal("Failed to connect to Redis")
	}

	// Repositories
	userRepo := repository.NewUserRepository(dynamoClient, cfg.DynamoDB.TableName, logger)
	ephemeralRepo := repository.NewEphemeralTokenRepository(redisClient, logger)
	sessionRepo := repository.NewSessionRepository(redisClient, cfg.Token.RefreshExpiry, logger)

	// Services
	tokenService, err := service.NewTokenService(&cfg.Token, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize token service")
	}

	var mailer mail.Mailer
	if cfg.SMTP.Host != "" {
		mailer = mail.NewSMTPMailer(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.Username, cfg.SMTP.Password, cfg.SMTP.From, logger)
	} else {
		mailer = mail.NewLogMailer(logger)
	}

	authService := service.NewAuthService(tokenService, sessionRepo, userRepo, logger)
	signUpService := service.NewSignUpService(ephemeralRepo, userRepo, mailer, &cfg.Ephemeral, logger)
	passwordService := service.NewPasswordService(ephemeralRepo, userRepo, mailer, &cfg.Ephemeral, cfg.Client.Address, logger)

	authHandlers := handlers.NewAuthHandlers(
		authService,
		signUpService,
		passwordService,
		cfg.Token.RefreshExpiry,
		logger,
	)

	authMiddleware := middleware.NewAuthMiddleware(tokenService, logger)
	router := setupRouter(authHandlers, authMiddleware, logger)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.WithField("port", cfg.Server.Port).Info("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Fatal("Server forced to shutdown")
	}

	logger.Info("Server exited")
}

func initDynamoDB(cfg *config.Config, logger *logrus.Logger) (*dynamodb.Client, error) {
	var awsCfg aws.Config
	var err error

	if cfg.DynamoDB.Endpoint != "" {
		awsCfg, err = awsconfig.LoadDefaultConfig(context.TODO(),
			awsconfig.WithRegion(cfg.DynamoDB.Region),
			awsconfig.WithEndpointResolverWithOptions(aws.EndpointResolverWithOptionsFunc(
				func(service, region string, options ...interface{}) (aws.Endpoint, error) {
					return aws.Endpoint{
						URL:           cfg.DynamoDB.Endpoint,
						SigningRegion: cfg.DynamoDB.Region,
					}, nil
				})),
		)
	} else {
		awsCfg, err = awsconfig.LoadDefaultConfig(context.TODO())
	}

	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := dynamodb.NewFromConfig(awsCfg)
	logger.Info("DynamoDB client initialized")
	return client, nil
}

func setupRouter(
	authHandlers *handlers.AuthHandlers,
	authMiddleware *middleware.AuthMiddleware,
	logger *logrus.Logger,
) *mux.Router {
	router := mux.NewRouter()

	router.Use(middleware.CORSMiddleware)
	router.Use(middleware.LoggingMiddleware(logger))

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET", "OPTIONS")

	api := router.PathPrefix("/api/v1").Subrouter()

	auth := api.PathPrefix("/auth").Subrouter()
	auth.HandleFunc("/sign-up/token", authHandlers.RequestSignUpToken).Methods("POST", "OPTIONS")
	auth.HandleFunc("/sign-up", authHandlers.CompleteSignUp).Methods("POST", "OPTIONS")
	auth.HandleFunc("/login", authHandlers.Login).Methods("POST", "OPTIONS")
	auth.HandleFunc("/refresh", authHandlers.Refresh).Methods("POST", "OPTIONS")
	auth.HandleFunc("/logout", authHandlers.Logout).Methods("POST", "OPTIONS")
	auth.HandleFunc("/password/token", authHandlers.RequestPasswordToken).Methods("POST", "OPTIONS")
	auth.HandleFunc("/password", authHandlers.ResetPassword).Methods("POST", "OPTIONS")

	protected := api.PathPrefix("/auth").Subrouter()
	protected.Use(authMiddleware.RequireAuth)
	protected.HandleFunc("/sessions", authHandlers.ListSessions).Methods("GET", "OPTIONS")
	protected.HandleFunc("/sessions/{session_id}", authHandlers.RemoveSession).Methods("DELETE", "OPTIONS")

	return router
}
