package server

import (
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/encryptcookie"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/mansoorceksport/deviceauth/internal/config"
	"github.com/mansoorceksport/deviceauth/internal/domain"
	"github.com/mansoorceksport/deviceauth/internal/handler"
	"github.com/mansoorceksport/deviceauth/internal/middleware"
	"github.com/mansoorceksport/deviceauth/internal/repository"
	"github.com/mansoorceksport/deviceauth/internal/service"
	"github.com/mansoorceksport/deviceauth/internal/telemetry"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
)

// AppDependencies holds the dependencies required to start the application
type AppDependencies struct {
	Config      *config.Config
	MongoDB     *mongo.Database
	RedisClient *redis.Client
	Hasher      service.PasswordHasher // optional, defaults to bcrypt at the configured cost
}

// NewApp creates and configures the Fiber application with the given dependencies
func NewApp(deps AppDependencies) *fiber.App {
	cfg := deps.Config

	// Initialize repositories
	cacheRepo := repository.NewRedisCacheRepository(deps.RedisClient)
	accountRepo := repository.NewCachedAccountRepository(
		repository.NewMongoAccountRepository(deps.MongoDB),
		cacheRepo,
	)
	deviceRepo := repository.NewMongoDeviceRepository(deps.MongoDB)
	sessionRepo := repository.NewMongoSessionRepository(deps.MongoDB)

	// Initialize services
	hasher := deps.Hasher
	if hasher == nil {
		hasher = service.NewBcryptHasher(cfg.Auth.BcryptCost)
	}
	signer := service.NewJWTSigner(cfg.JWT)
	authService := service.NewAuthService(accountRepo, deviceRepo, sessionRepo, hasher, signer, cfg.Auth)
	accountService := service.NewAccountService(accountRepo, deviceRepo, sessionRepo, cfg.Auth.OperationTimeout)

	// Initialize handlers
	authHandler := handler.NewAuthHandler(authService, cfg.Cookie)
	accountHandler := handler.NewAccountHandler(accountService)

	// Create Fiber app
	app := fiber.New(fiber.Config{
		AppName:      "Device Auth API",
		ErrorHandler: customErrorHandler,
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(telemetry.FiberMiddleware())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Correlation-ID",
		AllowMethods: "GET, POST, OPTIONS",
	}))
	app.Use(encryptcookie.New(encryptcookie.Config{
		Key: cfg.Cookie.Secret,
	}))

	// Health check endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "healthy",
			"service": "deviceauth",
		})
	})

	// API v1 routes
	v1 := app.Group("/v1")
	v1.Use(middleware.Authenticate(signer))
	v1.Use(middleware.ClientInfo(cfg.Cookie.ClientName))

	auth := v1.Group("/auth")
	auth.Post("/register",
		middleware.RequireAnonymous(),
		middleware.Idempotency(deps.RedisClient, cfg.Server.IdempotencyTTL),
		authHandler.Register,
	)
	auth.Post("/login", middleware.RequireAnonymous(), authHandler.Login)
	auth.Post("/refresh", middleware.RequireAnonymous(), authHandler.Refresh)
	auth.Post("/logout", middleware.RequireAuthenticated(), authHandler.Logout)

	users := v1.Group("/users")
	users.Use(middleware.RequireAuthenticated())
	users.Get("/me", accountHandler.Me)
	users.Get("/me/devices", accountHandler.Devices)

	return app
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := domain.DefaultServiceMessage
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	} else {
		log.Printf("Error: %v", err)
	}
	return c.Status(code).JSON(handler.ErrorResponse{
		Message: message,
	})
}
