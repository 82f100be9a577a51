package main

import (
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"identity-broker/internal/handler"
	"identity-broker/internal/middleware"
	"identity-broker/internal/service"
	"identity-broker/pkg/config"
	"identity-broker/pkg/database"
	"identity-broker/pkg/logger"
	"identity-broker/prometheus"
)

func main() {
	// Load configuration from .env file and environment variables
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger with config
	if err := logger.InitLogger(cfg); err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	log := logger.GetLogger()
	log.Info("Starting identity broker...", zap.String("environment", cfg.Server.Env))

	// Initialize database
	if err := database.InitDB(cfg); err != nil {
		log.Fatal("Failed to initialize database", zap.Error(err))
	}
	log.Info("Database connection established")

	db := database.GetDB()
	schemas := database.NewSchemaManager(db)

	// Wire services
	userService := service.NewUserService(db, cfg.Auth)
	membershipService := service.NewMembershipService(db, cfg.Auth)
	tenantService := service.NewTenantService(db, schemas)
	projectService := service.NewProjectService(db, cfg.Auth)
	authService := service.NewAuthService(db, cfg.Auth, userService, membershipService, tenantService)

	// Wire handlers
	authHandler := handler.NewAuthHandler(authService)
	oauthHandler := handler.NewOAuthHandler(authService)
	projectHandler := handler.NewProjectHandler(projectService)
	tenantHandler := handler.NewTenantHandler(tenantService)
	membershipHandler := handler.NewMembershipHandler(membershipService)
	userHandler := handler.NewUserHandler(userService, membershipService)

	// Initialize Echo framework
	e := echo.New()

	// Apply global middleware - order matters
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())
	e.Use(middleware.RequestIDMiddleware)
	e.Use(logger.Middleware(log))
	e.Use(prometheus.MetricsMiddleware())

	// Public routes - no authentication required
	e.GET("/health", handler.HealthCheck)
	e.GET("/metrics", handler.MetricsHandler)

	// Credential-exchange routes - these don't belong under /api since
	// they're for getting access to the API
	auth := e.Group("/auth")
	auth.POST("/register", authHandler.Register)
	auth.POST("/login", authHandler.Login)
	auth.POST("/login/tenant", authHandler.LoginTenant)
	auth.POST("/refresh", authHandler.RefreshToken)
	auth.POST("/token", authHandler.TokenWithAPIKey)
	auth.GET("/project", authHandler.GetProjectInfo)
	auth.GET("/tenant/:slug", authHandler.GetTenantInfo)
	auth.POST("/verify", authHandler.VerifyJWT)
	auth.GET("/verify", authHandler.VerifyJWTBearer)

	// OAuth2-style exchange surface
	oauth := e.Group("/oauth")
	oauth.POST("/token", oauthHandler.Token)
	oauth.POST("/validate", oauthHandler.Validate)

	// Invitation acceptance is public: the token is the credential
	e.GET("/invitations/:token", membershipHandler.GetInvitationInfo)
	e.POST("/invitations/accept", membershipHandler.AcceptInvitation)

	// API routes - all require a bearer token
	api := e.Group("/api")
	api.Use(middleware.AuthMiddleware(authService))

	// Project administration
	projects := api.Group("/projects")
	projects.POST("", projectHandler.Create)
	projects.GET("", projectHandler.List)
	projects.GET("/:id", projectHandler.Get)
	projects.PATCH("/:id", projectHandler.Update)
	projects.DELETE("/:id", projectHandler.Delete)
	projects.POST("/:id/regenerate-api-key", projectHandler.RegenerateAPIKey)
	projects.POST("/:id/regenerate-client-secret", projectHandler.RegenerateClientSecret)
	projects.POST("/:id/tenants", tenantHandler.Create)
	projects.GET("/:id/tenants", tenantHandler.List)

	// Tenant administration
	tenants := api.Group("/tenants")
	tenants.GET("/:id", tenantHandler.Get)
	tenants.PATCH("/:id", tenantHandler.Update)
	tenants.DELETE("/:id", tenantHandler.Delete)
	tenants.GET("/:id/members", membershipHandler.ListMembers)
	tenants.POST("/:id/members", membershipHandler.CreateMember)
	tenants.GET("/:id/invitations", membershipHandler.ListInvitations)
	tenants.POST("/:id/invitations", membershipHandler.CreateInvitation)

	// Membership management
	memberships := api.Group("/memberships")
	memberships.PATCH("/:id", membershipHandler.UpdateMember)
	memberships.DELETE("/:id", membershipHandler.DeleteMember)

	// Invitation management
	api.DELETE("/invitations/:id", membershipHandler.CancelInvitation)

	// Authenticated user surface
	users := api.Group("/users")
	users.GET("/me", userHandler.GetProfile)
	users.PATCH("/me", userHandler.UpdateProfile)
	users.PUT("/me/password", userHandler.ChangePassword)
	users.GET("/me/memberships", userHandler.ListMemberships)

	// Start server
	port := cfg.Server.Port
	log.Info("Starting server", zap.String("port", port))
	if err := e.Start(":" + port); err != nil {
		log.Fatal("Failed to start server", zap.Error(err))
	}
}
