package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/openshelf/librarium/internal/auth"
	"github.com/openshelf/librarium/internal/catalog"
	"github.com/openshelf/librarium/internal/session"
	"github.com/openshelf/librarium/internal/users"
)

const sessionContextKey = "librarium_session"

var (
	errMissingAuthService    = errors.New("auth service dependency required")
	errMissingResolver       = errors.New("identity resolver dependency required")
	errMissingGitHubProvider = errors.New("github provider dependency required")
	errMissingStateSigner    = errors.New("state signer dependency required")
	errMissingSessionManager = errors.New("session manager dependency required")
	errMissingCatalogService = errors.New("catalog service dependency required")
	errMissingUserRepository = errors.New("user repository dependency required")
	errMissingCookieName     = errors.New("session cookie name required")
)

// GitHubAuthenticator is the slice of the OAuth provider the router needs.
type GitHubAuthenticator interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (auth.ProviderIdentity, error)
}

// CookieConfig controls how the session cookie is written.
type CookieConfig struct {
	Name     string
	TTL      time.Duration
	Secure   bool
	SameSite http.SameSite
}

// Dependencies wires the collaborating services into the HTTP handler.
type Dependencies struct {
	Auth     *auth.Service
	Resolver *auth.Resolver
	GitHub   GitHubAuthenticator
	State    *auth.StateSigner
	Sessions *session.Manager
	Catalog  *catalog.Service
	Users    *users.Repository
	Cookie   CookieConfig
	Logger   *zap.Logger
}

// NewHTTPHandler validates the dependencies and assembles the gin router.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Auth == nil {
		return nil, errMissingAuthService
	}
	if deps.Resolver == nil {
		return nil, errMissingResolver
	}
	if deps.GitHub == nil {
		return nil, errMissingGitHubProvider
	}
	if deps.State == nil {
		return nil, errMissingStateSigner
	}
	if deps.Sessions == nil {
		return nil, errMissingSessionManager
	}
	if deps.Catalog == nil {
		return nil, errMissingCatalogService
	}
	if deps.Users == nil {
		return nil, errMissingUserRepository
	}
	if deps.Cookie.Name == "" {
		return nil, errMissingCookieName
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Cookie.TTL <= 0 {
		deps.Cookie.TTL = session.DefaultTTL
	}
	if deps.Cookie.SameSite == 0 {
		deps.Cookie.SameSite = http.SameSiteLaxMode
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOriginFunc:  func(string) bool { return true },
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	handler := &httpHandler{
		authService: deps.Auth,
		resolver:    deps.Resolver,
		github:      deps.GitHub,
		state:       deps.State,
		sessions:    deps.Sessions,
		catalog:     deps.Catalog,
		users:       deps.Users,
		cookie:      deps.Cookie,
		logger:      logger,
	}

	router.GET("/health", handler.handleHealth)

	// Every route sees the resolved session when one is present; the
	// require* middlewares only gate, they never resolve.
	router.Use(handler.resolveSession)

	authRoutes := router.Group("/auth")
	{
		authRoutes.POST("/register", handler.handleRegister)
		authRoutes.POST("/login", handler.handleLogin)
		authRoutes.POST("/logout", handler.handleLogout)
		authRoutes.GET("/profile", handler.requireAuthenticated, handler.handleProfile)
		authRoutes.GET("/github", handler.handleGitHubRedirect)
		authRoutes.GET("/github/callback", handler.handleGitHubCallback)
	}

	authorRoutes := router.Group("/authors")
	{
		authorRoutes.GET("", handler.handleListAuthors)
		authorRoutes.GET("/:id", handler.handleGetAuthor)
		authorRoutes.POST("", handler.requireAuthenticated, handler.handleCreateAuthor)
		authorRoutes.PUT("/:id", handler.requireAuthenticated, handler.handleUpdateAuthor)
		authorRoutes.DELETE("/:id", handler.requireAdmin, handler.handleDeleteAuthor)
	}

	bookRoutes := router.Group("/books")
	{
		bookRoutes.GET("", handler.handleListBooks)
		bookRoutes.GET("/:id", handler.handleGetBook)
		bookRoutes.POST("", handler.requireAuthenticated, handler.handleCreateBook)
		bookRoutes.PUT("/:id", handler.requireAuthenticated, handler.handleUpdateBook)
		bookRoutes.DELETE("/:id", handler.requireAdmin, handler.handleDeleteBook)
	}

	return router, nil
}

type httpHandler struct {
	authService *auth.Service
	resolver    *auth.Resolver
	github      GitHubAuthenticator
	state       *auth.StateSigner
	sessions    *session.Manager
	catalog     *catalog.Service
	users       *users.Repository
	cookie      CookieConfig
	logger      *zap.Logger
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
