package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"knitkart/internal/authz"
	"knitkart/internal/config"
	"knitkart/internal/jobs"
	"knitkart/internal/middleware"
	"knitkart/internal/models"
	"knitkart/internal/service"
)

type AuthService interface {
	Register(ctx context.Context, input service.RegisterInput) (service.AuthResult, error)
	Login(ctx context.Context, email string, password string) (service.AuthResult, error)
	RequestPasswordReset(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token string, password string) (service.AuthResult, error)
}

type AnalysisService interface {
	Initiate(ctx context.Context, jobID string, input jobs.Input) error
	CheckStatus(ctx context.Context, jobID string) (jobs.Job, error)
}

type UploadService interface {
	Upload(ctx context.Context, input service.UploadInput) (service.UploadResult, error)
	CheckOwnership(ctx context.Context, ownerID string, refs []string) error
}

type ImageLister interface {
	List(ctx context.Context, limit, offset int) ([]models.ProductImage, error)
}

// HealthCheck is one dependency reported by the health endpoint.
type HealthCheck struct {
	Name string
	Ping func(ctx context.Context) error
}

type Deps struct {
	Log      zerolog.Logger
	Cfg      *config.AppConfig
	Auth     AuthService
	Sessions middleware.SessionResolver
	Gate     *authz.Gate
	Analysis AnalysisService
	Uploads  UploadService
	Images   ImageLister
	Checks   []HealthCheck
}

type HandlerSet struct {
	log      zerolog.Logger
	cfg      *config.AppConfig
	auth     AuthService
	sessions middleware.SessionResolver
	gate     *authz.Gate
	analysis AnalysisService
	uploads  UploadService
	images   ImageLister
	checks   []HealthCheck
	cookie   middleware.CookieConfig
}

func NewHandlerSet(deps Deps) HandlerSet {
	return HandlerSet{
		log:      deps.Log,
		cfg:      deps.Cfg,
		auth:     deps.Auth,
		sessions: deps.Sessions,
		gate:     deps.Gate,
		analysis: deps.Analysis,
		uploads:  deps.Uploads,
		images:   deps.Images,
		checks:   deps.Checks,
		cookie: middleware.CookieConfig{
			Name:   deps.Cfg.Session.CookieName,
			TTL:    deps.Cfg.Session.TTL,
			Secure: deps.Cfg.Session.CookieSecure,
		},
	}
}

func (h HandlerSet) Register(router *gin.Engine) {
	router.Use(middleware.Session(h.sessions, h.cookie, h.log))

	api := router.Group("/api")
	api.GET("/healthz", h.Health)

	auth := api.Group("/auth")
	{
		auth.GET("/check", h.CheckAuth)
		auth.POST("/register", h.SignUp)
		auth.POST("/login", h.Login)
		auth.POST("/logout", h.Logout)
		auth.POST("/forgot-password", h.ForgotPassword)
		auth.POST("/reset-password", h.ResetPassword)
	}

	v1 := api.Group("/v1")

	seller := v1.Group("")
	seller.Use(middleware.RequireApprovedSeller(h.gate, h.log))
	{
		seller.POST("/media/upload", h.UploadMedia)
		seller.POST("/analysis", h.InitiateAnalysis)
		seller.GET("/analysis/:jobId", h.AnalysisStatus)
	}

	admin := v1.Group("/admin")
	admin.Use(middleware.RequireAdmin(h.gate))
	admin.GET("/images", h.AdminListImages)

	router.GET("/account", middleware.RequireAuth(h.gate), h.Account)
	router.GET("/seller/dashboard", middleware.RequireSeller(h.gate, h.log), h.SellerDashboard)
	router.GET("/admin/images", middleware.RequireAdmin(h.gate), h.AdminListImages)
}

func fail(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"success": false, "error": message})
}

// internalError logs err and answers with a generic message.
func (h HandlerSet) internalError(c *gin.Context, err error, msg string) {
	h.log.Error().Err(err).Str("request_id", middleware.RequestIDFrom(c)).Msg(msg)
	fail(c, http.StatusInternalServerError, "internal_server_error")
}
