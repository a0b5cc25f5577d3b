package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/MarcoPoloResearchLab/photovault/internal/auth"
	"github.com/MarcoPoloResearchLab/photovault/internal/collections"
	"github.com/MarcoPoloResearchLab/photovault/internal/gallery"
	"github.com/MarcoPoloResearchLab/photovault/internal/media"
	"github.com/MarcoPoloResearchLab/photovault/internal/notes"
	"github.com/MarcoPoloResearchLab/photovault/internal/realtime"
	"github.com/MarcoPoloResearchLab/photovault/internal/session"
	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	ownerContextKey     = "photovault_owner"
	sessionIDContextKey = "photovault_session_id"

	defaultSignedURLTTL = time.Hour
	maxUploadBytes      = 32 << 20
)

var (
	errMissingValidator   = errors.New("session validator dependency required")
	errMissingSignIn      = errors.New("sign-in service dependency required")
	errMissingSessions    = errors.New("session registry dependency required")
	errMissingWhitelist   = errors.New("whitelist dependency required")
	errMissingMediaStore  = errors.New("media store dependency required")
	errMissingGallery     = errors.New("gallery service dependency required")
	errMissingCollections = errors.New("collections service dependency required")
	errMissingNotes       = errors.New("notes service dependency required")
)

// RequestValidator reads and validates the session token carried by a request.
type RequestValidator interface {
	ValidateRequest(r *http.Request) (auth.SessionClaims, error)
	CookieName() string
}

type SignInService interface {
	SignIn(ctx context.Context, email, password string) (session.Grant, error)
}

type Whitelist interface {
	IsWhitelisted(identifier string) bool
}

// MediaStore is the object store behind uploads, signed URLs and deletes.
type MediaStore interface {
	CheckOwnership(owner, fileID string) error
	AuthorizeUpload(ctx context.Context, owner, fileName, contentType string) (media.UploadAuthorization, error)
	Upload(ctx context.Context, owner, fileName string, body []byte) (media.StoredObject, error)
	SignedURL(ctx context.Context, fileID string, ttl time.Duration) (string, time.Time, error)
	Delete(ctx context.Context, fileID string) error
	DeleteMany(ctx context.Context, fileIDs []string) []media.DeleteOutcome
}

type Dependencies struct {
	Validator   RequestValidator
	SignIn      SignInService
	Sessions    *session.Registry
	Whitelist   Whitelist
	Media       MediaStore
	Gallery     *gallery.Service
	Collections *collections.Service
	Notes       *notes.Service
	Realtime    *realtime.Dispatcher

	AllowedOrigins []string
	SecureCookies  bool
	SignedURLTTL   time.Duration
	// HeartbeatInterval spaces keep-alive events on /api/events.
	HeartbeatInterval time.Duration
	// EnableSentry installs the Sentry middleware; sentry.Init must already have run.
	EnableSentry bool
	Clock        func() time.Time
	Logger       *zap.Logger
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	switch {
	case deps.Validator == nil:
		return nil, errMissingValidator
	case deps.SignIn == nil:
		return nil, errMissingSignIn
	case deps.Sessions == nil:
		return nil, errMissingSessions
	case deps.Whitelist == nil:
		return nil, errMissingWhitelist
	case deps.Media == nil:
		return nil, errMissingMediaStore
	case deps.Gallery == nil:
		return nil, errMissingGallery
	case deps.Collections == nil:
		return nil, errMissingCollections
	case deps.Notes == nil:
		return nil, errMissingNotes
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	signedURLTTL := deps.SignedURLTTL
	if signedURLTTL <= 0 {
		signedURLTTL = defaultSignedURLTTL
	}
	heartbeatInterval := deps.HeartbeatInterval
	if heartbeatInterval <= 0 {
		heartbeatInterval = defaultHeartbeatInterval
	}
	dispatcher := deps.Realtime
	if dispatcher == nil {
		dispatcher = realtime.NewDispatcher()
	}

	router := gin.New()
	router.HandleMethodNotAllowed = true
	router.Use(gin.Recovery())
	if deps.EnableSentry {
		router.Use(sentrygin.New(sentrygin.Options{Repanic: true}))
	}
	router.Use(corsMiddleware(deps.AllowedOrigins))
	router.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{"error": "method_not_allowed", "message": "Method not allowed"})
	})

	handler := &httpHandler{
		validator:     deps.Validator,
		signIn:        deps.SignIn,
		sessions:      deps.Sessions,
		whitelist:     deps.Whitelist,
		media:         deps.Media,
		gallery:       deps.Gallery,
		collections:   deps.Collections,
		notes:         deps.Notes,
		realtime:      dispatcher,
		secureCookies: deps.SecureCookies,
		signedURLTTL:  signedURLTTL,
		heartbeat:     heartbeatInterval,
		clock:         clock,
		logger:        logger,
	}

	router.GET("/healthz", handler.handleHealth)
	router.POST("/api/session/login", handler.handleLogin)

	protected := router.Group("/api")
	protected.Use(handler.authorizeRequest)
	protected.POST("/session/logout", handler.handleLogout)
	protected.GET("/session", handler.handleSessionStatus)
	protected.GET("/events", handler.handleEvents)
	protected.POST("/session/activity", handler.handleActivity)

	active := protected.Group("")
	active.Use(handler.recordActivity)

	active.POST("/auth", handler.handleUploadAuthorization)
	active.POST("/delete-image", handler.handleDeleteImage)
	active.POST("/bulk-delete", handler.handleBulkDelete)

	active.GET("/images", handler.handleListImages)
	active.POST("/images", handler.handleCreateImage)
	active.POST("/images/upload", handler.handleUploadImages)
	active.GET("/images/tags", handler.handleImageTags)
	active.GET("/images/:id", handler.handleGetImage)
	active.PATCH("/images/:id", handler.handleUpdateImage)
	active.DELETE("/images/:id", handler.handleDeleteImageRecord)
	active.PUT("/images/:id/note", handler.handleSetImageNote)
	active.POST("/images/:id/note/reveal", handler.handleRevealImageNote)
	active.GET("/images/:id/url", handler.handleSignedImageURL)

	active.GET("/collections", handler.handleListCollections)
	active.POST("/collections", handler.handleCreateCollection)
	active.GET("/collections/:id", handler.handleGetCollection)
	active.DELETE("/collections/:id", handler.handleDeleteCollection)
	active.POST("/collections/:id/photos", handler.handleAddCollectionPhotos)
	active.DELETE("/collections/:id/photos/*fileId", handler.handleRemoveCollectionPhoto)
	active.PUT("/collections/:id/cover", handler.handleSetCollectionCover)

	active.GET("/notes", handler.handleListNotes)
	active.POST("/notes", handler.handleCreateNote)
	active.GET("/notes/tags", handler.handleNoteTags)
	active.PUT("/notes/:id", handler.handleUpdateNote)
	active.DELETE("/notes/:id", handler.handleDeleteNote)

	return router, nil
}

type httpHandler struct {
	validator     RequestValidator
	signIn        SignInService
	sessions      *session.Registry
	whitelist     Whitelist
	media         MediaStore
	gallery       *gallery.Service
	collections   *collections.Service
	notes         *notes.Service
	realtime      *realtime.Dispatcher
	secureCookies bool
	signedURLTTL  time.Duration
	heartbeat     time.Duration
	clock         func() time.Time
	logger        *zap.Logger
}

func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodPatch,
			http.MethodDelete,
			http.MethodOptions,
		},
		AllowHeaders:     []string{"Authorization", "Content-Type", "Last-Event-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(allowedOrigins) == 0 {
		cfg.AllowOriginFunc = func(string) bool { return true }
	} else {
		cfg.AllowOrigins = allowedOrigins
	}
	return cors.New(cfg)
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *httpHandler) publish(c *gin.Context, eventType string, recordIDs ...string) {
	owner, ok := ownerFromContext(c)
	if !ok {
		return
	}
	h.realtime.Publish(realtime.Message{
		UserID:    owner.ID.String(),
		SessionID: c.GetString(sessionIDContextKey),
		EventType: eventType,
		RecordIDs: recordIDs,
		Timestamp: h.clock().UTC(),
	})
}
