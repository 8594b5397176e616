package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"techassist/server/internal/auth"
	"techassist/server/internal/catalog"
	"techassist/server/internal/config"
	"techassist/server/internal/diagnostic"
	"techassist/server/internal/guidance"
	"techassist/server/internal/hub"
	"techassist/server/internal/model"
	"techassist/server/internal/notify"
	"techassist/server/internal/session"
	"techassist/server/internal/stepwise"
	"techassist/server/internal/ticket"
)

// Server wires the HTTP and websocket surface over the services. It
// holds no business logic itself: handlers translate requests, call one
// service, dispatch the returned events, and map errors to status codes.
type Server struct {
	config *config.Config
	log    *zap.Logger
	now    func() time.Time

	authn      auth.Authenticator
	users      auth.Directory
	catalog    catalog.Store
	tickets    ticket.Store
	ticketSvc  *ticket.Service
	engine     *diagnostic.Engine
	stepwise   *stepwise.Service
	guidance   *guidance.Service
	hub        *hub.Hub
	dispatcher *notify.Dispatcher

	upgrader websocket.Upgrader
}

// Deps carries the constructed services into the server.
type Deps struct {
	Auth          auth.Authenticator
	Users         auth.Directory
	Catalog       catalog.Store
	Tickets       ticket.Store
	TicketService *ticket.Service
	Engine        *diagnostic.Engine
	Stepwise      *stepwise.Service
	Guidance      *guidance.Service
	Hub           *hub.Hub
	Dispatcher    *notify.Dispatcher
}

func NewServer(cfg *config.Config, log *zap.Logger, deps Deps) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		config:     cfg,
		log:        log,
		now:        time.Now,
		authn:      deps.Auth,
		users:      deps.Users,
		catalog:    deps.Catalog,
		tickets:    deps.Tickets,
		ticketSvc:  deps.TicketService,
		engine:     deps.Engine,
		stepwise:   deps.Stepwise,
		guidance:   deps.Guidance,
		hub:        deps.Hub,
		dispatcher: deps.Dispatcher,
	}
	s.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return s.originAllowed(r.Header.Get("Origin"))
		},
	}
	return s
}

func (s *Server) originAllowed(origin string) bool {
	if origin == "" || len(s.config.Server.AllowedOrigins) == 0 {
		return true
	}
	for _, allowed := range s.config.Server.AllowedOrigins {
		if origin == allowed {
			return true
		}
	}
	return false
}

func (s *Server) Routes() http.Handler {
	engine := gin.New()
	engine.Use(gin.Logger(), gin.Recovery(), s.corsMiddleware())
	engine.GET("/healthz", s.handleHealthz)

	api := engine.Group("/api", s.authMiddleware())
	{
		api.GET("/diagnostic/categories", s.handleListCategories)
		api.POST("/diagnostic/sessions", s.handleStartSession)
		api.GET("/diagnostic/sessions/:id", s.handleGetSession)
		api.GET("/diagnostic/sessions/:id/question", s.handleNextQuestion)
		api.POST("/diagnostic/sessions/:id/answers", s.handleSubmitAnswer)
		api.POST("/diagnostic/sessions/:id/probes", s.handleRunProbes)
		api.POST("/diagnostic/sessions/:id/pause", s.handlePauseSession)
		api.POST("/diagnostic/sessions/:id/resume", s.handleResumeSession)
		api.POST("/diagnostic/sessions/:id/abandon", s.handleAbandonSession)
		api.GET("/diagnostic/sessions/:id/stats", s.handleSessionStats)
		api.POST("/diagnostic/sessions/:id/ticket", s.handleSessionTicket)

		api.POST("/diagnostic/stepwise", s.handleStartStepwise)
		api.GET("/diagnostic/stepwise/:id", s.handleStepwisePlan)
		api.POST("/diagnostic/stepwise/:id/execute", s.handleStepwiseExecute)
		api.POST("/diagnostic/stepwise/:id/navigate", s.handleStepwiseNavigate)

		api.POST("/tickets", s.handleCreateTicket)
		api.GET("/tickets", s.handleListTickets)
		api.GET("/tickets/:id", s.handleGetTicket)
		api.POST("/tickets/:id/assign", s.handleAssignTicket)
		api.PATCH("/tickets/:id/status", s.handleTicketStatus)
		api.GET("/tickets/:id/comments", s.handleListComments)
		api.POST("/tickets/:id/comments", s.handleAddComment)

		api.POST("/tickets/:id/guidance/start", s.handleGuidanceStart)
		api.POST("/tickets/:id/guidance/instructions", s.handleGuidanceInstruction)
		api.POST("/tickets/:id/guidance/end", s.handleGuidanceEnd)
		api.POST("/comments/:id/confirm", s.handleConfirmInstruction)
	}

	ws := engine.Group("/ws", s.authMiddleware())
	{
		ws.GET("/tickets/:id", s.handleTicketSocket)
		ws.GET("/notifications", s.handleNotificationSocket)
	}

	return engine
}

func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

const userKey = "techassist.user"

// authMiddleware resolves the bearer token to a user. Websocket clients
// cannot set headers, so a token query parameter is accepted too.
func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if token == "" || token == c.GetHeader("Authorization") {
			token = c.Query("token")
		}
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authentification requise"})
			return
		}
		user, err := s.authn.Authenticate(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Jeton invalide"})
			return
		}
		c.Set(userKey, *user)
		c.Next()
	}
}

func currentUser(c *gin.Context) model.User {
	return c.MustGet(userKey).(model.User)
}

func (s *Server) corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" && s.originAllowed(origin) {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type")
			c.Header("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// fail maps a service error to a status code. The error text is the
// user-facing message.
func (s *Server) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case isNotFound(err):
		status = http.StatusNotFound
	case isForbidden(err):
		status = http.StatusForbidden
	case isBadRequest(err):
		status = http.StatusBadRequest
	default:
		s.log.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err))
		c.JSON(status, gin.H{"error": "Erreur interne du serveur"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func isNotFound(err error) bool {
	for _, target := range []error{
		session.ErrNotFound,
		ticket.ErrNotFound,
		ticket.ErrCommentNotFound,
		catalog.ErrNotFound,
		guidance.ErrTicketNotFound,
		guidance.ErrInstructionNotFound,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func isForbidden(err error) bool {
	for _, target := range []error{
		errAccessDenied,
		ticket.ErrCreateNotEmployee,
		ticket.ErrTakeNotTechnician,
		ticket.ErrNotYourTicket,
		ticket.ErrEmployeeTransition,
		ticket.ErrNotAssignedToYou,
		ticket.ErrTechnicianClose,
		ticket.ErrInsufficientRole,
		guidance.ErrStartNotTechnician,
		guidance.ErrStartNotAssigned,
		guidance.ErrSendNotTechnician,
		guidance.ErrEndNotTechnician,
		guidance.ErrNotAssigned,
		guidance.ErrConfirmNotEmployee,
		guidance.ErrConfirmNotCreator,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func isBadRequest(err error) bool {
	for _, target := range []error{
		ticket.ErrAlreadyAssigned,
		ticket.ErrAlreadyConfirmed,
		ticket.ErrStatusRequired,
		ticket.ErrInvalidStatus,
		ticket.ErrCloseNotResolved,
		ticket.ErrReopenNotClosed,
		guidance.ErrEmptyInstruction,
		guidance.ErrNotInstruction,
		guidance.ErrAlreadyConfirmed,
		diagnostic.ErrSessionClosed,
		diagnostic.ErrDuplicateAnswer,
		diagnostic.ErrUnknownQuestion,
		diagnostic.ErrInvalidChoice,
		diagnostic.ErrUnknownCategory,
		diagnostic.ErrInvalidTransition,
		diagnostic.ErrSessionNotComplete,
		stepwise.ErrNoStep,
		stepwise.ErrNotStepwise,
		stepwise.ErrOutOfRange,
		stepwise.ErrNoAnswers,
		stepwise.ErrSessionClosed,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

var errAccessDenied = errors.New("Accès non autorisé")

// ownSession rejects an employee reading somebody else's diagnostic
// session; support staff see everything.
func ownSession(actor model.User, sess *model.DiagnosticSession) error {
	if actor.Role == model.RoleEmploye && sess.UtilisateurID != actor.ID {
		return errAccessDenied
	}
	return nil
}
