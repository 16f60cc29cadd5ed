package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/schoolgate/internal/gate/service"
	"github.com/aussiebroadwan/schoolgate/internal/gate/store"
	"github.com/aussiebroadwan/schoolgate/pkg/httpx"
	"github.com/aussiebroadwan/schoolgate/pkg/jwtx"
	"github.com/aussiebroadwan/schoolgate/pkg/rbac"
	"github.com/aussiebroadwan/schoolgate/pkg/session"
	"github.com/aussiebroadwan/schoolgate/pkg/slogx"

	_ "github.com/aussiebroadwan/schoolgate/api/gate" // Swagger docs
	httpSwagger "github.com/swaggo/http-swagger"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	verifier     *session.Verifier
	devHosts     *httpx.DevHosts
	signer       jwtx.Signer
	oauthKeys    *jwtx.KeySet // nil when OAuth is not configured
	cookies      CookieConfig
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	store                store.Store
	SessionService       *service.SessionService
	ImpersonationService *service.ImpersonationService
}

func NewRouter(
	verifier *session.Verifier,
	devHosts *httpx.DevHosts,
	signer jwtx.Signer,
	oauthKeys *jwtx.KeySet,
	cookies CookieConfig,
	buildVersion string,
	st store.Store,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		verifier:     verifier,
		devHosts:     devHosts,
		signer:       signer,
		oauthKeys:    oauthKeys,
		cookies:      cookies,
		buildVersion: buildVersion,
		startTime:    time.Now(),
		store:        st,
		logger:       logger,
	}

	// Logging wraps the Gate so gate decisions carry the request id.
	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
		httpx.Gate(httpx.GateConfig{Verifier: r.verifier, DevHosts: r.devHosts}),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerSession()
	r.registerImpersonation()
	r.registerMaster()
	r.registerSystem()
	r.registerPages()

	r.Mux.Handle("GET /swagger/", httpSwagger.Handler())
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
//
//	@title			SchoolGate Authorization Gate API
//	@version		0.1.0
//	@description	Session, role access and MASTER impersonation endpoints of the school platform gate.
//	@description
//	@description				Sessions are HS256-signed tokens carried in the session-token or oauth-session
//	@description				cookie, or as a bearer token. Every request passes the edge gate, which applies
//	@description				the role-access matrix before any handler runs.
//
//	@contact.name				AussieBroadWAN Team
//	@contact.url				https://github.com/aussiebroadwan/schoolgate
//
//	@license.name				MIT
//	@license.url				https://opensource.org/licenses/MIT
//
//	@host						localhost:8080
//	@BasePath					/
//
//	@schemes					http https
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Session token. Format: "Bearer {token}".
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerSession() {
	login := &LoginHandler{
		SessionService: r.SessionService,
		DevHosts:       r.devHosts,
		Cookies:        r.cookies,
	}
	sess := &SessionHandler{
		SessionService: r.SessionService,
		Verifier:       r.verifier,
		DevHosts:       r.devHosts,
		Cookies:        r.cookies,
	}

	// Rate limited by IP + email to slow down password guessing
	r.Mux.Handle("POST /api/auth/login",
		httpx.Chain(http.HandlerFunc(login.HandleLogin),
			httpx.RateLimitByIPAndFormField(httpx.StrictLimit, "email"),
		),
	)
	r.Mux.Handle("POST /api/auth/dev-login",
		httpx.Chain(http.HandlerFunc(login.HandleDevLogin),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
	r.Mux.Handle("POST /api/auth/oauth/callback",
		httpx.Chain(http.HandlerFunc(login.HandleOAuthCallback),
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)
	r.Mux.Handle("POST /api/auth/logout",
		httpx.Chain(http.HandlerFunc(login.HandleLogout),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)

	r.Mux.Handle("GET /api/auth/session",
		httpx.Chain(http.HandlerFunc(sess.HandleSession),
			httpx.RateLimitByUser(httpx.ModerateLimit),
		),
	)
	r.Mux.Handle("POST /api/auth/registration/complete",
		httpx.Chain(http.HandlerFunc(sess.HandleCompleteRegistration),
			httpx.RequireSession(),
			httpx.RateLimitByUser(httpx.ModerateLimit),
		),
	)
}

func (r *Router) registerImpersonation() {
	h := &ImpersonationHandler{
		ImpersonationService: r.ImpersonationService,
		Cookies:              r.cookies,
	}

	// Switches are also limited per MASTER inside the service.
	r.Mux.Handle("POST /api/auth/switch-role",
		httpx.Chain(http.HandlerFunc(h.HandleSwitch),
			httpx.RequireSession(),
			httpx.RateLimitByUser(httpx.LenientLimit),
		),
	)
	r.Mux.Handle("POST /api/auth/revert-role",
		httpx.Chain(http.HandlerFunc(h.HandleRevert),
			httpx.RequireSession(),
		),
	)
	r.Mux.Handle("GET /api/auth/switch-status",
		httpx.Chain(http.HandlerFunc(h.HandleStatus),
			httpx.RequireSession(),
			httpx.RateLimitByUser(httpx.LenientLimit),
		),
	)
}

func (r *Router) registerMaster() {
	h := &AuditHandler{Store: r.store}

	r.Mux.Handle("GET /api/master/audit",
		httpx.Chain(h,
			httpx.RequireRole(rbac.RoleMaster),
			httpx.RateLimitByUser(httpx.LenientLimit),
		),
	)
}

func (r *Router) registerSystem() {
	// Health check endpoints - lenient rate limits (monitoring systems may poll frequently)
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.buildVersion),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.buildVersion, r.store, r.signer, r.oauthKeys),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
}

func (r *Router) registerPages() {
	r.Mux.Handle("GET /api/", APINotFound())
	r.Mux.Handle("GET /",
		httpx.Chain(PageHandler(),
			httpx.RateLimitByIP(httpx.PublicLimit),
		),
	)
}
