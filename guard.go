package auth

import (
	"context"
	"net/url"
	"path"
	"strings"
)

// Classification is the access class of a request path
type Classification int

const (
	Public Classification = iota
	AuthPage
	Protected
)

func (c Classification) String() string {
	switch c {
	case AuthPage:
		return "auth_page"
	case Protected:
		return "protected"
	default:
		return "public"
	}
}

// DecisionKind is what the guard does with a request
type DecisionKind int

const (
	Allow DecisionKind = iota
	RedirectLogin
	RedirectDashboard
)

func (k DecisionKind) String() string {
	switch k {
	case RedirectLogin:
		return "redirect_login"
	case RedirectDashboard:
		return "redirect_dashboard"
	default:
		return "allow"
	}
}

// RouteDecision is computed per request and never stored
type RouteDecision struct {
	Kind           DecisionKind
	Location       string
	Classification Classification
}

// IsRedirect reports whether the decision ends the request with a redirect
func (d RouteDecision) IsRedirect() bool {
	return d.Kind != Allow
}

const (
	DefaultProtectedPrefix = "/dashboard"
	DefaultAuthPrefix      = "/auth"
	DefaultLoginPath       = "/auth/login"
	DefaultLandingPath     = "/dashboard"
	DefaultCallbackParam   = "callbackUrl"
)

// GuardRoutes holds the path layout the guard works with
type GuardRoutes struct {
	ProtectedPrefix string
	AuthPrefix      string
	LoginPath       string
	LandingPath     string
	CallbackParam   string
}

// DefaultGuardRoutes returns the portal's default layout
func DefaultGuardRoutes() GuardRoutes {
	return GuardRoutes{
		ProtectedPrefix: DefaultProtectedPrefix,
		AuthPrefix:      DefaultAuthPrefix,
		LoginPath:       DefaultLoginPath,
		LandingPath:     DefaultLandingPath,
		CallbackParam:   DefaultCallbackParam,
	}
}

// GuardRoutesFromConfig reads the layout from cfg, keeping defaults for
// empty values.
func GuardRoutesFromConfig(cfg Config) GuardRoutes {
	if cfg == nil {
		return DefaultGuardRoutes()
	}
	return GuardRoutes{
		ProtectedPrefix: cfg.GetProtectedPrefix(),
		AuthPrefix:      cfg.GetAuthPrefix(),
		LoginPath:       cfg.GetLoginPath(),
		LandingPath:     cfg.GetLandingPath(),
		CallbackParam:   cfg.GetCallbackParam(),
	}.withDefaults()
}

func (r GuardRoutes) withDefaults() GuardRoutes {
	def := DefaultGuardRoutes()
	if r.ProtectedPrefix == "" {
		r.ProtectedPrefix = def.ProtectedPrefix
	}
	if r.AuthPrefix == "" {
		r.AuthPrefix = def.AuthPrefix
	}
	if r.LoginPath == "" {
		r.LoginPath = def.LoginPath
	}
	if r.LandingPath == "" {
		r.LandingPath = def.LandingPath
	}
	if r.CallbackParam == "" {
		r.CallbackParam = def.CallbackParam
	}
	return r
}

// Classify returns the class of p. The path is cleaned first and prefixes
// match whole segments, the protected prefix before the auth prefix.
func (r GuardRoutes) Classify(p string) Classification {
	r = r.withDefaults()
	p = cleanPath(p)

	switch {
	case underPrefix(p, r.ProtectedPrefix):
		return Protected
	case underPrefix(p, r.AuthPrefix):
		return AuthPage
	default:
		return Public
	}
}

// Decide applies the decision table. original is the request path plus
// query, used as the post-login callback.
func (r GuardRoutes) Decide(c Classification, sessionValid bool, original string) RouteDecision {
	r = r.withDefaults()
	d := RouteDecision{Kind: Allow, Classification: c}

	switch c {
	case AuthPage:
		if sessionValid {
			d.Kind = RedirectDashboard
			d.Location = r.LandingPath
		}
	case Protected:
		if !sessionValid {
			d.Kind = RedirectLogin
			d.Location = r.LoginURL(original)
		}
	}

	return d
}

// LoginURL returns the login path with original as the callback parameter
func (r GuardRoutes) LoginURL(original string) string {
	r = r.withDefaults()
	if !isLocalPath(original) {
		return r.LoginPath
	}
	q := url.Values{r.CallbackParam: []string{original}}
	return r.LoginPath + "?" + q.Encode()
}

func cleanPath(p string) string {
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}

func underPrefix(p, prefix string) bool {
	prefix = cleanPath(prefix)
	if prefix == "/" {
		return true
	}
	return p == prefix || strings.HasPrefix(p, prefix+"/")
}

// Guard evaluates requests in three ordered stages: classify, read the
// session, decide. It holds no per-request state.
type Guard struct {
	routes       GuardRoutes
	reader       SessionReader
	logger       Logger
	metrics      *Metrics
	activitySink ActivitySink
}

// NewGuard returns a guard that verifies tokens with reader
func NewGuard(reader SessionReader, routes GuardRoutes) *Guard {
	return &Guard{
		routes:       routes.withDefaults(),
		reader:       reader,
		logger:       defLogger{},
		activitySink: noopActivitySink{},
	}
}

func (g *Guard) WithLogger(logger Logger) *Guard {
	g.logger = resolveLogger(logger)
	return g
}

func (g *Guard) WithMetrics(metrics *Metrics) *Guard {
	g.metrics = metrics
	return g
}

// WithActivitySink records rejected sessions on guarded paths to sink
func (g *Guard) WithActivitySink(sink ActivitySink) *Guard {
	g.activitySink = normalizeActivitySink(sink)
	return g
}

// Routes returns the layout the guard was built with
func (g *Guard) Routes() GuardRoutes {
	return g.routes
}

// GuardRequest is what the guard needs to know about a request
type GuardRequest struct {
	// Context is handed to the activity sink, background when nil
	Context context.Context
	// Path is the request path without query
	Path string
	// Original is the path plus query, used as the login callback
	Original string
	// Token is the raw session token, empty when absent
	Token string
}

// GuardResult is the outcome of evaluating a request
type GuardResult struct {
	Decision RouteDecision
	// Session is set when the token verified
	Session *Session
	// Err is the token verification failure, nil when no token was sent
	Err error
}

type guardState struct {
	req     GuardRequest
	class   Classification
	session *Session
	err     error
	result  RouteDecision
}

type guardStage func(g *Guard, st *guardState)

var guardPipeline = []guardStage{
	classifyStage,
	readSessionStage,
	decideStage,
}

func classifyStage(g *Guard, st *guardState) {
	st.class = g.routes.Classify(st.req.Path)
}

func readSessionStage(g *Guard, st *guardState) {
	if st.req.Token == "" || g.reader == nil {
		return
	}
	st.session, st.err = g.reader.ReadSession(st.req.Token)
	if st.err != nil {
		st.session = nil
	}
}

func decideStage(g *Guard, st *guardState) {
	original := st.req.Original
	if original == "" {
		original = st.req.Path
	}
	st.result = g.routes.Decide(st.class, st.session != nil, original)
}

// Evaluate runs the pipeline for req
func (g *Guard) Evaluate(req GuardRequest) GuardResult {
	st := &guardState{req: req}
	for _, stage := range guardPipeline {
		stage(g, st)
	}

	g.metrics.guardDecided(st.result)

	if st.err != nil && st.class != Public {
		reason := ReasonFromError(st.err)
		g.logger.Debug("guard rejected session",
			"path", cleanPath(req.Path),
			"reason", string(reason),
		)

		ctx := req.Context
		if ctx == nil {
			ctx = context.Background()
		}
		recordActivity(ctx, g.activitySink, g.logger, ActivityEvent{
			EventType: ActivityEventSessionRejected,
			Reason:    reason,
			Metadata: map[string]any{
				"path":           cleanPath(req.Path),
				"classification": st.class.String(),
			},
		})
	}

	return GuardResult{
		Decision: st.result,
		Session:  st.session,
		Err:      st.err,
	}
}
