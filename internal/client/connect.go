// Package client is the session and request orchestrator: it owns the
// authenticated principal, routes the SAML, profile-association and admin
// endpoints, and turns everything else into a redirect to the IdP.
package client

import (
	"errors"
	"net/http"
	"net/url"

	"jbarbier/sp-connect/internal/assoc"
	"jbarbier/sp-connect/internal/config"
	"jbarbier/sp-connect/internal/identity"
	"jbarbier/sp-connect/internal/metadata"
	"jbarbier/sp-connect/internal/sp"
	"jbarbier/sp-connect/internal/token"
)

type route struct {
	method string
	path   string
}

type handlerFunc func(*http.Request) (*Response, error)

// Connect handles one inbound request end-to-end. It rehydrates the
// authenticated principal from the session store at construction and persists
// every mutation back.
type Connect struct {
	cfg    *config.Config
	engine *sp.Engine
	store  SessionStore
	tokens *token.Client

	assocCallback assoc.Callback

	user         *identity.Principal
	sessionIndex string

	routes map[route]handlerFunc
}

// New builds an orchestrator over loaded metadata and a session store. The
// principal, if the session holds one, is rehydrated immediately.
func New(cfg *config.Config, md *metadata.Metadata, store SessionStore) (*Connect, error) {
	tokens := token.NewClient(cfg.TokenEndpoint(), cfg.SP.EntityID, md.PrivateKey())
	if cfg.Token.Cache {
		tokens = tokens.WithCache(token.NewMemoryCache())
	}

	c := &Connect{
		cfg:    cfg,
		engine: sp.NewEngine(md),
		store:  store,
		tokens: tokens,
	}
	c.rehydrate()
	if err := c.initRoutes(); err != nil {
		return nil, err
	}
	return c, nil
}

// WithProfileAssociationCallback registers the application's association
// callback and opens the association endpoint.
func (c *Connect) WithProfileAssociationCallback(cb assoc.Callback) *Connect {
	c.assocCallback = cb
	c.routes[route{http.MethodPost, c.cfg.SP.ProfileAssociationPath}] = c.handleProfileAssociation
	return c
}

// WithTokenClient overrides the token client, mainly for tests.
func (c *Connect) WithTokenClient(tc *token.Client) *Connect {
	c.tokens = tc
	return c
}

func (c *Connect) Engine() *sp.Engine        { return c.engine }
func (c *Connect) User() *identity.Principal { return c.user }
func (c *Connect) IsAuthenticated() bool     { return c.user != nil }
func (c *Connect) SessionIndex() string      { return c.sessionIndex }

func (c *Connect) rehydrate() {
	if raw, ok := c.store.Get(keyUser); ok {
		if p, err := identity.Decode([]byte(raw)); err == nil {
			c.user = p
		}
	}
	if idx, ok := c.store.Get(keySessionIndex); ok {
		c.sessionIndex = idx
	}
}

// SetUser replaces the authenticated principal and persists it.
func (c *Connect) SetUser(p *identity.Principal) error {
	c.user = p
	c.sessionIndex = p.SessionIndex
	c.store.Set(keySessionIndex, p.SessionIndex)
	return c.persistUser()
}

func (c *Connect) persistUser() error {
	raw, err := c.user.Encode()
	if err != nil {
		return err
	}
	c.store.Set(keyUser, string(raw))
	return nil
}

func (c *Connect) clearSession() {
	c.user = nil
	c.sessionIndex = ""
	for _, k := range []string{keyUser, keySessionIndex, keyRelayState, keyTargetedPath} {
		c.store.Delete(k)
	}
}

func (c *Connect) initRoutes() error {
	acs, err := c.engine.Metadata().FirstACS()
	if err != nil {
		return err
	}
	logout, err := c.engine.Metadata().FirstLogout()
	if err != nil {
		return err
	}
	acsPath, err := endpointPath(acs.Location)
	if err != nil {
		return err
	}
	logoutPath, err := endpointPath(logout.Location)
	if err != nil {
		return err
	}

	admin := c.cfg.SP.AdminPath
	c.routes = map[route]handlerFunc{
		{http.MethodPost, acsPath}:            c.handleACS,
		{http.MethodPost, logoutPath}:         c.handleLogout,
		{http.MethodGet, logoutPath}:          c.handleLogout,
		{http.MethodGet, admin + "/ping"}:     c.handleAdminPing,
		{http.MethodGet, admin + "/metadata"}: c.handleAdminMetadata,
		{http.MethodPost, admin}:              c.handleAdminRegister,
		{http.MethodDelete, admin}:            c.handleAdminDelete,
	}
	return nil
}

func endpointPath(location string) (string, error) {
	u, err := url.Parse(location)
	if err != nil {
		return "", err
	}
	return u.Path, nil
}

// HandleRequest resolves the request against the route table. An unresolved
// request from an unauthenticated session starts the SSO flow; an unresolved
// request from an authenticated one yields no response and the application
// serves it. Protocol and association errors degrade to wire responses,
// everything else propagates.
func (c *Connect) HandleRequest(r *http.Request) (*Response, error) {
	path, err := url.PathUnescape(requestPath(r))
	if err != nil {
		return nil, err
	}

	handler, ok := c.routes[route{r.Method, path}]
	if !ok {
		if c.IsAuthenticated() {
			return nil, nil
		}
		return c.startLogin(r)
	}

	resp, err := handler(r)
	if err != nil {
		return c.degradeError(err)
	}
	return resp, nil
}

func requestPath(r *http.Request) string {
	uri := r.URL.RequestURI()
	for i := range uri {
		if uri[i] == '?' {
			return uri[:i]
		}
	}
	return uri
}

func (c *Connect) degradeError(err error) (*Response, error) {
	var perr *sp.ProtocolError
	if errors.As(err, &perr) {
		body, merr := sp.ErrorResponse(c.cfg.SP.EntityID, perr)
		if merr != nil {
			return nil, merr
		}
		return XML(http.StatusInternalServerError, body), nil
	}

	var aerr *assoc.Error
	if errors.As(err, &aerr) {
		svc, serr := c.assocService()
		if serr != nil {
			return nil, serr
		}
		body, serr := svc.SealError(aerr)
		if serr != nil {
			return nil, serr
		}
		return Raw(aerr.Code, "application/json", body), nil
	}

	return nil, err
}

// startLogin stashes the originally requested path, builds a fresh
// AuthnRequest with its relay-state and answers with the IdP redirect.
func (c *Connect) startLogin(r *http.Request) (*Response, error) {
	if r.Method == http.MethodGet {
		c.store.Set(keyTargetedPath, r.URL.RequestURI())
	}

	req, relayState, err := c.engine.BuildAuthnRequest()
	if err != nil {
		return nil, err
	}
	c.store.Set(keyRelayState, relayState)

	location, err := sp.RedirectURL(req.Destination, "SAMLRequest", req, relayState)
	if err != nil {
		return nil, err
	}
	return Redirect(location), nil
}

// SwitchRole re-derives the active role from the principal's attributions.
// The role may be a plain name matched against this SP, or the compound
// "application:role:localUsername" form.
func (c *Connect) SwitchRole(role string) error {
	if !c.IsAuthenticated() {
		return &identity.AttributionError{Reason: "no authenticated principal"}
	}

	parsed := identity.ParseRoleString(role)
	application := parsed.Application
	if application == "" {
		application = c.cfg.SP.EntityID
	}

	attr, ok := c.user.AttributionFor(parsed.Role, application)
	if !ok {
		return &identity.AttributionError{
			Role:        parsed.Role,
			Application: application,
			Reason:      "no matching attribution",
		}
	}

	c.user.CurrentRole = attr.Role
	switch {
	case parsed.LocalUsername != "":
		c.user.LocalUsername = parsed.LocalUsername
	case attr.LocalUsername != "":
		c.user.LocalUsername = attr.LocalUsername
	}
	return c.persistUser()
}

// SwitchLocalUsername switches to the attribution carrying localUsername for
// (role, application). An empty application targets this SP.
func (c *Connect) SwitchLocalUsername(localUsername, role, application string) error {
	if !c.IsAuthenticated() {
		return &identity.AttributionError{Reason: "no authenticated principal"}
	}
	if application == "" {
		application = c.cfg.SP.EntityID
	}

	for _, attr := range c.user.Attributions {
		if attr.Role == role && attr.Application == application && attr.LocalUsername == localUsername {
			c.user.CurrentRole = attr.Role
			c.user.LocalUsername = attr.LocalUsername
			return c.persistUser()
		}
	}
	return &identity.AttributionError{
		Role:        role,
		Application: application,
		Reason:      "no attribution with local username " + localUsername,
	}
}

// CreateToken issues a token for the authenticated principal.
func (c *Connect) CreateToken() (*token.Issued, error) {
	return c.tokens.Create(c.user)
}

// ValidateToken validates a token against the remote service, through the
// cache when one is enabled.
func (c *Connect) ValidateToken(tok string) (*token.Validation, error) {
	return c.tokens.Validate(tok)
}
