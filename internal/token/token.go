// Package token issues and validates the opaque signed session and
// application tokens backed by the IdP token service.
package token

import (
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"jbarbier/sp-connect/internal/identity"
)

const (
	issuePath    = "/api/token"
	validatePath = "/api/token/validate"
)

// Client talks to the remote token service. The optional cache holds raw
// validation payloads until their remote-declared expiry.
type Client struct {
	baseURL    string
	httpClient *http.Client
	signKey    *rsa.PrivateKey
	issuer     string
	cache      Cache
}

func NewClient(baseURL, issuer string, signKey *rsa.PrivateKey) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: http.DefaultClient,
		signKey:    signKey,
		issuer:     issuer,
	}
}

// WithCache enables read-through caching of validation results.
func (c *Client) WithCache(cache Cache) *Client {
	c.cache = cache
	return c
}

// WithHTTPClient overrides the HTTP client, mainly for tests.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// Issued is the token service's answer to a creation request.
type Issued struct {
	Token    string    `json:"token"`
	ExpireAt time.Time `json:"expire_at"`
}

// Validation is a hydrated token-validation payload.
type Validation struct {
	Principal   *identity.Principal `json:"user,omitempty"`
	Application string              `json:"application,omitempty"`
	ExpireAt    time.Time           `json:"expire_at"`
}

// Create submits a signed claim set over principal and returns the issued
// token.
func (c *Client) Create(principal *identity.Principal) (*Issued, error) {
	if principal == nil {
		return nil, &Error{Message: "unable to create token: no authenticated principal"}
	}
	claims := jwt.MapClaims{
		"iss": c.issuer,
		"aud": c.issuer,
		"sub": principal.Username,
		"iat": jwt.NewNumericDate(time.Now()),
		"exp": jwt.NewNumericDate(time.Now().Add(5 * time.Minute)),
	}
	return c.submitTokenRequest(claims, c.signKey)
}

// CreateApplicationToken issues a token carrying no user subject, signed with
// the caller-supplied key. The bootstrap protocol uses it for service calls.
func (c *Client) CreateApplicationToken(applicationID string, key *rsa.PrivateKey) (*Issued, error) {
	claims := jwt.MapClaims{
		"iss": applicationID,
		"aud": applicationID,
		"iat": jwt.NewNumericDate(time.Now()),
		"exp": jwt.NewNumericDate(time.Now().Add(5 * time.Minute)),
	}
	return c.submitTokenRequest(claims, key)
}

func (c *Client) submitTokenRequest(claims jwt.MapClaims, key *rsa.PrivateKey) (*Issued, error) {
	if key == nil {
		return nil, &Error{Message: "no signing key available"}
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	if err != nil {
		return nil, &Error{Message: "sign token request", cause: err}
	}

	form := url.Values{}
	form.Set("token-request", signed)
	resp, err := c.httpClient.PostForm(c.baseURL+issuePath, form)
	if err != nil {
		return nil, &Error{Message: "token service unreachable", cause: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Message: "read token service response", cause: err}
	}
	if resp.StatusCode >= 400 {
		return nil, remoteError(resp.StatusCode, body)
	}

	var issued Issued
	if err := json.Unmarshal(body, &issued); err != nil {
		return nil, &Error{Message: "malformed token service response", cause: err}
	}
	return &issued, nil
}

// Validate resolves a token into its validation payload, reading through the
// cache when one is configured. Cached entries past their declared expiry are
// evicted and reported as expired.
func (c *Client) Validate(token string) (*Validation, error) {
	if c.cache != nil {
		if body, ok := c.cache.Get(token); ok {
			v, err := hydrate(body)
			if err != nil {
				return nil, err
			}
			if time.Now().Before(v.ExpireAt) {
				return v, nil
			}
			c.cache.Delete(token)
			return nil, &Error{Message: "the provided token is expired"}
		}
	}

	resp, err := c.httpClient.Get(c.baseURL + validatePath + "?token=" + url.QueryEscape(token))
	if err != nil {
		return nil, &Error{Message: "token service unreachable", cause: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Message: "read token service response", cause: err}
	}
	if resp.StatusCode >= 400 {
		return nil, remoteError(resp.StatusCode, body)
	}

	v, err := hydrate(body)
	if err != nil {
		return nil, err
	}
	if c.cache != nil {
		if ttl := time.Until(v.ExpireAt); ttl > 0 {
			c.cache.Set(token, body, ttl)
		}
	}
	return v, nil
}

func hydrate(body []byte) (*Validation, error) {
	var v Validation
	if err := json.Unmarshal(body, &v); err != nil {
		return nil, &Error{Message: "malformed validation payload", cause: err}
	}
	return &v, nil
}

func remoteError(status int, body []byte) *Error {
	var remote struct {
		Error string `json:"error"`
		Code  int    `json:"code"`
	}
	if err := json.Unmarshal(body, &remote); err == nil && remote.Error != "" {
		return &Error{Code: remote.Code, Message: remote.Error}
	}
	return &Error{Code: status, Message: fmt.Sprintf("token service returned status %d", status)}
}
