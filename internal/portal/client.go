// Package portal implements the UBYS portal collaborators: form-based login
// with CSRF token, cookie-session page retrieval, grade table parsing, and
// survey auto-resolution.
package portal

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/gradewatch/gradewatch/internal/monitor"
)

const csrfTokenField = "__RequestVerificationToken"

// Config holds the portal endpoint settings.
type Config struct {
	// BaseURL is the portal root, e.g. "https://ubys.omu.edu.tr/".
	BaseURL string
	// LoginPath is the login form POST target relative to BaseURL.
	LoginPath string
	// UserAgent is sent on every request.
	UserAgent string
	// Timeout bounds each individual HTTP request.
	Timeout time.Duration
}

// Client talks to the portal. It implements monitor.Authenticator and
// monitor.ContentFetcher; each Login call produces an isolated cookie-jar
// session for one account.
type Client struct {
	cfg    Config
	logger *zap.Logger
}

// NewClient creates a portal Client.
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("portal base url is required")
	}
	if cfg.LoginPath == "" {
		return nil, fmt.Errorf("portal login path is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{cfg: cfg, logger: logger}, nil
}

// portalSession carries one account's authenticated HTTP state. The resty
// client owns the cookie jar, so every request through it rides the portal
// session cookies.
type portalSession struct {
	http    *resty.Client
	account monitor.Account
}

// Close discards the session state. The portal has no logout endpoint worth
// calling; dropping the cookie jar is the release.
func (s *portalSession) Close() error {
	s.http.SetCookies(nil)
	return nil
}

// Login fetches the login page, extracts the CSRF token, and posts the
// credential form. The returned session holds the authenticated cookies.
func (c *Client) Login(ctx context.Context, account monitor.Account) (monitor.Session, error) {
	httpClient := resty.New().
		SetBaseURL(c.cfg.BaseURL).
		SetTimeout(c.cfg.Timeout).
		SetHeader("User-Agent", c.cfg.UserAgent)

	sess := &portalSession{http: httpClient, account: account}
	if err := c.authenticate(ctx, sess); err != nil {
		return nil, err
	}
	c.logger.Debug("portal login succeeded", zap.String("account_id", account.ID))
	return sess, nil
}

// Renew re-runs the credential flow on the session's existing client. The
// cookie jar picks up fresh session cookies in place.
func (c *Client) Renew(ctx context.Context, s monitor.Session) error {
	sess, ok := s.(*portalSession)
	if !ok {
		return fmt.Errorf("%w: foreign session type %T", monitor.ErrSessionExpired, s)
	}
	if err := c.authenticate(ctx, sess); err != nil {
		return err
	}
	c.logger.Debug("portal session renewed", zap.String("account_id", sess.account.ID))
	return nil
}

// Retrieve fetches the page at locator over the session.
func (c *Client) Retrieve(ctx context.Context, s monitor.Session, locator string) ([]byte, error) {
	sess, ok := s.(*portalSession)
	if !ok {
		return nil, fmt.Errorf("%w: foreign session type %T", monitor.ErrFetch, s)
	}
	resp, err := sess.http.R().SetContext(ctx).Get(locator)
	if err != nil {
		return nil, fmt.Errorf("%w: get %s: %w", monitor.ErrFetch, locator, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: get %s: status %s", monitor.ErrFetch, locator, resp.Status())
	}
	body := resp.Body()
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: get %s: empty body", monitor.ErrFetch, locator)
	}
	return body, nil
}

func (c *Client) authenticate(ctx context.Context, sess *portalSession) error {
	token, err := c.loginToken(ctx, sess)
	if err != nil {
		return err
	}

	resp, err := sess.http.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"username":     sess.account.ID,
			"password":     sess.account.Password,
			csrfTokenField: token,
			"xmlhttp":      "XMLHttpRequest",
		}).
		Post(c.cfg.LoginPath)
	if err != nil {
		return fmt.Errorf("%w: post login for %s: %w", monitor.ErrAuth, sess.account.ID, err)
	}
	if resp.IsError() {
		return fmt.Errorf("%w: login for %s: status %s", monitor.ErrAuth, sess.account.ID, resp.Status())
	}
	return nil
}

// loginToken pulls the anti-forgery token from the login page form.
func (c *Client) loginToken(ctx context.Context, sess *portalSession) (string, error) {
	resp, err := sess.http.R().SetContext(ctx).Get("/")
	if err != nil {
		return "", fmt.Errorf("%w: get login page: %w", monitor.ErrAuth, err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("%w: get login page: status %s", monitor.ErrAuth, resp.Status())
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body()))
	if err != nil {
		return "", fmt.Errorf("%w: parse login page: %v", monitor.ErrAuth, err)
	}
	token, ok := doc.Find(fmt.Sprintf("input[name=%s]", csrfTokenField)).First().Attr("value")
	if !ok || strings.TrimSpace(token) == "" {
		return "", fmt.Errorf("%w: login page has no %s field", monitor.ErrAuth, csrfTokenField)
	}
	return token, nil
}
