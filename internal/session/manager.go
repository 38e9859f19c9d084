// Package session manages the authenticated portal session lifecycle for one
// fetch cycle.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/gradewatch/gradewatch/internal/monitor"
)

// Config carries the session behavior knobs. Values come from the live config
// snapshot the orchestrator holds for the current iteration.
type Config struct {
	// Timeout is the session validity window measured from login.
	Timeout time.Duration
	// AutoResolve enables the single resolve-and-retry attempt when the
	// portal reports a blocking condition.
	AutoResolve bool
}

// Manager runs one complete fetch cycle per call: login, retrieve, parse,
// release. It holds no state between calls and touches no store.
type Manager struct {
	auth     monitor.Authenticator
	fetcher  monitor.ContentFetcher
	parser   monitor.ContentParser
	resolver monitor.BlockingResolver
	clock    monitor.Clock
	logger   *zap.Logger
}

// NewManager wires the portal collaborators into a Manager. The resolver may
// be nil when auto-resolve is never enabled.
func NewManager(
	auth monitor.Authenticator,
	fetcher monitor.ContentFetcher,
	parser monitor.ContentParser,
	resolver monitor.BlockingResolver,
	clock monitor.Clock,
	logger *zap.Logger,
) (*Manager, error) {
	if auth == nil {
		return nil, fmt.Errorf("authenticator is required")
	}
	if fetcher == nil {
		return nil, fmt.Errorf("content fetcher is required")
	}
	if parser == nil {
		return nil, fmt.Errorf("content parser is required")
	}
	if clock == nil {
		return nil, fmt.Errorf("clock is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &Manager{
		auth:     auth,
		fetcher:  fetcher,
		parser:   parser,
		resolver: resolver,
		clock:    clock,
		logger:   logger,
	}, nil
}

// Fetch logs in, retrieves and parses the account's grade page, and releases
// the session before returning. The session handle never escapes this call.
//
// Before each retrieval the session age is checked against cfg.Timeout; an
// expired session gets exactly one in-place renewal, and a failed renewal
// returns an error wrapping monitor.ErrSessionExpired without attempting the
// retrieval. When the parsed page signals a blocking condition and
// cfg.AutoResolve is set, the manager makes exactly one resolve attempt
// followed by one fresh retrieval.
func (m *Manager) Fetch(ctx context.Context, cfg Config, account monitor.Account) (monitor.Snapshot, error) {
	if err := account.Validate(); err != nil {
		return monitor.Snapshot{}, err
	}

	sess, err := m.auth.Login(ctx, account)
	if err != nil {
		return monitor.Snapshot{}, fmt.Errorf("login account %s: %w", account.ID, err)
	}
	establishedAt := m.clock.Now()
	defer func() {
		if cerr := sess.Close(); cerr != nil {
			m.logger.Warn("session close failed",
				zap.String("account_id", account.ID),
				zap.Error(cerr))
		}
	}()

	snap, content, err := m.retrieveAndParse(ctx, cfg, sess, account, &establishedAt)
	if err == nil {
		return snap, nil
	}
	if !errors.Is(err, monitor.ErrBlockingCondition) || !cfg.AutoResolve || m.resolver == nil {
		return monitor.Snapshot{}, err
	}

	m.logger.Info("blocking condition detected, attempting auto-resolve",
		zap.String("account_id", account.ID))
	if rerr := m.resolver.Resolve(ctx, sess, content); rerr != nil {
		return monitor.Snapshot{}, fmt.Errorf("auto-resolve account %s: %w", account.ID, rerr)
	}

	snap, _, err = m.retrieveAndParse(ctx, cfg, sess, account, &establishedAt)
	if err != nil {
		return monitor.Snapshot{}, fmt.Errorf("retry after auto-resolve: %w", err)
	}
	return snap, nil
}

// retrieveAndParse performs the expiry check, one page retrieval, and the
// parse. It returns the raw content alongside the snapshot so the resolver
// can inspect the blocking page. A successful renewal restarts the validity
// window.
func (m *Manager) retrieveAndParse(
	ctx context.Context,
	cfg Config,
	sess monitor.Session,
	account monitor.Account,
	establishedAt *time.Time,
) (monitor.Snapshot, []byte, error) {
	if cfg.Timeout > 0 && m.clock.Now().Sub(*establishedAt) >= cfg.Timeout {
		m.logger.Debug("session past validity window, renewing",
			zap.String("account_id", account.ID))
		if err := m.auth.Renew(ctx, sess); err != nil {
			return monitor.Snapshot{}, nil, fmt.Errorf("%w: renew account %s: %v",
				monitor.ErrSessionExpired, account.ID, err)
		}
		*establishedAt = m.clock.Now()
	}

	content, err := m.fetcher.Retrieve(ctx, sess, account.ResourceLocator)
	if err != nil {
		return monitor.Snapshot{}, nil, fmt.Errorf("retrieve account %s: %w", account.ID, err)
	}
	snap, err := m.parser.Parse(account.ID, content)
	if err != nil {
		return monitor.Snapshot{}, content, fmt.Errorf("parse account %s: %w", account.ID, err)
	}
	snap.CapturedAt = m.clock.Now()
	return snap, content, nil
}
