package session

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	gwerrors "github.com/agrisense/geogateway/internal/errors"
	"github.com/agrisense/geogateway/token"
)

// RefreshResult is the outcome of a refresh exchange. Either field may be
// empty; an empty field leaves the corresponding token of the current pair
// unchanged.
type RefreshResult struct {
	AccessToken  string `json:"access_token,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

// Refresher exchanges a refresh token for a new token pair. The exchange is a
// single call; the Manager never retries it within one evaluation.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*RefreshResult, error)
}

// TokenSink receives the access token the rest of the application should
// attach to outbound requests. An empty token switches the sink to
// guest/anonymous mode.
type TokenSink interface {
	SetToken(accessToken string, origin token.Origin)
}

// Manager decides, on every session-state transition, whether the current
// access token is usable, needs refreshing, or is unrecoverable. It is
// constructed once per process and shared; all reads of the token pair go
// through Evaluate so staleness decisions stay centralized.
type Manager struct {
	refresher      Refresher
	sink           TokenSink
	refreshTimeout time.Duration
	nowFunc        func() time.Time
	log            zerolog.Logger

	mu    sync.Mutex
	state State
}

// ManagerOption defines a function type to modify the Manager instance.
type ManagerOption func(*Manager)

// WithNowFunc sets the now time function (primarily for testing)
func WithNowFunc(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowFunc = now
	}
}

// WithRefreshTimeout bounds the refresh exchange call. Timeout is treated as
// call failure.
func WithRefreshTimeout(timeout time.Duration) ManagerOption {
	return func(m *Manager) {
		m.refreshTimeout = timeout
	}
}

// WithLogger sets the structured logger.
func WithLogger(log zerolog.Logger) ManagerOption {
	return func(m *Manager) {
		m.log = log
	}
}

// NewManager creates a session Manager with the given refresher and token
// sink.
func NewManager(refresher Refresher, sink TokenSink, options ...ManagerOption) (*Manager, error) {
	if refresher == nil {
		return nil, errors.New("[NewManager] refresher is required")
	}
	if sink == nil {
		return nil, errors.New("[NewManager] token sink is required")
	}

	m := &Manager{
		refresher:      refresher,
		sink:           sink,
		refreshTimeout: 10 * time.Second,
		nowFunc:        time.Now,
		log:            zerolog.Nop(),
		state:          StateValid,
	}

	for _, opt := range options {
		opt(m)
	}

	return m, nil
}

// State returns the manager's current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

// Evaluate inspects the current token pair and returns the pair to use plus
// a terminal error when re-authentication is required.
//
// A pair whose access token is still within its validity window is returned
// unchanged with no I/O, so the call is idempotent. An expired access token
// with a still-valid refresh token triggers exactly one refresh exchange;
// the response substitutes each token field independently, a missing field
// keeps the current value. Everything else is terminal.
func (m *Manager) Evaluate(ctx context.Context, pair token.Pair) (token.Pair, error) {
	return m.evaluate(ctx, pair, nil)
}

// onRefresh fires after the pair is classified as refreshable, immediately
// before the exchange call is dispatched.
func (m *Manager) evaluate(ctx context.Context, pair token.Pair, onRefresh func()) (token.Pair, error) {
	if pair.Empty() {
		// Nothing to evaluate; the caller operates in guest mode.
		return pair, nil
	}

	accessClaims, err := token.Decode(pair.AccessToken)
	if err != nil {
		m.setState(StateTerminal)
		evaluationsTotal.WithLabelValues("terminal").Inc()
		return pair, terminal(err)
	}

	refreshClaims, err := token.Decode(pair.RefreshToken)
	if err != nil {
		m.setState(StateTerminal)
		evaluationsTotal.WithLabelValues("terminal").Inc()
		return pair, terminal(err)
	}

	now := m.nowFunc()

	if !accessClaims.Expired(now) {
		m.setState(StateValid)
		evaluationsTotal.WithLabelValues("valid").Inc()
		return pair, nil
	}

	if refreshClaims.Expired(now) {
		// Both expired: terminal, no call attempted.
		m.setState(StateTerminal)
		evaluationsTotal.WithLabelValues("terminal").Inc()
		return pair, terminal(gwerrors.ErrRefreshTokenExpired)
	}

	m.setState(StateRefreshNeeded)
	m.setState(StateRefreshing)
	if onRefresh != nil {
		onRefresh()
	}

	refreshCtx, cancel := context.WithTimeout(ctx, m.refreshTimeout)
	defer cancel()

	result, err := m.refresher.Refresh(refreshCtx, pair.RefreshToken)
	if err != nil {
		m.log.Warn().Err(err).Msg("token refresh failed")
		m.setState(StateTerminal)
		refreshTotal.WithLabelValues("failure").Inc()
		evaluationsTotal.WithLabelValues("terminal").Inc()
		return pair, terminal(errors.Wrap(gwerrors.ErrRefreshFailed, err.Error()))
	}

	refreshed := pair
	if result.AccessToken != "" {
		refreshed.AccessToken = result.AccessToken
	}
	if result.RefreshToken != "" {
		refreshed.RefreshToken = result.RefreshToken
	}

	m.setState(StateValid)
	refreshTotal.WithLabelValues("success").Inc()
	evaluationsTotal.WithLabelValues("refreshed").Inc()
	return refreshed, nil
}

// EvaluateSession runs Evaluate against a session and folds the outcome back
// into it, keeping the tri-state error flag current: ErrorRefreshing while
// the exchange is outstanding, then ErrorNone or ErrorTerminal.
func (m *Manager) EvaluateSession(ctx context.Context, sess *Session) error {
	pair, err := m.evaluate(ctx, sess.Pair, func() { sess.Err = ErrorRefreshing })
	if err != nil {
		sess.Err = ErrorTerminal
		return err
	}
	sess.Pair = pair
	sess.Err = ErrorNone
	return nil
}

// Propagate pushes the access token to the outbound API client. An empty
// pair switches the client to the guest/anonymous mode understood by the
// backend. A fresh pair from a new login clears a terminal state.
func (m *Manager) Propagate(pair token.Pair, origin token.Origin) {
	if pair.Empty() {
		m.sink.SetToken("", token.OriginGuest)
		return
	}
	m.sink.SetToken(pair.AccessToken, origin)

	m.mu.Lock()
	if m.state == StateTerminal {
		m.state = StateValid
	}
	m.mu.Unlock()
}

// MergeUser merges updated profile fields into the session without
// re-triggering a refresh cycle. The token pair is left untouched.
func (m *Manager) MergeUser(sess *Session, update UserUpdate) {
	if sess.User == nil {
		return
	}
	if update.Email != "" {
		sess.User.Email = update.Email
	}
	if update.Username != "" {
		sess.User.Username = update.Username
	}
	if update.FirstName != "" {
		sess.User.FirstName = update.FirstName
	}
	if update.LastName != "" {
		sess.User.LastName = update.LastName
	}
}
