// Package registry owns the live sessions to external trading accounts. It serializes all
// operations on one account, dispatches to the platform client for the account's
// platform, and publishes every state transition to its listeners.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc"

	"github.com/thiagosquair/trading-journal-platform-sub003/internal/models"
	"github.com/thiagosquair/trading-journal-platform-sub003/internal/platform"
)

// DefaultConnectTimeout is the ceiling on a single connect.
const DefaultConnectTimeout = 30 * time.Second

var (
	ErrUnknownAccount       = errors.New("unknown account")
	ErrOperationInProgress  = errors.New("operation in progress")
	ErrInvalidRange         = errors.New("invalid history range")
	ErrUnsupportedPlatform  = errors.New("unsupported platform")
	ErrUnsupportedOperation = errors.New("operation not supported by platform")
	ErrClosed               = errors.New("registry closed")
	ErrAccountConflict      = errors.New("account id is bound to another platform")
)

// State is the lifecycle state of one account entry
type State string

const (
	StateUnconnected   State = "unconnected"
	StateConnecting    State = "connecting"
	StateConnected     State = "connected"
	StateDisconnecting State = "disconnecting"
)

// AccountStatus describes one registry entry
type AccountStatus struct {
	AccountID   string          `json:"accountId"`
	Platform    models.Platform `json:"platform"`
	Name        string          `json:"name,omitempty"`
	State       State           `json:"state"`
	ConnectedAt *time.Time      `json:"connectedAt,omitempty"`
	LastError   string          `json:"lastError,omitempty"`
}

type entry struct {
	// lock is a one-slot semaphore serializing operations on the account.
	lock chan struct{}
	// refs counts goroutines holding or waiting for lock; guarded by Registry.mu.
	refs int

	// guarded by lock
	session platform.Session
	creds   platform.Credentials

	// guarded by Registry.mu
	status AccountStatus
}

// Registry maps account ids to live platform sessions
type Registry struct {
	clients        map[models.Platform]platform.Client
	listeners      []Listener
	connectTimeout time.Duration
	logger         *logrus.Entry

	mu      sync.Mutex
	entries map[string]*entry
	closed  bool
}

// Option configures a Registry
type Option func(*Registry)

// WithConnectTimeout sets the connect ceiling.
func WithConnectTimeout(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.connectTimeout = d
		}
	}
}

// WithListener adds a listener for state transitions.
func WithListener(l Listener) Option {
	return func(r *Registry) {
		if l != nil {
			r.listeners = append(r.listeners, l)
		}
	}
}

// New creates a registry dispatching to clients by platform.
func New(clients []platform.Client, logger *logrus.Logger, opts ...Option) *Registry {
	r := &Registry{
		clients:        make(map[models.Platform]platform.Client, len(clients)),
		connectTimeout: DefaultConnectTimeout,
		logger:         logger.WithField("component", "registry"),
		entries:        make(map[string]*entry),
	}
	for _, c := range clients {
		r.clients[c.Platform()] = c
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// acquire takes the per-account lock, creating the entry when create is set. Waiting ends
// with ErrOperationInProgress when ctx is done first.
func (r *Registry) acquire(ctx context.Context, accountID string, create bool) (*entry, error) {
	r.mu.Lock()
	if create && r.closed {
		r.mu.Unlock()
		return nil, ErrClosed
	}
	e, ok := r.entries[accountID]
	if !ok {
		if !create {
			r.mu.Unlock()
			return nil, fmt.Errorf("%w: %s", ErrUnknownAccount, accountID)
		}
		e = &entry{
			lock:   make(chan struct{}, 1),
			status: AccountStatus{AccountID: accountID, State: StateUnconnected},
		}
		r.entries[accountID] = e
	}
	e.refs++
	r.mu.Unlock()

	select {
	case e.lock <- struct{}{}:
		return e, nil
	default:
	}

	select {
	case e.lock <- struct{}{}:
		return e, nil
	case <-ctx.Done():
		r.drop(accountID, e)
		return nil, fmt.Errorf("%w: %s: %v", ErrOperationInProgress, accountID, ctx.Err())
	}
}

// release gives the lock back and forgets the entry once nobody needs it and it holds no
// session.
func (r *Registry) release(accountID string, e *entry) {
	idle := e.session == nil
	<-e.lock
	r.mu.Lock()
	e.refs--
	if e.refs == 0 && idle && r.entries[accountID] == e {
		delete(r.entries, accountID)
	}
	r.mu.Unlock()
}

// drop undoes the reference taken by an acquire that gave up waiting. When the lock has
// come free in the meantime it is released normally so an idle entry is not left behind.
func (r *Registry) drop(accountID string, e *entry) {
	select {
	case e.lock <- struct{}{}:
		r.release(accountID, e)
	default:
		r.mu.Lock()
		e.refs--
		r.mu.Unlock()
	}
}

func (r *Registry) setState(e *entry, state State, err error, at time.Time) AccountStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	e.status.State = state
	if err != nil {
		e.status.LastError = err.Error()
	} else if state == StateConnected {
		e.status.LastError = ""
	}
	switch state {
	case StateConnected:
		if e.status.ConnectedAt == nil {
			t := at
			e.status.ConnectedAt = &t
		}
	case StateUnconnected:
		e.status.ConnectedAt = nil
	}
	return e.status
}

func (r *Registry) client(p models.Platform) (platform.Client, error) {
	c, ok := r.clients[p]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedPlatform, p)
	}
	return c, nil
}

// ConnectAccount connects ref and stores the session under ref.AccountID. A healthy
// existing session is reused only for identical credentials; other credentials replace it.
// An account id already connected on another platform fails with ErrAccountConflict.
// The connect is detached from ctx and returns within the connect timeout whether or not
// the platform client honours cancellation.
func (r *Registry) ConnectAccount(ctx context.Context, ref platform.TradingAccountRef) (string, error) {
	if err := ref.Validate(); err != nil {
		return "", err
	}
	client, err := r.client(ref.Platform)
	if err != nil {
		return "", err
	}

	e, err := r.acquire(ctx, ref.AccountID, true)
	if err != nil {
		return "", err
	}

	done := make(chan error, 1)
	go func() {
		err := r.connect(context.WithoutCancel(ctx), e, client, ref)
		r.release(ref.AccountID, e)
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			return "", err
		}
		return ref.AccountID, nil
	case <-ctx.Done():
		r.logger.WithField("account_id", ref.AccountID).Info("Caller left during connect; continuing in background")
		return "", ctx.Err()
	}
}

// connect runs with e's lock held.
func (r *Registry) connect(ctx context.Context, e *entry, client platform.Client, ref platform.TradingAccountRef) error {
	log := r.logger.WithFields(logrus.Fields{"account_id": ref.AccountID, "platform": ref.Platform})

	if e.session != nil {
		if e.session.Platform() != ref.Platform {
			return fmt.Errorf("%w: %s is connected on %s", ErrAccountConflict, ref.AccountID, e.session.Platform())
		}
		sameCreds := e.creds == ref.Credentials
		if sameCreds && e.session.Connected() {
			log.Debug("Reusing healthy session")
			return nil
		}
		reason := "session dropped"
		if !sameCreds {
			reason = "credentials changed"
		}
		log.WithField("reason", reason).Info("Closing existing session before reconnecting")
		prevIdentity := e.identity()
		if err := r.closeSession(ctx, e, e.session); err != nil {
			return err
		}
		r.publish(ctx, Event{AccountID: ref.AccountID, Platform: ref.Platform, Name: ref.Name, State: StateUnconnected, Identity: prevIdentity, Reason: reason}, e, nil)
	}

	r.mu.Lock()
	e.status.Platform = ref.Platform
	e.status.Name = ref.Name
	r.mu.Unlock()

	identity := ref.Credentials.Identity()
	r.publish(ctx, Event{AccountID: ref.AccountID, Platform: ref.Platform, Name: ref.Name, State: StateConnecting, Identity: identity}, e, nil)

	cctx, cancel := context.WithTimeout(ctx, r.connectTimeout)
	defer cancel()

	started := time.Now()
	session, err := r.dial(ctx, cctx, client, ref)
	if err == nil && session == nil {
		err = platform.NewConnectError(ref.Platform, platform.ErrRemoteUnavailable, "platform returned no session")
	}
	if err != nil {
		err = normalizeConnectError(ref.Platform, err, cctx.Err(), r.connectTimeout)
		log.WithError(err).Warn("Connect failed")
		r.publish(ctx, Event{AccountID: ref.AccountID, Platform: ref.Platform, Name: ref.Name, State: StateUnconnected, Identity: identity, Err: err}, e, err)
		return err
	}

	e.session = session
	e.creds = ref.Credentials
	log.WithField("duration", time.Since(started).String()).Info("Account connected")
	r.publish(ctx, Event{AccountID: ref.AccountID, Platform: ref.Platform, Name: ref.Name, State: StateConnected, Identity: identity}, e, nil)
	return nil
}

type dialResult struct {
	session platform.Session
	err     error
}

// dial calls client.Connect and gives up when cctx ends, even if the client does not.
// A session that arrives after that is disconnected in the background.
func (r *Registry) dial(ctx, cctx context.Context, client platform.Client, ref platform.TradingAccountRef) (platform.Session, error) {
	results := make(chan dialResult, 1)
	go func() {
		session, err := client.Connect(cctx, ref.Credentials)
		results <- dialResult{session: session, err: err}
	}()

	select {
	case res := <-results:
		return res.session, res.err
	case <-cctx.Done():
		go r.discardLate(ctx, client, ref.AccountID, results)
		return nil, cctx.Err()
	}
}

func (r *Registry) discardLate(ctx context.Context, client platform.Client, accountID string, results <-chan dialResult) {
	res := <-results
	if res.session == nil {
		return
	}
	log := r.logger.WithField("account_id", accountID)
	log.Warn("Closing session that arrived after the connect timeout")
	dctx, cancel := context.WithTimeout(ctx, r.connectTimeout)
	defer cancel()
	if err := client.Disconnect(dctx, res.session); err != nil {
		log.WithError(err).Error("Failed to close late session")
	}
}

// normalizeConnectError maps any connect failure onto the connect error kinds.
func normalizeConnectError(p models.Platform, err, ctxErr error, timeout time.Duration) error {
	var connectErr *platform.ConnectError
	if errors.As(err, &connectErr) || errors.Is(err, platform.ErrValidation) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctxErr, context.DeadlineExceeded) {
		return platform.NewConnectError(p, platform.ErrSynchronizationTimeout, "no synchronized session within %s", timeout)
	}
	return platform.NewConnectError(p, platform.ErrRemoteUnavailable, "%v", err)
}

// closeSession disconnects prev and clears it from e. e's lock must be held.
func (r *Registry) closeSession(ctx context.Context, e *entry, prev platform.Session) error {
	client, err := r.client(prev.Platform())
	if err != nil {
		return err
	}
	if err := client.Disconnect(ctx, prev); err != nil {
		return err
	}
	e.session = nil
	e.creds = nil
	return nil
}

// lookup acquires the entry for a session operation.
func (r *Registry) lookup(ctx context.Context, accountID string) (*entry, platform.Client, error) {
	e, err := r.acquire(ctx, accountID, false)
	if err != nil {
		return nil, nil, err
	}
	if e.session == nil {
		r.release(accountID, e)
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownAccount, accountID)
	}
	client, err := r.client(e.session.Platform())
	if err != nil {
		r.release(accountID, e)
		return nil, nil, err
	}
	return e, client, nil
}

// AccountInfo returns a fresh snapshot for a connected account
func (r *Registry) AccountInfo(ctx context.Context, accountID string) (models.AccountSnapshot, error) {
	e, client, err := r.lookup(ctx, accountID)
	if err != nil {
		return models.AccountSnapshot{}, err
	}
	defer r.release(accountID, e)

	snap, err := client.AccountInfo(ctx, e.session)
	if err != nil {
		return models.AccountSnapshot{}, err
	}
	snap.AccountID = accountID
	return snap, nil
}

// History returns the trades of a connected account within [start, end]
func (r *Registry) History(ctx context.Context, accountID string, start, end time.Time) ([]models.TradeHistoryRecord, error) {
	if start.After(end) {
		return nil, fmt.Errorf("%w: start %s is after end %s", ErrInvalidRange, start.Format(time.RFC3339), end.Format(time.RFC3339))
	}
	e, client, err := r.lookup(ctx, accountID)
	if err != nil {
		return nil, err
	}
	defer r.release(accountID, e)

	records, err := client.History(ctx, e.session, start, end)
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []models.TradeHistoryRecord{}
	}
	return records, nil
}

// Positions returns the open positions of a connected account when its platform reports them
func (r *Registry) Positions(ctx context.Context, accountID string) ([]models.Position, error) {
	e, client, err := r.lookup(ctx, accountID)
	if err != nil {
		return nil, err
	}
	defer r.release(accountID, e)

	lister, ok := client.(platform.PositionLister)
	if !ok {
		return nil, fmt.Errorf("%w: positions on %s", ErrUnsupportedOperation, client.Platform())
	}
	positions, err := lister.Positions(ctx, e.session)
	if err != nil {
		return nil, err
	}
	if positions == nil {
		positions = []models.Position{}
	}
	return positions, nil
}

// DisconnectAccount closes the account's session. The entry is removed only after the
// platform disconnect succeeds. Unknown accounts are not an error.
func (r *Registry) DisconnectAccount(ctx context.Context, accountID string) error {
	e, err := r.acquire(ctx, accountID, false)
	if errors.Is(err, ErrUnknownAccount) {
		return nil
	}
	if err != nil {
		return err
	}
	defer r.release(accountID, e)

	if e.session == nil {
		return nil
	}
	return r.disconnect(ctx, accountID, e, "requested")
}

// disconnect runs with e's lock held.
func (r *Registry) disconnect(ctx context.Context, accountID string, e *entry, reason string) error {
	status := r.Status(accountID)
	identity := e.identity()
	prevState := status.State

	r.publish(ctx, Event{AccountID: accountID, Platform: status.Platform, Name: status.Name, State: StateDisconnecting, Identity: identity, Reason: reason}, e, nil)

	if err := r.closeSession(ctx, e, e.session); err != nil {
		r.logger.WithError(err).WithField("account_id", accountID).Warn("Disconnect failed")
		r.publish(ctx, Event{AccountID: accountID, Platform: status.Platform, Name: status.Name, State: prevState, Identity: identity, Reason: "disconnect failed", Err: err}, e, err)
		return err
	}

	r.publish(ctx, Event{AccountID: accountID, Platform: status.Platform, Name: status.Name, State: StateUnconnected, Identity: identity, Reason: reason}, e, nil)
	r.logger.WithFields(logrus.Fields{"account_id": accountID, "reason": reason}).Info("Account disconnected")
	return nil
}

func (e *entry) identity() platform.Identity {
	if e.creds == nil {
		return platform.Identity{}
	}
	return e.creds.Identity()
}

// Status returns the entry for accountID, or an unconnected status when there is none.
func (r *Registry) Status(accountID string) AccountStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[accountID]; ok {
		return e.status
	}
	return AccountStatus{AccountID: accountID, State: StateUnconnected}
}

// Accounts lists every entry, sorted by account id
func (r *Registry) Accounts() []AccountStatus {
	r.mu.Lock()
	statuses := make([]AccountStatus, 0, len(r.entries))
	for _, e := range r.entries {
		statuses = append(statuses, e.status)
	}
	r.mu.Unlock()

	sort.Slice(statuses, func(i, j int) bool { return statuses[i].AccountID < statuses[j].AccountID })
	return statuses
}

func (r *Registry) accountIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Sweep probes connected sessions and evicts the ones that dropped, closing them first.
// It returns the number of evicted sessions.
func (r *Registry) Sweep(ctx context.Context) int {
	evicted := 0
	for _, id := range r.accountIDs() {
		if ctx.Err() != nil {
			break
		}
		e, err := r.acquire(ctx, id, false)
		if err != nil {
			continue
		}
		if e.session != nil {
			if prober, ok := r.clients[e.session.Platform()].(platform.Prober); ok {
				if err := prober.Probe(ctx, e.session); err != nil {
					r.logger.WithError(err).WithField("account_id", id).Warn("Session probe failed")
				}
			}
			if !e.session.Connected() {
				if err := r.disconnect(ctx, id, e, "session dropped"); err == nil {
					evicted++
				}
			}
		}
		r.release(id, e)
	}
	return evicted
}

// Close refuses new connects and disconnects every session in parallel.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	var (
		wg   conc.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, id := range r.accountIDs() {
		id := id
		wg.Go(func() {
			if err := r.DisconnectAccount(ctx, id); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("disconnect %s: %w", id, err))
				mu.Unlock()
			}
		})
	}
	wg.Wait()
	return errors.Join(errs...)
}

// publish records the state on e and notifies listeners. e's lock must be held.
func (r *Registry) publish(ctx context.Context, ev Event, e *entry, err error) {
	ev.At = time.Now().UTC()
	if ev.Err == nil {
		ev.Err = err
	}
	r.setState(e, ev.State, ev.Err, ev.At)
	for _, l := range r.listeners {
		l.AccountStateChanged(ctx, ev)
	}
}
