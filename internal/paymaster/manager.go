package paymaster

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// Manager owns at most one open session per wallet. Opening a new session
// while one is active replaces it (last-writer-wins, no queueing): the old
// poller is stopped and the old callback is dropped without firing.
type Manager struct {
	mu       sync.Mutex
	sessions map[common.Address]*managedSession

	baseCtx   context.Context
	reader    ChainReader
	submitter TxSubmitter
	interval  time.Duration
	log       *zap.Logger
}

type managedSession struct {
	session *Session
	cancel  context.CancelFunc
}

// NewManager builds a session manager. ctx is the service lifetime: pollers
// run on contexts derived from it, so they outlive the HTTP request that
// opened the session and stop together when the service shuts down.
func NewManager(ctx context.Context, reader ChainReader, submitter TxSubmitter, interval time.Duration, log *zap.Logger) *Manager {
	if ctx == nil {
		ctx = context.Background()
	}
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Manager{
		sessions:  make(map[common.Address]*managedSession),
		baseCtx:   ctx,
		reader:    reader,
		submitter: submitter,
		interval:  interval,
		log:       log,
	}
}

// Open creates (or replaces) the wallet's session and starts its poller.
func (m *Manager) Open(wallet common.Address, req PaymasterRequest, onSuccess SuccessFunc) (*Session, error) {
	session := NewSession(wallet, m.reader, m.submitter, m.log)
	if err := session.Open(req, onSuccess); err != nil {
		return nil, err
	}

	m.mu.Lock()
	if prev, ok := m.sessions[wallet]; ok {
		prev.cancel()
		m.log.Info("replacing open session",
			zap.String("wallet", wallet.Hex()),
			zap.String("session", prev.session.ID()),
		)
	}
	pollCtx, cancel := context.WithCancel(m.baseCtx)
	m.sessions[wallet] = &managedSession{session: session, cancel: cancel}
	m.mu.Unlock()

	go session.RunPoller(pollCtx, m.interval)
	return session, nil
}

// Get returns the wallet's open session, if any.
func (m *Manager) Get(wallet common.Address) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ms, ok := m.sessions[wallet]
	if !ok {
		return nil, false
	}
	return ms.session, true
}

// Close stops the wallet's poller and closes the session. Closing while a
// receipt is still pending stops tracking only; the submitted transaction
// stays on-chain.
func (m *Manager) Close(wallet common.Address) (TxOutcome, error) {
	m.mu.Lock()
	ms, ok := m.sessions[wallet]
	if ok {
		delete(m.sessions, wallet)
	}
	m.mu.Unlock()

	if !ok {
		return TxOutcome{}, ErrRequestMissing
	}
	ms.cancel()
	return ms.session.Close(), nil
}

// Shutdown stops all pollers. Sessions are not closed: callbacks must not
// fire during shutdown.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for wallet, ms := range m.sessions {
		ms.cancel()
		delete(m.sessions, wallet)
	}
}
