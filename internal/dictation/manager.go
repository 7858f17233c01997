// Package dictation relays browser speech-recognition events over a websocket.
package dictation

import (
	"log/slog"
	"sync"

	"github.com/coder/websocket"
)

// SessionManager tracks the active dictation connection for each case.
type SessionManager struct {
	mu     sync.RWMutex
	active map[string]*websocket.Conn
}

// NewSessionManager creates a new session manager.
func NewSessionManager() *SessionManager {
	return &SessionManager{
		active: make(map[string]*websocket.Conn),
	}
}

// GetActive returns the active connection for a case.
func (m *SessionManager) GetActive(caseID string) *websocket.Conn {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active[caseID]
}

// Register makes conn the dictation connection for a case. A previous
// connection for the same case is closed.
func (m *SessionManager) Register(caseID string, conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, exists := m.active[caseID]; exists && existing != conn {
		_ = existing.Close(websocket.StatusNormalClosure, "dictation moved to another window")
	}

	m.active[caseID] = conn
	slog.Info("Dictation session registered", "case_id", caseID)
}

// Unregister removes conn if it is still the case's active connection.
func (m *SessionManager) Unregister(caseID string, conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if current, exists := m.active[caseID]; exists && current == conn {
		delete(m.active, caseID)
		slog.Info("Dictation session unregistered", "case_id", caseID)
	}
}

// CloseCase terminates the dictation connection of a case.
func (m *SessionManager) CloseCase(caseID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	conn, ok := m.active[caseID]
	if !ok {
		return
	}
	_ = conn.Close(websocket.StatusNormalClosure, "case closed")
	delete(m.active, caseID)
	slog.Info("Dictation session closed", "case_id", caseID)
}

// Count returns the number of active dictation connections.
func (m *SessionManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.active)
}
