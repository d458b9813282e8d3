package telegram

import "sync"

// Session holds per-chat conversational state: attachments collected for the
// next prompt. The selected model is persisted on the user record instead.
type Session struct {
	AttachmentURLs []string
	HasDocument    bool
}

type StateManager struct {
	mu       sync.RWMutex
	sessions map[int64]*Session
}

func NewStateManager() *StateManager {
	return &StateManager{
		sessions: make(map[int64]*Session),
	}
}

func (m *StateManager) Get(chatID int64) *Session {
	m.mu.RLock()
	session, ok := m.sessions[chatID]
	m.mu.RUnlock()
	if ok {
		return session
	}
	return &Session{AttachmentURLs: make([]string, 0)}
}

func (m *StateManager) Set(chatID int64, session *Session) {
	m.mu.Lock()
	m.sessions[chatID] = session
	m.mu.Unlock()
}

func (m *StateManager) Reset(chatID int64) {
	m.Set(chatID, &Session{AttachmentURLs: make([]string, 0)})
}
