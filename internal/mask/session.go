package mask

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"studio/internal/infra"
)

var (
	ErrSessionNotFound = errors.New("mask: session not found")
	ErrCapacity        = errors.New("mask: too many open sessions")
)

// Manager defaults.
const (
	DefaultTTL         = 30 * time.Minute
	DefaultMaxSessions = 256
	DefaultMaxBytes    = 2 << 30
)

// State describes a session without its pixels.
type State struct {
	ID       string  `json:"id"`
	Width    int     `json:"width"`
	Height   int     `json:"height"`
	CanUndo  bool    `json:"canUndo"`
	CanRedo  bool    `json:"canRedo"`
	Coverage float64 `json:"coverage"`
}

// Session is one canvas with its history. Methods are safe for concurrent use.
type Session struct {
	id      string
	mu      sync.Mutex
	canvas  *Canvas
	history History
	touched time.Time
	// worst-case bytes of canvas plus history, charged to the manager
	reserved int
}

func (s *Session) ID() string { return s.id }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

// Paint applies strokes as a single undoable step. Strokes are checked
// before anything is recorded, so a rejected call leaves no history entry.
func (s *Session) Paint(strokes []Stroke) (State, error) {
	points := 0
	for _, st := range strokes {
		if err := st.Validate(); err != nil {
			return s.State(), err
		}
		points += len(st.Points)
	}
	if points > MaxStrokePoints {
		return s.State(), fmt.Errorf("%w: more than %d points", ErrInvalidStroke, MaxStrokePoints)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	var cost float64
	for _, st := range strokes {
		cost += s.canvas.Cost(st)
	}
	if cost > MaxPaintCost {
		return s.stateLocked(), ErrPaintTooLarge
	}
	s.history.Record(s.canvas)
	for _, st := range strokes {
		s.canvas.Apply(st)
	}
	return s.stateLocked(), nil
}

func (s *Session) Clear() State  { return s.mutate((*Canvas).Clear) }
func (s *Session) Invert() State { return s.mutate((*Canvas).Invert) }

func (s *Session) Undo() (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.history.Undo(s.canvas); err != nil {
		return s.stateLocked(), err
	}
	return s.stateLocked(), nil
}

func (s *Session) Redo() (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.history.Redo(s.canvas); err != nil {
		return s.stateLocked(), err
	}
	return s.stateLocked(), nil
}

// PNG renders the mask, optionally rescaled.
func (s *Session) PNG(width, height int) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.canvas.PNG(width, height)
}

func (s *Session) mutate(fn func(*Canvas)) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history.Record(s.canvas)
	fn(s.canvas)
	return s.stateLocked()
}

func (s *Session) stateLocked() State {
	return State{
		ID:       s.id,
		Width:    s.canvas.Width(),
		Height:   s.canvas.Height(),
		CanUndo:  s.history.CanUndo(),
		CanRedo:  s.history.CanRedo(),
		Coverage: s.canvas.Coverage(),
	}
}

// Options configures a Manager. Zero fields take the package defaults.
type Options struct {
	TTL time.Duration
	// MaxSessions caps live sessions.
	MaxSessions int
	// MaxBytes caps the worst-case memory of all live sessions.
	MaxBytes int
	// HistoryBytes is the undo snapshot budget per session.
	HistoryBytes int
	Logger       *infra.Logger
}

// Manager keeps mask sessions in memory and expires idle ones.
type Manager struct {
	ttl          time.Duration
	maxSessions  int
	maxBytes     int
	historyBytes int
	logger       *infra.Logger
	now          func() time.Time
	mu           sync.Mutex
	sessions     map[string]*Session
	reserved     int
}

func NewManager(opts Options) *Manager {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.MaxSessions <= 0 {
		opts.MaxSessions = DefaultMaxSessions
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = DefaultMaxBytes
	}
	if opts.HistoryBytes <= 0 {
		opts.HistoryBytes = DefaultHistoryBytes
	}
	if opts.Logger == nil {
		opts.Logger = infra.DiscardLogger()
	}
	return &Manager{
		ttl:          opts.TTL,
		maxSessions:  opts.MaxSessions,
		maxBytes:     opts.MaxBytes,
		historyBytes: opts.HistoryBytes,
		logger:       opts.Logger,
		now:          time.Now,
		sessions:     make(map[string]*Session),
	}
}

// Create opens a blank session. It fails with ErrCapacity when the session
// count or the memory budget would be exceeded.
func (m *Manager) Create(width, height int) (*Session, error) {
	if width <= 0 || height <= 0 || width > MaxDimension || height > MaxDimension {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidSize, width, height)
	}
	history := History{Budget: m.historyBytes}
	size := width * height
	reserve := size * (1 + history.Slots(size))

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweepLocked()
	if len(m.sessions) >= m.maxSessions || m.reserved+reserve > m.maxBytes {
		return nil, ErrCapacity
	}
	canvas, err := NewCanvas(width, height)
	if err != nil {
		return nil, err
	}
	s := &Session{id: uuid.NewString(), canvas: canvas, history: history, touched: m.now(), reserved: reserve}
	m.sessions[s.id] = s
	m.reserved += reserve
	return s, nil
}

// Get returns a live session and refreshes its idle timer.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweepLocked()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	s.touched = m.now()
	return s, nil
}

func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	m.removeLocked(s)
	return nil
}

// Len reports the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Sweep drops idle sessions and returns how many were removed.
func (m *Manager) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sweepLocked()
}

// Run sweeps on every tick until ctx is done.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.Sweep(); n > 0 {
				m.logger.Debug().Int("expired", n).Msg("mask sessions swept")
			}
		}
	}
}

func (m *Manager) sweepLocked() int {
	cutoff := m.now().Add(-m.ttl)
	removed := 0
	for _, s := range m.sessions {
		if s.touched.Before(cutoff) {
			m.removeLocked(s)
			removed++
		}
	}
	return removed
}

func (m *Manager) removeLocked(s *Session) {
	delete(m.sessions, s.id)
	m.reserved -= s.reserved
}

// Reserved reports the worst-case bytes charged by live sessions.
func (m *Manager) Reserved() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reserved
}
