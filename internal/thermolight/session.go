package thermolight

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/saaga0h/jeeves-thermolight/pkg/tuya"
)

// Device is the light being controlled
type Device interface {
	Status(ctx context.Context) (*tuya.Status, error)
	SetColour(ctx context.Context, r, g, b float64) error
	TurnOn(ctx context.Context) error
	TurnOff(ctx context.Context) error
	Close() error
}

// DialFunc opens a new device session
type DialFunc func(ctx context.Context) (Device, error)

// SessionState is the state of the device session
type SessionState int

const (
	SessionDisconnected SessionState = iota
	SessionConnected
)

func (s SessionState) String() string {
	switch s {
	case SessionConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Session owns the device connection.
// Connected → Disconnected on Invalidate (malformed status or I/O error);
// Disconnected → Connected on a successful Ensure before the next cycle.
type Session struct {
	dial   DialFunc
	logger *slog.Logger

	mu          sync.RWMutex
	device      Device
	state       SessionState
	rebuilds    int
	lastChange  time.Time
	lastFailure string
}

// NewSession creates a disconnected session
func NewSession(dial DialFunc, logger *slog.Logger) *Session {
	return &Session{
		dial:       dial,
		logger:     logger,
		lastChange: time.Now(),
	}
}

// Ensure returns the connected device, dialing first when disconnected
func (s *Session) Ensure(ctx context.Context) (Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == SessionConnected && s.device != nil {
		return s.device, nil
	}

	device, err := s.dial(ctx)
	if err != nil {
		s.lastFailure = err.Error()
		return nil, fmt.Errorf("failed to open device session: %w", err)
	}

	s.logger.Info("Device session established", "rebuilds", s.rebuilds)
	s.device = device
	s.state = SessionConnected
	s.lastChange = time.Now()
	return device, nil
}

// Invalidate closes the device and marks the session disconnected.
// The next Ensure rebuilds it.
func (s *Session) Invalidate(reason string, cause error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == SessionDisconnected && s.device == nil {
		return
	}

	s.logger.Warn("Rebuilding device session",
		"reason", reason,
		"error", cause)

	if s.device != nil {
		if err := s.device.Close(); err != nil {
			s.logger.Debug("Error closing device", "error", err)
		}
	}

	s.device = nil
	s.state = SessionDisconnected
	s.rebuilds++
	s.lastChange = time.Now()
	s.lastFailure = reason
}

// State returns the current session state
func (s *Session) State() SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Rebuilds returns how many times the session was invalidated
func (s *Session) Rebuilds() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rebuilds
}

// LastFailure returns the reason of the last dial failure or invalidation
func (s *Session) LastFailure() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastFailure
}

// Close releases the device
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	if s.device != nil {
		err = s.device.Close()
	}
	s.device = nil
	s.state = SessionDisconnected
	return err
}

// TuyaDialer returns a DialFunc opening protocol 3.3 connections
func TuyaDialer(id, address, localKey string, timeout time.Duration, logger *slog.Logger) DialFunc {
	return func(ctx context.Context) (Device, error) {
		device, err := tuya.Dial(ctx, id, address, localKey,
			tuya.WithTimeout(timeout),
			tuya.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		return device, nil
	}
}

// Since returns when the session last changed state
func (s *Session) Since() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastChange
}
