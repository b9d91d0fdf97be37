package audit

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// MultiLogger logs to multiple audit loggers
type MultiLogger struct {
	loggers []Logger
	async   bool
	wg      sync.WaitGroup

	mu        sync.Mutex
	asyncErrs []error
}

// NewMultiLogger creates a new multi-logger that writes to every destination
// synchronously
func NewMultiLogger(loggers ...Logger) *MultiLogger {
	return &MultiLogger{loggers: loggers}
}

// SetAsync sets whether logging should be asynchronous
func (m *MultiLogger) SetAsync(async bool) {
	m.async = async
}

// Log logs an audit event to all configured loggers
func (m *MultiLogger) Log(ctx context.Context, event *AuditEvent) error {
	if len(m.loggers) == 0 {
		return nil
	}

	if m.async {
		m.logAsync(context.WithoutCancel(ctx), event)
		return nil
	}

	var errs []error
	for _, logger := range m.loggers {
		// Continue logging to other loggers even if one fails
		if err := logger.Log(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *MultiLogger) logAsync(ctx context.Context, event *AuditEvent) {
	for _, logger := range m.loggers {
		m.wg.Add(1)
		go func(l Logger) {
			defer m.wg.Done()
			if err := l.Log(ctx, event); err != nil {
				m.mu.Lock()
				m.asyncErrs = append(m.asyncErrs, err)
				m.mu.Unlock()
			}
		}(logger)
	}
}

// Wait waits for all async logging operations to complete
func (m *MultiLogger) Wait() {
	m.wg.Wait()
}

// Errors returns and clears errors collected from async logging
func (m *MultiLogger) Errors() []error {
	m.mu.Lock()
	defer m.mu.Unlock()
	errs := m.asyncErrs
	m.asyncErrs = nil
	return errs
}

// Close waits for pending writes and closes all loggers
func (m *MultiLogger) Close() error {
	m.wg.Wait()

	var errs []error
	for _, logger := range m.loggers {
		if err := logger.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close logger: %w", err))
		}
	}
	return errors.Join(errs...)
}
