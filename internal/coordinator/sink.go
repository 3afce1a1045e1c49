package coordinator

import (
	"time"

	"github.com/positivef/udo-sync/internal/breaker"
	"github.com/positivef/udo-sync/internal/domain"
	"github.com/positivef/udo-sync/internal/vault"
)

// vaultSink adapts a *vault.Store to queue.Sink, routing writes through a
// circuit breaker: vault I/O is exactly the kind of downstream call spec.md
// §2 calls out as needing failure containment (a degraded or unmounted
// disk must not hang every subsequent flush attempt).
type vaultSink struct {
	store      *vault.Store
	breaker    *breaker.Breaker
	afterWrite func()
}

func newVaultSink(store *vault.Store, br *breaker.Breaker, afterWrite func()) *vaultSink {
	return &vaultSink{store: store, breaker: br, afterWrite: afterWrite}
}

func (s *vaultSink) Write(title string, fm domain.FrontMatter, body string, timestamp time.Time) (string, error) {
	path, err := s.write(title, fm, body, timestamp)
	if err == nil && s.afterWrite != nil {
		s.afterWrite()
	}
	return path, err
}

func (s *vaultSink) write(title string, fm domain.FrontMatter, body string, timestamp time.Time) (string, error) {
	if s.breaker == nil {
		return s.store.Write(title, fm, body, timestamp)
	}
	result, err := s.breaker.Call(func() (any, error) {
		return s.store.Write(title, fm, body, timestamp)
	})
	if err != nil {
		return "", err
	}
	path, _ := result.(string)
	return path, nil
}
