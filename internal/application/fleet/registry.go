package fleet

import (
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/polyforge/printfarm-go/internal/domain/printing"
)

// StatusRegistry caches the latest polled status per printer. Entries expire
// after three missed poll cycles, so a printer whose poller stopped reporting
// degrades to a connection error instead of serving stale flags forever.
type StatusRegistry struct {
	cache *gocache.Cache
}

// NewStatusRegistry builds the registry for the given poll period.
func NewStatusRegistry(pollPeriod time.Duration) *StatusRegistry {
	ttl := 3 * pollPeriod
	return &StatusRegistry{
		cache: gocache.New(ttl, ttl),
	}
}

// Put stores the freshly polled status for a printer.
func (r *StatusRegistry) Put(printerID int, status printing.Status) {
	r.cache.SetDefault(key(printerID), status)
}

// Get returns the cached status. A missing or expired entry reads as a
// connection error.
func (r *StatusRegistry) Get(printerID int) printing.Status {
	if v, ok := r.cache.Get(key(printerID)); ok {
		return v.(printing.Status)
	}
	return printing.Status{ConnectionError: true}
}

// Clear drops a printer's cached status, used by controller reset.
func (r *StatusRegistry) Clear(printerID int) {
	r.cache.Delete(key(printerID))
}

func key(printerID int) string {
	return fmt.Sprintf("printer-%d", printerID)
}
