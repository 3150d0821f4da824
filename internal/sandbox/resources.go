package sandbox

import (
	"sync"

	"github.com/google/uuid"
)

// PathPrefix is the URL path materialized documents are served under.
const PathPrefix = "/sandbox/"

// URL returns the path of the resource with the given handle.
func URL(handle string) string {
	return PathPrefix + handle
}

// Resources holds materialized documents by handle. The HTTP server reads
// from it; the runtime creates and releases entries.
type Resources struct {
	mu   sync.RWMutex
	docs map[string]string
}

func NewResources() *Resources {
	return &Resources{docs: make(map[string]string)}
}

// Create stores doc under a fresh handle.
func (r *Resources) Create(doc string) string {
	handle := uuid.NewString()
	r.mu.Lock()
	r.docs[handle] = doc
	r.mu.Unlock()
	return handle
}

func (r *Resources) Get(handle string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	doc, ok := r.docs[handle]
	return doc, ok
}

// Release drops the resource. Unknown handles are ignored.
func (r *Resources) Release(handle string) {
	r.mu.Lock()
	delete(r.docs, handle)
	r.mu.Unlock()
}

// Live reports how many resources are held.
func (r *Resources) Live() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.docs)
}
