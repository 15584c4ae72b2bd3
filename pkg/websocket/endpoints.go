package websocket

import "sync"

// EndpointRotation cycles through a list of endpoints so consecutive
// reconnect attempts try different hosts.
type EndpointRotation struct {
	mu        sync.Mutex
	endpoints []string
	next      int
}

// NewEndpointRotation creates a rotation over the given endpoints.
func NewEndpointRotation(endpoints []string) *EndpointRotation {
	return &EndpointRotation{
		endpoints: append([]string(nil), endpoints...),
	}
}

// Next returns the next endpoint in rotation order.
func (r *EndpointRotation) Next() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	endpoint := r.endpoints[r.next]
	r.next = (r.next + 1) % len(r.endpoints)
	return endpoint
}

// Size returns the number of endpoints.
func (r *EndpointRotation) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.endpoints)
}
