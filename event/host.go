package event

import (
	"strings"
	"sync"
	"time"
)

// host is the per-resource registry entry: HOST_NODE translated. interests
// tracks every (user, folder) pair that resource has SELECTed, each with
// its own last-touched time so the scanner can expire stale entries
// independently of the resource's subscriber list. subscribers holds every
// LISTEN connection currently fanning out events for this resource; publish
// round-robins through it the same way ev_enqwork rotates phost->list so a
// single slow subscriber never starves the others.
type host struct {
	resID string

	mu          sync.Mutex
	lastTime    time.Time
	interests   map[string]time.Time // "user:folder" -> last SELECT/refresh
	subscribers []*subscriber
}

func newHost(resID string) *host {
	return &host{
		resID:     resID,
		lastTime:  time.Now(),
		interests: map[string]time.Time{},
	}
}

func interestKey(user, folder string) string {
	return strings.ToLower(user) + ":" + strings.ToLower(folder)
}

func (h *host) touch() {
	h.mu.Lock()
	h.lastTime = time.Now()
	h.mu.Unlock()
}

func (h *host) selectFolder(user, folder string) {
	key := interestKey(user, folder)
	h.mu.Lock()
	h.interests[key] = time.Now()
	h.lastTime = time.Now()
	h.mu.Unlock()
}

func (h *host) unselectFolder(user, folder string) {
	key := interestKey(user, folder)
	h.mu.Lock()
	delete(h.interests, key)
	h.lastTime = time.Now()
	h.mu.Unlock()
}

func (h *host) interested(user, folder string) bool {
	key := interestKey(user, folder)
	h.mu.Lock()
	_, ok := h.interests[key]
	h.mu.Unlock()
	return ok
}

func (h *host) addSubscriber(s *subscriber) {
	h.mu.Lock()
	h.subscribers = append(h.subscribers, s)
	h.mu.Unlock()
}

func (h *host) removeSubscriber(s *subscriber) {
	h.mu.Lock()
	for i, sub := range h.subscribers {
		if sub == s {
			h.subscribers = append(h.subscribers[:i], h.subscribers[i+1:]...)
			break
		}
	}
	h.mu.Unlock()
}

// nextSubscriber pops the front subscriber and pushes it to the back,
// mirroring ev_enqwork's "pop front, push back" round robin, and returns
// it for delivery. Returns nil if there are no subscribers.
func (h *host) nextSubscriber() *subscriber {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.subscribers) == 0 {
		return nil
	}
	s := h.subscribers[0]
	h.subscribers = append(h.subscribers[1:], s)
	return s
}

// idle reports whether this host has no subscribers, no interest entries
// touched within selectInterval, and no activity within hostInterval —
// the scanner's reclaim test. Interest entries older than selectInterval
// are deleted as a side effect, even when the host is not idle.
func (h *host) idle(now time.Time) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.subscribers) > 0 {
		return false
	}
	for key, seen := range h.interests {
		if now.Sub(seen) >= selectInterval {
			delete(h.interests, key)
		}
	}
	return len(h.interests) == 0 && now.Sub(h.lastTime) >= hostInterval
}

// registry is the process-wide map of resource ID to host, ev_acceptwork's
// g_host_list translated to a mutex-protected map.
type registry struct {
	mu    sync.Mutex
	hosts map[string]*host
}

func newRegistry() *registry {
	return &registry{hosts: map[string]*host{}}
}

func (r *registry) get(resID string) *host {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hosts[resID]
}

func (r *registry) getOrCreate(resID string) *host {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.hosts[resID]
	if !ok {
		h = newHost(resID)
		r.hosts[resID] = h
	}
	return h
}

// forEach calls fn for every registered host, on a snapshot of the host
// list taken under the registry lock; fn itself runs without that lock.
func (r *registry) forEach(fn func(*host)) {
	r.mu.Lock()
	hosts := make([]*host, 0, len(r.hosts))
	for _, h := range r.hosts {
		hosts = append(hosts, h)
	}
	r.mu.Unlock()

	for _, h := range hosts {
		fn(h)
	}
}

func (r *registry) reap(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for resID, h := range r.hosts {
		if h.idle(now) {
			delete(r.hosts, resID)
		}
	}
}
