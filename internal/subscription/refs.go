package subscription

import "sync"

// TopicRefs counts how many pages use a broker topic, so a topic shared by
// two pages is subscribed once and only released by the last user.
type TopicRefs struct {
	mu    sync.Mutex
	count map[string]int
}

// NewTopicRefs creates an empty counter
func NewTopicRefs() *TopicRefs {
	return &TopicRefs{count: make(map[string]int)}
}

// Acquire reports whether this is the first user of topic
func (r *TopicRefs) Acquire(topic string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.count[topic]++
	return r.count[topic] == 1
}

// Release reports whether the last user of topic went away
func (r *TopicRefs) Release(topic string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.count[topic]
	if !ok {
		return false
	}
	if n <= 1 {
		delete(r.count, topic)
		return true
	}
	r.count[topic] = n - 1
	return false
}

// Topics lists topics with at least one user
func (r *TopicRefs) Topics() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.count))
	for t := range r.count {
		out = append(out, t)
	}
	return out
}

// Reset drops every count
func (r *TopicRefs) Reset() {
	r.mu.Lock()
	r.count = make(map[string]int)
	r.mu.Unlock()
}
