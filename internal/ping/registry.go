package ping

import (
	"sort"
	"time"
)

// Task is one channel's active cannon run.
type Task struct {
	Channel   ChannelID
	Users     UserSet
	ExpiresAt time.Time
}

// Registry maps channels to their running tasks. It has no locking of its own;
// the worker loop is its only user.
type Registry struct {
	tasks map[ChannelID]*Task
}

func NewRegistry() *Registry {
	return &Registry{tasks: make(map[ChannelID]*Task)}
}

// Commence creates a task expiring at now+timeout, or merges users into the
// existing one. The deadline of an existing task is kept as is.
func (r *Registry) Commence(ch ChannelID, users UserSet, now time.Time, timeout time.Duration) {
	if t, ok := r.tasks[ch]; ok {
		for u := range users {
			t.Users[u] = struct{}{}
		}
		return
	}
	r.tasks[ch] = &Task{
		Channel:   ch,
		Users:     users.clone(),
		ExpiresAt: now.Add(timeout),
	}
}

// Remove drops users from the channel's task. A task left without users stays
// registered until Stop or expiry.
func (r *Registry) Remove(ch ChannelID, users UserSet) {
	t, ok := r.tasks[ch]
	if !ok {
		return
	}
	for u := range users {
		delete(t.Users, u)
	}
}

// Stop deletes the channel's task. Missing channels are ignored.
func (r *Registry) Stop(ch ChannelID) {
	delete(r.tasks, ch)
}

// Expire deletes every task whose deadline is before now and returns the
// affected channels in ascending order.
func (r *Registry) Expire(now time.Time) []ChannelID {
	var expired []ChannelID
	for ch, t := range r.tasks {
		if now.After(t.ExpiresAt) {
			expired = append(expired, ch)
		}
	}
	for _, ch := range expired {
		delete(r.tasks, ch)
	}
	sort.Slice(expired, func(i, j int) bool { return expired[i] < expired[j] })
	return expired
}

// Get returns a copy of the channel's task.
func (r *Registry) Get(ch ChannelID) (Task, bool) {
	t, ok := r.tasks[ch]
	if !ok {
		return Task{}, false
	}
	return Task{Channel: t.Channel, Users: t.Users.clone(), ExpiresAt: t.ExpiresAt}, true
}

func (r *Registry) Len() int {
	return len(r.tasks)
}

// Snapshot copies all tasks, ordered by channel.
func (r *Registry) Snapshot() []Task {
	out := make([]Task, 0, len(r.tasks))
	for _, t := range r.tasks {
		out = append(out, Task{Channel: t.Channel, Users: t.Users.clone(), ExpiresAt: t.ExpiresAt})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Channel < out[j].Channel })
	return out
}

func (r *Registry) apply(msg Message, now time.Time, timeout time.Duration) {
	switch m := msg.(type) {
	case Commence:
		r.Commence(m.Channel, m.Users, now, timeout)
	case Remove:
		r.Remove(m.Channel, m.Users)
	case Stop:
		r.Stop(m.Channel)
	}
}
