package ping

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func Test_RegistryStopIdempotent(t *testing.T) {
	r := NewRegistry()
	r.Stop(1)
	require.Equal(t, 0, r.Len())

	r.Commence(1, NewUserSet(10), t0, time.Minute)
	r.Stop(1)
	r.Stop(1)
	_, ok := r.Get(1)
	require.False(t, ok)
}

func Test_RegistryUnion(t *testing.T) {
	r := NewRegistry()
	r.Commence(1, NewUserSet(10), t0, time.Minute)
	r.Commence(1, NewUserSet(20, 10), t0.Add(30*time.Second), time.Minute)

	task, ok := r.Get(1)
	require.True(t, ok)
	require.Equal(t, NewUserSet(10, 20), task.Users)
	// only creation sets the deadline
	require.Equal(t, t0.Add(time.Minute), task.ExpiresAt)
}

func Test_RegistryDifference(t *testing.T) {
	r := NewRegistry()
	r.Commence(1, NewUserSet(10, 20), t0, time.Minute)
	r.Remove(1, NewUserSet(10))

	task, _ := r.Get(1)
	require.Equal(t, NewUserSet(20), task.Users)

	r.Remove(1, NewUserSet(20, 30))
	task, ok := r.Get(1)
	require.True(t, ok, "empty task must stay until stop or expiry")
	require.Empty(t, task.Users)

	r.Remove(2, NewUserSet(10))
	require.Equal(t, 1, r.Len())
}

func Test_RegistryExpire(t *testing.T) {
	r := NewRegistry()
	r.Commence(2, NewUserSet(10), t0, time.Minute)
	r.Commence(1, NewUserSet(10), t0, time.Minute)
	r.Commence(3, NewUserSet(10), t0.Add(time.Hour), time.Minute)

	require.Empty(t, r.Expire(t0.Add(time.Minute)))
	require.Equal(t, []ChannelID{1, 2}, r.Expire(t0.Add(time.Minute+time.Nanosecond)))
	require.Equal(t, 1, r.Len())
	require.Empty(t, r.Expire(t0.Add(2*time.Minute)))
}

func Test_RegistryChannelsIsolated(t *testing.T) {
	r := NewRegistry()
	r.Commence(1, NewUserSet(10), t0, time.Minute)
	r.Commence(2, NewUserSet(20), t0, time.Minute)

	r.Commence(1, NewUserSet(11), t0, time.Minute)
	r.Remove(1, NewUserSet(10))
	r.Stop(1)

	task, ok := r.Get(2)
	require.True(t, ok)
	require.Equal(t, NewUserSet(20), task.Users)
}

func Test_RegistryCopies(t *testing.T) {
	users := NewUserSet(10)
	r := NewRegistry()
	r.Commence(1, users, t0, time.Minute)
	users[99] = struct{}{}

	task, _ := r.Get(1)
	task.Users[42] = struct{}{}

	again, _ := r.Get(1)
	require.Equal(t, NewUserSet(10), again.Users)
}

func Test_RegistrySnapshotOrder(t *testing.T) {
	r := NewRegistry()
	for _, ch := range []ChannelID{5, -3, 1} {
		r.Commence(ch, NewUserSet(1), t0, time.Minute)
	}
	var got []ChannelID
	for _, task := range r.Snapshot() {
		got = append(got, task.Channel)
	}
	require.Equal(t, []ChannelID{-3, 1, 5}, got)
}
