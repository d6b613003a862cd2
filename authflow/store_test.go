package authflow

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	autherrors "github.com/jrsteele09/ehr-auth-broker/internal/errors"
	"github.com/jrsteele09/ehr-auth-broker/oauthmodel"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestTakeIsSingleUse(t *testing.T) {
	clock := newFakeClock()
	store := NewTTLStore[*AuthorizationRequest]("authorization_requests", 5*time.Minute, WithNowTime(clock.Now))

	req := &AuthorizationRequest{RequestID: "req-1", ClientID: "client", RedirectURI: "https://client.example/cb"}
	require.NoError(t, store.Put("req-1", req))

	got, err := store.Take("req-1")
	require.NoError(t, err)
	require.Equal(t, req, got)

	_, err = store.Take("req-1")
	require.ErrorIs(t, err, autherrors.ErrNotFound)
}

func TestPutRejectsEmptyAndDuplicateIDs(t *testing.T) {
	store := NewTTLStore[string]("s", time.Minute)
	require.ErrorIs(t, store.Put("", "v"), autherrors.ErrEmptyKey)
	require.NoError(t, store.Put("id", "v"))
	require.ErrorIs(t, store.Put("id", "w"), autherrors.ErrAlreadyExists)
}

func TestTakeExpiredWithoutSweep(t *testing.T) {
	clock := newFakeClock()
	store := NewTTLStore[string]("s", 5*time.Minute, WithNowTime(clock.Now))
	require.NoError(t, store.Put("id", "v"))

	clock.Advance(5*time.Minute + time.Second)
	_, err := store.Take("id")
	require.ErrorIs(t, err, autherrors.ErrExpired)
	require.Equal(t, 0, store.Len())
}

func TestTakeAtExactTTLStillValid(t *testing.T) {
	clock := newFakeClock()
	store := NewTTLStore[string]("s", 5*time.Minute, WithNowTime(clock.Now))
	require.NoError(t, store.Put("id", "v"))

	clock.Advance(5 * time.Minute)
	v, err := store.Take("id")
	require.NoError(t, err)
	require.Equal(t, "v", v)
}

func TestSweepRemovesOnlyStrictlyOlderEntries(t *testing.T) {
	for _, tc := range []struct {
		name string
		ttl  time.Duration
	}{
		{"authorization requests", 5 * time.Minute},
		{"acquisition flows", 10 * time.Minute},
	} {
		t.Run(tc.name, func(t *testing.T) {
			clock := newFakeClock()
			store := NewTTLStore[string](tc.name, tc.ttl, WithNowTime(clock.Now))

			require.NoError(t, store.Put("old", "a"))
			clock.Advance(time.Minute)
			require.NoError(t, store.Put("boundary", "b"))
			clock.Advance(time.Second)
			require.NoError(t, store.Put("new", "c"))

			// boundary sits exactly at its TTL; only old is strictly past it.
			now := clock.Now().Add(tc.ttl - time.Second)
			removed := store.Sweep(now)
			require.Equal(t, 1, removed)

			_, err := store.Take("old")
			require.ErrorIs(t, err, autherrors.ErrNotFound)

			clock.Advance(tc.ttl - time.Second)
			_, err = store.Take("boundary")
			require.NoError(t, err)
			_, err = store.Take("new")
			require.NoError(t, err)
		})
	}
}

func TestConcurrentTakeYieldsOneWinner(t *testing.T) {
	store := NewTTLStore[string]("s", time.Minute)
	require.NoError(t, store.Put("id", "v"))

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.Take("id"); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 1, wins)
}

func TestAcquisitionFlowCarriesRequest(t *testing.T) {
	params := &oauthmodel.AuthorizationParameters{
		ClientID:            "client",
		RedirectURI:         "https://client.example/cb",
		CodeChallenge:       "challenge",
		CodeChallengeMethod: oauthmodel.CodeMethodTypeS256,
		State:               "xyz",
		Scope:               "patient/*.read",
	}
	req := NewAuthorizationRequest("req-1", params, time.Unix(100, 0))
	flow := NewAcquisitionFlow("flow-1", req)

	require.Equal(t, "flow-1", flow.FlowID)
	require.Equal(t, "req-1", flow.RequestID)
	require.Equal(t, "xyz", flow.State)
	require.Equal(t, "challenge", flow.CodeChallenge)

	redirect := flow.RedirectError(oauthmodel.NewError(oauthmodel.ServerError, "boom"))
	location, ok := redirect.Location()
	require.True(t, ok)
	require.Equal(t, "https://client.example/cb?error=server_error&error_description=boom&state=xyz", location)
}
