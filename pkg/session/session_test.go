package session_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/tabsync/pkg/jwt"
	"github.com/dmitrymomot/tabsync/pkg/session"
	"github.com/dmitrymomot/tabsync/pkg/storage"
)

// clock is a manually advanced time source shared by all tabs of a test.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock { return &clock{now: time.Now().Truncate(time.Second)} }

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func token(t *testing.T, claims session.Claims) string {
	t.Helper()
	svc, err := jwt.NewFromString("test-secret")
	require.NoError(t, err)
	tok, err := svc.Generate(claims)
	require.NoError(t, err)
	return tok
}

func validToken(t *testing.T, c *clock, sub string, role session.Role) string {
	t.Helper()
	return token(t, session.Claims{
		StandardClaims: jwt.StandardClaims{Subject: sub, ExpiresAt: c.Now().Add(48 * time.Hour).Unix()},
		Role:           role,
		Email:          sub + "@example.com",
	})
}

type env struct {
	ctx    context.Context
	clock  *clock
	shared *storage.MemoryShared
}

func newEnv(t *testing.T) *env {
	t.Helper()
	shared := storage.NewMemoryShared()
	t.Cleanup(func() { _ = shared.Close() })
	return &env{ctx: context.Background(), clock: newClock(), shared: shared}
}

func (e *env) tab(id string, local storage.Local) *session.Store {
	if local == nil {
		local = storage.NewMemoryLocal()
	}
	return session.New(e.shared, local, id, session.WithClock(e.clock.Now))
}

func TestCreateAndGetRoundTrip(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	a := e.tab("tab-a", nil)
	b := e.tab("tab-b", nil)

	tok := validToken(t, e.clock, "u1", session.RoleOwner)
	created, err := a.CreateSession(e.ctx, tok, session.User{ID: "u1"}, session.RoleOwner)
	require.NoError(t, err)
	assert.Equal(t, "tab-a", created.TabID)

	got, err := a.GetSession(e.ctx)
	require.NoError(t, err)
	assert.Equal(t, tok, got.Token)
	assert.Equal(t, session.RoleOwner, got.Role)

	all, err := b.GetAllSessions(e.ctx)
	require.NoError(t, err)
	require.Contains(t, all, "tab-a")
	assert.Equal(t, tok, all["tab-a"].Token)
}

func TestCreateSessionValidation(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	a := e.tab("tab-a", nil)

	_, err := a.CreateSession(e.ctx, validToken(t, e.clock, "u1", ""), session.User{ID: "u1"}, "superuser")
	assert.ErrorIs(t, err, session.ErrInvalidRole)

	noExp := token(t, session.Claims{StandardClaims: jwt.StandardClaims{Subject: "u1"}})
	_, err = a.CreateSession(e.ctx, noExp, session.User{ID: "u1"}, session.RoleUser)
	assert.ErrorIs(t, err, session.ErrInvalidToken)

	_, err = a.CreateSession(e.ctx, "not-a-jwt", session.User{ID: "u1"}, session.RoleUser)
	assert.ErrorIs(t, err, session.ErrInvalidToken)

	expired := token(t, session.Claims{StandardClaims: jwt.StandardClaims{ExpiresAt: e.clock.Now().Add(-time.Second).Unix()}})
	_, err = a.CreateSession(e.ctx, expired, session.User{ID: "u1"}, session.RoleUser)
	assert.ErrorIs(t, err, session.ErrSessionExpired)

	_, err = a.GetSession(e.ctx)
	assert.ErrorIs(t, err, session.ErrSessionNotFound)
}

func TestAssignToken(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	a := e.tab("tab-a", nil)

	rec, err := a.AssignToken(e.ctx, validToken(t, e.clock, "u7", session.RoleAdmin))
	require.NoError(t, err)
	assert.Equal(t, session.RoleAdmin, rec.Role)
	assert.Equal(t, "u7", rec.User.ID)
	assert.Equal(t, "u7@example.com", rec.User.Email)

	rec, err = e.tab("tab-b", nil).AssignToken(e.ctx, validToken(t, e.clock, "u8", ""))
	require.NoError(t, err)
	assert.Equal(t, session.RoleUser, rec.Role)
}

func TestExpiredTokenIsEvicted(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	a := e.tab("tab-a", nil)

	tok := token(t, session.Claims{
		StandardClaims: jwt.StandardClaims{Subject: "u1", ExpiresAt: e.clock.Now().Add(time.Minute).Unix()},
	})
	_, err := a.CreateSession(e.ctx, tok, session.User{ID: "u1"}, session.RoleUser)
	require.NoError(t, err)

	// exp is now 10 seconds in the past
	e.clock.Advance(time.Minute + 10*time.Second)

	_, err = a.GetSession(e.ctx)
	assert.ErrorIs(t, err, session.ErrSessionExpired)
	assert.True(t, session.IsNoSession(err))

	fields, err := e.shared.Fields(e.ctx, session.RegistryKey)
	require.NoError(t, err)
	assert.NotContains(t, fields, "tab-a")
}

func TestRegistryEviction(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	a := e.tab("tab-a", nil)
	b := e.tab("tab-b", nil)

	_, err := a.CreateSession(e.ctx, validToken(t, e.clock, "u1", ""), session.User{ID: "u1"}, session.RoleUser)
	require.NoError(t, err)
	require.NoError(t, e.shared.SetField(e.ctx, session.RegistryKey, "tab-corrupt", []byte("{nope")))

	all, err := b.GetAllSessions(e.ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
	_, err = e.shared.GetField(e.ctx, session.RegistryKey, "tab-corrupt")
	assert.ErrorIs(t, err, storage.ErrNotFound, "corrupt entries are discarded")

	// Past the 24h retention, even with a long-lived token
	e.clock.Advance(25 * time.Hour)
	all, err = b.GetAllSessions(e.ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestCorruptPointerMeansNoSession(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	local := storage.NewMemoryLocal()
	require.NoError(t, local.Set(session.PointerKey, []byte("garbage")))

	_, err := e.tab("tab-a", local).GetSession(e.ctx)
	assert.ErrorIs(t, err, session.ErrSessionNotFound)
	_, err = local.Get(session.PointerKey)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestUpdateSwitchTouch(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	a := e.tab("tab-a", nil)

	_, err := a.Touch(e.ctx)
	assert.ErrorIs(t, err, session.ErrSessionNotFound)

	created, err := a.CreateSession(e.ctx, validToken(t, e.clock, "u1", ""), session.User{ID: "u1"}, session.RoleUser)
	require.NoError(t, err)

	e.clock.Advance(time.Minute)
	touched, err := a.Touch(e.ctx)
	require.NoError(t, err)
	assert.True(t, touched.Timestamp.After(created.Timestamp))

	switched, err := a.SwitchRole(e.ctx, session.RoleOwner)
	require.NoError(t, err)
	assert.Equal(t, session.RoleOwner, switched.Role)

	_, err = a.SwitchRole(e.ctx, "root")
	assert.ErrorIs(t, err, session.ErrInvalidRole)

	name := session.User{ID: "u1", Name: "Ada"}
	updated, err := a.UpdateSession(e.ctx, session.Patch{User: &name})
	require.NoError(t, err)
	assert.Equal(t, "Ada", updated.User.Name)
	assert.Equal(t, session.RoleOwner, updated.Role)

	bad := "broken"
	_, err = a.UpdateSession(e.ctx, session.Patch{Token: &bad})
	assert.ErrorIs(t, err, session.ErrInvalidToken)
	got, err := a.GetSession(e.ctx)
	require.NoError(t, err)
	assert.Equal(t, created.Token, got.Token, "rejected patch leaves the session untouched")
}

func TestRemoveAndClear(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	a := e.tab("tab-a", nil)
	b := e.tab("tab-b", nil)

	for _, st := range []*session.Store{a, b} {
		_, err := st.CreateSession(e.ctx, validToken(t, e.clock, "u1", ""), session.User{ID: "u1"}, session.RoleUser)
		require.NoError(t, err)
	}

	require.NoError(t, a.RemoveSession(e.ctx, "tab-b"))
	all, err := a.GetAllSessions(e.ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
	_, err = a.GetSession(e.ctx)
	require.NoError(t, err, "removing another tab keeps our own pointer")

	require.NoError(t, a.RemoveSession(e.ctx, ""))
	_, err = a.Current(e.ctx)
	assert.ErrorIs(t, err, session.ErrSessionNotFound)

	_, err = b.CreateSession(e.ctx, validToken(t, e.clock, "u1", ""), session.User{ID: "u1"}, session.RoleUser)
	require.NoError(t, err)
	require.NoError(t, b.ClearAllSessions(e.ctx))
	all, err = a.GetAllSessions(e.ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestActiveSessionsCount(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	a := e.tab("tab-a", nil)
	b := e.tab("tab-b", nil)
	c := e.tab("tab-c", nil)

	for _, st := range []*session.Store{a, b, c} {
		_, err := st.CreateSession(e.ctx, validToken(t, e.clock, "u1", ""), session.User{ID: "u1"}, session.RoleUser)
		require.NoError(t, err)
	}
	n, err := a.ActiveSessionsCount(e.ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	require.NoError(t, c.MarkUnloading(e.ctx))
	e.clock.Advance(31 * time.Minute)
	_, err = a.Touch(e.ctx)
	require.NoError(t, err)

	n, err = b.ActiveSessionsCount(e.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestUserRoles(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	a := e.tab("tab-a", nil)

	roles, err := a.UserRoles(e.ctx)
	require.NoError(t, err)
	assert.Empty(t, roles)

	_, err = a.CreateSession(e.ctx, validToken(t, e.clock, "u1", ""), session.User{ID: "u1"}, session.RoleOwner)
	require.NoError(t, err)
	_, err = e.tab("tab-b", nil).CreateSession(e.ctx, validToken(t, e.clock, "u1", ""), session.User{ID: "u1"}, session.RoleUser)
	require.NoError(t, err)
	_, err = e.tab("tab-c", nil).CreateSession(e.ctx, validToken(t, e.clock, "u1", ""), session.User{ID: "u1"}, session.RoleUser)
	require.NoError(t, err)
	_, err = e.tab("tab-d", nil).CreateSession(e.ctx, validToken(t, e.clock, "u2", ""), session.User{ID: "u2"}, session.RoleAdmin)
	require.NoError(t, err)

	roles, err = a.UserRoles(e.ctx)
	require.NoError(t, err)
	assert.Equal(t, []session.Role{session.RoleUser, session.RoleOwner}, roles)
}

func TestReloadWithPointer(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	local := storage.NewMemoryLocal()

	first := e.tab("tab-1", local)
	created, err := first.CreateSession(e.ctx, validToken(t, e.clock, "u1", ""), session.User{ID: "u1"}, session.RoleOwner)
	require.NoError(t, err)
	require.NoError(t, first.MarkUnloading(e.ctx))

	// The reloaded page gets a new tab id but keeps its tab-local store
	e.clock.Advance(time.Second)
	reloaded := e.tab("tab-2", local)
	rec, err := reloaded.Current(e.ctx)
	require.NoError(t, err)
	assert.Equal(t, created.Token, rec.Token)
	assert.Equal(t, "tab-2", rec.TabID)
	assert.False(t, rec.Unloading())

	all, err := reloaded.GetAllSessions(e.ctx)
	require.NoError(t, err)
	assert.NotContains(t, all, "tab-1")
	assert.Contains(t, all, "tab-2")
}

func TestRecover(t *testing.T) {
	t.Parallel()

	t.Run("unloaded within window", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t)
		old := e.tab("tab-old", nil)
		created, err := old.CreateSession(e.ctx, validToken(t, e.clock, "u1", ""), session.User{ID: "u1"}, session.RoleUser)
		require.NoError(t, err)
		require.NoError(t, old.MarkUnloading(e.ctx))

		e.clock.Advance(2 * time.Second)
		rec, err := e.tab("tab-new", nil).GetSession(e.ctx)
		require.NoError(t, err)
		assert.Equal(t, created.Token, rec.Token)
		assert.Equal(t, "tab-new", rec.TabID)

		// Nothing left to recover for a second tab
		_, err = e.tab("tab-other", nil).Recover(e.ctx)
		assert.ErrorIs(t, err, session.ErrSessionNotFound)
	})

	t.Run("outside window", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t)
		old := e.tab("tab-old", nil)
		_, err := old.CreateSession(e.ctx, validToken(t, e.clock, "u1", ""), session.User{ID: "u1"}, session.RoleUser)
		require.NoError(t, err)
		require.NoError(t, old.MarkUnloading(e.ctx))

		e.clock.Advance(6 * time.Second)
		_, err = e.tab("tab-new", nil).GetSession(e.ctx)
		assert.ErrorIs(t, err, session.ErrSessionNotFound)
	})

	t.Run("live sibling is not adopted", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t)
		_, err := e.tab("tab-a", nil).CreateSession(e.ctx, validToken(t, e.clock, "u1", ""), session.User{ID: "u1"}, session.RoleUser)
		require.NoError(t, err)

		_, err = e.tab("tab-b", nil).GetSession(e.ctx)
		assert.ErrorIs(t, err, session.ErrSessionNotFound)
	})

	t.Run("concurrent claims", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t)
		old := e.tab("tab-old", nil)
		_, err := old.CreateSession(e.ctx, validToken(t, e.clock, "u1", ""), session.User{ID: "u1"}, session.RoleUser)
		require.NoError(t, err)
		require.NoError(t, old.MarkUnloading(e.ctx))

		var wg sync.WaitGroup
		var mu sync.Mutex
		wins := 0
		for i := range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				st := e.tab("tab-"+string(rune('a'+i)), nil)
				if _, err := st.Recover(e.ctx); err == nil {
					mu.Lock()
					wins++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, wins)
	})
}

func TestRecoverClaimsEachEntryOnce(t *testing.T) {
	t.Parallel()

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 40
	properties := gopter.NewProperties(parameters)

	properties.Property("every unloaded entry is adopted by at most one reloaded tab", prop.ForAll(
		func(unloaded, reloads int) bool {
			e := newEnv(t)
			for i := range unloaded {
				user := fmt.Sprintf("u%d", i)
				old := e.tab("old-"+user, nil)
				if _, err := old.CreateSession(e.ctx, validToken(t, e.clock, user, ""), session.User{ID: user}, session.RoleUser); err != nil {
					return false
				}
				if old.MarkUnloading(e.ctx) != nil {
					return false
				}
			}
			e.clock.Advance(time.Second)

			var (
				wg     sync.WaitGroup
				mu     sync.Mutex
				owners = map[string]int{}
				failed bool
			)
			for i := range reloads {
				wg.Add(1)
				go func() {
					defer wg.Done()
					rec, err := e.tab(fmt.Sprintf("new-%d", i), nil).Recover(e.ctx)
					mu.Lock()
					defer mu.Unlock()
					switch {
					case err == nil:
						owners[rec.User.ID]++
					case !errors.Is(err, session.ErrSessionNotFound):
						failed = true
					}
				}()
			}
			wg.Wait()

			if failed || len(owners) != min(unloaded, reloads) {
				return false
			}
			for _, n := range owners {
				if n != 1 {
					return false
				}
			}
			all, err := e.tab("tab-reader", nil).GetAllSessions(e.ctx)
			return err == nil && len(all) == unloaded
		},
		gen.IntRange(1, 4),
		gen.IntRange(1, 6),
	))

	properties.TestingRun(t)
}

func TestRecordJSON(t *testing.T) {
	t.Parallel()

	rec := session.Record{Token: "t", User: session.User{ID: "u"}, Role: session.RoleAdmin, TabID: "x"}
	data, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"tabId":"x"`)
	assert.NotContains(t, string(data), "unloadedAt")
}

func TestUserSameIdentity(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		a, b session.User
		want bool
	}{
		{"same id", session.User{ID: "1"}, session.User{ID: "1", Email: "x@y"}, true},
		{"different id same email", session.User{ID: "1", Email: "a@b"}, session.User{ID: "2", Email: "a@b"}, false},
		{"email fallback case insensitive", session.User{Email: "A@B.com"}, session.User{ID: "2", Email: "a@b.com"}, true},
		{"nothing to compare", session.User{}, session.User{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.a.SameIdentity(tt.b))
		})
	}
}

func TestParseRole(t *testing.T) {
	t.Parallel()

	r, err := session.ParseRole(" Owner ")
	require.NoError(t, err)
	assert.Equal(t, session.RoleOwner, r)
	_, err = session.ParseRole("guest")
	assert.ErrorIs(t, err, session.ErrInvalidRole)
}

func TestPeekHasNoSideEffects(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	a := e.tab("tab-a", nil)

	_, err := a.Peek()
	assert.ErrorIs(t, err, session.ErrSessionNotFound)

	tok := token(t, session.Claims{StandardClaims: jwt.StandardClaims{Subject: "u1", ExpiresAt: e.clock.Now().Add(time.Second).Unix()}})
	_, err = a.CreateSession(e.ctx, tok, session.User{ID: "u1"}, session.RoleUser)
	require.NoError(t, err)
	e.clock.Advance(time.Minute)

	rec, err := a.Peek()
	require.NoError(t, err)
	assert.Equal(t, "u1", rec.User.ID)
	assert.ErrorIs(t, rec.Validate(e.clock.Now()), session.ErrSessionExpired)

	_, err = a.Peek()
	require.NoError(t, err, "peek does not clear expired pointers")
}
