package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bearer(token string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/api/leaves/balance", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	return r
}

func TestJWT_IssueAndAuthenticate(t *testing.T) {
	j := NewJWT("test-secret-that-is-long-enough", time.Hour)

	token, exp, err := j.Issue(2, RoleEmployee)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, time.Minute)

	actor, err := j.Authenticate(bearer(token))
	require.NoError(t, err)
	assert.Equal(t, int64(2), actor.ID())
	assert.Equal(t, RoleEmployee, actor.Role())
}

func TestJWT_Rejects(t *testing.T) {
	j := NewJWT("test-secret-that-is-long-enough", time.Hour)
	other := NewJWT("another-secret-entirely-different", time.Hour)

	foreign, _, err := other.Issue(1, RoleAdmin)
	require.NoError(t, err)

	expired := NewJWT("test-secret-that-is-long-enough", time.Hour)
	expired.now = func() time.Time { return time.Now().Add(-3 * time.Hour) }
	old, _, err := expired.Issue(1, RoleAdmin)
	require.NoError(t, err)

	tests := map[string]*http.Request{
		"missing header": httptest.NewRequest(http.MethodGet, "/", nil),
		"garbage":        bearer("not-a-token"),
		"wrong secret":   bearer(foreign),
		"expired":        bearer(old),
	}
	for name, r := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := j.Authenticate(r)
			assert.ErrorIs(t, err, ErrUnauthenticated)
		})
	}
}

func TestParseRole(t *testing.T) {
	r, err := ParseRole("ADMIN")
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, r)

	r, err = ParseRole("user")
	require.NoError(t, err)
	assert.Equal(t, RoleEmployee, r)

	_, err = ParseRole("root")
	assert.Error(t, err)
}

func TestMiddleware_RequireRole(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, found := FromContext(r.Context())
		require.True(t, found)
		assert.Equal(t, int64(2), actor.ID())
		w.WriteHeader(http.StatusNoContent)
	})

	// GIVEN: a static employee
	employee := Middleware(NewStatic(2, RoleEmployee), nil)

	// WHEN: calling an open route THEN: passes
	rec := httptest.NewRecorder()
	employee(ok).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	// WHEN: calling an admin route THEN: 403
	rec = httptest.NewRecorder()
	employee(RequireRole(nil, RoleAdmin)(ok)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "insufficient permissions")
}

func TestMiddleware_Unauthenticated(t *testing.T) {
	j := NewJWT("test-secret-that-is-long-enough", time.Hour)
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	})

	var gotStatus int
	deny := func(w http.ResponseWriter, _ *http.Request, status int, _ error) {
		gotStatus = status
		w.WriteHeader(status)
	}

	rec := httptest.NewRecorder()
	Middleware(j, deny)(next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, gotStatus)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
