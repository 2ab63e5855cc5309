package usecase_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/breadworks/bakeops/internal/domain"
	"github.com/breadworks/bakeops/internal/usecase"
)

func newAuthService(f *fixture) usecase.AuthService {
	svc := usecase.NewAuthService(f.store, []byte("test-secret"), time.Hour, "recovery-key")
	svc.Now = func() time.Time { return frozen }
	return svc
}

func TestLogin(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	svc := newAuthService(f)

	res, err := svc.Login(t.Context(), "till-1", "s3cret-pw")
	require.NoError(t, err)
	assert.Equal(t, f.cashierID, res.ActorID)
	assert.Equal(t, domain.RoleCashier, res.Role)
	require.NotNil(t, res.BranchID)
	assert.Equal(t, f.branchID, *res.BranchID)

	claims, err := svc.Parse(res.Token)
	require.NoError(t, err)
	assert.Equal(t, f.cashierID, claims.ActorID)
	assert.Equal(t, domain.RoleCashier, claims.Role)
	assert.Equal(t, "till-1", claims.Subject)
}

func TestLogin_BadCredentialsAreUniform(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	svc := newAuthService(f)

	for _, tc := range []struct{ name, user, pass string }{
		{"unknown user", "nobody", "s3cret-pw"},
		{"wrong password", "till-1", "wrong"},
		{"empty password", "till-1", ""},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Login(t.Context(), tc.user, tc.pass)
			require.Error(t, err)
			assert.Equal(t, domain.CodeAuthRequired, domain.CodeOf(err))
			assert.EqualError(t, err, "invalid username or password")
		})
	}
}

func TestLogin_InactiveActorRejected(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	svc := newAuthService(f)

	f.store.Seed(func(tx domain.StoreTx) {
		now := frozen
		require.NoError(t, tx.Actors().SetActive(t.Context(), f.cashierID, false, &now))
	})

	_, err := svc.Login(t.Context(), "till-1", "s3cret-pw")
	require.Error(t, err)
	assert.Equal(t, domain.CodeAuthRequired, domain.CodeOf(err))
}

func TestParse_RejectsTamperedToken(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	svc := newAuthService(f)

	res, err := svc.Login(t.Context(), "till-1", "s3cret-pw")
	require.NoError(t, err)

	other := usecase.NewAuthService(f.store, []byte("different-secret"), time.Hour, "")
	_, err = other.Parse(res.Token)
	require.Error(t, err)
	assert.Equal(t, domain.CodeAuthRequired, domain.CodeOf(err))

	_, err = svc.Parse(res.Token + "x")
	require.Error(t, err)
}

func TestRecoverAdmin(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	svc := newAuthService(f)

	t.Run("wrong recovery key", func(t *testing.T) {
		err := svc.RecoverAdmin(t.Context(), "guess", "ops-admin", "newpassword1")
		require.Error(t, err)
		assert.Equal(t, domain.CodeAuthForbidden, domain.CodeOf(err))
	})

	t.Run("non-admin target", func(t *testing.T) {
		err := svc.RecoverAdmin(t.Context(), "recovery-key", "till-1", "newpassword1")
		require.Error(t, err)
		assert.Equal(t, domain.CodeNotFound, domain.CodeOf(err))
	})

	t.Run("resets the password", func(t *testing.T) {
		require.NoError(t, svc.RecoverAdmin(t.Context(), "recovery-key", "ops-admin", "newpassword1"))

		_, err := svc.Login(t.Context(), "ops-admin", "s3cret-pw")
		require.Error(t, err)
		res, err := svc.Login(t.Context(), "ops-admin", "newpassword1")
		require.NoError(t, err)
		assert.Equal(t, domain.RoleAdmin, res.Role)
	})
}
