package usecase_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/breadworks/bakeops/internal/domain"
	"github.com/breadworks/bakeops/internal/usecase"
)

func adminGate(f *fixture) usecase.Gate { return usecase.Gate{ActorID: f.adminID} }

func newProfile(t *testing.T, f *fixture, svc usecase.StaffService, name, phone string) int64 {
	t.Helper()
	res, err := svc.CreateProfile(t.Context(), adminGate(f), domain.RoleAdmin, &domain.StaffProfile{
		FullName: name, PhoneNumber: phone, BranchID: f.branchID,
		MonthlySalary: 1800, RolePreference: domain.PrefCashier,
	})
	require.NoError(t, err)
	var out struct {
		ID int64 `json:"id"`
	}
	require.NoError(t, json.Unmarshal(res.Payload, &out))
	return out.ID
}

func accountID(t *testing.T, res usecase.MutationResult) int64 {
	t.Helper()
	var out struct {
		ActorID int64 `json:"actor_id"`
	}
	require.NoError(t, json.Unmarshal(res.Payload, &out))
	return out.ActorID
}

func TestStaffCreateAccount(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	svc := usecase.NewStaffService(f.store)
	profileID := newProfile(t, f, svc, "Dana Weiss", "+49 151 1234567")

	res, err := svc.CreateAccount(t.Context(), adminGate(f), usecase.CreateAccountInput{
		Role: domain.RoleAdmin, StaffProfileID: profileID,
		Username: "dana", Password: "longenough", AccountRole: domain.RoleCashier, BranchID: f.branchID,
	})
	require.NoError(t, err)
	actorID := accountID(t, res)
	require.NotZero(t, actorID)

	f.store.Dump(func(tx domain.StoreTx) {
		actor, err := tx.Actors().Get(t.Context(), actorID)
		require.NoError(t, err)
		assert.Equal(t, "dana", actor.Username)
		assert.Equal(t, "491511234567@phone.local", actor.Email)
		assert.True(t, actor.IsActive)

		profile, err := tx.Staff().Get(t.Context(), profileID)
		require.NoError(t, err)
		require.NotNil(t, profile.LinkedActorID)
		assert.Equal(t, actorID, *profile.LinkedActorID)

		ok, err := tx.Actors().HasBranchAccess(t.Context(), actorID, f.branchID)
		require.NoError(t, err)
		assert.True(t, ok)
	})
}

func TestStaffCreateAccount_ActiveDuplicate(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	svc := usecase.NewStaffService(f.store)
	profileID := newProfile(t, f, svc, "Dana Weiss", "+49 151 1234567")

	// The fixture admin already holds the username.
	_, err := svc.CreateAccount(t.Context(), adminGate(f), usecase.CreateAccountInput{
		Role: domain.RoleAdmin, StaffProfileID: profileID,
		Username: "ops-admin", Password: "longenough", AccountRole: domain.RoleCashier, BranchID: f.branchID,
	})
	require.Error(t, err)
	assert.Equal(t, domain.CodeAccountExists, domain.CodeOf(err))
}

func TestStaffAccountLifecycle_ReuseAfterArchive(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	svc := usecase.NewStaffService(f.store)
	profileID := newProfile(t, f, svc, "Dana Weiss", "+49 151 1234567")

	res, err := svc.CreateAccount(t.Context(), adminGate(f), usecase.CreateAccountInput{
		Role: domain.RoleAdmin, StaffProfileID: profileID,
		Username: "dana", Password: "longenough", AccountRole: domain.RoleCashier, BranchID: f.branchID,
	})
	require.NoError(t, err)
	actorID := accountID(t, res)

	_, err = svc.ArchiveAccount(t.Context(), adminGate(f), domain.RoleAdmin, actorID)
	require.NoError(t, err)
	f.store.Dump(func(tx domain.StoreTx) {
		actor, err := tx.Actors().Get(t.Context(), actorID)
		require.NoError(t, err)
		assert.False(t, actor.IsActive)
		require.NotNil(t, actor.TerminationDate)

		profile, err := tx.Staff().Get(t.Context(), profileID)
		require.NoError(t, err)
		assert.Nil(t, profile.LinkedActorID)
	})

	// Re-creating for the same person revives the archived actor instead of
	// inserting a duplicate.
	reused, err := svc.CreateAccount(t.Context(), adminGate(f), usecase.CreateAccountInput{
		Role: domain.RoleAdmin, StaffProfileID: profileID,
		Username: "dana", Password: "freshpassword", AccountRole: domain.RoleManager, BranchID: f.branchID,
	})
	require.NoError(t, err)
	reusedID := accountID(t, reused)
	assert.Equal(t, actorID, reusedID)

	f.store.Dump(func(tx domain.StoreTx) {
		actor, err := tx.Actors().Get(t.Context(), reusedID)
		require.NoError(t, err)
		assert.True(t, actor.IsActive)
		assert.Equal(t, domain.RoleManager, actor.Role)
		assert.Nil(t, actor.TerminationDate)
	})
}

func TestStaffCreateAccount_ProfileGuards(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	svc := usecase.NewStaffService(f.store)

	t.Run("other preference cannot hold an account", func(t *testing.T) {
		res, err := svc.CreateProfile(t.Context(), adminGate(f), domain.RoleAdmin, &domain.StaffProfile{
			FullName: "Kitchen Hand", PhoneNumber: "111", BranchID: f.branchID, RolePreference: domain.PrefOther,
		})
		require.NoError(t, err)
		var created struct {
			ID int64 `json:"id"`
		}
		require.NoError(t, json.Unmarshal(res.Payload, &created))
		_, err = svc.CreateAccount(t.Context(), adminGate(f), usecase.CreateAccountInput{
			Role: domain.RoleAdmin, StaffProfileID: created.ID,
			Username: "hand", Password: "longenough", AccountRole: domain.RoleCashier, BranchID: f.branchID,
		})
		require.Error(t, err)
		assert.Equal(t, domain.CodeValidationFailed, domain.CodeOf(err))
	})

	t.Run("already linked profile", func(t *testing.T) {
		id := newProfile(t, f, svc, "Ari Blum", "222")
		_, err := svc.CreateAccount(t.Context(), adminGate(f), usecase.CreateAccountInput{
			Role: domain.RoleAdmin, StaffProfileID: id,
			Username: "ari", Password: "longenough", AccountRole: domain.RoleCashier, BranchID: f.branchID,
		})
		require.NoError(t, err)
		_, err = svc.CreateAccount(t.Context(), adminGate(f), usecase.CreateAccountInput{
			Role: domain.RoleAdmin, StaffProfileID: id,
			Username: "ari2", Password: "longenough", AccountRole: domain.RoleCashier, BranchID: f.branchID,
		})
		require.Error(t, err)
		assert.Equal(t, domain.CodeStaffAlreadyLinked, domain.CodeOf(err))
	})

	t.Run("short password", func(t *testing.T) {
		id := newProfile(t, f, svc, "Noa Katz", "333")
		_, err := svc.CreateAccount(t.Context(), adminGate(f), usecase.CreateAccountInput{
			Role: domain.RoleAdmin, StaffProfileID: id,
			Username: "noa", Password: "short", AccountRole: domain.RoleCashier, BranchID: f.branchID,
		})
		require.Error(t, err)
		assert.Equal(t, domain.CodeValidationFailed, domain.CodeOf(err))
	})
}

func TestStaffArchiveGuards(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	svc := usecase.NewStaffService(f.store)

	t.Run("admin accounts are not archivable", func(t *testing.T) {
		_, err := svc.ArchiveAccount(t.Context(), adminGate(f), domain.RoleAdmin, f.adminID)
		require.Error(t, err)
		assert.Equal(t, domain.CodeAuthForbidden, domain.CodeOf(err))
	})

	t.Run("profile linked to an active account", func(t *testing.T) {
		id := newProfile(t, f, svc, "Lia Stern", "444")
		_, err := svc.CreateAccount(t.Context(), adminGate(f), usecase.CreateAccountInput{
			Role: domain.RoleAdmin, StaffProfileID: id,
			Username: "lia", Password: "longenough", AccountRole: domain.RoleCashier, BranchID: f.branchID,
		})
		require.NoError(t, err)

		_, err = svc.ArchiveProfile(t.Context(), adminGate(f), domain.RoleAdmin, id)
		require.Error(t, err)
		assert.Equal(t, domain.CodeStaffAlreadyLinked, domain.CodeOf(err))
	})

	t.Run("manager may not manage staff", func(t *testing.T) {
		_, err := svc.ArchiveAccount(t.Context(), adminGate(f), domain.RoleManager, f.cashierID)
		require.Error(t, err)
		assert.Equal(t, domain.CodeAuthForbidden, domain.CodeOf(err))
	})
}
