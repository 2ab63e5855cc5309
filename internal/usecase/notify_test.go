package usecase_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/breadworks/bakeops/internal/domain"
	"github.com/breadworks/bakeops/internal/usecase"
)

func TestAlertRuleValidation(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	svc := usecase.NewNotifyService(f.store)
	g := usecase.Gate{ActorID: f.adminID}

	_, err := svc.CreateRule(t.Context(), g, &domain.AlertRule{EventType: "meteor_strike", Threshold: 1, Enabled: true})
	require.Error(t, err)
	assert.Equal(t, domain.CodeValidationFailed, domain.CodeOf(err))

	res, err := svc.CreateRule(t.Context(), g, &domain.AlertRule{
		BranchID: &f.branchID, EventType: domain.EventHighSale, Threshold: 100, Enabled: true,
	})
	require.NoError(t, err)
	var created struct {
		ID int64 `json:"id"`
	}
	require.NoError(t, json.Unmarshal(res.Payload, &created))
	require.NotZero(t, created.ID)

	rules, err := svc.ListRules(t.Context(), f.branchID)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, domain.EventHighSale, rules[0].EventType)

	_, err = svc.DeleteRule(t.Context(), g, created.ID)
	require.NoError(t, err)
	rules, err = svc.ListRules(t.Context(), f.branchID)
	require.NoError(t, err)
	assert.Empty(t, rules)
}

func TestNotificationMarkRead_ScopedToRecipient(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	svc := usecase.NewNotifyService(f.store)

	var id int64
	f.store.Seed(func(tx domain.StoreTx) {
		var err error
		id, err = tx.Notifications().Insert(t.Context(), domain.Notification{
			RecipientActorID: f.adminID, BranchID: f.branchID,
			Title: "Low stock", Message: "Product 1 is down to 2 units.", Type: domain.EventLowStock,
		})
		require.NoError(t, err)
	})

	// Someone else's notification cannot be acknowledged.
	_, err := svc.MarkRead(t.Context(), usecase.Gate{ActorID: f.cashierID}, id)
	require.Error(t, err)
	assert.Equal(t, domain.CodeNotFound, domain.CodeOf(err))

	_, err = svc.MarkRead(t.Context(), usecase.Gate{ActorID: f.adminID}, id)
	require.NoError(t, err)

	unread, err := svc.List(t.Context(), f.adminID, true, 50)
	require.NoError(t, err)
	assert.Empty(t, unread)
	all, err := svc.List(t.Context(), f.adminID, false, 50)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.True(t, all[0].IsRead)
}

func TestGlobalRuleAppliesToEveryBranch(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	svc := usecase.NewNotifyService(f.store)

	_, err := svc.CreateRule(t.Context(), usecase.Gate{ActorID: f.adminID}, &domain.AlertRule{
		EventType: domain.EventLowStock, Threshold: 5, Enabled: true,
	})
	require.NoError(t, err)

	rules, err := svc.ListRules(t.Context(), f.branchID)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Nil(t, rules[0].BranchID)
}
