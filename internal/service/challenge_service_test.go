package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/ctf-go-api/internal/dto"
	"github.com/noah-isme/ctf-go-api/internal/models"
)

func TestChallengeServiceGetInfoFollowsInstanceLifecycle(t *testing.T) {
	f := newLifecycleFixture(t)
	f.service.newID = fixedIDs("ab12cd34")
	challenge := f.createChallenge(t, nil)
	reader := NewChallengeService(f.challenges, f.instances, f.submissions, "tasks.cfrt.dev", testLogger())
	ctx := context.Background()

	view, err := reader.GetInfo(ctx, challenge.ID, 42, models.RoleUser)
	require.NoError(t, err)
	require.Nil(t, view.Links)
	require.Empty(t, view.InstanceName)
	require.Nil(t, view.StartTime)
	require.True(t, view.Deployable)
	require.False(t, view.IsSolved)
	require.Equal(t, 100, view.Value.Points)

	_, err = f.service.Start(ctx, challenge.ID, 42, models.RoleUser)
	require.NoError(t, err)

	view, err = reader.GetInfo(ctx, challenge.ID, 42, models.RoleUser)
	require.NoError(t, err)
	require.Equal(t, "ab12cd34", view.InstanceName)
	require.Equal(t, []dto.Link{
		{URL: "web-ab12cd34.tasks.cfrt.dev", Protocol: "http"},
		{URL: "ssh-web-ab12cd34.tasks.cfrt.dev", Protocol: "tcp"},
	}, view.Links)
	require.NotNil(t, view.StartTime)
	require.NotNil(t, view.EndTime)

	other, err := reader.GetInfo(ctx, challenge.ID, 7, models.RoleUser)
	require.NoError(t, err)
	require.Nil(t, other.Links)

	require.NoError(t, f.service.Stop(ctx, "ab12cd34"))
	view, err = reader.GetInfo(ctx, challenge.ID, 42, models.RoleUser)
	require.NoError(t, err)
	require.Nil(t, view.Links)
}

func TestChallengeServiceDynamicValueAndSolves(t *testing.T) {
	f := newLifecycleFixture(t)
	reader := NewChallengeService(f.challenges, f.instances, f.submissions, "tasks.cfrt.dev", testLogger())
	ctx := context.Background()

	challenge := models.Challenge{Name: "pwn", Category: "pwn", Flag: "flag{pwn}", Type: models.ChallengeTypeDynamic, Value: 500}
	dynamic := &models.DynamicChallenge{Initial: 500, Minimum: 100, Decay: 25, Function: models.DecayLinear}
	require.NoError(t, f.challenges.Create(ctx, &challenge, dynamic))

	for _, userID := range []uint{1, 2, 2} {
		require.NoError(t, f.submissions.Create(ctx, &models.Submission{UserID: userID, ChallengeID: challenge.ID, Answer: "flag{pwn}", Correct: true}))
	}

	view, err := reader.GetInfo(ctx, challenge.ID, 2, models.RoleUser)
	require.NoError(t, err)
	require.Equal(t, int64(2), view.Solves)
	require.True(t, view.IsSolved)
	require.False(t, view.Deployable)
	require.Equal(t, 450, view.Value.Points)
	require.NotNil(t, view.Value.DecayFunction)
	require.Equal(t, models.DecayLinear, view.Value.DecayFunction.Function)
}

func TestChallengeServiceHidesHiddenChallenges(t *testing.T) {
	f := newLifecycleFixture(t)
	reader := NewChallengeService(f.challenges, f.instances, f.submissions, "tasks.cfrt.dev", testLogger())
	ctx := context.Background()

	visible := f.createChallenge(t, nil)
	hidden := f.createChallenge(t, func(c *models.Challenge) {
		c.Name = "draft"
		c.Hidden = true
	})

	_, err := reader.GetInfo(ctx, hidden.ID, 42, models.RoleUser)
	require.ErrorIs(t, err, ErrChallengeNotFound)
	_, err = reader.GetInfo(ctx, hidden.ID, 1, models.RoleAdmin)
	require.NoError(t, err)

	views, err := reader.List(ctx, 42, models.RoleUser)
	require.NoError(t, err)
	require.Len(t, views, 1)
	require.Equal(t, visible.ID, views[0].ID)

	views, err = reader.List(ctx, 1, models.RoleAdmin)
	require.NoError(t, err)
	require.Len(t, views, 2)
}
