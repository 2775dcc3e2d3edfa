package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/noah-isme/ctf-go-api/internal/dto"
	"github.com/noah-isme/ctf-go-api/internal/models"
	"github.com/noah-isme/ctf-go-api/internal/repository"
)

func newFlagFixture(t *testing.T) (*lifecycleFixture, FlagService) {
	t.Helper()
	f := newLifecycleFixture(t)
	flags := NewFlagService(f.challenges, f.instances, f.submissions, f.service, f.events, testValidator(), testLogger())
	return f, flags
}

func TestFlagServiceStaticChallenge(t *testing.T) {
	f, flags := newFlagFixture(t)
	challenge := f.createChallenge(t, func(c *models.Challenge) {
		require.NoError(t, c.SetDeployTemplate(models.DeployTemplate{}))
	})
	ctx := context.Background()
	submitter := Submitter{UserID: 42, Role: models.RoleUser}

	resp, err := flags.Submit(ctx, challenge.ID, dto.FlagSubmitRequest{Flag: "flag{nope}"}, submitter)
	require.NoError(t, err)
	require.False(t, resp.Correct)

	resp, err = flags.Submit(ctx, challenge.ID, dto.FlagSubmitRequest{Flag: "flag{static}"}, submitter)
	require.NoError(t, err)
	require.True(t, resp.Correct)
	require.Equal(t, challenge.ID, resp.ChallengeID)

	attempts, err := f.submissions.List(ctx, repository.SubmissionFilter{ChallengeID: &challenge.ID})
	require.NoError(t, err)
	require.Len(t, attempts, 2)
	require.Contains(t, f.events.kinds(), EventChallengeSolved)
}

func TestFlagServiceInstanceSolveTearsDown(t *testing.T) {
	f, flags := newFlagFixture(t)
	f.service.newID = fixedIDs("ab12cd34")
	challenge := f.createChallenge(t, func(c *models.Challenge) { c.DynamicFlag = true })
	ctx := context.Background()
	submitter := Submitter{UserID: 42, Role: models.RoleUser}

	_, err := f.service.Start(ctx, challenge.ID, 42, models.RoleUser)
	require.NoError(t, err)
	instance, err := f.instances.GetByID(ctx, "ab12cd34")
	require.NoError(t, err)

	resp, err := flags.Submit(ctx, challenge.ID, dto.FlagSubmitRequest{Flag: "flag{static}", InstanceID: "ab12cd34"}, submitter)
	require.NoError(t, err)
	require.False(t, resp.Correct)

	wrong := false
	attempts, err := f.submissions.List(ctx, repository.SubmissionFilter{ChallengeID: &challenge.ID, UserID: &submitter.UserID, Correct: &wrong})
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	require.Equal(t, "flag{static}", attempts[0].Answer)

	_, err = f.instances.GetByID(ctx, "ab12cd34")
	require.NoError(t, err)
	require.NotContains(t, f.orchestrator.teardownCalls(), "ab12cd34")

	resp, err = flags.Submit(ctx, challenge.ID, dto.FlagSubmitRequest{Flag: instance.Flag, InstanceID: "ab12cd34"}, submitter)
	require.NoError(t, err)
	require.True(t, resp.Correct)

	_, err = f.instances.GetByID(ctx, "ab12cd34")
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
	require.Contains(t, f.orchestrator.teardownCalls(), "ab12cd34")

	pending, err := f.teardowns.List(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, pending)

	solved, err := f.submissions.HasSolved(ctx, challenge.ID, 42)
	require.NoError(t, err)
	require.True(t, solved)

	_, err = flags.Submit(ctx, challenge.ID, dto.FlagSubmitRequest{Flag: instance.Flag, InstanceID: "ab12cd34"}, submitter)
	require.ErrorIs(t, err, ErrInstanceNotFound)
}

func TestFlagServiceSolveSurvivesTeardownFailure(t *testing.T) {
	f, flags := newFlagFixture(t)
	f.service.newID = fixedIDs("ab12cd34")
	challenge := f.createChallenge(t, nil)
	ctx := context.Background()

	_, err := f.service.Start(ctx, challenge.ID, 42, models.RoleUser)
	require.NoError(t, err)

	f.orchestrator.setErrors(nil, errOrchestratorDown)
	resp, err := flags.Submit(ctx, challenge.ID, dto.FlagSubmitRequest{Flag: "flag{static}", InstanceID: "ab12cd34"}, Submitter{UserID: 42})
	require.NoError(t, err)
	require.True(t, resp.Correct)

	_, err = f.instances.GetByID(ctx, "ab12cd34")
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)

	pending, err := f.teardowns.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, "ab12cd34", pending[0].InstanceID)
	require.Equal(t, models.TeardownReasonSolved, pending[0].Reason)
}

func TestFlagServiceRejectsForeignOrMissingInstance(t *testing.T) {
	f, flags := newFlagFixture(t)
	f.service.newID = fixedIDs("ab12cd34")
	challenge := f.createChallenge(t, func(c *models.Challenge) { c.DynamicFlag = true })
	ctx := context.Background()

	_, err := f.service.Start(ctx, challenge.ID, 42, models.RoleUser)
	require.NoError(t, err)

	_, err = flags.Submit(ctx, challenge.ID, dto.FlagSubmitRequest{Flag: "x", InstanceID: "ab12cd34"}, Submitter{UserID: 7})
	require.ErrorIs(t, err, ErrInstanceNotFound)

	_, err = flags.Submit(ctx, challenge.ID, dto.FlagSubmitRequest{Flag: "x", InstanceID: "zz99yy88"}, Submitter{UserID: 42})
	require.ErrorIs(t, err, ErrInstanceNotFound)

	_, err = flags.Submit(ctx, challenge.ID, dto.FlagSubmitRequest{Flag: "x"}, Submitter{UserID: 42})
	require.ErrorIs(t, err, ErrInstanceRequired)

	_, err = flags.Submit(ctx, 999, dto.FlagSubmitRequest{Flag: "x"}, Submitter{UserID: 42})
	require.ErrorIs(t, err, ErrChallengeNotFound)

	_, err = flags.Submit(ctx, challenge.ID, dto.FlagSubmitRequest{Flag: "x"}, Submitter{})
	require.ErrorIs(t, err, ErrUnauthorized)

	_, err = flags.Submit(ctx, challenge.ID, dto.FlagSubmitRequest{Flag: "x", InstanceID: "AB12CD34"}, Submitter{UserID: 42})
	require.Error(t, err)

	_, err = f.instances.GetByID(ctx, "ab12cd34")
	require.NoError(t, err)
}
