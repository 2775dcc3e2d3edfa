package service

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/textproto"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/ctf-go-api/internal/dto"
	"github.com/noah-isme/ctf-go-api/internal/models"
	"github.com/noah-isme/ctf-go-api/internal/repository"
)

type attachmentStorageStub struct {
	folder string
	name   string
	body   bytes.Buffer
}

func (s *attachmentStorageStub) Upload(_ context.Context, folder, name string, reader io.Reader) (string, error) {
	s.folder = folder
	s.name = name
	s.body.Reset()
	if _, err := s.body.ReadFrom(reader); err != nil {
		return "", err
	}
	return "https://cdn.example.com/" + folder + "/" + name, nil
}

func validUpsert() dto.ChallengeUpsertRequest {
	template := webTemplate()
	return dto.ChallengeUpsertRequest{
		Name:        "web warmup",
		Category:    "web",
		Description: "<p>Find the flag</p><script>alert(1)</script>",
		Flag:        "flag{static}",
		Type:        models.ChallengeTypeStatic,
		Value:       100,
		Hints:       []string{"look at the <b>headers</b>", "  "},
		Deploy:      &template,
	}
}

func TestAdminChallengeServiceCreateSanitizes(t *testing.T) {
	f := newLifecycleFixture(t)
	svc := NewAdminChallengeService(f.challenges, f.instances, nil, testValidator(), testLogger())
	ctx := context.Background()

	created, err := svc.Create(ctx, validUpsert())
	require.NoError(t, err)
	require.NotZero(t, created.ID)
	require.NotContains(t, created.Description, "<script>")
	require.Contains(t, created.Description, "<p>Find the flag</p>")
	require.Equal(t, []string{"look at the <b>headers</b>"}, created.Hints)
	require.NotNil(t, created.Deploy)
	require.Len(t, created.Deploy.Containers, 1)

	fetched, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, "flag{static}", fetched.Flag)

	items, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
}

func TestAdminChallengeServiceValidatesDynamicScoring(t *testing.T) {
	f := newLifecycleFixture(t)
	svc := NewAdminChallengeService(f.challenges, f.instances, nil, testValidator(), testLogger())
	ctx := context.Background()

	payload := validUpsert()
	payload.Type = models.ChallengeTypeDynamic
	_, err := svc.Create(ctx, payload)
	require.ErrorIs(t, err, ErrInvalidChallenge)

	payload.Decay = &dto.DecayRequest{Function: models.DecayLogarithmic, Decay: 10, Minimum: 500}
	_, err = svc.Create(ctx, payload)
	require.ErrorIs(t, err, ErrInvalidChallenge)

	payload.Decay.Minimum = 50
	created, err := svc.Create(ctx, payload)
	require.NoError(t, err)
	require.NotNil(t, created.Decay)
	require.Equal(t, 50, created.Decay.Minimum)

	payload.Type = models.ChallengeTypeStatic
	payload.Decay = nil
	updated, err := svc.Update(ctx, created.ID, payload)
	require.NoError(t, err)
	require.Nil(t, updated.Decay)

	dynamic, err := f.challenges.GetDynamic(ctx, created.ID)
	require.NoError(t, err)
	require.Nil(t, dynamic)
}

func TestAdminChallengeServiceRejectsInvalidTemplates(t *testing.T) {
	f := newLifecycleFixture(t)
	svc := NewAdminChallengeService(f.challenges, f.instances, nil, testValidator(), testLogger())
	ctx := context.Background()

	payload := validUpsert()
	payload.Deploy = &models.DeployTemplate{Containers: []models.DeployContainer{
		{Image: "a", Name: "api"},
		{Image: "b", Name: "api"},
	}}
	_, err := svc.Create(ctx, payload)
	require.ErrorIs(t, err, ErrDuplicateContainerName)

	payload = validUpsert()
	payload.Deploy = nil
	payload.DynamicFlag = true
	_, err = svc.Create(ctx, payload)
	require.ErrorIs(t, err, ErrInvalidChallenge)

	payload = validUpsert()
	payload.Type = "bonus"
	_, err = svc.Create(ctx, payload)
	require.Error(t, err)
}

func TestAdminChallengeServiceDeleteGuardsRunningInstances(t *testing.T) {
	f := newLifecycleFixture(t)
	svc := NewAdminChallengeService(f.challenges, f.instances, nil, testValidator(), testLogger())
	ctx := context.Background()

	created, err := svc.Create(ctx, validUpsert())
	require.NoError(t, err)

	f.service.newID = fixedIDs("ab12cd34")
	_, err = f.service.Start(ctx, created.ID, 42, models.RoleUser)
	require.NoError(t, err)

	require.ErrorIs(t, svc.Delete(ctx, created.ID), ErrChallengeInUse)

	require.NoError(t, f.service.Stop(ctx, "ab12cd34"))
	require.NoError(t, svc.Delete(ctx, created.ID))
	require.ErrorIs(t, svc.Delete(ctx, created.ID), ErrChallengeNotFound)

	_, err = svc.Get(ctx, created.ID)
	require.ErrorIs(t, err, ErrChallengeNotFound)
}

// staleInstanceCounter reports no running instances, as if a start landed right after the count.
type staleInstanceCounter struct {
	repository.RunningChallengeRepository
}

func (staleInstanceCounter) CountByChallenge(context.Context, uint) (int64, error) {
	return 0, nil
}

func TestAdminChallengeServiceDeleteLosesRaceToStart(t *testing.T) {
	f := newLifecycleFixture(t)
	svc := NewAdminChallengeService(f.challenges, staleInstanceCounter{f.instances}, nil, testValidator(), testLogger())
	ctx := context.Background()

	created, err := svc.Create(ctx, validUpsert())
	require.NoError(t, err)

	f.service.newID = fixedIDs("ab12cd34")
	_, err = f.service.Start(ctx, created.ID, 42, models.RoleUser)
	require.NoError(t, err)

	require.ErrorIs(t, svc.Delete(ctx, created.ID), ErrChallengeInUse)

	_, err = svc.Get(ctx, created.ID)
	require.NoError(t, err)
	_, err = f.instances.GetByID(ctx, "ab12cd34")
	require.NoError(t, err)
}

func TestAdminChallengeServiceAttachFile(t *testing.T) {
	f := newLifecycleFixture(t)
	storage := &attachmentStorageStub{}
	svc := NewAdminChallengeService(f.challenges, f.instances, storage, testValidator(), testLogger())
	ctx := context.Background()

	created, err := svc.Create(ctx, validUpsert())
	require.NoError(t, err)

	header := buildAttachmentHeader(t, "source code.zip", []byte("PK\x03\x04rest-of-archive"))
	updated, err := svc.AttachFile(ctx, created.ID, header)
	require.NoError(t, err)
	require.Len(t, updated.Files, 1)
	require.Equal(t, "source-code.zip", updated.Files[0].Name)
	require.Contains(t, updated.Files[0].URL, "challenges/")
	require.Equal(t, "source-code.zip", storage.name)

	disabled := NewAdminChallengeService(f.challenges, f.instances, nil, testValidator(), testLogger())
	_, err = disabled.AttachFile(ctx, created.ID, header)
	require.ErrorIs(t, err, ErrUploadsDisabled)

	header.Size = maxAttachmentBytes + 1
	_, err = svc.AttachFile(ctx, created.ID, header)
	require.ErrorIs(t, err, ErrAttachmentTooLarge)
}

func buildAttachmentHeader(t *testing.T, filename string, content []byte) *multipart.FileHeader {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreatePart(textproto.MIMEHeader{
		"Content-Disposition": {"form-data; name=\"file\"; filename=\"" + filename + "\""},
		"Content-Type":        {"application/octet-stream"},
	})
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	reader := multipart.NewReader(body, writer.Boundary())
	form, err := reader.ReadForm(int64(len(content)) + 1024)
	require.NoError(t, err)
	t.Cleanup(func() { _ = form.RemoveAll() })

	files := form.File["file"]
	require.Len(t, files, 1)
	return files[0]
}
