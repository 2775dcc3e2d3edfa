package handler_test

import (
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/ctf-go-api/internal/dto"
	"github.com/noah-isme/ctf-go-api/internal/service"
)

type envelope[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data"`
	Message string `json:"message"`
}

func decodeResponse(t *testing.T, resp *http.Response, target interface{}) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(target))
}

// asUser stands in for the JWT middleware.
func asUser(userID, teamID uint, role string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if userID != 0 {
			c.Locals("user_id", userID)
		}
		if teamID != 0 {
			c.Locals("team_id", teamID)
		}
		if role != "" {
			c.Locals("user_role", role)
		}
		return c.Next()
	}
}

type stubChallengeService struct {
	views    []dto.ChallengeView
	view     dto.ChallengeView
	err      error
	lastRole string
	lastUser uint
}

func (s *stubChallengeService) List(_ context.Context, userID uint, role string) ([]dto.ChallengeView, error) {
	s.lastUser, s.lastRole = userID, role
	return s.views, s.err
}

func (s *stubChallengeService) GetInfo(_ context.Context, _ uint, userID uint, role string) (dto.ChallengeView, error) {
	s.lastUser, s.lastRole = userID, role
	return s.view, s.err
}

type stubInstanceService struct {
	started   dto.InstanceResponse
	listed    []dto.InstanceResponse
	startErr  error
	stopErr   error
	stoppedID string
	stoppedBy uint
}

func (s *stubInstanceService) Start(_ context.Context, challengeID, _ uint, _ string) (dto.InstanceResponse, error) {
	if s.startErr != nil {
		return dto.InstanceResponse{}, s.startErr
	}
	resp := s.started
	resp.ChallengeID = challengeID
	return resp, nil
}

func (s *stubInstanceService) Stop(context.Context, string) error { return nil }

func (s *stubInstanceService) StopForUser(_ context.Context, instanceID string, userID uint) error {
	s.stoppedID, s.stoppedBy = instanceID, userID
	return s.stopErr
}

func (s *stubInstanceService) ListForUser(context.Context, uint) ([]dto.InstanceResponse, error) {
	return s.listed, nil
}

func (s *stubInstanceService) CompleteTeardown(context.Context, string) error { return nil }

func (s *stubInstanceService) ReapExpired(context.Context) (int, error) { return 0, nil }

func (s *stubInstanceService) RetryTeardowns(context.Context) (int, error) { return 0, nil }

type stubFlagService struct {
	correct   bool
	err       error
	submitter service.Submitter
	payload   dto.FlagSubmitRequest
}

func (s *stubFlagService) Submit(_ context.Context, challengeID uint, payload dto.FlagSubmitRequest, submitter service.Submitter) (dto.FlagSubmitResponse, error) {
	s.submitter, s.payload = submitter, payload
	if s.err != nil {
		return dto.FlagSubmitResponse{}, s.err
	}
	return dto.FlagSubmitResponse{ChallengeID: challengeID, Correct: s.correct}, nil
}

type stubAdminChallengeService struct {
	item     dto.AdminChallengeResponse
	err      error
	deleted  uint
	attached string
}

func (s *stubAdminChallengeService) List(context.Context) ([]dto.AdminChallengeResponse, error) {
	return []dto.AdminChallengeResponse{s.item}, s.err
}

func (s *stubAdminChallengeService) Get(context.Context, uint) (dto.AdminChallengeResponse, error) {
	return s.item, s.err
}

func (s *stubAdminChallengeService) Create(_ context.Context, payload dto.ChallengeUpsertRequest) (dto.AdminChallengeResponse, error) {
	if s.err != nil {
		return dto.AdminChallengeResponse{}, s.err
	}
	return dto.AdminChallengeResponse{ID: 1, Name: payload.Name, Type: payload.Type}, nil
}

func (s *stubAdminChallengeService) Update(_ context.Context, id uint, payload dto.ChallengeUpsertRequest) (dto.AdminChallengeResponse, error) {
	return dto.AdminChallengeResponse{ID: id, Name: payload.Name}, s.err
}

func (s *stubAdminChallengeService) Delete(_ context.Context, id uint) error {
	s.deleted = id
	return s.err
}

func (s *stubAdminChallengeService) AttachFile(_ context.Context, id uint, file *multipart.FileHeader) (dto.AdminChallengeResponse, error) {
	if s.err != nil {
		return dto.AdminChallengeResponse{}, s.err
	}
	s.attached = file.Filename
	return dto.AdminChallengeResponse{ID: id, Files: []dto.ChallengeFileResponse{{Name: file.Filename, URL: "https://cdn.example.com/" + file.Filename}}}, nil
}

type stubAuthService struct {
	response dto.AuthResponse
	err      error
}

func (s *stubAuthService) Register(context.Context, dto.RegisterRequest) (dto.AuthResponse, error) {
	return s.response, s.err
}

func (s *stubAuthService) Login(context.Context, dto.LoginRequest) (dto.AuthResponse, error) {
	return s.response, s.err
}
