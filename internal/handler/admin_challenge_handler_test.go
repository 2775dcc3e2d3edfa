package handler_test

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/ctf-go-api/internal/dto"
	"github.com/noah-isme/ctf-go-api/internal/handler"
	"github.com/noah-isme/ctf-go-api/internal/service"
)

func newAdminChallengeApp(svc *stubAdminChallengeService) *fiber.App {
	app := fiber.New()
	handler.NewAdminChallengeHandler(svc, zerolog.Nop()).Register(app.Group("/admin/challenges"))
	return app
}

func TestAdminChallengeHandlerCreate(t *testing.T) {
	svc := &stubAdminChallengeService{}
	app := newAdminChallengeApp(svc)

	req := httptest.NewRequest(http.MethodPost, "/admin/challenges", strings.NewReader(`{"name":"web warmup","category":"web","flag":"flag{x}","type":"static","value":100}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	var body envelope[dto.AdminChallengeResponse]
	decodeResponse(t, resp, &body)
	require.Equal(t, "web warmup", body.Data.Name)
	require.Equal(t, "challenge created", body.Message)
}

func TestAdminChallengeHandlerErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		method string
		path   string
		status int
	}{
		{"invalid", service.ErrInvalidChallenge, http.MethodPost, "/admin/challenges", fiber.StatusBadRequest},
		{"template", service.ErrDuplicateDomain, http.MethodPut, "/admin/challenges/3", fiber.StatusBadRequest},
		{"resources", service.ErrInvalidResources, http.MethodPost, "/admin/challenges", fiber.StatusBadRequest},
		{"missing", service.ErrChallengeNotFound, http.MethodGet, "/admin/challenges/3", fiber.StatusNotFound},
		{"in use", service.ErrChallengeInUse, http.MethodDelete, "/admin/challenges/3", fiber.StatusConflict},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			app := newAdminChallengeApp(&stubAdminChallengeService{err: tc.err})
			req := httptest.NewRequest(tc.method, tc.path, strings.NewReader(`{"name":"x"}`))
			req.Header.Set("Content-Type", "application/json")
			resp, err := app.Test(req)
			require.NoError(t, err)
			require.Equal(t, tc.status, resp.StatusCode)
		})
	}
}

func TestAdminChallengeHandlerDelete(t *testing.T) {
	svc := &stubAdminChallengeService{}
	resp, err := newAdminChallengeApp(svc).Test(httptest.NewRequest(http.MethodDelete, "/admin/challenges/3", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, uint(3), svc.deleted)
}

func TestAdminChallengeHandlerAttach(t *testing.T) {
	svc := &stubAdminChallengeService{}
	app := newAdminChallengeApp(svc)

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", "handout.zip")
	require.NoError(t, err)
	_, err = part.Write([]byte("PK\x03\x04data"))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/admin/challenges/3/files", bytes.NewReader(body.Bytes()))
	req.Header.Set("Content-Type", writer.FormDataContentType())
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	require.Equal(t, "handout.zip", svc.attached)

	resp, err = app.Test(httptest.NewRequest(http.MethodPost, "/admin/challenges/3/files", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	svc.err = service.ErrAttachmentTooLarge
	req = httptest.NewRequest(http.MethodPost, "/admin/challenges/3/files", bytes.NewReader(body.Bytes()))
	req.Header.Set("Content-Type", writer.FormDataContentType())
	resp, err = app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusRequestEntityTooLarge, resp.StatusCode)
}
