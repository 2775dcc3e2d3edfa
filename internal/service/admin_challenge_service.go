package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/ctf-go-api/internal/dto"
	"github.com/noah-isme/ctf-go-api/internal/models"
	"github.com/noah-isme/ctf-go-api/internal/repository"
)

const maxAttachmentBytes int64 = 20 * 1024 * 1024

var (
	// ErrInvalidChallenge indicates an admin payload that passed field validation but is inconsistent.
	ErrInvalidChallenge = errors.New("invalid challenge definition")
	// ErrChallengeInUse indicates the challenge still has running instances.
	ErrChallengeInUse = errors.New("challenge has running instances")
	// ErrAttachmentTooLarge indicates an attachment above the size limit.
	ErrAttachmentTooLarge = errors.New("attachment exceeds maximum allowed size")
	// ErrUploadsDisabled indicates no attachment storage is configured.
	ErrUploadsDisabled = errors.New("attachment uploads are not configured")
)

// AttachmentStorage stores challenge attachments and returns their public URL.
type AttachmentStorage interface {
	Upload(ctx context.Context, folder, name string, reader io.Reader) (string, error)
}

// AdminChallengeService manages the challenge catalogue.
type AdminChallengeService interface {
	List(ctx context.Context) ([]dto.AdminChallengeResponse, error)
	Get(ctx context.Context, id uint) (dto.AdminChallengeResponse, error)
	Create(ctx context.Context, payload dto.ChallengeUpsertRequest) (dto.AdminChallengeResponse, error)
	Update(ctx context.Context, id uint, payload dto.ChallengeUpsertRequest) (dto.AdminChallengeResponse, error)
	Delete(ctx context.Context, id uint) error
	AttachFile(ctx context.Context, id uint, file *multipart.FileHeader) (dto.AdminChallengeResponse, error)
}

type adminChallengeService struct {
	challenges repository.ChallengeRepository
	instances  repository.RunningChallengeRepository
	storage    AttachmentStorage
	validator  *validator.Validate
	policy     *bluemonday.Policy
	logger     zerolog.Logger
	tracer     trace.Tracer
}

// NewAdminChallengeService constructs the catalogue service. storage may be nil.
func NewAdminChallengeService(
	challengeRepo repository.ChallengeRepository,
	instanceRepo repository.RunningChallengeRepository,
	storage AttachmentStorage,
	validate *validator.Validate,
	logger zerolog.Logger,
) AdminChallengeService {
	return &adminChallengeService{
		challenges: challengeRepo,
		instances:  instanceRepo,
		storage:    storage,
		validator:  validate,
		policy:     bluemonday.UGCPolicy(),
		logger:     logger.With().Str("component", "admin_challenge_service").Logger(),
		tracer:     otel.Tracer("github.com/noah-isme/ctf-go-api/internal/service/admin_challenge"),
	}
}

func (s *adminChallengeService) List(ctx context.Context) ([]dto.AdminChallengeResponse, error) {
	challenges, err := s.challenges.List(ctx, true)
	if err != nil {
		return nil, err
	}

	ids := make([]uint, 0, len(challenges))
	for _, challenge := range challenges {
		ids = append(ids, challenge.ID)
	}
	dynamics, err := s.challenges.ListDynamic(ctx, ids)
	if err != nil {
		return nil, err
	}

	responses := make([]dto.AdminChallengeResponse, 0, len(challenges))
	for _, challenge := range challenges {
		var dynamic *models.DynamicChallenge
		if row, ok := dynamics[challenge.ID]; ok {
			dynamic = &row
		}
		responses = append(responses, dto.NewAdminChallengeResponse(challenge, dynamic))
	}

	return responses, nil
}

func (s *adminChallengeService) Get(ctx context.Context, id uint) (dto.AdminChallengeResponse, error) {
	challenge, dynamic, err := s.load(ctx, id)
	if err != nil {
		return dto.AdminChallengeResponse{}, err
	}

	return dto.NewAdminChallengeResponse(challenge, dynamic), nil
}

func (s *adminChallengeService) Create(ctx context.Context, payload dto.ChallengeUpsertRequest) (dto.AdminChallengeResponse, error) {
	var challenge models.Challenge
	challenge.SetFiles(nil)

	dynamic, err := s.apply(&challenge, payload)
	if err != nil {
		return dto.AdminChallengeResponse{}, err
	}

	if err := s.challenges.Create(ctx, &challenge, dynamic); err != nil {
		return dto.AdminChallengeResponse{}, err
	}

	s.logger.Info().Uint("challenge_id", challenge.ID).Str("name", challenge.Name).Msg("challenge created")
	return dto.NewAdminChallengeResponse(challenge, dynamic), nil
}

func (s *adminChallengeService) Update(ctx context.Context, id uint, payload dto.ChallengeUpsertRequest) (dto.AdminChallengeResponse, error) {
	challenge, _, err := s.load(ctx, id)
	if err != nil {
		return dto.AdminChallengeResponse{}, err
	}

	dynamic, err := s.apply(&challenge, payload)
	if err != nil {
		return dto.AdminChallengeResponse{}, err
	}

	if err := s.challenges.Update(ctx, &challenge, dynamic); err != nil {
		return dto.AdminChallengeResponse{}, err
	}

	s.logger.Info().Uint("challenge_id", challenge.ID).Msg("challenge updated")
	return dto.NewAdminChallengeResponse(challenge, dynamic), nil
}

// Delete removes a challenge. Challenges with running instances are kept so no
// container is orphaned; the running_challenges foreign key covers concurrent starts.
func (s *adminChallengeService) Delete(ctx context.Context, id uint) error {
	running, err := s.instances.CountByChallenge(ctx, id)
	if err != nil {
		return err
	}
	if running > 0 {
		return ErrChallengeInUse
	}

	if err := s.challenges.Delete(ctx, id); err != nil {
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			return ErrChallengeNotFound
		case errors.Is(err, gorm.ErrForeignKeyViolated):
			// an instance was started after the count above
			return ErrChallengeInUse
		}
		return err
	}

	s.logger.Info().Uint("challenge_id", id).Msg("challenge deleted")
	return nil
}

func (s *adminChallengeService) AttachFile(ctx context.Context, id uint, file *multipart.FileHeader) (dto.AdminChallengeResponse, error) {
	ctx, span := s.tracer.Start(ctx, "challenges.attach_file", trace.WithAttributes(
		attribute.Int64("ctf.challenge_id", int64(id)),
	))
	defer span.End()

	if s.storage == nil {
		return dto.AdminChallengeResponse{}, ErrUploadsDisabled
	}
	if file == nil {
		return dto.AdminChallengeResponse{}, fmt.Errorf("%w: file is required", ErrInvalidChallenge)
	}
	if file.Size > maxAttachmentBytes {
		return dto.AdminChallengeResponse{}, ErrAttachmentTooLarge
	}

	challenge, dynamic, err := s.load(ctx, id)
	if err != nil {
		return dto.AdminChallengeResponse{}, err
	}

	handle, err := file.Open()
	if err != nil {
		return dto.AdminChallengeResponse{}, err
	}
	defer handle.Close()

	buf := bytes.NewBuffer(nil)
	if _, err := io.Copy(buf, io.LimitReader(handle, maxAttachmentBytes+1)); err != nil {
		return dto.AdminChallengeResponse{}, err
	}
	if int64(buf.Len()) > maxAttachmentBytes {
		return dto.AdminChallengeResponse{}, ErrAttachmentTooLarge
	}

	detected := mimetype.Detect(buf.Bytes())
	name := attachmentName(file.Filename, detected.Extension())
	span.SetAttributes(
		attribute.String("upload.detected_mime", detected.String()),
		attribute.Int64("upload.size_bytes", int64(buf.Len())),
	)

	url, err := s.storage.Upload(ctx, fmt.Sprintf("challenges/%d", id), name, bytes.NewReader(buf.Bytes()))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "storage failed")
		return dto.AdminChallengeResponse{}, err
	}

	files := challenge.FileList()
	files = append(files, models.ChallengeFile{
		Name: name,
		URL:  url,
		Size: int64(buf.Len()),
		Type: detected.String(),
	})
	challenge.SetFiles(files)

	if err := s.challenges.Update(ctx, &challenge, dynamic); err != nil {
		return dto.AdminChallengeResponse{}, err
	}

	s.logger.Info().Uint("challenge_id", id).Str("file", name).Msg("challenge attachment stored")
	return dto.NewAdminChallengeResponse(challenge, dynamic), nil
}

func (s *adminChallengeService) load(ctx context.Context, id uint) (models.Challenge, *models.DynamicChallenge, error) {
	challenge, err := s.challenges.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Challenge{}, nil, ErrChallengeNotFound
		}
		return models.Challenge{}, nil, err
	}

	dynamic, err := s.challenges.GetDynamic(ctx, id)
	if err != nil {
		return models.Challenge{}, nil, err
	}

	return challenge, dynamic, nil
}

// apply validates payload and copies it onto challenge, returning the decay row for dynamic scoring.
func (s *adminChallengeService) apply(challenge *models.Challenge, payload dto.ChallengeUpsertRequest) (*models.DynamicChallenge, error) {
	if err := s.validator.Struct(payload); err != nil {
		return nil, err
	}

	var template models.DeployTemplate
	if payload.Deploy != nil {
		template = *payload.Deploy
		if err := ValidateDeployTemplate(template); err != nil {
			return nil, err
		}
	}
	if payload.DynamicFlag && len(template.Containers) == 0 {
		return nil, fmt.Errorf("%w: dynamic flags require a deployment", ErrInvalidChallenge)
	}

	var dynamic *models.DynamicChallenge
	if payload.Type == models.ChallengeTypeDynamic {
		if payload.Decay == nil {
			return nil, fmt.Errorf("%w: dynamic challenges require decay settings", ErrInvalidChallenge)
		}
		if payload.Decay.Minimum > payload.Value {
			return nil, fmt.Errorf("%w: minimum exceeds initial value", ErrInvalidChallenge)
		}
		dynamic = &models.DynamicChallenge{
			Initial:  payload.Value,
			Minimum:  payload.Decay.Minimum,
			Decay:    payload.Decay.Decay,
			Function: payload.Decay.Function,
		}
	}

	hints := make([]string, 0, len(payload.Hints))
	for _, hint := range payload.Hints {
		if sanitized := strings.TrimSpace(s.policy.Sanitize(hint)); sanitized != "" {
			hints = append(hints, sanitized)
		}
	}

	challenge.Name = strings.TrimSpace(payload.Name)
	challenge.Category = strings.TrimSpace(payload.Category)
	challenge.Author = strings.TrimSpace(payload.Author)
	challenge.Description = s.policy.Sanitize(payload.Description)
	challenge.Flag = payload.Flag
	challenge.Type = payload.Type
	challenge.Value = payload.Value
	challenge.DynamicFlag = payload.DynamicFlag
	challenge.Hidden = payload.Hidden
	challenge.SetHints(hints)
	if err := challenge.SetDeployTemplate(template); err != nil {
		return nil, err
	}

	return dynamic, nil
}

func attachmentName(original, detectedExt string) string {
	ext := strings.ToLower(filepath.Ext(original))
	if ext == "" {
		ext = detectedExt
	}

	base := strings.TrimSuffix(filepath.Base(original), filepath.Ext(original))
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		default:
			return '-'
		}
	}, base)
	base = strings.Trim(base, "-.")
	if base == "" {
		base = "attachment"
	}

	return base + ext
}
