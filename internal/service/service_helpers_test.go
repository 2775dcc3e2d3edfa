package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/ctf-go-api/internal/database"
	"github.com/noah-isme/ctf-go-api/internal/models"
	"github.com/noah-isme/ctf-go-api/internal/repository"
	"github.com/noah-isme/ctf-go-api/pkg/orchestrator"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func testValidator() *validator.Validate {
	return validator.New(validator.WithRequiredStructEnabled())
}

func setupServiceDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=1", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.Migrate(db))
	return db
}

type orchestratorStub struct {
	mu           sync.Mutex
	provisioned  map[string]orchestrator.Values
	torndown     []string
	provisionErr error
	teardownErr  error
}

func newOrchestratorStub() *orchestratorStub {
	return &orchestratorStub{provisioned: map[string]orchestrator.Values{}}
}

func (o *orchestratorStub) Provision(_ context.Context, instanceID string, values orchestrator.Values) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.provisionErr != nil {
		return o.provisionErr
	}
	o.provisioned[instanceID] = values
	return nil
}

func (o *orchestratorStub) Teardown(_ context.Context, instanceID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.teardownErr != nil {
		return o.teardownErr
	}
	o.torndown = append(o.torndown, instanceID)
	delete(o.provisioned, instanceID)
	return nil
}

func (o *orchestratorStub) setErrors(provision, teardown error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.provisionErr = provision
	o.teardownErr = teardown
}

func (o *orchestratorStub) provisionCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.provisioned)
}

func (o *orchestratorStub) teardownCalls() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.torndown...)
}

type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) Publish(_ context.Context, event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *eventRecorder) kinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]string, 0, len(r.events))
	for _, event := range r.events {
		kinds = append(kinds, event.Kind)
	}
	return kinds
}

var errOrchestratorDown = errors.New("connection refused")

type lifecycleFixture struct {
	db           *gorm.DB
	challenges   repository.ChallengeRepository
	instances    repository.RunningChallengeRepository
	teardowns    repository.TeardownRepository
	submissions  repository.SubmissionRepository
	orchestrator *orchestratorStub
	events       *eventRecorder
	service      *instanceService
}

func newLifecycleFixture(t *testing.T) *lifecycleFixture {
	t.Helper()
	db := setupServiceDB(t)

	fixture := &lifecycleFixture{
		db:           db,
		challenges:   repository.NewChallengeRepository(db),
		instances:    repository.NewRunningChallengeRepository(db),
		teardowns:    repository.NewTeardownRepository(db),
		submissions:  repository.NewSubmissionRepository(db),
		orchestrator: newOrchestratorStub(),
		events:       &eventRecorder{},
	}

	svc := NewInstanceService(
		fixture.challenges,
		fixture.instances,
		fixture.teardowns,
		fixture.orchestrator,
		nil,
		fixture.events,
		InstanceSettings{
			Deploy:     DeploySettings{BaseDomain: "tasks.cfrt.dev", MaxSubdomainLength: 63},
			FlagPrefix: "cfrt",
		},
		testLogger(),
	)
	fixture.service = svc.(*instanceService)

	return fixture
}

func (f *lifecycleFixture) createChallenge(t *testing.T, mutate func(*models.Challenge)) models.Challenge {
	t.Helper()
	challenge := models.Challenge{
		Name:     "web warmup",
		Category: "web",
		Flag:     "flag{static}",
		Type:     models.ChallengeTypeStatic,
		Value:    100,
	}
	require.NoError(t, challenge.SetDeployTemplate(webTemplate()))
	if mutate != nil {
		mutate(&challenge)
	}

	require.NoError(t, f.challenges.Create(context.Background(), &challenge, nil))
	return challenge
}

func fixedIDs(ids ...string) func() (string, error) {
	var mu sync.Mutex
	next := 0
	return func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		if next >= len(ids) {
			return GenerateInstanceID()
		}
		id := ids[next]
		next++
		return id, nil
	}
}
