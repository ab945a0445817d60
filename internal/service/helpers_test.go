package service

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/sibylline/sibyl/internal/config"
	"github.com/sibylline/sibyl/internal/models"
	"github.com/sibylline/sibyl/internal/repo"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		models.User{},
		models.PredictionSession{}, models.Prediction{},
		models.CreditAccount{}, models.CreditEntry{},
		models.SessionTask{},
	))
	return db
}

type testEnv struct {
	db   *gorm.DB
	conf *config.Config

	sessionRepo    *repo.SessionRepo
	predictionRepo *repo.PredictionRepo
	taskRepo       *repo.TaskRepo

	creditService *CreditService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := newTestDB(t)
	logger := zap.NewNop()
	return &testEnv{
		db:             db,
		conf:           &config.Config{},
		sessionRepo:    repo.NewSessionRepo(db),
		predictionRepo: repo.NewPredictionRepo(db),
		taskRepo:       repo.NewTaskRepo(db),
		creditService: NewCreditService(db, logger,
			repo.NewCreditAccountRepo(db), repo.NewCreditEntryRepo(db)),
	}
}

func (env *testEnv) newWorker(t *testing.T, generator PredictionGenerator) *SessionWorker {
	t.Helper()
	return NewSessionWorker(env.db, zap.NewNop(), env.conf, generator,
		env.creditService, nil, env.sessionRepo, env.predictionRepo)
}

func (env *testEnv) seedAccount(t *testing.T, userId string, credits int64) {
	t.Helper()
	require.NoError(t, env.creditService.EnsureAccount(context.Background(), userId, credits))
}

func (env *testEnv) credits(t *testing.T, userId string) int64 {
	t.Helper()
	account, err := env.creditService.GetAccount(context.Background(), userId)
	require.NoError(t, err)
	return account.Credits
}
