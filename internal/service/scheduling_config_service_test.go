package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/univ-lab/timetable-api/internal/dto"
	"github.com/univ-lab/timetable-api/internal/models"
	"github.com/univ-lab/timetable-api/pkg/config"
	appErrors "github.com/univ-lab/timetable-api/pkg/errors"
)

type mockSettingRepo struct {
	rows    map[string]models.SchedulingSetting
	listErr error
}

func (m *mockSettingRepo) List(ctx context.Context) ([]models.SchedulingSetting, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := make([]models.SchedulingSetting, 0, len(m.rows))
	for _, row := range m.rows {
		out = append(out, row)
	}
	return out, nil
}

func (m *mockSettingRepo) Get(ctx context.Context, key string) (*models.SchedulingSetting, error) {
	if row, ok := m.rows[key]; ok {
		cp := row
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockSettingRepo) Upsert(ctx context.Context, setting *models.SchedulingSetting) error {
	if m.rows == nil {
		m.rows = make(map[string]models.SchedulingSetting)
	}
	m.rows[setting.Key] = *setting
	return nil
}

func (m *mockSettingRepo) BulkUpsert(ctx context.Context, settings []models.SchedulingSetting) error {
	for i := range settings {
		if err := m.Upsert(ctx, &settings[i]); err != nil {
			return err
		}
	}
	return nil
}

func TestSchedulingConfigResolveDefaults(t *testing.T) {
	svc := NewSchedulingConfigService(&mockSettingRepo{}, config.SchedulerConfig{}, validator.New(), zap.NewNop())

	cfg, err := svc.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 30, cfg.Grid.PeriodsPerDay)
	assert.Equal(t, 1, cfg.Grid.DayRange.Start)
	assert.Equal(t, 20, cfg.Grid.DayRange.End)
	assert.Equal(t, 5000, cfg.Annealing.MaxIterations)
}

func TestSchedulingConfigResolveEnvironmentLayer(t *testing.T) {
	env := config.SchedulerConfig{
		PeriodsPerDay: 24,
		DayRange:      "1-20",
		NightRange:    "21-24",
		RestWindows:   []string{"8-8"},
		MaxIterations: 2000,
	}
	svc := NewSchedulingConfigService(&mockSettingRepo{}, env, validator.New(), zap.NewNop())

	cfg, err := svc.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 24, cfg.Grid.PeriodsPerDay)
	assert.Equal(t, 20, cfg.Grid.DayRange.End)
	assert.Equal(t, 21, cfg.Grid.NightRange.Start)
	require.Len(t, cfg.Grid.RestWindows, 1)
	assert.Equal(t, 8, cfg.Grid.RestWindows[0].Start)
	assert.Equal(t, 2000, cfg.Annealing.MaxIterations)
}

func TestSchedulingConfigResolveStoredSettingsWin(t *testing.T) {
	repo := &mockSettingRepo{rows: map[string]models.SchedulingSetting{
		settingPeriodsPerDay: {Key: settingPeriodsPerDay, Value: "40", Type: models.SettingTypeInteger},
		settingDayRange:      {Key: settingDayRange, Value: "1-25", Type: models.SettingTypeString},
		settingNightRange:    {Key: settingNightRange, Value: "26-40", Type: models.SettingTypeString},
		"unrelated.key":      {Key: "unrelated.key", Value: "ignored", Type: models.SettingTypeString},
	}}
	env := config.SchedulerConfig{PeriodsPerDay: 24}
	svc := NewSchedulingConfigService(repo, env, validator.New(), zap.NewNop())

	cfg, err := svc.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 40, cfg.Grid.PeriodsPerDay)
	assert.Equal(t, 25, cfg.Grid.DayRange.End)
	assert.Equal(t, 40, cfg.Grid.NightRange.End)
}

func TestSchedulingConfigResolveForRunOverrides(t *testing.T) {
	svc := NewSchedulingConfigService(&mockSettingRepo{}, config.SchedulerConfig{}, validator.New(), zap.NewNop())

	iterations := 100
	sample := 4
	cfg, err := svc.ResolveForRun(context.Background(), models.RunParams{
		MaxIterations: &iterations,
		SampleSize:    &sample,
	})
	require.NoError(t, err)
	assert.Equal(t, 100, cfg.Annealing.MaxIterations)
	assert.Equal(t, 4, cfg.Annealing.SampleSize)
	assert.Equal(t, 0.995, cfg.Annealing.CoolingRate)
}

func TestSchedulingConfigListMergesStored(t *testing.T) {
	repo := &mockSettingRepo{rows: map[string]models.SchedulingSetting{
		settingPeriodsPerDay: {Key: settingPeriodsPerDay, Value: "40", Type: models.SettingTypeInteger},
	}}
	svc := NewSchedulingConfigService(repo, config.SchedulerConfig{}, validator.New(), zap.NewNop())

	items, err := svc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, items, len(allowedSettingKeys))

	byKey := map[string]dto.SettingItem{}
	for _, item := range items {
		byKey[item.Key] = item
	}
	assert.Equal(t, "40", byKey[settingPeriodsPerDay].Value)
	assert.True(t, byKey[settingPeriodsPerDay].Stored)
	assert.Equal(t, "1-20", byKey[settingDayRange].Value)
	assert.False(t, byKey[settingDayRange].Stored)
}

func TestSchedulingConfigGetFallsBackToBaseline(t *testing.T) {
	svc := NewSchedulingConfigService(&mockSettingRepo{}, config.SchedulerConfig{}, validator.New(), zap.NewNop())

	item, err := svc.Get(context.Background(), settingCoolingRate)
	require.NoError(t, err)
	assert.Equal(t, "0.995", item.Value)
	assert.False(t, item.Stored)
}

func TestSchedulingConfigGetUnknownKey(t *testing.T) {
	svc := NewSchedulingConfigService(&mockSettingRepo{}, config.SchedulerConfig{}, validator.New(), zap.NewNop())

	_, err := svc.Get(context.Background(), "scheduler.bogus")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestSchedulingConfigUpdate(t *testing.T) {
	repo := &mockSettingRepo{}
	svc := NewSchedulingConfigService(repo, config.SchedulerConfig{}, validator.New(), zap.NewNop())
	actor := &models.JWTClaims{ClientID: "portal"}

	item, err := svc.Update(context.Background(), settingPeriodsPerDay, "40", actor)
	require.NoError(t, err)
	assert.Equal(t, "40", item.Value)
	assert.True(t, item.Stored)
	stored := repo.rows[settingPeriodsPerDay]
	require.NotNil(t, stored.UpdatedBy)
	assert.Equal(t, "portal", *stored.UpdatedBy)
}

func TestSchedulingConfigUpdateRejectsBrokenGrid(t *testing.T) {
	repo := &mockSettingRepo{}
	svc := NewSchedulingConfigService(repo, config.SchedulerConfig{}, validator.New(), zap.NewNop())

	// Night range would spill past the shrunken day length.
	_, err := svc.Update(context.Background(), settingPeriodsPerDay, "10", nil)
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrGridConfig.Code, appErr.Code)
	assert.Empty(t, repo.rows)
}

func TestSchedulingConfigBulkUpdateValidatesOnce(t *testing.T) {
	repo := &mockSettingRepo{}
	svc := NewSchedulingConfigService(repo, config.SchedulerConfig{}, validator.New(), zap.NewNop())

	// Shrinking the grid only passes when every dependent range moves with it.
	items, err := svc.BulkUpdate(context.Background(), dto.BulkUpdateSettingsRequest{
		Items: []dto.UpdateSettingRequest{
			{Key: settingPeriodsPerDay, Value: "10"},
			{Key: settingDayRange, Value: "1-6"},
			{Key: settingNightRange, Value: "7-10"},
			{Key: settingRestWindows, Value: "4-4"},
			{Key: settingMorningPreferred, Value: "1-3"},
			{Key: settingAfternoonPreferred, Value: "4-6"},
		},
	}, nil)
	require.NoError(t, err)
	assert.Len(t, items, 6)
	assert.Len(t, repo.rows, 6)
}

func TestSchedulingConfigBulkUpdateDuplicateKey(t *testing.T) {
	svc := NewSchedulingConfigService(&mockSettingRepo{}, config.SchedulerConfig{}, validator.New(), zap.NewNop())

	_, err := svc.BulkUpdate(context.Background(), dto.BulkUpdateSettingsRequest{
		Items: []dto.UpdateSettingRequest{
			{Key: settingPeriodsPerDay, Value: "40"},
			{Key: settingPeriodsPerDay, Value: "45"},
		},
	}, nil)
	require.Error(t, err)
	assert.Contains(t, appErrors.FromError(err).Message, "duplicate setting")
}

func TestSchedulingConfigRepairBrokenStoredState(t *testing.T) {
	// A stored row that breaks the grid must not wedge future updates.
	repo := &mockSettingRepo{rows: map[string]models.SchedulingSetting{
		settingPeriodsPerDay: {Key: settingPeriodsPerDay, Value: "10", Type: models.SettingTypeInteger},
	}}
	svc := NewSchedulingConfigService(repo, config.SchedulerConfig{}, validator.New(), zap.NewNop())

	_, err := svc.Resolve(context.Background())
	require.Error(t, err)

	_, err = svc.Update(context.Background(), settingPeriodsPerDay, "40", nil)
	require.NoError(t, err)
	assert.Equal(t, "40", repo.rows[settingPeriodsPerDay].Value)
}
