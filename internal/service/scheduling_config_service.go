package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/univ-lab/timetable-api/internal/dto"
	"github.com/univ-lab/timetable-api/internal/engine"
	"github.com/univ-lab/timetable-api/internal/models"
	"github.com/univ-lab/timetable-api/pkg/config"
	appErrors "github.com/univ-lab/timetable-api/pkg/errors"
)

type settingRepository interface {
	List(ctx context.Context) ([]models.SchedulingSetting, error)
	Get(ctx context.Context, key string) (*models.SchedulingSetting, error)
	Upsert(ctx context.Context, setting *models.SchedulingSetting) error
	BulkUpsert(ctx context.Context, settings []models.SchedulingSetting) error
}

const (
	settingPeriodsPerDay      = "scheduler.periods_per_day"
	settingDayRange           = "scheduler.day_range"
	settingNightRange         = "scheduler.night_range"
	settingRestWindows        = "scheduler.rest_windows"
	settingMorningPreferred   = "scheduler.morning_preferred"
	settingAfternoonPreferred = "scheduler.afternoon_preferred"
	settingWeightPreference   = "scheduler.weight_preference"
	settingWeightGap          = "scheduler.weight_gap"
	settingWeightDayBalance   = "scheduler.weight_day_balance"
	settingInitialTemperature = "scheduler.annealing_initial_temperature"
	settingCoolingRate        = "scheduler.annealing_cooling_rate"
	settingMaxIterations      = "scheduler.annealing_iterations"
	settingMinTemperature     = "scheduler.annealing_min_temperature"
	settingSampleSize         = "scheduler.annealing_sample_size"
)

type allowedSetting struct {
	Key         string
	Type        models.SettingType
	Description string
}

var allowedSettingKeys = []string{
	settingPeriodsPerDay,
	settingDayRange,
	settingNightRange,
	settingRestWindows,
	settingMorningPreferred,
	settingAfternoonPreferred,
	settingWeightPreference,
	settingWeightGap,
	settingWeightDayBalance,
	settingInitialTemperature,
	settingCoolingRate,
	settingMaxIterations,
	settingMinTemperature,
	settingSampleSize,
}

var allowedSettings = map[string]allowedSetting{
	settingPeriodsPerDay: {
		Key:         settingPeriodsPerDay,
		Type:        models.SettingTypeInteger,
		Description: "Number of periods in one day",
	},
	settingDayRange: {
		Key:         settingDayRange,
		Type:        models.SettingTypeString,
		Description: "Inclusive period range for day-regime groups, as start-end",
	},
	settingNightRange: {
		Key:         settingNightRange,
		Type:        models.SettingTypeString,
		Description: "Inclusive period range for night-regime groups, as start-end",
	},
	settingRestWindows: {
		Key:         settingRestWindows,
		Type:        models.SettingTypeString,
		Description: "Comma separated period ranges blocked for every entity",
	},
	settingMorningPreferred: {
		Key:         settingMorningPreferred,
		Type:        models.SettingTypeString,
		Description: "Preferred day sub-range for priority class 1, as start-end",
	},
	settingAfternoonPreferred: {
		Key:         settingAfternoonPreferred,
		Type:        models.SettingTypeString,
		Description: "Preferred day sub-range for priority class 2, as start-end",
	},
	settingWeightPreference: {
		Key:         settingWeightPreference,
		Type:        models.SettingTypeFloat,
		Description: "Objective weight for professor availability preferences",
	},
	settingWeightGap: {
		Key:         settingWeightGap,
		Type:        models.SettingTypeFloat,
		Description: "Objective weight for idle gaps inside a class group day",
	},
	settingWeightDayBalance: {
		Key:         settingWeightDayBalance,
		Type:        models.SettingTypeFloat,
		Description: "Objective weight for spreading assignments across days",
	},
	settingInitialTemperature: {
		Key:         settingInitialTemperature,
		Type:        models.SettingTypeFloat,
		Description: "Annealing start temperature",
	},
	settingCoolingRate: {
		Key:         settingCoolingRate,
		Type:        models.SettingTypeFloat,
		Description: "Geometric cooling factor applied each iteration",
	},
	settingMaxIterations: {
		Key:         settingMaxIterations,
		Type:        models.SettingTypeInteger,
		Description: "Maximum refinement iterations, 0 disables refinement",
	},
	settingMinTemperature: {
		Key:         settingMinTemperature,
		Type:        models.SettingTypeFloat,
		Description: "Temperature floor that stops refinement early",
	},
	settingSampleSize: {
		Key:         settingSampleSize,
		Type:        models.SettingTypeInteger,
		Description: "Candidate placements sampled per refinement move",
	},
}

// SchedulingConfigService resolves the engine configuration for a run by
// layering built-in defaults, environment values, persisted settings and
// per-run overrides, in that order. It also backs the settings admin API.
type SchedulingConfigService struct {
	repo      settingRepository
	env       config.SchedulerConfig
	validator *validator.Validate
	logger    *zap.Logger
}

// NewSchedulingConfigService constructs a SchedulingConfigService.
func NewSchedulingConfigService(repo settingRepository, env config.SchedulerConfig, validate *validator.Validate, logger *zap.Logger) *SchedulingConfigService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SchedulingConfigService{repo: repo, env: env, validator: validate, logger: logger}
}

// EngineConfigFromEnv layers the environment values over the built-in
// defaults without consulting persisted settings. Offline tools use it when
// no database is available.
func EngineConfigFromEnv(env config.SchedulerConfig) (engine.Config, error) {
	cfg := engine.DefaultConfig()
	if err := applyEnvironmentLayer(&cfg, env); err != nil {
		return cfg, err
	}
	if _, err := engine.NewTimeGrid(cfg.Grid); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Resolve returns the effective engine configuration without per-run
// overrides. The resulting grid is validated before it is returned.
func (s *SchedulingConfigService) Resolve(ctx context.Context) (engine.Config, error) {
	cfg := engine.DefaultConfig()
	if err := applyEnvironmentLayer(&cfg, s.env); err != nil {
		return cfg, appErrors.Clone(appErrors.ErrGridConfig, err.Error())
	}

	settings, err := s.repo.List(ctx)
	if err != nil {
		return cfg, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load scheduling settings")
	}
	for _, setting := range settings {
		if _, ok := allowedSettings[setting.Key]; !ok {
			continue
		}
		if err := applySettingValue(&cfg, setting.Key, setting.Value); err != nil {
			return cfg, appErrors.Clone(appErrors.ErrGridConfig, fmt.Sprintf("setting %s: %v", setting.Key, err))
		}
	}

	if err := validateGrid(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ResolveForRun layers per-run parameter overrides on top of Resolve.
func (s *SchedulingConfigService) ResolveForRun(ctx context.Context, params models.RunParams) (engine.Config, error) {
	cfg, err := s.Resolve(ctx)
	if err != nil {
		return cfg, err
	}
	if params.MaxIterations != nil {
		cfg.Annealing.MaxIterations = *params.MaxIterations
	}
	if params.SampleSize != nil {
		cfg.Annealing.SampleSize = *params.SampleSize
	}
	if params.InitialTemperature != nil {
		cfg.Annealing.InitialTemperature = *params.InitialTemperature
	}
	if params.CoolingRate != nil {
		cfg.Annealing.CoolingRate = *params.CoolingRate
	}
	if params.MinTemperature != nil {
		cfg.Annealing.MinTemperature = *params.MinTemperature
	}
	return cfg, nil
}

// List returns every supported setting with its stored or effective value.
func (s *SchedulingConfigService) List(ctx context.Context) ([]dto.SettingItem, error) {
	rows, err := s.repo.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list scheduling settings")
	}
	stored := make(map[string]models.SchedulingSetting, len(rows))
	for _, row := range rows {
		stored[row.Key] = row
	}

	baseline := s.baselineValues()
	items := make([]dto.SettingItem, 0, len(allowedSettingKeys))
	for _, key := range allowedSettingKeys {
		meta := allowedSettings[key]
		item := dto.SettingItem{Key: key, Type: string(meta.Type), Description: meta.Description}
		if row, ok := stored[key]; ok {
			item.Value = row.Value
			item.Stored = true
			if row.Description != nil && *row.Description != "" {
				item.Description = *row.Description
			}
		} else {
			item.Value = baseline[key]
		}
		items = append(items, item)
	}
	return items, nil
}

// Get retrieves one setting, falling back to the effective default when no
// row is stored.
func (s *SchedulingConfigService) Get(ctx context.Context, key string) (*dto.SettingItem, error) {
	meta, err := requireAllowedSetting(key)
	if err != nil {
		return nil, err
	}
	setting, err := s.repo.Get(ctx, key)
	if err != nil {
		if err == sql.ErrNoRows {
			return &dto.SettingItem{
				Key:         key,
				Value:       s.baselineValues()[key],
				Type:        string(meta.Type),
				Description: meta.Description,
			}, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to get scheduling setting")
	}
	description := meta.Description
	if setting.Description != nil && *setting.Description != "" {
		description = *setting.Description
	}
	return &dto.SettingItem{
		Key:         setting.Key,
		Value:       setting.Value,
		Type:        string(setting.Type),
		Description: description,
		Stored:      true,
	}, nil
}

// Update upserts one setting after checking the resulting configuration
// still builds a valid grid.
func (s *SchedulingConfigService) Update(ctx context.Context, key, value string, actor *models.JWTClaims) (*dto.SettingItem, error) {
	meta, err := requireAllowedSetting(key)
	if err != nil {
		return nil, err
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("%s requires a value", key))
	}

	if err := s.checkCandidate(ctx, map[string]string{key: value}); err != nil {
		return nil, err
	}

	description := meta.Description
	setting := &models.SchedulingSetting{
		Key:         key,
		Value:       value,
		Type:        meta.Type,
		Description: &description,
		UpdatedBy:   clientIDPtr(actor),
	}
	if err := s.repo.Upsert(ctx, setting); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update scheduling setting")
	}
	return &dto.SettingItem{
		Key:         key,
		Value:       value,
		Type:        string(meta.Type),
		Description: meta.Description,
		Stored:      true,
	}, nil
}

// BulkUpdate applies several setting updates transactionally. The combined
// candidate configuration is validated once before anything is written.
func (s *SchedulingConfigService) BulkUpdate(ctx context.Context, req dto.BulkUpdateSettingsRequest, actor *models.JWTClaims) ([]dto.SettingItem, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid settings payload")
	}

	candidate := make(map[string]string, len(req.Items))
	for _, item := range req.Items {
		if _, err := requireAllowedSetting(item.Key); err != nil {
			return nil, err
		}
		value := strings.TrimSpace(item.Value)
		if value == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("%s requires a value", item.Key))
		}
		if _, dup := candidate[item.Key]; dup {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("duplicate setting %s", item.Key))
		}
		candidate[item.Key] = value
	}

	if err := s.checkCandidate(ctx, candidate); err != nil {
		return nil, err
	}

	toUpsert := make([]models.SchedulingSetting, 0, len(req.Items))
	items := make([]dto.SettingItem, 0, len(req.Items))
	for _, item := range req.Items {
		meta := allowedSettings[item.Key]
		description := meta.Description
		toUpsert = append(toUpsert, models.SchedulingSetting{
			Key:         item.Key,
			Value:       candidate[item.Key],
			Type:        meta.Type,
			Description: &description,
			UpdatedBy:   clientIDPtr(actor),
		})
		items = append(items, dto.SettingItem{
			Key:         item.Key,
			Value:       candidate[item.Key],
			Type:        string(meta.Type),
			Description: meta.Description,
			Stored:      true,
		})
	}
	if err := s.repo.BulkUpsert(ctx, toUpsert); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to bulk update scheduling settings")
	}
	return items, nil
}

// checkCandidate resolves the current configuration, applies the candidate
// values and rejects the update when the grid would become invalid.
func (s *SchedulingConfigService) checkCandidate(ctx context.Context, candidate map[string]string) error {
	cfg, err := s.Resolve(ctx)
	if err != nil {
		// A broken stored state must not block repairs, keep layering from
		// the defaults instead.
		cfg = engine.DefaultConfig()
		if envErr := applyEnvironmentLayer(&cfg, s.env); envErr != nil {
			return appErrors.Clone(appErrors.ErrGridConfig, envErr.Error())
		}
	}
	for key, value := range candidate {
		if err := applySettingValue(&cfg, key, value); err != nil {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("%s: %v", key, err))
		}
	}
	return validateGrid(cfg)
}

func (s *SchedulingConfigService) baselineValues() map[string]string {
	cfg := engine.DefaultConfig()
	if err := applyEnvironmentLayer(&cfg, s.env); err != nil {
		s.logger.Warn("invalid scheduler environment values, using defaults", zap.Error(err))
		cfg = engine.DefaultConfig()
	}
	return configValues(cfg)
}

func requireAllowedSetting(key string) (allowedSetting, error) {
	meta, ok := allowedSettings[key]
	if !ok {
		return allowedSetting{}, appErrors.Clone(appErrors.ErrValidation, "unsupported setting key")
	}
	return meta, nil
}

func validateGrid(cfg engine.Config) error {
	if _, err := engine.NewTimeGrid(cfg.Grid); err != nil {
		var configErr *engine.ConfigError
		if errors.As(err, &configErr) {
			return appErrors.Clone(appErrors.ErrGridConfig, configErr.Error())
		}
		return appErrors.Wrap(err, appErrors.ErrGridConfig.Code, appErrors.ErrGridConfig.Status, "grid validation failed")
	}
	return nil
}

// applyEnvironmentLayer copies the non-empty environment values over the
// built-in defaults.
func applyEnvironmentLayer(cfg *engine.Config, env config.SchedulerConfig) error {
	if env.PeriodsPerDay > 0 {
		cfg.Grid.PeriodsPerDay = env.PeriodsPerDay
	}
	if env.DayRange != "" {
		r, err := parsePeriodRange(env.DayRange)
		if err != nil {
			return fmt.Errorf("day range: %w", err)
		}
		cfg.Grid.DayRange = r
	}
	if env.NightRange != "" {
		r, err := parsePeriodRange(env.NightRange)
		if err != nil {
			return fmt.Errorf("night range: %w", err)
		}
		cfg.Grid.NightRange = r
	}
	if len(env.RestWindows) > 0 {
		windows := make([]engine.PeriodRange, 0, len(env.RestWindows))
		for _, raw := range env.RestWindows {
			r, err := parsePeriodRange(raw)
			if err != nil {
				return fmt.Errorf("rest window: %w", err)
			}
			windows = append(windows, r)
		}
		cfg.Grid.RestWindows = windows
	}
	if env.MorningPreferred != "" {
		r, err := parsePeriodRange(env.MorningPreferred)
		if err != nil {
			return fmt.Errorf("morning preferred: %w", err)
		}
		setPreferredRange(cfg, 1, r)
	}
	if env.AfternoonPreferred != "" {
		r, err := parsePeriodRange(env.AfternoonPreferred)
		if err != nil {
			return fmt.Errorf("afternoon preferred: %w", err)
		}
		setPreferredRange(cfg, 2, r)
	}
	if env.PreferenceWeight > 0 {
		cfg.Weights.Preference = env.PreferenceWeight
	}
	if env.GapWeight > 0 {
		cfg.Weights.Gap = env.GapWeight
	}
	if env.BalanceWeight > 0 {
		cfg.Weights.DayBalance = env.BalanceWeight
	}
	if env.InitialTemperature > 0 {
		cfg.Annealing.InitialTemperature = env.InitialTemperature
	}
	if env.CoolingRate > 0 {
		cfg.Annealing.CoolingRate = env.CoolingRate
	}
	if env.MaxIterations > 0 {
		cfg.Annealing.MaxIterations = env.MaxIterations
	}
	if env.MinTemperature > 0 {
		cfg.Annealing.MinTemperature = env.MinTemperature
	}
	if env.SampleSize > 0 {
		cfg.Annealing.SampleSize = env.SampleSize
	}
	return nil
}

// applySettingValue parses one stored setting and writes it into the
// configuration. Unknown keys must be filtered out by the caller.
func applySettingValue(cfg *engine.Config, key, value string) error {
	switch key {
	case settingPeriodsPerDay:
		n, err := parsePositiveInt(value)
		if err != nil {
			return err
		}
		cfg.Grid.PeriodsPerDay = n
	case settingDayRange:
		r, err := parsePeriodRange(value)
		if err != nil {
			return err
		}
		cfg.Grid.DayRange = r
	case settingNightRange:
		r, err := parsePeriodRange(value)
		if err != nil {
			return err
		}
		cfg.Grid.NightRange = r
	case settingRestWindows:
		windows, err := parsePeriodRangeList(value)
		if err != nil {
			return err
		}
		cfg.Grid.RestWindows = windows
	case settingMorningPreferred:
		r, err := parsePeriodRange(value)
		if err != nil {
			return err
		}
		setPreferredRange(cfg, 1, r)
	case settingAfternoonPreferred:
		r, err := parsePeriodRange(value)
		if err != nil {
			return err
		}
		setPreferredRange(cfg, 2, r)
	case settingWeightPreference:
		f, err := parseNonNegativeFloat(value)
		if err != nil {
			return err
		}
		cfg.Weights.Preference = f
	case settingWeightGap:
		f, err := parseNonNegativeFloat(value)
		if err != nil {
			return err
		}
		cfg.Weights.Gap = f
	case settingWeightDayBalance:
		f, err := parseNonNegativeFloat(value)
		if err != nil {
			return err
		}
		cfg.Weights.DayBalance = f
	case settingInitialTemperature:
		f, err := parseNonNegativeFloat(value)
		if err != nil {
			return err
		}
		cfg.Annealing.InitialTemperature = f
	case settingCoolingRate:
		f, err := parseNonNegativeFloat(value)
		if err != nil {
			return err
		}
		cfg.Annealing.CoolingRate = f
	case settingMaxIterations:
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || n < 0 {
			return fmt.Errorf("expects a non-negative integer")
		}
		cfg.Annealing.MaxIterations = n
	case settingMinTemperature:
		f, err := parseNonNegativeFloat(value)
		if err != nil {
			return err
		}
		cfg.Annealing.MinTemperature = f
	case settingSampleSize:
		n, err := parsePositiveInt(value)
		if err != nil {
			return err
		}
		cfg.Annealing.SampleSize = n
	default:
		return fmt.Errorf("unsupported setting key")
	}
	return nil
}

// setPreferredRange swaps the day-regime preferred sub-range of one
// priority class, appending when no entry exists yet.
func setPreferredRange(cfg *engine.Config, priorityClass int, r engine.PeriodRange) {
	for i := range cfg.Grid.Preferred {
		p := &cfg.Grid.Preferred[i]
		if p.PriorityClass == priorityClass && p.Regime == engine.RegimeDay {
			p.Range = r
			return
		}
	}
	cfg.Grid.Preferred = append(cfg.Grid.Preferred, engine.PreferredRange{
		PriorityClass: priorityClass,
		Regime:        engine.RegimeDay,
		Range:         r,
	})
}

// configValues serializes a configuration back into the string form the
// settings API exposes.
func configValues(cfg engine.Config) map[string]string {
	values := map[string]string{
		settingPeriodsPerDay:      strconv.Itoa(cfg.Grid.PeriodsPerDay),
		settingDayRange:           formatPeriodRange(cfg.Grid.DayRange),
		settingNightRange:         formatPeriodRange(cfg.Grid.NightRange),
		settingRestWindows:        formatPeriodRangeList(cfg.Grid.RestWindows),
		settingWeightPreference:   formatFloat(cfg.Weights.Preference),
		settingWeightGap:          formatFloat(cfg.Weights.Gap),
		settingWeightDayBalance:   formatFloat(cfg.Weights.DayBalance),
		settingInitialTemperature: formatFloat(cfg.Annealing.InitialTemperature),
		settingCoolingRate:        formatFloat(cfg.Annealing.CoolingRate),
		settingMaxIterations:      strconv.Itoa(cfg.Annealing.MaxIterations),
		settingMinTemperature:     formatFloat(cfg.Annealing.MinTemperature),
		settingSampleSize:         strconv.Itoa(cfg.Annealing.SampleSize),
	}
	for _, p := range cfg.Grid.Preferred {
		if p.Regime != engine.RegimeDay {
			continue
		}
		switch p.PriorityClass {
		case 1:
			values[settingMorningPreferred] = formatPeriodRange(p.Range)
		case 2:
			values[settingAfternoonPreferred] = formatPeriodRange(p.Range)
		}
	}
	return values
}

// parsePeriodRange reads an inclusive "start-end" period range.
func parsePeriodRange(raw string) (engine.PeriodRange, error) {
	parts := strings.SplitN(strings.TrimSpace(raw), "-", 2)
	if len(parts) != 2 {
		return engine.PeriodRange{}, fmt.Errorf("expects start-end, got %q", raw)
	}
	start, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return engine.PeriodRange{}, fmt.Errorf("expects start-end, got %q", raw)
	}
	end, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return engine.PeriodRange{}, fmt.Errorf("expects start-end, got %q", raw)
	}
	if start < 1 || end < start {
		return engine.PeriodRange{}, fmt.Errorf("range %q must satisfy 1 <= start <= end", raw)
	}
	return engine.PeriodRange{Start: start, End: end}, nil
}

func parsePeriodRangeList(raw string) ([]engine.PeriodRange, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, nil
	}
	parts := strings.Split(trimmed, ",")
	ranges := make([]engine.PeriodRange, 0, len(parts))
	for _, part := range parts {
		r, err := parsePeriodRange(part)
		if err != nil {
			return nil, err
		}
		ranges = append(ranges, r)
	}
	return ranges, nil
}

func formatPeriodRange(r engine.PeriodRange) string {
	return fmt.Sprintf("%d-%d", r.Start, r.End)
}

func formatPeriodRangeList(ranges []engine.PeriodRange) string {
	parts := make([]string, 0, len(ranges))
	for _, r := range ranges {
		parts = append(parts, formatPeriodRange(r))
	}
	return strings.Join(parts, ",")
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func parsePositiveInt(value string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || n < 1 {
		return 0, fmt.Errorf("expects a positive integer")
	}
	return n, nil
}

func parseNonNegativeFloat(value string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil || f < 0 {
		return 0, fmt.Errorf("expects a non-negative number")
	}
	return f, nil
}

func clientIDPtr(actor *models.JWTClaims) *string {
	if actor == nil || actor.ClientID == "" {
		return nil
	}
	id := actor.ClientID
	return &id
}
