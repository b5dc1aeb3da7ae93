package engine

import "fmt"

// Regime classifies when a class group may be scheduled. It is derived from
// the group's code upstream; the engine only consumes the resolved value.
type Regime string

const (
	RegimeDay          Regime = "day"
	RegimeNight        Regime = "night"
	RegimeUnrestricted Regime = "unrestricted"
)

// DaysPerWeek is the fixed Monday-Friday scheduling horizon.
const DaysPerWeek = 5

var dayNames = [DaysPerWeek]string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday"}

// DayName returns the weekday name for a 0-based day index.
func DayName(day int) string {
	if day < 0 || day >= DaysPerWeek {
		return fmt.Sprintf("Day%d", day)
	}
	return dayNames[day]
}

// PeriodRange is an inclusive 1-based run of periods within one day.
type PeriodRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Len returns the number of periods covered by the range.
func (r PeriodRange) Len() int {
	if r.End < r.Start {
		return 0
	}
	return r.End - r.Start + 1
}

// Contains reports whether the period falls inside the range.
func (r PeriodRange) Contains(period int) bool {
	return period >= r.Start && period <= r.End
}

// ContainsSpan reports whether a contiguous span starting at start fits
// entirely inside the range.
func (r PeriodRange) ContainsSpan(start, duration int) bool {
	return start >= r.Start && start+duration-1 <= r.End
}

// Overlaps reports whether two ranges share at least one period.
func (r PeriodRange) Overlaps(other PeriodRange) bool {
	return r.Start <= other.End && other.Start <= r.End
}

// PreferredRange binds a soft preferred sub-range to a priority class and
// regime. Spans inside it are tried before the rest of the allowed range.
type PreferredRange struct {
	PriorityClass int         `json:"priority_class"`
	Regime        Regime      `json:"regime"`
	Range         PeriodRange `json:"range"`
}

// GridConfig describes the discrete period axis and its restrictions.
type GridConfig struct {
	PeriodsPerDay int              `json:"periods_per_day"`
	RestWindows   []PeriodRange    `json:"rest_windows"`
	DayRange      PeriodRange      `json:"day_range"`
	NightRange    PeriodRange      `json:"night_range"`
	Preferred     []PreferredRange `json:"preferred_ranges"`
}

// ConfigError reports malformed grid configuration. It is returned from
// construction, before any scheduling work starts.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("grid config %s: %s", e.Field, e.Reason)
}

type prefKey struct {
	class  int
	regime Regime
}

// TimeGrid answers period legality questions for one scheduling run. It is
// immutable after construction.
type TimeGrid struct {
	periods   int
	rest      []PeriodRange
	restMask  []uint64
	day       PeriodRange
	night     PeriodRange
	all       PeriodRange
	preferred map[prefKey]PeriodRange
}

// NewTimeGrid validates the configuration and builds the lookup tables.
func NewTimeGrid(cfg GridConfig) (*TimeGrid, error) {
	if cfg.PeriodsPerDay < 1 {
		return nil, &ConfigError{Field: "periods_per_day", Reason: "must be at least 1"}
	}
	all := PeriodRange{Start: 1, End: cfg.PeriodsPerDay}
	if err := checkRange("day_range", cfg.DayRange, all); err != nil {
		return nil, err
	}
	if err := checkRange("night_range", cfg.NightRange, all); err != nil {
		return nil, err
	}
	if cfg.DayRange.Overlaps(cfg.NightRange) {
		return nil, &ConfigError{Field: "regime_ranges", Reason: "day and night ranges overlap"}
	}
	for i, window := range cfg.RestWindows {
		if err := checkRange(fmt.Sprintf("rest_windows[%d]", i), window, all); err != nil {
			return nil, err
		}
		for j := 0; j < i; j++ {
			if window.Overlaps(cfg.RestWindows[j]) {
				return nil, &ConfigError{Field: "rest_windows", Reason: fmt.Sprintf("windows %d and %d overlap", j, i)}
			}
		}
	}

	grid := &TimeGrid{
		periods:   cfg.PeriodsPerDay,
		rest:      append([]PeriodRange(nil), cfg.RestWindows...),
		restMask:  newBitWords(cfg.PeriodsPerDay),
		day:       cfg.DayRange,
		night:     cfg.NightRange,
		all:       all,
		preferred: make(map[prefKey]PeriodRange, len(cfg.Preferred)),
	}
	for _, window := range cfg.RestWindows {
		setBits(grid.restMask, window.Start, window.Len())
	}
	for i, pref := range cfg.Preferred {
		field := fmt.Sprintf("preferred_ranges[%d]", i)
		allowed := grid.AllowedRange(pref.Regime)
		if err := checkRange(field, pref.Range, allowed); err != nil {
			return nil, err
		}
		key := prefKey{class: pref.PriorityClass, regime: pref.Regime}
		if _, exists := grid.preferred[key]; exists {
			return nil, &ConfigError{Field: field, Reason: fmt.Sprintf("duplicate entry for priority class %d, regime %s", pref.PriorityClass, pref.Regime)}
		}
		grid.preferred[key] = pref.Range
	}
	return grid, nil
}

func checkRange(field string, r PeriodRange, bounds PeriodRange) error {
	if r.End < r.Start {
		return &ConfigError{Field: field, Reason: "end precedes start"}
	}
	if r.Start < bounds.Start || r.End > bounds.End {
		return &ConfigError{Field: field, Reason: fmt.Sprintf("must stay within periods %d-%d", bounds.Start, bounds.End)}
	}
	return nil
}

// PeriodsPerDay returns the configured grid width.
func (g *TimeGrid) PeriodsPerDay() int {
	return g.periods
}

// RestWindows returns the configured rest windows.
func (g *TimeGrid) RestWindows() []PeriodRange {
	return append([]PeriodRange(nil), g.rest...)
}

// IsRest reports whether the period falls inside a configured rest window.
func (g *TimeGrid) IsRest(period int) bool {
	if period < 1 || period > g.periods {
		return false
	}
	bit := period - 1
	return g.restMask[bit/wordBits]&(uint64(1)<<uint(bit%wordBits)) != 0
}

// AllowedRange returns the hard period range for a regime.
func (g *TimeGrid) AllowedRange(regime Regime) PeriodRange {
	switch regime {
	case RegimeDay:
		return g.day
	case RegimeNight:
		return g.night
	default:
		return g.all
	}
}

// PreferredRange returns the soft preferred sub-range configured for a
// priority class within a regime, when there is one.
func (g *TimeGrid) PreferredRange(priorityClass int, regime Regime) (PeriodRange, bool) {
	r, ok := g.preferred[prefKey{class: priorityClass, regime: regime}]
	return r, ok
}

// SpanFits reports whether a span obeys the regime's allowed range and
// touches no rest window.
func (g *TimeGrid) SpanFits(start, duration int, regime Regime) bool {
	if duration < 1 {
		return false
	}
	if !g.AllowedRange(regime).ContainsSpan(start, duration) {
		return false
	}
	return !anyBits(g.restMask, start, duration)
}
