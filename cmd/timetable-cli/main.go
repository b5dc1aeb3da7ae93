package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/univ-lab/timetable-api/internal/csvio"
	"github.com/univ-lab/timetable-api/internal/engine"
	"github.com/univ-lab/timetable-api/internal/service"
	"github.com/univ-lab/timetable-api/pkg/config"
	"github.com/univ-lab/timetable-api/pkg/export"
	"github.com/univ-lab/timetable-api/pkg/logger"
)

// The CLI runs the scheduling engine against CSV files, without a database
// or server. It writes the same result files the export API produces, so
// batch runs and API runs can be compared directly.
func main() {
	var (
		sectionsPath     = flag.String("sections", "", "sections CSV path (required)")
		roomsPath        = flag.String("rooms", "", "rooms CSV path (required)")
		professorsPath   = flag.String("professors", "", "professors CSV path")
		availabilityPath = flag.String("availability", "", "availability CSV path")
		outDir           = flag.String("out", "out", "output directory")
		seed             = flag.Int64("seed", 0, "RNG seed, 0 uses the current time")
		settingsPath     = flag.String("settings", "", "env file with scheduler overrides")
	)
	flag.Parse()

	if *sectionsPath == "" || *roomsPath == "" {
		flag.Usage()
		os.Exit(2)
	}

	if *settingsPath != "" {
		if err := godotenv.Load(*settingsPath); err != nil {
			log.Fatalf("failed to load settings file: %v", err)
		}
	}
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck
	sugar := logr.Sugar()

	engineCfg, err := service.EngineConfigFromEnv(cfg.Scheduler)
	if err != nil {
		sugar.Errorw("invalid scheduler configuration", "error", err)
		os.Exit(1)
	}

	delim := csvio.DefaultDelimiter
	if d := []rune(cfg.Imports.Delimiter); len(d) > 0 {
		delim = d[0]
	}

	inputs, groups, err := loadInputs(*sectionsPath, *roomsPath, *professorsPath, *availabilityPath, delim, sugar)
	if err != nil {
		sugar.Errorw("failed to load inputs", "error", err)
		os.Exit(1)
	}
	sugar.Infow("inputs loaded",
		"sections", len(inputs.Sections),
		"rooms", len(inputs.Rooms),
		"availability_slots", len(inputs.Availability),
	)

	runSeed := *seed
	if runSeed == 0 {
		runSeed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(runSeed))

	eng, err := engine.New(inputs.Inputs, engineCfg, rng)
	if err != nil {
		sugar.Errorw("failed to build engine", "error", err)
		os.Exit(1)
	}
	result, err := eng.Run()
	if err != nil {
		sugar.Errorw("scheduling run failed", "error", err)
		os.Exit(1)
	}
	if err := engine.Verify(eng.Grid(), inputs.Sections, inputs.Rooms, result); err != nil {
		sugar.Errorw("result verification failed", "error", err)
		os.Exit(1)
	}

	if err := writeOutputs(*outDir, delim, engineCfg, result, inputs, groups); err != nil {
		sugar.Errorw("failed to write outputs", "error", err)
		os.Exit(1)
	}

	sugar.Infow("scheduling run finished",
		"seed", runSeed,
		"assigned", result.Stats.AssignedCount,
		"unassigned", result.Stats.UnassignedCount,
		"assignment_rate", fmt.Sprintf("%.4f", result.Stats.AssignmentRate),
		"preference_score", result.Stats.PreferenceScore,
		"iterations", result.Stats.Iterations,
		"elapsed_ms", result.Stats.ElapsedMS,
		"out", *outDir,
	)
}

// sectionMeta carries the CSV columns the engine does not need but the
// output files do.
type sectionMeta struct {
	CourseName     string
	ProfessorCode  string
	ClassGroupCode string
}

type cliInputs struct {
	engine.Inputs
	meta map[string]sectionMeta
}

// loadInputs reads and validates the CSV files. Section, professor and room
// codes double as engine IDs so every output stays readable.
func loadInputs(sectionsPath, roomsPath, professorsPath, availabilityPath string, delim rune, sugar *zap.SugaredLogger) (*cliInputs, []string, error) {
	inputs := &cliInputs{meta: map[string]sectionMeta{}}

	professorCodes := map[string]bool{}
	if professorsPath != "" {
		records, err := readCSV(professorsPath, delim, csvio.ReadProfessors)
		if err != nil {
			return nil, nil, err
		}
		for _, rec := range records {
			professorCodes[strings.ToUpper(strings.TrimSpace(rec.Code))] = true
		}
	}

	roomRecords, err := readCSV(roomsPath, delim, csvio.ReadRooms)
	if err != nil {
		return nil, nil, err
	}
	for _, rec := range roomRecords {
		inputs.Rooms = append(inputs.Rooms, engine.Room{
			ID: strings.ToUpper(strings.TrimSpace(rec.Code)),
			Category: engine.RoomCategory{
				Type:          strings.ToLower(strings.TrimSpace(rec.Type)),
				KnowledgeArea: strings.ToLower(strings.TrimSpace(rec.KnowledgeArea)),
			},
		})
	}

	sectionRecords, err := readCSV(sectionsPath, delim, csvio.ReadSections)
	if err != nil {
		return nil, nil, err
	}
	groupSet := map[string]bool{}
	for i, rec := range sectionRecords {
		code := strings.ToUpper(strings.TrimSpace(rec.Code))
		professorCode := strings.ToUpper(strings.TrimSpace(rec.ProfessorCode))
		groupCode := strings.ToUpper(strings.TrimSpace(rec.ClassGroupCode))
		if code == "" || professorCode == "" || groupCode == "" {
			return nil, nil, fmt.Errorf("sections row %d: code, professor_code and class_group_code are required", i+2)
		}
		if rec.Duration < 1 {
			return nil, nil, fmt.Errorf("sections row %d: duration %d must be at least 1", i+2, rec.Duration)
		}
		if len(professorCodes) > 0 && !professorCodes[professorCode] {
			return nil, nil, fmt.Errorf("sections row %d: unknown professor code %s", i+2, professorCode)
		}
		groupSet[groupCode] = true
		inputs.Sections = append(inputs.Sections, engine.Section{
			ID:           code,
			ProfessorID:  professorCode,
			ClassGroupID: groupCode,
			RoomCategory: engine.RoomCategory{
				Type:          strings.ToLower(strings.TrimSpace(rec.RoomType)),
				KnowledgeArea: strings.ToLower(strings.TrimSpace(rec.KnowledgeArea)),
			},
			Duration:      rec.Duration,
			Regime:        groupRegime(groupCode),
			PriorityClass: groupPriority(groupCode),
			Active:        true,
		})
		inputs.meta[code] = sectionMeta{
			CourseName:     strings.TrimSpace(rec.CourseName),
			ProfessorCode:  professorCode,
			ClassGroupCode: groupCode,
		}
	}

	if availabilityPath != "" {
		records, err := readCSV(availabilityPath, delim, csvio.ReadAvailability)
		if err != nil {
			return nil, nil, err
		}
		skipped := 0
		for _, rec := range records {
			code := strings.ToUpper(strings.TrimSpace(rec.ProfessorCode))
			if len(professorCodes) > 0 && !professorCodes[code] {
				skipped++
				continue
			}
			inputs.Availability = append(inputs.Availability, engine.AvailabilitySlot{
				ProfessorID: code,
				Day:         rec.Day,
				Period:      rec.Period,
				Weight:      rec.Weight,
			})
		}
		if skipped > 0 {
			sugar.Warnw("skipped availability rows for unknown professors", "rows", skipped)
		}
	}

	groups := make([]string, 0, len(groupSet))
	for code := range groupSet {
		groups = append(groups, code)
	}
	sort.Strings(groups)
	return inputs, groups, nil
}

func readCSV[T any](path string, delim rune, read func(r io.Reader, delim rune) ([]T, error)) ([]T, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close() //nolint:errcheck
	records, err := read(f, delim)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return records, nil
}

// groupRegime reads the shift marker from the second character of the class
// group code, matching the convention the catalog API derives groups with.
func groupRegime(code string) engine.Regime {
	if len(code) < 2 {
		return engine.RegimeUnrestricted
	}
	switch code[1] {
	case 'D':
		return engine.RegimeDay
	case 'N':
		return engine.RegimeNight
	default:
		return engine.RegimeUnrestricted
	}
}

// groupPriority maps the leading study-year digit of the group code onto a
// preference tier.
func groupPriority(code string) int {
	if len(code) == 0 {
		return 2
	}
	year := int(code[0] - '0')
	if year == 1 || year == 3 {
		return 1
	}
	return 2
}

// writeOutputs writes assignments.csv, unassigned.csv, summary.csv and one
// grid CSV per class group into the output directory.
func writeOutputs(dir string, delim rune, cfg engine.Config, result *engine.Result, inputs *cliInputs, groups []string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	assignments := make([]csvio.AssignmentRecord, 0, len(result.Assignments))
	for _, a := range result.Assignments {
		meta := inputs.meta[a.SectionID]
		assignments = append(assignments, csvio.AssignmentRecord{
			SectionCode:    a.SectionID,
			CourseName:     meta.CourseName,
			ProfessorCode:  meta.ProfessorCode,
			ClassGroupCode: meta.ClassGroupCode,
			RoomCode:       a.RoomID,
			Day:            engine.DayName(a.Day),
			StartPeriod:    a.Start,
			EndPeriod:      a.Span().End(),
			Score:          a.Score,
		})
	}
	if err := writeFile(filepath.Join(dir, "assignments.csv"), func(f *os.File) error {
		return csvio.WriteAssignments(f, delim, assignments)
	}); err != nil {
		return err
	}

	unassigned := make([]csvio.UnassignedRecord, 0, len(result.Unassigned))
	for _, u := range result.Unassigned {
		meta := inputs.meta[u.SectionID]
		unassigned = append(unassigned, csvio.UnassignedRecord{
			SectionCode: u.SectionID,
			CourseName:  meta.CourseName,
			Reason:      string(u.Reason),
		})
	}
	if err := writeFile(filepath.Join(dir, "unassigned.csv"), func(f *os.File) error {
		return csvio.WriteUnassigned(f, delim, unassigned)
	}); err != nil {
		return err
	}

	csvExporter := export.NewCSVExporter()
	summary, err := csvExporter.Render(summaryDataset(result.Stats))
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, "summary.csv"), summary, 0o644); err != nil {
		return err
	}

	for _, group := range groups {
		data, err := csvExporter.Render(gridDataset(result, inputs, group, cfg.Grid.PeriodsPerDay))
		if err != nil {
			return err
		}
		name := fmt.Sprintf("grid_%s.csv", strings.ToLower(group))
		if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
			return err
		}
	}
	return nil
}

func writeFile(path string, write func(f *os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func summaryDataset(stats engine.Stats) export.Dataset {
	rows := []map[string]string{
		{"Metric": "Total Sections", "Value": strconv.Itoa(stats.TotalSections)},
		{"Metric": "Assigned", "Value": strconv.Itoa(stats.AssignedCount)},
		{"Metric": "Unassigned", "Value": strconv.Itoa(stats.UnassignedCount)},
		{"Metric": "Assignment Rate", "Value": fmt.Sprintf("%.4f", stats.AssignmentRate)},
		{"Metric": "Preference Score", "Value": strconv.Itoa(stats.PreferenceScore)},
		{"Metric": "Objective Before", "Value": fmt.Sprintf("%.4f", stats.ObjectiveBefore)},
		{"Metric": "Objective After", "Value": fmt.Sprintf("%.4f", stats.ObjectiveAfter)},
		{"Metric": "Iterations", "Value": strconv.Itoa(stats.Iterations)},
		{"Metric": "Accepted Moves", "Value": strconv.Itoa(stats.AcceptedMoves)},
		{"Metric": "Rejected Moves", "Value": strconv.Itoa(stats.RejectedMoves)},
		{"Metric": "Infeasible Moves", "Value": strconv.Itoa(stats.InfeasibleMoves)},
		{"Metric": "Professors Used", "Value": strconv.Itoa(stats.ProfessorsUsed)},
		{"Metric": "Rooms Used", "Value": strconv.Itoa(stats.RoomsUsed)},
		{"Metric": "Groups Placed", "Value": strconv.Itoa(stats.GroupsPlaced)},
		{"Metric": "Elapsed (ms)", "Value": strconv.FormatInt(stats.ElapsedMS, 10)},
	}
	for day, count := range stats.AssignmentsPerDay {
		rows = append(rows, map[string]string{
			"Metric": fmt.Sprintf("Assignments %s", engine.DayName(day)),
			"Value":  strconv.Itoa(count),
		})
	}
	return export.Dataset{Headers: []string{"Metric", "Value"}, Rows: rows}
}

// gridDataset lays one class group's week onto a period-by-day table. Cells
// carry "SECTION ROOM" so the sheet reads like the posted timetable.
func gridDataset(result *engine.Result, inputs *cliInputs, group string, periods int) export.Dataset {
	headers := []string{"Period", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday"}
	rows := make([]map[string]string, periods)
	for p := 1; p <= periods; p++ {
		rows[p-1] = map[string]string{"Period": strconv.Itoa(p)}
	}
	for _, a := range result.Assignments {
		if inputs.meta[a.SectionID].ClassGroupCode != group {
			continue
		}
		day := engine.DayName(a.Day)
		cell := fmt.Sprintf("%s %s", a.SectionID, a.RoomID)
		for p := a.Start; p < a.Start+a.Duration; p++ {
			if p >= 1 && p <= periods {
				rows[p-1][day] = cell
			}
		}
	}
	return export.Dataset{Headers: headers, Rows: rows}
}
