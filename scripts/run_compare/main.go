package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"
)

// run_compare fetches the assignment lists of two finished runs and diffs
// them placement by placement. Two runs with the same seed and catalog must
// produce identical timetables, so any diff is a determinism regression (or
// a divergence between two deployments during a rollout).

type assignment struct {
	SectionCode string `json:"section_code"`
	RoomCode    string `json:"room_code"`
	Day         int    `json:"day"`
	StartPeriod int    `json:"start_period"`
	Duration    int    `json:"duration"`
	Score       int    `json:"score"`
}

type envelope struct {
	Data  []assignment `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func main() {
	var (
		baseA   string
		baseB   string
		runA    string
		runB    string
		token   string
		timeout time.Duration
	)

	flag.StringVar(&baseA, "base-a", "http://localhost:8080", "API base URL for run A")
	flag.StringVar(&baseB, "base-b", "", "API base URL for run B, defaults to base-a")
	flag.StringVar(&runA, "run-a", "", "run ID for side A (required)")
	flag.StringVar(&runB, "run-b", "", "run ID for side B (required)")
	flag.StringVar(&token, "token", "", "bearer token, optional")
	flag.DurationVar(&timeout, "timeout", 10*time.Second, "HTTP client timeout")
	flag.Parse()

	if runA == "" || runB == "" {
		flag.Usage()
		os.Exit(2)
	}
	if baseB == "" {
		baseB = baseA
	}

	client := &http.Client{Timeout: timeout}

	left, err := fetchAssignments(client, baseA, runA, token)
	if err != nil {
		log.Fatalf("failed to fetch run A: %v", err)
	}
	right, err := fetchAssignments(client, baseB, runB, token)
	if err != nil {
		log.Fatalf("failed to fetch run B: %v", err)
	}

	diffs := compare(left, right)

	fmt.Println("Run Compare Report")
	fmt.Println("==================")
	fmt.Printf("Run A: %s (%d assignments)\n", runA, len(left))
	fmt.Printf("Run B: %s (%d assignments)\n", runB, len(right))
	for _, d := range diffs {
		fmt.Printf("  %s\n", d)
	}
	fmt.Printf("Differences: %d\n", len(diffs))
	if len(diffs) > 0 {
		os.Exit(1)
	}
}

func fetchAssignments(client *http.Client, base, runID, token string) ([]assignment, error) {
	url := fmt.Sprintf("%s/api/v1/runs/%s/assignments", strings.TrimRight(base, "/"), runID)
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decode body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		if env.Error != nil {
			return nil, fmt.Errorf("%s: %s (%s)", resp.Status, env.Error.Message, env.Error.Code)
		}
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	return env.Data, nil
}

// compare diffs two assignment lists keyed by section code. Database IDs
// differ between deployments, so only the schedule-bearing fields count.
func compare(left, right []assignment) []string {
	leftBySection := indexBySection(left)
	rightBySection := indexBySection(right)

	sections := make([]string, 0, len(leftBySection))
	for code := range leftBySection {
		sections = append(sections, code)
	}
	for code := range rightBySection {
		if _, ok := leftBySection[code]; !ok {
			sections = append(sections, code)
		}
	}
	sort.Strings(sections)

	var diffs []string
	for _, code := range sections {
		l, okL := leftBySection[code]
		r, okR := rightBySection[code]
		switch {
		case !okL:
			diffs = append(diffs, fmt.Sprintf("%s: only in run B", code))
		case !okR:
			diffs = append(diffs, fmt.Sprintf("%s: only in run A", code))
		case l != r:
			diffs = append(diffs, fmt.Sprintf("%s: A=%s B=%s", code, formatAssignment(l), formatAssignment(r)))
		}
	}
	return diffs
}

func indexBySection(assignments []assignment) map[string]assignment {
	indexed := make(map[string]assignment, len(assignments))
	for _, a := range assignments {
		indexed[a.SectionCode] = a
	}
	return indexed
}

func formatAssignment(a assignment) string {
	return fmt.Sprintf("{room=%s day=%d start=%d duration=%d score=%d}", a.RoomCode, a.Day, a.StartPeriod, a.Duration, a.Score)
}
