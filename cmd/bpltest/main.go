// bpltest runs the Markdown test corpora against bplc, either in process
// or by invoking a bplc binary for every case.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/go-cmp/cmp"
	"github.com/xplshn/bplc/pkg/casefile"
)

type Execution struct {
	Stdout   string        `json:"stdout"`
	Stderr   string        `json:"stderr"`
	ExitCode int           `json:"exitCode"`
	Duration time.Duration `json:"duration"`
	TimedOut bool          `json:"timed_out"`
}

type CaseResult struct {
	Name     string        `json:"name"`
	Line     int           `json:"line"`
	Status   string        `json:"status"` // PASS, FAIL
	Problems []string      `json:"problems,omitempty"`
	Diff     string        `json:"diff,omitempty"`
	Duration time.Duration `json:"duration"`
	Exec     *Execution    `json:"exec,omitempty"`
}

type FileTestResult struct {
	File    string        `json:"file"`
	Status  string        `json:"status"` // PASS, FAIL, SKIP, ERROR
	Message string        `json:"message,omitempty"`
	Cases   []*CaseResult `json:"cases,omitempty"`
}

type TestSuiteResults map[string]*FileTestResult

var (
	bplcPath   = flag.String("bplc", "", "Path to a bplc binary. Cases run in process when empty.")
	testFiles  = flag.String("test-files", "testdata/*.md", "Glob pattern(s) for test corpora (space-separated).")
	skipFiles  = flag.String("skip-files", "", "Files to skip (space-separated).")
	filter     = flag.String("run", "", "Only run cases whose name contains this substring.")
	outputJSON = flag.String("output", ".test_results.json", "Output file for the JSON test report.")
	timeout    = flag.Duration("timeout", 5*time.Second, "Timeout for each bplc invocation.")
	jobs       = flag.Int("j", 4, "Number of parallel test jobs.")
	verbose    = flag.Bool("v", false, "List every case, not only failures.")
)

const (
	cRed    = "\x1b[91m"
	cYellow = "\x1b[93m"
	cGreen  = "\x1b[92m"
	cCyan   = "\x1b[96m"
	cBold   = "\x1b[1m"
	cNone   = "\x1b[0m"
)

func main() {
	flag.Parse()
	log.SetFlags(0)

	if *jobs < 1 {
		*jobs = 1
	}

	tempDir, err := os.MkdirTemp("", "bpltest-*")
	if err != nil {
		log.Fatalf("%s[ERROR]%s Failed to create temp directory: %v\n", cRed, cNone, err)
	}
	defer os.RemoveAll(tempDir)
	setupInterruptHandler(tempDir)

	if *bplcPath != "" {
		if _, err := exec.LookPath(*bplcPath); err != nil {
			log.Fatalf("%s[ERROR]%s bplc binary '%s' not found: %v\n", cRed, cNone, *bplcPath, err)
		}
	}

	if handleRunTestSuite(tempDir) {
		os.RemoveAll(tempDir)
		os.Exit(1)
	}
}

// setupInterruptHandler is used to clean up on CTRL+C
func setupInterruptHandler(tempDir string) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)
	go func() {
		<-c
		os.RemoveAll(tempDir)
		fmt.Printf("\n%s[INTERRUPT]%s Test run cancelled. Cleaning up...\n", cYellow, cNone)
		os.Exit(1)
	}()
}

// handleRunTestSuite runs every corpus and reports whether anything failed.
func handleRunTestSuite(tempDir string) bool {
	files, err := expandGlobPatterns(*testFiles)
	if err != nil {
		log.Fatalf("%s[ERROR]%s Invalid glob pattern(s): %v\n", cRed, cNone, err)
	}
	if len(files) == 0 {
		log.Println("No test files found matching the pattern(s).")
		return false
	}

	skipList := make(map[string]bool)
	for _, f := range strings.Fields(*skipFiles) {
		if abs, err := filepath.Abs(f); err == nil {
			skipList[abs] = true
		}
	}

	tasks := make(chan string, len(files))
	resultsChan := make(chan *FileTestResult, len(files))
	var wg sync.WaitGroup

	for i := 0; i < *jobs; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for file := range tasks {
				resultsChan <- testFile(file, tempDir)
			}
		}()
	}

	// Feed the tasks channel, skipping corpora with identical content
	seenHashes := make(map[uint64]string)
	for _, file := range files {
		if skipList[file] {
			resultsChan <- &FileTestResult{File: file, Status: "SKIP", Message: "Explicitly skipped"}
			continue
		}
		data, err := os.ReadFile(file)
		if err != nil {
			resultsChan <- &FileTestResult{File: file, Status: "ERROR", Message: fmt.Sprintf("Failed to read file: %v", err)}
			continue
		}
		sum := xxhash.Sum64(data)
		if originalFile, seen := seenHashes[sum]; seen {
			resultsChan <- &FileTestResult{File: file, Status: "SKIP", Message: fmt.Sprintf("Content is identical to %s", originalFile)}
			continue
		}
		seenHashes[sum] = file
		tasks <- file
	}
	close(tasks)

	wg.Wait()
	close(resultsChan)

	var allResults []*FileTestResult
	for result := range resultsChan {
		allResults = append(allResults, result)
	}
	sort.Slice(allResults, func(i, j int) bool {
		return allResults[i].File < allResults[j].File
	})

	printSummary(allResults)
	return hasFailures(writeJSONReport(allResults))
}

func testFile(file, tempDir string) *FileTestResult {
	data, err := os.ReadFile(file)
	if err != nil {
		return &FileTestResult{File: file, Status: "ERROR", Message: err.Error()}
	}
	cases, err := casefile.Extract(data)
	if err != nil {
		return &FileTestResult{File: file, Status: "ERROR", Message: err.Error()}
	}

	res := &FileTestResult{File: file, Status: "PASS"}
	for i := range cases {
		tc := &cases[i]
		if *filter != "" && !strings.Contains(tc.Name, *filter) {
			continue
		}
		cr := testCase(tc, tempDir)
		if cr.Status == "FAIL" {
			res.Status = "FAIL"
		}
		res.Cases = append(res.Cases, cr)
	}
	if len(res.Cases) == 0 {
		res.Status = "SKIP"
		res.Message = "No cases selected"
		return res
	}
	passed := 0
	for _, c := range res.Cases {
		if c.Status == "PASS" {
			passed++
		}
	}
	res.Message = fmt.Sprintf("%d/%d cases passed", passed, len(res.Cases))
	return res
}

func testCase(tc *casefile.TestCase, tempDir string) *CaseResult {
	cr := &CaseResult{Name: tc.Name, Line: tc.Line}
	start := time.Now()

	var res casefile.Result
	if *bplcPath == "" {
		res = casefile.Execute(tc)
	} else {
		var ex Execution
		res, ex = executeBinary(tc, tempDir)
		cr.Exec = &ex
	}
	cr.Duration = time.Since(start)

	cr.Problems = casefile.Verify(tc, res)
	for _, a := range tc.Assertions {
		if a.Type == casefile.AssertOutput && res.CompileError == nil && res.Output != a.Content {
			cr.Diff = cmp.Diff(a.Content, res.Output)
		}
	}
	cr.Status = "PASS"
	if len(cr.Problems) > 0 {
		cr.Status = "FAIL"
	}
	return cr
}

// executeBinary compiles and runs tc with the bplc binary and maps its
// exit status and stderr back onto a casefile result.
func executeBinary(tc *casefile.TestCase, tempDir string) (casefile.Result, Execution) {
	src := tc.Source()
	// Use the hash for a unique, deterministic source name
	path := filepath.Join(tempDir, fmt.Sprintf("%016x.bpl", xxhash.Sum64String(src)))
	if err := os.WriteFile(path, []byte(src), 0644); err != nil {
		return casefile.Result{CompileError: err}, Execution{}
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	args := append([]string{"--step-limit", fmt.Sprint(casefile.DefaultStepLimit)}, tc.Flags...)
	args = append(args, path)
	ex := executeCommand(ctx, *bplcPath, args...)

	res := casefile.Result{Output: ex.Stdout, Exit: int64(ex.ExitCode)}
	switch {
	case ex.TimedOut:
		res.RuntimeError = fmt.Errorf("timed out after %s", *timeout)
	case ex.ExitCode == 2 && strings.Contains(ex.Stderr, "bplc: runtime error: "):
		_, msg, _ := strings.Cut(ex.Stderr, "bplc: runtime error: ")
		res.RuntimeError = errors.New(strings.TrimSpace(msg))
	case ex.ExitCode == 1 && hasErrorLine(ex.Stderr):
		res.CompileError = errors.New(strings.TrimSpace(ex.Stderr))
	}
	return res, ex
}

func hasErrorLine(stderr string) bool {
	for _, line := range strings.Split(stderr, "\n") {
		if strings.HasPrefix(line, "error: ") || strings.Contains(line, ": error: ") || strings.HasPrefix(line, "bplc: ") {
			return true
		}
	}
	return false
}

// executeCommand runs a command with a timeout and captures its output
func executeCommand(ctx context.Context, command string, args ...string) Execution {
	startTime := time.Now()
	cmd := exec.CommandContext(ctx, command, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	ex := Execution{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(startTime),
	}

	if ctx.Err() == context.DeadlineExceeded {
		ex.TimedOut = true
		ex.ExitCode = -1
	} else if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			ex.ExitCode = exitErr.ExitCode()
		} else {
			ex.ExitCode = -2
			ex.Stderr += "\nExecution error: " + err.Error()
		}
	}
	return ex
}

func formatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%6dµs", d.Microseconds())
	}
	return fmt.Sprintf("%6dms", d.Milliseconds())
}

func printSummary(results []*FileTestResult) {
	var passed, failed, skipped, errored int
	var casesPassed, casesTotal int
	var total time.Duration

	for _, result := range results {
		fmt.Println("----------------------------------------------------------------------")
		fmt.Printf("Testing %s%s%s...\n", cCyan, result.File, cNone)

		switch result.Status {
		case "PASS":
			passed++
			fmt.Printf("  [%sPASS%s] %s\n", cGreen, cNone, result.Message)
		case "FAIL":
			failed++
			fmt.Printf("  [%sFAIL%s] %s\n", cRed, cNone, result.Message)
		case "SKIP":
			skipped++
			fmt.Printf("  [%sSKIP%s] %s\n", cYellow, cNone, result.Message)
		case "ERROR":
			errored++
			fmt.Printf("  [%sERROR%s] %s\n", cRed, cNone, result.Message)
		}

		for _, c := range result.Cases {
			casesTotal++
			total += c.Duration
			if c.Status == "PASS" {
				casesPassed++
				if *verbose {
					fmt.Printf("    [%sPASS%s] %s [%s]\n", cGreen, cNone, c.Name, formatDuration(c.Duration))
				}
				continue
			}
			fmt.Printf("    [%sFAIL%s] %s (line %d)\n", cRed, cNone, c.Name, c.Line)
			for _, p := range c.Problems {
				fmt.Printf("      %s\n", p)
			}
			fmt.Print(formatDiff(c.Diff))
		}
	}

	fmt.Println("----------------------------------------------------------------------")
	fmt.Printf("%sTest Summary:%s %s%d Passed%s, %s%d Failed%s, %s%d Skipped%s, %s%d Errored%s, %d Total\n",
		cBold, cNone, cGreen, passed, cNone, cRed, failed, cNone, cYellow, skipped, cNone, cRed, errored, cNone, len(results))
	if casesTotal > 0 {
		fmt.Printf("%d/%d cases passed in %s\n", casesPassed, casesTotal, strings.TrimSpace(formatDuration(total)))
	}
}

func formatDiff(diff string) string {
	if diff == "" {
		return ""
	}
	var builder strings.Builder
	builder.WriteString("      --- Diff ---\n")
	for _, line := range strings.Split(diff, "\n") {
		trimmedLine := strings.TrimSpace(line)
		if strings.HasPrefix(trimmedLine, "-") {
			builder.WriteString(cRed)
		} else if strings.HasPrefix(trimmedLine, "+") {
			builder.WriteString(cGreen)
		}
		builder.WriteString("      " + line)
		builder.WriteString(cNone)
		builder.WriteString("\n")
	}
	return builder.String()
}

func writeJSONReport(results []*FileTestResult) TestSuiteResults {
	resultsMap := make(TestSuiteResults, len(results))
	for _, r := range results {
		resultsMap[r.File] = r
	}

	jsonData, err := json.MarshalIndent(resultsMap, "", "  ")
	if err != nil {
		log.Printf("%s[ERROR]%s Failed to marshal results to JSON: %v\n", cRed, cNone, err)
		return resultsMap
	}
	if err := os.WriteFile(*outputJSON, jsonData, 0644); err != nil {
		log.Printf("%s[ERROR]%s Failed to write JSON report to %s: %v\n", cRed, cNone, *outputJSON, err)
	} else {
		fmt.Printf("Full test report saved to %s\n", *outputJSON)
	}
	return resultsMap
}

func hasFailures(results TestSuiteResults) bool {
	for _, result := range results {
		if result.Status == "FAIL" || result.Status == "ERROR" {
			return true
		}
	}
	return false
}

func expandGlobPatterns(patterns string) ([]string, error) {
	var allFiles []string
	seen := make(map[string]bool)
	for _, pattern := range strings.Fields(patterns) {
		files, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("bad pattern %s: %w", pattern, err)
		}
		for _, file := range files {
			absFile, err := filepath.Abs(file)
			if err != nil {
				continue
			}
			if !seen[absFile] {
				if info, err := os.Stat(absFile); err == nil && info.Mode().IsRegular() {
					allFiles = append(allFiles, absFile)
					seen[absFile] = true
				}
			}
		}
	}
	return allFiles, nil
}
