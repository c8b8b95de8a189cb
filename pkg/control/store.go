// Package control is the Control Loop & Run-State Store: the iteration
// driver that repeatedly calls the Candidate Generator and Evaluator,
// tracks best-so-far, and persists every attempt under a run directory
// so a crash can resume exactly where it left off.
package control

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	appErr "github.com/dutyroster/scheduler-core/internal/errors"
	"github.com/dutyroster/scheduler-core/pkg/domain"
)

// Filenames fixed by spec.md §6's persisted run layout.
const (
	stateFile    = "state.json"
	historyFile  = "history.ndjson"
	scheduleFile = "schedule.json"
	reportFile   = "report.json"
	logFile      = "run.log"
)

// fsyncEvery is how often AppendIteration forces the history file to
// disk; fsync on every line would be needlessly slow for a hot loop.
const fsyncEvery = 10

// RunStore persists RunState, history, and artifacts under a base
// "runs/" directory, one subdirectory per run.
type RunStore struct {
	basePath string
}

// NewRunStore creates (if necessary) basePath and returns a RunStore
// rooted there.
func NewRunStore(basePath string) (*RunStore, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, appErr.NewDatabaseError("create run store base path", err)
	}
	return &RunStore{basePath: basePath}, nil
}

func (s *RunStore) runDir(runID string) string {
	return filepath.Join(s.basePath, runID)
}

// NewRunID builds a run_id of the shape
// "{scenario}_{YYYYMMDD_HHMMSS}_{rand8}" per spec.md §6.
func NewRunID(scenario string, now time.Time) (string, error) {
	suffix := make([]byte, 4)
	if _, err := rand.Read(suffix); err != nil {
		return "", appErr.Wrap(err, appErr.ErrorTypeInternal, "generate run id suffix")
	}
	return fmt.Sprintf("%s_%s_%s", scenario, now.UTC().Format("20060102_150405"), hex.EncodeToString(suffix)), nil
}

// CreateRun initializes a new run directory with a fresh state.json and
// an empty history.ndjson.
func (s *RunStore) CreateRun(state domain.RunState) error {
	dir := s.runDir(state.RunID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return appErr.NewDatabaseError("create run directory", err)
	}
	if err := s.SaveState(state); err != nil {
		return err
	}
	f, err := os.OpenFile(filepath.Join(dir, historyFile), os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return appErr.NewDatabaseError("create history file", err)
	}
	return f.Close()
}

// LoadRun reads state.json for runID. Returns (zero, false, nil) when the
// run does not exist.
func (s *RunStore) LoadRun(runID string) (domain.RunState, bool, error) {
	path := filepath.Join(s.runDir(runID), stateFile)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return domain.RunState{}, false, nil
	}
	if err != nil {
		return domain.RunState{}, false, appErr.NewDatabaseError("load run state", err)
	}

	var state domain.RunState
	if err := json.Unmarshal(data, &state); err != nil {
		return domain.RunState{}, false, appErr.Wrap(err, appErr.ErrorTypeDatabase, "state.json is not valid JSON")
	}
	return state, true, nil
}

// SaveState overwrites state.json atomically: write to a temp file in
// the same directory, then rename over the target, so a reader never
// observes a partially-written file.
func (s *RunStore) SaveState(state domain.RunState) error {
	dir := s.runDir(state.RunID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return appErr.NewDatabaseError("create run directory", err)
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return appErr.Wrap(err, appErr.ErrorTypeInternal, "marshal run state")
	}
	return atomicWrite(filepath.Join(dir, stateFile), data)
}

// AppendIteration appends one IterationRecord as a single NDJSON line,
// holding an exclusive lock on the sibling history.ndjson.lock file for
// the duration of this one write so two appenders never interleave.
// LoadHistory and RepairHistory do not take this lock.
func (s *RunStore) AppendIteration(runID string, record domain.IterationRecord) error {
	line, err := json.Marshal(record)
	if err != nil {
		return appErr.Wrap(err, appErr.ErrorTypeInternal, "marshal iteration record")
	}

	path := filepath.Join(s.runDir(runID), historyFile)
	lock := flock.New(path + ".lock")
	locked, err := lock.TryLockContext(context.Background(), 50*time.Millisecond)
	if err != nil {
		return appErr.NewDatabaseError("lock history file", err)
	}
	if !locked {
		return appErr.New(appErr.ErrorTypeDatabase, "history file locked by another writer")
	}
	defer lock.Unlock()

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return appErr.NewDatabaseError("open history file", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return appErr.NewDatabaseError("append iteration record", err)
	}
	if record.Iteration%fsyncEvery == 0 {
		if err := f.Sync(); err != nil {
			return appErr.NewDatabaseError("fsync history file", err)
		}
	}
	return nil
}

// LoadHistory reads history.ndjson, parsing each non-empty line as an
// IterationRecord. A torn trailing line (incomplete write before a
// crash) is detected by JSON-validity probe and silently discarded,
// satisfying the crash-recovery contract in spec.md §4.4.
func (s *RunStore) LoadHistory(runID string) ([]domain.IterationRecord, error) {
	path := filepath.Join(s.runDir(runID), historyFile)
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, appErr.NewDatabaseError("open history file", err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		if line := scanner.Text(); line != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, appErr.NewDatabaseError("scan history file", err)
	}

	records := make([]domain.IterationRecord, 0, len(lines))
	for i, line := range lines {
		var record domain.IterationRecord
		if err := json.Unmarshal([]byte(line), &record); err != nil {
			if i == len(lines)-1 {
				// Torn last line: an incomplete write before a crash.
				// Discard it rather than fail the load.
				break
			}
			return nil, appErr.Wrapf(err, appErr.ErrorTypeDatabase, "history.ndjson line %d is not valid JSON", i+1)
		}
		records = append(records, record)
	}
	return records, nil
}

// RepairHistory rewrites history.ndjson to contain exactly the valid
// records LoadHistory would return, physically dropping any torn
// trailing line before the run resumes appending to it.
func (s *RunStore) RepairHistory(runID string) error {
	records, err := s.LoadHistory(runID)
	if err != nil {
		return err
	}

	var buf []byte
	for _, r := range records {
		line, err := json.Marshal(r)
		if err != nil {
			return appErr.Wrap(err, appErr.ErrorTypeInternal, "marshal iteration record")
		}
		buf = append(buf, line...)
		buf = append(buf, '\n')
	}
	return atomicWrite(filepath.Join(s.runDir(runID), historyFile), buf)
}

// SaveSchedule writes schedule.json atomically. The control loop calls
// this only when a candidate improves on the prior best.
func (s *RunStore) SaveSchedule(runID string, assignments []domain.Assignment) error {
	data, err := json.MarshalIndent(assignments, "", "  ")
	if err != nil {
		return appErr.Wrap(err, appErr.ErrorTypeInternal, "marshal schedule")
	}
	return atomicWrite(filepath.Join(s.runDir(runID), scheduleFile), data)
}

// SaveReport writes report.json atomically.
func (s *RunStore) SaveReport(runID string, result domain.EvaluationResult) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return appErr.Wrap(err, appErr.ErrorTypeInternal, "marshal evaluation result")
	}
	return atomicWrite(filepath.Join(s.runDir(runID), reportFile), data)
}

// Log appends a timestamped line to run.log.
func (s *RunStore) Log(runID string, message string) error {
	path := filepath.Join(s.runDir(runID), logFile)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return appErr.NewDatabaseError("open run log", err)
	}
	defer f.Close()

	_, err = fmt.Fprintf(f, "[%s] %s\n", time.Now().UTC().Format(time.RFC3339), message)
	if err != nil {
		return appErr.NewDatabaseError("append run log", err)
	}
	return nil
}

// atomicWrite writes data to a temp file beside path, then renames it
// over path, so a concurrent reader never observes a half-written file.
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return appErr.NewDatabaseError("create temp file", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return appErr.NewDatabaseError("write temp file", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return appErr.NewDatabaseError("sync temp file", err)
	}
	if err := tmp.Close(); err != nil {
		return appErr.NewDatabaseError("close temp file", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return appErr.NewDatabaseError("rename temp file into place", err)
	}
	return nil
}
