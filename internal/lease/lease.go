// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package lease provides single-instance execution through a lease file.
// The file names the owning process, its run id, and an expiry; a lease
// whose process is gone or whose expiry has passed is stale and may be
// reclaimed by the next caller.
package lease

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v4/process"
	"go.yaml.in/yaml/v3"
)

const defaultTTL = 6 * time.Hour

// ErrHeld means a live lease is held by another run.
var ErrHeld = errors.New("pipeline lease is held")

// HeldError carries the record of the live owner.
type HeldError struct {
	Owner Record
}

func (e *HeldError) Error() string {
	return fmt.Sprintf("%v by pid %d on %s (run %s, since %s)",
		ErrHeld, e.Owner.PID, e.Owner.Host, e.Owner.RunID, e.Owner.AcquiredAt.Format(time.RFC3339))
}

func (e *HeldError) Unwrap() error { return ErrHeld }

// Record is the content of the lease file.
type Record struct {
	PID        int       `yaml:"pid"`
	Host       string    `yaml:"host"`
	RunID      string    `yaml:"run_id"`
	AcquiredAt time.Time `yaml:"acquired_at"`
	ExpiresAt  time.Time `yaml:"expires_at"`
}

// held tracks the run ids whose leases this process currently owns. A lease
// file naming our pid but none of these runs was left by an earlier process
// that had the same pid.
var held = struct {
	sync.Mutex
	runs map[string]bool
}{runs: make(map[string]bool)}

func markHeld(runID string, on bool) {
	held.Lock()
	defer held.Unlock()
	if on {
		held.runs[runID] = true
	} else {
		delete(held.runs, runID)
	}
}

func isHeld(runID string) bool {
	held.Lock()
	defer held.Unlock()
	return runID != "" && held.runs[runID]
}

// AliveFunc reports whether a process with pid exists.
type AliveFunc func(ctx context.Context, pid int) (bool, error)

// File manages the lease stored at one path.
type File struct {
	path   string
	ttl    time.Duration
	logger zerolog.Logger

	// Overridable in tests.
	now   func() time.Time
	alive AliveFunc
	pid   int
}

// New returns a File for path. A non-positive ttl uses six hours.
func New(path string, ttl time.Duration, logger zerolog.Logger) *File {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &File{
		path:   path,
		ttl:    ttl,
		logger: logger.With().Str("component", "lease").Logger(),
		now:    time.Now,
		alive:  processAlive,
		pid:    os.Getpid(),
	}
}

// Path returns the lease file path.
func (f *File) Path() string { return f.path }

// Lease is an acquired lease. Release it when the run ends.
type Lease struct {
	file   *File
	record Record
}

// RunID returns the id written into the lease.
func (l *Lease) RunID() string { return l.record.RunID }

// Record returns the lease content.
func (l *Lease) Record() Record { return l.record }

// Acquire takes the lease. A live lease yields a *HeldError; a stale one is
// removed and replaced. The file is created exclusively so that of two
// racing callers only one succeeds.
func (f *File) Acquire(ctx context.Context) (*Lease, error) {
	for attempt := 0; attempt < 2; attempt++ {
		existing, err := f.read()
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			f.logger.Warn().Err(err).Str("path", f.path).Msg("reclaiming unreadable lease")
			if err := f.remove(); err != nil {
				return nil, err
			}
		default:
			stale, reason := f.stale(ctx, existing)
			if !stale {
				return nil, &HeldError{Owner: existing}
			}
			f.logger.Info().
				Int("pid", existing.PID).
				Str("run_id", existing.RunID).
				Str("reason", reason).
				Msg("reclaiming stale lease")
			if err := f.remove(); err != nil {
				return nil, err
			}
		}

		l, err := f.create()
		if errors.Is(err, os.ErrExist) {
			// Another process created the file between our read and create.
			continue
		}
		if err != nil {
			return nil, err
		}
		f.logger.Debug().Str("run_id", l.record.RunID).Msg("lease acquired")
		return l, nil
	}

	existing, err := f.read()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHeld, err)
	}
	return nil, &HeldError{Owner: existing}
}

// Release removes the lease file if it still names this lease's run.
func (l *Lease) Release() error {
	current, err := l.file.read()
	if errors.Is(err, os.ErrNotExist) {
		markHeld(l.record.RunID, false)
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading lease: %w", err)
	}
	if current.RunID != l.record.RunID {
		markHeld(l.record.RunID, false)
		l.file.logger.Warn().
			Str("run_id", l.record.RunID).
			Str("owner_run_id", current.RunID).
			Msg("lease taken over, leaving it in place")
		return nil
	}
	if err := l.file.remove(); err != nil {
		return err
	}
	markHeld(l.record.RunID, false)
	return nil
}

// Renew pushes the expiry out by the lease TTL.
func (l *Lease) Renew() error {
	current, err := l.file.read()
	if err != nil {
		return fmt.Errorf("reading lease: %w", err)
	}
	if current.RunID != l.record.RunID {
		return &HeldError{Owner: current}
	}
	l.record.ExpiresAt = l.file.now().Add(l.file.ttl)
	return l.file.write(l.record)
}

// stale reports whether rec can be reclaimed, and why.
func (f *File) stale(ctx context.Context, rec Record) (bool, string) {
	if !rec.ExpiresAt.IsZero() && f.now().After(rec.ExpiresAt) {
		return true, "expired"
	}
	if rec.PID <= 0 {
		return true, "no owner pid"
	}
	host, _ := os.Hostname()
	if rec.Host != "" && host != "" && rec.Host != host {
		// A lease from another host cannot be probed; trust its expiry.
		return false, ""
	}
	if rec.PID == f.pid {
		if isHeld(rec.RunID) {
			return false, ""
		}
		return true, "left by an earlier process with this pid"
	}
	alive, err := f.alive(ctx, rec.PID)
	if err != nil {
		f.logger.Warn().Err(err).Int("pid", rec.PID).Msg("checking lease owner, assuming alive")
		return false, ""
	}
	if !alive {
		return true, "owner not running"
	}
	return false, ""
}

func (f *File) create() (*Lease, error) {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return nil, fmt.Errorf("creating lease directory: %w", err)
	}

	host, _ := os.Hostname()
	now := f.now()
	rec := Record{
		PID:        f.pid,
		Host:       host,
		RunID:      uuid.NewString(),
		AcquiredAt: now.UTC(),
		ExpiresAt:  now.Add(f.ttl).UTC(),
	}
	data, err := yaml.Marshal(&rec)
	if err != nil {
		return nil, fmt.Errorf("encoding lease: %w", err)
	}

	fh, err := os.OpenFile(f.path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("creating lease: %w", err)
	}
	_, writeErr := fh.Write(data)
	closeErr := fh.Close()
	if writeErr != nil || closeErr != nil {
		os.Remove(f.path)
		return nil, fmt.Errorf("writing lease: %w", errors.Join(writeErr, closeErr))
	}
	markHeld(rec.RunID, true)
	return &Lease{file: f, record: rec}, nil
}

// write replaces the lease content atomically.
func (f *File) write(rec Record) error {
	data, err := yaml.Marshal(&rec)
	if err != nil {
		return fmt.Errorf("encoding lease: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".lease-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing lease: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, f.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming lease: %w", err)
	}
	return nil
}

// read loads the lease file. A file holding only an integer is a legacy
// lock naming just the owner pid.
func (f *File) read() (Record, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return Record{}, err
	}
	text := strings.TrimSpace(string(data))
	if pid, err := strconv.Atoi(text); err == nil {
		return Record{PID: pid}, nil
	}

	var rec Record
	if err := yaml.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("parsing lease %s: %w", f.path, err)
	}
	if rec.PID == 0 && rec.RunID == "" {
		return Record{}, fmt.Errorf("lease %s has no owner", f.path)
	}
	return rec, nil
}

func (f *File) remove() error {
	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing lease: %w", err)
	}
	return nil
}

func processAlive(ctx context.Context, pid int) (bool, error) {
	return process.PidExistsWithContext(ctx, int32(pid))
}
