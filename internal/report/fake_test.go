package report

import (
	"bytes"
	"context"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/DukeRupert/liftaudit/internal/storage"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type runCall struct {
	Cmd  string
	Args []string
	Dir  string
}

// scriptedRunner is a Subprocess whose behavior per call is set by Script.
type scriptedRunner struct {
	mu     sync.Mutex
	calls  []runCall
	Script func(call int, c runCall) (ExitStatus, error)
}

func (r *scriptedRunner) Run(ctx context.Context, cmd string, args []string, dir string) (ExitStatus, error) {
	r.mu.Lock()
	c := runCall{Cmd: cmd, Args: append([]string(nil), args...), Dir: dir}
	r.calls = append(r.calls, c)
	n := len(r.calls)
	r.mu.Unlock()
	if r.Script == nil {
		return ExitStatus{}, nil
	}
	return r.Script(n, c)
}

func (r *scriptedRunner) Calls() []runCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]runCall(nil), r.calls...)
}

// fakeLaTeX writes a PDF named after the last argument on every pass.
func fakeLaTeX(pdf []byte) func(int, runCall) (ExitStatus, error) {
	return func(_ int, c runCall) (ExitStatus, error) {
		tex := c.Args[len(c.Args)-1]
		out := strings.TrimSuffix(tex, filepath.Ext(tex)) + ".pdf"
		if err := os.WriteFile(filepath.Join(c.Dir, out), pdf, 0o644); err != nil {
			return ExitStatus{}, err
		}
		return ExitStatus{}, nil
	}
}

// fakeZip writes a manifest of the files under the working directory to
// the archive path, standing in for a real zip.
func fakeZip(_ int, c runCall) (ExitStatus, error) {
	archive := c.Args[3]
	var names []string
	err := filepath.WalkDir(c.Dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(c.Dir, path)
		if err != nil {
			return err
		}
		names = append(names, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return ExitStatus{}, err
	}
	sort.Strings(names)
	return ExitStatus{}, os.WriteFile(archive, []byte(strings.Join(names, "\n")), 0o644)
}

func okVerify([]byte) (int, error) { return 1, nil }

// memStore is an in-memory PhotoStore.
type memStore struct {
	objects map[string][]byte
	err     error
}

func (m *memStore) Get(ctx context.Context, key string) (io.ReadCloser, storage.ObjectInfo, error) {
	if m.err != nil {
		return nil, storage.ObjectInfo{}, m.err
	}
	data, ok := m.objects[key]
	if !ok {
		return nil, storage.ObjectInfo{}, &storage.StorageError{Op: "Get", Key: key, Err: storage.ErrNotFound}
	}
	return io.NopCloser(bytes.NewReader(data)), storage.ObjectInfo{Key: key, Size: int64(len(data))}, nil
}
