package practicecode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/afero"
	"github.com/xeipuuv/gojsonschema"
	"go.uber.org/zap"
)

// stateSchema describes a well-formed counter file. Anything else is treated as corrupt.
const stateSchema = `{
  "type": "object",
  "required": ["year", "lastNumber"],
  "properties": {
    "year": {"type": "integer", "minimum": 0, "maximum": 9999},
    "lastNumber": {"type": "integer", "minimum": 0, "maximum": 9007199254740992}
  }
}`

var compiledStateSchema = func() *gojsonschema.Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(stateSchema))
	if err != nil {
		panic(fmt.Sprintf("practicecode: bad counter schema: %v", err))
	}
	return s
}()

// FileStoreOptions tunes FileStore behaviour.
type FileStoreOptions struct {
	// StrictRead fails allocations on read errors other than "file does not exist" instead of
	// restarting the counter. Malformed content is always recovered.
	StrictRead bool
	// KeepCorrupt copies an unparsable counter file to <path>.corrupt-<unix> before it is
	// overwritten.
	KeepCorrupt bool
}

// FileStore keeps the counter in a single JSON file, rewritten in full on every allocation.
// All Advance calls on one FileStore are serialized; share the instance across the process.
type FileStore struct {
	fs     afero.Fs
	path   string
	opts   FileStoreOptions
	logger *zap.Logger
	now    func() time.Time

	mu sync.Mutex
}

func NewFileStore(fsys afero.Fs, path string, opts FileStoreOptions, logger *zap.Logger) *FileStore {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileStore{fs: fsys, path: path, opts: opts, logger: logger, now: time.Now}
}

func (s *FileStore) Path() string { return s.path }

// Advance implements CounterStore.
func (s *FileStore) Advance(_ context.Context, year int) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, corrupt, err := s.load(year)
	if err != nil {
		return State{}, err
	}
	if corrupt != nil && s.opts.KeepCorrupt {
		s.quarantine(corrupt)
	}
	next := st.advance(year)
	if err := s.save(next); err != nil {
		return State{}, fmt.Errorf("%w: %w", ErrCounterUpdateFailed, err)
	}
	return next, nil
}

// Current implements CounterStore.
func (s *FileStore) Current(_ context.Context, year int) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, _, err := s.load(year)
	if err != nil {
		return State{}, err
	}
	if st.Year != year {
		return State{Year: year}, nil
	}
	return st, nil
}

// load reads the stored state, substituting {year, 0} when the file is missing or corrupt.
// corrupt holds the discarded file content, if any.
func (s *FileStore) load(year int) (st State, corrupt []byte, err error) {
	def := State{Year: year}
	raw, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return def, nil, nil
		}
		if s.opts.StrictRead {
			return State{}, nil, fmt.Errorf("%w: %w", ErrCounterUnreadable, err)
		}
		s.logger.Warn("counter file unreadable, restarting numbering",
			zap.String("path", s.path), zap.Error(err))
		return def, nil, nil
	}

	res, verr := compiledStateSchema.Validate(gojsonschema.NewBytesLoader(raw))
	if verr != nil || !res.Valid() {
		fields := []zap.Field{zap.String("path", s.path)}
		if verr != nil {
			fields = append(fields, zap.Error(verr))
		} else {
			for _, e := range res.Errors() {
				fields = append(fields, zap.String("violation", e.String()))
			}
		}
		s.logger.Warn("counter file malformed, restarting numbering", fields...)
		return def, raw, nil
	}
	st, err = decodeState(raw)
	if err != nil {
		s.logger.Warn("counter file malformed, restarting numbering",
			zap.String("path", s.path), zap.Error(err))
		return def, raw, nil
	}
	return st, nil, nil
}

// decodeState accepts every number form the schema calls an integer, e.g. 41, 41.0 and 4.1e1.
func decodeState(raw []byte) (State, error) {
	var doc struct {
		Year       json.Number `json:"year"`
		LastNumber json.Number `json:"lastNumber"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return State{}, err
	}
	year, err := integral(doc.Year)
	if err != nil {
		return State{}, fmt.Errorf("year: %w", err)
	}
	last, err := integral(doc.LastNumber)
	if err != nil {
		return State{}, fmt.Errorf("lastNumber: %w", err)
	}
	if year > 9999 {
		return State{}, fmt.Errorf("year %d out of range", year)
	}
	return State{Year: int(year), LastNumber: last}, nil
}

// maxExactFloat is the largest integer a float64 holds without rounding.
const maxExactFloat = 1 << 53

func integral(n json.Number) (int64, error) {
	if i, err := n.Int64(); err == nil {
		return i, nil
	}
	f, err := n.Float64()
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) || math.Abs(f) > maxExactFloat {
		return 0, fmt.Errorf("%s is not an exact integer", n)
	}
	return int64(f), nil
}

// save writes the state to a temp file next to the target and renames it into place, so a
// failed write never leaves a partially written counter behind.
func (s *FileStore) save(st State) error {
	b, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(s.path)
	if _, err := s.fs.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		if err := s.fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create counter dir: %w", err)
		}
	}
	tmp, err := afero.TempFile(s.fs, dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		_ = s.fs.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = s.fs.Remove(tmpName)
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = s.fs.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := s.fs.Rename(tmpName, s.path); err != nil {
		_ = s.fs.Remove(tmpName)
		return fmt.Errorf("replace counter file: %w", err)
	}
	return nil
}

func (s *FileStore) quarantine(raw []byte) {
	dst := fmt.Sprintf("%s.corrupt-%d", s.path, s.now().Unix())
	if err := afero.WriteFile(s.fs, dst, raw, 0o644); err != nil {
		s.logger.Warn("could not preserve corrupt counter file", zap.String("path", s.path), zap.Error(err))
		return
	}
	s.logger.Info("corrupt counter file preserved", zap.String("path", dst))
}
