package session

import (
	"context"
	"io"
	"os"

	"github.com/pkg/errors"
)

var ErrClosed = errors.New("session store is closed")

// Store persists a Session. Save always writes the whole snapshot.
type Store interface {
	Load(ctx context.Context) (map[string]any, error)
	Save(ctx context.Context, s *Session) error
	Close() error
	Target() string
}

// NopStore is used when no session target is configured.
type NopStore struct{}

func (NopStore) Load(context.Context) (map[string]any, error) { return nil, nil }
func (NopStore) Save(context.Context, *Session) error         { return nil }
func (NopStore) Close() error                                 { return nil }
func (NopStore) Target() string                               { return "" }

// FileStore writes to a file handle it owns from construction until Save or
// Close, whichever comes first, closes it.
type FileStore struct {
	f      *os.File
	name   string
	closed bool
}

// OpenFile opens (creating if needed) the session file for read and write.
func OpenFile(path string) (*FileStore, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, errors.Wrap(err, "open session file")
	}
	return NewFileStore(f), nil
}

// NewFileStore takes over a caller-opened handle.
func NewFileStore(f *os.File) *FileStore {
	return &FileStore{f: f, name: f.Name()}
}

func (s *FileStore) Target() string { return s.name }

func (s *FileStore) Load(_ context.Context) (map[string]any, error) {
	if s.closed {
		return nil, ErrClosed
	}
	if _, err := s.f.Seek(0, io.SeekStart); err != nil {
		return nil, errors.Wrap(err, "seek session file")
	}
	data, err := io.ReadAll(s.f)
	if err != nil {
		return nil, errors.Wrap(err, "read session file")
	}
	return Decode(data)
}

// Save truncates the file, rewinds, writes the full document and closes the
// handle.
func (s *FileStore) Save(_ context.Context, sess *Session) error {
	if s.closed {
		return ErrClosed
	}
	data, err := Encode(sess)
	if err != nil {
		return err
	}
	if err := s.f.Truncate(0); err != nil {
		return errors.Wrap(err, "truncate session file")
	}
	if _, err := s.f.Seek(0, io.SeekStart); err != nil {
		return errors.Wrap(err, "seek session file")
	}
	if _, err := s.f.Write(data); err != nil {
		return errors.Wrap(err, "write session file")
	}
	return s.Close()
}

// Close is safe to call more than once; the handle is closed once.
func (s *FileStore) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.f.Close()
}
