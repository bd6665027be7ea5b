// Package storage provides the removable-storage collaborator used by the player
package storage

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path"
	"sort"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
)

// BackEntry is the synthetic first entry of every listing
const BackEntry = "Back"

// ErrNoStorage is returned when the volume root is missing at mount time
var ErrNoStorage = errors.New("no storage present")

// File is an open, seekable handle on a volume
type File interface {
	io.Reader
	// SeekTo moves to an absolute offset from the start of the file.
	SeekTo(offset int64) error
	Tell() int64
	AtEnd() bool
	Size() int64
	Close() error
}

// Volume is a mounted file system
type Volume interface {
	Open(name string) (File, error)
	// List returns file names with BackEntry at index 0. Directories are excluded.
	List() ([]string, error)
}

// FSVolume adapts an fs.FS whose files implement io.Seeker
type FSVolume struct {
	fsys fs.FS
}

// Mount mounts the directory at root as a volume
func Mount(root string) (*FSVolume, error) {
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return nil, fault.Wrap(ErrNoStorage, fmsg.With(root), ftag.With(ftag.NotFound))
	}
	return NewFSVolume(os.DirFS(root)), nil
}

// NewFSVolume wraps fsys
func NewFSVolume(fsys fs.FS) *FSVolume {
	return &FSVolume{fsys: fsys}
}

// Open opens name for reading
func (v *FSVolume) Open(name string) (File, error) {
	f, err := v.fsys.Open(path.Clean(name))
	if err != nil {
		kind := ftag.Internal
		if errors.Is(err, fs.ErrNotExist) {
			kind = ftag.NotFound
		}
		return nil, fault.Wrap(err, fmsg.With("open "+name), ftag.With(kind))
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fault.Wrap(err, fmsg.With("stat "+name), ftag.With(ftag.Internal))
	}
	if info.IsDir() {
		_ = f.Close()
		return nil, fault.Wrap(fs.ErrInvalid, fmsg.With(name+" is a directory"), ftag.With(ftag.InvalidArgument))
	}

	rs, ok := f.(io.ReadSeeker)
	if !ok {
		_ = f.Close()
		return nil, fault.Wrap(errors.ErrUnsupported, fmsg.With(name+" is not seekable"), ftag.With(ftag.Internal))
	}

	return &seekFile{rs: rs, closer: f, size: info.Size()}, nil
}

// List returns the regular files in the volume root
func (v *FSVolume) List() ([]string, error) {
	entries, err := fs.ReadDir(v.fsys, ".")
	if err != nil {
		return nil, fault.Wrap(err, fmsg.With("read directory"), ftag.With(ftag.Internal))
	}

	names := []string{BackEntry}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		names = append(names, e.Name())
	}
	return names, nil
}

// seekFile tracks the cursor itself so Tell and AtEnd never touch the underlying handle
type seekFile struct {
	rs     io.ReadSeeker
	closer io.Closer
	size   int64
	pos    int64
}

func (f *seekFile) Read(p []byte) (int, error) {
	n, err := f.rs.Read(p)
	f.pos += int64(n)
	return n, err
}

func (f *seekFile) SeekTo(offset int64) error {
	pos, err := f.rs.Seek(offset, io.SeekStart)
	if err != nil {
		return err
	}
	f.pos = pos
	return nil
}

func (f *seekFile) Tell() int64  { return f.pos }
func (f *seekFile) AtEnd() bool  { return f.pos >= f.size }
func (f *seekFile) Size() int64  { return f.size }
func (f *seekFile) Close() error { return f.closer.Close() }

// MemoryVolume is an in-memory volume. It is used by the analyzer for uploaded
// files and by tests.
type MemoryVolume struct {
	files map[string][]byte
}

// NewMemoryVolume creates a volume holding files
func NewMemoryVolume(files map[string][]byte) *MemoryVolume {
	if files == nil {
		files = make(map[string][]byte)
	}
	return &MemoryVolume{files: files}
}

// Open opens name for reading
func (v *MemoryVolume) Open(name string) (File, error) {
	data, ok := v.files[name]
	if !ok {
		return nil, fault.Wrap(fs.ErrNotExist, fmsg.With("open "+name), ftag.With(ftag.NotFound))
	}
	return &memFile{data: data}, nil
}

// List returns the file names sorted, after BackEntry
func (v *MemoryVolume) List() ([]string, error) {
	names := make([]string, 0, len(v.files))
	for name := range v.files {
		names = append(names, name)
	}
	sort.Strings(names)
	return append([]string{BackEntry}, names...), nil
}

type memFile struct {
	data   []byte
	pos    int64
	closed bool
}

func (f *memFile) Read(p []byte) (int, error) {
	if f.closed {
		return 0, fs.ErrClosed
	}
	if f.pos >= int64(len(f.data)) {
		return 0, io.EOF
	}
	n := copy(p, f.data[f.pos:])
	f.pos += int64(n)
	return n, nil
}

func (f *memFile) SeekTo(offset int64) error {
	if f.closed {
		return fs.ErrClosed
	}
	if offset < 0 {
		return fs.ErrInvalid
	}
	f.pos = offset
	return nil
}

func (f *memFile) Tell() int64 { return f.pos }
func (f *memFile) AtEnd() bool { return f.pos >= int64(len(f.data)) }
func (f *memFile) Size() int64 { return int64(len(f.data)) }

func (f *memFile) Close() error {
	if f.closed {
		return fs.ErrClosed
	}
	f.closed = true
	return nil
}
