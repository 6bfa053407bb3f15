// Package flat reads and writes position recordings:
// flat, append-only gzip files of newline-delimited JSON positions.
package flat

import (
	"compress/gzip"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/rotblauer/catspeed/conceptual"
	"github.com/rotblauer/catspeed/types/position"
)

const (
	RecordingsDir    = "recordings"
	RecordingFileExt = ".ndjson.gz"
)

// RecordingPath is where a cat's recording lives under the datadir.
func RecordingPath(datadir string, catID conceptual.CatID) string {
	root := filepath.Clean(datadir)
	if !filepath.IsAbs(root) {
		root, _ = filepath.Abs(root)
	}
	return filepath.Join(root, RecordingsDir, catID.String()+RecordingFileExt)
}

// AppendPositions appends positions to the recording at path, one JSON object per line.
// Each call writes a new gzip member; readers see one continuous stream.
func AppendPositions(path string, positions ...position.Position) error {
	w, err := NewGZFileWriter(path, nil)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w.Writer())
	for _, p := range positions {
		if err := enc.Encode(p); err != nil {
			w.Close()
			return err
		}
	}
	return w.Close()
}

type readCloser struct {
	io.Reader
	io.Closer
}

// OpenPositions opens a recording for reading.
// Files not ending in .gz are read as-is, so plain JSON works too.
func OpenPositions(path string) (io.ReadCloser, error) {
	if !strings.HasSuffix(path, ".gz") {
		return os.Open(path)
	}
	r, err := NewGZFileReader(path)
	if err != nil {
		return nil, err
	}
	return readCloser{Reader: r.Reader(), Closer: r}, nil
}

type GZFileWriter struct {
	f      *os.File
	gzw    *gzip.Writer
	locked bool
}

type GZFileWriterConfig struct {
	CompressionLevel int
	Flag             int
	FilePerm         os.FileMode
	DirPerm          os.FileMode
}

func DefaultGZFileWriterConfig() *GZFileWriterConfig {
	return &GZFileWriterConfig{
		CompressionLevel: gzip.BestCompression,
		Flag:             os.O_WRONLY | os.O_APPEND | os.O_CREATE,
		FilePerm:         0660,
		DirPerm:          0770,
	}
}

func NewGZFileWriter(path string, config *GZFileWriterConfig) (*GZFileWriter, error) {
	if config == nil {
		config = DefaultGZFileWriterConfig()
	}
	if err := os.MkdirAll(filepath.Dir(path), config.DirPerm); err != nil {
		return nil, err
	}
	fi, err := os.OpenFile(path, config.Flag, config.FilePerm)
	if err != nil {
		return nil, err
	}
	gzw, err := gzip.NewWriterLevel(fi, config.CompressionLevel)
	if err != nil {
		fi.Close()
		return nil, err
	}
	return &GZFileWriter{f: fi, gzw: gzw}, nil
}

// Writer returns a gzip writer for the file.
// While the writer is not closed, an exclusive lock is held on the file.
func (g *GZFileWriter) Writer() *gzip.Writer {
	if !g.locked && g.f != nil {
		if err := syscall.Flock(int(g.f.Fd()), syscall.LOCK_EX); err != nil {
			panic(err)
		}
		g.locked = true
	}
	return g.gzw
}

func (g *GZFileWriter) Close() error {
	if err := g.gzw.Close(); err != nil {
		return err
	}
	if err := g.f.Sync(); err != nil {
		return err
	}
	if g.locked {
		if err := syscall.Flock(int(g.f.Fd()), syscall.LOCK_UN); err != nil {
			return err
		}
		g.locked = false
	}
	return g.f.Close()
}

type GZFileReader struct {
	f      *os.File
	gzr    *gzip.Reader
	closed bool
}

func NewGZFileReader(path string) (*GZFileReader, error) {
	fi, err := os.OpenFile(path, os.O_RDONLY, 0660)
	if err != nil {
		return nil, err
	}
	gzr, err := gzip.NewReader(fi)
	if err != nil {
		fi.Close()
		return nil, err
	}
	return &GZFileReader{f: fi, gzr: gzr}, nil
}

// Reader returns a gzip reader for the file.
// While the reader is not closed, a shared lock is held on the file.
func (g *GZFileReader) Reader() *gzip.Reader {
	if g.closed {
		panic("closed")
	}
	if err := syscall.Flock(int(g.f.Fd()), syscall.LOCK_SH); err != nil {
		panic(err)
	}
	return g.gzr
}

func (g *GZFileReader) Close() error {
	if g.closed {
		return nil
	}
	g.closed = true
	if err := g.gzr.Close(); err != nil {
		return err
	}
	if err := syscall.Flock(int(g.f.Fd()), syscall.LOCK_UN); err != nil {
		return err
	}
	return g.f.Close()
}
