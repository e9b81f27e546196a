// Package imagefile opens files that may be compressed. The compression
// is either given explicitly or detected from the magic bytes at the
// start of the file.
package imagefile

import (
	"bytes"
	"compress/bzip2"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// ErrUnknownCompression is returned for compression types that have
// no registered handler.
var ErrUnknownCompression = errors.New("unknown compression")

// Compression is the name of a compression format.
type Compression string

const (
	// Auto detects the compression from the file content.
	Auto  Compression = ""
	None  Compression = "none"
	Gzip  Compression = "gzip"
	Bzip2 Compression = "bzip2"
	Zstd  Compression = "zstd"
)

var aliases = map[string]Compression{
	"":      Auto,
	"auto":  Auto,
	"none":  None,
	"raw":   None,
	"gzip":  Gzip,
	"gz":    Gzip,
	"bzip2": Bzip2,
	"bz2":   Bzip2,
	"zstd":  Zstd,
	"zst":   Zstd,
}

// ParseCompression parses the name of a compression format. The
// empty string and "auto" select detection.
func ParseCompression(s string) (Compression, error) {
	compression, ok := aliases[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return Auto, fmt.Errorf("%w: %q", ErrUnknownCompression, s)
	}
	return compression, nil
}

// Handler decodes a compression format.
type Handler struct {
	Magic []byte
	Open  func(r io.Reader) (io.ReadCloser, error)
}

// Registry maps compression formats to their handlers.
type Registry struct {
	handlers map[Compression]Handler
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[Compression]Handler)}
}

// DefaultRegistry returns a registry for gzip, bzip2 and zstd.
func DefaultRegistry() *Registry {
	registry := NewRegistry()

	registry.Register(Gzip, Handler{
		Magic: []byte{0x1f, 0x8b},
		Open: func(r io.Reader) (io.ReadCloser, error) {
			return gzip.NewReader(r)
		},
	})
	registry.Register(Bzip2, Handler{
		Magic: []byte("BZh"),
		Open: func(r io.Reader) (io.ReadCloser, error) {
			return io.NopCloser(bzip2.NewReader(r)), nil
		},
	})
	registry.Register(Zstd, Handler{
		Magic: []byte{0x28, 0xb5, 0x2f, 0xfd},
		Open: func(r io.Reader) (io.ReadCloser, error) {
			decoder, err := zstd.NewReader(r)
			if err != nil {
				return nil, err
			}
			return decoder.IOReadCloser(), nil
		},
	})

	return registry
}

// Register adds or replaces the handler for a compression format.
func (r *Registry) Register(compression Compression, handler Handler) {
	r.handlers[compression] = handler
}

// Handler returns the handler for a compression format.
func (r *Registry) Handler(compression Compression) (Handler, bool) {
	handler, ok := r.handlers[compression]
	return handler, ok
}

// Compressions returns the registered formats in sorted order.
func (r *Registry) Compressions() []Compression {
	return slices.Sorted(maps.Keys(r.handlers))
}

// MagicLen returns the number of bytes needed for detection.
func (r *Registry) MagicLen() int {
	n := 0
	for _, handler := range r.handlers {
		n = max(n, len(handler.Magic))
	}
	return n
}

// Detect returns the format whose magic bytes the header starts with,
// or None if no format matches.
func (r *Registry) Detect(header []byte) Compression {
	for _, compression := range r.Compressions() {
		magic := r.handlers[compression].Magic
		if len(magic) > 0 && bytes.HasPrefix(header, magic) {
			return compression
		}
	}
	return None
}

// File is an opened, possibly decompressed, file.
type File struct {
	io.Reader
	Compression Compression

	closers []io.Closer
}

// Close closes the decoder and the underlying file.
func (f *File) Close() error {
	var errs []error
	for _, closer := range f.closers {
		errs = append(errs, closer.Close())
	}
	return errors.Join(errs...)
}

// Open opens a file for reading and transparently decompresses it. If
// compression is Auto, the format is detected from the magic bytes and
// a file that matches no format is read as is. A nil registry uses
// DefaultRegistry.
func Open(path string, registry *Registry, compression Compression, options ...Option) (*File, error) {
	opts, err := GetDefaultOptions().Apply(options...)
	if err != nil {
		return nil, err
	}

	if registry == nil {
		registry = DefaultRegistry()
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	if compression == Auto {
		header := make([]byte, registry.MagicLen())
		n, err := io.ReadFull(file, header)
		if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
			file.Close()
			return nil, err
		}
		if _, err := file.Seek(0, io.SeekStart); err != nil {
			file.Close()
			return nil, err
		}

		compression = registry.Detect(header[:n])
		opts.Logger.Debug().Str("path", path).Str("compression", string(compression)).Msg("Detected compression")
	}

	if compression == None {
		opts.Logger.Debug().Str("path", path).Msg("Opening flat file")
		return &File{Reader: file, Compression: None, closers: []io.Closer{file}}, nil
	}

	handler, ok := registry.Handler(compression)
	if !ok {
		file.Close()
		return nil, fmt.Errorf("%w: %q", ErrUnknownCompression, compression)
	}

	decoder, err := handler.Open(file)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to open %s file: %w", compression, err)
	}

	opts.Logger.Debug().Str("path", path).Str("compression", string(compression)).Msg("Opening compressed file")

	return &File{
		Reader:      decoder,
		Compression: compression,
		closers:     []io.Closer{decoder, file},
	}, nil
}
