package resource

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/midbel/angle/xml"
)

const (
	MediaXML  = "application/xml"
	MediaXSLT = "application/xslt+xml"
	MediaText = "text/plain"
	MediaHTML = "text/html"
)

var (
	ErrNotFound = errors.New("resource not found")
	ErrConsumed = errors.New("stream already consumed")
	ErrReleased = errors.New("representation released")
)

// Representation gives access to the content of a resource.
type Representation interface {
	// Stream returns a reader for the content. The caller closes it.
	Stream() (io.ReadCloser, error)
	// Identifier returns the uri of the content, used as base uri to
	// resolve relative references. It can be empty.
	Identifier() string
	MediaType() string
	// Release frees the resources held by the representation. It can be
	// called more than once.
	Release() error
}

// EventSource is implemented by representations that can replay their
// content as events without being parsed.
type EventSource interface {
	Emit(xml.Handler) error
}

type Buffer struct {
	content   []byte
	uri       string
	mediaType string
}

func String(str string) *Buffer {
	return Bytes([]byte(str))
}

func Bytes(content []byte) *Buffer {
	return &Buffer{
		content:   content,
		mediaType: MediaXML,
	}
}

func (b *Buffer) WithIdentifier(uri string) *Buffer {
	b.uri = uri
	return b
}

func (b *Buffer) WithMediaType(mediaType string) *Buffer {
	b.mediaType = mediaType
	return b
}

func (b *Buffer) Stream() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(b.content)), nil
}

func (b *Buffer) Identifier() string {
	return b.uri
}

func (b *Buffer) MediaType() string {
	return b.mediaType
}

func (b *Buffer) Release() error {
	return nil
}

func (b *Buffer) String() string {
	return string(b.content)
}

type FileRep struct {
	path      string
	mediaType string
}

// File returns a representation of the file at path. The media type is
// guessed from the extension of the file.
func File(path string) *FileRep {
	return &FileRep{
		path:      path,
		mediaType: mediaTypeFromExt(filepath.Ext(path)),
	}
}

func (f *FileRep) Stream() (io.ReadCloser, error) {
	r, err := os.Open(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", f.path, ErrNotFound)
	}
	return r, err
}

func (f *FileRep) Identifier() string {
	return f.path
}

func (f *FileRep) MediaType() string {
	return f.mediaType
}

// Name returns the download name of the file.
func (f *FileRep) Name() string {
	return filepath.Base(f.path)
}

func (f *FileRep) Release() error {
	return nil
}

// ReaderRep is a representation backed by a reader. Its content can be read
// only once.
type ReaderRep struct {
	mu       sync.Mutex
	reader   io.Reader
	uri      string
	consumed bool
}

func Reader(r io.Reader, uri string) *ReaderRep {
	return &ReaderRep{
		reader: r,
		uri:    uri,
	}
}

func (r *ReaderRep) Stream() (io.ReadCloser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.reader == nil {
		return nil, ErrReleased
	}
	if r.consumed {
		return nil, ErrConsumed
	}
	r.consumed = true
	if rc, ok := r.reader.(io.ReadCloser); ok {
		return rc, nil
	}
	return io.NopCloser(r.reader), nil
}

func (r *ReaderRep) Identifier() string {
	return r.uri
}

func (r *ReaderRep) MediaType() string {
	return MediaXML
}

// Release closes the underlying reader if it has not been consumed.
func (r *ReaderRep) Release() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.reader == nil {
		return nil
	}
	var err error
	if c, ok := r.reader.(io.Closer); ok && !r.consumed {
		err = c.Close()
	}
	r.reader = nil
	return err
}

// DocumentRep is a representation of a document already in memory.
type DocumentRep struct {
	doc *xml.Document
}

func Document(doc *xml.Document) *DocumentRep {
	return &DocumentRep{
		doc: doc,
	}
}

func (d *DocumentRep) Document() *xml.Document {
	return d.doc
}

func (d *DocumentRep) Stream() (io.ReadCloser, error) {
	if d.doc == nil {
		return nil, ErrReleased
	}
	var buf bytes.Buffer
	ws := xml.NewWriter(&buf)
	ws.WriterOptions |= xml.OptionCompact
	if err := ws.Write(d.doc); err != nil {
		return nil, err
	}
	return io.NopCloser(&buf), nil
}

// Emit replays the document to h.
func (d *DocumentRep) Emit(h xml.Handler) error {
	if d.doc == nil {
		return ErrReleased
	}
	return xml.Walk(d.doc, h)
}

func (d *DocumentRep) Identifier() string {
	if d.doc == nil {
		return ""
	}
	return d.doc.Uri
}

func (d *DocumentRep) MediaType() string {
	return MediaXML
}

func (d *DocumentRep) Release() error {
	d.doc = nil
	return nil
}

func mediaTypeFromExt(ext string) string {
	switch ext = strings.ToLower(ext); ext {
	case ".xml", "":
		return MediaXML
	case ".xsl", ".xslt":
		return MediaXSLT
	default:
	}
	mt := mime.TypeByExtension(ext)
	if mt == "" {
		return "application/octet-stream"
	}
	mt, _, _ = strings.Cut(mt, ";")
	return mt
}
