package resource

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/midbel/angle/xml"
)

func readAll(t *testing.T, rep Representation) string {
	t.Helper()
	rc, err := rep.Stream()
	require.NoError(t, err)
	defer rc.Close()

	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(b)
}

func TestBuffer(t *testing.T) {
	rep := String("<r/>").WithIdentifier("mem://r.xml")

	assert.Equal(t, "<r/>", readAll(t, rep))
	assert.Equal(t, "<r/>", readAll(t, rep), "buffer can be streamed more than once")
	assert.Equal(t, "mem://r.xml", rep.Identifier())
	assert.Equal(t, MediaXML, rep.MediaType())
	assert.NoError(t, rep.Release())

	rep = Bytes([]byte("text")).WithMediaType(MediaText)
	assert.Equal(t, MediaText, rep.MediaType())
	assert.Empty(t, rep.Identifier())
}

func TestFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "sheet.xslt")
	require.NoError(t, os.WriteFile(file, []byte("<xsl/>"), 0o644))

	rep := File(file)
	assert.Equal(t, "<xsl/>", readAll(t, rep))
	assert.Equal(t, file, rep.Identifier())
	assert.Equal(t, MediaXSLT, rep.MediaType())
	assert.Equal(t, "sheet.xslt", rep.Name())

	_, err := File(filepath.Join(dir, "missing.xml")).Stream()
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReaderSingleUse(t *testing.T) {
	rep := Reader(strings.NewReader("<r/>"), "")
	assert.Equal(t, "<r/>", readAll(t, rep))

	_, err := rep.Stream()
	assert.ErrorIs(t, err, ErrConsumed)

	assert.NoError(t, rep.Release())
	assert.NoError(t, rep.Release())
	_, err = rep.Stream()
	assert.ErrorIs(t, err, ErrReleased)
}

type closeRecorder struct {
	io.Reader
	closed int
}

func (c *closeRecorder) Close() error {
	c.closed++
	return nil
}

func TestReaderReleaseClose(t *testing.T) {
	rc := closeRecorder{Reader: strings.NewReader("<r/>")}
	rep := Reader(&rc, "")
	require.NoError(t, rep.Release())
	require.NoError(t, rep.Release())
	assert.Equal(t, 1, rc.closed)
}

func TestDocument(t *testing.T) {
	doc, err := xml.ParseString(`<r><v>1</v></r>`)
	require.NoError(t, err)
	doc.Uri = "mem://doc.xml"

	rep := Document(doc)
	assert.Equal(t, "mem://doc.xml", rep.Identifier())
	assert.Contains(t, readAll(t, rep), "<r><v>1</v></r>")

	b := xml.NewBuilder()
	require.NoError(t, rep.Emit(b))
	assert.Equal(t, "<r><v>1</v></r>", xml.WriteNode(b.Document().Root()))

	require.NoError(t, rep.Release())
	assert.ErrorIs(t, rep.Emit(b), ErrReleased)
	_, err = rep.Stream()
	assert.ErrorIs(t, err, ErrReleased)
}

func TestFileDispatcher(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "doc.xml"), []byte("<doc/>"), 0o644))

	d := FileDispatcher{Root: dir}
	ctx := context.Background()

	rep, err := d.Get(ctx, "doc.xml")
	require.NoError(t, err)
	assert.Equal(t, "<doc/>", readAll(t, rep))

	rep, err = d.Get(ctx, "file://"+filepath.ToSlash(filepath.Join(dir, "doc.xml")))
	require.NoError(t, err)
	assert.Equal(t, "<doc/>", readAll(t, rep))

	_, err = d.Get(ctx, "missing.xml")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestHTTPDispatcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/doc.xml":
			assert.Equal(t, DefaultAccept, r.Header.Get("Accept"))
			w.Header().Set("Content-Type", "text/xml; charset=utf-8")
			io.WriteString(w, "<doc/>")
		case "/broken.xml":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	var (
		d   = HTTPDispatcher{Client: srv.Client()}
		ctx = context.Background()
	)
	rep, err := d.Get(ctx, srv.URL+"/doc.xml")
	require.NoError(t, err)
	assert.Equal(t, "<doc/>", readAll(t, rep))
	assert.Equal(t, "text/xml", rep.MediaType())
	assert.Equal(t, srv.URL+"/doc.xml", rep.Identifier())

	_, err = d.Get(ctx, srv.URL+"/missing.xml")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = d.Get(ctx, srv.URL+"/broken.xml")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestMux(t *testing.T) {
	var schemes []string
	record := func(scheme string) Dispatcher {
		return DispatcherFunc(func(_ context.Context, uri string) (Representation, error) {
			schemes = append(schemes, scheme)
			return String("<r/>").WithIdentifier(uri), nil
		})
	}
	mux := NewMux()
	mux.Handle("file", record("file"))
	mux.Handle("HTTP", record("http"))

	ctx := context.Background()
	for _, uri := range []string{"doc.xml", "/tmp/doc.xml", "file:///tmp/doc.xml", "http://example.org/doc.xml", `C:\docs\doc.xml`} {
		_, err := mux.Get(ctx, uri)
		require.NoError(t, err, uri)
	}
	assert.Equal(t, []string{"file", "file", "file", "http", "file"}, schemes)

	_, err := mux.Get(ctx, "ftp://example.org/doc.xml")
	assert.Error(t, err)
}
