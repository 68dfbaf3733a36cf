package transform_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/midbel/angle/resource"
	"github.com/midbel/angle/transform"
	"github.com/midbel/angle/xml"
	"github.com/midbel/angle/xslt"
)

const (
	incrementSheet = `<xsl:stylesheet version="1.0" xmlns:xsl="http://www.w3.org/1999/XSL/Transform">
	<xsl:template match="@*|node()">
		<xsl:copy><xsl:apply-templates select="@*|node()"/></xsl:copy>
	</xsl:template>
	<xsl:template match="v"><v><xsl:value-of select=". + 1"/></v></xsl:template>
</xsl:stylesheet>`

	doubleSheet = `<xsl:stylesheet version="1.0" xmlns:xsl="http://www.w3.org/1999/XSL/Transform">
	<xsl:template match="@*|node()">
		<xsl:copy><xsl:apply-templates select="@*|node()"/></xsl:copy>
	</xsl:template>
	<xsl:template match="v"><v><xsl:value-of select=". * 2"/></v></xsl:template>
</xsl:stylesheet>`

	wrapSheet = `<xsl:stylesheet version="1.0" xmlns:xsl="http://www.w3.org/1999/XSL/Transform">
	<xsl:output omit-xml-declaration="yes"/>
	<xsl:template match="/"><out><xsl:copy-of select="."/></out></xsl:template>
</xsl:stylesheet>`

	greetSheet = `<xsl:stylesheet version="1.0" xmlns:xsl="http://www.w3.org/1999/XSL/Transform">
	<xsl:output omit-xml-declaration="yes"/>
	<xsl:param name="greeting" select="'hello'"/>
	<xsl:template match="/">
		<msg><xsl:value-of select="$greeting"/><xsl:text> </xsl:text><xsl:value-of select="root/@name"/></msg>
	</xsl:template>
</xsl:stylesheet>`

	includeSheet = `<xsl:stylesheet version="1.0" xmlns:xsl="http://www.w3.org/1999/XSL/Transform">
	<xsl:output omit-xml-declaration="yes"/>
	<xsl:include href="common.xslt"/>
	<xsl:template match="/"><res><xsl:call-template name="common"/></res></xsl:template>
</xsl:stylesheet>`

	commonSheet = `<xsl:stylesheet version="1.0" xmlns:xsl="http://www.w3.org/1999/XSL/Transform">
	<xsl:template name="common"><xsl:text>shared</xsl:text></xsl:template>
</xsl:stylesheet>`

	otherSheet = `<xsl:stylesheet version="1.0" xmlns:xsl="http://www.w3.org/1999/XSL/Transform">
	<xsl:template name="common"><xsl:text>other</xsl:text></xsl:template>
</xsl:stylesheet>`

	lookupSheet = `<xsl:stylesheet version="1.0" xmlns:xsl="http://www.w3.org/1999/XSL/Transform">
	<xsl:output omit-xml-declaration="yes"/>
	<xsl:variable name="lookup" select="document('lookup.xml')"/>
	<xsl:template match="/"><res><xsl:value-of select="$lookup/entries/entry"/></res></xsl:template>
</xsl:stylesheet>`

	textSheet = `<xsl:stylesheet version="1.0" xmlns:xsl="http://www.w3.org/1999/XSL/Transform">
	<xsl:output method="text"/>
	<xsl:template match="/"><xsl:value-of select="r/v"/></xsl:template>
</xsl:stylesheet>`

	sourceDoc = `<r><v>1</v></r>`
)

func sheet(name, content string) resource.Representation {
	return resource.String(content).WithIdentifier("mem://sheets/" + name)
}

func document(content string) resource.Representation {
	return resource.String(content).WithIdentifier("mem://docs/doc.xml")
}

func memMux(files map[string]string) *resource.Mux {
	mux := resource.NewMux()
	mux.Handle("mem", resource.DispatcherFunc(func(_ context.Context, uri string) (resource.Representation, error) {
		content, ok := files[uri]
		if !ok {
			return nil, resource.ErrNotFound
		}
		return resource.String(content).WithIdentifier(uri), nil
	}))
	return mux
}

func withoutProlog(str string) string {
	return strings.TrimPrefix(str, `<?xml version="1.0" encoding="UTF-8"?>`)
}

func execute(t *testing.T, p *transform.Pipeline) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, p.Execute(context.Background(), &buf))
	return buf.String()
}

func TestChainStreaming(t *testing.T) {
	var (
		a = transform.New(transform.Document(document(sourceDoc)), sheet("incr.xslt", incrementSheet))
		b = transform.New(transform.Chain(a), sheet("double.xslt", doubleSheet))
		c = transform.New(transform.Chain(b), sheet("wrap.xslt", wrapSheet))
	)
	assert.Equal(t, "<out><r><v>4</v></r></out>", execute(t, c))
	assert.Equal(t, "<out><r><v>4</v></r></out>", execute(t, c), "pipeline can be executed more than once")
}

func TestChainSequential(t *testing.T) {
	var (
		a = transform.New(transform.Document(document(sourceDoc)), sheet("incr.xslt", incrementSheet))
		b = transform.New(transform.Chain(a), sheet("double.xslt", doubleSheet))
		c = transform.New(transform.Chain(b), sheet("wrap.xslt", wrapSheet))
	)
	streamed := execute(t, c)

	var (
		sa = transform.New(transform.Document(document(sourceDoc)), sheet("incr.xslt", incrementSheet))
		sb = transform.New(transform.Document(sa), sheet("double.xslt", doubleSheet))
		sc = transform.New(transform.Document(sb), sheet("wrap.xslt", wrapSheet))
	)
	assert.Equal(t, execute(t, sc), streamed)
}

func TestChainTextStage(t *testing.T) {
	var (
		a = transform.New(transform.Document(document(sourceDoc)), sheet("text.xslt", textSheet))
		b = transform.New(transform.Chain(a), sheet("wrap.xslt", wrapSheet))
	)
	assert.Equal(t, "1", execute(t, a))

	err := b.Execute(context.Background(), io.Discard)
	assert.ErrorIs(t, err, xml.ErrOutside)
}

func TestChainFilters(t *testing.T) {
	var (
		ctx = context.Background()
		a   = transform.New(transform.Document(document(sourceDoc)), sheet("incr.xslt", incrementSheet))
		b   = transform.New(transform.Chain(a), sheet("double.xslt", doubleSheet))
	)
	fa, err := a.AsFilter(ctx)
	require.NoError(t, err)
	fb, err := b.AsFilter(ctx)
	require.NoError(t, err)

	fb.SetParent(fa)
	assert.Same(t, fa, fb.Parent())
	assert.Same(t, b, fb.Pipeline())

	builder := xml.NewBuilder()
	fb.SetHandler(builder)
	require.NoError(t, xml.NewReader(strings.NewReader(sourceDoc)).Emit(fa))
	assert.Equal(t, "<r><v>4</v></r>", xml.WriteNode(builder.Document().Root()))
}

func TestSingleStage(t *testing.T) {
	params := map[string]any{
		"greeting": "hi",
	}
	p := transform.New(transform.Document(resource.String(`<root name="gopher"/>`)), sheet("greet.xslt", greetSheet))
	p.SetParameters(params)
	got := execute(t, p)

	style, err := xslt.Compile(strings.NewReader(greetSheet), "", nil)
	require.NoError(t, err)
	doc, err := xml.ParseString(`<root name="gopher"/>`)
	require.NoError(t, err)

	tf := xslt.NewTransformer(style)
	tf.SetParameters(params)
	var want bytes.Buffer
	require.NoError(t, tf.Execute(&want, doc))

	assert.Equal(t, want.String(), got)
	assert.Equal(t, "<msg>hi gopher</msg>", got)

	p = transform.NewWithProgram(transform.Document(resource.String(`<root name="gopher"/>`)), transform.NewProgram(style))
	p.SetParameters(params)
	assert.Equal(t, got, execute(t, p))
}

func TestParametersSnapshot(t *testing.T) {
	params := map[string]any{
		"greeting": "hi",
	}
	p := transform.New(transform.Document(resource.String(`<root name="gopher"/>`)), sheet("greet.xslt", greetSheet))
	p.SetParameters(params)
	params["greeting"] = "bye"
	assert.Equal(t, "<msg>hi gopher</msg>", execute(t, p))

	p.SetParameters(nil)
	assert.Equal(t, "<msg>hello gopher</msg>", execute(t, p))
}

func TestOutputOptions(t *testing.T) {
	p := transform.New(transform.Document(document(sourceDoc)), sheet("wrap.xslt", wrapSheet))
	p.SetOutputOptions(map[string]string{
		"method": "text",
	})
	assert.Equal(t, "1", execute(t, p))
	assert.Equal(t, "text/plain", p.MediaType())

	p.SetOutputOptions(map[string]string{
		"media-type": "application/vnd.angle+xml",
	})
	assert.Equal(t, "application/vnd.angle+xml", p.MediaType())

	p.SetOutputOptions(map[string]string{
		"unknown": "yes",
	})
	err := p.Execute(context.Background(), io.Discard)
	var te transform.TransformError
	require.ErrorAs(t, err, &te)
	assert.ErrorIs(t, err, xslt.ErrProperty)
}

func TestProgramCache(t *testing.T) {
	var (
		ctx = context.Background()
		p   = transform.New(transform.Document(document(sourceDoc)), sheet("incr.xslt", incrementSheet))
	)
	prog1, err := p.Program(ctx)
	require.NoError(t, err)
	prog2, err := p.Program(ctx)
	require.NoError(t, err)
	assert.Same(t, prog1, prog2)
	assert.Equal(t, "mem://sheets/incr.xslt", prog1.Uri())

	p.SetSheet(sheet("double.xslt", doubleSheet))
	prog3, err := p.Program(ctx)
	require.NoError(t, err)
	assert.NotSame(t, prog1, prog3)
	assert.Equal(t, "<r><v>2</v></r>", withoutProlog(execute(t, p)))
}

func TestProgramBorrowed(t *testing.T) {
	prog, err := transform.Compile(sheet("wrap.xslt", wrapSheet), nil)
	require.NoError(t, err)

	var (
		ctx = context.Background()
		p1  = transform.NewWithProgram(transform.Document(document(sourceDoc)), prog)
		p2  = transform.NewWithProgram(transform.Document(document(`<r/>`)), prog)
	)
	assert.Equal(t, "<out><r><v>1</v></r></out>", execute(t, p1))
	assert.Equal(t, "<out><r/></out>", execute(t, p2))

	got, err := p1.Program(ctx)
	require.NoError(t, err)
	assert.Same(t, prog, got)

	require.NoError(t, p1.Release())
	assert.Equal(t, "<out><r/></out>", execute(t, p2), "release does not affect borrowed program")
}

func TestCompileCachedFailure(t *testing.T) {
	var (
		reads int
		rep   = countingRep{
			Representation: sheet("broken.xslt", `<xsl:stylesheet`),
			reads:          &reads,
		}
		p = transform.New(transform.Document(document(sourceDoc)), rep)
	)
	for range 2 {
		err := p.Execute(context.Background(), io.Discard)
		var ce transform.CompileError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, "mem://sheets/broken.xslt", ce.Sheet)
	}
	assert.Equal(t, 1, reads)

	p.SetSheet(sheet("wrap.xslt", wrapSheet))
	assert.Equal(t, "<out><r><v>1</v></r></out>", execute(t, p))
}

func TestResolverFailure(t *testing.T) {
	var (
		failure  = errors.New("unreachable")
		resolver = xslt.ResolverFunc(func(href, base string) (*xslt.Source, error) {
			return nil, failure
		})
		p = transform.New(
			transform.Document(document(sourceDoc)),
			sheet("main.xslt", includeSheet),
			transform.WithResolver(resolver),
		)
		buf bytes.Buffer
	)
	err := p.Execute(context.Background(), &buf)
	require.Error(t, err)

	var (
		ce transform.CompileError
		re transform.ResolveError
	)
	require.ErrorAs(t, err, &ce)
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "common.xslt", re.Href)
	assert.Equal(t, "mem://sheets/main.xslt", re.Base)
	assert.True(t, re.Temporary())
	assert.ErrorIs(t, err, failure)
	assert.Zero(t, buf.Len())
}

func TestContextResolver(t *testing.T) {
	var (
		ctx = context.Background()
		mux = memMux(map[string]string{
			"mem://sheets/common.xslt": commonSheet,
		})
		p = transform.New(
			transform.Document(document(sourceDoc)),
			sheet("main.xslt", includeSheet),
			transform.WithResolver(transform.NewResolver(ctx, mux)),
		)
	)
	assert.Equal(t, "<res>shared</res>", execute(t, p))
}

func TestChainCycle(t *testing.T) {
	var (
		a = transform.New(transform.Document(document(sourceDoc)), sheet("incr.xslt", incrementSheet))
		b = transform.New(transform.Chain(a), sheet("double.xslt", doubleSheet))
	)
	a.SetSource(transform.Chain(b))

	err := b.Execute(context.Background(), io.Discard)
	var ce transform.ChainError
	require.ErrorAs(t, err, &ce)
	assert.ErrorIs(t, err, transform.ErrCycle)
	assert.Equal(t, 2, ce.Depth)

	require.NoError(t, b.Release())
	assert.ErrorIs(t, a.Execute(context.Background(), io.Discard), transform.ErrReleased)
}

func TestRuntimeResolver(t *testing.T) {
	prog, err := transform.Compile(sheet("lookup.xslt", lookupSheet), nil)
	require.NoError(t, err)

	var (
		ctx = context.Background()
		mux = memMux(map[string]string{
			"mem://sheets/lookup.xml": `<entries><entry>found</entry></entries>`,
		})
		p = transform.NewWithProgram(
			transform.Document(document(sourceDoc)),
			prog,
			transform.WithResolver(transform.NewResolver(ctx, mux)),
		)
	)
	assert.Equal(t, "<res>found</res>", execute(t, p))

	var (
		failure = errors.New("offline")
		buf     bytes.Buffer
	)
	p.SetResolver(xslt.ResolverFunc(func(href, base string) (*xslt.Source, error) {
		return nil, failure
	}))
	err = p.Execute(ctx, &buf)

	var re transform.ResolveError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "lookup.xml", re.Href)
	assert.Equal(t, "mem://sheets/lookup.xslt", re.Base)
	assert.ErrorIs(t, err, failure)
	assert.Zero(t, buf.Len())
}

func TestChainDocumentCycle(t *testing.T) {
	var (
		a = transform.New(transform.Document(document(sourceDoc)), sheet("incr.xslt", incrementSheet))
		b = transform.New(transform.Chain(a), sheet("double.xslt", doubleSheet))
	)
	a.SetSource(transform.Document(b))

	err := b.Execute(context.Background(), io.Discard)
	var ce transform.ChainError
	require.ErrorAs(t, err, &ce)
	assert.ErrorIs(t, err, transform.ErrCycle)
	assert.Equal(t, 2, ce.Depth)

	self := transform.New(transform.Document(document(sourceDoc)), sheet("wrap.xslt", wrapSheet))
	self.SetSource(transform.Document(self))

	err = self.Execute(context.Background(), io.Discard)
	require.ErrorAs(t, err, &ce)
	assert.ErrorIs(t, err, transform.ErrCycle)
	assert.Equal(t, 1, ce.Depth)
}

func TestChainAncestorFailure(t *testing.T) {
	var (
		a = transform.New(transform.Document(document(sourceDoc)), sheet("broken.xslt", `<xsl:stylesheet`))
		b = transform.New(transform.Chain(a), sheet("wrap.xslt", wrapSheet))
	)
	err := b.Execute(context.Background(), io.Discard)

	var (
		ch transform.ChainError
		ce transform.CompileError
	)
	require.ErrorAs(t, err, &ch)
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, 1, ch.Depth)
	assert.Equal(t, "mem://sheets/broken.xslt", ce.Sheet)
}

func TestInvalidSource(t *testing.T) {
	p := transform.New(transform.Source{}, sheet("wrap.xslt", wrapSheet))
	assert.ErrorIs(t, p.Execute(context.Background(), io.Discard), transform.ErrSource)
	assert.False(t, transform.Document(nil).Valid())
	assert.False(t, transform.Chain(nil).Valid())
	assert.True(t, transform.Chain(p).Chained())
}

func TestRelease(t *testing.T) {
	p := transform.New(transform.Document(document(sourceDoc)), sheet("wrap.xslt", wrapSheet))
	require.NoError(t, p.Release())
	require.NoError(t, p.Release())

	err := p.Execute(context.Background(), io.Discard)
	assert.ErrorIs(t, err, transform.ErrReleased)

	_, err = p.Stream()
	assert.ErrorIs(t, err, transform.ErrReleased)
}

func TestReleaseChain(t *testing.T) {
	var (
		source = &releaseRep{Representation: document(sourceDoc)}
		sheetA = &releaseRep{Representation: sheet("incr.xslt", incrementSheet)}
		sheetB = &releaseRep{Representation: sheet("wrap.xslt", wrapSheet)}
		a      = transform.New(transform.Document(source), sheetA)
		b      = transform.New(transform.Chain(a), sheetB)
	)
	assert.Equal(t, "<out><r><v>2</v></r></out>", execute(t, b))
	require.NoError(t, b.Release())

	assert.Equal(t, 1, source.released)
	assert.Equal(t, 1, sheetA.released)
	assert.Equal(t, 1, sheetB.released)
	assert.ErrorIs(t, a.Execute(context.Background(), io.Discard), transform.ErrReleased)
}

func TestReleaseFailure(t *testing.T) {
	var (
		failure = errors.New("busy")
		source  = &releaseRep{Representation: document(sourceDoc), err: failure}
		rsheet  = &releaseRep{Representation: sheet("wrap.xslt", wrapSheet)}
		p       = transform.New(transform.Document(source), rsheet)
	)
	err := p.Release()
	assert.ErrorIs(t, err, failure)
	assert.Equal(t, 1, rsheet.released, "sheet released after source failure")
	assert.NoError(t, p.Release())
}

func TestStream(t *testing.T) {
	p := transform.New(transform.Document(document(sourceDoc)), sheet("wrap.xslt", wrapSheet))
	p.SetIdentifier("mem://results/out.xml")

	rc, err := p.Stream()
	require.NoError(t, err)
	defer rc.Close()

	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "<out><r><v>1</v></r></out>", string(b))
	assert.Equal(t, "mem://results/out.xml", p.Identifier())
	assert.Equal(t, "application/xml", p.MediaType())

	var buf bytes.Buffer
	n, err := p.WriteTo(&buf)
	require.NoError(t, err)
	assert.Equal(t, int64(buf.Len()), n)
}

func TestWriteFailure(t *testing.T) {
	var (
		failure = errors.New("disk full")
		p       = transform.New(transform.Document(document(sourceDoc)), sheet("wrap.xslt", wrapSheet))
	)
	err := p.Execute(context.Background(), failingWriter{err: failure})

	var ioe transform.IOError
	require.ErrorAs(t, err, &ioe)
	assert.Equal(t, "write", ioe.Op)
	assert.ErrorIs(t, err, failure)
}

func TestCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := transform.New(transform.Document(document(sourceDoc)), sheet("wrap.xslt", wrapSheet))
	assert.ErrorIs(t, p.Execute(ctx, io.Discard), context.Canceled)
}

func TestRegistry(t *testing.T) {
	var (
		metrics = transform.NewMetrics(prometheus.NewRegistry())
		reg     = transform.NewRegistry()
		ctx     = context.Background()
		wg      sync.WaitGroup
		progs   = make([]*transform.Program, 8)
	)
	reg.Metrics = metrics
	for i := range progs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			prog, err := reg.Program(ctx, sheet("incr.xslt", incrementSheet), nil)
			assert.NoError(t, err)
			progs[i] = prog
		}(i)
	}
	wg.Wait()
	for _, prog := range progs[1:] {
		assert.Same(t, progs[0], prog)
	}
	assert.Equal(t, 1, reg.Len())
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.Compilations.WithLabelValues("ok")))

	var (
		a = transform.New(transform.Document(document(sourceDoc)), sheet("incr.xslt", incrementSheet), transform.WithRegistry(reg))
		b = transform.New(transform.Document(document(sourceDoc)), sheet("incr.xslt", incrementSheet), transform.WithRegistry(reg))
	)
	pa, err := a.Program(ctx)
	require.NoError(t, err)
	pb, err := b.Program(ctx)
	require.NoError(t, err)
	assert.Same(t, progs[0], pa)
	assert.Same(t, pa, pb)

	reg.Forget("mem://sheets/incr.xslt")
	assert.Zero(t, reg.Len())
}

func TestRegistrySheetReplaced(t *testing.T) {
	var (
		metrics = transform.NewMetrics(prometheus.NewRegistry())
		reg     = transform.NewRegistry()
		p       = transform.New(
			transform.Document(document(sourceDoc)),
			sheet("main.xslt", incrementSheet),
			transform.WithRegistry(reg),
			transform.WithMetrics(metrics),
		)
	)
	assert.Equal(t, "<r><v>2</v></r>", withoutProlog(execute(t, p)))

	p.SetSheet(sheet("main.xslt", wrapSheet))
	assert.Equal(t, "<out><r><v>1</v></r></out>", execute(t, p))
	assert.Equal(t, 1, reg.Len())
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.Compilations.WithLabelValues("ok")))
}

func TestRegistryResolvers(t *testing.T) {
	var (
		ctx   = context.Background()
		reg   = transform.NewRegistry()
		first = memMux(map[string]string{
			"mem://sheets/common.xslt": commonSheet,
		})
		second = memMux(map[string]string{
			"mem://sheets/common.xslt": otherSheet,
		})
		create = func(mux resource.Dispatcher) *transform.Pipeline {
			return transform.New(
				transform.Document(document(sourceDoc)),
				sheet("main.xslt", includeSheet),
				transform.WithRegistry(reg),
				transform.WithResolver(transform.NewResolver(ctx, mux)),
			)
		}
		p1 = create(first)
		p2 = create(second)
		p3 = create(first)
	)
	assert.Equal(t, "<res>shared</res>", execute(t, p1))
	assert.Equal(t, "<res>other</res>", execute(t, p2))
	assert.Equal(t, 2, reg.Len())

	prog1, err := p1.Program(ctx)
	require.NoError(t, err)
	prog3, err := p3.Program(ctx)
	require.NoError(t, err)
	assert.Same(t, prog1, prog3)

	reg.Forget("mem://sheets/main.xslt")
	assert.Zero(t, reg.Len())
}

func TestConcurrentExecute(t *testing.T) {
	var (
		a    = transform.New(transform.Document(document(sourceDoc)), sheet("incr.xslt", incrementSheet))
		b    = transform.New(transform.Chain(a), sheet("wrap.xslt", wrapSheet))
		wg   sync.WaitGroup
		outs = make([]string, 8)
		errs = make([]error, 8)
	)
	for i := range outs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var buf bytes.Buffer
			errs[i] = b.Execute(context.Background(), &buf)
			outs[i] = buf.String()
		}(i)
	}
	wg.Wait()
	for i := range outs {
		require.NoError(t, errs[i])
		assert.Equal(t, "<out><r><v>2</v></r></out>", outs[i])
	}
}

func TestMetrics(t *testing.T) {
	var (
		metrics = transform.NewMetrics(prometheus.NewRegistry())
		a       = transform.New(transform.Document(document(sourceDoc)), sheet("incr.xslt", incrementSheet), transform.WithMetrics(metrics))
		b       = transform.New(transform.Chain(a), sheet("wrap.xslt", wrapSheet), transform.WithMetrics(metrics))
		broken  = transform.New(transform.Document(document(sourceDoc)), sheet("broken.xslt", `<xsl:stylesheet`), transform.WithMetrics(metrics))
	)
	execute(t, b)
	assert.Error(t, broken.Execute(context.Background(), io.Discard))

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.Executions.WithLabelValues("ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.Executions.WithLabelValues("compile")))
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.Compilations.WithLabelValues("ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.Compilations.WithLabelValues("compile")))
	assert.Equal(t, 1, testutil.CollectAndCount(metrics.ChainDepth))
}

type countingRep struct {
	resource.Representation
	reads *int
}

func (r countingRep) Stream() (io.ReadCloser, error) {
	*r.reads++
	return r.Representation.Stream()
}

type releaseRep struct {
	resource.Representation
	released int
	err      error
}

func (r *releaseRep) Release() error {
	r.released++
	return r.err
}

type failingWriter struct {
	err error
}

func (w failingWriter) Write(_ []byte) (int, error) {
	return 0, w.err
}
