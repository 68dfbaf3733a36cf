package plan

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/midbel/angle/resource"
	"github.com/midbel/angle/transform"
)

const (
	incrementSheet = `<xsl:stylesheet version="1.0" xmlns:xsl="http://www.w3.org/1999/XSL/Transform">
	<xsl:param name="step" select="1"/>
	<xsl:template match="@*|node()">
		<xsl:copy><xsl:apply-templates select="@*|node()"/></xsl:copy>
	</xsl:template>
	<xsl:template match="v"><v><xsl:value-of select=". + $step"/></v></xsl:template>
</xsl:stylesheet>`

	wrapSheet = `<xsl:stylesheet version="1.0" xmlns:xsl="http://www.w3.org/1999/XSL/Transform">
	<xsl:output omit-xml-declaration="yes"/>
	<xsl:template match="/"><out><xsl:copy-of select="."/></out></xsl:template>
</xsl:stylesheet>`

	planFile = `schema_version: v1
name: sample
source: doc.xml
output: out.xml
stages:
  - sheet: sheets/incr.xslt
    params:
      step: 2
  - sheet: sheets/incr.xslt
  - sheet: sheets/wrap.xslt
    output:
      indent: "no"
log:
  level: warn
`
)

func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		file := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(file), 0o755))
		require.NoError(t, os.WriteFile(file, []byte(content), 0o644))
	}
	return dir
}

func samplePlan(t *testing.T, plan string) string {
	t.Helper()
	dir := writeFiles(t, map[string]string{
		"plan.yml":         plan,
		"doc.xml":          `<r><v>1</v></r>`,
		"sheets/incr.xslt": incrementSheet,
		"sheets/wrap.xslt": wrapSheet,
	})
	return filepath.Join(dir, "plan.yml")
}

func TestLoad(t *testing.T) {
	file := samplePlan(t, planFile)
	dir := filepath.Dir(file)

	p, err := Load(file)
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion, p.SchemaVersion)
	assert.Equal(t, "sample", p.Name)
	assert.True(t, p.Streaming)
	assert.Equal(t, filepath.Join(dir, "doc.xml"), p.Source)
	assert.Equal(t, filepath.Join(dir, "out.xml"), p.Output)
	assert.Equal(t, "warn", p.Log.Level)
	require.Len(t, p.Stages, 3)
	assert.Equal(t, filepath.Join(dir, "sheets", "incr.xslt"), p.Stages[0].Sheet)
	assert.Equal(t, "2", p.Stages[0].Params["step"])
	assert.Equal(t, "no", p.Stages[2].Output["indent"])
}

func TestLoadEnv(t *testing.T) {
	t.Setenv("ANGLE_LOG__LEVEL", "debug")
	t.Setenv("ANGLE_NAME", "override")

	p, err := Load(samplePlan(t, planFile))
	require.NoError(t, err)
	assert.Equal(t, "debug", p.Log.Level)
	assert.Equal(t, "override", p.Name)
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		Name string
		Plan string
		Err  error
	}{
		{
			Name: "schema",
			Plan: "schema_version: v2\nsource: doc.xml\nstages:\n  - sheet: a.xslt\n",
			Err:  ErrSchema,
		},
		{
			Name: "no-stage",
			Plan: "source: doc.xml\n",
			Err:  ErrPlan,
		},
		{
			Name: "no-source",
			Plan: "stages:\n  - sheet: a.xslt\n",
			Err:  ErrPlan,
		},
		{
			Name: "no-sheet",
			Plan: "source: doc.xml\nstages:\n  - params:\n      a: b\n",
			Err:  ErrPlan,
		},
	}
	for _, tt := range tests {
		t.Run(tt.Name, func(t *testing.T) {
			_, err := Load(samplePlan(t, tt.Plan))
			assert.ErrorIs(t, err, tt.Err)
		})
	}
}

func TestBuild(t *testing.T) {
	for _, streaming := range []bool{true, false} {
		p, err := Load(samplePlan(t, planFile))
		require.NoError(t, err)
		p.Streaming = streaming

		pipe, err := p.Build(context.Background())
		require.NoError(t, err)

		var buf bytes.Buffer
		require.NoError(t, pipe.Execute(context.Background(), &buf))
		assert.Equal(t, "<out><r><v>4</v></r></out>", buf.String(), "streaming: %t", streaming)
		assert.Equal(t, p.Source, pipe.Identifier())
		assert.NoError(t, pipe.Release())
	}
}

func TestBuildMissingSheet(t *testing.T) {
	p, err := Load(samplePlan(t, "source: doc.xml\nstages:\n  - sheet: sheets/incr.xslt\n  - sheet: sheets/missing.xslt\n"))
	require.NoError(t, err)

	_, err = p.Build(context.Background())
	assert.ErrorIs(t, err, resource.ErrNotFound)
}

func TestCompile(t *testing.T) {
	p, err := Load(samplePlan(t, planFile))
	require.NoError(t, err)

	reg := transform.NewRegistry()
	require.NoError(t, p.Compile(context.Background(), reg))
	assert.Equal(t, 2, reg.Len())

	pipe, err := p.Build(context.Background(), transform.WithRegistry(reg))
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, pipe.Execute(context.Background(), &buf))
	assert.Equal(t, "<out><r><v>4</v></r></out>", buf.String())
	assert.Equal(t, 2, reg.Len())
}

func TestCompileFailure(t *testing.T) {
	file := samplePlan(t, "source: doc.xml\nstages:\n  - sheet: sheets/incr.xslt\n  - sheet: sheets/broken.xslt\n")
	require.NoError(t, os.WriteFile(filepath.Join(filepath.Dir(file), "sheets", "broken.xslt"), []byte("<xsl:stylesheet"), 0o644))

	p, err := Load(file)
	require.NoError(t, err)

	err = p.Compile(context.Background(), transform.NewRegistry())
	var ce transform.CompileError
	assert.ErrorAs(t, err, &ce)
}

func TestRender(t *testing.T) {
	p, err := Load(samplePlan(t, planFile))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, p.Render(&buf))

	out := buf.String()
	assert.Contains(t, out, "schema_version: v1")
	assert.Contains(t, out, "name: sample")
	assert.Contains(t, out, "streaming: true")
	assert.Contains(t, out, "level: warn")
	assert.Contains(t, out, "step: \"2\"")
}
