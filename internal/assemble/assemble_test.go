package assemble

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	gklog "github.com/go-kit/log"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sirikarn/edoc-pipeline/internal/fault"
)

// writePdf emits a minimal but well-formed document with the given page
// count, cross-reference table included.
func writePdf(t *testing.T, path string, pages int) {
	t.Helper()

	var b bytes.Buffer
	var offsets []int
	obj := func(s string) {
		offsets = append(offsets, b.Len())
		b.WriteString(s)
	}

	b.WriteString("%PDF-1.4\n")
	kids := make([]string, pages)
	for i := range kids {
		kids[i] = fmt.Sprintf("%d 0 R", 3+i)
	}
	obj("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")
	obj(fmt.Sprintf("2 0 obj\n<< /Type /Pages /Kids [%s] /Count %d >>\nendobj\n", strings.Join(kids, " "), pages))
	for i := 0; i < pages; i++ {
		obj(fmt.Sprintf("%d 0 obj\n<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << >> >>\nendobj\n", 3+i))
	}

	xref := b.Len()
	fmt.Fprintf(&b, "xref\n0 %d\n", len(offsets)+1)
	b.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&b, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&b, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)

	require.NoError(t, os.WriteFile(path, b.Bytes(), 0o644))
}

type stubStrategy struct {
	name  string
	fail  bool
	err   error
	calls int
}

func (s *stubStrategy) Name() string { return s.name }

func (s *stubStrategy) Resave(_ context.Context, src, dst string) error {
	s.calls++
	if s.fail {
		if s.err != nil {
			return s.err
		}
		return errors.New(s.name + " failed")
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}

func countResaveTemps(t *testing.T, dir string) int {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, "*__resaved-*.pdf"))
	require.NoError(t, err)
	return len(matches)
}

func TestMergePageCounts(t *testing.T) {
	dir := t.TempDir()
	var fragments []string
	for i, pages := range []int{1, 3, 1} {
		p := filepath.Join(dir, fmt.Sprintf("%d.pdf", i+1))
		writePdf(t, p, pages)
		fragments = append(fragments, p)
	}

	out := filepath.Join(dir, "merged.pdf")
	a := New(Options{}, nil, gklog.NewNopLogger())
	require.NoError(t, a.Merge(context.Background(), fragments, out))

	total, err := api.PageCountFile(out)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
}

func TestMergeWithResaveCleansTemps(t *testing.T) {
	dir := t.TempDir()
	frag := filepath.Join(dir, "1.pdf")
	writePdf(t, frag, 2)

	out := filepath.Join(dir, "merged.pdf")
	chain := []ResaveStrategy{&stubStrategy{name: "external", fail: true}, &stubStrategy{name: "library"}}
	a := New(Options{ResaveBeforeMerge: true}, chain, gklog.NewNopLogger())
	require.NoError(t, a.Merge(context.Background(), []string{frag}, out))

	total, err := api.PageCountFile(out)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Zero(t, countResaveTemps(t, dir), "resave temps must be removed on success")
}

func TestResaveFallbackOrder(t *testing.T) {
	dir := t.TempDir()
	frag := filepath.Join(dir, "1.pdf")
	writePdf(t, frag, 1)

	first := &stubStrategy{name: "external", fail: true}
	second := &stubStrategy{name: "library"}
	a := New(Options{ResaveBeforeMerge: true}, []ResaveStrategy{first, second}, gklog.NewNopLogger())

	require.NoError(t, a.Merge(context.Background(), []string{frag}, filepath.Join(dir, "out.pdf")))
	assert.Equal(t, 1, first.calls)
	assert.Equal(t, 1, second.calls)
}

func TestResaveAllStrategiesFail(t *testing.T) {
	dir := t.TempDir()
	frag := filepath.Join(dir, "1.pdf")
	writePdf(t, frag, 1)

	chain := []ResaveStrategy{&stubStrategy{name: "external", fail: true}, &stubStrategy{name: "library", fail: true}}
	a := New(Options{ResaveBeforeMerge: true}, chain, gklog.NewNopLogger())

	out := filepath.Join(dir, "out.pdf")
	err := a.Merge(context.Background(), []string{frag}, out)
	require.Error(t, err)
	assert.Equal(t, fault.PdfMerge, fault.KindOf(err))
	assert.NoFileExists(t, out)
	assert.Zero(t, countResaveTemps(t, dir))
}

func TestMergeEncryptedAborts(t *testing.T) {
	dir := t.TempDir()
	frag := filepath.Join(dir, "1.pdf")
	writePdf(t, frag, 1)

	a := New(Options{}, nil, gklog.NewNopLogger())
	a.loadCheck = func(string, bool) error {
		return errors.New("pdfcpu: this file is encrypted")
	}

	out := filepath.Join(dir, "out.pdf")
	err := a.Merge(context.Background(), []string{frag}, out)
	require.Error(t, err)
	assert.Equal(t, fault.PdfEncrypted, fault.KindOf(err))
	assert.Contains(t, err.Error(), EncryptedMessage)
	assert.NoFileExists(t, out)
}

func TestMergeEncryptedOverrideRetries(t *testing.T) {
	dir := t.TempDir()
	frag := filepath.Join(dir, "1.pdf")
	writePdf(t, frag, 1)

	var permissiveCalls int
	a := New(Options{IgnoreEncryption: true}, nil, gklog.NewNopLogger())
	a.loadCheck = func(_ string, permissive bool) error {
		if permissive {
			permissiveCalls++
			return nil
		}
		return errors.New("pdfcpu: this file is encrypted")
	}

	out := filepath.Join(dir, "out.pdf")
	require.NoError(t, a.Merge(context.Background(), []string{frag}, out))
	assert.Equal(t, 1, permissiveCalls)
}

func TestMergeEncryptedOverrideSecondFailureTerminal(t *testing.T) {
	dir := t.TempDir()
	frag := filepath.Join(dir, "1.pdf")
	writePdf(t, frag, 1)

	a := New(Options{IgnoreEncryption: true}, nil, gklog.NewNopLogger())
	a.loadCheck = func(string, bool) error {
		return errors.New("pdfcpu: this file is encrypted")
	}

	err := a.Merge(context.Background(), []string{frag}, filepath.Join(dir, "out.pdf"))
	require.Error(t, err)
	assert.Equal(t, fault.PdfEncrypted, fault.KindOf(err))
}

func TestExternalResaverCopies(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.pdf")
	dst := filepath.Join(dir, "dst.pdf")
	writePdf(t, src, 1)

	r := NewExternalResaver([]string{"cp"}, 5*time.Second, gklog.NewNopLogger())
	require.NoError(t, r.Resave(context.Background(), src, dst))
	assert.FileExists(t, dst)
}

func TestExternalResaverTimeout(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.pdf")
	writePdf(t, src, 1)

	r := NewExternalResaver([]string{"/bin/sh", "-c", "sleep 5"}, 50*time.Millisecond, gklog.NewNopLogger())
	err := r.Resave(context.Background(), src, filepath.Join(dir, "dst.pdf"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
}

func TestExternalResaverNonZeroExit(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.pdf")
	writePdf(t, src, 1)

	r := NewExternalResaver([]string{"/bin/sh", "-c", "echo boom >&2; exit 3"}, 5*time.Second, gklog.NewNopLogger())
	err := r.Resave(context.Background(), src, filepath.Join(dir, "dst.pdf"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestLibraryResaverRoundTrip(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.pdf")
	dst := filepath.Join(dir, "dst.pdf")
	writePdf(t, src, 3)

	r := NewLibraryResaver(gklog.NewNopLogger())
	require.NoError(t, r.Resave(context.Background(), src, dst))

	pages, err := api.PageCountFile(dst)
	require.NoError(t, err)
	assert.Equal(t, 3, pages)
}
