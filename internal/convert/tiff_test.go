package convert

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sirikarn/edoc-pipeline/internal/fault"
)

// writeTiff builds a minimal container with the given number of chained
// IFDs, one entry each. The splitter only rewrites directory pointers, so no
// pixel data is needed.
func writeTiff(t *testing.T, path string, pages int, order binary.ByteOrder) {
	t.Helper()

	var buf bytes.Buffer
	if order == binary.LittleEndian {
		buf.WriteString("II")
	} else {
		buf.WriteString("MM")
	}
	hdr := make([]byte, 6)
	order.PutUint16(hdr[0:2], 42)
	order.PutUint32(hdr[2:6], 8) // first IFD right after the header
	buf.Write(hdr)

	const ifdLen = 2 + 12 + 4 // entry count + one entry + next pointer
	for i := 0; i < pages; i++ {
		ifd := make([]byte, ifdLen)
		order.PutUint16(ifd[0:2], 1)
		order.PutUint16(ifd[2:4], 256)  // ImageWidth
		order.PutUint16(ifd[4:6], 3)    // SHORT
		order.PutUint32(ifd[6:10], 1)   // one value
		order.PutUint32(ifd[10:14], 10) // width 10
		next := uint32(0)
		if i < pages-1 {
			next = uint32(8 + (i+1)*ifdLen)
		}
		order.PutUint32(ifd[14:18], next)
		buf.Write(ifd)
	}

	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func TestTiffPageCount(t *testing.T) {
	dir := t.TempDir()

	for _, tc := range []struct {
		name  string
		pages int
		order binary.ByteOrder
	}{
		{"single little-endian", 1, binary.LittleEndian},
		{"three pages little-endian", 3, binary.LittleEndian},
		{"three pages big-endian", 3, binary.BigEndian},
	} {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(dir, tc.name+".tif")
			writeTiff(t, path, tc.pages, tc.order)

			count, err := TiffPageCount(path)
			require.NoError(t, err)
			assert.Equal(t, tc.pages, count)
		})
	}
}

func TestTiffPageCountRejectsGarbage(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.tif")
	require.NoError(t, os.WriteFile(path, []byte("PK\x03\x04 not a tiff"), 0o644))

	_, err := TiffPageCount(path)
	require.Error(t, err)
	assert.Equal(t, fault.ImageConvert, fault.KindOf(err))
}

func TestSplitTiffPages(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scan.tif")
	writeTiff(t, path, 3, binary.LittleEndian)

	pages, err := SplitTiffPages(path, dir)
	require.NoError(t, err)
	require.Len(t, pages, 3)

	assert.Equal(t, filepath.Join(dir, "scan_page1.tif"), pages[0])
	assert.Equal(t, filepath.Join(dir, "scan_page2.tif"), pages[1])
	assert.Equal(t, filepath.Join(dir, "scan_page3.tif"), pages[2])

	// Each split page must itself be a valid single-page container.
	for _, page := range pages {
		count, err := TiffPageCount(page)
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	}
}
