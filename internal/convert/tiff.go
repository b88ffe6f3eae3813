package convert

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirikarn/edoc-pipeline/internal/fault"
)

// TIFF containers chain one image file directory (IFD) per page. The page
// count is whatever the chain declares; splitting a page out only requires
// re-pointing the header at that page's IFD and terminating its chain, the
// rest of the container travels along as unreferenced bytes.

const (
	tiffMagic     = 42
	tiffHeaderLen = 8
	ifdEntryLen   = 12
	maxTiffPages  = 4096
)

type tiffInfo struct {
	order      binary.ByteOrder
	ifdOffsets []uint32
}

// TiffPageCount returns the number of pages declared by the container's IFD
// chain. A container with an unreadable chain past the first page falls back
// to 1.
func TiffPageCount(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fault.Wrap(fault.ImageConvert, fmt.Sprintf("cannot read scan container: %s", path), err)
	}
	info, err := parseTiff(data)
	if err != nil {
		return 0, err
	}
	if len(info.ifdOffsets) == 0 {
		return 1, nil
	}
	return len(info.ifdOffsets), nil
}

// SplitTiffPages writes one standalone single-page container per embedded
// page into destDir, preserving embedded order, and returns the produced
// paths.
func SplitTiffPages(path, destDir string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fault.Wrap(fault.ImageConvert, fmt.Sprintf("cannot read scan container: %s", path), err)
	}
	info, err := parseTiff(data)
	if err != nil {
		return nil, err
	}

	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	var pages []string
	for i, ifdOff := range info.ifdOffsets {
		page := make([]byte, len(data))
		copy(page, data)

		// Point the header at this page's IFD and cut its chain.
		info.order.PutUint32(page[4:8], ifdOff)
		entryCount := info.order.Uint16(page[ifdOff : ifdOff+2])
		nextPtr := ifdOff + 2 + uint32(entryCount)*ifdEntryLen
		info.order.PutUint32(page[nextPtr:nextPtr+4], 0)

		out := filepath.Join(destDir, fmt.Sprintf("%s_page%d.tif", base, i+1))
		if err := os.WriteFile(out, page, 0o644); err != nil {
			return nil, fault.Wrap(fault.ImageConvert, fmt.Sprintf("cannot write scan page: %s", out), err)
		}
		pages = append(pages, out)
	}
	return pages, nil
}

func parseTiff(data []byte) (*tiffInfo, error) {
	if len(data) < tiffHeaderLen {
		return nil, fault.New(fault.ImageConvert, "scan container is truncated")
	}

	var order binary.ByteOrder
	switch string(data[0:2]) {
	case "II":
		order = binary.LittleEndian
	case "MM":
		order = binary.BigEndian
	default:
		return nil, fault.New(fault.ImageConvert, "scan container has an unrecognized byte order")
	}
	if order.Uint16(data[2:4]) != tiffMagic {
		return nil, fault.New(fault.ImageConvert, "scan container is not a TIFF file")
	}

	info := &tiffInfo{order: order}
	seen := make(map[uint32]bool)
	off := order.Uint32(data[4:8])
	for off != 0 {
		if seen[off] || len(info.ifdOffsets) >= maxTiffPages {
			return nil, fault.New(fault.ImageConvert, "scan container has a cyclic page directory")
		}
		if int(off)+2 > len(data) {
			// Chain runs past the end of the file. Keep whatever pages were
			// declared so far; an empty chain means a single-page container.
			break
		}
		entryCount := order.Uint16(data[off : off+2])
		nextPtr := off + 2 + uint32(entryCount)*ifdEntryLen
		if int(nextPtr)+4 > len(data) {
			break
		}
		seen[off] = true
		info.ifdOffsets = append(info.ifdOffsets, off)
		off = order.Uint32(data[nextPtr : nextPtr+4])
	}
	return info, nil
}
