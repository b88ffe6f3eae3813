// Package convert normalizes extracted assets (images, multi-page scans and
// pass-through PDFs) into ordered single-page or multi-page PDF fragments.
package convert

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	// Register decoders for image probing.
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/tiff"

	gklog "github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/sirikarn/edoc-pipeline/internal/fault"
)

// Converter turns extracted files into PDF fragments ready for merging.
type Converter struct {
	log gklog.Logger
}

func New(logger gklog.Logger) *Converter {
	return &Converter{log: gklog.With(logger, "component", "converter")}
}

// ToFragments converts the given ordered files into an ordered fragment
// sequence. PDFs pass through unchanged, images become one single-page
// fragment each, multi-page scans expand in place into one fragment per
// embedded page. Any unsupported extension fails the whole job immediately.
func (c *Converter) ToFragments(files []string, workDir string) ([]string, error) {
	var fragments []string
	for _, file := range files {
		ext := strings.ToLower(filepath.Ext(file))
		switch ext {
		case ".pdf":
			fragments = append(fragments, file)
		case ".jpg", ".jpeg", ".png":
			frag, err := c.imageToPdf(file)
			if err != nil {
				return nil, err
			}
			fragments = append(fragments, frag)
		case ".tiff", ".tif":
			pages, err := c.scanToPdfs(file, workDir)
			if err != nil {
				return nil, err
			}
			fragments = append(fragments, pages...)
		default:
			return nil, fault.New(fault.UnsupportedFile, fmt.Sprintf("unsupported file type: %s", file))
		}
	}
	return fragments, nil
}

// imageToPdf renders a single image onto a PDF page of the image's native
// pixel dimensions.
func (c *Converter) imageToPdf(imagePath string) (string, error) {
	width, height, err := probeImage(imagePath)
	if err != nil {
		return "", err
	}

	outPdf := imagePath + ".pdf"
	if err := api.ImportImagesFile([]string{imagePath}, outPdf, nil, nil); err != nil {
		return "", fault.Wrap(fault.ImageConvert, fmt.Sprintf("failed to convert image to PDF: %s", imagePath), err)
	}
	level.Debug(c.log).Log("msg", "converted image", "file", imagePath, "width", width, "height", height)
	return outPdf, nil
}

// scanToPdfs expands a multi-page scan container into one single-page PDF per
// embedded page, in embedded order.
func (c *Converter) scanToPdfs(tiffPath, workDir string) ([]string, error) {
	pageCount, err := TiffPageCount(tiffPath)
	if err != nil {
		return nil, err
	}

	sources := []string{tiffPath}
	if pageCount > 1 {
		sources, err = SplitTiffPages(tiffPath, workDir)
		if err != nil {
			return nil, err
		}
	}

	var pdfs []string
	for _, src := range sources {
		// Probe each page before the import so an undecodable page fails
		// with its own path, not the container's.
		width, height, err := probeImage(src)
		if err != nil {
			return nil, err
		}
		outPdf := src + ".pdf"
		if err := api.ImportImagesFile([]string{src}, outPdf, nil, nil); err != nil {
			return nil, fault.Wrap(fault.ImageConvert, fmt.Sprintf("failed to convert scan page to PDF: %s", src), err)
		}
		level.Debug(c.log).Log("msg", "converted scan page", "file", src, "width", width, "height", height)
		pdfs = append(pdfs, outPdf)
	}
	level.Debug(c.log).Log("msg", "converted scan", "file", tiffPath, "pages", pageCount)
	return pdfs, nil
}

// probeImage decodes the image header and returns its native pixel
// dimensions, rejecting undecodable files before the PDF import runs.
func probeImage(path string) (width, height int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, fault.Wrap(fault.ImageConvert, fmt.Sprintf("cannot open image: %s", path), err)
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, fault.Wrap(fault.ImageConvert, fmt.Sprintf("cannot decode image: %s", path), err)
	}
	return cfg.Width, cfg.Height, nil
}
