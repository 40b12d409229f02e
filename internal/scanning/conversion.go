package scanning

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	"image/png"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gen2brain/go-fitz"
	"github.com/gen2brain/heic"
	_ "golang.org/x/image/bmp"  // Register BMP decoder
	_ "golang.org/x/image/tiff" // Register TIFF decoder
	_ "golang.org/x/image/webp" // Register WebP decoder
)

// pdfRenderDPI is the rasterization density for PDF invoices
const pdfRenderDPI = 200

// renderPDF rasterizes the first page of a PDF invoice as PNG. Only the
// first page is recognized.
func renderPDF(pdfData []byte) ([]byte, error) {
	doc, err := fitz.NewFromMemory(pdfData)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer doc.Close()

	if doc.NumPage() == 0 {
		return nil, errors.New("PDF has no pages")
	}
	page, err := doc.ImageDPI(0, pdfRenderDPI)
	if err != nil {
		return nil, fmt.Errorf("rendering PDF page: %w", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, page); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// imageToPNG re-encodes any decodable image as PNG
func imageToPNG(imageData []byte, mimeType string) ([]byte, error) {
	var img image.Image
	var err error

	if isHEIC(imageData, mimeType) {
		img, err = heic.Decode(bytes.NewReader(imageData))
		if err != nil {
			return nil, fmt.Errorf("decoding HEIC image: %w", err)
		}
	} else {
		img, _, err = image.Decode(bytes.NewReader(imageData))
		if errors.Is(err, image.ErrFormat) {
			return nil, fmt.Errorf("unsupported image format %s: %w", mimeType, err)
		}
		if err != nil {
			return nil, fmt.Errorf("decoding image: %w", err)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// isHEIC reports whether the data or its declared type is HEIC/HEIF, which
// the image package cannot decode.
func isHEIC(data []byte, mimeType string) bool {
	if strings.Contains(mimeType, "heic") || strings.Contains(mimeType, "heif") {
		return true
	}
	detected := mimetype.Detect(data)
	return detected.Is("image/heic") || detected.Is("image/heif")
}

// convertToPNG converts PDFs and non-PNG images to PNG format
// Returns the PNG data and whether conversion occurred
func convertToPNG(imageData []byte, mimeType string) ([]byte, bool, error) {
	switch {
	case mimeType == "application/pdf":
		pngData, err := renderPDF(imageData)
		if err != nil {
			return nil, false, fmt.Errorf("converting PDF to image: %w", err)
		}
		return pngData, true, nil
	case mimeType != "image/png" || isHEIC(imageData, ""):
		pngData, err := imageToPNG(imageData, mimeType)
		if err != nil {
			return nil, false, fmt.Errorf("converting image to PNG: %w", err)
		}
		return pngData, true, nil
	}
	return imageData, false, nil
}

// DetectMimeType returns the declared content type, or the sniffed one when
// the declaration is missing or generic.
func DetectMimeType(data []byte, declared string) string {
	declared = strings.ToLower(strings.TrimSpace(declared))
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}
	return mimetype.Detect(data).String()
}

// prepareImageData resolves the MIME type and converts the image to PNG if needed
// Returns the final image data, its MIME type, and whether conversion occurred
func prepareImageData(imageData []byte, contentType string) ([]byte, string, bool, error) {
	if len(imageData) == 0 {
		return nil, "", false, fmt.Errorf("empty image data")
	}

	mimeType := DetectMimeType(imageData, contentType)

	finalImageData, converted, err := convertToPNG(imageData, mimeType)
	if err != nil {
		return nil, "", false, err
	}

	return finalImageData, "image/png", converted, nil
}
