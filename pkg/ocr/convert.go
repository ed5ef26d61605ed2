package ocr

import (
	"bytes"
	"fmt"
	"image"
	"net/http"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/gen2brain/go-fitz"
	"github.com/gen2brain/heic"
)

// DetectMIME trusts a specific declared type and sniffs the content otherwise.
func DetectMIME(data []byte, declared string) string {
	mt := strings.ToLower(strings.TrimSpace(declared))
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	switch {
	case isHEIC(data):
		return "image/heic"
	case bytes.HasPrefix(data, []byte("%PDF")):
		return "application/pdf"
	case mt != "" && mt != "application/octet-stream":
		return mt
	}
	return http.DetectContentType(data)
}

// isHEIC looks for an ftyp box with a HEIF family brand.
func isHEIC(data []byte) bool {
	if len(data) < 12 || string(data[4:8]) != "ftyp" {
		return false
	}
	switch string(data[8:12]) {
	case "heic", "heix", "heif", "mif1", "msf1":
		return true
	}
	return false
}

// decodeImage returns the first page of a PDF or the decoded image.
func decodeImage(data []byte, mimeType string) (image.Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty file")
	}
	switch mt := DetectMIME(data, mimeType); {
	case mt == "application/pdf":
		return renderPDF(data)
	case mt == "image/heic" || mt == "image/heif":
		img, err := heic.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decoding HEIC: %w", err)
		}
		return img, nil
	default:
		img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
		if err != nil {
			return nil, fmt.Errorf("decoding %s: %w", mt, err)
		}
		return img, nil
	}
}

func renderPDF(data []byte) (image.Image, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer doc.Close()
	if doc.NumPage() == 0 {
		return nil, fmt.Errorf("PDF has no pages")
	}
	img, err := doc.Image(0)
	if err != nil {
		return nil, fmt.Errorf("rendering PDF page: %w", err)
	}
	return img, nil
}

// toPNG converts anything decodeImage accepts to PNG. PNG input is passed through.
func toPNG(data []byte, mimeType string) ([]byte, error) {
	if DetectMIME(data, mimeType) == "image/png" {
		return data, nil
	}
	img, err := decodeImage(data, mimeType)
	if err != nil {
		return nil, err
	}
	return encodePNG(img)
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}
	return buf.Bytes(), nil
}
