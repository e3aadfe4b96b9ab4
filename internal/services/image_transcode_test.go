package services

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"
)

// testPNG renders a small gradient and encodes it, so transcode tests
// have a real decodable source.
func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode test image: %v", err)
	}
	return buf.Bytes()
}

func TestTranscodeCardImage_CoverProducesJPEG(t *testing.T) {
	src := testPNG(t, 240, 336)

	out, ext, err := TranscodeCardImage(src, "image/png", FitCover)
	if err != nil {
		t.Fatalf("TranscodeCardImage() error = %v", err)
	}
	if ext != "jpg" {
		t.Errorf("ext = %q, want jpg", ext)
	}

	decoded, err := jpeg.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("output is not valid JPEG: %v", err)
	}
	b := decoded.Bounds()
	if b.Dx() != cardCanvasWidth || b.Dy() != cardCanvasHeight {
		t.Errorf("output canvas = %dx%d, want %dx%d", b.Dx(), b.Dy(), cardCanvasWidth, cardCanvasHeight)
	}
}

func TestTranscodeCardImage_ContainLetterboxes(t *testing.T) {
	// A square source on the portrait canvas leaves transparent bands
	// top and bottom
	src := testPNG(t, 100, 100)

	out, ext, err := TranscodeCardImage(src, "image/png", FitContain)
	if err != nil {
		t.Fatalf("TranscodeCardImage() error = %v", err)
	}
	if ext != "png" {
		t.Errorf("ext = %q, want png", ext)
	}

	decoded, err := png.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("output is not valid PNG: %v", err)
	}
	b := decoded.Bounds()
	if b.Dx() != cardCanvasWidth || b.Dy() != cardCanvasHeight {
		t.Fatalf("output canvas = %dx%d, want %dx%d", b.Dx(), b.Dy(), cardCanvasWidth, cardCanvasHeight)
	}

	if _, _, _, a := decoded.At(0, 0).RGBA(); a != 0 {
		t.Error("top-left corner is opaque, want transparent letterbox band")
	}
	if _, _, _, a := decoded.At(cardCanvasWidth/2, cardCanvasHeight/2).RGBA(); a == 0 {
		t.Error("canvas center is transparent, want the scaled source there")
	}
}

func TestTranscodeCardImage_CoverCropsWideSource(t *testing.T) {
	// Twice as wide as the card aspect; cover must crop, not squash
	src := testPNG(t, 200, 70)

	out, _, err := TranscodeCardImage(src, "image/png", FitCover)
	if err != nil {
		t.Fatalf("TranscodeCardImage() error = %v", err)
	}
	decoded, err := jpeg.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("output is not valid JPEG: %v", err)
	}
	b := decoded.Bounds()
	if b.Dx() != cardCanvasWidth || b.Dy() != cardCanvasHeight {
		t.Errorf("output canvas = %dx%d, want %dx%d", b.Dx(), b.Dy(), cardCanvasWidth, cardCanvasHeight)
	}
}

func TestTranscodeCardImage_SVG(t *testing.T) {
	svg := []byte(`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 100 100"><rect width="100" height="100" fill="#ff0000"/></svg>`)

	tests := []struct {
		name        string
		contentType string
	}{
		{"detected by content type", "image/svg+xml"},
		{"detected by sniffing the body", "application/octet-stream"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, ext, err := TranscodeCardImage(svg, tt.contentType, FitCover)
			if err != nil {
				t.Fatalf("TranscodeCardImage() error = %v", err)
			}
			// SVG always rasterizes to PNG, even under cover policy
			if ext != "png" {
				t.Errorf("ext = %q, want png", ext)
			}
			decoded, err := png.Decode(bytes.NewReader(out))
			if err != nil {
				t.Fatalf("output is not valid PNG: %v", err)
			}
			b := decoded.Bounds()
			if b.Dx() != cardCanvasWidth || b.Dy() != cardCanvasHeight {
				t.Errorf("output canvas = %dx%d, want %dx%d", b.Dx(), b.Dy(), cardCanvasWidth, cardCanvasHeight)
			}
		})
	}
}

func TestTranscodeCardImage_RejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty data", nil},
		{"not an image", []byte("certainly not pixels")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := TranscodeCardImage(tt.data, "image/png", FitCover); err == nil {
				t.Error("TranscodeCardImage() error = nil, want error")
			}
		})
	}
}

func TestIsSVG(t *testing.T) {
	if !isSVG([]byte("<svg></svg>"), "") {
		t.Error("isSVG() = false for svg body")
	}
	if !isSVG([]byte("binary"), "image/svg+xml") {
		t.Error("isSVG() = false for svg content type")
	}
	if isSVG(testPNGHeader(), "image/png") {
		t.Error("isSVG() = true for PNG bytes")
	}
}

func testPNGHeader() []byte {
	return []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}
}
