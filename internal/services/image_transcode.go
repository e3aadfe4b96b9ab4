package services

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"strings"

	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// Card images are normalized to one portrait canvas. 480x672 keeps the
// 5:7 card aspect ratio.
const (
	cardCanvasWidth  = 480
	cardCanvasHeight = 672
	cardJPEGQuality  = 85
)

// FitPolicy controls how a source image maps onto the canvas.
type FitPolicy string

const (
	// FitCover scales to fill and crops the overflow; output is JPEG.
	// The right choice for portrait card scans.
	FitCover FitPolicy = "cover"
	// FitContain scales to fit and pads with transparency; output is
	// PNG. Used for non-uniform-aspect sources (banners, logos).
	FitContain FitPolicy = "contain"
)

// TranscodeCardImage re-encodes source image bytes to the fixed canvas
// and returns the encoded bytes plus the file extension ("jpg"/"png").
// SVG sources are rasterized with contain semantics whatever the
// requested policy, since they never match the card aspect.
func TranscodeCardImage(data []byte, contentType string, fit FitPolicy) ([]byte, string, error) {
	if len(data) == 0 {
		return nil, "", fmt.Errorf("empty image data")
	}

	if isSVG(data, contentType) {
		out, err := rasterizeSVG(data, cardCanvasWidth, cardCanvasHeight)
		if err != nil {
			return nil, "", fmt.Errorf("failed to rasterize SVG: %w", err)
		}
		return out, "png", nil
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode image: %w", err)
	}

	canvas := image.NewRGBA(image.Rect(0, 0, cardCanvasWidth, cardCanvasHeight))

	switch fit {
	case FitContain:
		drawContain(canvas, src)
		var buf bytes.Buffer
		if err := png.Encode(&buf, canvas); err != nil {
			return nil, "", fmt.Errorf("failed to encode PNG: %w", err)
		}
		return buf.Bytes(), "png", nil

	default: // cover
		drawCover(canvas, src)
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, canvas, &jpeg.Options{Quality: cardJPEGQuality}); err != nil {
			return nil, "", fmt.Errorf("failed to encode JPEG: %w", err)
		}
		return buf.Bytes(), "jpg", nil
	}
}

// drawCover fills the canvas, cropping source overflow symmetrically.
func drawCover(canvas *image.RGBA, src image.Image) {
	cw, ch := canvas.Bounds().Dx(), canvas.Bounds().Dy()
	sb := src.Bounds()
	sw, sh := sb.Dx(), sb.Dy()
	if sw <= 0 || sh <= 0 {
		return
	}

	// Crop the source to the canvas aspect ratio before scaling
	crop := sb
	if sw*ch > cw*sh {
		// source too wide
		cropW := sh * cw / ch
		x0 := sb.Min.X + (sw-cropW)/2
		crop = image.Rect(x0, sb.Min.Y, x0+cropW, sb.Max.Y)
	} else if sw*ch < cw*sh {
		// source too tall
		cropH := sw * ch / cw
		y0 := sb.Min.Y + (sh-cropH)/2
		crop = image.Rect(sb.Min.X, y0, sb.Max.X, y0+cropH)
	}

	xdraw.CatmullRom.Scale(canvas, canvas.Bounds(), src, crop, xdraw.Over, nil)
}

// drawContain letterboxes the source on the canvas, centered.
func drawContain(canvas *image.RGBA, src image.Image) {
	cw, ch := canvas.Bounds().Dx(), canvas.Bounds().Dy()
	sb := src.Bounds()
	sw, sh := float64(sb.Dx()), float64(sb.Dy())
	if sw <= 0 || sh <= 0 {
		return
	}

	scale := min(float64(cw)/sw, float64(ch)/sh)
	outW := int(sw * scale)
	outH := int(sh * scale)
	offsetX := (cw - outW) / 2
	offsetY := (ch - outH) / 2

	target := image.Rect(offsetX, offsetY, offsetX+outW, offsetY+outH)
	xdraw.CatmullRom.Scale(canvas, target, src, sb, xdraw.Over, nil)
}

// rasterizeSVG renders SVG data onto a transparent canvas, scaled to
// fit and centered, and encodes it as PNG.
func rasterizeSVG(svgData []byte, width, height int) ([]byte, error) {
	icon, err := oksvg.ReadIconStream(bytes.NewReader(svgData))
	if err != nil {
		return nil, err
	}

	// The SVG's native size
	w, h := icon.ViewBox.W, icon.ViewBox.H
	if w <= 0 || h <= 0 {
		w, h = float64(width), float64(height)
	}

	// Scale to fit the target while preserving aspect ratio
	scale := min(float64(width)/w, float64(height)/h)
	outW := int(w * scale)
	outH := int(h * scale)

	// Center the drawing in the output
	offsetX := (width - outW) / 2
	offsetY := (height - outH) / 2

	icon.SetTarget(float64(offsetX), float64(offsetY), float64(outW), float64(outH))

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	scanner := rasterx.NewScannerGV(width, height, img, img.Bounds())
	raster := rasterx.NewDasher(width, height, scanner)
	icon.Draw(raster, 1.0)

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func isSVG(data []byte, contentType string) bool {
	if strings.Contains(contentType, "svg") {
		return true
	}
	head := bytes.TrimSpace(data)
	if len(head) > 256 {
		head = head[:256]
	}
	return bytes.Contains(head, []byte("<svg"))
}
