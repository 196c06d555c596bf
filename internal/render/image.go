package render

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"

	_ "image/gif"
	_ "image/jpeg"

	xdraw "golang.org/x/image/draw"

	_ "golang.org/x/image/webp"
)

// enhancement factors applied when auto-enhance is on. Mild by intent;
// anything stronger is visible on photographic stills.
const (
	enhanceBrightness = 10   // additive, 8-bit channel units
	enhanceContrast   = 1.08 // multiplicative around mid-gray
	enhanceSaturation = 1.12
)

// PreprocessImage scales the source image into a width x height canvas with
// aspect-preserving letterboxing and writes the result as PNG to destPath.
// The padding color is the average of the source's edge pixels when smartPad
// is set, black otherwise.
func PreprocessImage(srcPath, destPath string, width, height int, smartPad, enhance bool) error {
	f, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("opening image %s: %w", srcPath, err)
	}
	defer f.Close()

	src, _, err := image.Decode(f)
	if err != nil {
		return fmt.Errorf("decoding image %s: %w", srcPath, err)
	}

	if enhance {
		src = enhanceImage(src)
	}

	// H.264 requires even frame dimensions.
	width, height = width&^1, height&^1

	pad := color.RGBA{A: 0xff}
	if smartPad {
		pad = averageEdgeColor(src)
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	xdraw.Draw(dst, dst.Bounds(), &image.Uniform{C: pad}, image.Point{}, xdraw.Src)

	fit := fitRect(src.Bounds(), width, height)
	xdraw.CatmullRom.Scale(dst, fit, src, src.Bounds(), xdraw.Over, nil)

	out, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("creating %s: %w", destPath, err)
	}
	defer out.Close()
	if err := png.Encode(out, dst); err != nil {
		return fmt.Errorf("encoding %s: %w", destPath, err)
	}
	return out.Close()
}

// fitRect centers the largest aspect-preserving scale of src inside a
// width x height canvas.
func fitRect(src image.Rectangle, width, height int) image.Rectangle {
	sw, sh := src.Dx(), src.Dy()
	if sw == 0 || sh == 0 {
		return image.Rect(0, 0, width, height)
	}
	w := width
	h := sh * width / sw
	if h > height {
		h = height
		w = sw * height / sh
	}
	x := (width - w) / 2
	y := (height - h) / 2
	return image.Rect(x, y, x+w, y+h)
}

// averageEdgeColor averages the pixels of the outermost rows and columns.
func averageEdgeColor(src image.Image) color.RGBA {
	b := src.Bounds()
	var r, g, bl, n uint64
	sample := func(x, y int) {
		cr, cg, cb, _ := src.At(x, y).RGBA()
		r += uint64(cr >> 8)
		g += uint64(cg >> 8)
		bl += uint64(cb >> 8)
		n++
	}
	for x := b.Min.X; x < b.Max.X; x++ {
		sample(x, b.Min.Y)
		sample(x, b.Max.Y-1)
	}
	for y := b.Min.Y + 1; y < b.Max.Y-1; y++ {
		sample(b.Min.X, y)
		sample(b.Max.X-1, y)
	}
	if n == 0 {
		return color.RGBA{A: 0xff}
	}
	return color.RGBA{
		R: uint8(r / n),
		G: uint8(g / n),
		B: uint8(bl / n),
		A: 0xff,
	}
}

// enhanceImage applies mild brightness, contrast, and saturation boosts.
func enhanceImage(src image.Image) image.Image {
	b := src.Bounds()
	dst := image.NewRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			cr, cg, cb, ca := src.At(x, y).RGBA()
			r := float64(cr >> 8)
			g := float64(cg >> 8)
			bl := float64(cb >> 8)

			// Saturation around the luma, then contrast around mid-gray,
			// then brightness.
			luma := 0.299*r + 0.587*g + 0.114*bl
			r = luma + (r-luma)*enhanceSaturation
			g = luma + (g-luma)*enhanceSaturation
			bl = luma + (bl-luma)*enhanceSaturation

			r = (r-128)*enhanceContrast + 128 + enhanceBrightness
			g = (g-128)*enhanceContrast + 128 + enhanceBrightness
			bl = (bl-128)*enhanceContrast + 128 + enhanceBrightness

			dst.SetRGBA(x, y, color.RGBA{
				R: clamp8(r),
				G: clamp8(g),
				B: clamp8(bl),
				A: uint8(ca >> 8),
			})
		}
	}
	return dst
}

func clamp8(v float64) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
