package imagery

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
)

// Per-resolution geometry: arc minutes of latitude per bin row, arc
// minutes of longitude per bin column, and blocks per revolution.
// Index is the FIS-B scale factor (high 0, medium 1, low 2).
var resTable = [3]struct {
	latPerBin    float64
	longPerBin   float64
	blocksPerRev int
}{
	{1.0, 1.5, 450},
	{5.0, 7.5, 90},
	{9.0, 13.5, 50},
}

const (
	cornerUL = iota
	cornerLL
	cornerUR
	cornerLR
)

func splitBinNum(binNum int) (latBin, longBin int) {
	latBin = binNum / 1000
	return latBin, binNum - latBin*1000
}

// binCorner returns the latitude and longitude in degrees of one
// corner of a block.
func binCorner(latBin, longBin, corner, res int) (lat, lon float64) {
	pLong := (resTable[res].blocksPerRev - longBin) * 32
	pLat := (latBin + 1) * 4

	if corner == cornerLL || corner == cornerLR {
		pLat -= 4
	}
	if corner == cornerUR || corner == cornerLR {
		pLong -= 32
	}

	lat = float64(pLat) * resTable[res].latPerBin / 60.0
	lon = -(float64(pLong) * resTable[res].longPerBin / 60.0)
	return lat, lon
}

// boundingBox returns the [UL, LL, UR, LR] corners in (lat, lon)
// degrees for the block extent.
func boundingBox(maxLatBin, minLatBin, maxLongBin, minLongBin, res int) [][]float64 {
	corners := make([][]float64, 0, 4)
	for _, c := range []struct{ latBin, longBin, corner int }{
		{maxLatBin, minLongBin, cornerUL},
		{minLatBin, minLongBin, cornerLL},
		{maxLatBin, maxLongBin, cornerUR},
		{minLatBin, maxLongBin, cornerLR},
	} {
		lat, lon := binCorner(c.latBin, c.longBin, c.corner, res)
		corners = append(corners, []float64{lat, lon})
	}
	return corners
}

// extent describes the pixel grid covering a set of blocks.
type extent struct {
	maxLatBin  int
	minLatBin  int
	maxLongBin int
	minLongBin int
	width      int
	height     int
	bbox       [][]float64
}

func computeExtent(bins map[int]binEntry, res int) extent {
	e := extent{minLatBin: 5000, minLongBin: 5000, maxLatBin: -1, maxLongBin: -1}
	for binNum := range bins {
		latBin, longBin := splitBinNum(binNum)
		e.minLatBin = min(latBin, e.minLatBin)
		e.minLongBin = min(longBin, e.minLongBin)
		e.maxLatBin = max(latBin, e.maxLatBin)
		e.maxLongBin = max(longBin, e.maxLongBin)
	}
	// Each block paints 4 rows by 32 columns of pixels.
	e.width = (e.maxLongBin - e.minLongBin + 1) * 32
	e.height = (e.maxLatBin - e.minLatBin + 1) * 4
	e.bbox = boundingBox(e.maxLatBin, e.minLatBin, e.maxLongBin, e.minLongBin, res)
	return e
}

func paletteColor(e PaletteEntry) color.NRGBA {
	return color.NRGBA{
		R: uint8(e.RGB >> 16),
		G: uint8(e.RGB >> 8),
		B: uint8(e.RGB),
		A: e.Alpha,
	}
}

// renderImage paints the blocks onto a canvas pre-filled with the
// palette's not-included color.
func renderImage(bins map[int]binEntry, ext extent, pal Palette, extract func(byte) int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, ext.width, ext.height))
	notIncluded := paletteColor(pal[255])
	for y := 0; y < ext.height; y++ {
		for x := 0; x < ext.width; x++ {
			img.SetNRGBA(x, y, notIncluded)
		}
	}

	for binNum, entry := range bins {
		latBin, longBin := splitBinNum(binNum)
		x0 := (longBin - ext.minLongBin) * 32
		y0 := (ext.maxLatBin - latBin) * 4
		idx := 0
		for y := y0; y < y0+4; y++ {
			for x := x0; x < x0+32; x++ {
				img.SetNRGBA(x, y, paletteColor(pal[extract(entry.bins[idx])]))
				idx++
			}
		}
	}
	return img
}

// scaleBilinear doubles the image in both directions with bilinear
// interpolation.
func scaleBilinear(src *image.NRGBA) *image.NRGBA {
	sw, sh := src.Rect.Dx(), src.Rect.Dy()
	dw, dh := sw*2, sh*2
	dst := image.NewNRGBA(image.Rect(0, 0, dw, dh))

	for y := 0; y < dh; y++ {
		fy := (float64(y)+0.5)/2 - 0.5
		y0 := int(fy)
		if fy < 0 {
			y0, fy = 0, 0
		}
		y1 := min(y0+1, sh-1)
		wy := fy - float64(y0)
		for x := 0; x < dw; x++ {
			fx := (float64(x)+0.5)/2 - 0.5
			x0 := int(fx)
			if fx < 0 {
				x0, fx = 0, 0
			}
			x1 := min(x0+1, sw-1)
			wx := fx - float64(x0)

			c00 := src.NRGBAAt(x0, y0)
			c10 := src.NRGBAAt(x1, y0)
			c01 := src.NRGBAAt(x0, y1)
			c11 := src.NRGBAAt(x1, y1)
			blend := func(a, b, c, d uint8) uint8 {
				top := float64(a)*(1-wx) + float64(b)*wx
				bot := float64(c)*(1-wx) + float64(d)*wx
				return uint8(top*(1-wy) + bot*wy + 0.5)
			}
			dst.SetNRGBA(x, y, color.NRGBA{
				R: blend(c00.R, c10.R, c01.R, c11.R),
				G: blend(c00.G, c10.G, c01.G, c11.G),
				B: blend(c00.B, c10.B, c01.B, c11.B),
				A: blend(c00.A, c10.A, c01.A, c11.A),
			})
		}
	}
	return dst
}

// writeImageFiles writes the PNG and its world file atomically.
func writeImageFiles(path string, img *image.NRGBA, ext extent) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		return err
	}
	return writeWorldFile(path, img, ext)
}

// writeWorldFile writes the ESRI world file carrying the geographic
// transform for the rendered PNG.
func writeWorldFile(path string, img *image.NRGBA, ext extent) error {
	xMin := ext.bbox[cornerUL][1]
	xMax := ext.bbox[cornerUR][1]
	yMax := ext.bbox[cornerUR][0]
	yMin := ext.bbox[cornerLL][0]

	w, h := img.Rect.Dx(), img.Rect.Dy()
	xRes := (xMax - xMin) / float64(w)
	yRes := (yMax - yMin) / float64(h)

	content := fmt.Sprintf("%.10f\n0.0\n0.0\n%.10f\n%.10f\n%.10f\n",
		xRes, -yRes, xMin+xRes/2, yMax-yRes/2)

	worldPath := strings.TrimSuffix(path, filepath.Ext(path)) + ".pgw"
	return os.WriteFile(worldPath, []byte(content), 0o644)
}
