// Package enhance prepares frames for the detector. Contrast applies
// contrast-limited adaptive histogram equalisation (CLAHE) to the luma of a
// frame, which lifts cars out of shadowed or washed-out parts of a lot.
package enhance

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
)

// Defaults match the equalisation the lot cameras were tuned against.
const (
	DefaultClipLimit = 3.0
	DefaultTiles     = 8
)

// Params configures Contrast.
type Params struct {
	// ClipLimit caps each histogram bin at ClipLimit times the mean bin
	// height of a tile. Lower values give a gentler result.
	ClipLimit float64
	// Tiles is the number of tiles along each axis.
	Tiles int
}

// DefaultParams returns the default clip limit and an 8x8 grid.
func DefaultParams() Params {
	return Params{ClipLimit: DefaultClipLimit, Tiles: DefaultTiles}
}

// Validate checks the parameters.
func (p Params) Validate() error {
	if p.ClipLimit <= 0 || math.IsNaN(p.ClipLimit) || math.IsInf(p.ClipLimit, 0) {
		return fmt.Errorf("contrast clip limit must be positive, got %v", p.ClipLimit)
	}
	if p.Tiles < 1 {
		return fmt.Errorf("contrast tiles must be >= 1, got %d", p.Tiles)
	}
	return nil
}

// Contrast equalises frames. The zero value is not usable; build one with
// NewContrast. It holds no per-frame state.
type Contrast struct {
	p Params
}

// NewContrast returns a Contrast for p.
func NewContrast(p Params) (*Contrast, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &Contrast{p: p}, nil
}

// Apply returns a new equalised image with the bounds of frame. Grayscale
// frames stay *image.Gray; everything else comes back as *image.RGBA with
// chroma preserved. frame itself is never modified.
func (c *Contrast) Apply(frame image.Image) image.Image {
	if frame == nil || frame.Bounds().Empty() {
		return frame
	}
	b := frame.Bounds()

	if g, ok := frame.(*image.Gray); ok {
		w, h := b.Dx(), b.Dy()
		luma := make([]uint8, w*h)
		for y := 0; y < h; y++ {
			copy(luma[y*w:(y+1)*w], g.Pix[y*g.Stride:y*g.Stride+w])
		}
		equalise(luma, w, h, c.p)
		out := image.NewGray(b)
		for y := 0; y < h; y++ {
			copy(out.Pix[y*out.Stride:y*out.Stride+w], luma[y*w:(y+1)*w])
		}
		return out
	}

	in, ok := frame.(*image.RGBA)
	if !ok {
		in = image.NewRGBA(b)
		draw.Draw(in, b, frame, b.Min, draw.Src)
	}

	w, h := b.Dx(), b.Dy()
	luma := make([]uint8, w*h)
	cb := make([]uint8, w*h)
	cr := make([]uint8, w*h)
	for y := 0; y < h; y++ {
		row := in.Pix[y*in.Stride:]
		for x := 0; x < w; x++ {
			px := row[4*x : 4*x+4]
			i := y*w + x
			luma[i], cb[i], cr[i] = color.RGBToYCbCr(px[0], px[1], px[2])
		}
	}

	equalise(luma, w, h, c.p)

	out := image.NewRGBA(b)
	for y := 0; y < h; y++ {
		src := in.Pix[y*in.Stride:]
		dst := out.Pix[y*out.Stride:]
		for x := 0; x < w; x++ {
			i := y*w + x
			r, g, bl := color.YCbCrToRGB(luma[i], cb[i], cr[i])
			a := src[4*x+3]
			// RGBA is alpha-premultiplied: no channel may exceed alpha.
			dst[4*x], dst[4*x+1], dst[4*x+2], dst[4*x+3] = min(r, a), min(g, a), min(bl, a), a
		}
	}
	return out
}

// equalise runs CLAHE over a w x h luma plane in place. Each tile gets a
// clipped-histogram lookup table; pixels blend the tables of the four
// nearest tile centres.
func equalise(luma []uint8, w, h int, p Params) {
	nx, ny := min(p.Tiles, w), min(p.Tiles, h)
	tw, th := float64(w)/float64(nx), float64(h)/float64(ny)

	luts := make([][256]uint8, nx*ny)
	for ty := 0; ty < ny; ty++ {
		for tx := 0; tx < nx; tx++ {
			x0, x1 := int(float64(tx)*tw), int(float64(tx+1)*tw)
			y0, y1 := int(float64(ty)*th), int(float64(ty+1)*th)
			if tx == nx-1 {
				x1 = w
			}
			if ty == ny-1 {
				y1 = h
			}
			luts[ty*nx+tx] = tileLUT(luma, w, x0, y0, x1, y1, p.ClipLimit)
		}
	}

	out := make([]uint8, len(luma))
	for y := 0; y < h; y++ {
		ya, yb, fy := neighbours(y, th, ny)
		for x := 0; x < w; x++ {
			xa, xb, fx := neighbours(x, tw, nx)
			v := luma[y*w+x]
			top := float64(luts[ya*nx+xa][v])*(1-fx) + float64(luts[ya*nx+xb][v])*fx
			bot := float64(luts[yb*nx+xa][v])*(1-fx) + float64(luts[yb*nx+xb][v])*fx
			out[y*w+x] = uint8(math.Round(top*(1-fy) + bot*fy))
		}
	}
	copy(luma, out)
}

// neighbours returns the two tiles whose centres bracket coordinate v and
// the weight of the second.
func neighbours(v int, size float64, n int) (a, b int, f float64) {
	t := (float64(v)+0.5)/size - 0.5
	if t <= 0 {
		return 0, 0, 0
	}
	if t >= float64(n-1) {
		return n - 1, n - 1, 0
	}
	a = int(t)
	return a, a + 1, t - float64(a)
}

func tileLUT(luma []uint8, stride, x0, y0, x1, y1 int, clipLimit float64) [256]uint8 {
	var hist [256]int
	for y := y0; y < y1; y++ {
		for _, v := range luma[y*stride+x0 : y*stride+x1] {
			hist[v]++
		}
	}
	area := (x1 - x0) * (y1 - y0)

	limit := max(int(clipLimit*float64(area)/256), 1)
	excess := 0
	for i, c := range hist {
		if c > limit {
			excess += c - limit
			hist[i] = limit
		}
	}
	share, rest := excess/256, excess%256
	for i := range hist {
		hist[i] += share
	}
	if rest > 0 {
		step := max(256/rest, 1)
		for i := 0; i < 256 && rest > 0; i += step {
			hist[i]++
			rest--
		}
	}

	var lut [256]uint8
	scale := 255 / float64(area)
	sum := 0
	for i, c := range hist {
		sum += c
		lut[i] = uint8(min(math.Round(float64(sum)*scale), 255))
	}
	return lut
}
