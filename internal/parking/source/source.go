// Package source provides engine.FrameSource implementations that read
// frames from disk or synthesise them.
package source

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/banshee-data/parking.report/internal/parking/engine"
	"github.com/banshee-data/parking.report/internal/timeutil"
)

var imageExts = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true,
	".bmp": true, ".tif": true, ".tiff": true, ".webp": true,
}

// ImageDir replays the images in a directory in lexical file-name order.
// Frames are numbered from 1 and stamped with the clock as they are read.
type ImageDir struct {
	files []string
	next  int
	clock timeutil.Clock
}

// OpenImageDir lists dir. It fails when dir is unreadable or holds no
// supported images.
func OpenImageDir(dir string, clock timeutil.Clock) (*ImageDir, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read frames dir: %w", err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !imageExts[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no images in %s", dir)
	}
	sort.Strings(files)
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &ImageDir{files: files, clock: clock}, nil
}

// Len returns the number of frames in the directory.
func (d *ImageDir) Len() int { return len(d.files) }

// Next decodes the next image. After the last file it returns an error
// wrapping engine.ErrFrameUnavailable.
func (d *ImageDir) Next(ctx context.Context) (engine.Frame, error) {
	if err := ctx.Err(); err != nil {
		return engine.Frame{}, err
	}
	if d.next >= len(d.files) {
		return engine.Frame{}, fmt.Errorf("%w: end of %d frames", engine.ErrFrameUnavailable, len(d.files))
	}
	path := d.files[d.next]
	d.next++

	img, err := decodeFile(path)
	if err != nil {
		return engine.Frame{}, err
	}
	return engine.Frame{Seq: uint64(d.next), Timestamp: d.clock.Now(), Image: img}, nil
}

// Close implements engine.FrameSource.
func (d *ImageDir) Close() error {
	d.next = len(d.files)
	return nil
}

func decodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open frame: %w", err)
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return img, nil
}

// Blank yields frames without real pixels, for replaying recorded
// detections. When width and height are set each frame carries the same
// mid-gray image of that size so rectification still runs.
type Blank struct {
	n, seq int
	img    image.Image
	clock  timeutil.Clock
}

// NewBlank returns a source of n frames. n <= 0 means unbounded.
func NewBlank(n, width, height int, clock timeutil.Clock) *Blank {
	b := &Blank{n: n, clock: clock}
	if b.clock == nil {
		b.clock = timeutil.RealClock{}
	}
	if width > 0 && height > 0 {
		g := image.NewGray(image.Rect(0, 0, width, height))
		for i := range g.Pix {
			g.Pix[i] = 0x80
		}
		b.img = g
	}
	return b
}

// Next implements engine.FrameSource.
func (b *Blank) Next(ctx context.Context) (engine.Frame, error) {
	if err := ctx.Err(); err != nil {
		return engine.Frame{}, err
	}
	if b.n > 0 && b.seq >= b.n {
		return engine.Frame{}, engine.ErrFrameUnavailable
	}
	b.seq++
	return engine.Frame{Seq: uint64(b.seq), Timestamp: b.clock.Now(), Image: b.img}, nil
}

// Close implements engine.FrameSource.
func (b *Blank) Close() error { return nil }
