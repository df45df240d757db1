//go:build !tinygo && cgo

package hal

import (
	"context"
	"image"

	"github.com/hajimehoshi/ebiten/v2"

	"quartz/internal/buildinfo"
)

// RunWindow opens a desktop window mirroring the framebuffer and feeding
// button edges. The OS runs on its own goroutines; the window only blits and
// polls. Blocks until the window closes or ctx ends.
func RunWindow(ctx context.Context, h HAL, scale int) error {
	hh := h.(*hostHAL)
	if scale <= 0 {
		scale = 2
	}

	g := &hostGame{ctx: ctx, h: hh}
	ebiten.SetWindowTitle("Quartz (" + buildinfo.Short() + ")")
	ebiten.SetWindowSize(hh.fb.width*scale, hh.fb.height*scale)
	ebiten.SetTPS(60)
	return ebiten.RunGame(g)
}

type hostGame struct {
	ctx     context.Context
	h       *hostHAL
	img     *image.RGBA
	fbImg   *ebiten.Image
	scratch []byte
}

func (g *hostGame) Update() error {
	if g.ctx.Err() != nil {
		return ebiten.Termination
	}
	g.h.btn.poll()
	return nil
}

func (g *hostGame) Draw(screen *ebiten.Image) {
	fb := g.h.fb
	if g.img == nil {
		g.img = image.NewRGBA(image.Rect(0, 0, fb.width, fb.height))
		g.scratch = make([]byte, len(fb.buf))
		g.fbImg = ebiten.NewImage(fb.width, fb.height)
	}

	fb.snapshotRGB565(g.scratch)

	src := g.scratch
	dst := g.img.Pix
	for i := 0; i+1 < len(src) && i/2*4+3 < len(dst); i += 2 {
		r, gg, b := rgb888From565(uint16(src[i]) | uint16(src[i+1])<<8)
		j := (i / 2) * 4
		dst[j+0] = r
		dst[j+1] = gg
		dst[j+2] = b
		dst[j+3] = 0xFF
	}

	g.fbImg.WritePixels(g.img.Pix)
	screen.DrawImage(g.fbImg, nil)
}

func (g *hostGame) Layout(outsideWidth, outsideHeight int) (int, int) {
	return g.h.fb.width, g.h.fb.height
}
