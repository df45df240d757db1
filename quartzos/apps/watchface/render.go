package watchface

import (
	"image/color"
	"time"

	"tinygo.org/x/drivers"
	"tinygo.org/x/tinyfont"
	"tinygo.org/x/tinyfont/proggy"

	"quartz/hal"
)

var (
	colorBG = color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
	colorFG = color.RGBA{R: 0x11, G: 0x11, B: 0x11, A: 0xff}
)

func (t *Task) initFont() bool {
	t.face = &proggy.TinySZ8pt7b
	_, w := tinyfont.LineWidth(t.face, "0")
	return w > 0
}

func (t *Task) redraw(now time.Time) {
	d := newFBDisplay(t.fb)
	fg, bg := colorFG, colorBG
	if t.inverted {
		fg, bg = bg, fg
	}
	t.fb.ClearRGB(bg.R, bg.G, bg.B)

	layout := "15:04"
	if t.showSeconds {
		layout = "15:04:05"
	}
	w, _ := d.Size()
	t.writeCentered(d, now.Format(layout), w, 78, fg)
	t.writeCentered(d, now.Format("Mon 02 Jan"), w, 102, fg)

	if err := d.Display(); err != nil {
		t.log.Warning().Err(err).Log("watchface: present failed")
	}
}

func (t *Task) writeCentered(d *fbDisplay, s string, w, baseline int16, c color.RGBA) {
	_, lw := tinyfont.LineWidth(t.face, s)
	x := (w - int16(lw)) / 2
	if x < 0 {
		x = 0
	}
	tinyfont.WriteLine(d, t.face, x, baseline, s, c)
}

// fbDisplay adapts the HAL framebuffer to the displayer contract tinyfont
// draws against.
type fbDisplay struct {
	fb hal.Framebuffer
}

var _ drivers.Displayer = (*fbDisplay)(nil)

func newFBDisplay(fb hal.Framebuffer) *fbDisplay {
	return &fbDisplay{fb: fb}
}

func (d *fbDisplay) Size() (x, y int16) {
	return int16(d.fb.Width()), int16(d.fb.Height())
}

func (d *fbDisplay) SetPixel(x, y int16, c color.RGBA) {
	if d.fb.Format() != hal.PixelFormatRGB565 {
		return
	}
	buf := d.fb.Buffer()
	ix := int(x)
	iy := int(y)
	if ix < 0 || ix >= d.fb.Width() || iy < 0 || iy >= d.fb.Height() {
		return
	}

	pixel := rgb565From888(c.R, c.G, c.B)
	off := iy*d.fb.StrideBytes() + ix*2
	if off < 0 || off+1 >= len(buf) {
		return
	}
	buf[off] = byte(pixel)
	buf[off+1] = byte(pixel >> 8)
}

func (d *fbDisplay) Display() error {
	return d.fb.Present()
}

func rgb565From888(r, g, b uint8) uint16 {
	return uint16((uint16(r>>3)&0x1F)<<11 | (uint16(g>>2)&0x3F)<<5 | (uint16(b>>3) & 0x1F))
}
