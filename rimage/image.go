// Package rimage holds the camera frame buffer and its file formats.
package rimage

import (
	"image"
	"image/color"

	"github.com/pkg/errors"
)

// ChannelOrder is the order of the three interleaved channels of a pixel.
type ChannelOrder int

const (
	// ChannelRGB stores red, green, blue.
	ChannelRGB ChannelOrder = iota
	// ChannelBGR stores blue, green, red, as OpenCV buffers do.
	ChannelBGR
)

func (o ChannelOrder) String() string {
	if o == ChannelBGR {
		return "bgr"
	}
	return "rgb"
}

// ParseChannelOrder maps "rgb" or "bgr" to a ChannelOrder.
func ParseChannelOrder(s string) (ChannelOrder, error) {
	switch s {
	case "rgb", "":
		return ChannelRGB, nil
	case "bgr":
		return ChannelBGR, nil
	default:
		return 0, errors.Errorf("unknown channel order %q", s)
	}
}

// Image is a width*height buffer of interleaved 3 byte pixels, row major.
// It implements draw.Image so it can be handed to any image encoder.
type Image struct {
	data          []uint8
	width, height int
	order         ChannelOrder
}

// NewImage returns a black image of the given size.
func NewImage(width, height int, order ChannelOrder) *Image {
	return &Image{
		data:   make([]uint8, width*height*3),
		width:  width,
		height: height,
		order:  order,
	}
}

// NewImageFromBuffer wraps raw interleaved pixel data without copying.
func NewImageFromBuffer(width, height int, order ChannelOrder, data []uint8) (*Image, error) {
	if width < 0 || height < 0 || len(data) != width*height*3 {
		return nil, errors.Errorf("buffer of %d bytes does not hold a %dx%d image", len(data), width, height)
	}
	return &Image{data: data, width: width, height: height, order: order}, nil
}

// NewImageFromStdImage copies any image.Image into a new buffer.
func NewImageFromStdImage(img image.Image, order ChannelOrder) *Image {
	bounds := img.Bounds()
	out := NewImage(bounds.Dx(), bounds.Dy(), order)
	for y := 0; y < out.height; y++ {
		for x := 0; x < out.width; x++ {
			out.Set(x, y, img.At(bounds.Min.X+x, bounds.Min.Y+y))
		}
	}
	return out
}

// ColorModel returns the RGBA model.
func (i *Image) ColorModel() color.Model {
	return color.RGBAModel
}

// Bounds is [0, width) x [0, height).
func (i *Image) Bounds() image.Rectangle {
	return image.Rect(0, 0, i.width, i.height)
}

// Width in pixels.
func (i *Image) Width() int {
	return i.width
}

// Height in pixels.
func (i *Image) Height() int {
	return i.height
}

// Order is the channel order of the underlying buffer.
func (i *Image) Order() ChannelOrder {
	return i.order
}

// Data returns the underlying buffer.
func (i *Image) Data() []uint8 {
	return i.data
}

// In reports whether (x, y) lies inside the image.
func (i *Image) In(x, y int) bool {
	return x >= 0 && y >= 0 && x < i.width && y < i.height
}

func (i *Image) kxy(x, y int) int {
	return ((y * i.width) + x) * 3
}

// Channels returns the raw triple at (x, y) in the buffer's own order.
func (i *Image) Channels(x, y int) (uint8, uint8, uint8) {
	k := i.kxy(x, y)
	return i.data[k], i.data[k+1], i.data[k+2]
}

// SetChannels writes a triple given in order at (x, y), reordering it to
// the buffer's channel order. Points outside the image are ignored.
func (i *Image) SetChannels(x, y int, order ChannelOrder, c0, c1, c2 uint8) {
	if !i.In(x, y) {
		return
	}
	if order != i.order {
		c0, c2 = c2, c0
	}
	k := i.kxy(x, y)
	i.data[k], i.data[k+1], i.data[k+2] = c0, c1, c2
}

// RGB returns the pixel at (x, y) as red, green, blue.
func (i *Image) RGB(x, y int) (uint8, uint8, uint8) {
	c0, c1, c2 := i.Channels(x, y)
	if i.order == ChannelBGR {
		return c2, c1, c0
	}
	return c0, c1, c2
}

// At implements image.Image.
func (i *Image) At(x, y int) color.Color {
	if !i.In(x, y) {
		return color.RGBA{}
	}
	r, g, b := i.RGB(x, y)
	return color.RGBA{R: r, G: g, B: b, A: 255}
}

// Set implements draw.Image. Alpha is dropped.
func (i *Image) Set(x, y int, c color.Color) {
	rgba, _ := color.RGBAModel.Convert(c).(color.RGBA)
	i.SetChannels(x, y, ChannelRGB, rgba.R, rgba.G, rgba.B)
}
