package rimage

import (
	"encoding/binary"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"

	"go.viam.com/sensorsync/utils"
)

// binHeaderSize is the u32le width plus u32le height preceding the pixels.
const binHeaderSize = 8

// ParseBin decodes a raw camera frame: width, height, then width*height*3
// interleaved bytes stored in order. source names the data in errors.
func ParseBin(data []byte, order ChannelOrder, source string) (*Image, error) {
	if len(data) < binHeaderSize {
		return nil, utils.NewMalformedRecordError(source, "%d bytes is too short for an image header", len(data))
	}
	width := binary.LittleEndian.Uint32(data)
	height := binary.LittleEndian.Uint32(data[4:])
	pixels := data[binHeaderSize:]
	got := uint64(len(pixels))
	if area := uint64(width) * uint64(height); area > got/3 || area*3 != got {
		return nil, utils.NewMalformedRecordError(source,
			"%dx%d image needs %d pixels of 3 bytes, got %d bytes", width, height, area, got)
	}
	return NewImageFromBuffer(int(width), int(height), order, append([]uint8(nil), pixels...))
}

// ReadBin reads a raw camera frame from disk.
func ReadBin(path string, order ChannelOrder) (*Image, error) {
	//nolint:gosec
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, utils.NewResourceNotFoundError(path)
		}
		return nil, err
	}
	return ParseBin(data, order, path)
}

// ToBin encodes the image in the layout read by ParseBin.
func ToBin(img *Image) []byte {
	out := make([]byte, binHeaderSize+len(img.data))
	binary.LittleEndian.PutUint32(out, uint32(img.width))
	binary.LittleEndian.PutUint32(out[4:], uint32(img.height))
	copy(out[binHeaderSize:], img.data)
	return out
}

// ReadImageFromFile decodes a png or jpeg file into an RGB Image.
func ReadImageFromFile(path string) (*Image, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, utils.NewResourceNotFoundError(path)
	}
	img, err := imaging.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot decode image %q", path)
	}
	return NewImageFromStdImage(img, ChannelRGB), nil
}

// WriteImageToFile encodes img in the format implied by the extension of
// path, creating parent directories as needed.
func WriteImageToFile(path string, img *Image) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	return errors.Wrapf(imaging.Save(img, path), "cannot write image %q", path)
}
