// Package imaging turns raw reader samples into grayscale images and encodes
// them for transport.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	"image/png"
	"io"
	"strings"

	_ "github.com/jtejido/go-wsq"
	"github.com/spakin/netpbm"
)

// Format is an output encoding for captured samples.
type Format string

const (
	FormatPNG Format = "png"
	FormatPGM Format = "pgm"
	FormatRaw Format = "raw"
)

var ErrUnsupportedDepth = errors.New("unsupported bit depth")

// ParseFormat accepts png, pgm or raw; empty means png.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatPNG, nil
	case FormatPNG, FormatPGM, FormatRaw:
		return f, nil
	}
	return "", fmt.Errorf("unsupported image format %q (want png, pgm or raw)", s)
}

// MimeType returns the content type of f.
func (f Format) MimeType() string {
	switch f {
	case FormatPNG:
		return "image/png"
	case FormatPGM:
		return "image/x-portable-graymap"
	}
	return "application/octet-stream"
}

// FromRaw wraps an 8-bit row-major pixel buffer as a gray image.
func FromRaw(data []byte, width, height, bpp uint32) (*image.Gray, error) {
	if bpp != 8 {
		return nil, fmt.Errorf("%w: %d bpp", ErrUnsupportedDepth, bpp)
	}
	if width == 0 || height == 0 {
		return nil, fmt.Errorf("empty image %dx%d", width, height)
	}
	need := int(width) * int(height)
	if len(data) < need {
		return nil, fmt.Errorf("short pixel buffer: have %d bytes, need %d", len(data), need)
	}
	pix := make([]byte, need)
	copy(pix, data[:need])
	return &image.Gray{Pix: pix, Stride: int(width), Rect: image.Rect(0, 0, int(width), int(height))}, nil
}

// Pixels returns img's pixels as a tight row-major buffer.
func Pixels(img *image.Gray) []byte {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	out := make([]byte, 0, w*h)
	for y := 0; y < h; y++ {
		off := img.PixOffset(b.Min.X, b.Min.Y+y)
		out = append(out, img.Pix[off:off+w]...)
	}
	return out
}

// Decode reads a PNG, JPEG, netpbm or WSQ image and converts it to gray.
func Decode(data []byte) (*image.Gray, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return ToGray(img), nil
}

// ToGray converts img, copying only when it is not already gray.
func ToGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		return g
	}
	b := img.Bounds()
	gray := image.NewGray(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			gray.Set(x, y, color.GrayModel.Convert(img.At(x, y)))
		}
	}
	return gray
}

// Encode writes img to w as f.
func Encode(w io.Writer, img *image.Gray, f Format) error {
	switch f {
	case FormatPNG, "":
		return png.Encode(w, img)
	case FormatPGM:
		return netpbm.Encode(w, img, &netpbm.EncodeOptions{
			Format:   netpbm.PGM,
			MaxValue: 255,
			Comments: []string{"kiosk-scanner capture"},
		})
	case FormatRaw:
		_, err := w.Write(Pixels(img))
		return err
	}
	return fmt.Errorf("unsupported image format %q", f)
}

// EncodeBytes is Encode into a new buffer.
func EncodeBytes(img *image.Gray, f Format) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, img, f); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
