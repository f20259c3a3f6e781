package bridge

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	_ "image/gif"  // GIF decoder registration
	_ "image/jpeg" // JPEG decoder registration
	_ "image/png"  // PNG decoder registration
	"io/fs"
	"os"

	"github.com/ftrvxmtrx/tga"
	_ "golang.org/x/image/bmp" // BMP decoder registration
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff" // TIFF decoder registration
	_ "golang.org/x/image/webp" // WebP decoder registration

	"github.com/Faultbox/assetforge/pkg/texel"
)

// FileSource reads raw file contents. A missing file must be reported with
// an error matching fs.ErrNotExist.
type FileSource interface {
	ReadFile(path string) ([]byte, error)
}

// OSFiles reads straight from the filesystem.
type OSFiles struct{}

// ReadFile implements FileSource.
func (OSFiles) ReadFile(path string) ([]byte, error) { return os.ReadFile(path) }

// readCode maps a read failure to a result code.
func readCode(err error) Result {
	if errors.Is(err, fs.ErrNotExist) {
		return ErrorFileNotFound
	}
	return ErrorGeneric
}

// decodeImage decodes any registered image format, or TGA, to NRGBA and
// reports the number of meaningful channels (1 for gray, 3 for opaque color,
// 4 when any texel is translucent).
//
// TGA has no magic number, so it is only tried once the registered formats
// have all declined the data.
func decodeImage(data []byte) (*image.NRGBA, int, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if errors.Is(err, image.ErrFormat) {
		src, err = tga.Decode(bytes.NewReader(data))
	}
	if err != nil {
		return nil, 0, err
	}
	return toNRGBA(src), channelsOf(src), nil
}

func channelsOf(img image.Image) int {
	switch img.ColorModel() {
	case color.GrayModel, color.Gray16Model:
		return 1
	}
	if o, ok := img.(interface{ Opaque() bool }); ok && !o.Opaque() {
		return 4
	}
	return 3
}

func toNRGBA(src image.Image) *image.NRGBA {
	if n, ok := src.(*image.NRGBA); ok && n.Rect.Min == (image.Point{}) {
		return n
	}
	b := src.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	return dst
}

// copyNRGBA writes img into dst as RGBA32 texels.
func copyNRGBA(img *image.NRGBA, dst []texel.RGBA32) error {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	if len(dst) < w*h {
		return ErrorBufferTooSmall.Err("CopyTextureData")
	}
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+w*4]
		for x := 0; x < w; x++ {
			p := row[x*4 : x*4+4]
			dst[y*w+x] = texel.RGBA32{R: p[0], G: p[1], B: p[2], A: p[3]}
		}
	}
	return nil
}

// nrgbaTexels returns the texels of img in row-major order.
func nrgbaTexels(img *image.NRGBA) []texel.RGBA32 {
	out := make([]texel.RGBA32, img.Rect.Dx()*img.Rect.Dy())
	_ = copyNRGBA(img, out)
	return out
}
