package bench

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"github.com/quantsmith/quantsmith/internal/engine"
	"golang.org/x/image/draw"
)

// LoadImageTensor decodes an image, resizes it to size×size and returns an
// NCHW 1×3×size×size tensor with RGB values normalized to [0,1].
func LoadImageTensor(path string, size int) (engine.Tensor, error) {
	f, err := os.Open(path)
	if err != nil {
		return engine.Tensor{}, err
	}
	defer f.Close()

	src, _, err := image.Decode(f)
	if err != nil {
		return engine.Tensor{}, fmt.Errorf("decode %s: %w", path, err)
	}

	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.BiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)

	return rgbaToTensor(dst, size), nil
}

func rgbaToTensor(img *image.RGBA, size int) engine.Tensor {
	plane := size * size
	data := make([]float32, 3*plane)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			off := img.PixOffset(x, y)
			i := y*size + x
			data[i] = float32(img.Pix[off]) / 255
			data[plane+i] = float32(img.Pix[off+1]) / 255
			data[2*plane+i] = float32(img.Pix[off+2]) / 255
		}
	}
	return engine.Tensor{
		Shape: inputShape(1, size),
		Data:  data,
	}
}

func inputShape(batch, size int) []int64 {
	return []int64{int64(batch), 3, int64(size), int64(size)}
}

// tileBatch repeats a single-image tensor along the batch axis
func tileBatch(t engine.Tensor, batch int) engine.Tensor {
	if batch <= 1 {
		return t
	}
	data := make([]float32, 0, batch*len(t.Data))
	for i := 0; i < batch; i++ {
		data = append(data, t.Data...)
	}
	shape := append([]int64{int64(batch)}, t.Shape[1:]...)
	return engine.Tensor{Shape: shape, Data: data}
}
