package processor

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"

	"github.com/disintegration/imaging"

	"github.com/HarshTuring/docklens/internal/entity"
)

// Result is the output of one pipeline run.
type Result struct {
	Data       []byte
	Format     string
	AppliedOps []string
	Width      int
	Height     int
}

// ImageProcessor applies an ordered operation set to image bytes. The
// pipeline is deterministic: the same input always produces byte-identical
// output.
type ImageProcessor interface {
	Apply(data []byte, ops entity.OperationSet) (*Result, error)
}

type imageProcessor struct {
	jpegQuality int
}

func NewImageProcessor() ImageProcessor {
	return &imageProcessor{jpegQuality: 90}
}

func (p *imageProcessor) Apply(data []byte, ops entity.OperationSet) (*Result, error) {
	if err := ops.Validate(); err != nil {
		return nil, err
	}

	img, format, err := decode(data)
	if err != nil {
		return nil, &entity.TransformError{
			Operation: "decode",
			Reason:    "corrupt image or unsupported format",
			Err:       err,
		}
	}

	// Операции выполняются строго по порядку, каждая берет результат предыдущей
	applied := make([]string, 0, len(ops))
	for _, op := range ops {
		switch op.Name {
		case entity.OpGrayscale:
			img = imaging.Grayscale(img)
		case entity.OpBlur:
			img = imaging.Blur(img, float64(op.IntParam("radius")))
		case entity.OpRotate:
			img = rotate(img, op.IntParam("angle"))
		case entity.OpResize:
			img = resize(img, op)
		case entity.OpRemoveBackground:
			img = removeBackground(img)
			// Прозрачность требует формата с альфа-каналом
			format = "png"
		default:
			return nil, &entity.TransformError{Operation: op.Name, Reason: "unknown operation"}
		}
		applied = append(applied, op.Name)
	}

	// GIF сохраняем как PNG: после обработки остается один кадр
	if format == "gif" {
		format = "png"
	}

	out, err := p.encode(img, format)
	if err != nil {
		return nil, &entity.TransformError{Operation: "encode", Reason: "could not encode output", Err: err}
	}

	bounds := img.Bounds()
	return &Result{
		Data:       out,
		Format:     format,
		AppliedOps: applied,
		Width:      bounds.Dx(),
		Height:     bounds.Dy(),
	}, nil
}

func decode(data []byte) (*image.NRGBA, string, error) {
	if len(data) == 0 {
		return nil, "", entity.ErrEmptyImage
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", err
	}

	switch format {
	case "jpeg", "png":
	case "gif":
		// Берем только первый кадр
		g, err := gif.DecodeAll(bytes.NewReader(data))
		if err != nil {
			return nil, "", err
		}
		if len(g.Image) == 0 {
			return nil, "", fmt.Errorf("no frames in GIF")
		}
		img = g.Image[0]
	default:
		return nil, "", entity.ErrInvalidImageType
	}

	return imaging.Clone(img), format, nil
}

// rotate applies a clockwise rotation; imaging rotates counter-clockwise,
// so 90 and 270 swap places.
func rotate(img *image.NRGBA, angle int) *image.NRGBA {
	switch angle {
	case 90:
		return imaging.Rotate270(img)
	case 180:
		return imaging.Rotate180(img)
	case 270:
		return imaging.Rotate90(img)
	}
	return img
}

// resize recomputes the second dimension from the source ratio in
// maintain_aspect_ratio mode; the width wins when both are given.
// Passing 0 to imaging.Resize preserves the aspect ratio.
func resize(img *image.NRGBA, op entity.OperationSpec) *image.NRGBA {
	width := op.IntParam("width")
	height := op.IntParam("height")

	if op.Params["type"] == entity.ResizeModeAspect {
		if width > 0 {
			return imaging.Resize(img, width, 0, imaging.Lanczos)
		}
		return imaging.Resize(img, 0, height, imaging.Lanczos)
	}

	return imaging.Resize(img, width, height, imaging.Lanczos)
}

// Background segmentation threshold: squared euclidean distance in RGB
// space between a pixel and the sampled border color.
const backgroundThreshold = 40 * 40 * 3

// removeBackground segments the background with a deterministic flood
// fill from the image borders: pixels connected to a border and close in
// color to the average border color become fully transparent. This is
// the slowest operation in the pipeline.
func removeBackground(img *image.NRGBA) *image.NRGBA {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w == 0 || h == 0 {
		return img
	}

	out := imaging.Clone(img)
	bg := averageBorderColor(out, w, h)

	visited := make([]bool, w*h)
	queue := make([][2]int, 0, 2*(w+h))

	push := func(x, y int) {
		idx := y*w + x
		if visited[idx] {
			return
		}
		visited[idx] = true
		if colorDistance(out.NRGBAAt(x, y), bg) <= backgroundThreshold {
			queue = append(queue, [2]int{x, y})
		}
	}

	for x := 0; x < w; x++ {
		push(x, 0)
		push(x, h-1)
	}
	for y := 0; y < h; y++ {
		push(0, y)
		push(w-1, y)
	}

	for len(queue) > 0 {
		px := queue[0]
		queue = queue[1:]
		x, y := px[0], px[1]

		c := out.NRGBAAt(x, y)
		c.A = 0
		out.SetNRGBA(x, y, c)

		for _, d := range [4][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}} {
			nx, ny := x+d[0], y+d[1]
			if nx < 0 || ny < 0 || nx >= w || ny >= h {
				continue
			}
			idx := ny*w + nx
			if visited[idx] {
				continue
			}
			visited[idx] = true
			if colorDistance(out.NRGBAAt(nx, ny), bg) <= backgroundThreshold {
				queue = append(queue, [2]int{nx, ny})
			}
		}
	}

	return out
}

func averageBorderColor(img *image.NRGBA, w, h int) color.NRGBA {
	var r, g, b, n uint64
	sample := func(x, y int) {
		c := img.NRGBAAt(x, y)
		r += uint64(c.R)
		g += uint64(c.G)
		b += uint64(c.B)
		n++
	}
	for x := 0; x < w; x++ {
		sample(x, 0)
		sample(x, h-1)
	}
	for y := 0; y < h; y++ {
		sample(0, y)
		sample(w-1, y)
	}
	return color.NRGBA{R: uint8(r / n), G: uint8(g / n), B: uint8(b / n), A: 255}
}

func colorDistance(a, b color.NRGBA) int {
	dr := int(a.R) - int(b.R)
	dg := int(a.G) - int(b.G)
	db := int(a.B) - int(b.B)
	return dr*dr + dg*dg + db*db
}

func (p *imageProcessor) encode(img image.Image, format string) ([]byte, error) {
	var buf bytes.Buffer
	var err error

	switch format {
	case "jpeg":
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: p.jpegQuality})
	case "png":
		err = png.Encode(&buf, img)
	default:
		err = png.Encode(&buf, img)
	}
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ContentType maps an output format to its MIME type.
func ContentType(format string) string {
	switch format {
	case "jpeg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "gif":
		return "image/gif"
	default:
		return "application/octet-stream"
	}
}
