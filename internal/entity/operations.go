package entity

import (
	"fmt"
	"strconv"
)

// Operation names
const (
	OpGrayscale        = "grayscale"
	OpBlur             = "blur"
	OpRotate           = "rotate"
	OpResize           = "resize"
	OpRemoveBackground = "remove_background"
)

// Parameter ranges
const (
	MinBlurRadius = 1
	MaxBlurRadius = 50
	MinResizeDim  = 1
	MaxResizeDim  = 5000
)

// Resize modes
const (
	ResizeModeAspect = "maintain_aspect_ratio"
	ResizeModeFree   = "free"
)

// OperationSpec is a single named transformation with its parameters.
// Parameter values are kept as canonical decimal strings so that two
// callers sending the same value in different representations produce
// the same spec.
type OperationSpec struct {
	Name   string            `json:"name"`
	Params map[string]string `json:"params,omitempty"`
}

// IntParam returns a numeric parameter value, 0 if absent.
func (o OperationSpec) IntParam(name string) int {
	v, ok := o.Params[name]
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

// OperationSet is an ordered sequence of operations. Order is significant:
// resize-then-rotate is not rotate-then-resize.
type OperationSet []OperationSpec

// Validate checks every operation name and parameter range. It is called
// at the boundary, before fingerprinting or processing.
func (s OperationSet) Validate() error {
	if len(s) == 0 {
		return ErrNoOperations
	}

	for _, op := range s {
		switch op.Name {
		case OpGrayscale, OpRemoveBackground:
			if len(op.Params) != 0 {
				return fmt.Errorf("%s: %w", op.Name, ErrUnknownOperation)
			}
		case OpBlur:
			radius := op.IntParam("radius")
			if radius < MinBlurRadius || radius > MaxBlurRadius {
				return &ParamRangeError{
					Operation: OpBlur, Param: "radius", Value: radius,
					Min: MinBlurRadius, Max: MaxBlurRadius,
				}
			}
		case OpRotate:
			angle := op.IntParam("angle")
			if angle != 90 && angle != 180 && angle != 270 {
				return ErrInvalidAngle
			}
		case OpResize:
			if err := validateResize(op); err != nil {
				return err
			}
		default:
			return fmt.Errorf("%q: %w", op.Name, ErrUnknownOperation)
		}
	}

	return nil
}

func validateResize(op OperationSpec) error {
	mode := op.Params["type"]
	if mode != ResizeModeAspect && mode != ResizeModeFree {
		return ErrInvalidResizeMode
	}

	width := op.IntParam("width")
	height := op.IntParam("height")

	if mode == ResizeModeFree {
		// Both dimensions are used as given
		if width < MinResizeDim || width > MaxResizeDim {
			return &ParamRangeError{Operation: OpResize, Param: "width", Value: width,
				Min: MinResizeDim, Max: MaxResizeDim}
		}
		if height < MinResizeDim || height > MaxResizeDim {
			return &ParamRangeError{Operation: OpResize, Param: "height", Value: height,
				Min: MinResizeDim, Max: MaxResizeDim}
		}
		return nil
	}

	// maintain_aspect_ratio: one dimension may be 0, it is recomputed
	// from the source ratio
	if width == 0 && height == 0 {
		return &ParamRangeError{Operation: OpResize, Param: "width", Value: 0,
			Min: MinResizeDim, Max: MaxResizeDim}
	}
	if width != 0 && (width < MinResizeDim || width > MaxResizeDim) {
		return &ParamRangeError{Operation: OpResize, Param: "width", Value: width,
			Min: MinResizeDim, Max: MaxResizeDim}
	}
	if height != 0 && (height < MinResizeDim || height > MaxResizeDim) {
		return &ParamRangeError{Operation: OpResize, Param: "height", Value: height,
			Min: MinResizeDim, Max: MaxResizeDim}
	}
	return nil
}

// Names returns the operation names in pipeline order.
func (s OperationSet) Names() []string {
	names := make([]string, 0, len(s))
	for _, op := range s {
		names = append(names, op.Name)
	}
	return names
}

// BlurOption is the blur section of the transformations document.
type BlurOption struct {
	Apply  bool `json:"apply"`
	Radius int  `json:"radius"`
}

// RotateOption is the rotate section of the transformations document.
type RotateOption struct {
	Apply bool `json:"apply"`
	Angle int  `json:"angle"`
}

// ResizeOption is the resize section of the transformations document.
// With type maintain_aspect_ratio the width takes precedence: the height
// is recomputed from the source ratio, a mismatched height is ignored.
// The height is only honored when the width is absent or zero.
type ResizeOption struct {
	Apply  bool   `json:"apply"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Type   string `json:"type"`
}

// Transformations is the wire shape accepted by the transform endpoints.
// The pipeline order is the document order: grayscale, blur, rotate,
// resize, remove_background.
type Transformations struct {
	Grayscale        bool          `json:"grayscale"`
	Blur             *BlurOption   `json:"blur,omitempty"`
	Rotate           *RotateOption `json:"rotate,omitempty"`
	Resize           *ResizeOption `json:"resize,omitempty"`
	RemoveBackground bool          `json:"remove_background"`
}

// OperationSet converts the document into a validated ordered set.
func (t *Transformations) OperationSet() (OperationSet, error) {
	var set OperationSet

	if t.Grayscale {
		set = append(set, OperationSpec{Name: OpGrayscale})
	}
	if t.Blur != nil && t.Blur.Apply {
		set = append(set, OperationSpec{
			Name:   OpBlur,
			Params: map[string]string{"radius": strconv.Itoa(t.Blur.Radius)},
		})
	}
	if t.Rotate != nil && t.Rotate.Apply {
		set = append(set, OperationSpec{
			Name:   OpRotate,
			Params: map[string]string{"angle": strconv.Itoa(t.Rotate.Angle)},
		})
	}
	if t.Resize != nil && t.Resize.Apply {
		set = append(set, OperationSpec{
			Name: OpResize,
			Params: map[string]string{
				"width":  strconv.Itoa(t.Resize.Width),
				"height": strconv.Itoa(t.Resize.Height),
				"type":   t.Resize.Type,
			},
		})
	}
	if t.RemoveBackground {
		set = append(set, OperationSpec{Name: OpRemoveBackground})
	}

	if err := set.Validate(); err != nil {
		return nil, err
	}
	return set, nil
}

// TransformURLRequest is the JSON body of POST /images/transform-url:
// the source URL plus the transformation fields spread at top level.
type TransformURLRequest struct {
	URL string `json:"url" binding:"required"`
	Transformations
}
