package entity

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestTransformationsOperationSet проверяет порядок и состав набора операций
func TestTransformationsOperationSet(t *testing.T) {
	doc := Transformations{
		Grayscale:        true,
		Blur:             &BlurOption{Apply: true, Radius: 5},
		Rotate:           &RotateOption{Apply: true, Angle: 90},
		Resize:           &ResizeOption{Apply: true, Width: 800, Height: 0, Type: ResizeModeAspect},
		RemoveBackground: true,
	}

	set, err := doc.OperationSet()
	require.NoError(t, err)

	assert.Equal(t, []string{
		OpGrayscale, OpBlur, OpRotate, OpResize, OpRemoveBackground,
	}, set.Names())
}

// TestTransformationsSkipsUnapplied: apply=false не попадает в набор
func TestTransformationsSkipsUnapplied(t *testing.T) {
	doc := Transformations{
		Grayscale: true,
		Blur:      &BlurOption{Apply: false, Radius: 5},
		Rotate:    &RotateOption{Apply: true, Angle: 180},
	}

	set, err := doc.OperationSet()
	require.NoError(t, err)

	assert.Equal(t, []string{OpGrayscale, OpRotate}, set.Names())
}

func TestTransformationsEmptyRejected(t *testing.T) {
	doc := Transformations{}

	set, err := doc.OperationSet()
	assert.ErrorIs(t, err, ErrNoOperations)
	assert.Nil(t, set)
}

// TestValidateBoundaries проверяет границы параметров операций
func TestValidateBoundaries(t *testing.T) {
	tests := []struct {
		name    string
		doc     Transformations
		wantErr bool
	}{
		{
			name:    "blur radius 0 rejected",
			doc:     Transformations{Blur: &BlurOption{Apply: true, Radius: 0}},
			wantErr: true,
		},
		{
			name: "blur radius 1 accepted",
			doc:  Transformations{Blur: &BlurOption{Apply: true, Radius: 1}},
		},
		{
			name: "blur radius 50 accepted",
			doc:  Transformations{Blur: &BlurOption{Apply: true, Radius: 50}},
		},
		{
			name:    "blur radius 51 rejected",
			doc:     Transformations{Blur: &BlurOption{Apply: true, Radius: 51}},
			wantErr: true,
		},
		{
			name: "resize width 5000 accepted",
			doc: Transformations{Resize: &ResizeOption{
				Apply: true, Width: 5000, Height: 100, Type: ResizeModeFree}},
		},
		{
			name: "resize width 5001 rejected",
			doc: Transformations{Resize: &ResizeOption{
				Apply: true, Width: 5001, Height: 100, Type: ResizeModeFree}},
			wantErr: true,
		},
		{
			name: "free mode requires both dimensions",
			doc: Transformations{Resize: &ResizeOption{
				Apply: true, Width: 800, Height: 0, Type: ResizeModeFree}},
			wantErr: true,
		},
		{
			name: "aspect mode allows zero height",
			doc: Transformations{Resize: &ResizeOption{
				Apply: true, Width: 800, Height: 0, Type: ResizeModeAspect}},
		},
		{
			name: "aspect mode allows zero width",
			doc: Transformations{Resize: &ResizeOption{
				Apply: true, Width: 0, Height: 600, Type: ResizeModeAspect}},
		},
		{
			name: "aspect mode rejects both zero",
			doc: Transformations{Resize: &ResizeOption{
				Apply: true, Width: 0, Height: 0, Type: ResizeModeAspect}},
			wantErr: true,
		},
		{
			name: "unknown resize mode rejected",
			doc: Transformations{Resize: &ResizeOption{
				Apply: true, Width: 800, Height: 600, Type: "stretch"}},
			wantErr: true,
		},
		{
			name:    "angle 45 rejected",
			doc:     Transformations{Rotate: &RotateOption{Apply: true, Angle: 45}},
			wantErr: true,
		},
		{
			name: "angle 270 accepted",
			doc:  Transformations{Rotate: &RotateOption{Apply: true, Angle: 270}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.doc.OperationSet()

			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateUnknownOperation(t *testing.T) {
	set := OperationSet{{Name: "sepia"}}
	assert.ErrorIs(t, set.Validate(), ErrUnknownOperation)
}

// TestTransformationsWireFormat парсит документ в том виде, в котором его
// шлет клиент
func TestTransformationsWireFormat(t *testing.T) {
	raw := `{
		"grayscale": true,
		"blur": {"apply": true, "radius": 5},
		"rotate": {"apply": false, "angle": 90},
		"resize": {"apply": true, "width": 800, "height": 0, "type": "maintain_aspect_ratio"},
		"remove_background": false
	}`

	var doc Transformations
	require.NoError(t, json.Unmarshal([]byte(raw), &doc))

	set, err := doc.OperationSet()
	require.NoError(t, err)
	assert.Equal(t, []string{OpGrayscale, OpBlur, OpResize}, set.Names())
}
