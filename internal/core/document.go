package core

import (
	"image/draw"

	"golang.org/x/image/math/f64"
)

// DocumentSource loads documents. Render fidelity is the source's concern.
type DocumentSource interface {
	Open(path string) (Document, error)
}

type Document interface {
	PageCount() int
	Page(index int) (Page, error)
	// Render paints page index onto dst. m maps page space (points, origin
	// top-left) to dst pixel space.
	Render(index int, dst draw.Image, m f64.Aff3) error
	Close() error
}

// Translate and scale helpers for building page transforms.
func Affine(scale, tx, ty float64) f64.Aff3 {
	return f64.Aff3{
		scale, 0, tx,
		0, scale, ty,
	}
}

func Apply(m f64.Aff3, x, y float64) (float64, float64) {
	return m[0]*x + m[1]*y + m[2], m[3]*x + m[4]*y + m[5]
}
