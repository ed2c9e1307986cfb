// Package pointcloud defines a range-scanner point cloud and the file formats
// it is read from and written to.
//
// Points and intensities are kept in parallel slices; index i of one always
// describes the same return as index i of the other.
package pointcloud

import (
	"github.com/golang/geo/r3"

	"go.viam.com/sensorsync/utils"
)

// PointCloud is an ordered set of 3D returns with one intensity (reflectance)
// per return.
type PointCloud struct {
	Points      []r3.Vector
	Intensities []float64
}

// New returns a point cloud over the given points and intensities, which must
// have equal length.
func New(points []r3.Vector, intensities []float64) (*PointCloud, error) {
	if len(points) != len(intensities) {
		return nil, utils.NewShapeMismatchError("%d points but %d intensities", len(points), len(intensities))
	}
	return &PointCloud{Points: points, Intensities: intensities}, nil
}

// NewWithPrealloc returns an empty point cloud with room for size points.
func NewWithPrealloc(size int) *PointCloud {
	return &PointCloud{
		Points:      make([]r3.Vector, 0, size),
		Intensities: make([]float64, 0, size),
	}
}

// Size returns the number of points in the cloud.
func (pc *PointCloud) Size() int {
	return len(pc.Points)
}

// Append adds one return to the end of the cloud.
func (pc *PointCloud) Append(p r3.Vector, intensity float64) {
	pc.Points = append(pc.Points, p)
	pc.Intensities = append(pc.Intensities, intensity)
}

// Filter returns a new cloud holding only the returns keep accepts, in their
// original order.
func (pc *PointCloud) Filter(keep func(i int, p r3.Vector, intensity float64) bool) *PointCloud {
	out := NewWithPrealloc(pc.Size())
	for i, p := range pc.Points {
		if keep(i, p, pc.Intensities[i]) {
			out.Append(p, pc.Intensities[i])
		}
	}
	return out
}
