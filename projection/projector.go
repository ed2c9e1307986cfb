// Package projection maps range-scanner points into the pixel space of a
// rectified camera and draws them over a camera frame.
package projection

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/sensorsync/calibration"
	"go.viam.com/sensorsync/pointcloud"
	"go.viam.com/sensorsync/rimage"
	"go.viam.com/sensorsync/utils"
)

// Keys names the calibration entries used by the transform chain.
type Keys struct {
	// sensor frame to camera 0
	Rotation    string `json:"rotation"`
	Translation string `json:"translation"`
	// camera 0 to camera 2
	CameraRotation    string `json:"camera_rotation"`
	CameraTranslation string `json:"camera_translation"`

	Rectification string `json:"rectification"`
	Projection    string `json:"projection"`
}

// KITTIKeys are the names used by the KITTI raw calib_velo_to_cam.txt and
// calib_cam_to_cam.txt files for the left color camera.
var KITTIKeys = Keys{
	Rotation:          "R",
	Translation:       "T",
	CameraRotation:    "R_02",
	CameraTranslation: "T_02",
	Rectification:     "R_rect_02",
	Projection:        "P_rect_02",
}

// WithDefaults fills every empty key from KITTIKeys.
func (k Keys) WithDefaults() Keys {
	fill := func(v *string, def string) {
		if *v == "" {
			*v = def
		}
	}
	fill(&k.Rotation, KITTIKeys.Rotation)
	fill(&k.Translation, KITTIKeys.Translation)
	fill(&k.CameraRotation, KITTIKeys.CameraRotation)
	fill(&k.CameraTranslation, KITTIKeys.CameraTranslation)
	fill(&k.Rectification, KITTIKeys.Rectification)
	fill(&k.Projection, KITTIKeys.Projection)
	return k
}

// Projector holds the matrices of one calibration. It is read-only after
// construction and may be shared.
type Projector struct {
	veloToCam0R, cam0ToCam2R, rect *mat.Dense
	veloToCam0T, cam0ToCam2T       *mat.VecDense
	proj                           *mat.Dense
}

// Projection is the result of projecting a cloud: one pixel per point in
// front of the camera, index aligned with that point's intensity.
type Projection struct {
	Pixels      []r2.Point
	Intensities []float64
}

// Len returns the number of projected points.
func (p *Projection) Len() int {
	return len(p.Pixels)
}

// NewProjector reshapes the calibration values named by keys. Any missing key
// or wrongly sized value is a MalformedCalibration error.
func NewProjector(set *calibration.Set, keys Keys) (*Projector, error) {
	keys = keys.WithDefaults()
	var (
		p   Projector
		err error
	)
	if p.veloToCam0R, err = set.Matrix(keys.Rotation, 3, 3); err != nil {
		return nil, err
	}
	if p.veloToCam0T, err = set.Vector(keys.Translation, 3); err != nil {
		return nil, err
	}
	if p.cam0ToCam2R, err = set.Matrix(keys.CameraRotation, 3, 3); err != nil {
		return nil, err
	}
	if p.cam0ToCam2T, err = set.Vector(keys.CameraTranslation, 3); err != nil {
		return nil, err
	}
	if p.rect, err = set.Matrix(keys.Rectification, 3, 3); err != nil {
		return nil, err
	}
	if p.proj, err = set.Matrix(keys.Projection, 3, 4); err != nil {
		return nil, err
	}
	return &p, nil
}

func rigid(r *mat.Dense, t *mat.VecDense, p *mat.VecDense) *mat.VecDense {
	var out mat.VecDense
	out.MulVec(r, p)
	out.AddVec(&out, t)
	return &out
}

// camera2 moves a sensor frame point into the camera 2 frame.
func (p *Projector) camera2(pt r3.Vector) *mat.VecDense {
	cam0 := rigid(p.veloToCam0R, p.veloToCam0T, mat.NewVecDense(3, []float64{pt.X, pt.Y, pt.Z}))
	return rigid(p.cam0ToCam2R, p.cam0ToCam2T, cam0)
}

// pixel rectifies a camera 2 point and projects it onto the image plane.
func (p *Projector) pixel(cam2 *mat.VecDense) r2.Point {
	var rect mat.VecDense
	rect.MulVec(p.rect, cam2)
	hom := mat.NewVecDense(4, []float64{rect.AtVec(0), rect.AtVec(1), rect.AtVec(2), 1})
	var img mat.VecDense
	img.MulVec(p.proj, hom)
	return r2.Point{X: img.AtVec(0) / img.AtVec(2), Y: img.AtVec(1) / img.AtVec(2)}
}

// Project runs every point of pc through the transform chain. Points at or
// behind the camera 2 image plane (z <= 0) are dropped along with their
// intensity; the survivors keep their input order.
func (p *Projector) Project(pc *pointcloud.PointCloud) (*Projection, error) {
	if len(pc.Points) != len(pc.Intensities) {
		return nil, utils.NewShapeMismatchError("%d points but %d intensities", len(pc.Points), len(pc.Intensities))
	}
	out := &Projection{}
	visible := pc.Filter(func(_ int, pt r3.Vector, _ float64) bool {
		cam2 := p.camera2(pt)
		if cam2.AtVec(2) <= 0 {
			return false
		}
		out.Pixels = append(out.Pixels, p.pixel(cam2))
		return true
	})
	out.Intensities = visible.Intensities
	return out, nil
}

// IntensityToColor maps a reflectance in [0, 1] to a gray level, clamping
// values outside the range.
func IntensityToColor(intensity float64) uint8 {
	c := math.Round(intensity * 255)
	switch {
	case math.IsNaN(c) || c < 0:
		return 0
	case c > 255:
		return 255
	default:
		return uint8(c)
	}
}

// Overlay marks every projected point that falls inside img with a single
// pixel colored (255, 255, 255-color) in BGR order, where color comes from
// IntensityToColor. It returns how many points were drawn.
func Overlay(img *rimage.Image, proj *Projection) int {
	drawn := 0
	for i, px := range proj.Pixels {
		if math.IsNaN(px.X) || math.IsNaN(px.Y) {
			continue
		}
		if px.X < 0 || px.Y < 0 || px.X >= float64(img.Width()) || px.Y >= float64(img.Height()) {
			continue
		}
		c := IntensityToColor(proj.Intensities[i])
		img.SetChannels(int(px.X), int(px.Y), rimage.ChannelBGR, 255, 255, 255-c)
		drawn++
	}
	return drawn
}
