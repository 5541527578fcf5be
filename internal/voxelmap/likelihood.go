package voxelmap

import (
	"github.com/meridian-robotics/voxelslam/internal/geom"
)

// LikelihoodOptions tunes the Gaussian observation model used by
// PointCloudLikelihood.
type LikelihoodOptions struct {
	// SigmaDist is the standard deviation, in meters, of the Gaussian
	// point-to-map distance model.
	SigmaDist float64

	// MaxCorrDistance clamps the point-to-map distance, in meters, so every
	// ray contributes a bounded floor to the log-likelihood. Without it a
	// single outlier dominates the sum and downstream exponentiation
	// underflows.
	MaxCorrDistance float64

	// Decimation scores only one out of every N rays.
	Decimation uint32
}

// DefaultLikelihoodOptions returns the standard model parameters.
func DefaultLikelihoodOptions() LikelihoodOptions {
	return LikelihoodOptions{
		SigmaDist:       0.5,
		MaxCorrDistance: 1.0,
		Decimation:      10,
	}
}

// PointCloudLikelihood evaluates the unnormalized log-likelihood of a
// sensor point cloud observed from sensorPoseInMap under the current map.
// Each decimated ray is transformed into the map frame, matched to its
// nearest stored point within MaxNNRadius, and contributes
// -min(d², clamp²) / (2σ²); rays with no match contribute the clamped
// floor. Callers wanting a per-ray average divide by the number of scored
// rays themselves.
func (m *DualVoxelMap) PointCloudLikelihood(sensorPoseInMap geom.Pose, xs, ys, zs []float32) float64 {
	opts := m.LikelihoodOpts
	decim := int(opts.Decimation)
	if decim < 1 {
		decim = 1
	}
	clampSq := opts.MaxCorrDistance * opts.MaxCorrDistance
	invTwoSigmaSq := 1.0 / (2.0 * opts.SigmaDist * opts.SigmaDist)

	var logLik float64
	for i := 0; i < len(xs); i += decim {
		gx, gy, gz := sensorPoseInMap.ApplyF32(xs[i], ys[i], zs[i])
		dSq := clampSq
		if _, d, ok := m.NNFindNearest(Point{X: gx, Y: gy, Z: gz}); ok {
			if fd := float64(d); fd < clampSq {
				dSq = fd
			}
		}
		logLik += -dSq * invTwoSigmaSq
	}
	return logLik
}
