package cloth

import (
	gomath "math"

	"github.com/Faultbox/skelmesh/pkg/math"
)

// DetectTeleport compares two successive root transforms. A distance
// strictly greater than distanceThreshold, or a rotation in degrees
// strictly greater than rotationThreshold, is a Teleport. Non-positive
// thresholds disable their check.
func DetectTeleport(prev, cur math.Transform, distanceThreshold, rotationThreshold float32) TeleportMode {
	if distanceThreshold > 0 && prev.Translation.Distance(cur.Translation) > distanceThreshold {
		return Teleport
	}
	if rotationThreshold > 0 {
		deg := prev.Rotation.AngleTo(cur.Rotation) * 180 / gomath.Pi
		if deg > rotationThreshold {
			return Teleport
		}
	}
	return None
}

func maxMode(a, b TeleportMode) TeleportMode {
	if a > b {
		return a
	}
	return b
}
