// Package collider implements the static and spacetime collision queries:
// point-in-keepout testing against fixed obstacles, and swept-polygon
// intersection between two animated positioners or a positioner and a
// fixed obstacle.
package collider

import (
	"math"

	"github.com/desi-focalplane/fpanticoll/pkg/coords"
)

// CollisionCase enumerates the possible outcomes of one collision query.
type CollisionCase int

const (
	// CaseNone ("I") means no intersection was found.
	CaseNone CollisionCase = iota
	CaseGFA
	CasePTL
	CaseArmArm     // "II": A's phi arm against B's phi arm
	CaseArmBodyA   // "IIIA": A's phi arm against B's central body
	CaseArmBodyB   // "IIIB": B's phi arm against A's central body
)

func (c CollisionCase) String() string {
	switch c {
	case CaseNone:
		return "I"
	case CaseGFA:
		return "GFA"
	case CasePTL:
		return "PTL"
	case CaseArmArm:
		return "II"
	case CaseArmBodyA:
		return "IIIA"
	case CaseArmBodyB:
		return "IIIB"
	default:
		return "unknown"
	}
}

// Sweep is the result of a spacetime collision query: the earliest sample
// time a collision was found (+Inf if none), and which case it was.
type Sweep struct {
	CollisionTime float64
	Case          CollisionCase
}

// NoCollision is the Sweep value meaning "no collision found in this sweep".
var NoCollision = Sweep{CollisionTime: math.Inf(1), Case: CaseNone}

// Pose is a positioner's posintTP at one instant, used as the input to a
// static collision query.
type Pose = coords.TP
