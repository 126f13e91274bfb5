package registry

import (
	"github.com/menta2k/mlserver/pkg/types"
)

// Payload is a prediction request. X and Y are optional mark coordinates in
// percent and must be given together.
type Payload struct {
	Source types.Source
	X      *int
	Y      *int
}

// Validate checks the source and the coordinate range
func (p Payload) Validate() error {
	hasPath := p.Source.Path != ""
	hasReader := p.Source.Reader != nil
	if !hasPath && !hasReader {
		return types.InputErrorf("an image file or image path is required")
	}
	if hasPath && hasReader {
		return types.InputErrorf("supply either an image file or an image path, not both")
	}

	if (p.X == nil) != (p.Y == nil) {
		return types.InputErrorf("x and y must be supplied together")
	}
	if err := checkPercent("x", p.X); err != nil {
		return err
	}
	return checkPercent("y", p.Y)
}

func checkPercent(axis string, v *int) error {
	if v != nil && (*v < 0 || *v > 100) {
		return types.InputErrorf("%s must be between 0 and 100, got %d", axis, *v)
	}
	return nil
}

// Point returns the mark point, or nil when no coordinates were supplied
func (p Payload) Point() *types.Point {
	if p.X == nil || p.Y == nil {
		return nil
	}
	return &types.Point{X: *p.X, Y: *p.Y}
}
