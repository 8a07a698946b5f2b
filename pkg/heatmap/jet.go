package heatmap

import "github.com/cyclopcam/speedtrap/pkg/gen"

// Jet colour ramp: dark blue for the lowest value, through cyan, yellow,
// to dark red for the highest value.
var jetTable [256][3]uint8

func jetChannel(v float64) uint8 {
	v = gen.Clamp(v, 0, 1)
	return uint8(v*255 + 0.5)
}

func init() {
	for i := 0; i < 256; i++ {
		x := float64(i) / 255
		jetTable[i] = [3]uint8{
			jetChannel(1.5 - gen.Abs(4*x-3)),
			jetChannel(1.5 - gen.Abs(4*x-2)),
			jetChannel(1.5 - gen.Abs(4*x-1)),
		}
	}
}
