// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import "image/color"

var grayBorder = color.Gray{Y: 192}

// heatColor maps a [0,1] intensity to a white-to-red gradient, the same
// shading idiom cmd/memheat uses for its load-latency cells
// (color.NRGBA{255, 0, 0, uint8(255*shade)}), but opaque over white
// rather than alpha-blended, since leakheat draws one flat row per
// instruction rather than stacked histogram cells.
func heatColor(intensity float64) color.Color {
	if intensity < 0 {
		intensity = 0
	}
	if intensity > 1 {
		intensity = 1
	}
	g := uint8(255 * (1 - intensity))
	return color.NRGBA{R: 255, G: g, B: g, A: 255}
}
