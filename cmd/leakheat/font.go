// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"image"
	"os"

	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
)

// labelMetrics measures label text for column-width layout using the
// same freetype.Context/font.Bounds technique cmd/memanim uses to size
// its panel label row (fontBounds := font.Bounds(fontCtx.PointToFixed(size))),
// repurposed for measurement rather than rasterization: leakheat's
// glyphs are emitted as SVG <text>, not drawn by freetype itself, but
// DrawString's returned pen position is still the width oracle.
type labelMetrics struct {
	font     *truetype.Font
	ctx      *freetype.Context
	size     float64
	ascentPx float64
}

// defaultFontPath mirrors cmd/memanim's hard-coded DejaVu path; there is
// no fontconfig equivalent in the standard library to discover one
// portably.
const defaultFontPath = "/usr/share/fonts/truetype/dejavu/DejaVuSans.ttf"

// newLabelMetrics loads defaultFontPath for measurement. If the font is
// unavailable, it falls back to a fixed per-character width estimate so
// layout degrades gracefully instead of failing the whole render.
func newLabelMetrics(size float64) *labelMetrics {
	data, err := os.ReadFile(defaultFontPath)
	if err != nil {
		return &labelMetrics{size: size, ascentPx: size * 0.8}
	}
	f, err := freetype.ParseFont(data)
	if err != nil {
		return &labelMetrics{size: size, ascentPx: size * 0.8}
	}

	ctx := freetype.NewContext()
	ctx.SetFont(f)
	ctx.SetFontSize(size)
	ctx.SetSrc(image.Black)
	scratch := image.NewNRGBA(image.Rect(0, 0, 1, 1))
	ctx.SetDst(scratch)
	ctx.SetClip(scratch.Bounds())

	bounds := f.Bounds(ctx.PointToFixed(size))
	m := &labelMetrics{font: f, ctx: ctx, size: size, ascentPx: float64(bounds.Max.Y) / 64}
	return m
}

// Width estimates text's rendered pixel width at the configured size by
// drawing it onto a throwaway 1x1 canvas and reading back the pen
// displacement freetype's DrawString reports.
func (m *labelMetrics) Width(text string) float64 {
	if m.font == nil {
		return float64(len(text)) * m.size * 0.6
	}
	start := freetype.Pt(0, 0)
	end, err := m.ctx.DrawString(text, start)
	if err != nil {
		return float64(len(text)) * m.size * 0.6
	}
	return float64(end.X-start.X) / 64
}

// Ascent returns the font's ascent in pixels at the configured size,
// for baseline placement.
func (m *labelMetrics) Ascent() float64 { return m.ascentPx }
