// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package fits

import (
	"strings"

	"github.com/astrogo/fitsio"

	"github.com/mlnoga/destripe/internal/coord"
)

// Keys written by the encoder itself, never copied between headers
var structuralKeys = map[string]bool{
	"SIMPLE": true, "XTENSION": true, "BITPIX": true, "NAXIS": true,
	"EXTEND": true, "PCOUNT": true, "GCOUNT": true, "END": true,
	"BZERO": true, "BSCALE": true, "EXTNAME": true, "EXTVER": true,
}

func isStructural(key string) bool {
	if structuralKeys[key] {
		return true
	}
	return strings.HasPrefix(key, "NAXIS")
}

// Returns the numeric value of a header card, and whether it was present
func headerFloat(h *fitsio.Header, key string) (float64, bool) {
	c := h.Get(key)
	if c == nil {
		return 0, false
	}
	switch v := c.Value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case int32:
		return float64(v), true
	}
	return 0, false
}

func headerString(h *fitsio.Header, key string) string {
	c := h.Get(key)
	if c == nil {
		return ""
	}
	if s, ok := c.Value.(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

// First numeric value among the given keys in any of the headers
func firstFloat(keys []string, hs ...*fitsio.Header) (float64, bool) {
	for _, h := range hs {
		if h == nil {
			continue
		}
		for _, k := range keys {
			if v, ok := headerFloat(h, k); ok {
				return v, true
			}
		}
	}
	return 0, false
}

// Parses the linear part of the world coordinate system, from a CD matrix or
// from PC matrix and CDELT. Returns nil if the reference keys are missing
func parseWCS(h *fitsio.Header) *coord.LinearWCS {
	w := &coord.LinearWCS{}
	var ok1, ok2, ok3, ok4 bool
	w.CRPix1, ok1 = headerFloat(h, "CRPIX1")
	w.CRPix2, ok2 = headerFloat(h, "CRPIX2")
	w.CRVal1, ok3 = headerFloat(h, "CRVAL1")
	w.CRVal2, ok4 = headerFloat(h, "CRVAL2")
	if !(ok1 && ok2 && ok3 && ok4) {
		return nil
	}

	if cd11, ok := headerFloat(h, "CD1_1"); ok {
		w.CD11 = cd11
		w.CD12, _ = headerFloat(h, "CD1_2")
		w.CD21, _ = headerFloat(h, "CD2_1")
		w.CD22, _ = headerFloat(h, "CD2_2")
		return w
	}

	cdelt1, ok1 := headerFloat(h, "CDELT1")
	cdelt2, ok2 := headerFloat(h, "CDELT2")
	if !ok1 || !ok2 {
		return nil
	}
	pc11, pc12, pc21, pc22 := 1.0, 0.0, 0.0, 1.0
	if v, ok := headerFloat(h, "PC1_1"); ok {
		pc11 = v
	}
	if v, ok := headerFloat(h, "PC1_2"); ok {
		pc12 = v
	}
	if v, ok := headerFloat(h, "PC2_1"); ok {
		pc21 = v
	}
	if v, ok := headerFloat(h, "PC2_2"); ok {
		pc22 = v
	}
	w.CD11, w.CD12 = cdelt1*pc11, cdelt1*pc12
	w.CD21, w.CD22 = cdelt2*pc21, cdelt2*pc22
	return w
}

// Cards of the world coordinate system in CD matrix form
func wcsCards(w *coord.LinearWCS) []fitsio.Card {
	if w == nil {
		return nil
	}
	return []fitsio.Card{
		{Name: "CTYPE1", Value: "RA---TAN"},
		{Name: "CTYPE2", Value: "DEC--TAN"},
		{Name: "CRPIX1", Value: w.CRPix1},
		{Name: "CRPIX2", Value: w.CRPix2},
		{Name: "CRVAL1", Value: w.CRVal1},
		{Name: "CRVAL2", Value: w.CRVal2},
		{Name: "CD1_1", Value: w.CD11},
		{Name: "CD1_2", Value: w.CD12},
		{Name: "CD2_1", Value: w.CD21},
		{Name: "CD2_2", Value: w.CD22},
	}
}

// Copies the non-structural cards of a header
func passThroughCards(h *fitsio.Header) []fitsio.Card {
	var res []fitsio.Card
	for _, k := range h.Keys() {
		if isStructural(k) || k == "" || k == "COMMENT" || k == "HISTORY" {
			continue
		}
		if c := h.Get(k); c != nil {
			res = append(res, *c)
		}
	}
	return res
}
