// Package convert provides pure unit conversions between hub-side and
// cloud-side value ranges.
//
// The hub and the cloud disagree on almost every scalar range: brightness is
// 0-255 on the hub but 50-1000 in the cloud, colour temperature is mireds
// (153-500, low = cold) on the hub but an inverted 0-1000 scale (0 = warm) in
// the cloud, and colour is RGB on the hub but HSV with non-standard ranges in
// the cloud. All converters here are pure functions with clamped outputs.
package convert

import "math"

// Hub-side range constants.
const (
	hubBrightnessMax = 255
	miredsMin        = 153
	miredsMax        = 500
)

// Cloud-side range constants.
const (
	cloudBrightnessMin = 50
	cloudBrightnessMax = 1000
	cloudTempMax       = 1000
	cloudValueMin      = 100
	cloudValueMax      = 1000
)

// BrightnessToCloud converts hub brightness (0-255) to cloud brightness (50-1000).
//
// Zero hub brightness maps to the cloud minimum of 50, full hub brightness
// to 1000, linearly in between.
func BrightnessToCloud(hub int) int {
	v := int(math.Round(cloudBrightnessMin + (float64(hub)/hubBrightnessMax)*(cloudBrightnessMax-cloudBrightnessMin)))
	return clamp(v, cloudBrightnessMin, cloudBrightnessMax)
}

// BrightnessToHub converts cloud brightness (50-1000) to hub brightness (0-255).
func BrightnessToHub(cloud int) int {
	v := int(math.Round((float64(cloud) - cloudBrightnessMin) / (cloudBrightnessMax - cloudBrightnessMin) * hubBrightnessMax))
	return clamp(v, 0, hubBrightnessMax)
}

// ColourTempToCloud converts hub colour temperature (mireds, 153-500) to the
// cloud scale (0-1000).
//
// The scales run in opposite directions: 153 mireds is the coldest the hub
// expresses and maps to 1000, 500 mireds is the warmest and maps to 0.
func ColourTempToCloud(mireds int) int {
	normalized := (float64(mireds) - miredsMin) / (miredsMax - miredsMin)
	v := int(math.Round((1.0 - normalized) * cloudTempMax))
	return clamp(v, 0, cloudTempMax)
}

// ColourTempToHub converts cloud colour temperature (0-1000) to hub mireds
// (153-500). Inverse direction of ColourTempToCloud.
func ColourTempToHub(cloud int) int {
	normalized := float64(cloud) / cloudTempMax
	v := int(math.Round(miredsMax - normalized*(miredsMax-miredsMin)))
	return clamp(v, miredsMin, miredsMax)
}

// HSVToRGB converts cloud HSV (h: 0-360, s: 0-1000, v: 100-1000) to
// hub RGB (0-255 per channel).
func HSVToRGB(h, s, v int) (r, g, b int) {
	hf := float64(h) / 360.0
	sf := float64(s) / 1000.0
	vf := float64(v) / 1000.0

	rf, gf, bf := hsvToRGB(hf, sf, vf)
	return int(math.Round(rf * 255)), int(math.Round(gf * 255)), int(math.Round(bf * 255))
}

// RGBToHSV converts hub RGB (0-255 per channel) to cloud HSV
// (h: 0-360, s: 0-1000, v: 100-1000). The value channel is clamped to the
// cloud's [100, 1000] range, so even black reports v=100.
func RGBToHSV(r, g, b int) (h, s, v int) {
	hf, sf, vf := rgbToHSV(float64(r)/255.0, float64(g)/255.0, float64(b)/255.0)

	h = int(math.Round(hf * 360))
	s = int(math.Round(sf * 1000))
	v = clamp(int(math.Round(vf*1000)), cloudValueMin, cloudValueMax)
	return h, s, v
}

// hsvToRGB converts normalised HSV (all 0.0-1.0) to normalised RGB.
func hsvToRGB(h, s, v float64) (r, g, b float64) {
	if s == 0 {
		return v, v, v
	}

	i := int(h * 6.0)
	f := h*6.0 - float64(i)
	p := v * (1.0 - s)
	q := v * (1.0 - s*f)
	t := v * (1.0 - s*(1.0-f))

	switch i % 6 {
	case 0:
		return v, t, p
	case 1:
		return q, v, p
	case 2:
		return p, v, t
	case 3:
		return p, q, v
	case 4:
		return t, p, v
	default:
		return v, p, q
	}
}

// rgbToHSV converts normalised RGB (all 0.0-1.0) to normalised HSV.
func rgbToHSV(r, g, b float64) (h, s, v float64) {
	maxc := math.Max(r, math.Max(g, b))
	minc := math.Min(r, math.Min(g, b))
	v = maxc
	if minc == maxc {
		return 0, 0, v
	}
	s = (maxc - minc) / maxc

	rc := (maxc - r) / (maxc - minc)
	gc := (maxc - g) / (maxc - minc)
	bc := (maxc - b) / (maxc - minc)

	switch maxc {
	case r:
		h = bc - gc
	case g:
		h = 2.0 + rc - bc
	default:
		h = 4.0 + gc - rc
	}
	h = h / 6.0
	h = h - math.Floor(h)
	return h, s, v
}

// clamp limits v to the inclusive range [lo, hi].
func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
