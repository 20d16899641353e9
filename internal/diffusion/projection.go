package diffusion

import "math"

// SWEREF 99 TM (EPSG:3006) is a transverse mercator projection on the GRS80
// ellipsoid. The conversions below are the Gauss-Krüger series published by
// Lantmäteriet; they are accurate to well under a millimetre inside Sweden.

const (
	grs80Axis        = 6378137.0
	grs80Flattening  = 1.0 / 298.257222101
	swerefMeridian   = 15.0
	swerefScale      = 0.9996
	swerefFalseNorth = 0.0
	swerefFalseEast  = 500000.0
	degToRad         = math.Pi / 180
	radToDeg         = 180 / math.Pi
)

type gaussKruger struct {
	aRoof   float64
	lambda0 float64

	// forward
	a, b, c, d                 float64
	beta1, beta2, beta3, beta4 float64

	// inverse
	aStar, bStar, cStar, dStar     float64
	delta1, delta2, delta3, delta4 float64
}

var sweref99TM = newGaussKruger(grs80Axis, grs80Flattening, swerefMeridian)

func newGaussKruger(axis, flattening, meridian float64) gaussKruger {
	e2 := flattening * (2 - flattening)
	n := flattening / (2 - flattening)
	n2, n3, n4 := n*n, n*n*n, n*n*n*n
	e4, e6, e8 := e2*e2, e2*e2*e2, e2*e2*e2*e2

	return gaussKruger{
		aRoof:   axis / (1 + n) * (1 + n2/4 + n4/64),
		lambda0: meridian * degToRad,

		a: e2,
		b: (5*e4 - e6) / 6,
		c: (104*e6 - 45*e8) / 120,
		d: (1237 * e8) / 1260,

		beta1: n/2 - 2*n2/3 + 5*n3/16 + 41*n4/180,
		beta2: 13*n2/48 - 3*n3/5 + 557*n4/1440,
		beta3: 61*n3/240 - 103*n4/140,
		beta4: 49561 * n4 / 161280,

		aStar: e2 + e4 + e6 + e8,
		bStar: -(7*e4 + 17*e6 + 30*e8) / 6,
		cStar: (224*e6 + 889*e8) / 120,
		dStar: -(4279 * e8) / 1260,

		delta1: n/2 - 2*n2/3 + 37*n3/96 - n4/360,
		delta2: n2/48 + n3/15 - 437*n4/1440,
		delta3: 17*n3/480 - 37*n4/840,
		delta4: 4397 * n4 / 161280,
	}
}

// ToSweref99TM projects a WGS84 coordinate to SWEREF 99 TM easting (x) and
// northing (y) in meters.
func ToSweref99TM(lat, lon float64) (x, y float64) {
	g := sweref99TM
	phi := lat * degToRad
	lambda := lon * degToRad

	sinPhi, cosPhi := math.Sin(phi), math.Cos(phi)
	s2 := sinPhi * sinPhi
	phiStar := phi - sinPhi*cosPhi*(g.a+g.b*s2+g.c*s2*s2+g.d*s2*s2*s2)

	dl := lambda - g.lambda0
	xiP := math.Atan(math.Tan(phiStar) / math.Cos(dl))
	etaP := math.Atanh(math.Cos(phiStar) * math.Sin(dl))

	k := swerefScale * g.aRoof
	north := k*(xiP+
		g.beta1*math.Sin(2*xiP)*math.Cosh(2*etaP)+
		g.beta2*math.Sin(4*xiP)*math.Cosh(4*etaP)+
		g.beta3*math.Sin(6*xiP)*math.Cosh(6*etaP)+
		g.beta4*math.Sin(8*xiP)*math.Cosh(8*etaP)) + swerefFalseNorth
	east := k*(etaP+
		g.beta1*math.Cos(2*xiP)*math.Sinh(2*etaP)+
		g.beta2*math.Cos(4*xiP)*math.Sinh(4*etaP)+
		g.beta3*math.Cos(6*xiP)*math.Sinh(6*etaP)+
		g.beta4*math.Cos(8*xiP)*math.Sinh(8*etaP)) + swerefFalseEast

	return east, north
}

// FromSweref99TM converts SWEREF 99 TM easting (x) and northing (y) back to
// WGS84 latitude and longitude.
func FromSweref99TM(x, y float64) (lat, lon float64) {
	g := sweref99TM
	k := swerefScale * g.aRoof
	xi := (y - swerefFalseNorth) / k
	eta := (x - swerefFalseEast) / k

	xiP := xi -
		g.delta1*math.Sin(2*xi)*math.Cosh(2*eta) -
		g.delta2*math.Sin(4*xi)*math.Cosh(4*eta) -
		g.delta3*math.Sin(6*xi)*math.Cosh(6*eta) -
		g.delta4*math.Sin(8*xi)*math.Cosh(8*eta)
	etaP := eta -
		g.delta1*math.Cos(2*xi)*math.Sinh(2*eta) -
		g.delta2*math.Cos(4*xi)*math.Sinh(4*eta) -
		g.delta3*math.Cos(6*xi)*math.Sinh(6*eta) -
		g.delta4*math.Cos(8*xi)*math.Sinh(8*eta)

	phiStar := math.Asin(math.Sin(xiP) / math.Cosh(etaP))
	dl := math.Atan(math.Sinh(etaP) / math.Cos(xiP))

	sinPs, cosPs := math.Sin(phiStar), math.Cos(phiStar)
	s2 := sinPs * sinPs
	phi := phiStar + sinPs*cosPs*(g.aStar+g.bStar*s2+g.cStar*s2*s2+g.dStar*s2*s2*s2)

	return phi * radToDeg, (g.lambda0 + dl) * radToDeg
}
