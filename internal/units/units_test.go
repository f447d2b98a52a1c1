package units

import (
	"math"
	"testing"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 0.01
}

func TestCToF(t *testing.T) {
	cases := []struct{ c, f float64 }{
		{0, 32},
		{100, 212},
		{-40, -40},
		{20, 68},
	}
	for _, tc := range cases {
		if got := CToF(tc.c); !almostEqual(got, tc.f) {
			t.Errorf("CToF(%v) = %v, want %v", tc.c, got, tc.f)
		}
	}
}

func TestGHCNConversions(t *testing.T) {
	// 250 tenths-C = 25C = 77F
	if got := TenthsCToF(250); !almostEqual(got, 77) {
		t.Errorf("TenthsCToF(250) = %v, want 77", got)
	}
	// 100 tenths-m/s = 10 m/s = 19.4384 kt
	if got := TenthsMsToKt(100); !almostEqual(got, 19.44) {
		t.Errorf("TenthsMsToKt(100) = %v, want 19.44", got)
	}
	// 254 tenths-mm = 25.4 mm = 1 inch
	if got := TenthsMmToIn(254); !almostEqual(got, 1) {
		t.Errorf("TenthsMmToIn(254) = %v, want 1", got)
	}
}

func TestMphToKt(t *testing.T) {
	if got := MphToKt(10); !almostEqual(got, 8.69) {
		t.Errorf("MphToKt(10) = %v, want 8.69", got)
	}
}

func TestDewpointFromTRH(t *testing.T) {
	// Saturated air: dewpoint equals temperature.
	if got := DewpointFromTRH(20, 100); !almostEqual(got, 20) {
		t.Errorf("DewpointFromTRH(20, 100) = %v, want 20", got)
	}
	// 20C at 50% RH is close to 9.3C.
	if got := DewpointFromTRH(20, 50); math.Abs(got-9.3) > 0.2 {
		t.Errorf("DewpointFromTRH(20, 50) = %v, want ~9.3", got)
	}
	if got := DewpointFromTRH(0, 80); got >= 0 {
		t.Errorf("DewpointFromTRH(0, 80) = %v, want below temperature", got)
	}
}

func TestCompassToDegrees(t *testing.T) {
	cases := []struct {
		dir  string
		want float64
	}{
		{"N", 0},
		{"E", 90},
		{"S", 180},
		{"W", 270},
		{"NNE", 22.5},
		{"NNW", 337.5},
	}
	for _, tc := range cases {
		got, err := CompassToDegrees(tc.dir)
		if err != nil {
			t.Errorf("CompassToDegrees(%q): %v", tc.dir, err)
			continue
		}
		if got != tc.want {
			t.Errorf("CompassToDegrees(%q) = %v, want %v", tc.dir, got, tc.want)
		}
	}

	if _, err := CompassToDegrees("UP"); err == nil {
		t.Error("expected error for unknown direction")
	}
}
