package utils

import (
	"math"
	"testing"
)

func TestClampFloat64(t *testing.T) {
	tests := []struct {
		value, min, max, expected float64
	}{
		{5.0, 0.0, 10.0, 5.0},
		{-1.0, 0.0, 10.0, 0.0},
		{11.0, 0.0, 10.0, 10.0},
		{0.0, 0.0, 10.0, 0.0},
		{10.0, 0.0, 10.0, 10.0},
	}

	for _, tt := range tests {
		result := ClampFloat64(tt.value, tt.min, tt.max)
		if result != tt.expected {
			t.Errorf("ClampFloat64(%f, %f, %f) = %f, expected %f", tt.value, tt.min, tt.max, result, tt.expected)
		}
	}
}

func TestMean(t *testing.T) {
	tests := []struct {
		values   []float64
		expected float64
	}{
		{[]float64{1, 2, 3, 4, 5}, 3.0},
		{[]float64{2.5}, 2.5},
		{[]float64{}, 0.0},
		{[]float64{-1, 1}, 0.0},
	}

	for _, tt := range tests {
		result := Mean(tt.values)
		if math.Abs(result-tt.expected) > 1e-12 {
			t.Errorf("Mean(%v) = %f, expected %f", tt.values, result, tt.expected)
		}
	}
}

func TestVarianceAndStdDev(t *testing.T) {
	values := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	wantVar := 4.0

	if got := Variance(values); math.Abs(got-wantVar) > 1e-12 {
		t.Errorf("Variance = %f, expected %f", got, wantVar)
	}
	if got := StdDev(values); math.Abs(got-2.0) > 1e-12 {
		t.Errorf("StdDev = %f, expected 2.0", got)
	}
	if got := Variance(nil); got != 0 {
		t.Errorf("Variance(nil) = %f, expected 0", got)
	}
}

func TestSquaredDistance(t *testing.T) {
	tests := []struct {
		a, b     []float64
		expected float64
	}{
		{[]float64{0, 0}, []float64{3, 4}, 25.0},
		{[]float64{1, 1, 1}, []float64{1, 1, 1}, 0.0},
		{[]float64{-1}, []float64{2}, 9.0},
	}

	for _, tt := range tests {
		result := SquaredDistance(tt.a, tt.b)
		if math.Abs(result-tt.expected) > 1e-12 {
			t.Errorf("SquaredDistance(%v, %v) = %f, expected %f", tt.a, tt.b, result, tt.expected)
		}
	}
}
