package head

import "testing"

func TestGammaTightensOnHighAcceptRate(t *testing.T) {
	g := NewGamma(1.0, 0.1, 10)
	for i := 0; i < 10; i++ {
		g.Observe(true) // 100% accept rate, far above theta=0.1
	}
	if got := g.Value(); got <= 1.0 {
		t.Errorf("expected gamma to rise above 1.0 (divide by <1 shrink factor) on high accept rate, got %v", got)
	}
}

func TestGammaRelaxesOnLowAcceptRate(t *testing.T) {
	g := NewGamma(1.0, 0.1, 10)
	for i := 0; i < 10; i++ {
		g.Observe(false) // 0% accept rate, below theta
	}
	if got := g.Value(); got >= 1.0 {
		t.Errorf("expected gamma to shrink (multiply by <1 shrink factor) on low accept rate, got %v", got)
	}
}

func TestGammaDoesNotAdjustBeforeWindowFills(t *testing.T) {
	g := NewGamma(1.0, 0.1, 10)
	for i := 0; i < 5; i++ {
		g.Observe(true)
	}
	if got := g.Value(); got != 1.0 {
		t.Errorf("expected no adjustment before window fills, got %v", got)
	}
}

func TestGammaShrinkAdaptsOnRepeatedTrend(t *testing.T) {
	g := NewGamma(100.0, 0.1, 4)
	initialShrink := g.shrink
	for round := 0; round < 3; round++ {
		for i := 0; i < 4; i++ {
			g.Observe(true)
		}
	}
	if g.shrink == initialShrink {
		t.Errorf("expected shrink factor to adapt after repeated same-direction trend")
	}
}
