package tension

import (
	"testing"
)

type stubProfile struct{ dominant float64 }

func (s stubProfile) Dominant() float64 { return s.dominant }

func TestDirector_RisesMonotonicallyWithoutOvershoot(t *testing.T) {
	d := NewDirector(nil, 1, Params{})
	d.ModifyTension(0.5, "event_A")

	// The target itself moves as the impulse curve plays out, so the
	// overshoot bound is the highest target the smoother ever chased.
	prev := d.Current()
	maxTarget := 0.0
	for i := 0; i < 20; i++ {
		d.Tick(0.1)

		cur, target := d.Current(), d.Target()
		if target > maxTarget {
			maxTarget = target
		}
		if cur < target && cur < prev-1e-9 {
			t.Fatalf("tick %d: current fell from %v to %v while below target %v", i, prev, cur, target)
		}
		if cur > maxTarget+1e-9 {
			t.Fatalf("tick %d: current %v overshot the chased target %v", i, cur, maxTarget)
		}
		if cur < 0 || cur > 1 {
			t.Fatalf("tick %d: current %v out of range", i, cur)
		}
		prev = cur
	}

	if prev == 0 {
		t.Fatal("current never rose after a 0.5 impulse")
	}
}

func TestDirector_ZeroAmountIsLegal(t *testing.T) {
	d := NewDirector(nil, 1, Params{})
	d.ModifyTension(0, "nothing")
	d.Tick(0.1)

	if cur := d.Current(); cur != 0 {
		t.Fatalf("current = %v after zero impulse, want 0", cur)
	}
}

func TestDirector_SourceContributionClamped(t *testing.T) {
	d := NewDirector(nil, 1, Params{})
	d.ModifyTension(0.8, "dread")
	d.ModifyTension(0.8, "dread")

	if v := d.Sources()["dread"]; v > 1.0 {
		t.Fatalf("source contribution = %v, want <= 1.0", v)
	}

	d.ModifyTension(-1, "dread")
	d.ModifyTension(-1, "dread")
	if v, ok := d.Sources()["dread"]; ok && v < 0 {
		t.Fatalf("source contribution = %v, want >= 0", v)
	}
}

func TestDirector_ReliefLowersTarget(t *testing.T) {
	d := NewDirector(nil, 1, Params{})
	d.ModifyTension(0.9, "threat")
	for i := 0; i < 30; i++ {
		d.Tick(0.1)
	}
	before := d.Target()

	d.ModifyTension(-0.6, "threat")
	for i := 0; i < 30; i++ {
		d.Tick(0.1)
	}

	if after := d.Target(); after >= before {
		t.Fatalf("target after relief = %v, want below %v", after, before)
	}
}

func TestDirector_EventsExpire(t *testing.T) {
	d := NewDirector(nil, 1, Params{})
	d.ModifyTension(0.5, "blip")

	if n := d.ActiveEvents(); n != 1 {
		t.Fatalf("active events = %d, want 1", n)
	}
	for i := 0; i < 100; i++ {
		d.Tick(0.1)
	}
	if n := d.ActiveEvents(); n != 0 {
		t.Fatalf("active events after expiry = %d, want 0", n)
	}
}

func TestDirector_DominantTraitAmplifiesTarget(t *testing.T) {
	calm := NewDirector(stubProfile{dominant: 0}, 1, Params{})
	afraid := NewDirector(stubProfile{dominant: 1}, 1, Params{})

	calm.ModifyTension(0.4, "steps")
	afraid.ModifyTension(0.4, "steps")
	calm.Tick(0.1)
	afraid.Tick(0.1)

	if afraid.Target() <= calm.Target() {
		t.Fatalf("dominant trait did not amplify: afraid %v vs calm %v",
			afraid.Target(), calm.Target())
	}
}

func TestDirector_SchedulerAdaptsToTension(t *testing.T) {
	params := Params{MaxEventInterval: 10, MinEventInterval: 2}

	countFires := func(keepHot bool) (int, []Severity) {
		fired := 0
		var severities []Severity
		d := NewDirector(nil, 42, params)
		d.OnContentEvent = func(sev Severity, _ float64) {
			fired++
			severities = append(severities, sev)
		}
		for i := 0; i < 800; i++ {
			if keepHot {
				d.ModifyTension(1.0, "sustained")
			}
			d.Tick(0.1)
		}
		return fired, severities
	}

	calmFires, calmSevs := countFires(false)
	hotFires, hotSevs := countFires(true)

	if hotFires <= calmFires {
		t.Fatalf("high tension fired %d events, calm fired %d; want more under tension",
			hotFires, calmFires)
	}
	for _, sev := range calmSevs {
		if sev != SeveritySubtle {
			t.Fatalf("calm run produced severity %s, want subtle", sev)
		}
	}
	sawIntense := false
	for _, sev := range hotSevs {
		if sev == SeverityIntense {
			sawIntense = true
		}
	}
	if !sawIntense {
		t.Fatal("sustained high tension never produced an intense event")
	}
}

func TestDirector_PeaksCappedAndLatched(t *testing.T) {
	d := NewDirector(nil, 7, Params{})

	for spike := 0; spike < 6; spike++ {
		// Settle near zero so the rolling average flattens out.
		for i := 0; i < 300; i++ {
			d.Tick(0.1)
		}
		d.ModifyTension(1.0, "spike")
		for i := 0; i < 20; i++ {
			d.Tick(0.1)
		}
	}

	peaks := d.Peaks()
	if len(peaks) == 0 {
		t.Fatal("no peaks recorded after repeated spikes")
	}
	if len(peaks) > maxPeaks {
		t.Fatalf("peaks = %d, want <= %d", len(peaks), maxPeaks)
	}
}

func TestDirector_SinglePeakPerSpike(t *testing.T) {
	d := NewDirector(nil, 7, Params{})
	for i := 0; i < 300; i++ {
		d.Tick(0.1)
	}

	d.ModifyTension(1.0, "spike")
	for i := 0; i < 15; i++ {
		d.Tick(0.1)
	}

	if peaks := d.Peaks(); len(peaks) != 1 {
		t.Fatalf("one spike recorded %d peaks, want 1", len(peaks))
	}
}

func TestDirector_CallbackPanicsAreContained(t *testing.T) {
	d := NewDirector(nil, 3, Params{MaxEventInterval: 0.2, MinEventInterval: 0.1})
	d.OnContentEvent = func(Severity, float64) {
		panic("content pipeline exploded")
	}

	for i := 0; i < 50; i++ {
		d.Tick(0.1)
	}
}

func TestDirector_TickIgnoresNonPositiveDelta(t *testing.T) {
	d := NewDirector(nil, 1, Params{})
	d.ModifyTension(0.5, "x")
	d.Tick(0.1)
	before := d.Current()

	d.Tick(0)
	d.Tick(-5)

	if after := d.Current(); after != before {
		t.Fatalf("current changed from %v to %v on non-positive delta", before, after)
	}
}

func TestSeverityThresholds(t *testing.T) {
	cases := []struct {
		current float64
		want    Severity
	}{
		{0.0, SeveritySubtle},
		{0.44, SeveritySubtle},
		{0.45, SeverityModerate},
		{0.74, SeverityModerate},
		{0.75, SeverityIntense},
		{1.0, SeverityIntense},
	}
	for _, tc := range cases {
		if got := severityFor(tc.current); got != tc.want {
			t.Fatalf("severityFor(%v) = %s, want %s", tc.current, got, tc.want)
		}
	}
}

func TestCurve_Shapes(t *testing.T) {
	if v := CurveSpike.Value(0); v != 0 {
		t.Fatalf("spike at 0 = %v, want 0", v)
	}
	if v := CurveSpike.Value(0.2); v < 0.99 {
		t.Fatalf("spike at end of attack = %v, want ~1", v)
	}
	if v := CurveSpike.Value(1); v > 1e-9 {
		t.Fatalf("spike at 1 = %v, want 0", v)
	}
	// Halfway through its life the spike must still sit well above the
	// halfway point of its attack, or it would fade as fast as it rose.
	if CurveSpike.Value(0.5) <= CurveSpike.Value(0.1) {
		t.Fatal("spike releases faster than it attacks")
	}

	if v := CurveSoft.Value(0.5); v < 0.99 {
		t.Fatalf("soft midpoint = %v, want ~1", v)
	}
	if CurveSoft.Value(-1) != 0 || CurveSoft.Value(2) != CurveSoft.Value(1) {
		t.Fatal("curve does not clamp progress")
	}
}

func TestSmoothDamp_NoOvershoot(t *testing.T) {
	current, velocity := 0.0, 0.0
	for i := 0; i < 200; i++ {
		current, velocity = smoothDamp(current, 1.0, velocity, 0.5, 0.05)
		if current > 1.0 {
			t.Fatalf("step %d: overshot to %v", i, current)
		}
	}
	if current < 0.999 {
		t.Fatalf("never settled: %v", current)
	}
}
