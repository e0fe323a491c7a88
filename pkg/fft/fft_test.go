package fft

import (
	"math"
	"math/rand/v2"
	"testing"

	dspfft "github.com/mjibson/go-dsp/fft"

	"github.com/someone42/hardware-bitcoin-wallet-sub001/pkg/fixed"
)

func newTestEngine(t *testing.T, n int) (*Engine, *fixed.Env) {
	t.Helper()
	env := &fixed.Env{}
	e, err := New(n, env)
	if err != nil {
		t.Fatalf("New(%d): %v", n, err)
	}
	return e, env
}

func TestNewRejectsBadSizes(t *testing.T) {
	env := &fixed.Env{}
	for _, n := range []int{0, 1, 8, 100, 255, 257} {
		if _, err := New(n, env); err == nil {
			t.Errorf("New(%d) succeeded, want error", n)
		}
	}
	for _, n := range []int{16, 64, 256, 512} {
		if _, err := New(n, env); err != nil {
			t.Errorf("New(%d): %v", n, err)
		}
	}
}

func TestBitReverse(t *testing.T) {
	e, _ := newTestEngine(t, 256)
	tests := []struct{ in, want int }{
		{0, 0}, {1, 128}, {2, 64}, {128, 1}, {255, 255}, {0x12, 0x48},
	}
	for _, tt := range tests {
		if got := e.reverse(tt.in); got != tt.want {
			t.Errorf("reverse(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}

	// reverse must be an involution for every index
	e512, _ := newTestEngine(t, 512)
	for i := 0; i < 512; i++ {
		if got := e512.reverse(e512.reverse(i)); got != i {
			t.Fatalf("reverse(reverse(%d)) = %d", i, got)
		}
	}
}

func TestTwiddleOutOfRange(t *testing.T) {
	e, env := newTestEngine(t, 256)

	w := e.twiddle(257)
	if w != (fixed.Complex{}) {
		t.Errorf("out-of-range twiddle = %+v, want zero", w)
	}
	if !env.Overflow() {
		t.Error("out-of-range twiddle index must signal overflow")
	}

	env.Clear()
	if w := e.twiddle(-1); w != (fixed.Complex{}) || !env.Overflow() {
		t.Error("negative twiddle index must signal overflow and return zero")
	}
}

func TestTwiddleSymmetry(t *testing.T) {
	e, env := newTestEngine(t, 256)
	for idx := 0; idx <= 256; idx++ {
		w := e.twiddle(idx)
		phi := math.Pi * float64(idx) / 256
		if math.Abs(w.Re.Float()-math.Cos(phi)) > 2e-5 {
			t.Fatalf("twiddle(%d) cos = %v, want %v", idx, w.Re.Float(), math.Cos(phi))
		}
		if math.Abs(w.Im.Float()-math.Sin(phi)) > 2e-5 {
			t.Fatalf("twiddle(%d) sin = %v, want %v", idx, w.Im.Float(), math.Sin(phi))
		}
	}
	if env.Overflow() {
		t.Error("valid indices must not signal")
	}
}

func TestTransformZero(t *testing.T) {
	for _, inverse := range []bool{false, true} {
		e, env := newTestEngine(t, 256)
		buf := make([]fixed.Complex, 256)
		if failed := e.Transform(buf, inverse); failed {
			t.Fatalf("inverse=%v: unexpected arithmetic error", inverse)
		}
		for i, v := range buf {
			if v != (fixed.Complex{}) {
				t.Fatalf("inverse=%v: bin %d = %+v, want zero", inverse, i, v)
			}
		}
		if env.Overflow() {
			t.Errorf("inverse=%v: overflow on zero input", inverse)
		}
	}
}

func TestImpulseFlatSpectrum(t *testing.T) {
	e, _ := newTestEngine(t, 256)
	buf := make([]fixed.Complex, 256)
	buf[0].Re = fixed.FromFloat(0.25)

	if failed := e.Transform(buf, false); failed {
		t.Fatal("unexpected arithmetic error")
	}
	for i, v := range buf {
		if math.Abs(v.Re.Float()-0.25) > 1e-3 || math.Abs(v.Im.Float()) > 1e-3 {
			t.Fatalf("bin %d = (%v, %v), want (0.25, 0)", i, v.Re.Float(), v.Im.Float())
		}
	}
}

func TestConstantInputConcentratesInDC(t *testing.T) {
	e, _ := newTestEngine(t, 256)
	buf := make([]fixed.Complex, 256)
	for i := range buf {
		buf[i].Re = fixed.FromFloat(0.1)
	}

	if failed := e.Transform(buf, false); failed {
		t.Fatal("unexpected arithmetic error")
	}
	if got := buf[0].Re.Float(); math.Abs(got-25.6) > 0.01 {
		t.Errorf("DC bin = %v, want 25.6", got)
	}
	for i := 1; i < 256; i++ {
		if buf[i].Re.Abs().Float() > 5e-3 || buf[i].Im.Abs().Float() > 5e-3 {
			t.Fatalf("bin %d = (%v, %v), want ~0", i, buf[i].Re.Float(), buf[i].Im.Float())
		}
	}
}

func TestComplexExponentialPerBin(t *testing.T) {
	const n = 64
	const amp = 0.05

	for k := 0; k < n; k++ {
		e, env := newTestEngine(t, n)
		buf := make([]fixed.Complex, n)
		for m := range buf {
			phi := 2 * math.Pi * float64(k) * float64(m) / n
			buf[m] = fixed.Complex{
				Re: fixed.FromFloat(amp * math.Cos(phi)),
				Im: fixed.FromFloat(amp * math.Sin(phi)),
			}
		}

		if failed := e.Transform(buf, false); failed {
			t.Fatalf("k=%d: unexpected arithmetic error", k)
		}
		if env.Overflow() {
			t.Fatalf("k=%d: overflow", k)
		}

		for i := range buf {
			mag := math.Hypot(buf[i].Re.Float(), buf[i].Im.Float())
			if i == k {
				if math.Abs(mag-n*amp) > 0.02 {
					t.Fatalf("k=%d: energy at bin %d = %v, want %v", k, i, mag, float64(n)*amp)
				}
			} else if mag > 0.02 {
				t.Fatalf("k=%d: leakage at bin %d = %v", k, i, mag)
			}
		}
	}
}

func TestForwardInverseRoundTrip(t *testing.T) {
	const n = 256
	rng := rand.New(rand.NewPCG(7, 11))
	e, env := newTestEngine(t, n)

	orig := make([]fixed.Complex, n)
	for i := range orig {
		orig[i] = fixed.Complex{
			Re: fixed.FromFloat((rng.Float64() - 0.5) * 0.1),
			Im: fixed.FromFloat((rng.Float64() - 0.5) * 0.1),
		}
	}
	buf := make([]fixed.Complex, n)
	copy(buf, orig)

	if failed := e.Transform(buf, false); failed {
		t.Fatal("forward: unexpected arithmetic error")
	}
	if failed := e.Transform(buf, true); failed {
		t.Fatal("inverse: unexpected arithmetic error")
	}
	if env.Overflow() {
		t.Fatal("overflow during round trip")
	}

	for i := range buf {
		if math.Abs(buf[i].Re.Float()-orig[i].Re.Float()) > 2e-3 {
			t.Fatalf("bin %d re: got %v, want %v", i, buf[i].Re.Float(), orig[i].Re.Float())
		}
		if math.Abs(buf[i].Im.Float()-orig[i].Im.Float()) > 2e-3 {
			t.Fatalf("bin %d im: got %v, want %v", i, buf[i].Im.Float(), orig[i].Im.Float())
		}
	}
}

func TestLinearity(t *testing.T) {
	const n = 64
	rng := rand.New(rand.NewPCG(3, 5))
	a := fixed.FromFloat(0.5)
	b := fixed.FromFloat(0.25)
	env := &fixed.Env{}

	x := make([]fixed.Complex, n)
	y := make([]fixed.Complex, n)
	combined := make([]fixed.Complex, n)
	for i := range x {
		x[i] = fixed.Complex{
			Re: fixed.FromFloat((rng.Float64() - 0.5) * 0.2),
			Im: fixed.FromFloat((rng.Float64() - 0.5) * 0.2),
		}
		y[i] = fixed.Complex{
			Re: fixed.FromFloat((rng.Float64() - 0.5) * 0.2),
			Im: fixed.FromFloat((rng.Float64() - 0.5) * 0.2),
		}
		combined[i] = fixed.Complex{
			Re: env.Add(env.Mul(a, x[i].Re), env.Mul(b, y[i].Re)),
			Im: env.Add(env.Mul(a, x[i].Im), env.Mul(b, y[i].Im)),
		}
	}

	e, _ := newTestEngine(t, n)
	e.Transform(x, false)
	e.Transform(y, false)
	e.Transform(combined, false)
	if env.Overflow() {
		t.Fatal("overflow during linearity test")
	}

	for i := range combined {
		wantRe := env.Add(env.Mul(a, x[i].Re), env.Mul(b, y[i].Re))
		wantIm := env.Add(env.Mul(a, x[i].Im), env.Mul(b, y[i].Im))
		if math.Abs(combined[i].Re.Float()-wantRe.Float()) > 5e-3 {
			t.Fatalf("bin %d re: got %v, want %v", i, combined[i].Re.Float(), wantRe.Float())
		}
		if math.Abs(combined[i].Im.Float()-wantIm.Float()) > 5e-3 {
			t.Fatalf("bin %d im: got %v, want %v", i, combined[i].Im.Float(), wantIm.Float())
		}
	}
}

// TestRealSpectrumAgainstReference packs 2n real samples, runs the
// fixed-point forward path, and compares every bin against the
// floating-point reference FFT.
func TestRealSpectrumAgainstReference(t *testing.T) {
	const n = 256
	rng := rand.New(rand.NewPCG(17, 23))
	e, env := newTestEngine(t, n)

	samples := make([]float64, 2*n)
	for i := range samples {
		// keep inputs exactly representable in Q16.16
		samples[i] = fixed.FromFloat((rng.Float64() - 0.5) * 0.4).Float()
	}

	buf := make([]fixed.Complex, n+1)
	for i := 0; i < n; i++ {
		buf[i] = fixed.Complex{
			Re: fixed.FromFloat(samples[2*i]),
			Im: fixed.FromFloat(samples[2*i+1]),
		}
	}
	e.Transform(buf[:n], false)
	if failed := e.PostProcessReal(buf, false); failed {
		t.Fatal("unexpected arithmetic error")
	}
	if env.Overflow() {
		t.Fatal("overflow")
	}

	ref := dspfft.FFTReal(samples)
	for i := 0; i <= n; i++ {
		if d := math.Abs(buf[i].Re.Float() - real(ref[i])); d > 0.02 {
			t.Fatalf("bin %d re differs by %v", i, d)
		}
		if d := math.Abs(buf[i].Im.Float() - imag(ref[i])); d > 0.02 {
			t.Fatalf("bin %d im differs by %v", i, d)
		}
	}
}

// TestRealSpectrumEdgeBinsAreReal verifies the DC and Nyquist bins of
// a real signal's spectrum carry exactly zero imaginary parts.
func TestRealSpectrumEdgeBinsAreReal(t *testing.T) {
	const n = 128
	rng := rand.New(rand.NewPCG(29, 31))
	e, _ := newTestEngine(t, n)

	buf := make([]fixed.Complex, n+1)
	for i := 0; i < n; i++ {
		buf[i] = fixed.Complex{
			Re: fixed.FromFloat((rng.Float64() - 0.5) * 0.3),
			Im: fixed.FromFloat((rng.Float64() - 0.5) * 0.3),
		}
	}
	e.Transform(buf[:n], false)
	e.PostProcessReal(buf, false)

	if buf[0].Im != 0 {
		t.Errorf("DC bin imaginary part = %v, want exactly 0", buf[0].Im.Float())
	}
	if buf[n].Im != 0 {
		t.Errorf("Nyquist bin imaginary part = %v, want exactly 0", buf[n].Im.Float())
	}
}

// TestRealRoundTrip runs forward real FFT then the inverse real path
// and expects the original samples back within rounding tolerance.
func TestRealRoundTrip(t *testing.T) {
	const n = 256
	rng := rand.New(rand.NewPCG(41, 43))
	e, env := newTestEngine(t, n)

	orig := make([]float64, 2*n)
	for i := range orig {
		orig[i] = fixed.FromFloat((rng.Float64() - 0.5) * 0.2).Float()
	}

	buf := make([]fixed.Complex, n+1)
	for i := 0; i < n; i++ {
		buf[i] = fixed.Complex{
			Re: fixed.FromFloat(orig[2*i]),
			Im: fixed.FromFloat(orig[2*i+1]),
		}
	}

	e.Transform(buf[:n], false)
	e.PostProcessReal(buf, false)

	e.PostProcessReal(buf, true)
	e.Transform(buf[:n], true)
	if env.Overflow() {
		t.Fatal("overflow during real round trip")
	}

	for i := 0; i < n; i++ {
		if d := math.Abs(buf[i].Re.Float() - orig[2*i]); d > 3e-3 {
			t.Fatalf("sample %d differs by %v", 2*i, d)
		}
		if d := math.Abs(buf[i].Im.Float() - orig[2*i+1]); d > 3e-3 {
			t.Fatalf("sample %d differs by %v", 2*i+1, d)
		}
	}
}
