package vectors

import (
	"bytes"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/someone42/hardware-bitcoin-wallet-sub001/pkg/fixed"
)

func TestWriteValuesLittleEndian(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteValues(&buf, []fixed.Value{fixed.FromInt(1)}); err != nil {
		t.Fatal(err)
	}
	want := []byte{0x00, 0x00, 0x01, 0x00}
	if !bytes.Equal(buf.Bytes(), want) {
		t.Errorf("serialized bytes = %x, want %x", buf.Bytes(), want)
	}
}

func TestValuesRoundTrip(t *testing.T) {
	vals := []fixed.Value{0, fixed.FromInt(-3), fixed.FromFloat(0.125), fixed.Sentinel, fixed.One}
	var buf bytes.Buffer
	if err := WriteValues(&buf, vals); err != nil {
		t.Fatal(err)
	}

	got, err := ReadValues(&buf, len(vals))
	if err != nil {
		t.Fatal(err)
	}
	for i := range vals {
		if got[i] != vals[i] {
			t.Errorf("value %d: got %d, want %d", i, got[i], vals[i])
		}
	}
}

func TestReadValuesShortInput(t *testing.T) {
	if _, err := ReadValues(bytes.NewReader([]byte{1, 2, 3}), 1); err == nil {
		t.Error("truncated input accepted")
	}
}

func TestBlockYAMLRoundTrip(t *testing.T) {
	b := &Block{
		FFTSize: 64,
		Cases: []Case{
			{Name: "a", Input: []float64{0.25, -0.5}, Expected: []float64{1, 0}},
			{Name: "b", Input: []float64{0, 0}, Expected: []float64{0, 0}},
		},
	}

	var buf bytes.Buffer
	if err := Save(&buf, b); err != nil {
		t.Fatal(err)
	}
	got, err := Load(&buf)
	if err != nil {
		t.Fatal(err)
	}

	if got.FFTSize != b.FFTSize || len(got.Cases) != len(b.Cases) {
		t.Fatalf("block shape changed: %+v", got)
	}
	for i := range b.Cases {
		if got.Cases[i].Name != b.Cases[i].Name {
			t.Errorf("case %d name = %q", i, got.Cases[i].Name)
		}
		for j := range b.Cases[i].Input {
			if got.Cases[i].Input[j] != b.Cases[i].Input[j] {
				t.Errorf("case %d input %d = %v", i, j, got.Cases[i].Input[j])
			}
		}
	}
}

func TestLoadRejectsGarbage(t *testing.T) {
	if _, err := Load(bytes.NewReader([]byte("{not yaml: ["))); err == nil {
		t.Error("malformed block accepted")
	}
}

func TestReferenceSpectrumImpulse(t *testing.T) {
	input := make([]float64, 128)
	input[0] = 0.25

	spec := ReferenceSpectrum(input)
	if len(spec) != 2*(64+1) {
		t.Fatalf("spectrum length = %d, want %d", len(spec), 2*65)
	}
	for i := 0; i < len(spec); i += 2 {
		if math.Abs(spec[i]-0.25) > 1e-9 || math.Abs(spec[i+1]) > 1e-9 {
			t.Fatalf("bin %d = (%v, %v), want (0.25, 0)", i/2, spec[i], spec[i+1])
		}
	}
}

func TestCrossValidatePasses(t *testing.T) {
	const n = 64
	rng := rand.New(rand.NewPCG(5, 9))

	impulse := make([]float64, 2*n)
	impulse[0] = 0.25

	sine := make([]float64, 2*n)
	for i := range sine {
		sine[i] = 0.2 * math.Sin(2*math.Pi*5*float64(i)/float64(len(sine)))
	}

	random := make([]float64, 2*n)
	for i := range random {
		random[i] = (rng.Float64() - 0.5) * 0.25
	}

	b := &Block{FFTSize: n}
	b.Cases = append(b.Cases,
		Generate("zero", make([]float64, 2*n)),
		Generate("impulse", impulse),
		Generate("sine", sine),
		Generate("random", random),
	)

	if err := CrossValidate(b, 0.02); err != nil {
		t.Errorf("fixed-point pipeline diverged from reference: %v", err)
	}
}

func TestCrossValidateDetectsCorruption(t *testing.T) {
	const n = 64
	input := make([]float64, 2*n)
	input[3] = 0.25

	b := &Block{FFTSize: n, Cases: []Case{Generate("ok", input)}}
	b.Cases[0].Expected[10] += 1.0

	if err := CrossValidate(b, 0.02); err == nil {
		t.Error("corrupted expected spectrum accepted")
	}
}

func TestCrossValidateLengthChecks(t *testing.T) {
	b := &Block{FFTSize: 64, Cases: []Case{{Name: "short", Input: make([]float64, 10)}}}
	if err := CrossValidate(b, 0.02); err == nil {
		t.Error("wrong input length accepted")
	}

	full := Generate("bad_expected", make([]float64, 128))
	full.Expected = full.Expected[:4]
	b = &Block{FFTSize: 64, Cases: []Case{full}}
	if err := CrossValidate(b, 0.02); err == nil {
		t.Error("wrong expected length accepted")
	}
}
