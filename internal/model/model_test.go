package model_test

import (
	"testing"

	"github.com/jihwankim/dns-sampler/internal/model"
	"github.com/jihwankim/dns-sampler/internal/model/box"
	"github.com/jihwankim/dns-sampler/internal/model/linefit"
	"github.com/jihwankim/dns-sampler/internal/model/rosenbrock"
	"github.com/jihwankim/dns-sampler/internal/model/spikeslab"
	"github.com/jihwankim/dns-sampler/internal/rng"
)

// roundTrip exercises invariant 8 (ToBlob/FromBlob round trip) for any
// concrete model.
func roundTrip(t *testing.T, name string, m model.Model) {
	t.Helper()
	before := m.String()
	blob := m.ToBlob()
	if err := m.FromBlob(blob); err != nil {
		t.Fatalf("%s: FromBlob: %v", name, err)
	}
	if after := m.String(); after != before {
		t.Fatalf("%s: round trip changed state: before=%q after=%q", name, before, after)
	}
}

func TestBlobRoundTrip(t *testing.T) {
	stream := rng.NewStream(123)

	roundTrip(t, "spikeslab", spikeslab.New(stream))
	roundTrip(t, "rosenbrock", rosenbrock.New(stream))
	roundTrip(t, "linefit", linefit.New(stream, []linefit.Point{{X: 1, Y: 2}, {X: 2, Y: 4}}))
}

func TestFromBlobRejectsWrongLength(t *testing.T) {
	b := box.New(rng.NewStream(1), 5)
	if err := b.FromBlob(make([]byte, 8*4)); err == nil {
		t.Fatal("expected an error restoring a blob of the wrong length")
	}
}

func TestParameterNamesMatchBlobDimension(t *testing.T) {
	stream := rng.NewStream(99)
	m := spikeslab.New(stream)
	if len(m.ParameterNames()) != spikeslab.NumParams {
		t.Fatalf("expected %d parameter names, got %d", spikeslab.NumParams, len(m.ParameterNames()))
	}
	if len(m.ToBlob()) != 8*spikeslab.NumParams {
		t.Fatalf("expected blob of %d bytes, got %d", 8*spikeslab.NumParams, len(m.ToBlob()))
	}
}
