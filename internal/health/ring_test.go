package health

import "testing"

func TestRingKeepsMostRecentInOrder(t *testing.T) {
	ring := NewRing(RingCapacity)
	for i := int64(1); i <= 130; i++ {
		ring.Add(BandwidthSample{Time: i, TotalIn: i})
	}
	if ring.Len() != RingCapacity {
		t.Fatalf("expected %d samples, got %d", RingCapacity, ring.Len())
	}
	samples := ring.Samples()
	for i, sample := range samples {
		want := int64(11 + i)
		if sample.Time != want {
			t.Fatalf("sample %d time = %d, want %d", i, sample.Time, want)
		}
	}
}

func TestRingSameSecondReplaces(t *testing.T) {
	ring := NewRing(3)
	ring.Add(BandwidthSample{Time: 5, RateIn: 1})
	ring.Add(BandwidthSample{Time: 5, RateIn: 2})
	if ring.Len() != 1 {
		t.Fatalf("expected one sample, got %d", ring.Len())
	}
	if got := ring.Samples()[0].RateIn; got != 2 {
		t.Fatalf("expected replacement, got rate %v", got)
	}
}

func TestRingInsertsOutOfOrderSample(t *testing.T) {
	ring := NewRing(3)
	ring.Add(BandwidthSample{Time: 10})
	ring.Add(BandwidthSample{Time: 30})
	ring.Add(BandwidthSample{Time: 20})
	ring.Add(BandwidthSample{Time: 40})
	samples := ring.Samples()
	if len(samples) != 3 || samples[0].Time != 20 || samples[1].Time != 30 || samples[2].Time != 40 {
		t.Fatalf("unexpected samples %+v", samples)
	}
}
