package stats

import "testing"

func TestCounterIncNoopWhenStatsDisabled(t *testing.T) {
	var c Counter_t
	c.Inc()
	c.Inc()
	if Stats {
		t.Skip("Stats is enabled in this build; Inc is expected to count")
	}
	if c != 0 {
		t.Fatalf("Counter_t = %d, want 0 with Stats disabled", c)
	}
}

func TestExportProfileCarriesSamples(t *testing.T) {
	p := ExportProfile([]Sample{
		{Name: "frames_free", Value: 42},
		{Name: "ticks", Value: 7},
	})
	if len(p.Sample) != 2 {
		t.Fatalf("len(p.Sample) = %d, want 2", len(p.Sample))
	}
	if p.Sample[0].Value[0] != 42 {
		t.Fatalf("first sample value = %d, want 42", p.Sample[0].Value[0])
	}
	if p.Sample[1].Label["name"][0] != "ticks" {
		t.Fatalf("second sample name label = %q, want ticks", p.Sample[1].Label["name"][0])
	}
	if len(p.SampleType) != 1 || p.SampleType[0].Type != "counter" {
		t.Fatalf("SampleType = %+v, want one counter type", p.SampleType)
	}
}
