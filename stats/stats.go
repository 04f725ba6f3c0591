// Package stats implements kernel-wide counter types and a pprof profile
// export for named counters (ExportProfile). No subsystem records
// counters here, and the Stat syscall (#65530) does not use this package.
package stats

import (
	"reflect"
	"strconv"
	"strings"
	"sync/atomic"
	"unsafe"

	"github.com/google/pprof/profile"
)

/// Stats enables counter increments; off by default since every Inc would
/// otherwise cost an atomic add on every syscall/tick.
const Stats = false

/// Timing enables cycle-counter accumulation, gated separately from Stats
/// since it requires a cycle-accurate clock source the hosted build lacks.
const Timing = false

var Nirqs [100]int
var Irqs int

/// Counter_t is a statistical counter.
type Counter_t int64

/// Cycles_t holds an accumulated cycle/duration count.
type Cycles_t int64

/// Inc increments the counter when statistics collection is enabled.
func (c *Counter_t) Inc() {
	if Stats {
		n := (*int64)(unsafe.Pointer(c))
		atomic.AddInt64(n, 1)
	}
}

/// Add adds elapsed nanoseconds since start to the counter.
func (c *Cycles_t) Add(startNs int64, nowNs int64) {
	if Timing {
		n := (*int64)(unsafe.Pointer(c))
		atomic.AddInt64(n, nowNs-startNs)
	}
}

/// Stats2String renders every Counter_t/Cycles_t field of st as a
/// human-readable line. Nothing in the module calls it.
func Stats2String(st interface{}) string {
	if !Stats {
		return ""
	}
	v := reflect.ValueOf(st)
	s := ""
	for i := 0; i < v.NumField(); i++ {
		t := v.Field(i).Type().String()
		switch {
		case strings.HasSuffix(t, "Counter_t"):
			n := v.Field(i).Interface().(Counter_t)
			s += "\n\t#" + v.Type().Field(i).Name + ": " + strconv.FormatInt(int64(n), 10)
		case strings.HasSuffix(t, "Cycles_t"):
			n := v.Field(i).Interface().(Cycles_t)
			s += "\n\t#" + v.Type().Field(i).Name + ": " + strconv.FormatInt(int64(n), 10)
		}
	}
	return s + "\n"
}

/// Sample names a single named counter for profile export.
type Sample struct {
	Name  string
	Value int64
}

/// ExportProfile packages a set of named counters (frame-allocator free
/// count, live process count, cumulative ticks, FAT16 cache hits, ...)
/// into a pprof profile.Profile instead of a bespoke text table. Nothing
/// in the module calls it; the Stat syscall returns 0, not a profile.
func ExportProfile(samples []Sample) *profile.Profile {
	p := &profile.Profile{
		SampleType: []*profile.ValueType{
			{Type: "counter", Unit: "count"},
		},
		TimeNanos: 1, // stamped by the caller; kept non-zero so Write doesn't reject it
	}
	for _, s := range samples {
		p.Sample = append(p.Sample, &profile.Sample{
			Value: []int64{s.Value},
			Label: map[string][]string{"name": {s.Name}},
		})
	}
	return p
}
