package app

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Profiler times named scopes on the CPU. The pipeline opens one scope per
// pass and one for the previous-frame snapshot.
type Profiler struct {
	Scopes     map[string]time.Duration
	Averages   map[string]time.Duration
	StartTimes map[string]time.Time
	Counts     map[string]int
	Order      []string

	now func() time.Time
}

// Averages are exponential moving averages with this weight on the newest sample.
const averageWeight = 0.1

func NewProfiler() *Profiler {
	return &Profiler{
		Scopes:     make(map[string]time.Duration),
		Averages:   make(map[string]time.Duration),
		StartTimes: make(map[string]time.Time),
		Counts:     make(map[string]int),
		Order:      make([]string, 0),
		now:        time.Now,
	}
}

func (p *Profiler) BeginScope(name string) {
	p.StartTimes[name] = p.now()
	// Maintain insertion order for consistent display
	for _, n := range p.Order {
		if n == name {
			return
		}
	}
	p.Order = append(p.Order, name)
}

func (p *Profiler) EndScope(name string) {
	start, ok := p.StartTimes[name]
	if !ok {
		return
	}
	delete(p.StartTimes, name)
	d := p.now().Sub(start)
	p.Scopes[name] = d
	if avg, ok := p.Averages[name]; ok {
		p.Averages[name] = avg + time.Duration(averageWeight*float64(d-avg))
	} else {
		p.Averages[name] = d
	}
}

func (p *Profiler) SetCount(name string, count int) {
	p.Counts[name] = count
}

// Reset zeroes the last timings; averages and order are kept.
func (p *Profiler) Reset() {
	for k := range p.Scopes {
		p.Scopes[k] = 0
	}
}

func (p *Profiler) GetStatsString() string {
	var sb strings.Builder

	sb.WriteString("Timings (CPU):\n")
	for _, name := range p.Order {
		fmt.Fprintf(&sb, "  %-17s: %6.2f ms (avg %6.2f ms)\n", name, ms(p.Scopes[name]), ms(p.Averages[name]))
	}

	sb.WriteString("Stats:\n")
	keys := make([]string, 0, len(p.Counts))
	for k := range p.Counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&sb, "  %-17s: %d\n", k, p.Counts[k])
	}
	return sb.String()
}

func ms(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000.0
}
