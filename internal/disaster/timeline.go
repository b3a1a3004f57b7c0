package disaster

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/paulmach/orb"
)

// Timeline is a strictly increasing sequence of timestamps with the field
// active from each timestamp onward.
type Timeline struct {
	times  []time.Time
	fields []Field
}

// NewTimeline builds a timeline from parallel slices, validating order.
func NewTimeline(times []time.Time, fields []Field) (*Timeline, error) {
	if len(times) != len(fields) {
		return nil, fmt.Errorf("disaster: %d timestamps but %d fields", len(times), len(fields))
	}
	for i := 1; i < len(times); i++ {
		if !times[i].After(times[i-1]) {
			return nil, fmt.Errorf("disaster: timeline not strictly increasing at index %d", i)
		}
	}
	return &Timeline{times: times, fields: fields}, nil
}

// Len returns the number of entries.
func (t *Timeline) Len() int { return len(t.times) }

// Entry returns the i-th (timestamp, field) pair.
func (t *Timeline) Entry(i int) (time.Time, Field) { return t.times[i], t.fields[i] }

// FieldAt returns the field whose timestamp is the greatest one not after
// ts, or nil when ts precedes the whole timeline.
func (t *Timeline) FieldAt(ts time.Time) Field {
	// sort.Search finds the first timestamp after ts.
	i := sort.Search(len(t.times), func(i int) bool { return t.times[i].After(ts) })
	if i == 0 {
		return nil
	}
	return t.fields[i-1]
}

// DecayMethod selects how an earthquake's amplitude falls off per step.
type DecayMethod string

const (
	DecayLinear      DecayMethod = "linear"
	DecayExponential DecayMethod = "exponential"
	DecayParabolic   DecayMethod = "parabolic"
)

// StepUnit is the timeline resolution.
type StepUnit string

const (
	StepHour StepUnit = "hr"
	StepDay  StepUnit = "day"
)

// Earthquake describes a shock at an epicenter whose Gaussian amplitude
// decays over time, optionally settling into a residual field (typically a
// uniform disk of lingering disruption) from the end of the shaking until
// the continuity horizon.
type Earthquake struct {
	ID        string
	Epicenter orb.Point // (lon, lat)
	Start     time.Time
	End       time.Time
	A0        float64
	VarLat    float64
	VarLon    float64
	Method    DecayMethod
	Unit      StepUnit

	// Continuity extends the timeline past End with Residual; both must
	// be set together.
	Continuity time.Time
	Residual   Field
}

// Generate expands the earthquake into its timeline. With a continuity
// horizon the timeline has ceil((Continuity-Start)/step) entries;
// otherwise ceil((End-Start)/step).
func (e Earthquake) Generate() (*Timeline, error) {
	switch e.Method {
	case DecayLinear, DecayExponential, DecayParabolic:
	default:
		return nil, fmt.Errorf("disaster: unknown decay method %q", e.Method)
	}
	step := time.Hour
	switch e.Unit {
	case StepDay:
		step = 24 * time.Hour
	case StepHour, "":
	default:
		return nil, fmt.Errorf("disaster: unknown step unit %q", e.Unit)
	}
	if !e.End.After(e.Start) {
		return nil, fmt.Errorf("disaster: end %v not after start %v", e.End, e.Start)
	}

	horizon := e.End
	if !e.Continuity.IsZero() {
		if e.Residual == nil {
			return nil, fmt.Errorf("disaster: continuity horizon set without residual field")
		}
		horizon = e.Continuity
	}
	steps := int(math.Ceil(horizon.Sub(e.Start).Seconds() / step.Seconds()))
	if steps < 1 {
		steps = 1
	}

	times := make([]time.Time, 0, steps)
	fields := make([]Field, 0, steps)
	for k := 0; k < steps; k++ {
		t := e.Start.Add(time.Duration(k) * step)
		if !e.Continuity.IsZero() && t.After(e.End) {
			times = append(times, t)
			fields = append(fields, e.Residual)
			continue
		}
		amp := e.amplitudeAt(k, steps)
		times = append(times, t)
		fields = append(fields, Gaussian{
			Mean:      e.Epicenter,
			VarLat:    e.VarLat,
			VarLon:    e.VarLon,
			Amplitude: amp,
		})
	}
	return NewTimeline(times, fields)
}

func (e Earthquake) amplitudeAt(k, total int) float64 {
	switch e.Method {
	case DecayLinear:
		return e.A0 * (1 - float64(k)/float64(total))
	case DecayExponential:
		return e.A0 * math.Exp(-float64(k))
	case DecayParabolic:
		f := float64(k) / float64(total)
		return e.A0 * (1 - f*f)
	}
	return 0
}
