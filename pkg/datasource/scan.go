package datasource

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/randalmurphal/datasource/pkg/datasource/cursor"
	dserrors "github.com/randalmurphal/datasource/pkg/datasource/errors"
	"github.com/randalmurphal/datasource/pkg/datasource/record"
	"github.com/randalmurphal/datasource/pkg/datasource/store"
)

// PV is one scanned process variable.
type PV struct {
	Name  string
	Value float64
	// Low and High bound a monitored PV.
	Low, High float64
}

// ScanStep summarizes one calibration step.
type ScanStep struct {
	Index    int
	Controls []PV
	Monitors []PV
	Events   int
	// First and Last are the run indexes of the step's first and last
	// events, or -1 when the run has no index.
	First, Last int
}

// Scan summarizes the steps of an smd run: the controlled and monitored
// PVs of each step and where its events sit in the run index. Scan reads
// its own step iterator and does not move the cursor.
func (ds *DataSource) Scan(ctx context.Context) ([]ScanStep, error) {
	if ds.closed {
		return nil, ErrClosed
	}
	sc, ok := ds.cursor.(*cursor.StepChunked)
	if !ok {
		return nil, &dserrors.UnsupportedOperationError{
			Op:     "scan",
			Mode:   ds.spec.Mode.String(),
			Reason: "only step-chunked runs have steps",
		}
	}

	steps, err := ds.store.Steps(ctx)
	if err != nil {
		return nil, fmt.Errorf("open steps: %w", err)
	}

	var out []ScanStep
	for i := 0; ; i++ {
		step, err := steps.Next(ctx)
		if errors.Is(err, store.ErrEnd) {
			return out, nil
		}
		if err != nil {
			return out, fmt.Errorf("scan step %d: %w", i, err)
		}
		s := ScanStep{Index: i, First: -1, Last: -1}
		s.Controls, s.Monitors = ds.controlPVs(step.Config())
		if err := ds.scanEvents(ctx, step, sc.Companion(), &s); err != nil {
			return out, fmt.Errorf("scan step %d: %w", i, err)
		}
		out = append(out, s)
	}
}

func (ds *DataSource) scanEvents(ctx context.Context, step store.Step, index *cursor.Indexed, s *ScanStep) error {
	events := step.Events()
	var first, last store.TimeTuple
	for {
		ev, err := events.Next(ctx)
		if errors.Is(err, store.ErrEnd) {
			break
		}
		if err != nil {
			return err
		}
		if s.Events == 0 {
			first = ev.Time()
		}
		last = ev.Time()
		s.Events++
	}
	if s.Events == 0 || index == nil {
		return nil
	}
	if i, ok := index.IndexOf(ctx, first); ok {
		s.First = i
	}
	if i, ok := index.IndexOf(ctx, last); ok {
		s.Last = i
	}
	return nil
}

// controlPVs reads the ControlData configuration of a step.
func (ds *DataSource) controlPVs(c store.Container) (controls, monitors []PV) {
	if c == nil {
		return nil, nil
	}
	snap := record.NewSnapshot(c, ds.table)
	for _, k := range snap.Keys().Module("ControlData") {
		if !strings.HasPrefix(k.Type.Name, "Config") {
			continue
		}
		v, err := snap.View(k)
		if err != nil {
			continue
		}
		if list, ok := v.Value("pvControls").(*record.ListView); ok {
			for _, item := range list.Items() {
				value, _ := record.AsFloat(item.Value("value"))
				controls = append(controls, PV{Name: record.AsString(item.Value("name")), Value: value})
			}
		}
		if list, ok := v.Value("pvMonitors").(*record.ListView); ok {
			for _, item := range list.Items() {
				lo, _ := record.AsFloat(item.Value("loValue"))
				hi, _ := record.AsFloat(item.Value("hiValue"))
				monitors = append(monitors, PV{Name: record.AsString(item.Value("name")), Low: lo, High: hi})
			}
		}
		break
	}
	return controls, monitors
}

// String renders the step as "step N: name=value ... [first, last]".
func (s ScanStep) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "step %d:", s.Index)
	for _, pv := range s.Controls {
		fmt.Fprintf(&b, " %s=%g", pv.Name, pv.Value)
	}
	fmt.Fprintf(&b, " events=%d [%d, %d]", s.Events, s.First, s.Last)
	return b.String()
}
