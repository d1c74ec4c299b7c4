package replay

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"voxelrift/internal/sim"
)

// ValidationError is one divergence between the recorded and replayed event
// streams.
type ValidationError struct {
	Tick     sim.Tick `json:"tick"`
	Message  string   `json:"message"`
	Expected string   `json:"expected,omitempty"`
	Actual   string   `json:"actual,omitempty"`
}

// Validator compares a replayed event stream against the recorded baseline
// in order. Any mismatch, surplus, or shortfall is a determinism failure.
type Validator struct {
	expected []StateEvent
	index    int
	errors   []ValidationError
}

// LoadValidator parses the recorded event log.
func LoadValidator(path string) (*Validator, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open event log %s: %w", path, err)
	}
	defer file.Close()

	var events []StateEvent
	scanner := bufio.NewScanner(file)
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var event StateEvent
		if err := json.Unmarshal(raw, &event); err != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, line, err)
		}
		events = append(events, event)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read event log %s: %w", path, err)
	}
	return &Validator{expected: events}, nil
}

// ValidateEvent checks the next replayed event against the recording.
func (v *Validator) ValidateEvent(actual StateEvent) {
	if v.index >= len(v.expected) {
		v.errors = append(v.errors, ValidationError{
			Tick:    actual.Tick,
			Message: "unexpected event past end of recording",
			Actual:  renderEvent(actual),
		})
		return
	}
	expected := v.expected[v.index]
	if expected != actual {
		v.errors = append(v.errors, ValidationError{
			Tick:     actual.Tick,
			Message:  "event mismatch",
			Expected: renderEvent(expected),
			Actual:   renderEvent(actual),
		})
	}
	v.index++
}

// ValidateTick derives the replayed events for one transition and checks
// them all.
func (v *Validator) ValidateTick(prev, next sim.WorldState) {
	for _, event := range EventsBetween(prev, next) {
		v.ValidateEvent(event)
	}
}

// Finish flags any expected events the replay never produced.
func (v *Validator) Finish() {
	for v.index < len(v.expected) {
		expected := v.expected[v.index]
		v.errors = append(v.errors, ValidationError{
			Tick:     expected.Tick,
			Message:  "recorded event missing from replay",
			Expected: renderEvent(expected),
		})
		v.index++
	}
}

// Valid reports whether the streams matched.
func (v *Validator) Valid() bool { return len(v.errors) == 0 }

// Errors returns every divergence found, in stream order.
func (v *Validator) Errors() []ValidationError { return v.errors }

// Validated reports how many events were compared.
func (v *Validator) Validated() int { return v.index }

func renderEvent(event StateEvent) string {
	return fmt.Sprintf("%s entity=%d tick=%d pos=(%.4f,%.4f,%.4f) yaw=%.4f",
		event.Kind, event.Entity, event.Tick, event.X, event.Y, event.Z, event.Yaw)
}
