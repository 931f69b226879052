package domain

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// RawMessage is an unprocessed message from the signal topic.
type RawMessage struct {
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Commit    func(ctx context.Context) error
}

// Kinds accepted on the signal topic besides the Source names: "unit"
// registers a spatial unit and "baseline" carries a citywide monthly metric.
const (
	KindUnit     = "unit"
	KindBaseline = "baseline"
)

// SignalEnvelope is one parsed signal-topic message. Exactly one payload
// field is set, matching Kind.
type SignalEnvelope struct {
	Kind       string
	Unit       *SpatialUnit
	Human      *HumanSignal
	Geo        *GeoSignal
	Population *PopulationSignal
	Pigeon     *PigeonSignal
	Baseline   *BaselineMetric
}

// UnitID returns the unit the envelope refers to.
func (e SignalEnvelope) UnitID() string {
	switch {
	case e.Unit != nil:
		return e.Unit.ID
	case e.Human != nil:
		return e.Human.UnitID
	case e.Geo != nil:
		return e.Geo.UnitID
	case e.Population != nil:
		return e.Population.UnitID
	case e.Pigeon != nil:
		return e.Pigeon.UnitID
	default:
		return ""
	}
}

// Date returns the day of a time-series signal, or "" for units, geo and
// baselines.
func (e SignalEnvelope) Date() string {
	switch {
	case e.Human != nil:
		return e.Human.Date
	case e.Population != nil:
		return e.Population.Date
	case e.Pigeon != nil:
		return e.Pigeon.Date
	default:
		return ""
	}
}

type wireEnvelope struct {
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

// ParseSignalMessage decodes a {"kind": ..., "payload": {...}} message.
// Geo records without an updated_at take the message timestamp.
func ParseSignalMessage(raw RawMessage) (SignalEnvelope, error) {
	var w wireEnvelope
	if err := json.Unmarshal(raw.Value, &w); err != nil {
		return SignalEnvelope{}, fmt.Errorf("parse signal message: %w", err)
	}
	if len(w.Payload) == 0 {
		return SignalEnvelope{}, fmt.Errorf("parse signal message: %w: missing payload", ErrInvalidArgument)
	}
	env := SignalEnvelope{Kind: strings.ToLower(strings.TrimSpace(w.Kind))}

	var err error
	switch env.Kind {
	case KindUnit:
		env.Unit = new(SpatialUnit)
		err = json.Unmarshal(w.Payload, env.Unit)
	case string(SourceHuman):
		env.Human = new(HumanSignal)
		err = json.Unmarshal(w.Payload, env.Human)
	case string(SourceGeo):
		env.Geo = new(GeoSignal)
		if err = json.Unmarshal(w.Payload, env.Geo); err == nil && env.Geo.UpdatedAt.IsZero() {
			env.Geo.UpdatedAt = raw.Timestamp.UTC()
		}
	case string(SourcePopulation):
		env.Population = new(PopulationSignal)
		err = json.Unmarshal(w.Payload, env.Population)
	case string(SourcePigeon):
		env.Pigeon = new(PigeonSignal)
		err = json.Unmarshal(w.Payload, env.Pigeon)
	case KindBaseline:
		env.Baseline = new(BaselineMetric)
		err = json.Unmarshal(w.Payload, env.Baseline)
	default:
		return SignalEnvelope{}, fmt.Errorf("parse signal message: %w: unknown kind %q", ErrInvalidArgument, w.Kind)
	}
	if err != nil {
		return SignalEnvelope{}, fmt.Errorf("parse %s payload: %w", env.Kind, err)
	}
	if err := env.Validate(); err != nil {
		return SignalEnvelope{}, err
	}
	return env, nil
}

// Validate checks the identifying fields of the payload.
func (e SignalEnvelope) Validate() error {
	if e.Baseline != nil {
		return e.Baseline.Validate()
	}
	if strings.TrimSpace(e.UnitID()) == "" {
		return fmt.Errorf("%w: %s payload has no unit id", ErrInvalidArgument, e.Kind)
	}
	if e.Human != nil || e.Population != nil || e.Pigeon != nil {
		if _, err := ParseDate(e.Date()); err != nil {
			return fmt.Errorf("%s payload: %w", e.Kind, err)
		}
	}
	return nil
}
