// Package window maintains concurrently active tumbling, sliding, session,
// and count windows over a trade stream, with watermark-driven firing for
// event-time windows and processing-time gap expiry for sessions.
package window

import (
	"fmt"
	"time"

	"stock-orderflow/internal/model"
)

// Type is the closed set of supported window semantics.
type Type int

const (
	TypeTumbling Type = iota
	TypeSliding
	TypeSession
	TypeCount
)

// String implements fmt.Stringer.
func (t Type) String() string {
	switch t {
	case TypeSliding:
		return "sliding"
	case TypeSession:
		return "session"
	case TypeCount:
		return "count"
	default:
		return "tumbling"
	}
}

// ParseType maps a config string onto a Type.
func ParseType(s string) (Type, error) {
	switch s {
	case "tumbling":
		return TypeTumbling, nil
	case "sliding":
		return TypeSliding, nil
	case "session":
		return TypeSession, nil
	case "count":
		return TypeCount, nil
	default:
		return TypeTumbling, fmt.Errorf("unknown window type %q", s)
	}
}

// TimeCharacteristic selects which clock stamps events.
type TimeCharacteristic int

const (
	EventTime TimeCharacteristic = iota
	ProcessingTime
)

// WatermarkStrategy is the closed set of watermark update rules.
type WatermarkStrategy int

const (
	StrategyMonotonous WatermarkStrategy = iota
	StrategyFixedDelay
	StrategyBoundedOutOfOrderness
)

// ParseWatermarkStrategy maps a config string onto a WatermarkStrategy.
func ParseWatermarkStrategy(s string) (WatermarkStrategy, error) {
	switch s {
	case "monotonous", "":
		return StrategyMonotonous, nil
	case "fixed_delay":
		return StrategyFixedDelay, nil
	case "bounded_out_of_orderness":
		return StrategyBoundedOutOfOrderness, nil
	default:
		return StrategyMonotonous, fmt.Errorf("unknown watermark strategy %q", s)
	}
}

// countRetention is the fixed eviction horizon for closed count windows.
const countRetention = time.Hour

// Config parameterises one window instance group.
type Config struct {
	Name               string
	Type               Type
	Size               time.Duration
	Slide              time.Duration
	Gap                time.Duration
	CountSize          int
	Strategy           WatermarkStrategy
	Delay              time.Duration
	TimeCharacteristic TimeCharacteristic
}

// Validate rejects configurations the engine cannot run.
func (c Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("window name is required")
	}
	switch c.Type {
	case TypeTumbling:
		if c.Size <= 0 {
			return fmt.Errorf("window %s: tumbling size must be positive", c.Name)
		}
	case TypeSliding:
		if c.Size <= 0 || c.Slide <= 0 {
			return fmt.Errorf("window %s: sliding size and slide must be positive", c.Name)
		}
		if c.Slide > c.Size {
			return fmt.Errorf("window %s: slide must not exceed size", c.Name)
		}
	case TypeSession:
		if c.Gap <= 0 {
			return fmt.Errorf("window %s: session gap must be positive", c.Name)
		}
	case TypeCount:
		if c.CountSize <= 0 {
			return fmt.Errorf("window %s: count size must be positive", c.Name)
		}
	}
	return nil
}

// retention returns how long a closed window stays resident after its end.
func (c Config) retention() time.Duration {
	switch c.Type {
	case TypeSession:
		return c.Gap
	case TypeCount:
		return countRetention
	default:
		return c.Size
	}
}

// State is the mutable lifecycle record of one window instance, exclusively
// owned by its engine.
type State struct {
	WindowID        string             `json:"windowId"`
	StartTime       time.Time          `json:"startTime"`
	EndTime         time.Time          `json:"endTime"`
	Elements        []model.TradeEvent `json:"elements"`
	IsClosed        bool               `json:"isClosed"`
	TriggerCount    int                `json:"triggerCount"`
	LastTriggerTime time.Time          `json:"lastTriggerTime"`
}

// clone returns a deep copy safe to hand outside the engine.
func (s *State) clone() *State {
	cp := *s
	cp.Elements = make([]model.TradeEvent, len(s.Elements))
	copy(cp.Elements, s.Elements)
	return &cp
}

// Watermark asserts that no events earlier than Timestamp are expected.
// The externally visible value never regresses.
type Watermark struct {
	Timestamp     time.Time `json:"timestamp"`
	IngestionTime time.Time `json:"ingestionTime"`
	EventTime     time.Time `json:"eventTime"`
}

// Summary is the compact closed-window record written to the state store.
type Summary struct {
	WindowID     string    `json:"windowId"`
	StartTime    time.Time `json:"startTime"`
	EndTime      time.Time `json:"endTime"`
	ElementCount int       `json:"elementCount"`
	TotalAmount  int64     `json:"totalAmount"`
	TriggerCount int       `json:"triggerCount"`
}

func summarize(s *State) Summary {
	var total int64
	for _, ev := range s.Elements {
		total += ev.Amount
	}
	return Summary{
		WindowID:     s.WindowID,
		StartTime:    s.StartTime,
		EndTime:      s.EndTime,
		ElementCount: len(s.Elements),
		TotalAmount:  total,
		TriggerCount: s.TriggerCount,
	}
}
