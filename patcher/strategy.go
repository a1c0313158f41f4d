package patcher

import (
	"fmt"
	"strings"
)

// Strategy selects how space is found for a tracking string.
type Strategy int

const (
	// StrategyCave writes into an existing run of zero bytes.
	// The file does not grow.
	StrategyCave Strategy = iota

	// StrategySection creates new space after the last structural
	// element and registers it where the format allows. It is best
	// effort: checksums, signatures and dependent load commands are
	// not updated.
	StrategySection

	// StrategyExtend grows the last relevant section or segment.
	StrategyExtend

	// StrategyOverlay appends to the end of the file without
	// touching any header. The data is never mapped into memory.
	StrategyOverlay
)

var strategyNames = []string{
	StrategyCave:    "cave",
	StrategySection: "section",
	StrategyExtend:  "extend",
	StrategyOverlay: "overlay",
}

// Strategies returns the names accepted by ParseStrategy.
func Strategies() []string {
	return append([]string(nil), strategyNames...)
}

func (o Strategy) String() string {
	if o < 0 || int(o) >= len(strategyNames) {
		return fmt.Sprintf("Strategy(%d)", int(o))
	}

	return strategyNames[o]
}

// ParseStrategy converts a strategy name, such as "cave", into
// a Strategy. Matching is case-insensitive.
func ParseStrategy(str string) (Strategy, error) {
	for i, name := range strategyNames {
		if strings.EqualFold(str, name) {
			return Strategy(i), nil
		}
	}

	return 0, fmt.Errorf("unknown patch strategy: %q (expected one of: %s)",
		str, strings.Join(strategyNames, ", "))
}

func (o Strategy) MarshalText() ([]byte, error) {
	if o < 0 || int(o) >= len(strategyNames) {
		return nil, fmt.Errorf("unknown patch strategy: %d", int(o))
	}

	return []byte(o.String()), nil
}

func (o *Strategy) UnmarshalText(text []byte) error {
	s, err := ParseStrategy(string(text))
	if err != nil {
		return err
	}

	*o = s

	return nil
}

// Result describes where a tracking string was placed.
type Result struct {
	// Format is the detected container format.
	Format Format

	// StrategyUsed describes the strategy along with the section
	// or segment it used, such as "cave (.rdata)".
	StrategyUsed string

	// Mapped is true when the string is loaded into process
	// memory, in which case VirtualAddress is set.
	Mapped bool

	// VirtualAddress is the address of the string once loaded.
	// Only meaningful when Mapped is true.
	VirtualAddress uint64

	// FileOffset is where the string starts in the output.
	// The string is followed by a NUL byte.
	FileOffset uint64
}
