package compat

import (
	"errors"
	"fmt"
	"strings"
)

var ErrUnknownDifference = errors.New("compat: unknown difference flag")

// Difference is a set of structural changes between two schemas.
type Difference uint8

const (
	Equivalent      Difference = 0
	AddField        Difference = 1 << 1
	DropField       Difference = 1 << 2
	AddAlternative  Difference = 1 << 3
	DropAlternative Difference = 1 << 4

	Upgrade                 = AddField | AddAlternative
	Downgrade               = DropField | DropAlternative
	Incompatible Difference = 0xFF
)

var flagNames = []struct {
	flag Difference
	name string
}{
	{AddField, "addField"},
	{DropField, "dropField"},
	{AddAlternative, "addAlternative"},
	{DropAlternative, "dropAlternative"},
}

// Within reports whether every change in d is permitted by allowed.
func (d Difference) Within(allowed Difference) bool {
	return d&^allowed == 0
}

// IsUpgrade reports whether d only adds fields or alternatives.
func (d Difference) IsUpgrade() bool {
	return d != Equivalent && d != Incompatible && d&^Upgrade == 0
}

// IsDowngrade reports whether d only drops fields or alternatives.
func (d Difference) IsDowngrade() bool {
	return d != Equivalent && d != Incompatible && d&^Downgrade == 0
}

func (d Difference) String() string {
	switch d {
	case Equivalent:
		return "equivalent"
	case Incompatible:
		return "incompatible"
	}
	var parts []string
	for _, f := range flagNames {
		if d&f.flag != 0 {
			parts = append(parts, f.name)
		}
	}
	if rest := d &^ (Upgrade | Downgrade); rest != 0 {
		parts = append(parts, fmt.Sprintf("0x%02x", uint8(rest)))
	}
	return strings.Join(parts, ",")
}

// ParseDifference reads a comma or pipe separated list of flag names. The
// names upgrade, downgrade, equivalent and incompatible are also accepted.
func ParseDifference(s string) (Difference, error) {
	var d Difference
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == '|' || r == ' ' })
	for _, field := range fields {
		switch strings.ToLower(field) {
		case "equivalent", "none":
		case "incompatible", "all", "any":
			d = Incompatible
		case "upgrade":
			d |= Upgrade
		case "downgrade":
			d |= Downgrade
		default:
			found := false
			for _, f := range flagNames {
				if strings.EqualFold(field, f.name) {
					d |= f.flag
					found = true
				}
			}
			if !found {
				return 0, fmt.Errorf("%w: %q", ErrUnknownDifference, field)
			}
		}
	}
	return d, nil
}

func (d Difference) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Difference) UnmarshalText(text []byte) error {
	v, err := ParseDifference(string(text))
	if err != nil {
		return err
	}
	*d = v
	return nil
}
