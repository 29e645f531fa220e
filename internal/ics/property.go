package ics

import (
	"fmt"
	"strings"

	ical "github.com/arran4/golang-ical"
)

// Property is one tokenized NAME[;PARAM=VALUE]*:VALUE line. Name and
// parameter keys are upper-cased.
type Property struct {
	Name   string
	Params map[string]string
	Value  string
}

// ParseProperty tokenizes a single unfolded line.
func ParseProperty(line string) (Property, error) {
	bp, err := ical.ParseProperty(ical.ContentLine(line))
	if err != nil {
		return Property{}, fmt.Errorf("%w: invalid property parameter syntax: %s", ErrSyntax, line)
	}
	if bp == nil || !isLetters(bp.IANAToken) || !strings.HasPrefix(line, bp.IANAToken) {
		return Property{}, fmt.Errorf("%w: invalid property syntax: %s", ErrSyntax, line)
	}

	prop := Property{
		Name:  strings.ToUpper(bp.IANAToken),
		Value: bp.Value,
	}
	if len(bp.ICalParameters) > 0 {
		prop.Params = make(map[string]string, len(bp.ICalParameters))
		for k, vs := range bp.ICalParameters {
			if !isLetters(k) {
				return Property{}, fmt.Errorf("%w: invalid property parameter syntax: %s", ErrSyntax, line)
			}
			prop.Params[strings.ToUpper(k)] = strings.Join(vs, ",")
		}
	}
	return prop, nil
}

// AllowedParams checks that every parameter on p is in allowed and returns
// their values in the order of allowed; absent parameters yield "".
func (p Property) AllowedParams(allowed ...string) ([]string, error) {
	values := make([]string, len(allowed))
	for k, v := range p.Params {
		idx := indexOf(allowed, k)
		if idx < 0 {
			return nil, fmt.Errorf("%w: unexpected parameter %s for property %s", ErrSyntax, k, p.Name)
		}
		values[idx] = v
	}
	return values, nil
}

func indexOf(list []string, s string) int {
	for i, v := range list {
		if v == s {
			return i
		}
	}
	return -1
}

func isLetters(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if (r < 'A' || r > 'Z') && (r < 'a' || r > 'z') {
			return false
		}
	}
	return true
}
