package simulation

import (
	"strings"

	"github.com/pkg/errors"
)

// Line is the color of a train line.
type Line int

const (
	LineRed Line = iota
	LineGreen
	LineBlue
)

var Lines = []Line{LineRed, LineGreen, LineBlue}

func (l Line) String() string {
	switch l {
	case LineRed:
		return "red"
	case LineGreen:
		return "green"
	case LineBlue:
		return "blue"
	}

	panic(errors.Errorf("unknown line %d", int(l)))
}

func ParseLine(value string) (Line, error) {
	for _, line := range Lines {
		if strings.EqualFold(value, line.String()) {
			return line, nil
		}
	}

	return 0, errors.Errorf("unknown line %q", value)
}

func (l Line) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

func (l *Line) UnmarshalText(text []byte) error {
	line, err := ParseLine(string(text))
	if err != nil {
		return err
	}

	*l = line
	return nil
}

// Station is a single stop of a line.
type Station struct {
	StationID int
	Name      string
	Line      Line
}

// TopicName normalizes the stations name into a topic name segment.
func (s Station) TopicName() string {
	return strings.NewReplacer(
		"/", "_and_",
		" ", "_",
		"-", "_",
		"'", "",
	).Replace(strings.ToLower(s.Name))
}
