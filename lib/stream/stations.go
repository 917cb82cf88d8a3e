package stream

import (
	"github.com/flachnetz/transit/lib/simulation"
)

const InputTopic = "org.chicago.cta.stations"

// Station is a row of the stations table as published by kafka connect.
type Station struct {
	StopID                 int    `json:"stop_id"`
	DirectionID            string `json:"direction_id"`
	StopName               string `json:"stop_name"`
	StationName            string `json:"station_name"`
	StationDescriptiveName string `json:"station_descriptive_name"`
	StationID              int    `json:"station_id"`
	Order                  int    `json:"order"`
	Red                    bool   `json:"red"`
	Blue                   bool   `json:"blue"`
	Green                  bool   `json:"green"`
}

type TransformedStation struct {
	StationID   int             `json:"station_id"`
	StationName string          `json:"station_name"`
	Order       int             `json:"order"`
	Line        simulation.Line `json:"line"`
}

// Transform reduces a station to the fields needed downstream. The line is
// taken from the first flag set, in the order red, green, blue. Stations
// without any flag are dropped.
func Transform(station Station) (TransformedStation, bool) {
	var line simulation.Line

	switch {
	case station.Red:
		line = simulation.LineRed
	case station.Green:
		line = simulation.LineGreen
	case station.Blue:
		line = simulation.LineBlue
	default:
		return TransformedStation{}, false
	}

	transformed := TransformedStation{
		StationID:   station.StationID,
		StationName: station.StationName,
		Order:       station.Order,
		Line:        line,
	}

	return transformed, true
}
