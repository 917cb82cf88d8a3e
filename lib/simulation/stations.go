package simulation

// DefaultStations is a subset of the chicago transit stations, ordered along their lines.
var DefaultStations = []Station{
	{StationID: 40900, Name: "Howard", Line: LineRed},
	{StationID: 41320, Name: "Belmont", Line: LineRed},
	{StationID: 40260, Name: "State/Lake", Line: LineRed},
	{StationID: 41400, Name: "Roosevelt", Line: LineRed},

	{StationID: 40020, Name: "Harlem/Lake", Line: LineGreen},
	{StationID: 41160, Name: "Clinton", Line: LineGreen},
	{StationID: 40380, Name: "Clark/Lake", Line: LineGreen},

	{StationID: 40890, Name: "O'Hare", Line: LineBlue},
	{StationID: 40590, Name: "Damen", Line: LineBlue},
	{StationID: 40490, Name: "Grand", Line: LineBlue},
	{StationID: 40390, Name: "Forest Park", Line: LineBlue},
}
