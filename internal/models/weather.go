package models

// Coordinate is the device position a screen session is built for.
type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// CurrentConditions is the current-weather payload, taken from the API without transformation.
type CurrentConditions struct {
	Name        string  `json:"name"`
	Temperature float64 `json:"temp"`
	Icon        string  `json:"icon"`
	Description string  `json:"description"`
}

// ForecastSample is one raw entry of the forecast list.
type ForecastSample struct {
	Timestamp   int64   `json:"dt"` // unix seconds
	Temperature float64 `json:"temp"`
	Icon        string  `json:"icon"`
	Description string  `json:"description"`
}

// TimeEntry is a ForecastSample formatted for display.
type TimeEntry struct {
	Time        string  `json:"time"`
	Icon        string  `json:"icon"`
	Temperature float64 `json:"temp"`
	Description string  `json:"description"`
}

// DayGroup holds the entries sharing one formatted date, in input order.
type DayGroup struct {
	Date  string      `json:"date"`
	Times []TimeEntry `json:"times"`
}

// ForecastView is the organizer output: day groups in order of first occurrence.
type ForecastView []DayGroup

// Entries flattens the view back into a single ordered sequence.
func (v ForecastView) Entries() []TimeEntry {
	n := 0
	for _, g := range v {
		n += len(g.Times)
	}
	out := make([]TimeEntry, 0, n)
	for _, g := range v {
		out = append(out, g.Times...)
	}
	return out
}
