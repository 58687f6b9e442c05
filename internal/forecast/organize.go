// Package forecast turns the flat forecast list into day-grouped display records.
package forecast

import "github.com/kjstillabower/weather-screen-service/internal/models"

// Organize groups samples by formatted date. Groups appear in order of first
// occurrence and entries keep input order; nothing is sorted or deduplicated.
// Two samples share a group exactly when f.Date formats them to the same string.
func Organize(samples []models.ForecastSample, f Formatter) models.ForecastView {
	view := models.ForecastView{}
	index := make(map[string]int)
	for _, s := range samples {
		date := f.Date(s.Timestamp)
		i, ok := index[date]
		if !ok {
			i = len(view)
			index[date] = i
			view = append(view, models.DayGroup{Date: date, Times: []models.TimeEntry{}})
		}
		view[i].Times = append(view[i].Times, models.TimeEntry{
			Time:        f.Time(s.Timestamp),
			Icon:        s.Icon,
			Temperature: s.Temperature,
			Description: s.Description,
		})
	}
	return view
}
