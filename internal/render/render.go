// Package render turns a screen session into what the user sees: a JSON view
// model for clients and a plain-text screen for terminals.
package render

import (
	"fmt"
	"io"
	"net/url"
	"strings"
	"text/tabwriter"

	"github.com/kjstillabower/weather-screen-service/internal/models"
	"github.com/kjstillabower/weather-screen-service/internal/screen"
)

// DefaultIconURLTemplate is the OpenWeather icon location; {icon} is replaced by the code.
const DefaultIconURLTemplate = "http://openweathermap.org/img/w/{icon}.png"

// IconURL resolves an icon code against template. An empty code has no image.
func IconURL(template, code string) string {
	if code == "" {
		return ""
	}
	if template == "" {
		template = DefaultIconURLTemplate
	}
	return strings.ReplaceAll(template, "{icon}", url.PathEscape(code))
}

// View is the display model of one session. A nil Current or Forecast means
// that section is not shown; an empty Forecast is shown as an empty grid.
type View struct {
	Outcome  string             `json:"outcome"`
	Location *models.Coordinate `json:"location"`
	Current  *CurrentBlock      `json:"current"`
	Forecast []DayRow           `json:"forecast"`
}

// CurrentBlock is the current-conditions summary at the top of the screen.
type CurrentBlock struct {
	Name        string  `json:"name"`
	Date        string  `json:"date"`
	Temperature float64 `json:"temp"`
	Icon        string  `json:"icon"`
	IconURL     string  `json:"iconUrl,omitempty"`
	Description string  `json:"description"`
}

// DayRow is one labeled, horizontally scrolling row of cards.
type DayRow struct {
	Date  string `json:"date"`
	Cards []Card `json:"cards"`
}

// Card is one time slot of a DayRow.
type Card struct {
	Time        string  `json:"time"`
	Temperature float64 `json:"temp"`
	Icon        string  `json:"icon"`
	IconURL     string  `json:"iconUrl,omitempty"`
	Description string  `json:"description"`
}

// NewView builds the display model for s. Row and card order follow the
// forecast view exactly.
func NewView(s *screen.Session, iconTemplate string) View {
	v := View{Outcome: s.Outcome(), Location: s.Coordinate}
	if s.Current != nil {
		v.Current = &CurrentBlock{
			Name:        s.Current.Name,
			Date:        s.Date,
			Temperature: s.Current.Temperature,
			Icon:        s.Current.Icon,
			IconURL:     IconURL(iconTemplate, s.Current.Icon),
			Description: s.Current.Description,
		}
	}
	if s.Forecast != nil {
		v.Forecast = make([]DayRow, 0, len(s.Forecast))
		for _, g := range s.Forecast {
			row := DayRow{Date: g.Date, Cards: make([]Card, 0, len(g.Times))}
			for _, e := range g.Times {
				row.Cards = append(row.Cards, Card{
					Time:        e.Time,
					Temperature: e.Temperature,
					Icon:        e.Icon,
					IconURL:     IconURL(iconTemplate, e.Icon),
					Description: e.Description,
				})
			}
			v.Forecast = append(v.Forecast, row)
		}
	}
	return v
}

// Text writes v as a terminal screen. The header is always written; each
// section after it only when its data is present.
func Text(w io.Writer, v View) error {
	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)

	if v.Location != nil {
		fmt.Fprintf(tw, "Weather at %.4f, %.4f\n", v.Location.Latitude, v.Location.Longitude)
	} else {
		fmt.Fprintln(tw, "Weather (location unavailable)")
	}

	if c := v.Current; c != nil {
		fmt.Fprintln(tw)
		fmt.Fprintf(tw, "%s\t%s\n", c.Name, c.Date)
		fmt.Fprintf(tw, "%s\t%s\t[%s]\n", temperature(c.Temperature), c.Description, c.Icon)
	}

	for _, row := range v.Forecast {
		fmt.Fprintln(tw)
		fmt.Fprintln(tw, row.Date)
		writeCardLine(tw, row.Cards, func(c Card) string { return c.Time })
		writeCardLine(tw, row.Cards, func(c Card) string { return "[" + c.Icon + "]" })
		writeCardLine(tw, row.Cards, func(c Card) string { return temperature(c.Temperature) })
		writeCardLine(tw, row.Cards, func(c Card) string { return c.Description })
		// Flush per row so column widths do not leak between days.
		if err := tw.Flush(); err != nil {
			return err
		}
	}
	return tw.Flush()
}

func writeCardLine(w io.Writer, cards []Card, field func(Card) string) {
	cells := make([]string, len(cards))
	for i, c := range cards {
		cells[i] = field(c)
	}
	fmt.Fprintln(w, strings.Join(cells, "\t")+"\t")
}

func temperature(c float64) string {
	return fmt.Sprintf("%.1f°C", c)
}
