package forecast

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/language"
)

// ErrInvalidLocale is returned when a locale tag cannot be parsed.
var ErrInvalidLocale = errors.New("invalid locale")

// ErrInvalidTimeZone is returned when a time zone name is unknown.
var ErrInvalidTimeZone = errors.New("invalid time zone")

// Locale fixes how dates and times are written. Time layouts always carry
// two-digit hour and minute fields.
type Locale struct {
	Tag        string
	DateLayout string
	TimeLayout string
}

// ISO is the fallback locale when nothing better matches.
var ISO = Locale{Tag: "iso", DateLayout: "2006-01-02", TimeLayout: "15:04"}

var presets = []struct {
	tag    language.Tag
	locale Locale
}{
	{language.Und, ISO},
	{language.AmericanEnglish, Locale{Tag: "en-US", DateLayout: "1/2/2006", TimeLayout: "03:04 PM"}},
	{language.BritishEnglish, Locale{Tag: "en-GB", DateLayout: "02/01/2006", TimeLayout: "15:04"}},
	{language.MustParse("fr-FR"), Locale{Tag: "fr-FR", DateLayout: "02/01/2006", TimeLayout: "15:04"}},
	{language.MustParse("de-DE"), Locale{Tag: "de-DE", DateLayout: "2.1.2006", TimeLayout: "15:04"}},
	{language.MustParse("es-ES"), Locale{Tag: "es-ES", DateLayout: "2/1/2006", TimeLayout: "15:04"}},
	{language.MustParse("it-IT"), Locale{Tag: "it-IT", DateLayout: "2/1/2006", TimeLayout: "15:04"}},
	{language.MustParse("ja-JP"), Locale{Tag: "ja-JP", DateLayout: "2006/1/2", TimeLayout: "15:04"}},
}

var matcher = func() language.Matcher {
	tags := make([]language.Tag, len(presets))
	for i, p := range presets {
		tags[i] = p.tag
	}
	return language.NewMatcher(tags)
}()

// LookupLocale matches a BCP 47 tag against the known presets. An empty tag or
// "iso" selects ISO; a well-formed tag with no close preset also falls back to ISO.
func LookupLocale(tag string) (Locale, error) {
	tag = strings.TrimSpace(tag)
	if tag == "" || strings.EqualFold(tag, ISO.Tag) {
		return ISO, nil
	}
	parsed, err := language.Parse(tag)
	if err != nil {
		return Locale{}, fmt.Errorf("%w: %q", ErrInvalidLocale, tag)
	}
	_, idx, conf := matcher.Match(parsed)
	if conf == language.No {
		return ISO, nil
	}
	return presets[idx].locale, nil
}

// Formatter renders unix timestamps as display dates and times for one locale
// in one time zone. Both are explicit so the output never depends on the host.
type Formatter struct {
	Locale Locale
	Zone   *time.Location
}

// NewFormatter builds a Formatter from a locale tag and an IANA zone name.
// An empty zone means UTC.
func NewFormatter(tag, zone string) (Formatter, error) {
	loc, err := LookupLocale(tag)
	if err != nil {
		return Formatter{}, err
	}
	tz := time.UTC
	if zone = strings.TrimSpace(zone); zone != "" {
		tz, err = time.LoadLocation(zone)
		if err != nil {
			return Formatter{}, fmt.Errorf("%w: %q", ErrInvalidTimeZone, zone)
		}
	}
	return Formatter{Locale: loc, Zone: tz}, nil
}

func (f Formatter) zone() *time.Location {
	if f.Zone == nil {
		return time.UTC
	}
	return f.Zone
}

func (f Formatter) layouts() Locale {
	if f.Locale.DateLayout == "" || f.Locale.TimeLayout == "" {
		return ISO
	}
	return f.Locale
}

// Date formats the calendar date of a unix timestamp (no time component).
func (f Formatter) Date(unix int64) string {
	return f.DateOf(time.Unix(unix, 0))
}

// Time formats the hour and minute of a unix timestamp.
func (f Formatter) Time(unix int64) string {
	return time.Unix(unix, 0).In(f.zone()).Format(f.layouts().TimeLayout)
}

// DateOf formats the calendar date of t.
func (f Formatter) DateOf(t time.Time) string {
	return t.In(f.zone()).Format(f.layouts().DateLayout)
}
