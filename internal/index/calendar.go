package index

import (
	"fmt"

	"multicarrier-planner/internal/model"
)

type yearHour struct{ year, hour string }

// Calendar holds the ordered planning years and the hour-slices of each year.
type Calendar struct {
	years []string
	ord   map[string]int
	hours map[string][]string
	scale map[yearHour]float64
}

// NewCalendar builds the time structure from the time-slice table. When no
// slice names a year, the years and hours of the demand and supply rows are
// used instead. A year
// without its own slices uses every hour seen anywhere. Missing or zero
// scale factors mean 1.
func NewCalendar(t model.Tables) (*Calendar, error) {
	c := &Calendar{
		ord:   map[string]int{},
		hours: map[string][]string{},
		scale: map[yearHour]float64{},
	}

	var years, allHours []string
	perYear := map[string][]string{}
	for i, ts := range t.Time {
		if ts.Hour == "" {
			return nil, &model.SchemaError{Table: "time", Row: i + 1, Field: "hour", Reason: "hour is required"}
		}
		if ts.Scale < 0 {
			return nil, &model.SchemaError{Table: "time", Row: i + 1, Field: "scale", Reason: fmt.Sprintf("scale %g must be >= 0", ts.Scale)}
		}
		allHours = append(allHours, ts.Hour)
		if ts.Year == "" {
			continue
		}
		years = append(years, ts.Year)
		perYear[ts.Year] = append(perYear[ts.Year], ts.Hour)
		k := yearHour{ts.Year, ts.Hour}
		if _, ok := c.scale[k]; !ok && ts.Scale > 0 {
			c.scale[k] = ts.Scale
		}
	}
	// Year-less slices set the scale of that hour in every year.
	anyYear := map[string]float64{}
	for _, ts := range t.Time {
		if ts.Year == "" && ts.Scale > 0 {
			if _, ok := anyYear[ts.Hour]; !ok {
				anyYear[ts.Hour] = ts.Scale
			}
		}
	}

	// Data rows only name the planning years when the time table names none;
	// otherwise rows in other years are skipped when the index is built.
	dataHours := map[string][]string{}
	if len(years) == 0 {
		for _, d := range t.Demand {
			years = append(years, d.Year)
			dataHours[d.Year] = append(dataHours[d.Year], d.Hour)
			allHours = append(allHours, d.Hour)
		}
		for _, s := range t.Supply {
			years = append(years, s.Year)
			dataHours[s.Year] = append(dataHours[s.Year], s.Hour)
			allHours = append(allHours, s.Hour)
		}
		for _, r := range t.Regas {
			if r.Year != "" {
				years = append(years, r.Year)
			}
		}
	}

	years = dedupe(years)
	SortLabels(years)
	if len(years) == 0 {
		return nil, &model.SchemaError{Table: "time", Reason: "no planning years"}
	}
	allHours = dedupe(allHours)
	SortLabels(allHours)

	for i, y := range years {
		c.ord[y] = i
		hs := dedupe(perYear[y])
		if len(hs) == 0 {
			hs = dedupe(dataHours[y])
		}
		if len(hs) == 0 {
			hs = append([]string(nil), allHours...)
		}
		if len(hs) == 0 {
			return nil, &model.SchemaError{Table: "time", Reason: fmt.Sprintf("year %s has no hour-slices", y)}
		}
		SortLabels(hs)
		c.hours[y] = hs
		for _, h := range hs {
			k := yearHour{y, h}
			if _, ok := c.scale[k]; ok {
				continue
			}
			if s, ok := anyYear[h]; ok {
				c.scale[k] = s
			} else {
				c.scale[k] = 1
			}
		}
	}
	c.years = years
	return c, nil
}

// Years returns the ordered planning years.
func (c *Calendar) Years() []string { return c.years }

func (c *Calendar) First() string { return c.years[0] }
func (c *Calendar) Last() string  { return c.years[len(c.years)-1] }

func (c *Calendar) IsFirst(y string) bool { return c.ord[y] == 0 }
func (c *Calendar) IsLast(y string) bool  { return c.ord[y] == len(c.years)-1 }

// Ord returns the zero-based position of year y.
func (c *Calendar) Ord(y string) int { return c.ord[y] }

func (c *Calendar) HasYear(y string) bool {
	_, ok := c.ord[y]
	return ok
}

// Prev returns the immediate predecessor of y.
func (c *Calendar) Prev(y string) (string, bool) {
	i, ok := c.ord[y]
	if !ok || i == 0 {
		return "", false
	}
	return c.years[i-1], true
}

// From returns y and every later year.
func (c *Calendar) From(y string) []string {
	i, ok := c.ord[y]
	if !ok {
		return nil
	}
	return c.years[i:]
}

// Hours returns the ordered hour-slices of year y.
func (c *Calendar) Hours(y string) []string { return c.hours[y] }

func (c *Calendar) HasHour(y, h string) bool {
	_, ok := c.scale[yearHour{y, h}]
	return ok
}

// Scale returns the scale factor of (y, h).
func (c *Calendar) Scale(y, h string) float64 {
	if s, ok := c.scale[yearHour{y, h}]; ok {
		return s
	}
	return 1
}

// TotalScale sums the scale factors of every hour-slice of year y.
func (c *Calendar) TotalScale(y string) float64 {
	total := 0.0
	for _, h := range c.hours[y] {
		total += c.Scale(y, h)
	}
	return total
}
