// Package cluster groups geolocated reports that are close in space and
// time, so the dashboard can show one pin for a pothole reported by five
// callers.
package cluster

import (
	"math"
	"sort"
	"strings"
	"time"

	"civic_reports/internal/report"
)

const earthRadiusMeters = 6371000

func haversineMeters(lat1, lon1, lat2, lon2 float64) float64 {
	const degToRad = math.Pi / 180
	lat1 *= degToRad
	lon1 *= degToRad
	lat2 *= degToRad
	lon2 *= degToRad
	dlat := lat2 - lat1
	dlon := lon2 - lon1
	a := math.Sin(dlat/2)*math.Sin(dlat/2) + math.Cos(lat1)*math.Cos(lat2)*math.Sin(dlon/2)*math.Sin(dlon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusMeters * c
}

// Cluster is one group of nearby, near-in-time reports.
type Cluster struct {
	ReportIDs    []string            `json:"report_ids"`
	Count        int                 `json:"count"`
	Centroid     report.Coordinates  `json:"centroid"`
	IncidentType string              `json:"incident_type"`
	Priority     string              `json:"priority"`
	FirstSeen    time.Time           `json:"first_seen"`
	LastSeen     time.Time           `json:"last_seen"`
}

// Options bound the grouping.
type Options struct {
	RadiusMeters float64
	Window       time.Duration
}

// DefaultOptions covers a city block reported within a day.
func DefaultOptions() Options {
	return Options{RadiusMeters: 150, Window: 24 * time.Hour}
}

type working struct {
	reports  []report.Report
	lastSeen time.Time
	lat      float64
	lng      float64
}

// Group clusters the geolocated reports. Reports without coordinates are
// ignored. Within each pass a report joins the nearest open cluster whose
// anchor is inside the radius and whose last report is inside the window.
func Group(reports []report.Report, opts Options) []Cluster {
	var located []report.Report
	for _, r := range reports {
		if r.Coordinates != nil {
			located = append(located, r)
		}
	}
	if len(located) == 0 {
		return nil
	}
	sort.Slice(located, func(i, j int) bool {
		return located[i].CallTime.Before(located[j].CallTime)
	})

	var open []working
	for _, r := range located {
		bestIdx := -1
		bestDistance := math.MaxFloat64
		for i := range open {
			c := &open[i]
			if r.CallTime.Sub(c.lastSeen) > opts.Window {
				continue
			}
			d := haversineMeters(r.Coordinates.Lat, r.Coordinates.Lng, c.lat, c.lng)
			if d > opts.RadiusMeters {
				continue
			}
			if d < bestDistance {
				bestDistance = d
				bestIdx = i
			}
		}
		if bestIdx == -1 {
			open = append(open, working{
				reports:  []report.Report{r},
				lastSeen: r.CallTime,
				lat:      r.Coordinates.Lat,
				lng:      r.Coordinates.Lng,
			})
			continue
		}
		c := &open[bestIdx]
		c.reports = append(c.reports, r)
		if r.CallTime.After(c.lastSeen) {
			c.lastSeen = r.CallTime
		}
		c.lat, c.lng = centroid(c.reports)
	}

	out := make([]Cluster, 0, len(open))
	for _, c := range open {
		out = append(out, summarize(c))
	}
	return out
}

func centroid(reports []report.Report) (float64, float64) {
	var lat, lng float64
	for _, r := range reports {
		lat += r.Coordinates.Lat
		lng += r.Coordinates.Lng
	}
	n := float64(len(reports))
	return lat / n, lng / n
}

func summarize(c working) Cluster {
	ids := make([]string, 0, len(c.reports))
	first := c.reports[0].CallTime
	for _, r := range c.reports {
		ids = append(ids, r.ID)
		if r.CallTime.Before(first) {
			first = r.CallTime
		}
	}
	return Cluster{
		ReportIDs:    ids,
		Count:        len(c.reports),
		Centroid:     report.Coordinates{Lat: c.lat, Lng: c.lng},
		IncidentType: majorityIncident(c.reports),
		Priority:     highestPriority(c.reports),
		FirstSeen:    first,
		LastSeen:     c.lastSeen,
	}
}

func majorityIncident(reports []report.Report) string {
	counts := make(map[string]int)
	for _, r := range reports {
		key := strings.ToLower(strings.TrimSpace(r.IncidentType))
		if key == "" || key == report.IncidentUnknown {
			continue
		}
		counts[key]++
	}
	var top string
	best := 0
	for key, count := range counts {
		if count > best {
			best = count
			top = key
		}
	}
	if top == "" {
		return report.IncidentUnknown
	}
	return top
}

func highestPriority(reports []report.Report) string {
	out := report.PriorityMedium
	for _, r := range reports {
		if r.Priority == report.PriorityUrgent {
			return report.PriorityUrgent
		}
		if r.Priority == report.PriorityHigh {
			out = report.PriorityHigh
		}
	}
	return out
}
