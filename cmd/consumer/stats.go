package main

import (
	"html/template"
	"log/slog"
	"net/http"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"golang.org/x/exp/maps"

	"github.com/klinok066/robots/internal/metrics"
)

func (s journalServer) handleStats(w http.ResponseWriter, r *http.Request) {
	data := s.stats.Data()
	accept := strings.Split(r.Header.Get("Accept"), ",")
	for i := range accept {
		accept[i] = strings.TrimSpace(accept[i])
	}
	if slices.Contains(accept, "application/json") {
		writeJSON(w, http.StatusOK, data)
		return
	}
	serveHTML(s.wwwDir, data, w, s.logger)
}

type chartParams struct {
	Points string
}

// chartPoints lays the buckets out as an SVG polyline on a 300x100 figure, right aligned and
// scaled so the busiest second touches the top.
func chartPoints(buckets metrics.TimeBuckets) string {
	orderedBucketTimes := maps.Keys(buckets)
	slices.SortFunc(orderedBucketTimes, func(a time.Time, b time.Time) int {
		return a.Compare(b)
	})

	max := slices.Max(maps.Values(buckets))

	// Panels with different maxima should render at the same height, so normalize the Y
	// coordinates to 0-100 instead of scaling each panel.
	verticalScalingFactor := float64(100)
	if max > 0 {
		verticalScalingFactor /= float64(max)
	}

	sb := strings.Builder{}
	for i, k := range orderedBucketTimes {
		count := buckets[k]

		// Shift right by the unused width so the newest point sits at the right edge.
		x := (300 - len(buckets)) + i

		// SVG puts y=0 at the top of the figure.
		y := max - count

		y = int(float64(y) * verticalScalingFactor)

		if sb.Len() > 0 {
			sb.WriteString(" ")
		}
		sb.WriteString(strconv.Itoa(x))
		sb.WriteString(",")
		sb.WriteString(strconv.Itoa(y))
	}
	return sb.String()
}

func serveHTML(wwwDir string, data map[string]metrics.TimeBuckets, w http.ResponseWriter, logger *slog.Logger) {
	params := make(map[string]chartParams, len(data))

	for element, buckets := range data {
		if len(buckets) == 0 {
			continue
		}
		params[element] = chartParams{Points: chartPoints(buckets)}
	}

	t := template.New("t")
	t, err := t.ParseFiles(filepath.Join(wwwDir, "templates", "page.html"))
	if err != nil {
		logger.Error("parse HTML template", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	if err := t.ExecuteTemplate(w, "page.html", params); err != nil {
		logger.Error("execute HTML template", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
	}
}
