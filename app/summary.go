package app

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/grantsnap/statekit/component"
)

// RouteInfo represents a registered HTTP route.
type RouteInfo struct {
	Method string
	Path   string
}

// Summary renders the startup report.
type Summary struct {
	serviceName     string
	version         string
	startupDuration time.Duration
	extras          []string
	out             io.Writer
}

// NewSummary creates a startup report writer.
func NewSummary(serviceName, version string, out io.Writer) *Summary {
	return &Summary{serviceName: serviceName, version: version, out: out}
}

// SetStartupDuration records the total startup time.
func (s *Summary) SetStartupDuration(d time.Duration) {
	s.startupDuration = d
}

// AddInfo adds a line to the infrastructure section.
func (s *Summary) AddInfo(line string) {
	s.extras = append(s.extras, line)
}

// Display prints the summary including live health from the registry.
func (s *Summary) Display(registry *component.Registry, routes []RouteInfo) {
	w := s.out
	fmt.Fprintf(w, "\n%s %s started in %.2fs\n", s.serviceName, versionLabel(s.version), s.startupDuration.Seconds())

	var infra []string
	if registry != nil {
		for _, d := range registry.Describe() {
			infra = append(infra, fmt.Sprintf("%-12s %s (%s)", d.Type, d.Name, d.Details))
		}
	}
	infra = append(infra, s.extras...)
	if len(infra) > 0 {
		fmt.Fprintf(w, "\nInfrastructure\n")
		for i, line := range infra {
			fmt.Fprintf(w, "   %s %s\n", branch(i, len(infra)), line)
		}
	}

	if len(routes) > 0 {
		fmt.Fprintf(w, "\nRoutes (%d)\n", len(routes))
		for i, r := range routes {
			fmt.Fprintf(w, "   %s %-7s %s\n", branch(i, len(routes)), r.Method, r.Path)
		}
	}

	if registry != nil {
		results := registry.HealthAll(context.Background())
		if len(results) > 0 {
			fmt.Fprintf(w, "\nHealth\n")
			for i, h := range results {
				msg := ""
				if h.Message != "" {
					msg = " (" + h.Message + ")"
				}
				fmt.Fprintf(w, "   %s %s: %s%s\n", branch(i, len(results)), h.Name, strings.ToLower(string(h.Status)), msg)
			}
		} else {
			fmt.Fprintf(w, "   └── No components registered\n")
		}
	}
	fmt.Fprintln(w)
}

func versionLabel(v string) string {
	if v == "" {
		return "(dev)"
	}
	return "v" + v
}

func branch(i, n int) string {
	if i == n-1 {
		return "└──"
	}
	return "├──"
}
