package dash

import (
	"fmt"
	"strings"

	"github.com/repolens/repolens/internal/client/querycache"
	"github.com/repolens/repolens/internal/lenssdk"
	"github.com/repolens/repolens/internal/version"
)

// connIndicator is the one always-visible truth about connectivity. Live
// means push events flow; anything else means the screen may lag reality.
func connIndicator(s lenssdk.ConnState) string {
	switch s {
	case lenssdk.ConnOpen:
		return green.Render("● live")
	case lenssdk.ConnConnecting:
		return yellow.Render("● connecting")
	case lenssdk.ConnClosed:
		return red.Render("● reconnecting")
	default:
		return gray.Render("● offline")
	}
}

func (m *Model) renderHeader(b *strings.Builder) {
	b.WriteString(titleStyle.Render(version.AppName))
	b.WriteString("  ")
	b.WriteString(connIndicator(m.connState))

	if e := m.backend.Cache().Get(querycache.KeyStatus); e.Value != nil {
		status := e.Value.(*lenssdk.RepoStatus)
		if status.FilesIndexed != nil {
			fmt.Fprintf(b, "  %s", gray.Render(fmt.Sprintf("%d files", *status.FilesIndexed)))
		}
		if status.ScanInFlight {
			fmt.Fprintf(b, "  %s %s", m.spinner.View(), yellow.Render("scanning"))
		}
	}
	b.WriteString("\n")

	tabs := make([]string, 0, len(Routes()))
	for i, route := range Routes() {
		label := fmt.Sprintf("%d:%s", i+1, route.Title())
		if route == m.route {
			tabs = append(tabs, activeTab.Render(label))
		} else {
			tabs = append(tabs, inactiveTab.Render(label))
		}
	}
	b.WriteString(strings.Join(tabs, "  "))
	b.WriteString("\n")
}
