package handlers

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yoockh/veriview/internal/analysis"
)

// AnalyzerStatus is the part of the analysis supervisor /health reports.
type AnalyzerStatus interface {
	Status() map[string]analysis.ComponentStatus
	Policy() string
}

type HealthHandler struct {
	analyzers     AnalyzerStatus
	avatarEnabled bool
	checks        map[string]func(context.Context) error
}

// NewHealthHandler reports analyzer variants and runs checks against the
// configured backing services.
func NewHealthHandler(analyzers AnalyzerStatus, avatarEnabled bool, checks map[string]func(context.Context) error) *HealthHandler {
	return &HealthHandler{analyzers: analyzers, avatarEnabled: avatarEnabled, checks: checks}
}

func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := "ok"
	services := gin.H{}

	if h.analyzers != nil {
		services["analyzer_policy"] = h.analyzers.Policy()
		for name, st := range h.analyzers.Status() {
			services[name] = st
			if st.Demoted {
				status = "degraded"
			}
		}
	}
	services["avatar"] = gin.H{"enabled": h.avatarEnabled}

	names := make([]string, 0, len(h.checks))
	for n := range h.checks {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		if err := h.checks[n](ctx); err != nil {
			services[n] = gin.H{"ok": false, "error": err.Error()}
			status = "degraded"
			continue
		}
		services[n] = gin.H{"ok": true}
	}

	c.JSON(http.StatusOK, gin.H{"status": status, "services": services})
}
