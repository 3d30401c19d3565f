package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/DNAi-inc/DNHealth-sub001/internal/platform/db"
	"github.com/DNAi-inc/DNHealth-sub001/internal/platform/store"
)

type healthResponse struct {
	Status    string         `json:"status"`
	Resources int            `json:"resources"`
	Types     map[string]int `json:"types,omitempty"`
	LoadedAt  time.Time      `json:"loadedAt"`
	Database  *db.Health     `json:"database,omitempty"`
}

// HealthHandler reports the corpus snapshot and, when pinger is set, the
// database the corpus was loaded from. An unreachable database makes the
// service degraded but still able to search.
func HealthHandler(st *store.Store, pinger db.Pinger) echo.HandlerFunc {
	return func(c echo.Context) error {
		snap := st.Snapshot()
		resp := healthResponse{
			Status:    "healthy",
			Resources: snap.Len(),
			Types:     snap.Counts(),
			LoadedAt:  st.LoadedAt(),
		}
		if pinger != nil {
			h := db.Check(c.Request().Context(), pinger)
			resp.Database = &h
			if !h.Healthy() {
				resp.Status = "degraded"
			}
		}
		return c.JSON(http.StatusOK, resp)
	}
}
