package handlers

import (
	"net/http"
	"os"
	"strings"
	"time"

	"lawdesk/internal/pkg/errors"
	"lawdesk/internal/platform/database"
)

type HealthHandler struct {
	globalDB *database.GlobalDB
	rootDir  string
}

// NewHealthHandler checks the global database and, when rootDir is set, that
// the storage root is writable.
func NewHealthHandler(globalDB *database.GlobalDB, rootDir string) *HealthHandler {
	return &HealthHandler{globalDB: globalDB, rootDir: rootDir}
}

func (h *HealthHandler) checkStorage() error {
	if err := os.MkdirAll(h.rootDir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(h.rootDir, ".health-*")
	if err != nil {
		return err
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}

func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)

	if err := h.globalDB.Ping(r.Context()); err != nil {
		checks["global_db"] = "unhealthy: " + err.Error()
	} else {
		checks["global_db"] = "healthy"
	}

	if h.rootDir != "" {
		if err := h.checkStorage(); err != nil {
			checks["storage"] = "unhealthy: " + err.Error()
		} else {
			checks["storage"] = "healthy"
		}
	}

	status := "healthy"
	for _, check := range checks {
		if strings.HasPrefix(check, "unhealthy") {
			status = "degraded"
			break
		}
	}

	statusCode := http.StatusOK
	if status == "degraded" {
		statusCode = http.StatusServiceUnavailable
	}

	errors.WriteJSON(w, statusCode, struct {
		Status    string            `json:"status"`
		Timestamp int64             `json:"timestamp"`
		Checks    map[string]string `json:"checks"`
	}{
		Status:    status,
		Timestamp: time.Now().Unix(),
		Checks:    checks,
	})
}
