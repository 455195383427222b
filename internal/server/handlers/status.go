package handlers

import (
	"net/http"
	"sync"

	apperrors "github.com/SheetMetalConnect/metalfab-uns-simulator/internal/errors"
)

// VersionInfo is the build identity served by /version.
type VersionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
}

var (
	versionMu   sync.RWMutex
	versionInfo = VersionInfo{Version: "dev", Commit: "HEAD", BuildDate: "unknown"}
)

// SetVersionInfo installs the build identity, normally from ldflags.
func SetVersionInfo(version, commit, buildDate string) {
	versionMu.Lock()
	defer versionMu.Unlock()
	versionInfo = VersionInfo{Version: version, Commit: commit, BuildDate: buildDate}
}

// VersionHandler serves the build identity.
func VersionHandler(w http.ResponseWriter, _ *http.Request) {
	versionMu.RLock()
	v := versionInfo
	versionMu.RUnlock()
	writeJSON(w, http.StatusOK, v)
}

// StatusProvider supplies the live simulation snapshot for /status.
type StatusProvider func() any

var (
	statusMu       sync.RWMutex
	statusProvider StatusProvider
)

// SetStatusProvider installs the snapshot source. Pass nil to detach.
func SetStatusProvider(fn StatusProvider) {
	statusMu.Lock()
	defer statusMu.Unlock()
	statusProvider = fn
}

// StatusHandler serves the simulation snapshot, or 503 when no provider
// is attached.
func StatusHandler(w http.ResponseWriter, r *http.Request) {
	statusMu.RLock()
	fn := statusProvider
	statusMu.RUnlock()
	if fn == nil {
		respondWithError(w, r, apperrors.New(apperrors.CodeServiceUnavailable, "simulation not running"))
		return
	}
	writeJSON(w, http.StatusOK, fn())
}
