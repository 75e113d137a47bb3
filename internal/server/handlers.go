package server

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/repolens/repolens/internal/lensmsg"
	"github.com/repolens/repolens/internal/lenssdk"
	"github.com/repolens/repolens/internal/version"
)

func abortError(ctx *gin.Context, status int, code string, message string) {
	ctx.AbortWithStatusJSON(status, lenssdk.APIError{Code: code, Message: message})
}

func (s *Server) handleStatus(ctx *gin.Context) {
	status := &lenssdk.RepoStatus{
		RootPath:      s.config.RootPath,
		WatcherActive: s.watcher.Active(),
		ScanInFlight:  s.rescanInFlight(),
		ServerVersion: version.Version,
	}
	if result := s.currentResult(); result != nil {
		completed := result.CompletedAt
		indexed := result.Tree.FilesIndexed
		status.LastFullScan = &completed
		status.FilesIndexed = &indexed
	}
	ctx.JSON(http.StatusOK, status)
}

func (s *Server) handleGetSettings(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, s.settings.Get())
}

func (s *Server) handleUpdateSettings(ctx *gin.Context) {
	var update lenssdk.SettingsUpdate
	if err := ctx.ShouldBindJSON(&update); err != nil {
		abortError(ctx, http.StatusBadRequest, lenssdk.CodeInvalidRequest, err.Error())
		return
	}

	settings, err := s.settings.Apply(&update)
	if err != nil {
		abortError(ctx, http.StatusBadRequest, lenssdk.CodeInvalidSettings, err.Error())
		return
	}

	s.watcher.SetDebounce(debounceDuration(settings.DebounceMs))
	s.hub.Broadcast(lensmsg.NewSettingsChangedEvent())
	slog.Info("settings updated", "debounceMs", settings.DebounceMs, "lint", settings.LintEnabled, "exclude", len(settings.Exclude))

	ctx.JSON(http.StatusOK, settings)
}

func (s *Server) handleTree(ctx *gin.Context) {
	result := s.currentResult()
	if result == nil {
		abortError(ctx, http.StatusNotFound, lenssdk.CodeRepoNotScanned, "no scan has completed yet")
		return
	}
	ctx.JSON(http.StatusOK, result.Tree)
}

func (s *Server) handleFile(ctx *gin.Context) {
	result := s.currentResult()
	if result == nil {
		abortError(ctx, http.StatusNotFound, lenssdk.CodeRepoNotScanned, "no scan has completed yet")
		return
	}

	path := strings.TrimPrefix(ctx.Param("path"), "/")
	detail, ok := result.Files[path]
	if !ok {
		abortError(ctx, http.StatusNotFound, lenssdk.CodeFileNotFound, "file is not in the index: "+path)
		return
	}
	ctx.JSON(http.StatusOK, detail)
}

func (s *Server) handleClassGraph(ctx *gin.Context) {
	result := s.currentResult()
	if result == nil {
		abortError(ctx, http.StatusNotFound, lenssdk.CodeRepoNotScanned, "no scan has completed yet")
		return
	}
	ctx.JSON(http.StatusOK, result.Graph)
}

func (s *Server) handleLint(ctx *gin.Context) {
	result := s.currentResult()
	if result == nil {
		abortError(ctx, http.StatusNotFound, lenssdk.CodeRepoNotScanned, "no scan has completed yet")
		return
	}
	ctx.JSON(http.StatusOK, result.Lint)
}

func (s *Server) handleRescan(ctx *gin.Context) {
	scanID, started := s.Rescan("api")
	if !started {
		abortError(ctx, http.StatusConflict, lenssdk.CodeRescanInFlight, "a rescan is already running: "+scanID)
		return
	}
	ctx.JSON(http.StatusAccepted, lenssdk.RescanAck{ScanID: scanID, Started: true})
}
