package api

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/repobrain/repobrain/internal/core/domain"
	"github.com/repobrain/repobrain/internal/core/ports/driven"
	"github.com/repobrain/repobrain/internal/core/ports/driving"
	"github.com/repobrain/repobrain/internal/logger"
)

type analyzeRequest struct {
	SessionID   string `json:"sessionId"`
	Owner       string `json:"owner"`
	Repo        string `json:"repo"`
	Branch      string `json:"branch"`
	CraftMCPURL string `json:"craftMcpUrl"`
}

type manualSyncRequest struct {
	SessionID   string `json:"sessionId"`
	Owner       string `json:"owner"`
	Repo        string `json:"repo"`
	Branch      string `json:"branch"`
	CraftMCPURL string `json:"craftMcpUrl"`
}

type autoSyncRequest struct {
	SessionID    string `json:"sessionId"`
	RepoFullName string `json:"repoFullName"`
	Enabled      *bool  `json:"enabled"`
}

// session resolves a session id or writes the 401 contract response.
func (s *Server) session(c *gin.Context, sessionID string) (*driven.Session, bool) {
	if sessionID == "" {
		respondError(c, http.StatusUnauthorized, "invalid_session", "sessionId is required")
		return nil, false
	}
	session, err := s.sessions.Get(c.Request.Context(), sessionID)
	if err != nil {
		respondError(c, http.StatusUnauthorized, "invalid_session", "session is unknown or expired")
		return nil, false
	}
	return session, true
}

// handleAnalyze materialises a repository into an engineering brain document.
func (s *Server) handleAnalyze(c *gin.Context) {
	var req analyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_request", "request body must be JSON")
		return
	}
	session, ok := s.session(c, req.SessionID)
	if !ok {
		return
	}
	if req.Owner == "" || req.Repo == "" || req.CraftMCPURL == "" {
		respondError(c, http.StatusBadRequest, "invalid_request", "owner, repo and craftMcpUrl are required")
		return
	}

	result, err := s.materialiser.Analyse(c.Request.Context(), driving.MaterialiseRequest{
		Owner:             req.Owner,
		Name:              req.Repo,
		Branch:            req.Branch,
		Credential:        session.Credential,
		WorkspaceEndpoint: req.CraftMCPURL,
		User:              session.User,
	})
	if err != nil {
		if errors.Is(err, domain.ErrInvalidInput) {
			respondError(c, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		logger.Error("analysing %s/%s: %v", req.Owner, req.Repo, err)
		respondError(c, http.StatusInternalServerError, "analysis_failed", "repository analysis failed")
		return
	}

	repoKey := domain.RepoKey(req.Owner, req.Repo)
	response := gin.H{
		"success": true,
		"craftDocument": gin.H{
			"id":    result.DocumentID,
			"title": result.DocumentTitle,
		},
		"connectionInfo": gin.H{
			"repoKey":       repoKey,
			"documentId":    result.DocumentID,
			"collectionIds": result.CollectionIDs,
		},
	}
	if result.AlreadyExists {
		response["alreadyExists"] = true
	}
	analysis := gin.H{
		"repoName":   req.Repo,
		"confidence": int(result.Confidence*100 + 0.5),
	}
	if result.Analysis != nil {
		analysis["techStack"] = result.Analysis.TechnicalStack
	}
	response["analysis"] = analysis

	c.JSON(http.StatusOK, response)
}

// handleManualSync forces a sync cycle for one connection.
func (s *Server) handleManualSync(c *gin.Context) {
	var req manualSyncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_request", "request body must be JSON")
		return
	}
	if _, ok := s.session(c, req.SessionID); !ok {
		return
	}
	if req.Owner == "" || req.Repo == "" {
		respondError(c, http.StatusBadRequest, "invalid_request", "owner and repo are required")
		return
	}

	repoKey := domain.RepoKey(req.Owner, req.Repo)
	result, err := s.engine.TriggerOne(c.Request.Context(), repoKey)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			respondError(c, http.StatusNotFound, "not_found", "repository is not connected")
			return
		}
		logger.Error("manual sync for %s: %v", repoKey, err)
		respondError(c, http.StatusInternalServerError, "sync_failed", "sync cycle failed")
		return
	}

	prs := result.PRsProcessed
	if prs == nil {
		prs = []int{}
	}
	commits := result.CommitSHAs
	if commits == nil {
		commits = []string{}
	}
	c.JSON(http.StatusOK, gin.H{
		"prCount":     len(prs),
		"commitCount": len(commits),
		"prs":         prs,
		"commits":     commits,
	})
}

// handleRepositories lists the repositories the session credential can access.
func (s *Server) handleRepositories(c *gin.Context) {
	session, ok := s.session(c, c.Query("sessionId"))
	if !ok {
		return
	}

	provider := s.providers.New(c.Request.Context(), session.Credential)
	repos, err := provider.ListAccessibleRepos(c.Request.Context())
	if err != nil {
		logger.Error("listing repositories for %s: %v", session.User.Login, err)
		respondError(c, http.StatusInternalServerError, "provider_error", "listing repositories failed")
		return
	}

	out := make([]gin.H, 0, len(repos))
	for _, repo := range repos {
		out = append(out, gin.H{
			"fullName":      repo.FullName,
			"description":   repo.Description,
			"defaultBranch": repo.DefaultBranch,
			"private":       repo.Private,
			"updatedAt":     repo.UpdatedAt.UTC(),
		})
	}
	c.JSON(http.StatusOK, gin.H{"repositories": out})
}

// handleConnected lists the user's connections, reconciling against the
// workspace: records whose remote document is gone are removed on the spot.
func (s *Server) handleConnected(c *gin.Context) {
	session, ok := s.session(c, c.Query("sessionId"))
	if !ok {
		return
	}

	records, err := s.connections.All(c.Request.Context())
	if err != nil {
		respondError(c, http.StatusInternalServerError, "store_error", "listing connections failed")
		return
	}

	out := make([]gin.H, 0, len(records))
	for _, record := range records {
		if record.OwnerUser.ID != session.User.ID {
			continue
		}
		if s.remoteDocumentGone(c.Request.Context(), &record) {
			logger.Info("remote document for %s is gone, removing connection", record.RepoKey)
			if err := s.connections.Delete(c.Request.Context(), record.RepoKey); err != nil {
				logger.Warn("removing connection %s: %v", record.RepoKey, err)
			}
			continue
		}
		out = append(out, connectionJSON(&record))
	}
	c.JSON(http.StatusOK, gin.H{"connections": out})
}

// remoteDocumentGone probes the workspace for the record's document. Probe
// failures keep the record; only a definite absence retires it.
func (s *Server) remoteDocumentGone(ctx context.Context, record *domain.ConnectionRecord) bool {
	workspace, err := s.workspaces.New(ctx, record.WorkspaceEndpoint)
	if err != nil {
		logger.Warn("connecting workspace for %s: %v", record.RepoKey, err)
		return false
	}
	_, found, err := workspace.DocumentExists(ctx, record.DocumentTitle)
	if err != nil {
		logger.Warn("probing workspace for %s: %v", record.RepoKey, err)
		return false
	}
	return !found
}

func connectionJSON(record *domain.ConnectionRecord) gin.H {
	out := gin.H{
		"repoKey":         record.RepoKey,
		"documentId":      record.DocumentID,
		"documentTitle":   record.DocumentTitle,
		"collectionIds":   record.CollectionIDs,
		"connectedAt":     record.ConnectedAt.UTC(),
		"lastUpdatedAt":   record.LastUpdatedAt.UTC(),
		"autoSyncEnabled": record.AutoSyncEnabled,
		"confidence":      record.Confidence,
	}
	if record.LastSyncedAt != nil {
		out["lastSyncedAt"] = record.LastSyncedAt.UTC()
	}
	if record.LastProcessedPR != nil {
		out["lastProcessedPR"] = *record.LastProcessedPR
	}
	return out
}

// handleDisconnect removes a connection, optionally deleting the remote
// document. The route uses a wildcard because repo keys contain a slash.
func (s *Server) handleDisconnect(c *gin.Context) {
	session, ok := s.session(c, c.Query("sessionId"))
	if !ok {
		return
	}

	repoKey := strings.TrimPrefix(c.Param("repoKey"), "/")
	if _, _, err := domain.SplitRepoKey(repoKey); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_request", "repo key must be owner/name")
		return
	}

	record, err := s.connections.Get(c.Request.Context(), repoKey)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			respondError(c, http.StatusNotFound, "not_found", "repository is not connected")
			return
		}
		respondError(c, http.StatusInternalServerError, "store_error", "loading connection failed")
		return
	}
	if record.OwnerUser.ID != session.User.ID {
		respondError(c, http.StatusNotFound, "not_found", "repository is not connected")
		return
	}

	deletedRemote := false
	if c.Query("deleteCraftDoc") == "true" && record.DocumentID != "" {
		workspace, err := s.workspaces.New(c.Request.Context(), record.WorkspaceEndpoint)
		if err == nil {
			err = workspace.DeleteDocument(c.Request.Context(), record.DocumentID)
		}
		if err != nil {
			logger.Warn("deleting remote document for %s: %v", record.RepoKey, err)
		} else {
			deletedRemote = true
		}
	}

	if err := s.connections.Delete(c.Request.Context(), repoKey); err != nil {
		respondError(c, http.StatusInternalServerError, "store_error", "removing connection failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "deletedCraftDoc": deletedRemote})
}

// handleSyncStatus reports the scheduler snapshot.
func (s *Server) handleSyncStatus(c *gin.Context) {
	status := s.engine.Status()

	lastSyncTimes := make(map[string]int64, len(status.LastSyncTimes))
	for repoKey, at := range status.LastSyncTimes {
		lastSyncTimes[repoKey] = at.UnixMilli()
	}

	c.JSON(http.StatusOK, gin.H{
		"isRunning":      status.Running,
		"connectedRepos": status.ConnectedRepos,
		"syncInterval":   int64(status.SyncInterval / time.Millisecond),
		"lastSyncTimes":  lastSyncTimes,
	})
}

// handleAutoSync flips the auto-sync flag on a connection.
func (s *Server) handleAutoSync(c *gin.Context) {
	var req autoSyncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_request", "request body must be JSON")
		return
	}
	if _, ok := s.session(c, req.SessionID); !ok {
		return
	}
	if req.RepoFullName == "" || req.Enabled == nil {
		respondError(c, http.StatusBadRequest, "invalid_request", "repoFullName and enabled are required")
		return
	}

	if err := s.connections.SetAutoSync(c.Request.Context(), req.RepoFullName, *req.Enabled); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			respondError(c, http.StatusNotFound, "not_found", "repository is not connected")
			return
		}
		respondError(c, http.StatusInternalServerError, "store_error", "updating auto-sync failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "autoSyncEnabled": *req.Enabled})
}

type webhookPayload struct {
	Repository struct {
		FullName string `json:"full_name"`
	} `json:"repository"`
}

// handleWebhook accepts provider push events. The body is authenticated with
// HMAC-SHA256 before anything is parsed; unsigned bodies are rejected.
func (s *Server) handleWebhook(c *gin.Context) {
	if s.webhookSecret == "" {
		respondError(c, http.StatusServiceUnavailable, "webhook_disabled", "no webhook secret configured")
		return
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid_request", "reading body failed")
		return
	}
	if !verifySignature(s.webhookSecret, body, c.GetHeader("X-Hub-Signature-256")) {
		respondError(c, http.StatusUnauthorized, "invalid_signature", "signature verification failed")
		return
	}

	if c.GetHeader("X-GitHub-Event") == "ping" {
		c.JSON(http.StatusOK, gin.H{"ok": true})
		return
	}

	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil || payload.Repository.FullName == "" {
		respondError(c, http.StatusBadRequest, "invalid_request", "missing repository.full_name")
		return
	}

	repoKey := payload.Repository.FullName
	if _, err := s.connections.Get(c.Request.Context(), repoKey); err != nil {
		// Not connected here; the hook may be shared across services.
		c.JSON(http.StatusAccepted, gin.H{"accepted": false})
		return
	}

	// The cycle runs in the background through the same path as the
	// scheduled sweep, so ordering and cursor rules hold.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if _, err := s.engine.TriggerOne(ctx, repoKey); err != nil {
			logger.Warn("webhook sync for %s: %v", repoKey, err)
		}
	}()
	c.JSON(http.StatusAccepted, gin.H{"accepted": true})
}

// verifySignature checks a "sha256=<hex>" header against the body HMAC.
func verifySignature(secret string, body []byte, header string) bool {
	digest, ok := strings.CutPrefix(header, "sha256=")
	if !ok {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	want := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(digest), []byte(want))
}
