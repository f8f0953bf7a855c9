package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"marginalia/api/internal/identity"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
	logger     *zap.Logger
}

func NewHTTPServer(service *Service, corsOrigin string, logger *zap.Logger) *HTTPServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPServer{service: service, corsOrigin: corsOrigin, logger: logger}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		s.handleReady(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/register" {
		s.handleRegister(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/refresh" {
		s.handleRefresh(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/logout" {
		var body struct {
			RefreshToken string `json:"refreshToken"`
		}
		_ = decodeBody(r, &body)
		s.service.Logout(r.Context(), body.RefreshToken)
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/session" {
		s.handleSession(w, r)
		return
	}

	segments := splitPath(r.URL.Path)
	if len(segments) >= 2 && segments[0] == "api" && segments[1] == "sites" {
		s.handleSites(w, r, segments[2:])
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found")
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := s.service.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"ok": false, "status": "not_ready"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "status": "ready"})
}

func (s *HTTPServer) handleRegister(w http.ResponseWriter, r *http.Request) {
	var body struct {
		DisplayName string `json:"displayName"`
		Username    string `json:"username"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error())
		return
	}
	session, err := s.service.Register(r.Context(), body.DisplayName, body.Username)
	if err != nil {
		respondFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionPayload(session))
}

func (s *HTTPServer) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error())
		return
	}
	session, err := s.service.Refresh(r.Context(), body.RefreshToken)
	if err != nil {
		respondFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionPayload(session))
}

func (s *HTTPServer) handleSession(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		writeJSON(w, http.StatusOK, map[string]any{"authenticated": false})
		return
	}
	principal, err := s.service.PrincipalFromToken(token)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"authenticated": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"authenticated": true,
		"userId":        principal.UserID,
		"userName":      principal.Name,
	})
}

// handleSites routes everything under /api/sites. The first segment is
// either a site-level verb or a content hash; hashes are 128 hex characters
// so the two can never collide.
func (s *HTTPServer) handleSites(w http.ResponseWriter, r *http.Request, segments []string) {
	if len(segments) == 0 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found")
		return
	}

	if r.Method == http.MethodPost && len(segments) == 1 {
		switch segments[0] {
		case "index":
			var input IndexWebsiteInput
			if err := decodeBody(r, &input); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error())
				return
			}
			s.respondWrite(w, s.service.IndexWebsite(r.Context(), s.principal(r), input))
			return
		case "flag":
			var input FlagWebsiteInput
			if err := decodeBody(r, &input); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error())
				return
			}
			s.respondWrite(w, s.service.FlagWebsite(r.Context(), s.principal(r), input))
			return
		case "upvote", "downvote", "bookmark":
			var input SiteTargetInput
			if err := decodeBody(r, &input); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error())
				return
			}
			principal := s.principal(r)
			switch segments[0] {
			case "upvote":
				s.respondWrite(w, s.service.UpvoteWebsite(r.Context(), principal, input))
			case "downvote":
				s.respondWrite(w, s.service.DownvoteWebsite(r.Context(), principal, input))
			default:
				s.respondWrite(w, s.service.BookmarkWebsite(r.Context(), principal, input))
			}
			return
		}
	}

	hash := segments[0]
	rest := segments[1:]

	if r.Method == http.MethodGet && len(rest) == 0 {
		site, err := s.service.Website(r.Context(), hash)
		if err != nil {
			respondFault(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"hash":        site.ContentHash,
			"url":         site.URL,
			"title":       site.Title,
			"description": site.Description,
			"keywords":    site.Keywords,
			"image":       site.Image,
			"favicon":     site.Favicon,
			"indexedAt":   site.IndexedAt.UTC().Format(time.RFC3339),
		})
		return
	}

	if len(rest) == 1 && r.Method == http.MethodPost && rest[0] == "impression" {
		s.respondWrite(w, s.service.RecordImpression(r.Context(), hash))
		return
	}

	if r.Method == http.MethodGet && len(rest) >= 1 {
		switch rest[0] {
		case "impressions":
			s.respondCount(w, r, func(ctx context.Context) (any, error) {
				return s.service.Impressions(ctx, hash)
			})
			return
		case "comment-count":
			s.respondCount(w, r, func(ctx context.Context) (any, error) {
				return s.service.CommentCount(ctx, hash)
			})
			return
		case "flag-count":
			s.respondCount(w, r, func(ctx context.Context) (any, error) {
				return s.service.FlagCount(ctx, hash)
			})
			return
		case "flag-weight":
			s.respondCount(w, r, func(ctx context.Context) (any, error) {
				return s.service.CumulativeWeight(ctx, hash)
			})
			return
		case "vote":
			principal := s.principal(r)
			s.respondCount(w, r, func(ctx context.Context) (any, error) {
				return s.service.SiteVoteFor(ctx, principal, hash)
			})
			return
		case "bookmark":
			principal := s.principal(r)
			s.respondCount(w, r, func(ctx context.Context) (any, error) {
				return s.service.SiteBookmarkedFor(ctx, principal, hash)
			})
			return
		case "flag-distribution":
			if len(rest) == 2 {
				reason := rest[1]
				s.respondCount(w, r, func(ctx context.Context) (any, error) {
					return s.service.FlagDistributionFor(ctx, hash, reason)
				})
				return
			}
			s.respondCount(w, r, func(ctx context.Context) (any, error) {
				return s.service.FlagDistribution(ctx, hash)
			})
			return
		case "comments":
			if len(rest) == 1 {
				comments, err := s.service.Comments(r.Context(), hash)
				if err != nil {
					respondFault(w, err)
					return
				}
				items := make([]map[string]any, 0, len(comments))
				for _, comment := range comments {
					items = append(items, map[string]any{
						"id":         comment.ID,
						"authorId":   comment.AuthorID,
						"domain":     comment.Domain,
						"url":        comment.URL,
						"body":       comment.Body,
						"replyCount": comment.ReplyCount,
						"createdAt":  comment.CreatedAt.UTC().Format(time.RFC3339),
					})
				}
				writeJSON(w, http.StatusOK, map[string]any{"comments": items})
				return
			}
		}
	}

	if len(rest) >= 1 && rest[0] == "comments" {
		s.handleComments(w, r, hash, rest[1:])
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found")
}

func (s *HTTPServer) handleComments(w http.ResponseWriter, r *http.Request, hash string, rest []string) {
	switch {
	case r.Method == http.MethodPost && len(rest) == 0:
		var input AddCommentInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error())
			return
		}
		input.Hash = hash
		commentID, err := s.service.AddComment(r.Context(), s.principal(r), input)
		if err != nil {
			respondFault(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "id": commentID})

	case r.Method == http.MethodPut && len(rest) == 1:
		var input EditCommentInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error())
			return
		}
		input.Hash = hash
		input.ID = rest[0]
		s.respondWrite(w, s.service.EditComment(r.Context(), s.principal(r), input))

	case r.Method == http.MethodDelete && len(rest) == 1:
		var input CommentTargetInput
		_ = decodeBody(r, &input)
		input.Hash = hash
		input.ID = rest[0]
		s.respondWrite(w, s.service.DeleteComment(r.Context(), s.principal(r), input))

	case r.Method == http.MethodGet && len(rest) == 2 && rest[1] == "vote":
		principal := s.principal(r)
		s.respondCount(w, r, func(ctx context.Context) (any, error) {
			return s.service.CommentVoteFor(ctx, principal, hash, rest[0])
		})

	case r.Method == http.MethodGet && len(rest) == 2 && rest[1] == "bookmark":
		principal := s.principal(r)
		s.respondCount(w, r, func(ctx context.Context) (any, error) {
			return s.service.CommentBookmarkedFor(ctx, principal, hash, rest[0])
		})

	case r.Method == http.MethodPost && len(rest) == 2:
		var input CommentTargetInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error())
			return
		}
		input.Hash = hash
		input.ID = rest[0]
		principal := s.principal(r)
		switch rest[1] {
		case "upvote":
			s.respondWrite(w, s.service.UpvoteComment(r.Context(), principal, input))
		case "downvote":
			s.respondWrite(w, s.service.DownvoteComment(r.Context(), principal, input))
		case "bookmark":
			s.respondWrite(w, s.service.BookmarkComment(r.Context(), principal, input))
		case "report":
			s.respondWrite(w, s.service.ReportComment(r.Context(), principal, input))
		case "not-interested":
			s.respondWrite(w, s.service.NotInterestedInComment(r.Context(), principal, input))
		default:
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found")
		}

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found")
	}
}

// principal extracts the session identity from the bearer token. A missing
// or invalid token yields a zero principal; the orchestrator's identity gate
// turns that into NotAuthenticated.
func (s *HTTPServer) principal(r *http.Request) identity.Principal {
	token := bearerToken(r)
	if token == "" {
		return identity.Principal{}
	}
	principal, err := s.service.PrincipalFromToken(token)
	if err != nil {
		return identity.Principal{}
	}
	return principal
}

func (s *HTTPServer) respondWrite(w http.ResponseWriter, err error) {
	if err != nil {
		respondFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) respondCount(w http.ResponseWriter, r *http.Request, read func(context.Context) (any, error)) {
	value, err := read(r.Context())
	if err != nil {
		respondFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"value": value})
}

func respondFault(w http.ResponseWriter, err error) {
	fault := PublicFault(err)
	writeError(w, fault.Status, fault.Code, fault.Message)
}

func sessionPayload(session Session) map[string]any {
	return map[string]any{
		"token":        session.Token,
		"refreshToken": session.RefreshToken,
		"userId":       session.UserID,
		"userName":     session.UserName,
		"username":     session.Username,
		"expiresAt":    session.ExpiresAt.UTC().Format(time.RFC3339),
	}
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		s.logger.Info("request",
			zap.String("request_id", requestID),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", writer.status),
			zap.Int64("duration_ms", time.Since(started).Milliseconds()),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{"code": code, "error": message})
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(target); err != nil {
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}
