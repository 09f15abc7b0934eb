package httpapi

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/spigell/resume-screener/internal/audit"
	"github.com/spigell/resume-screener/internal/extract"
	"github.com/spigell/resume-screener/internal/queue"
	"github.com/spigell/resume-screener/internal/screening"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type evaluateRequest struct {
	JobID    string `json:"jobId"`
	ResumeID string `json:"resumeId"`
}

type batchRequest struct {
	JobID     string   `json:"jobId"`
	ResumeIDs []string `json:"resumeIds"`
	Max       *int     `json:"max"`
}

// limit turns the optional max into the service's convention where zero
// means the default.
func (r batchRequest) limit() (int, error) {
	if r.Max == nil {
		return 0, nil
	}
	if *r.Max < 1 || *r.Max > screening.MaxBatchCap {
		return 0, &screening.ValidationError{Field: "max", Msg: fmt.Sprintf("must be between 1 and %d", screening.MaxBatchCap)}
	}
	return *r.Max, nil
}

type patchRequest struct {
	Status *string `json:"status"`
	Notes  *string `json:"notes"`
}

func (s *Server) evaluateOne(c *gin.Context) {
	var req evaluateRequest
	if !bindJSON(c, &req) {
		return
	}

	eval, err := s.svc.EvaluateOne(c.Request.Context(), principal(c), req.JobID, req.ResumeID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, eval)
}

func (s *Server) evaluateBatch(c *gin.Context) {
	var req batchRequest
	if !bindJSON(c, &req) {
		return
	}
	limit, err := req.limit()
	if err != nil {
		s.respondError(c, err)
		return
	}

	result, err := s.svc.EvaluateBatch(c.Request.Context(), principal(c), req.JobID, req.ResumeIDs, limit)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) enqueueBatch(c *gin.Context) {
	if s.enqueuer == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "Queue is not configured"})
		return
	}

	var req batchRequest
	if !bindJSON(c, &req) {
		return
	}
	limit, err := req.limit()
	if err != nil {
		s.respondError(c, err)
		return
	}

	p := principal(c)
	if _, err := s.svc.GetJob(c.Request.Context(), p, req.JobID); err != nil {
		s.respondError(c, err)
		return
	}
	if len(req.ResumeIDs) == 0 || len(req.ResumeIDs) > screening.MaxBatchIDs {
		s.respondError(c, &screening.ValidationError{Field: "resumeIds", Msg: fmt.Sprintf("must contain between 1 and %d ids", screening.MaxBatchIDs)})
		return
	}

	if err := s.enqueuer.Publish(c.Request.Context(), queue.Request{
		OwnerID:     p.OwnerID,
		Email:       p.Email,
		Role:        p.Role,
		JobID:       req.JobID,
		ResumeIDs:   req.ResumeIDs,
		Max:         limit,
		RequestedAt: time.Now().UTC(),
	}); err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"ok": true, "queued": len(req.ResumeIDs)})
}

func (s *Server) listEvaluations(c *gin.Context) {
	limit, ok := queryLimit(c)
	if !ok {
		return
	}

	items, err := s.svc.ListEvaluations(c.Request.Context(), principal(c), screening.ListFilter{
		JobID: c.Query("jobId"),
		Limit: limit,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, items)
}

func (s *Server) getEvaluation(c *gin.Context) {
	eval, err := s.svc.GetEvaluation(c.Request.Context(), principal(c), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, eval)
}

func (s *Server) patchEvaluation(c *gin.Context) {
	var req patchRequest
	if !bindJSON(c, &req) {
		return
	}

	var patch screening.Patch
	if req.Status != nil {
		status, err := screening.ParseStatus(*req.Status)
		if err != nil {
			s.respondError(c, err)
			return
		}
		patch.Status = &status
	}
	patch.Notes = req.Notes

	eval, err := s.svc.PatchEvaluation(c.Request.Context(), principal(c), c.Param("id"), patch)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, eval)
}

func (s *Server) listAudit(c *gin.Context) {
	limit, ok := queryLimit(c)
	if !ok {
		return
	}

	items, err := s.svc.ListAuditEvents(c.Request.Context(), principal(c), audit.Filter{
		EntityType: c.Query("entityType"),
		EntityID:   c.Query("entityId"),
		Limit:      limit,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, items)
}

func (s *Server) listJobs(c *gin.Context) {
	jobs, err := s.svc.ListJobs(c.Request.Context(), principal(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, jobs)
}

func (s *Server) createJob(c *gin.Context) {
	var in screening.JobInput
	if !bindJSON(c, &in) {
		return
	}

	job, err := s.svc.CreateJob(c.Request.Context(), principal(c), in)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

func (s *Server) getJob(c *gin.Context) {
	job, err := s.svc.GetJob(c.Request.Context(), principal(c), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

func (s *Server) listResumes(c *gin.Context) {
	resumes, err := s.svc.ListResumes(c.Request.Context(), principal(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resumes)
}

func (s *Server) uploadResume(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.cfg.MaxUploadSize+(1<<20))

	header, err := c.FormFile("file")
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "No file uploaded"})
		return
	}
	if header.Size > s.cfg.MaxUploadSize {
		c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{"error": "File is too large"})
		return
	}

	mimeType := header.Header.Get("Content-Type")
	if !extract.Supported(mimeType) {
		mimeType = extract.MimeTypeFor(header.Filename)
	}
	if !extract.Supported(mimeType) {
		s.respondError(c, extract.ErrUnsupportedType)
		return
	}

	f, err := header.Open()
	if err != nil {
		s.respondError(c, err)
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		s.respondError(c, err)
		return
	}

	text, err := s.extractor.Text(data, mimeType)
	if err != nil {
		if !errors.Is(err, extract.ErrUnsupportedType) && !errors.Is(err, extract.ErrNoText) {
			s.logger.Warn("resume extraction failed", zap.String("filename", header.Filename), zap.Error(err))
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Resume text too short / unreadable."})
			return
		}
		s.respondError(c, err)
		return
	}

	resume, err := s.svc.CreateResume(c.Request.Context(), principal(c), screening.ResumeInput{
		Filename: header.Filename,
		MimeType: mimeType,
		Size:     header.Size,
		Text:     text,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":        resume.ID,
		"filename":  resume.Filename,
		"createdAt": resume.CreatedAt,
	})
}

func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON body: " + err.Error()})
		return false
	}
	return true
}

// queryLimit parses ?limit. Absent means the default, values below one are
// raised to one.
func queryLimit(c *gin.Context) (int, bool) {
	raw := strings.TrimSpace(c.Query("limit"))
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "limit must be a number", "field": "limit"})
		return 0, false
	}
	if n < 1 {
		n = 1
	}
	return n, true
}
