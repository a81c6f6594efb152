// Package gateway implements the Submission Gateway: the HTTP surface for
// submitting code, polling job state, listing the language catalog, and
// reporting health. Validation happens entirely at this boundary, before
// any Job Store write; execution itself is dispatched asynchronously and
// this layer never blocks on it.
package gateway

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"judge-engine/internal/catalog"
	"judge-engine/internal/judgeerr"
	"judge-engine/internal/store"
)

const (
	// MaxSourceBytes is the largest accepted source_code payload (spec §3).
	MaxSourceBytes = 64 * 1024
	// MaxStdinBytes is the largest accepted stdin payload (spec §3).
	MaxStdinBytes = 4 * 1024

	defaultListLimit = 10
)

// Dispatcher is the subset of the worker pool the gateway depends on.
type Dispatcher interface {
	Enqueue(jobID string) bool
	ActiveCount() int
	Capacity() int
}

// Gateway wires HTTP handlers to the Job Store and Worker Pool.
type Gateway struct {
	repo       store.Repository
	dispatcher Dispatcher
	clock      func() time.Time
}

// New constructs a Gateway.
func New(repo store.Repository, dispatcher Dispatcher) *Gateway {
	return &Gateway{
		repo:       repo,
		dispatcher: dispatcher,
		clock:      func() time.Time { return time.Now().UTC() },
	}
}

// Register attaches every route in the external HTTP surface to r.
func (g *Gateway) Register(r gin.IRouter) {
	r.GET("/", g.handleBanner)
	r.GET("/health", g.handleHealth)
	r.GET("/languages", g.handleLanguages)
	r.POST("/submissions", g.handleSubmit)
	r.GET("/submissions/:id", g.handleGet)
	r.GET("/submissions", g.handleList)
}

type submitRequest struct {
	SourceCode string `json:"source_code" binding:"required"`
	Language   string `json:"language" binding:"required"`
	Stdin      string `json:"stdin"`
}

type submitResponse struct {
	JobID   string `json:"job_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

func (g *Gateway) handleSubmit(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, judgeerr.New(judgeerr.KindValidation, "invalid request body: "+err.Error()))
		return
	}

	if len(req.SourceCode) == 0 {
		writeError(c, judgeerr.New(judgeerr.KindValidation, "source_code must not be empty"))
		return
	}
	if len(req.SourceCode) > MaxSourceBytes {
		writeError(c, judgeerr.New(judgeerr.KindValidation, "source_code exceeds maximum size"))
		return
	}
	if len(req.Stdin) > MaxStdinBytes {
		writeError(c, judgeerr.New(judgeerr.KindValidation, "stdin exceeds maximum size"))
		return
	}
	if !catalog.Valid(req.Language) {
		writeError(c, judgeerr.New(judgeerr.KindValidation, "unsupported language: "+req.Language))
		return
	}

	lang, _ := catalog.Lookup(req.Language)
	now := g.clock()
	job := &store.Job{
		ID:         uuid.NewString(),
		SourceCode: req.SourceCode,
		Language:   string(lang.ID),
		Stdin:      req.Stdin,
		Status:     store.StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := g.repo.Insert(c.Request.Context(), job); err != nil {
		writeError(c, judgeerr.Wrap(judgeerr.KindInternal, "failed to create submission", err))
		return
	}

	g.dispatcher.Enqueue(job.ID)

	c.JSON(http.StatusCreated, submitResponse{
		JobID:   job.ID,
		Status:  string(job.Status),
		Message: "submission accepted",
	})
}

type jobResponse struct {
	ID        string       `json:"id"`
	Status    string       `json:"status"`
	Language  string       `json:"language"`
	CreatedAt time.Time    `json:"created_at"`
	StartedAt *time.Time   `json:"started_at,omitempty"`
	Result    *store.Result `json:"result,omitempty"`
}

func toJobResponse(job *store.Job) jobResponse {
	resp := jobResponse{
		ID:        job.ID,
		Status:    string(job.Status),
		Language:  job.Language,
		CreatedAt: job.CreatedAt,
		StartedAt: job.StartedAt,
	}
	if job.Status.Terminal() {
		resp.Result = &store.Result{
			Stdout:          job.Stdout,
			Stderr:          job.Stderr,
			ExitCode:        job.ExitCode,
			ExecutionTimeMs: job.ExecutionTimeMs,
			MemoryUsageKB:   job.MemoryUsageKB,
			CompileOutput:   job.CompileOutput,
		}
	}
	return resp
}

func (g *Gateway) handleGet(c *gin.Context) {
	id := c.Param("id")
	job, err := g.repo.GetByID(c.Request.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(c, judgeerr.New(judgeerr.KindNotFound, "submission not found"))
		return
	}
	if err != nil {
		writeError(c, judgeerr.Wrap(judgeerr.KindInternal, "failed to load submission", err))
		return
	}
	c.JSON(http.StatusOK, toJobResponse(job))
}

type listResponse struct {
	Items  []jobResponse `json:"items"`
	Total  int64         `json:"total"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}

func (g *Gateway) handleList(c *gin.Context) {
	limit := queryInt(c, "limit", defaultListLimit)
	offset := queryInt(c, "offset", 0)
	status := c.Query("status")

	if status != "" && !store.Status(status).Valid() {
		writeError(c, judgeerr.New(judgeerr.KindValidation, "unsupported status filter: "+status))
		return
	}

	jobs, total, err := g.repo.List(c.Request.Context(), store.ListFilter{
		Status: store.Status(status),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		writeError(c, judgeerr.Wrap(judgeerr.KindInternal, "failed to list submissions", err))
		return
	}

	items := make([]jobResponse, 0, len(jobs))
	for _, j := range jobs {
		items = append(items, toJobResponse(j))
	}

	c.JSON(http.StatusOK, listResponse{Items: items, Total: total, Limit: limit, Offset: offset})
}

type languageResponse struct {
	ID            string `json:"id"`
	Extension     string `json:"extension"`
	TimeoutMs     int64  `json:"timeout_ms"`
	MemoryLimitMB int64  `json:"memory_limit_mb"`
}

func (g *Gateway) handleLanguages(c *gin.Context) {
	langs := catalog.All()
	out := make([]languageResponse, 0, len(langs))
	for _, l := range langs {
		out = append(out, languageResponse{
			ID:            string(l.ID),
			Extension:     l.Extension,
			TimeoutMs:     l.RunTimeout.Milliseconds(),
			MemoryLimitMB: l.MemoryLimitMB,
		})
	}
	c.JSON(http.StatusOK, gin.H{"languages": out})
}

func (g *Gateway) handleBanner(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "judge-engine",
		"status":  "ok",
	})
}

func (g *Gateway) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	storeOK := g.repo.Ping(ctx) == nil

	overall := "healthy"
	if !storeOK {
		overall = "unhealthy"
	}

	c.JSON(http.StatusOK, gin.H{
		"status": overall,
		"components": gin.H{
			"store": componentStatus(storeOK),
		},
		"active_jobs":     g.dispatcher.ActiveCount(),
		"worker_capacity": g.dispatcher.Capacity(),
	})
}

func componentStatus(ok bool) string {
	if ok {
		return "healthy"
	}
	return "unhealthy"
}

func queryInt(c *gin.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

func writeError(c *gin.Context, err *judgeerr.Error) {
	status := http.StatusInternalServerError
	switch err.Kind() {
	case judgeerr.KindValidation:
		status = http.StatusBadRequest
	case judgeerr.KindNotFound:
		status = http.StatusNotFound
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
