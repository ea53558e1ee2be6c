package handler

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/streamware/chat-relay/internal/domain"
	"github.com/streamware/chat-relay/internal/journal"
	"github.com/streamware/chat-relay/internal/ratelimit"
	"github.com/streamware/chat-relay/internal/scheduler"
)

// SchedulerService is the scheduler surface the HTTP layer consumes.
type SchedulerService interface {
	Enqueue(comment domain.Comment) (scheduler.EnqueueResult, error)
	Queue() []scheduler.QueuedComment
	RemoveFromQueue(id string) error
	ClearQueue() int
	Pause()
	Resume()
	Status() scheduler.Status
}

// AdmissionStats exposes the rate limiter's counters.
type AdmissionStats interface {
	Statistics() ratelimit.Stats
}

type CommentHandler struct {
	scheduler SchedulerService
	limiter   AdmissionStats
	journal   journal.Repository
}

// NewCommentHandler builds the comment API handler. The journal repository
// is optional; without it GET /v1/deliveries reports 503.
func NewCommentHandler(svc SchedulerService, limiter AdmissionStats, journalRepo journal.Repository) (*CommentHandler, error) {
	if svc == nil {
		return nil, fmt.Errorf("scheduler service is required")
	}
	if limiter == nil {
		return nil, fmt.Errorf("admission stats source is required")
	}

	return &CommentHandler{
		scheduler: svc,
		limiter:   limiter,
		journal:   journalRepo,
	}, nil
}

func RegisterCommentRoutes(router fiber.Router, svc SchedulerService, limiter AdmissionStats, journalRepo journal.Repository) error {
	h, err := NewCommentHandler(svc, limiter, journalRepo)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/comments", h.CreateComment)
	v1.Get("/queue", h.GetQueue)
	v1.Delete("/queue/:id", h.RemoveFromQueue)
	v1.Post("/queue/clear", h.ClearQueue)
	v1.Get("/status", h.GetStatus)
	v1.Post("/scheduler/pause", h.PauseScheduler)
	v1.Post("/scheduler/resume", h.ResumeScheduler)
	v1.Get("/deliveries", h.ListDeliveries)

	return nil
}

type createCommentRequest struct {
	ID       string `json:"id"`
	Text     string `json:"text"`
	Priority int    `json:"priority"`
}

type enqueueResponse struct {
	ID        string `json:"id"`
	Position  int    `json:"position"`
	QueueSize int    `json:"queueSize"`
}

type queuedCommentResponse struct {
	ID         string    `json:"id"`
	Text       string    `json:"text"`
	Priority   int       `json:"priority"`
	Position   int       `json:"position"`
	Attempts   int       `json:"attempts"`
	EnqueuedAt time.Time `json:"enqueuedAt"`
	EligibleAt time.Time `json:"eligibleAt"`
}

type queueResponse struct {
	Data []queuedCommentResponse `json:"data"`
	Size int                     `json:"size"`
}

type admissionStatsResponse struct {
	TotalAttempts    int64            `json:"totalAttempts"`
	TotalAllowed     int64            `json:"totalAllowed"`
	TotalRejected    int64            `json:"totalRejected"`
	RejectionReasons map[string]int64 `json:"rejectionReasons"`
}

type statusResponse struct {
	Running        bool                   `json:"running"`
	Paused         bool                   `json:"paused"`
	Processing     bool                   `json:"processing"`
	QueueSize      int                    `json:"queueSize"`
	TotalProcessed uint64                 `json:"totalProcessed"`
	TotalFailed    uint64                 `json:"totalFailed"`
	Admission      admissionStatsResponse `json:"admission"`
}

type deliveryRecordResponse struct {
	ID         string    `json:"id"`
	CommentID  string    `json:"commentId"`
	Text       string    `json:"text"`
	Priority   int       `json:"priority"`
	Attempts   int       `json:"attempts"`
	Outcome    string    `json:"outcome"`
	Reason     *string   `json:"reason,omitempty"`
	Detail     *string   `json:"detail,omitempty"`
	RecordedAt time.Time `json:"recordedAt"`
}

type listDeliveriesResponse struct {
	Data []deliveryRecordResponse `json:"data"`
}

func (h *CommentHandler) CreateComment(c *fiber.Ctx) error {
	var req createCommentRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	comment, err := requestToDomainComment(req)
	if err != nil {
		return toHTTPError(err)
	}

	result, err := h.scheduler.Enqueue(comment)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusAccepted).JSON(enqueueResponse{
		ID:        comment.ID,
		Position:  result.Position,
		QueueSize: result.QueueSize,
	})
}

func (h *CommentHandler) GetQueue(c *fiber.Ctx) error {
	queued := h.scheduler.Queue()

	data := make([]queuedCommentResponse, 0, len(queued))
	for _, item := range queued {
		data = append(data, queuedCommentResponse{
			ID:         item.Comment.ID,
			Text:       item.Comment.Text,
			Priority:   item.Comment.Priority,
			Position:   item.Position,
			Attempts:   item.Comment.Attempts,
			EnqueuedAt: item.Comment.EnqueuedAt,
			EligibleAt: item.EligibleAt,
		})
	}

	return c.Status(fiber.StatusOK).JSON(queueResponse{
		Data: data,
		Size: len(data),
	})
}

func (h *CommentHandler) RemoveFromQueue(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	if err := h.scheduler.RemoveFromQueue(id); err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"id":      id,
		"removed": true,
	})
}

func (h *CommentHandler) ClearQueue(c *fiber.Ctx) error {
	removed := h.scheduler.ClearQueue()

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"removed": removed,
	})
}

func (h *CommentHandler) GetStatus(c *fiber.Ctx) error {
	status := h.scheduler.Status()
	stats := h.limiter.Statistics()

	reasons := make(map[string]int64, len(stats.RejectionReasons))
	for reason, count := range stats.RejectionReasons {
		reasons[reason.String()] = count
	}

	return c.Status(fiber.StatusOK).JSON(statusResponse{
		Running:        status.Running,
		Paused:         status.Paused,
		Processing:     status.Processing,
		QueueSize:      status.QueueSize,
		TotalProcessed: status.TotalProcessed,
		TotalFailed:    status.TotalFailed,
		Admission: admissionStatsResponse{
			TotalAttempts:    stats.TotalAttempts,
			TotalAllowed:     stats.TotalAllowed,
			TotalRejected:    stats.TotalRejected,
			RejectionReasons: reasons,
		},
	})
}

func (h *CommentHandler) PauseScheduler(c *fiber.Ctx) error {
	h.scheduler.Pause()

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"paused": true,
	})
}

func (h *CommentHandler) ResumeScheduler(c *fiber.Ctx) error {
	h.scheduler.Resume()

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"paused": false,
	})
}

func (h *CommentHandler) ListDeliveries(c *fiber.Ctx) error {
	if h.journal == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "delivery journal is not configured")
	}

	records, err := h.journal.ListRecent(c.Context(), c.QueryInt("limit", 0))
	if err != nil {
		return toHTTPError(err)
	}

	data := make([]deliveryRecordResponse, 0, len(records))
	for _, rec := range records {
		data = append(data, deliveryRecordResponse{
			ID:         rec.ID,
			CommentID:  rec.CommentID,
			Text:       rec.Text,
			Priority:   rec.Priority,
			Attempts:   rec.Attempts,
			Outcome:    string(rec.Outcome),
			Reason:     rec.Reason,
			Detail:     rec.Detail,
			RecordedAt: rec.RecordedAt,
		})
	}

	return c.Status(fiber.StatusOK).JSON(listDeliveriesResponse{Data: data})
}

func requestToDomainComment(req createCommentRequest) (domain.Comment, error) {
	if req.Priority < 0 || req.Priority > domain.MaxPriority {
		return domain.Comment{}, fmt.Errorf("%w: priority must be between 0 and %d", domain.ErrValidation, domain.MaxPriority)
	}

	comment := domain.Comment{
		ID:       strings.TrimSpace(req.ID),
		Text:     strings.TrimSpace(req.Text),
		Priority: req.Priority,
	}
	if comment.ID == "" {
		comment.ID = uuid.NewString()
	}

	if err := comment.Validate(); err != nil {
		return domain.Comment{}, err
	}

	return comment, nil
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrConflict):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrQueueFull):
		return fiber.NewError(fiber.StatusTooManyRequests, err.Error())
	default:
		return err
	}
}
