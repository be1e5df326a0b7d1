package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/ytget/media-taskd/internal/download"
	"github.com/ytget/media-taskd/internal/logger"
	"github.com/ytget/media-taskd/internal/model"
	"github.com/ytget/media-taskd/internal/transport/http/dto"
)

// TaskService is the command surface of the download service
type TaskService interface {
	Start(ctx context.Context, media model.MediaRef, quality string) (model.DownloadTask, error)
	Get(id string) (model.DownloadTask, error)
	Filter(f download.Filter) []model.DownloadTask
	Counts() download.Counts
	Pause(id string) error
	Resume(id string) error
	Cancel(id string) error
	Delete(id string) error
	ClearAll() error
	Renditions(ctx context.Context, media model.MediaRef) ([]model.Rendition, error)
	Subscribe(callback func([]model.DownloadTask)) func()
}

type TaskHandler struct {
	service        TaskService
	logger         *logger.Logger
	defaultQuality string
	qualities      []string
}

func NewTaskHandler(service TaskService, logger *logger.Logger, defaultQuality string, qualities []string) *TaskHandler {
	return &TaskHandler{service: service, logger: logger, defaultQuality: defaultQuality, qualities: qualities}
}

func (h *TaskHandler) CreateTask(c *fiber.Ctx) error {
	var req dto.CreateTaskRequest
	if err := c.BodyParser(&req); err != nil {
		h.logger.Warnw("task_create_body_parse_failed", "error", err)
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: "invalid request body",
		})
	}

	if errors := req.Validate(); len(errors) > 0 {
		h.logger.Warnw("task_create_validation_failed", "details", errors)
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error:   "validation failed",
			Details: errors,
		})
	}

	quality := req.Quality
	if quality == "" {
		quality = h.defaultQuality
	}

	task, err := h.service.Start(c.UserContext(), req.Media(), quality)
	if err != nil {
		h.logger.Errorw("task_create_failed", "url", req.URL, "error", err)
		return writeError(c, err)
	}

	h.logger.Infow("task_create_success", "id", task.ID, "url", task.Media.URL, "quality", task.Quality)
	return c.Status(fiber.StatusCreated).JSON(dto.TaskToResponse(task))
}

func (h *TaskHandler) ListTasks(c *fiber.Ctx) error {
	filter, err := download.ParseFilter(c.Query("filter"))
	if err != nil {
		return writeError(c, err)
	}

	tasks := h.service.Filter(filter)
	return c.JSON(dto.TaskListResponse{
		Filter: filter,
		Tasks:  dto.TasksToResponse(tasks),
		Counts: h.service.Counts(),
	})
}

func (h *TaskHandler) Counts(c *fiber.Ctx) error {
	return c.JSON(h.service.Counts())
}

func (h *TaskHandler) GetTask(c *fiber.Ctx) error {
	task, err := h.service.Get(c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(dto.TaskToResponse(task))
}

func (h *TaskHandler) PauseTask(c *fiber.Ctx) error {
	return h.command(c, "pause", h.service.Pause)
}

func (h *TaskHandler) ResumeTask(c *fiber.Ctx) error {
	return h.command(c, "resume", h.service.Resume)
}

func (h *TaskHandler) CancelTask(c *fiber.Ctx) error {
	return h.command(c, "cancel", h.service.Cancel)
}

func (h *TaskHandler) DeleteTask(c *fiber.Ctx) error {
	id := c.Params("id")
	if err := h.service.Delete(id); err != nil {
		h.logger.Warnw("task_delete_failed", "id", id, "error", err)
		return writeError(c, err)
	}
	h.logger.Infow("task_delete_success", "id", id)
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *TaskHandler) ClearTasks(c *fiber.Ctx) error {
	if err := h.service.ClearAll(); err != nil {
		h.logger.Errorw("tasks_clear_failed", "error", err)
		return writeError(c, err)
	}
	h.logger.Infow("tasks_clear_success")
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *TaskHandler) Renditions(c *fiber.Ctx) error {
	media := model.MediaRef{URL: c.Query("url"), Platform: c.Query("platform")}
	if errors := (&dto.CreateTaskRequest{URL: media.URL}).Validate(); len(errors) > 0 {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error:   "validation failed",
			Details: errors,
		})
	}

	renditions, err := h.service.Renditions(c.UserContext(), media)
	if err != nil {
		h.logger.Warnw("renditions_failed", "url", media.URL, "error", err)
		return writeError(c, err)
	}
	return c.JSON(renditions)
}

func (h *TaskHandler) Qualities(c *fiber.Ctx) error {
	return c.JSON(dto.QualitiesResponse{Default: h.defaultQuality, Qualities: h.qualities})
}

// command runs a state-changing call and answers with the resulting task
func (h *TaskHandler) command(c *fiber.Ctx, name string, fn func(string) error) error {
	id := c.Params("id")
	if err := fn(id); err != nil {
		h.logger.Warnw("task_"+name+"_failed", "id", id, "error", err)
		return writeError(c, err)
	}

	task, err := h.service.Get(id)
	if err != nil {
		return writeError(c, err)
	}
	h.logger.Infow("task_"+name+"_success", "id", id, "status", task.Status)
	return c.JSON(dto.TaskToResponse(task))
}
