package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/ytget/media-taskd/internal/logger"
	"github.com/ytget/media-taskd/internal/model"
	"github.com/ytget/media-taskd/internal/transport/http/dto"
)

// PlaylistParser expands a playlist URL into its entries
type PlaylistParser interface {
	ParsePlaylist(ctx context.Context, rawURL string) (*model.Playlist, error)
}

type PlaylistHandler struct {
	parser         PlaylistParser
	service        TaskService
	logger         *logger.Logger
	defaultQuality string
}

func NewPlaylistHandler(parser PlaylistParser, service TaskService, logger *logger.Logger, defaultQuality string) *PlaylistHandler {
	return &PlaylistHandler{parser: parser, service: service, logger: logger, defaultQuality: defaultQuality}
}

// ExpandPlaylist lists the playlist entries and, when requested, starts one
// task per entry
func (h *PlaylistHandler) ExpandPlaylist(c *fiber.Ctx) error {
	var req dto.CreatePlaylistRequest
	if err := c.BodyParser(&req); err != nil {
		h.logger.Warnw("playlist_body_parse_failed", "error", err)
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: "invalid request body",
		})
	}
	if errors := req.Validate(); len(errors) > 0 {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error:   "validation failed",
			Details: errors,
		})
	}

	playlist, err := h.parser.ParsePlaylist(c.UserContext(), req.URL)
	if err != nil {
		h.logger.Warnw("playlist_parse_failed", "url", req.URL, "error", err)
		return writeError(c, err)
	}
	h.logger.Infow("playlist_parsed", "id", playlist.ID, "entries", len(playlist.Entries))

	resp := dto.PlaylistResponse{Playlist: playlist}
	if !req.Start {
		return c.JSON(resp)
	}

	quality := req.Quality
	if quality == "" {
		quality = h.defaultQuality
	}
	for _, media := range playlist.MediaRefs() {
		task, err := h.service.Start(c.UserContext(), media, quality)
		if err != nil {
			h.logger.Warnw("playlist_entry_start_failed", "url", media.URL, "error", err)
			resp.Failed = append(resp.Failed, media.URL)
			continue
		}
		resp.Tasks = append(resp.Tasks, dto.TaskToResponse(task))
	}

	return c.Status(fiber.StatusCreated).JSON(resp)
}
