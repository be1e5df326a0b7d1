package http

import (
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"github.com/ytget/media-taskd/internal/logger"
	"github.com/ytget/media-taskd/internal/notify"
	"github.com/ytget/media-taskd/internal/transport/http/handlers"
)

type RouterConfig struct {
	Service        handlers.TaskService
	Playlists      handlers.PlaylistParser
	Broadcaster    *notify.Broadcaster
	Logger         *logger.Logger
	DefaultQuality string
	Qualities      []string
}

func SetupRoutes(app *fiber.App, cfg RouterConfig) {
	log := cfg.Logger
	if log == nil {
		log = logger.NewNop()
	}
	broadcaster := cfg.Broadcaster
	if broadcaster == nil {
		broadcaster = notify.NewBroadcaster(0, log)
	}

	taskHandler := handlers.NewTaskHandler(cfg.Service, log, cfg.DefaultQuality, cfg.Qualities)
	socketHandler := handlers.NewSocketHandler(cfg.Service, broadcaster, log)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return c.SendStatus(fiber.StatusUpgradeRequired)
	})
	app.Get("/ws/tasks", websocket.New(socketHandler.Handle))

	api := app.Group("/api")

	tasks := api.Group("/tasks")
	tasks.Get("/", taskHandler.ListTasks)
	tasks.Post("/", taskHandler.CreateTask)
	tasks.Delete("/", taskHandler.ClearTasks)
	tasks.Get("/counts", taskHandler.Counts)
	tasks.Get("/:id", taskHandler.GetTask)
	tasks.Delete("/:id", taskHandler.DeleteTask)
	tasks.Post("/:id/pause", taskHandler.PauseTask)
	tasks.Post("/:id/resume", taskHandler.ResumeTask)
	tasks.Post("/:id/cancel", taskHandler.CancelTask)

	api.Get("/renditions", taskHandler.Renditions)
	api.Get("/qualities", taskHandler.Qualities)

	if cfg.Playlists != nil {
		playlistHandler := handlers.NewPlaylistHandler(cfg.Playlists, cfg.Service, log, cfg.DefaultQuality)
		api.Post("/playlists", playlistHandler.ExpandPlaylist)
	}
}
