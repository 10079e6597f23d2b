package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	fiberSwagger "github.com/swaggo/fiber-swagger"

	_ "sheetrelay/gateway/docs"
	"sheetrelay/gateway/middleware"
	"sheetrelay/gateway/utils"
)

// AppOptions configures the HTTP surface.
type AppOptions struct {
	SharedSecret string
	BodyLimit    int
}

// NewApp builds the fiber app with every route wired to h.
func NewApp(h *ApplicationHandler, opts AppOptions) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "sheetrelay",
		BodyLimit:             opts.BodyLimit,
		ErrorHandler:          utils.ErrorHandler,
		DisableStartupMessage: true,
	})

	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, X-API-Secret, X-Secret-Key, " + CallbackTokenHeader,
	}))
	app.Use(middleware.RequestLogger(h.Logger))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"status":  "OK",
			"message": "Server is running",
		})
	})
	app.Get("/swagger/*", fiberSwagger.WrapHandler)

	api := app.Group("/api", middleware.SharedSecret(opts.SharedSecret, h.Logger))

	jobRoutes := api.Group("/jobs")
	jobRoutes.Post("/upload", h.UploadJob)
	jobRoutes.Get("/status", h.ListJobs)
	jobRoutes.Get("/download/:jobId", h.DownloadJob)
	jobRoutes.Get("/:jobId", h.GetJob)
	jobRoutes.Delete("/:jobId", h.DeleteJob)

	api.Post("/n8n/complete/:jobId", h.CompleteJob)

	return app
}
