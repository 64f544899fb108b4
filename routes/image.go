package routes

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"zm-image/access"
	"zm-image/config"
	"zm-image/mime"
	"zm-image/pipeline"
	"zm-image/validation"
)

// RegisterImageRoutes sets up the image routes
func RegisterImageRoutes(logger *zap.Logger, p *pipeline.Pipeline, config *config.Config, app *fiber.App) {
	handler := handleImageRequest(logger, p, config)

	app.Get("/image", handler)

	// legacy web console entrypoint: index.php?view=image&...
	app.Get("/index.php", func(c *fiber.Ctx) error {
		if c.Query("view") != "image" {
			return c.Status(fiber.StatusNotFound).SendString("unknown view")
		}
		return handler(c)
	})
}

//#region handleImageRequest

// handleImageRequest serves one still, scaled when asked to
func handleImageRequest(logger *zap.Logger, p *pipeline.Pipeline, config *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		params := validation.ProcessImageContext(c, config.Limits)
		perms := access.ParsePermissionSet(c.Get(config.PermissionHeader))

		logger.Debug("image request received",
			zap.Stringer("source", params.Source),
			zap.Stringer("scale", params.Scale),
			zap.Bool("restricted", !perms.Unrestricted()),
			zap.String("remote_ip", c.IP()),
			zap.Any("request_id", c.Locals("requestid")))

		result := p.Serve(c.UserContext(), params, perms)

		return writeResult(c, config, result)
	}
}

//#endregion

//#region writeResult

// writeResult sends exactly one outcome. Headers are set only once the body is complete.
func writeResult(c *fiber.Ctx, config *config.Config, result pipeline.Result) error {
	switch result.Outcome {
	case pipeline.PassThrough, pipeline.ServeVariant:
		contentType := mime.JPEG
		if result.Outcome == pipeline.PassThrough {
			contentType = mime.ContentType(result.Body)
		}
		c.Set(fiber.HeaderContentType, contentType)
		if result.Filename != "" {
			c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("inline; filename=%q", result.Filename))
		}
		if config.HTTPCacheTTL > 0 {
			c.Set(fiber.HeaderCacheControl, fmt.Sprintf("public, max-age=%d", config.HTTPCacheTTL))
		}
		c.Set("X-Cache-Place", result.Place)
		return c.Send(result.Body)
	case pipeline.ErrorNotFound:
		return c.Status(fiber.StatusNotFound).SendString("image not found")
	case pipeline.ErrorForbidden:
		return c.Status(fiber.StatusForbidden).SendString("no image permissions")
	default:
		return c.Status(fiber.StatusInternalServerError).SendString("failed to serve image")
	}
}

//#endregion
