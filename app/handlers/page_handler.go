package handlers

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"net/http"
	"net/url"

	businessflow "github.com/amirphl/counter-app/business_flow"
	"github.com/amirphl/counter-app/utils"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/requestid"
	"github.com/gofiber/template/html/v2"
	fiberutils "github.com/gofiber/utils/v2"
	"go.uber.org/zap"
)

//go:embed templates
var templateFS embed.FS

const pageLayout = "layouts/main"

// Notice kinds, also used as CSS classes. The position is the flash message level.
const (
	noticeInfo     = "info"
	noticePositive = "positive"
	noticeWarning  = "warning"
	noticeNegative = "negative"
)

var noticeKinds = []string{noticeInfo, noticePositive, noticeWarning, noticeNegative}

func noticeLevel(kind string) uint8 {
	for i, k := range noticeKinds {
		if k == kind {
			return uint8(i)
		}
	}
	return 0
}

func noticeKind(level uint8) string {
	if int(level) < len(noticeKinds) {
		return noticeKinds[level]
	}
	return noticeInfo
}

// PageHandlerInterface defines the contract for the server-rendered pages
type PageHandlerInterface interface {
	Home(c fiber.Ctx) error
	Counter(c fiber.Ctx) error
	Increment(c fiber.Ctx) error
	Decrement(c fiber.Ctx) error
	Reset(c fiber.Ctx) error
}

// PageHandler renders the home page and the counter page
type PageHandler struct {
	baseHandler
	flow   businessflow.CounterFlow
	logger *zap.Logger
}

type counterPageData struct {
	Title      string
	Name       string
	Value      int64
	ValueKnown bool
	Notice     string
	Kind       string
}

// NewPageViews parses the embedded page templates. Pages are named by their
// path under templates/ without the extension.
func NewPageViews() (*html.Engine, error) {
	sub, err := fs.Sub(templateFS, "templates")
	if err != nil {
		return nil, fmt.Errorf("failed to open page templates: %w", err)
	}
	engine := html.NewFileSystem(http.FS(sub), ".html")
	if err := engine.Load(); err != nil {
		return nil, fmt.Errorf("failed to parse page templates: %w", err)
	}
	return engine, nil
}

// NewPageHandler creates a page handler. The app serving it must be configured with NewPageViews.
func NewPageHandler(flow businessflow.CounterFlow, logger *zap.Logger) *PageHandler {
	return &PageHandler{
		flow:   flow,
		logger: logger,
	}
}

// Home renders the landing page
// GET /
func (h *PageHandler) Home(c fiber.Ctx) error {
	return h.render(c, "home", fiber.Map{"Title": "Counter App"})
}

// Counter renders the counter display with its three buttons.
// The notice comes from the flash cookie set by the button actions.
// GET /counter?name=
func (h *PageHandler) Counter(c fiber.Ctx) error {
	flash := c.Redirect().Message("notice")
	data := counterPageData{
		Title:  "Counter Application",
		Name:   c.Query("name"),
		Notice: flash.Value,
		Kind:   noticeKind(flash.Level),
	}

	ctx, cancel := h.createRequestContext(c, "/counter")
	defer cancel()

	value, err := h.flow.GetCounterValue(ctx, data.Name)
	if err != nil {
		data.Notice, data.Kind = h.failureNotice(ctx, "loading", data.Name, err), noticeNegative
	} else {
		data.Value, data.ValueKnown = value, true
	}

	return h.render(c, "counter", data)
}

// Increment handles the + button
// POST /counter/increment
func (h *PageHandler) Increment(c fiber.Ctx) error {
	return h.buttonAction(c, "incrementing", h.flow.IncrementCounter, func(v int64) (string, string) {
		return fmt.Sprintf("Counter incremented to %d", v), noticePositive
	})
}

// Decrement handles the − button
// POST /counter/decrement
func (h *PageHandler) Decrement(c fiber.Ctx) error {
	return h.buttonAction(c, "decrementing", h.flow.DecrementCounter, func(v int64) (string, string) {
		return fmt.Sprintf("Counter decremented to %d", v), noticeInfo
	})
}

// Reset handles the Reset button
// POST /counter/reset
func (h *PageHandler) Reset(c fiber.Ctx) error {
	return h.buttonAction(c, "resetting", h.flow.ResetCounter, func(int64) (string, string) {
		return "Counter reset to 0", noticeWarning
	})
}

// buttonAction runs op and redirects back to the counter page, so a reload never repeats the action
func (h *PageHandler) buttonAction(
	c fiber.Ctx,
	action string,
	op func(context.Context, string) (int64, error),
	notice func(int64) (string, string),
) error {
	name := c.FormValue("name")

	ctx, cancel := h.createRequestContext(c, c.Path())
	defer cancel()

	var message, kind string
	value, err := op(ctx, name)
	if err != nil {
		message, kind = h.failureNotice(ctx, action, name, err), noticeNegative
		if businessflow.IsInvalidCounterName(err) {
			name = ""
		}
	} else {
		message, kind = notice(value)
	}

	location := "/counter"
	if name != "" {
		location += "?" + url.Values{"name": {name}}.Encode()
	}
	return c.Redirect().
		With("notice", message, noticeLevel(kind)).
		Status(fiber.StatusSeeOther).
		To(location)
}

// failureNotice logs err and returns the message shown on the page
func (h *PageHandler) failureNotice(ctx context.Context, action, name string, err error) string {
	if be, ok := businessflow.AsBusinessError(err); ok {
		return fmt.Sprintf("Error %s counter: %s", action, be.Message)
	}
	h.logger.Error("counter page action failed",
		zap.String("action", action),
		zap.String("name", name),
		zap.String("request_id", utils.RequestIDFromContext(ctx)),
		zap.Error(err),
	)
	return fmt.Sprintf("Error %s counter", action)
}

func (h *PageHandler) render(c fiber.Ctx, page string, data any) error {
	if err := c.Render(page, data, pageLayout); err != nil {
		h.logger.Error("failed to render page",
			zap.String("page", page),
			zap.String("request_id", fiberutils.CopyString(requestid.FromContext(c))),
			zap.Error(err),
		)
		return fiber.NewError(fiber.StatusInternalServerError, "failed to render page")
	}
	return nil
}
