package frontend

import (
	"embed"
	"errors"
	"fmt"
	"html"
	"html/template"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jo-hoe/roadwatch/internal/backend/commands"
	"github.com/jo-hoe/roadwatch/internal/backend/commandstructure"
	"github.com/jo-hoe/roadwatch/internal/backend/database"
	"github.com/jo-hoe/roadwatch/internal/core"
	"github.com/labstack/echo/v4"
)

const (
	MainPageName = "index.html"
	viewsPattern = "views/*.html"
	mimePNG      = "image/png"
	mimeSVG      = "image/svg+xml"
)

//go:embed views/*.html
var templateFS embed.FS

//go:embed views/icon.svg
var assetsFS embed.FS

type Template struct {
	templates *template.Template
}

func (t *Template) Render(w io.Writer, name string, data interface{}, c echo.Context) error {
	return t.templates.ExecuteTemplate(w, name, data)
}

type FrontendService struct {
	coreService *core.CoreService
	config      *core.ServiceConfig
	thumbnails  *commandstructure.CommandInvoker
}

func NewFrontendService(config *core.ServiceConfig, coreService *core.CoreService) (*FrontendService, error) {
	normalize, err := commands.NewNormalizeCommand(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create thumbnail command: %w", err)
	}
	scale, err := commands.NewScaleCommandWithParams(config.ThumbnailWidth, config.ThumbnailWidth, false)
	if err != nil {
		return nil, fmt.Errorf("failed to create thumbnail command: %w", err)
	}
	thumbnails := commandstructure.NewCommandInvoker([]commandstructure.Command{normalize, scale})
	return &FrontendService{
		coreService: coreService,
		config:      config,
		thumbnails:  thumbnails,
	}, nil
}

// rootRedirectHandler redirects root path to index.html
func (service *FrontendService) rootRedirectHandler(ctx echo.Context) error {
	return ctx.Redirect(http.StatusMovedPermanently, "/"+MainPageName)
}

func (service *FrontendService) SetRoutes(e *echo.Echo) {
	e.Renderer = &Template{
		templates: template.Must(template.New("").ParseFS(templateFS, viewsPattern)),
	}

	e.GET("/", service.rootRedirectHandler)
	e.GET("/"+MainPageName, service.indexHandler)

	e.GET("/htmx/reports", service.htmxListReportsHandler)
	e.GET("/htmx/report/thumb/:id", service.htmxGetThumbnailByIDHandler)
	e.DELETE("/htmx/report/:id", service.htmxDeleteReportHandler)

	e.GET("/icon.svg", service.iconHandler)
}

func (service *FrontendService) indexHandler(ctx echo.Context) error {
	return ctx.Render(http.StatusOK, MainPageName, nil)
}

func (service *FrontendService) htmxListReportsHandler(ctx echo.Context) error {
	listHTML, err := service.buildReportListHTML(service.timestampNanoStr())
	if err != nil {
		slog.Error("htmxListReportsHandler: failed to list reports",
			"status", http.StatusInternalServerError, "error", err)
		return ctx.String(http.StatusInternalServerError, "Failed to list reports")
	}

	service.setNoCache(ctx)
	return ctx.HTML(http.StatusOK, listHTML)
}

func (service *FrontendService) htmxGetThumbnailByIDHandler(ctx echo.Context) error {
	id := ctx.Param("id")
	image, err := service.coreService.ReportImage(ctx.Request().Context(), id)
	if err != nil || len(image) == 0 {
		slog.Warn("htmxGetThumbnailByIDHandler: image not available",
			"status", http.StatusNotFound, "report_id", id, "error", err)
		return ctx.String(http.StatusNotFound, "Image not available")
	}

	thumbnail, err := service.thumbnails.Execute(image)
	if err != nil {
		slog.Warn("htmxGetThumbnailByIDHandler: thumbnail not available",
			"status", http.StatusNotFound, "report_id", id, "error", err)
		return ctx.String(http.StatusNotFound, "Thumbnail not available")
	}

	service.setNoCache(ctx)
	return ctx.Blob(http.StatusOK, mimePNG, thumbnail)
}

func (service *FrontendService) htmxDeleteReportHandler(ctx echo.Context) error {
	id := ctx.Param("id")
	if err := service.coreService.DeleteReport(id); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, database.ErrReportNotFound) {
			status = http.StatusNotFound
		}
		slog.Error("htmxDeleteReportHandler: failed to delete report",
			"status", status, "report_id", id, "error", err)
		return ctx.String(status, "Failed to delete report")
	}

	listHTML, err := service.buildReportListHTML(service.timestampNanoStr())
	if err != nil {
		slog.Error("htmxDeleteReportHandler: failed to list reports after delete",
			"status", http.StatusInternalServerError, "error", err)
		return ctx.String(http.StatusInternalServerError, "Failed to list reports")
	}

	service.setNoCache(ctx)
	return ctx.HTML(http.StatusOK, listHTML)
}

func (service *FrontendService) setNoCache(ctx echo.Context) {
	ctx.Response().Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
	ctx.Response().Header().Set("Pragma", "no-cache")
	ctx.Response().Header().Set("Expires", "0")
}

func (service *FrontendService) timestampNanoStr() string {
	return fmt.Sprintf("%d", time.Now().UnixNano())
}

func (service *FrontendService) buildReportListHTML(ts string) (string, error) {
	reports, err := service.coreService.Reports()
	if err != nil {
		return "", err
	}

	var b strings.Builder
	if len(reports) == 0 {
		b.WriteString(`<p>No potholes reported yet.</p>`)
		return b.String(), nil
	}

	b.WriteString(`<div class="vertical-list">`)
	for _, report := range reports {
		b.WriteString(service.reportItemHTML(report, ts))
	}
	b.WriteString(`</div>`)
	return b.String(), nil
}

func (service *FrontendService) reportItemHTML(report *database.Report, ts string) string {
	id := html.EscapeString(report.ID)
	ledger := ""
	if report.TxHash != "" {
		ledger = fmt.Sprintf(`<small>Ledger tx: <code>%s</code></small>`, html.EscapeString(report.TxHash))
	}
	return fmt.Sprintf(`<div class="vertical-item" data-id="%s" style="margin-bottom:1rem"><article>
	<img src="/htmx/report/thumb/%s?ts=%s" alt="Annotated road image %s" style="max-width:100%%;height:auto">
	<footer style="display:flex;flex-direction:column;gap:0.25rem">
		<strong>%s</strong>
		<small>%.6f, %.6f · %d detections · %s</small>
		%s
		<div style="display:flex;gap:0.5rem">
			<a href="/reports/%s/image" target="_blank" role="button" class="outline">Full image</a>
			<button hx-delete="/htmx/report/%s" hx-target="#report-list" hx-swap="innerHTML" class="secondary">Delete</button>
		</div>
	</footer>
</article></div>`,
		id, id, ts, id,
		html.EscapeString(report.Address),
		report.Latitude, report.Longitude, report.Detections, report.CreatedAt.Format(time.RFC3339),
		ledger,
		id, id)
}

func (service *FrontendService) iconHandler(ctx echo.Context) error {
	data, err := assetsFS.ReadFile("views/icon.svg")
	if err != nil {
		slog.Error("iconHandler: failed to read icon.svg", "status", http.StatusInternalServerError, "error", err)
		return ctx.String(http.StatusInternalServerError, "Failed to load icon")
	}
	// Cache for 7 days
	ctx.Response().Header().Set("Cache-Control", "public, max-age=604800, immutable")
	return ctx.Blob(http.StatusOK, mimeSVG, data)
}
