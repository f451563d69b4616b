package httpx

import (
	"log/slog"
	"net/http"

	"github.com/repolens/repolens/internal/service"
)

// RouterServices holds all the services needed by the HTTP router.
type RouterServices struct {
	Tasks   *service.TaskService
	Reports *service.ReportService
	Logger  *slog.Logger
}

// NewRouter creates and configures a new HTTP router.
func NewRouter(services RouterServices) http.Handler {
	mux := http.NewServeMux()

	taskHandlers := &TaskHandlers{Svc: services.Tasks}
	reportHandlers := &ReportHandlers{Svc: services.Reports}

	mux.HandleFunc("POST /api/tasks", taskHandlers.CreateTask)
	mux.HandleFunc("GET /api/tasks", taskHandlers.ListTasks)
	mux.HandleFunc("GET /api/tasks/{id}", taskHandlers.GetTask)
	mux.HandleFunc("POST /api/tasks/{id}/cancel", taskHandlers.CancelTask)
	mux.HandleFunc("DELETE /api/tasks/{id}", taskHandlers.DeleteTask)

	mux.HandleFunc("GET /api/reports/{id}", reportHandlers.GetReport)
	mux.HandleFunc("POST /api/reports/{id}/publish", reportHandlers.PublishReport)

	mux.Handle("GET /healthz", http.HandlerFunc(healthHandler))
	mux.Handle("HEAD /healthz", http.HandlerFunc(healthHandler))

	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return Recover(logger)(Logging(logger)(mux))
}
