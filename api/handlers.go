package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"taskdeck/domain"
	"taskdeck/storage"
	"taskdeck/view"
)

const requestBodyMaxSize = 64 * 1024

// Register wires up all routes on the provided Echo instance.
func Register(e *echo.Echo, engine *view.Engine, themes ThemeStore, logger *log.Logger) {
	e.GET("/api/tasks", getView(engine, logger))
	e.POST("/api/tasks", createTask(engine))
	e.POST("/api/tasks/:id/toggle", toggleTask(engine))
	e.PUT("/api/tasks/:id/title", renameTask(engine))
	e.DELETE("/api/tasks/:id", deleteTask(engine))
	e.DELETE("/api/tasks/completed", clearCompleted(engine))
	e.POST("/api/reload", reload(engine))
	e.GET("/api/export", exportTasks(engine))

	e.GET("/api/edit", getEdit(engine))
	e.POST("/api/tasks/:id/edit", startEdit(engine))
	e.PUT("/api/edit", updateDraft(engine))
	e.POST("/api/edit/save", saveEdit(engine))
	e.DELETE("/api/edit", cancelEdit(engine))

	e.GET("/api/theme", getTheme(themes))
	e.PUT("/api/theme", putTheme(themes))

	e.GET("/healthz", healthz())
}

type viewResponse struct {
	Tasks     []domain.Task  `json:"tasks"`
	Stats     view.Stats     `json:"stats"`
	Edit      view.EditState `json:"edit"`
	LoadState view.LoadState `json:"loadState"`
	LoadError string         `json:"loadError,omitempty"`
}

// mutationStatus maps engine and adapter failures onto response codes.
func mutationStatus(err error) int {
	switch {
	case errors.Is(err, view.ErrEmptyTitle):
		return http.StatusBadRequest
	case errors.Is(err, view.ErrTaskNotFound), errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, view.ErrNoEdit):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func decodeBody(c echo.Context, v any) error {
	lr := io.LimitReader(c.Request().Body, requestBodyMaxSize)
	dec := sonic.ConfigStd.NewDecoder(lr)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func getView(engine *view.Engine, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		ctx := c.Request().Context()
		metrics, spanCtx := newViewRequestMetrics(ctx, logger)
		if spanCtx != nil {
			c.SetRequest(c.Request().WithContext(spanCtx))
		}
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		filters := view.DefaultFilters()
		filters.Query = c.QueryParam("query")
		if raw := c.QueryParam("status"); raw != "" {
			status, parseErr := view.ParseStatus(raw)
			if parseErr != nil {
				metrics.SetErrorStage("invalid_status")
				err = c.String(http.StatusBadRequest, "invalid status filter")
				return err
			}
			filters.Status = status
		}
		if raw := c.QueryParam("category"); raw != "" && raw != view.FilterAll {
			if _, parseErr := domain.ParseCategory(raw); parseErr != nil {
				metrics.SetErrorStage("invalid_category")
				err = c.String(http.StatusBadRequest, "invalid category filter")
				return err
			}
			filters.Category = raw
		}
		if raw := c.QueryParam("priority"); raw != "" && raw != view.FilterAll {
			if _, parseErr := domain.ParsePriority(raw); parseErr != nil {
				metrics.SetErrorStage("invalid_priority")
				err = c.String(http.StatusBadRequest, "invalid priority filter")
				return err
			}
			filters.Priority = raw
		}
		engine.SetFilters(filters)
		metrics.SetFiltered(filters != view.DefaultFilters())

		computeStart := time.Now()
		tasks := engine.ComputeView()
		stats := engine.Stats()
		metrics.ObserveCompute(time.Since(computeStart))
		metrics.SetTasksReturned(len(tasks))

		state, loadErr := engine.LoadState()
		resp := viewResponse{
			Tasks:     tasks,
			Stats:     stats,
			Edit:      engine.EditState(),
			LoadState: state,
		}
		if state == view.LoadFailed && loadErr != nil {
			resp.LoadError = loadErr.Error()
		}

		encodeStart := time.Now()
		err = c.JSON(http.StatusOK, resp)
		metrics.ObserveEncode(time.Since(encodeStart))
		if err != nil {
			metrics.SetErrorStage("encode_response")
		}
		return err
	}
}

type createTaskRequest struct {
	Title    string       `json:"title"`
	Category string       `json:"category"`
	Priority string       `json:"priority"`
	DueDate  *domain.Date `json:"dueDate"`
	Notes    string       `json:"notes"`
}

func createTask(engine *view.Engine) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req createTaskRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		draft := domain.TaskDraft{Title: req.Title, DueDate: req.DueDate, Notes: req.Notes}
		if req.Category != "" {
			category, err := domain.ParseCategory(req.Category)
			if err != nil {
				return c.String(http.StatusBadRequest, "invalid category")
			}
			draft.Category = category
		}
		if req.Priority != "" {
			priority, err := domain.ParsePriority(req.Priority)
			if err != nil {
				return c.String(http.StatusBadRequest, "invalid priority")
			}
			draft.Priority = priority
		}
		created, err := engine.Create(c.Request().Context(), draft)
		if err != nil {
			return c.String(mutationStatus(err), err.Error())
		}
		return c.JSON(http.StatusCreated, created)
	}
}

func taskID(c echo.Context) (int64, error) {
	return strconv.ParseInt(c.Param("id"), 10, 64)
}

func toggleTask(engine *view.Engine) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := taskID(c)
		if err != nil {
			return c.String(http.StatusBadRequest, "invalid task id")
		}
		if err := engine.ToggleCompleted(c.Request().Context(), id); err != nil {
			return c.String(mutationStatus(err), err.Error())
		}
		return c.NoContent(http.StatusNoContent)
	}
}

type renameTaskRequest struct {
	Title string `json:"title"`
}

func renameTask(engine *view.Engine) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := taskID(c)
		if err != nil {
			return c.String(http.StatusBadRequest, "invalid task id")
		}
		var req renameTaskRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		if err := engine.Rename(c.Request().Context(), id, req.Title); err != nil {
			return c.String(mutationStatus(err), err.Error())
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func deleteTask(engine *view.Engine) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := taskID(c)
		if err != nil {
			return c.String(http.StatusBadRequest, "invalid task id")
		}
		if err := engine.Delete(c.Request().Context(), id); err != nil {
			return c.String(mutationStatus(err), err.Error())
		}
		return c.NoContent(http.StatusNoContent)
	}
}

type clearCompletedResponse struct {
	Deleted int `json:"deleted"`
}

func clearCompleted(engine *view.Engine) echo.HandlerFunc {
	return func(c echo.Context) error {
		n, err := engine.ClearCompleted(c.Request().Context())
		if err != nil {
			return c.String(mutationStatus(err), err.Error())
		}
		return c.JSON(http.StatusOK, clearCompletedResponse{Deleted: n})
	}
}

func reload(engine *view.Engine) echo.HandlerFunc {
	return func(c echo.Context) error {
		if err := engine.Load(c.Request().Context()); err != nil {
			return c.String(http.StatusBadGateway, err.Error())
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func exportTasks(engine *view.Engine) echo.HandlerFunc {
	return func(c echo.Context) error {
		data, err := sonic.ConfigStd.MarshalIndent(engine.Snapshot(), "", "  ")
		if err != nil {
			return c.String(http.StatusInternalServerError, err.Error())
		}
		c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+engine.ExportFilename()+`"`)
		return c.Blob(http.StatusOK, echo.MIMEApplicationJSON, data)
	}
}

func getEdit(engine *view.Engine) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, engine.EditState())
	}
}

func startEdit(engine *view.Engine) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := taskID(c)
		if err != nil {
			return c.String(http.StatusBadRequest, "invalid task id")
		}
		if err := engine.StartEdit(id); err != nil {
			return c.String(mutationStatus(err), err.Error())
		}
		return c.JSON(http.StatusOK, engine.EditState())
	}
}

type updateDraftRequest struct {
	Draft string `json:"draft"`
}

func updateDraft(engine *view.Engine) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req updateDraftRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		if err := engine.UpdateDraft(req.Draft); err != nil {
			return c.String(mutationStatus(err), err.Error())
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func saveEdit(engine *view.Engine) echo.HandlerFunc {
	return func(c echo.Context) error {
		if err := engine.SaveEdit(c.Request().Context()); err != nil {
			return c.String(mutationStatus(err), err.Error())
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func cancelEdit(engine *view.Engine) echo.HandlerFunc {
	return func(c echo.Context) error {
		engine.CancelEdit()
		return c.NoContent(http.StatusNoContent)
	}
}

type themeResponse struct {
	Dark bool `json:"dark"`
}

func getTheme(themes ThemeStore) echo.HandlerFunc {
	return func(c echo.Context) error {
		dark, err := themes.DarkTheme(c.Request().Context())
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusOK, themeResponse{Dark: dark})
	}
}

func putTheme(themes ThemeStore) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req themeResponse
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		if err := themes.SetDarkTheme(c.Request().Context(), req.Dark); err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func healthz() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}
}
