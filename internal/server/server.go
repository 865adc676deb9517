// Package server is a development implementation of the remote task API,
// backed by an in-memory Store. It serves the same contract backend/rest
// talks to, so the CLI can be exercised end to end without a real backend.
package server

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	log "github.com/sirupsen/logrus"

	"taskmaster/backend"
	"taskmaster/internal/analytics"
)

// Version is reported by the root endpoint.
const Version = "1.0.0"

// DefaultListLimit caps GET /api/tasks when no limit is given.
const DefaultListLimit = 100

// Options configures New.
type Options struct {
	// Token, when set, is required as a bearer token on every /api route
	// except the root and health endpoints.
	Token  string
	Logger *log.Logger
	Now    func() time.Time
}

type syncRequest struct {
	Tasks        []backend.RemoteTask `json:"tasks"`
	LastSyncTime *string              `json:"lastSyncTime,omitempty"`
}

type syncResponse struct {
	Tasks     []backend.RemoteTask `json:"tasks"`
	Conflicts []backend.RemoteTask `json:"conflicts"`
	SyncTime  string               `json:"syncTime"`
}

type deleteResponse struct {
	Message string `json:"message"`
	TaskID  string `json:"taskId"`
}

// New returns an echo instance serving the task API from store.
func New(store *Store, opts Options) *echo.Echo {
	if opts.Logger == nil {
		opts.Logger = log.StandardLogger()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))
	e.Use(requestLogger(opts.Logger))

	Register(e, store, opts)
	return e
}

// Register wires the API routes onto e.
func Register(e *echo.Echo, store *Store, opts Options) {
	if opts.Now == nil {
		opts.Now = time.Now
	}

	api := e.Group("/api")
	api.GET("/", root)
	api.GET("/health", health(opts.Now))

	tasks := api.Group("", bearerAuth(opts.Token))
	tasks.GET("/tasks", listTasks(store))
	tasks.POST("/tasks", createTask(store))
	tasks.POST("/tasks/sync", syncTasks(store))
	tasks.GET("/tasks/:id", getTask(store))
	tasks.PUT("/tasks/:id", updateTask(store))
	tasks.DELETE("/tasks/:id", deleteTask(store))
	tasks.GET("/stats", stats(store, opts.Now))
	tasks.GET("/analytics/productivity", productivity(store, opts.Now))
}

func root(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"message": "TaskMaster API v" + Version,
		"status":  "running",
	})
}

func health(now func() time.Time) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":    "healthy",
			"database":  "connected",
			"timestamp": backend.FormatTimestamp(now()),
		})
	}
}

func listTasks(store *Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		f := Filter{Limit: DefaultListLimit}

		// Unknown category and priority values are ignored rather than rejected.
		if v := c.QueryParam("category"); backend.Category(v).Valid() {
			f.Category = v
		}
		if v := c.QueryParam("priority"); backend.Priority(v).Valid() {
			f.Priority = v
		}
		if v := c.QueryParam("completed"); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnprocessableEntity, "completed must be a boolean")
			}
			f.Completed = &b
		}
		if v := c.QueryParam("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				return echo.NewHTTPError(http.StatusUnprocessableEntity, "limit must be a non-negative integer")
			}
			f.Limit = n
		}
		return c.JSON(http.StatusOK, store.List(f))
	}
}

func createTask(store *Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		var in backend.RemoteTaskInput
		if err := c.Bind(&in); err != nil {
			return echo.NewHTTPError(http.StatusUnprocessableEntity, "invalid body")
		}
		if err := validateFields(&in.Priority, &in.Category); err != nil {
			return err
		}
		if strings.TrimSpace(in.Title) == "" || in.DueDate == "" {
			return echo.NewHTTPError(http.StatusUnprocessableEntity, "title and dueDate are required")
		}
		return c.JSON(http.StatusOK, store.Create(in))
	}
}

func getTask(store *Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		t, err := store.Get(c.Param("id"))
		if err != nil {
			return storeError(err)
		}
		return c.JSON(http.StatusOK, t)
	}
}

func updateTask(store *Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		var u backend.TaskUpdate
		if err := c.Bind(&u); err != nil {
			return echo.NewHTTPError(http.StatusUnprocessableEntity, "invalid body")
		}
		if err := validateFields(u.Priority, u.Category); err != nil {
			return err
		}
		if u.IsEmpty() {
			return echo.NewHTTPError(http.StatusBadRequest, "No valid update data provided")
		}
		t, err := store.Update(c.Param("id"), u)
		if err != nil {
			return storeError(err)
		}
		return c.JSON(http.StatusOK, t)
	}
}

func deleteTask(store *Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := c.Param("id")
		if err := store.Delete(id); err != nil {
			return storeError(err)
		}
		return c.JSON(http.StatusOK, deleteResponse{Message: "Task deleted successfully", TaskID: id})
	}
}

func syncTasks(store *Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req syncRequest
		if err := c.Bind(&req); err != nil {
			return echo.NewHTTPError(http.StatusUnprocessableEntity, "invalid body")
		}
		for i := range req.Tasks {
			t := &req.Tasks[i]
			if err := validateFields(&t.Priority, &t.Category); err != nil {
				return err
			}
		}
		tasks, syncTime := store.Replace(req.Tasks)
		return c.JSON(http.StatusOK, syncResponse{
			Tasks:     tasks,
			Conflicts: []backend.RemoteTask{},
			SyncTime:  syncTime,
		})
	}
}

func stats(store *Store, now func() time.Time) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, analytics.Compute(snapshot(store), now()))
	}
}

func productivity(store *Store, now func() time.Time) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, analytics.ComputeProductivity(snapshot(store), now()))
	}
}

func snapshot(store *Store) []backend.Task {
	remote := store.All()
	tasks := make([]backend.Task, len(remote))
	for i, r := range remote {
		tasks[i] = backend.FromRemote(r)
	}
	return tasks
}

// validateFields rejects priority or category values outside the known
// sets. Nil pointers are absent fields and pass.
func validateFields(priority, category *string) error {
	if priority != nil && !backend.Priority(*priority).Valid() {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "priority must match ^(high|medium|low)$")
	}
	if category != nil && !backend.Category(*category).Valid() {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "category must match ^(work|personal|study)$")
	}
	return nil
}

func storeError(err error) error {
	switch {
	case errors.Is(err, ErrInvalidID):
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid task ID format")
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "Task not found")
	}
	return err
}

func bearerAuth(token string) echo.MiddlewareFunc {
	return middleware.KeyAuthWithConfig(middleware.KeyAuthConfig{
		Skipper: func(echo.Context) bool { return token == "" },
		Validator: func(key string, _ echo.Context) (bool, error) {
			return subtle.ConstantTimeCompare([]byte(key), []byte(token)) == 1, nil
		},
		ErrorHandler: func(error, echo.Context) error {
			return echo.NewHTTPError(http.StatusUnauthorized, "Not authenticated")
		},
	})
}

func requestLogger(logger *log.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			logger.WithFields(log.Fields{
				"method":  v.Method,
				"uri":     v.URI,
				"status":  v.Status,
				"latency": v.Latency,
			}).Debug("request")
			return nil
		},
	})
}

// errorHandler writes errors as {"detail": "..."}.
func errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	code := http.StatusInternalServerError
	detail := err.Error()
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		if msg, ok := he.Message.(string); ok {
			detail = msg
		} else {
			detail = http.StatusText(code)
		}
	}
	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(code)
		return
	}
	_ = c.JSON(code, map[string]string{"detail": detail})
}
