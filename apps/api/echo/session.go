package echoapi

import (
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/gradebook/core"
	"github.com/trezcool/gradebook/core/gradebook"
)

var errSessNotFoundInCtx = errors.New("session not found in echo.Context")

// sessionApi keeps the editing sessions of the mark sheet screens, by id.
// Sessions idle for longer than ttl are dropped, and so are the least recently used ones
// when there are more than max.
type sessionApi struct {
	svc      gradebook.Service
	validate *validator.Validate
	logger   core.Logger
	ttl      time.Duration
	max      int

	mu       sync.Mutex
	sessions map[string]*sessionEntry
}

type sessionEntry struct {
	sess     *gradebook.Session
	lastUsed time.Time
}

func registerSessionAPI(g *echo.Group, svc gradebook.Service, validate *validator.Validate, logger core.Logger, conf core.ServerConfig) {
	api := &sessionApi{
		svc:      svc,
		validate: validate,
		logger:   logger,
		ttl:      conf.SessionTTL,
		max:      conf.MaxSessions,
		sessions: make(map[string]*sessionEntry),
	}

	sg := g.Group("/sessions")
	sg.POST("", api.create)

	dg := sg.Group("/:id", api.sessionMiddleware)
	dg.GET("", api.retrieve)
	dg.DELETE("", api.destroy)
	dg.POST("/load", api.load)
	dg.PATCH("/config", api.editConfig)
	dg.PUT("/config", api.saveConfig)
	dg.PATCH("/marks/:student_id", api.editMark)
	dg.POST("/save", api.saveAll)
	dg.POST("/import", api.importMarks)
}

// Handlers

// create opens a session. A triple in the body is loaded right away.
func (api *sessionApi) create(ctx echo.Context) error {
	var data gradebook.Triple
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Triple")
	}

	sess := gradebook.NewSession(api.svc, api.logger)
	if !data.IsZero() {
		if err := data.Validate(api.validate); err != nil {
			return err
		}
		if err := sess.Load(ctx.Request().Context(), data); err != nil {
			return errors.Wrap(err, "loading session")
		}
	}

	id := uuid.NewString()
	api.mu.Lock()
	now := time.Now()
	api.evictLocked(now)
	api.sessions[id] = &sessionEntry{sess: sess, lastUsed: now}
	api.mu.Unlock()

	return ctx.JSON(http.StatusCreated, SessionResponse{ID: id, Session: viewResponse(sess.View())})
}

func (api *sessionApi) retrieve(ctx echo.Context) error {
	sess, err := getSession(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, SessionResponse{ID: ctx.Param("id"), Session: viewResponse(sess.View())})
}

func (api *sessionApi) destroy(ctx echo.Context) error {
	sess, err := getSession(ctx)
	if err != nil {
		return err
	}
	sess.Close()

	api.mu.Lock()
	delete(api.sessions, ctx.Param("id"))
	api.mu.Unlock()
	return ctx.NoContent(http.StatusNoContent)
}

func (api *sessionApi) load(ctx echo.Context) error {
	sess, err := getSession(ctx)
	if err != nil {
		return err
	}
	var data gradebook.Triple
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Triple")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	if err = sess.Load(ctx.Request().Context(), data); err != nil {
		return errors.Wrap(err, "loading session")
	}
	return ctx.JSON(http.StatusOK, viewResponse(sess.View()))
}

// editConfig applies a configuration being typed to the loaded sheet, without saving it.
func (api *sessionApi) editConfig(ctx echo.Context) error {
	sess, err := getSession(ctx)
	if err != nil {
		return err
	}
	var data gradebook.NewScoreConfig
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewScoreConfig")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	applied, err := sess.EditConfig(data.Triple, data.ValuesOver(sess.Config()))
	if err != nil {
		return errors.Wrap(err, "editing configuration")
	}
	return ctx.JSON(http.StatusOK, EditConfigResponse{Applied: applied, Session: viewResponse(sess.View())})
}

func (api *sessionApi) saveConfig(ctx echo.Context) error {
	sess, err := getSession(ctx)
	if err != nil {
		return err
	}
	var data gradebook.NewScoreConfig
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewScoreConfig")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	conf, err := sess.SaveConfig(ctx.Request().Context(), data.Triple, data.Values())
	if err != nil {
		return errors.Wrap(err, "saving configuration")
	}
	return ctx.JSON(http.StatusOK, SaveConfigResponse{Config: conf, Session: viewResponse(sess.View())})
}

func (api *sessionApi) editMark(ctx echo.Context) error {
	sess, err := getSession(ctx)
	if err != nil {
		return err
	}
	var data EditMarkRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to EditMarkRequest")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	row, err := sess.EditMark(ctx.Param("student_id"), gradebook.MarkField(data.Field), data.Value)
	if err != nil {
		return errors.Wrap(err, "editing mark")
	}
	return ctx.JSON(http.StatusOK, row)
}

func (api *sessionApi) saveAll(ctx echo.Context) error {
	sess, err := getSession(ctx)
	if err != nil {
		return err
	}
	n, err := sess.SaveAll(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "saving session")
	}
	return ctx.JSON(http.StatusOK, SaveAllResponse{Saved: n, Session: viewResponse(sess.View())})
}

// importMarks merges a CSV marks file into the loaded sheet. `?add_missing=true` creates unknown students.
func (api *sessionApi) importMarks(ctx echo.Context) error {
	sess, err := getSession(ctx)
	if err != nil {
		return err
	}
	addMissing, _ := strconv.ParseBool(ctx.QueryParam("add_missing"))
	records, err := readCSV(ctx.Request().Body)
	if err != nil {
		return err
	}

	report, err := sess.Import(ctx.Request().Context(), records, addMissing)
	if err != nil {
		return errors.Wrap(err, "importing marks")
	}
	if report.Created == nil {
		report.Created = []gradebook.Student{}
	}
	if report.Unknown == nil {
		report.Unknown = []gradebook.UnknownName{}
	}
	return ctx.JSON(http.StatusOK, ImportResponse{Report: report, Session: viewResponse(sess.View())})
}

func (api *sessionApi) sessionMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		id := ctx.Param("id")
		now := time.Now()

		api.mu.Lock()
		entry, ok := api.sessions[id]
		if ok && api.expired(entry, now) {
			api.dropLocked(id)
			ok = false
		}
		if ok {
			entry.lastUsed = now
		}
		api.mu.Unlock()

		if !ok {
			return errSessionNotFound
		}
		ctx.Set("session", entry.sess)
		return next(ctx)
	}
}

func (api *sessionApi) expired(entry *sessionEntry, now time.Time) bool {
	return api.ttl > 0 && now.Sub(entry.lastUsed) > api.ttl
}

// evictLocked drops the expired sessions, then the least recently used ones until there is
// room for one more. Callers hold api.mu.
func (api *sessionApi) evictLocked(now time.Time) {
	for id, entry := range api.sessions {
		if api.expired(entry, now) {
			api.dropLocked(id)
		}
	}
	for api.max > 0 && len(api.sessions) >= api.max {
		var oldest string
		for id, entry := range api.sessions {
			if oldest == "" || entry.lastUsed.Before(api.sessions[oldest].lastUsed) {
				oldest = id
			}
		}
		api.dropLocked(oldest)
	}
}

func (api *sessionApi) dropLocked(id string) {
	if entry, ok := api.sessions[id]; ok {
		entry.sess.Close()
		delete(api.sessions, id)
		api.logger.Debug(fmt.Sprintf("dropped editing session %s", id))
	}
}

func getSession(ctx echo.Context) (*gradebook.Session, error) {
	sess, ok := ctx.Get("session").(*gradebook.Session)
	if !ok {
		return nil, errors.Wrap(errSessNotFoundInCtx, "retrieving session from context")
	}
	return sess, nil
}

// viewResponse never renders rows as null.
func viewResponse(view gradebook.SessionView) gradebook.SessionView {
	if view.Rows == nil {
		view.Rows = []gradebook.Row{}
	}
	return view
}

type (
	SessionResponse struct {
		ID      string                `json:"id"`
		Session gradebook.SessionView `json:"session"`
	}

	EditConfigResponse struct {
		Applied bool                  `json:"applied"`
		Session gradebook.SessionView `json:"session"`
	}

	SaveConfigResponse struct {
		Config  gradebook.ScoreConfig `json:"config"`
		Session gradebook.SessionView `json:"session"`
	}

	EditMarkRequest struct {
		Field string `json:"field" validate:"required,oneof=raw_score added_mark"`
		Value string `json:"value"`
	}

	SaveAllResponse struct {
		Saved   int                   `json:"saved"`
		Session gradebook.SessionView `json:"session"`
	}

	ImportResponse struct {
		Report  gradebook.ImportReport `json:"report"`
		Session gradebook.SessionView  `json:"session"`
	}
)

func (er *EditMarkRequest) Validate(validate *validator.Validate) error {
	er.Field = core.CleanString(er.Field, true /* lower */)
	return validate.Struct(er)
}
