package echoapi

import (
	"encoding/csv"
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/gradebook/core"
	"github.com/trezcool/gradebook/core/gradebook"
)

var errStuNotFoundInCtx = errors.New("student object not found in echo.Context")

type studentApi struct {
	svc      gradebook.Service
	validate *validator.Validate
}

func registerStudentAPI(g *echo.Group, svc gradebook.Service, validate *validator.Validate) {
	api := studentApi{
		svc:      svc,
		validate: validate,
	}

	sg := g.Group("/students")
	sg.GET("", api.query)
	sg.POST("", api.create)
	sg.POST("/import", api.importRoster)
	sg.DELETE("", api.destroyMultiple)

	// detail endpoints
	dg := sg.Group("/:id", studentMiddleware(api.svc))
	dg.GET("", api.retrieve)
	dg.PUT("", api.update)
	dg.DELETE("", api.destroy)
}

// Handlers

func (api *studentApi) query(ctx echo.Context) error {
	filter := new(gradebook.StudentFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []gradebook.Student{})
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	students, err := api.svc.QueryStudents(ctx.Request().Context(), *filter, ordering.Orderings...)
	if err != nil {
		return errors.Wrap(err, "querying students")
	}
	if students == nil {
		students = []gradebook.Student{}
	}
	return ctx.JSON(http.StatusOK, students)
}

func (api *studentApi) create(ctx echo.Context) error {
	var data gradebook.NewStudent
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewStudent")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	stu, err := api.svc.CreateStudent(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating student")
	}
	return ctx.JSON(http.StatusCreated, stu)
}

// importRoster reads a CSV roster from the request body. `?class_id=` is the class of rows without one.
func (api *studentApi) importRoster(ctx echo.Context) error {
	records, err := readCSV(ctx.Request().Body)
	if err != nil {
		return err
	}
	classID := core.CleanString(ctx.QueryParam("class_id"))

	report, err := api.svc.ImportStudents(ctx.Request().Context(), records, classID)
	if err != nil {
		return errors.Wrap(err, "importing students")
	}
	if report.Created == nil {
		report.Created = []gradebook.Student{}
	}
	return ctx.JSON(http.StatusCreated, report)
}

func (api *studentApi) retrieve(ctx echo.Context) error {
	stu, ok := ctx.Get("object").(gradebook.Student)
	if !ok {
		return errors.Wrap(errStuNotFoundInCtx, "retrieving object from context")
	}
	return ctx.JSON(http.StatusOK, stu)
}

func (api *studentApi) update(ctx echo.Context) error {
	stu, ok := ctx.Get("object").(gradebook.Student)
	if !ok {
		return errors.Wrap(errStuNotFoundInCtx, "retrieving object from context")
	}

	var data gradebook.UpdateStudent
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateStudent")
	}
	if err := data.Validate(stu, api.validate); err != nil {
		return err
	}

	stu, err := api.svc.UpdateStudent(ctx.Request().Context(), stu.ID, data)
	if err != nil {
		return errors.Wrap(err, "updating student")
	}
	return ctx.JSON(http.StatusOK, stu)
}

func (api *studentApi) destroy(ctx echo.Context) error {
	stu, ok := ctx.Get("object").(gradebook.Student)
	if !ok {
		return errors.Wrap(errStuNotFoundInCtx, "retrieving object from context")
	}
	if err := api.svc.DeleteStudents(ctx.Request().Context(), stu.ID); err != nil {
		return errors.Wrap(err, "deleting student")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// destroyMultiple deletes `?id=` students, or every student of `?class_id=`.
func (api *studentApi) destroyMultiple(ctx echo.Context) error {
	var query DestroyMultipleRequest
	if err := ctx.Bind(&query); err != nil {
		return errors.Wrap(err, "binding to DestroyMultipleRequest")
	}

	if classID := core.CleanString(query.ClassID); classID != "" {
		n, err := api.svc.DeleteClassStudents(ctx.Request().Context(), classID)
		if err != nil {
			return errors.Wrap(err, "deleting class students")
		}
		return ctx.JSON(http.StatusOK, DeletedResponse{Deleted: n})
	}
	if len(query.IDs) == 0 {
		return ctx.NoContent(http.StatusNoContent)
	}
	if err := api.svc.DeleteStudents(ctx.Request().Context(), query.IDs...); err != nil {
		return errors.Wrap(err, "deleting students")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func studentMiddleware(svc gradebook.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			stu, err := svc.GetStudent(ctx.Request().Context(), ctx.Param("id"))
			if err != nil {
				if gradebook.IsNotFound(err) {
					return errHttpNotFound
				}
				return errors.Wrap(err, "finding student by ID")
			}
			ctx.Set("object", stu)
			return next(ctx)
		}
	}
}

func readCSV(r io.Reader) ([][]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	records, err := reader.ReadAll()
	if err != nil {
		return nil, core.NewValidationError(errors.Wrap(err, "invalid CSV"))
	}
	return records, nil
}

type (
	DestroyMultipleRequest struct {
		IDs     []string `query:"id"`
		ClassID string   `query:"class_id"`
	}

	DeletedResponse struct {
		Deleted int `json:"deleted"`
	}
)
