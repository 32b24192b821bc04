package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/gradebook/core/gradebook"
)

type marksApi struct {
	svc      gradebook.Service
	validate *validator.Validate
}

func registerMarksAPI(g *echo.Group, svc gradebook.Service, validate *validator.Validate) {
	api := marksApi{
		svc:      svc,
		validate: validate,
	}

	g.GET("/configurations", api.getConfiguration)
	g.PUT("/configurations", api.saveConfiguration)

	g.GET("/marks", api.queryMarks)
	g.PUT("/marks", api.saveMarks)
	g.POST("/marks/quick-entry", api.quickEntry)
	g.GET("/marksheet", api.markSheet)
}

// Handlers

func (api *marksApi) getConfiguration(ctx echo.Context) error {
	t, err := bindTriple(ctx, api.validate)
	if err != nil {
		return err
	}
	conf, err := api.svc.GetConfiguration(ctx.Request().Context(), t)
	if err != nil {
		return errors.Wrap(err, "getting configuration")
	}
	return ctx.JSON(http.StatusOK, conf)
}

func (api *marksApi) saveConfiguration(ctx echo.Context) error {
	var data gradebook.NewScoreConfig
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewScoreConfig")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	conf, err := api.svc.SaveConfiguration(ctx.Request().Context(), data.Triple, data.Values())
	if err != nil {
		return errors.Wrap(err, "saving configuration")
	}
	return ctx.JSON(http.StatusOK, conf)
}

func (api *marksApi) queryMarks(ctx echo.Context) error {
	t, err := bindTriple(ctx, api.validate)
	if err != nil {
		return err
	}
	marks, err := api.svc.GetMarks(ctx.Request().Context(), t)
	if err != nil {
		return errors.Wrap(err, "querying marks")
	}
	if marks == nil {
		marks = []gradebook.Mark{}
	}
	return ctx.JSON(http.StatusOK, marks)
}

// saveMarks upserts a batch of typed marks. Nothing is saved if any of them is invalid.
func (api *marksApi) saveMarks(ctx echo.Context) error {
	var data gradebook.SaveMarks
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SaveMarks")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	sheet, err := api.svc.SaveMarkEntries(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "saving marks")
	}
	return ctx.JSON(http.StatusOK, sheetResponse(sheet))
}

func (api *marksApi) quickEntry(ctx echo.Context) error {
	var data gradebook.QuickEntry
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to QuickEntry")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	row, err := api.svc.QuickEntry(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "quick entry")
	}
	return ctx.JSON(http.StatusCreated, row)
}

func (api *marksApi) markSheet(ctx echo.Context) error {
	t, err := bindTriple(ctx, api.validate)
	if err != nil {
		return err
	}
	sheet, err := api.svc.MarkSheet(ctx.Request().Context(), t)
	if err != nil {
		return errors.Wrap(err, "computing mark sheet")
	}
	return ctx.JSON(http.StatusOK, sheetResponse(sheet))
}

// sheetResponse never renders rows as null.
func sheetResponse(sheet gradebook.Sheet) gradebook.Sheet {
	if sheet.Rows == nil {
		sheet.Rows = []gradebook.Row{}
	}
	return sheet
}
