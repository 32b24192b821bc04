package echoapi

import (
	"bytes"
	"fmt"
	"net/http"
	"net/mail"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/gradebook/core"
	"github.com/trezcool/gradebook/core/gradebook"
)

type exportApi struct {
	svc      gradebook.Service
	validate *validator.Validate
}

func registerExportAPI(g *echo.Group, svc gradebook.Service, validate *validator.Validate) {
	api := exportApi{
		svc:      svc,
		validate: validate,
	}

	eg := g.Group("/exports")
	eg.GET("/csv", api.csv)
	eg.GET("/print", api.print)
	eg.POST("/mail", api.mail)
}

// Handlers

func (api *exportApi) csv(ctx echo.Context) error {
	sheet, err := api.sheet(ctx)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err = gradebook.WriteCSV(&buf, sheet); err != nil {
		return errors.Wrap(err, "writing csv")
	}
	filename := gradebook.ExportFilename(sheet, "csv", time.Now())
	ctx.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", filename))
	return ctx.Blob(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

func (api *exportApi) print(ctx echo.Context) error {
	sheet, err := api.sheet(ctx)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	gradebook.WriteTable(&buf, sheet)
	return ctx.Blob(http.StatusOK, echo.MIMETextPlainCharsetUTF8, buf.Bytes())
}

func (api *exportApi) mail(ctx echo.Context) error {
	var data MailSheetRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to MailSheetRequest")
	}
	to, err := data.Validate(api.validate)
	if err != nil {
		return err
	}

	if err = api.svc.MailSheet(ctx.Request().Context(), data.Triple, to...); err != nil {
		return errors.Wrap(err, "mailing mark sheet")
	}
	return ctx.JSON(http.StatusAccepted, SuccessResponse{Success: "The mark sheet is on its way."})
}

func (api *exportApi) sheet(ctx echo.Context) (gradebook.Sheet, error) {
	t, err := bindTriple(ctx, api.validate)
	if err != nil {
		return gradebook.Sheet{}, err
	}
	sheet, err := api.svc.MarkSheet(ctx.Request().Context(), t)
	if err != nil {
		return gradebook.Sheet{}, errors.Wrap(err, "computing mark sheet")
	}
	return sheet, nil
}

type (
	MailSheetRequest struct {
		gradebook.Triple
		To []string `json:"to" validate:"required,min=1,dive,email"`
	}

	SuccessResponse struct {
		Success string `json:"success"`
	}
)

// Validate cleans the recipients and parses them as mail addresses.
func (mr *MailSheetRequest) Validate(validate *validator.Validate) ([]mail.Address, error) {
	for i := range mr.To {
		mr.To[i] = core.CleanString(mr.To[i], true /* lower */)
	}
	if err := mr.Triple.Validate(validate); err != nil {
		return nil, err
	}
	if err := validate.Struct(mr); err != nil {
		return nil, err
	}
	to := make([]mail.Address, 0, len(mr.To))
	for _, addr := range mr.To {
		to = append(to, mail.Address{Address: addr})
	}
	return to, nil
}
