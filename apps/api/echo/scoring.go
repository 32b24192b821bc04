package echoapi

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/gradebook/core/scoring"
)

type scoringApi struct{}

// registerScoringAPI exposes the scoring engine for live previews. Nothing is persisted.
func registerScoringAPI(g *echo.Group) {
	api := scoringApi{}

	sg := g.Group("/scoring")
	sg.POST("/preview", api.preview)
	sg.POST("/validate", api.validate)
	sg.POST("/percentage-total", api.percentageTotal)
}

// Handlers

// preview computes a row the lenient way: blank or invalid inputs take their defaults.
func (api *scoringApi) preview(ctx echo.Context) error {
	var data ScoringRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ScoringRequest")
	}

	markedOver := scoring.ParseOr(data.TestMarkedOver, scoring.DefaultMarkedOver)
	maxAdded := scoring.ParseOr(data.MaxAddedMark, scoring.DefaultMaxAddedMark)
	contribution := scoring.ParseOr(data.TestContribution, scoring.DefaultContribution)
	raw := scoring.ParseOr(data.RawScore, 0)
	added := scoring.ParseOr(data.AddedMark, maxAdded)

	return ctx.JSON(http.StatusOK, PreviewResponse{
		AdjustedScore:     scoring.AdjustedScore(raw, added),
		FinalContribution: scoring.FinalContribution(raw, added, markedOver, contribution),
		Formatted:         scoring.FinalContributionFormatted(raw, added, markedOver, contribution),
		Errors:            validationErrors(data.check(markedOver, maxAdded)),
	})
}

func (api *scoringApi) validate(ctx echo.Context) error {
	var data ScoringRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ScoringRequest")
	}

	markedOver := scoring.ParseOr(data.TestMarkedOver, scoring.DefaultMarkedOver)
	maxAdded := scoring.ParseOr(data.MaxAddedMark, scoring.DefaultMaxAddedMark)
	res := data.check(markedOver, maxAdded)
	return ctx.JSON(http.StatusOK, ValidateResponse{Valid: res.Valid(), Errors: validationErrors(res)})
}

func (api *scoringApi) percentageTotal(ctx echo.Context) error {
	var data PercentageTotalRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to PercentageTotalRequest")
	}

	total, ok := scoring.CheckPercentageTotal(data.Components...)
	resp := PercentageTotalResponse{Total: total, Valid: ok}
	if !ok {
		resp.Warning = fmt.Sprintf("Total percentage is %s%%, not 100%%. Please review your configuration.", scoring.FormatNumber(total))
	}
	return ctx.JSON(http.StatusOK, resp)
}

type (
	// ScoringRequest holds inputs as typed by users.
	ScoringRequest struct {
		RawScore         string `json:"raw_score"`
		AddedMark        string `json:"added_mark"`
		TestMarkedOver   string `json:"test_marked_over"`
		MaxAddedMark     string `json:"max_added_mark"`
		TestContribution string `json:"test_contribution"`
	}

	ScoringError struct {
		Kind    string  `json:"kind"`
		Field   string  `json:"field"`
		Limit   float64 `json:"limit,omitempty"`
		Message string  `json:"message"`
	}

	PreviewResponse struct {
		AdjustedScore     float64        `json:"adjusted_score"`
		FinalContribution float64        `json:"final_contribution"`
		Formatted         string         `json:"formatted"`
		Errors            []ScoringError `json:"errors"`
	}

	ValidateResponse struct {
		Valid  bool           `json:"valid"`
		Errors []ScoringError `json:"errors"`
	}

	PercentageTotalRequest struct {
		Components []float64 `json:"components"`
	}

	PercentageTotalResponse struct {
		Total   float64 `json:"total"`
		Valid   bool    `json:"valid"`
		Warning string  `json:"warning,omitempty"`
	}
)

// check validates the configuration, then the marks against the effective caps.
// Blank configuration values take their defaults.
func (sr ScoringRequest) check(markedOver, maxAdded float64) scoring.Result {
	mo, ma := sr.TestMarkedOver, sr.MaxAddedMark
	if mo == "" {
		mo = scoring.FormatNumber(scoring.DefaultMarkedOver)
	}
	if ma == "" {
		ma = scoring.FormatNumber(scoring.DefaultMaxAddedMark)
	}
	res := scoring.ValidateConfiguration(mo, ma)
	res.Errors = append(res.Errors, scoring.ValidateRawScore(sr.RawScore, markedOver).Errors...)
	res.Errors = append(res.Errors, scoring.ValidateAddedMark(sr.AddedMark, maxAdded).Errors...)
	return res
}

func validationErrors(res scoring.Result) []ScoringError {
	errs := make([]ScoringError, 0, len(res.Errors))
	for _, e := range res.Errors {
		errs = append(errs, ScoringError{
			Kind:    e.Kind.String(),
			Field:   e.Field,
			Limit:   e.Limit,
			Message: e.Error(),
		})
	}
	return errs
}
