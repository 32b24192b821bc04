package echoapi

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/gradebook/core"
	"github.com/trezcool/gradebook/core/gradebook"
)

var orderingParam = "ordering"

type Ordering struct {
	Orderings []core.DBOrdering
}

// Bind parses `?ordering=name,-created_at`: a leading "-" orders descending.
func (ord *Ordering) Bind(ctx echo.Context) {
	val := ctx.QueryParam(orderingParam)
	if val == "" {
		return
	}

	for _, field := range strings.Split(val, ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		if field == "" {
			continue
		}
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
}

// bindTriple reads and validates the `class_id`, `subject_id` & `term_id` query params.
func bindTriple(ctx echo.Context, validate *validator.Validate) (gradebook.Triple, error) {
	var t gradebook.Triple
	if err := (&echo.DefaultBinder{}).BindQueryParams(ctx, &t); err != nil {
		return t, errors.Wrap(err, "binding to Triple")
	}
	if err := t.Validate(validate); err != nil {
		return t, err
	}
	return t, nil
}
