package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/gradebook/core/gradebook"
)

type catalogApi struct {
	svc gradebook.Service
}

func registerCatalogAPI(g *echo.Group, svc gradebook.Service) {
	api := catalogApi{svc: svc}

	g.GET("/catalog", api.catalog)
	g.GET("/classes", api.items(gradebook.KindClass))
	g.GET("/subjects", api.items(gradebook.KindSubject))
	g.GET("/terms", api.items(gradebook.KindTerm))
}

func (api *catalogApi) catalog(ctx echo.Context) error {
	cat, err := api.svc.Catalog(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying catalog")
	}
	return ctx.JSON(http.StatusOK, cat)
}

func (api *catalogApi) items(kind gradebook.CatalogKind) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		cat, err := api.svc.Catalog(ctx.Request().Context())
		if err != nil {
			return errors.Wrap(err, "querying catalog")
		}
		items := cat.Items(kind)
		if items == nil {
			items = []gradebook.CatalogItem{}
		}
		return ctx.JSON(http.StatusOK, items)
	}
}
