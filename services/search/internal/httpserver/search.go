package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/social_platform/pkg/response"
	"github.com/Skotchmaster/social_platform/services/search/internal/service"
)

type SearchHTTP struct {
	Svc *service.SearchService
}

func (h *SearchHTTP) SearchPosts(c echo.Context) error {
	posts, err := h.Svc.SearchPosts(c.Request().Context(), c.QueryParam("query"))
	if err != nil {
		return err
	}
	return response.OK(c, http.StatusOK, "", posts)
}
