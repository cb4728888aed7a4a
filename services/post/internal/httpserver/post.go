package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/social_platform/pkg/apperr"
	"github.com/Skotchmaster/social_platform/pkg/identity"
	"github.com/Skotchmaster/social_platform/pkg/logging"
	"github.com/Skotchmaster/social_platform/pkg/response"
	"github.com/Skotchmaster/social_platform/services/post/internal/service"
	"github.com/Skotchmaster/social_platform/services/post/internal/transport"
	"github.com/Skotchmaster/social_platform/services/post/internal/util"
)

type PostHTTP struct {
	Svc *service.PostService
}

func (h *PostHTTP) CreatePost(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "post.create_post")

	who, _ := identity.ForwardedFrom(c)

	var req transport.CreatePostRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("create_post_error", "status", 400, "reason", "invalid body", "error", err)
		return apperr.Validation("invalid body")
	}

	post, err := h.Svc.CreatePost(ctx, who.UserID, req)
	if err != nil {
		return err
	}
	return response.OK(c, http.StatusCreated, "Post created successfully", post)
}

func (h *PostHTTP) GetPosts(c echo.Context) error {
	page := util.ParseIntDefault(c.QueryParam("page"), util.DefaultPage)
	limit := util.ParseIntDefault(c.QueryParam("limit"), util.DefaultPageSize)

	list, err := h.Svc.ListPosts(c.Request().Context(), page, limit)
	if err != nil {
		return err
	}
	return response.OK(c, http.StatusOK, "", list)
}

func (h *PostHTTP) GetPost(c echo.Context) error {
	post, err := h.Svc.GetPost(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return response.OK(c, http.StatusOK, "", post)
}

func (h *PostHTTP) DeletePost(c echo.Context) error {
	who, _ := identity.ForwardedFrom(c)
	if err := h.Svc.DeletePost(c.Request().Context(), who.UserID, c.Param("id")); err != nil {
		return err
	}
	return response.OK(c, http.StatusOK, "Post deleted successfully", nil)
}
