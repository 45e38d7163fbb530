package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/foodpoint_auth/internal/models"
	"github.com/Skotchmaster/foodpoint_auth/internal/service"
	"github.com/Skotchmaster/foodpoint_auth/internal/transport"
	"github.com/Skotchmaster/foodpoint_auth/internal/util"
	"github.com/Skotchmaster/foodpoint_auth/pkg/apperr"
	"github.com/Skotchmaster/foodpoint_auth/pkg/logging"
)

type UsersHTTP struct {
	Svc *service.UsersService
}

func (h *UsersHTTP) List(c echo.Context) error {
	page, size := 1, util.DefaultPageSize
	if err := echo.QueryParamsBinder(c).Int("page", &page).Int("size", &size).BindError(); err != nil {
		return apperr.New(apperr.InvalidArgument, "page and size must be integers")
	}

	res, err := h.Svc.List(c.Request().Context(), page, size)
	if err != nil {
		return err
	}

	out := transport.UsersPageResponse{
		Users:      make([]transport.UserResponse, 0, len(res.Users)),
		Total:      res.Total,
		Page:       res.Page,
		Size:       res.Size,
		TotalPages: res.TotalPages,
	}
	for i := range res.Users {
		out.Users = append(out.Users, transport.NewUserResponse(&res.Users[i]))
	}
	return c.JSON(http.StatusOK, out)
}

func (h *UsersHTTP) Get(c echo.Context) error {
	u, err := h.Svc.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, transport.MeResponse{User: transport.NewUserResponse(u)})
}

func (h *UsersHTTP) GetByEmail(c echo.Context) error {
	u, err := h.Svc.GetByEmail(c.Request().Context(), c.Param("email"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, transport.MeResponse{User: transport.NewUserResponse(u)})
}

func (h *UsersHTTP) Create(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "users_create")

	var req transport.CreateUserRequest
	if err := bind(c, &req); err != nil {
		l.Warn("create_user_error", "status", 400, "error", err)
		return err
	}

	u, err := h.Svc.Create(ctx, service.CreateUserInput{
		Name:     req.Name,
		Email:    req.Email,
		Phone:    req.Phone,
		Password: req.Password,
		Role:     models.Role(req.Role),
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, transport.CreateUserResponse{ID: u.ID, Message: "User created successfully"})
}

func (h *UsersHTTP) Update(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "users_update")

	var req transport.UpdateUserRequest
	if err := bind(c, &req); err != nil {
		l.Warn("update_user_error", "status", 400, "error", err)
		return err
	}

	u, err := h.Svc.Update(ctx, c.Param("id"), req.Update())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, transport.MeResponse{User: transport.NewUserResponse(u)})
}

func (h *UsersHTTP) Delete(c echo.Context) error {
	if err := h.Svc.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, transport.MessageResponse{Message: "User deleted successfully"})
}
