package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/labstack/echo/v4"

	"drealestate/internal/domain"
	"drealestate/internal/market"
	"drealestate/pkg/quant"
)

func (s *Server) health(c echo.Context) error {
	var st Status
	if s.cfg.Status != nil {
		st = s.cfg.Status()
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":     "ok",
		"connection": st,
		"account":    s.market.Account(),
		"properties": s.market.Book().Len(),
	})
}

func (s *Server) accounts(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{"accounts": s.market.Accounts()})
}

type sessionRequest struct {
	Account int `json:"account"`
}

func (s *Server) createSession(c echo.Context) error {
	var req sessionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("Invalid request body"))
	}

	account, err := s.market.SelectAccount(c.Request().Context(), req.Account)
	if err != nil {
		return fail(c, err)
	}

	token, expires, err := s.issuer.Issue(account, req.Account)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{
		"token":     token,
		"account":   account,
		"expiresAt": expires.UTC().Format(time.RFC3339),
	})
}

func (s *Server) marketplace(c echo.Context) error {
	return c.JSON(http.StatusOK, s.market.Marketplace(accountOf(c)))
}

func (s *Server) allProperties(c echo.Context) error {
	return c.JSON(http.StatusOK, s.market.All(s.market.Account()))
}

func (s *Server) ownedProperties(c echo.Context) error {
	return c.JSON(http.StatusOK, s.market.Owned(accountOf(c)))
}

func (s *Server) property(c echo.Context) error {
	id, err := propertyID(c)
	if err != nil {
		return fail(c, err)
	}
	v, ok := s.market.Property(id, s.market.Account())
	if !ok {
		return c.JSON(http.StatusNotFound, errorBody(domain.ErrUnknownListed.Error()))
	}
	return c.JSON(http.StatusOK, v)
}

func (s *Server) listProperty(c echo.Context) error {
	var form domain.ListingForm
	if err := c.Bind(&form); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("Invalid request body"))
	}
	v, err := s.market.List(c.Request().Context(), accountOf(c), form)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, v)
}

func (s *Server) buyProperty(c echo.Context) error {
	return s.act(c, s.market.Buy)
}

func (s *Server) toggleForSale(c echo.Context) error {
	return s.act(c, s.market.ToggleForSale)
}

type priceRequest struct {
	Price string `json:"price"`
}

func (s *Server) updatePrice(c echo.Context) error {
	id, err := propertyID(c)
	if err != nil {
		return fail(c, err)
	}
	var req priceRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("Invalid request body"))
	}
	price, err := quant.ToWei(req.Price)
	if err != nil {
		return fail(c, domain.NewValidationError("price", "Please enter a valid price greater than zero"))
	}

	v, err := s.market.UpdatePrice(c.Request().Context(), accountOf(c), id, price)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, v)
}

func (s *Server) pending(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"pending": s.market.Pending(),
		"recent":  s.market.Recent(),
	})
}

type action func(ctx context.Context, from common.Address, id uint64) (market.View, error)

func (s *Server) act(c echo.Context, fn action) error {
	id, err := propertyID(c)
	if err != nil {
		return fail(c, err)
	}
	v, err := fn(c.Request().Context(), accountOf(c), id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, v)
}

func propertyID(c echo.Context) (uint64, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return 0, domain.NewValidationError("id", "Invalid property ID")
	}
	return id, nil
}
