package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/tournevent/fulfillment/pkg/catalog"
	"github.com/tournevent/fulfillment/pkg/orders"
)

type placeItemRequest struct {
	ProductID string `json:"productId" binding:"required"`
	Quantity  int    `json:"quantity" binding:"required,min=1"`
}

type customerRequest struct {
	UserID string `json:"userId" binding:"required"`
	Name   string `json:"name" binding:"required"`
	Email  string `json:"email" binding:"required,email"`
	Phone  string `json:"phone"`
}

type addressRequest struct {
	Street     string `json:"street" binding:"required"`
	Number     string `json:"number" binding:"required"`
	Complement string `json:"complement"`
	District   string `json:"district"`
	City       string `json:"city" binding:"required"`
	State      string `json:"state" binding:"required"`
	PostalCode string `json:"postalCode" binding:"required,postalcode"`
}

type placeOrderRequest struct {
	Items           []placeItemRequest `json:"items" binding:"required,min=1,dive"`
	Customer        customerRequest    `json:"customer"`
	ShippingAddress addressRequest     `json:"shippingAddress"`
	Quote           bool               `json:"quote"`
}

// handlePlaceOrder snapshots name and price from the catalog so the total
// never depends on client-supplied prices.
func (s *Server) handlePlaceOrder(c *gin.Context) {
	ctx := c.Request.Context()

	var req placeOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondInvalid(c, err)
		return
	}

	items := make([]orders.Item, 0, len(req.Items))
	for _, it := range req.Items {
		result, err := s.deps.Catalog.GetProduct(ctx, it.ProductID)
		if errors.Is(err, catalog.ErrProductNotFound) {
			err = fmt.Errorf("%w: unknown product %s", orders.ErrInvalidOrder, it.ProductID)
		}
		if err != nil {
			s.respondError(c, "orders.place", err)
			return
		}
		items = append(items, orders.Item{
			ProductID: it.ProductID,
			Name:      result.Product.Name,
			Quantity:  it.Quantity,
			UnitPrice: result.Product.Price,
		})
	}

	order, err := s.deps.Orders.Place(ctx, orders.PlaceInput{
		Items: items,
		Customer: orders.Customer{
			UserID: req.Customer.UserID,
			Name:   req.Customer.Name,
			Email:  req.Customer.Email,
			Phone:  req.Customer.Phone,
		},
		ShippingAddress: orders.Address{
			Street:     req.ShippingAddress.Street,
			Number:     req.ShippingAddress.Number,
			Complement: req.ShippingAddress.Complement,
			District:   req.ShippingAddress.District,
			City:       req.ShippingAddress.City,
			State:      req.ShippingAddress.State,
			PostalCode: req.ShippingAddress.PostalCode,
		},
		Quote: req.Quote,
	})
	if err != nil {
		s.respondError(c, "orders.place", err)
		return
	}
	c.JSON(http.StatusCreated, order)
}

func (s *Server) handleGetOrder(c *gin.Context) {
	order, err := s.deps.Orders.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, "orders.get", err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (s *Server) handleListUserOrders(c *gin.Context) {
	list, err := s.deps.Orders.ListForUser(c.Request.Context(), c.Param("userId"), pageFilter(c))
	if err != nil {
		s.respondError(c, "orders.list_user", err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (s *Server) handleListOrders(c *gin.Context) {
	filter := pageFilter(c)
	if raw := c.Query("status"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			status, err := orders.ParseStatus(part)
			if err != nil {
				s.respondError(c, "orders.list", err)
				return
			}
			filter.Statuses = append(filter.Statuses, status)
		}
	}

	list, err := s.deps.Orders.List(c.Request.Context(), filter)
	if err != nil {
		s.respondError(c, "orders.list", err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (s *Server) handleListShipped(c *gin.Context) {
	list, err := s.deps.Orders.ListShipped(c.Request.Context(), pageFilter(c))
	if err != nil {
		s.respondError(c, "orders.list_shipped", err)
		return
	}
	c.JSON(http.StatusOK, list)
}

type transitionRequest struct {
	Status       string `json:"status" binding:"required"`
	TrackingCode string `json:"trackingCode"`
	TrackingURL  string `json:"trackingUrl" binding:"omitempty,url"`
}

func (s *Server) handleTransition(c *gin.Context) {
	var req transitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondInvalid(c, err)
		return
	}
	to, err := orders.ParseStatus(req.Status)
	if err != nil {
		s.respondError(c, "orders.transition", err)
		return
	}

	order, err := s.deps.Orders.Transition(c.Request.Context(), c.Param("id"), to, orders.Details{
		TrackingCode: req.TrackingCode,
		TrackingURL:  req.TrackingURL,
	})
	if err != nil {
		s.respondError(c, "orders.transition", err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func pageFilter(c *gin.Context) orders.ListFilter {
	var f orders.ListFilter
	if v, err := strconv.Atoi(c.Query("limit")); err == nil {
		f.Limit = v
	}
	if v, err := strconv.Atoi(c.Query("offset")); err == nil {
		f.Offset = v
	}
	return f
}
