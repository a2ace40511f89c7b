package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/tournevent/fulfillment/pkg/catalog"
)

func (s *Server) handleGetProduct(c *gin.Context) {
	result, err := s.deps.Catalog.GetProduct(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, "products.get", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleListProducts(c *gin.Context) {
	filter := catalog.Filter{Search: c.Query("search")}
	if v, err := strconv.Atoi(c.Query("page")); err == nil {
		filter.Page = v
	}
	if v, err := strconv.Atoi(c.Query("pageSize")); err == nil {
		filter.PageSize = v
	}

	result, err := s.deps.Catalog.ListProducts(c.Request.Context(), filter)
	if err != nil {
		s.respondError(c, "products.list", err)
		return
	}
	c.JSON(http.StatusOK, result)
}
