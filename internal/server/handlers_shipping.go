package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/tournevent/fulfillment/pkg/shipping"
)

type dimensionsRequest struct {
	Height float64 `json:"height" binding:"gte=0"`
	Width  float64 `json:"width" binding:"gte=0"`
	Length float64 `json:"length" binding:"gte=0"`
}

type quoteItemRequest struct {
	ProductID  string             `json:"productId" binding:"required"`
	Quantity   int                `json:"quantity" binding:"required,min=1"`
	WeightKg   *float64           `json:"weightKg" binding:"omitempty,gt=0"`
	Dimensions *dimensionsRequest `json:"dimensions"`
	Price      *decimal.Decimal   `json:"price"`
}

type quoteRequest struct {
	DestinationZip string             `json:"destinationZip" binding:"required,postalcode"`
	Items          []quoteItemRequest `json:"items" binding:"required,min=1,dive"`
}

func (r *quoteRequest) toDomain() *shipping.QuoteRequest {
	items := make([]shipping.QuoteItem, len(r.Items))
	for i, it := range r.Items {
		items[i] = shipping.QuoteItem{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			WeightKg:  it.WeightKg,
			Price:     it.Price,
		}
		if it.Dimensions != nil {
			items[i].Dimensions = &shipping.Dimensions{
				HeightCm: it.Dimensions.Height,
				WidthCm:  it.Dimensions.Width,
				LengthCm: it.Dimensions.Length,
			}
		}
	}
	return &shipping.QuoteRequest{DestinationZip: r.DestinationZip, Items: items}
}

func (s *Server) handleQuote(c *gin.Context) {
	var req quoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondInvalid(c, err)
		return
	}

	options, err := s.deps.Shipping.Quote(c.Request.Context(), req.toDomain())
	if err != nil {
		s.respondError(c, "shipping.quote", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "options": options})
}

func (s *Server) handlePickups(c *gin.Context) {
	zip := c.Query("zip")
	if zip == "" {
		zip = c.Query("cep")
	}
	if zip == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "zip is required"})
		return
	}

	points, err := s.deps.Shipping.PickupPoints(c.Request.Context(), zip)
	if err != nil {
		s.respondError(c, "shipping.pickups", err)
		return
	}
	c.JSON(http.StatusOK, points)
}

type trackRequest struct {
	TrackingCodes []string `json:"trackingCodes" binding:"required,min=1"`
}

func (s *Server) handleTrack(c *gin.Context) {
	var req trackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondInvalid(c, err)
		return
	}

	results, err := s.deps.Shipping.Track(c.Request.Context(), req.TrackingCodes)
	if err != nil {
		s.respondError(c, "shipping.track", err)
		return
	}

	byCode := make(map[string]shipping.TrackingResult, len(results))
	for _, r := range results {
		byCode[r.Code] = r
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "results": byCode})
}
