package httpapi

import (
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/account"
	"github.com/vladislavdragonenkov/storefront/internal/service/catalog"
	"github.com/vladislavdragonenkov/storefront/internal/service/checkout"
	"github.com/vladislavdragonenkov/storefront/internal/service/orders"
)

type productResponse struct {
	ID                 string         `json:"id"`
	Code               string         `json:"productCode,omitempty"`
	Name               string         `json:"name"`
	Description        string         `json:"description"`
	PriceMinor         int64          `json:"priceMinor"`
	OriginalPriceMinor int64          `json:"originalPriceMinor,omitempty"`
	Image              string         `json:"image"`
	Images             []string       `json:"images"`
	Tags               []string       `json:"tags"`
	Sizes              []string       `json:"sizes"`
	Stock              map[string]int `json:"stock,omitempty"`
	TotalStock         *int           `json:"totalStock,omitempty"`
	InStock            bool           `json:"inStock"`
	CreatedAt          time.Time      `json:"createdAt"`
	UpdatedAt          time.Time      `json:"updatedAt"`
}

func toProductResponse(p domain.Product) productResponse {
	stock := p.Stock
	var total *int
	if !stock.Tracked() && p.LegacyStock != nil {
		// Старая запись: разбивка как при NormalizeStock, сам агрегат уходит в totalStock.
		aggregate := *p.LegacyStock
		total = &aggregate
		legacy := p
		legacy.Stock = nil
		legacy.LegacyStock = &aggregate
		legacy.NormalizeStock()
		stock = legacy.Stock
	}
	return productResponse{
		ID:                 p.ID,
		Code:               p.Code,
		Name:               p.Name,
		Description:        p.Description,
		PriceMinor:         p.PriceMinor,
		OriginalPriceMinor: p.OriginalPriceMinor,
		Image:              p.Image,
		Images:             nonNil(p.Images),
		Tags:               nonNil(p.Tags),
		Sizes:              nonNil(p.Sizes),
		Stock:              stock,
		TotalStock:         total,
		InStock:            p.InStock(),
		CreatedAt:          p.CreatedAt,
		UpdatedAt:          p.UpdatedAt,
	}
}

func toProductResponses(list []domain.Product) []productResponse {
	out := make([]productResponse, 0, len(list))
	for _, p := range list {
		out = append(out, toProductResponse(p))
	}
	return out
}

type productRequest struct {
	Code               string         `json:"productCode"`
	Name               string         `json:"name" validate:"required"`
	Description        string         `json:"description"`
	PriceMinor         int64          `json:"priceMinor" validate:"gte=0"`
	OriginalPriceMinor int64          `json:"originalPriceMinor" validate:"gte=0"`
	Image              string         `json:"image"`
	Images             []string       `json:"images"`
	Tags               []string       `json:"tags"`
	Sizes              []string       `json:"sizes" validate:"omitempty,dive,required"`
	Stock              map[string]int `json:"stock" validate:"omitempty,dive,gte=0"`
	TotalStock         *int           `json:"totalStock" validate:"omitempty,gte=0"`
}

func (r productRequest) input() catalog.ProductInput {
	in := catalog.ProductInput{
		Code:               r.Code,
		Name:               r.Name,
		Description:        r.Description,
		PriceMinor:         r.PriceMinor,
		OriginalPriceMinor: r.OriginalPriceMinor,
		Image:              r.Image,
		Images:             r.Images,
		Tags:               r.Tags,
		Sizes:              r.Sizes,
		LegacyStock:        r.TotalStock,
	}
	if r.Stock != nil {
		in.Stock = domain.Stock(r.Stock)
	}
	return in
}

type addressDTO struct {
	ID       string `json:"id,omitempty"`
	FullName string `json:"fullName,omitempty"`
	Phone    string `json:"phone,omitempty"`
	Address  string `json:"address" validate:"required"`
	City     string `json:"city" validate:"required"`
	District string `json:"district" validate:"required"`
	Notes    string `json:"notes,omitempty"`
}

func (a addressDTO) toDomain() domain.Address {
	return domain.Address{
		ID:       a.ID,
		FullName: a.FullName,
		Phone:    a.Phone,
		Line:     a.Address,
		City:     a.City,
		District: a.District,
		Notes:    a.Notes,
	}
}

func toAddressDTO(a domain.Address) addressDTO {
	return addressDTO{
		ID:       a.ID,
		FullName: a.FullName,
		Phone:    a.Phone,
		Address:  a.Line,
		City:     a.City,
		District: a.District,
		Notes:    a.Notes,
	}
}

type userResponse struct {
	ID        string       `json:"id"`
	FullName  string       `json:"fullName"`
	Phone     string       `json:"phone"`
	Addresses []addressDTO `json:"addresses"`
	Orders    []string     `json:"orders"`
	CreatedAt time.Time    `json:"createdAt"`
	UpdatedAt time.Time    `json:"updatedAt"`
}

func toUserResponse(u domain.User) userResponse {
	addresses := make([]addressDTO, 0, len(u.Addresses))
	for _, a := range u.Addresses {
		addresses = append(addresses, toAddressDTO(a))
	}
	return userResponse{
		ID:        u.ID,
		FullName:  u.FullName,
		Phone:     u.Phone,
		Addresses: addresses,
		Orders:    nonNil(u.OrderIDs),
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

type registerRequest struct {
	FullName string      `json:"fullName" validate:"required"`
	Phone    string      `json:"phone" validate:"required"`
	Address  *addressDTO `json:"address" validate:"omitempty"`
}

func (r registerRequest) input() account.RegisterInput {
	in := account.RegisterInput{FullName: r.FullName, Phone: r.Phone}
	if r.Address != nil {
		addr := r.Address.toDomain()
		in.Address = &addr
	}
	return in
}

type addressRequest struct {
	Phone   string     `json:"phone" validate:"required"`
	Address addressDTO `json:"address" validate:"required"`
}

type lineItemDTO struct {
	ProductID   string `json:"productId"`
	ProductCode string `json:"productCode,omitempty"`
	Name        string `json:"productName,omitempty"`
	Size        string `json:"size" validate:"required"`
	Color       string `json:"color,omitempty"`
	Image       string `json:"productImage,omitempty"`
	PriceMinor  int64  `json:"priceMinor" validate:"gte=0"`
	Quantity    int    `json:"quantity" validate:"gte=0,lte=1000"`
}

type placeOrdersRequest struct {
	UserID    string        `json:"userId" validate:"required_without=Phone"`
	Phone     string        `json:"phone"`
	AddressID string        `json:"addressId" validate:"required_without=Address"`
	Address   *addressDTO   `json:"address" validate:"omitempty"`
	Items     []lineItemDTO `json:"items" validate:"required,min=1,dive"`
}

func (r placeOrdersRequest) input() checkout.PlaceRequest {
	items := make([]checkout.LineItem, 0, len(r.Items))
	for _, item := range r.Items {
		items = append(items, checkout.LineItem{
			ProductID:   item.ProductID,
			ProductCode: item.ProductCode,
			Name:        item.Name,
			Size:        item.Size,
			Color:       item.Color,
			Image:       item.Image,
			PriceMinor:  item.PriceMinor,
			Quantity:    item.Quantity,
		})
	}
	req := checkout.PlaceRequest{
		UserID:    r.UserID,
		Phone:     r.Phone,
		AddressID: r.AddressID,
		Items:     items,
	}
	if r.Address != nil {
		addr := r.Address.toDomain()
		req.Address = &addr
	}
	return req
}

type orderResponse struct {
	ID           string    `json:"id"`
	UserID       string    `json:"userId"`
	ProductID    string    `json:"productId,omitempty"`
	ProductCode  string    `json:"productCode,omitempty"`
	ProductName  string    `json:"productName"`
	ProductSize  string    `json:"productSize"`
	ProductColor string    `json:"productColor,omitempty"`
	PriceMinor   int64     `json:"productPriceMinor"`
	ProductImage string    `json:"productImage,omitempty"`
	Quantity     int       `json:"quantity"`
	TotalMinor   int64     `json:"totalMinor"`
	FullName     string    `json:"fullName"`
	Phone        string    `json:"phone"`
	Address      string    `json:"address"`
	City         string    `json:"city"`
	District     string    `json:"district"`
	Notes        string    `json:"notes,omitempty"`
	Status       string    `json:"status"`
	OrderDate    time.Time `json:"orderDate"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func toOrderResponse(o domain.Order) orderResponse {
	return orderResponse{
		ID:           o.ID,
		UserID:       o.UserID,
		ProductID:    o.Product.ProductID,
		ProductCode:  o.Product.Code,
		ProductName:  o.Product.Name,
		ProductSize:  o.Product.Size,
		ProductColor: o.Product.Color,
		PriceMinor:   o.Product.PriceMinor,
		ProductImage: o.Product.Image,
		Quantity:     o.Quantity,
		TotalMinor:   o.TotalMinor(),
		FullName:     o.Delivery.FullName,
		Phone:        o.Delivery.Phone,
		Address:      o.Delivery.Address,
		City:         o.Delivery.City,
		District:     o.Delivery.District,
		Notes:        o.Delivery.Notes,
		Status:       string(o.Status),
		OrderDate:    o.CreatedAt,
		UpdatedAt:    o.UpdatedAt,
	}
}

func toOrderResponses(list []domain.Order) []orderResponse {
	out := make([]orderResponse, 0, len(list))
	for _, o := range list {
		out = append(out, toOrderResponse(o))
	}
	return out
}

type timelineEventDTO struct {
	Type     string    `json:"type"`
	Reason   string    `json:"reason,omitempty"`
	Occurred time.Time `json:"occurred"`
}

type orderDetailsResponse struct {
	Order    orderResponse      `json:"order"`
	Timeline []timelineEventDTO `json:"timeline"`
}

func toOrderDetails(d orders.Details) orderDetailsResponse {
	timeline := make([]timelineEventDTO, 0, len(d.Timeline))
	for _, e := range d.Timeline {
		timeline = append(timeline, timelineEventDTO{Type: e.Type, Reason: e.Reason, Occurred: e.Occurred})
	}
	return orderDetailsResponse{Order: toOrderResponse(d.Order), Timeline: timeline}
}

type placementFailureDTO struct {
	Index       int    `json:"index"`
	ProductID   string `json:"productId,omitempty"`
	ProductName string `json:"productName,omitempty"`
	Size        string `json:"size,omitempty"`
	Available   *int   `json:"available,omitempty"`
	Reason      string `json:"reason"`
	Message     string `json:"message"`
}

type placeOrdersResponse struct {
	Orders  []orderResponse      `json:"orders"`
	Placed  int                  `json:"placed"`
	Failure *placementFailureDTO `json:"failure,omitempty"`
	Error   string               `json:"error,omitempty"`
}

func toPlacementFailure(itemErr *checkout.ItemError) *placementFailureDTO {
	failure := &placementFailureDTO{
		Index:       itemErr.Index,
		ProductID:   itemErr.ProductID,
		ProductName: itemErr.ProductName,
		Size:        itemErr.Size,
		Reason:      itemErr.Reason(),
		Message:     itemErr.Error(),
	}
	if failure.Reason == checkout.ReasonPersistence {
		failure.Message = "failed to persist order"
	}
	if available, ok := itemErr.Available(); ok {
		failure.Available = &available
	}
	return failure
}

type statusRequest struct {
	Status string `json:"status" validate:"required"`
}

type loginRequest struct {
	Password string `json:"password" validate:"required"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type tagsResponse struct {
	Tags []string `json:"tags"`
}

type removeTagResponse struct {
	Tag      string `json:"tag"`
	Products int    `json:"products"`
}

type reindexResponse struct {
	UserID string   `json:"userId"`
	Orders []string `json:"orders"`
}

type uploadResponse struct {
	URL         string `json:"url"`
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
