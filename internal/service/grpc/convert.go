package grpcsvc

import (
	storefrontv1 "github.com/vladislavdragonenkov/storefront/api/storefront/v1"
	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/checkout"
)

func fromPlaceRequest(req *storefrontv1.PlaceOrdersRequest) checkout.PlaceRequest {
	items := make([]checkout.LineItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, checkout.LineItem{
			ProductID:   item.ProductID,
			ProductCode: item.ProductCode,
			Name:        item.Name,
			Size:        item.Size,
			Color:       item.Color,
			Image:       item.Image,
			PriceMinor:  item.PriceMinor,
			Quantity:    int(item.Quantity),
		})
	}

	out := checkout.PlaceRequest{
		UserID:    req.UserID,
		Phone:     req.Phone,
		AddressID: req.AddressID,
		Items:     items,
	}
	if req.Address != nil {
		out.Address = &domain.Address{
			ID:       req.Address.ID,
			FullName: req.Address.FullName,
			Phone:    req.Address.Phone,
			Line:     req.Address.Address,
			City:     req.Address.City,
			District: req.Address.District,
			Notes:    req.Address.Notes,
		}
	}
	return out
}

func toWireOrder(order domain.Order) storefrontv1.Order {
	return storefrontv1.Order{
		ID:          order.ID,
		UserID:      order.UserID,
		ProductID:   order.Product.ProductID,
		ProductCode: order.Product.Code,
		ProductName: order.Product.Name,
		Size:        order.Product.Size,
		Color:       order.Product.Color,
		PriceMinor:  order.Product.PriceMinor,
		Image:       order.Product.Image,
		Quantity:    int32(order.Quantity), //nolint:gosec // количество позиции мало.
		TotalMinor:  order.TotalMinor(),
		Delivery: storefrontv1.Delivery{
			FullName: order.Delivery.FullName,
			Phone:    order.Delivery.Phone,
			Address:  order.Delivery.Address,
			City:     order.Delivery.City,
			District: order.Delivery.District,
			Notes:    order.Delivery.Notes,
		},
		Status:    string(order.Status),
		CreatedAt: order.CreatedAt,
		UpdatedAt: order.UpdatedAt,
	}
}

func toWireOrders(list []domain.Order) []storefrontv1.Order {
	out := make([]storefrontv1.Order, 0, len(list))
	for _, order := range list {
		out = append(out, toWireOrder(order))
	}
	return out
}

func toWireTimeline(events []domain.TimelineEvent) []storefrontv1.TimelineEvent {
	if len(events) == 0 {
		return nil
	}
	out := make([]storefrontv1.TimelineEvent, 0, len(events))
	for _, event := range events {
		out = append(out, storefrontv1.TimelineEvent{
			Type:     event.Type,
			Reason:   event.Reason,
			Occurred: event.Occurred,
		})
	}
	return out
}

func toWireFailure(itemErr *checkout.ItemError) *storefrontv1.PlacementFailure {
	failure := &storefrontv1.PlacementFailure{
		Index:       int32(itemErr.Index), //nolint:gosec // индекс позиции корзины.
		ProductID:   itemErr.ProductID,
		ProductName: itemErr.ProductName,
		Size:        itemErr.Size,
		Reason:      itemErr.Reason(),
		Message:     itemErr.Error(),
	}
	if itemErr.Reason() == checkout.ReasonPersistence {
		failure.Message = "failed to persist order"
	}
	if available, ok := itemErr.Available(); ok {
		v := int32(available) //nolint:gosec // остаток по размеру.
		failure.Available = &v
	}
	return failure
}
