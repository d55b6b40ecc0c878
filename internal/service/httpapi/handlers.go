package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/checkout"
)

func queryLimit(r *http.Request) int {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit < 0 {
		return 0
	}
	return limit
}

func (s *Server) listProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	list, err := s.catalog.List(r.Context(), domain.ProductFilter{
		Search: q.Get("search"),
		Tag:    q.Get("tag"),
		Limit:  queryLimit(r),
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductResponses(list))
}

func (s *Server) getProduct(w http.ResponseWriter, r *http.Request) {
	product, err := s.catalog.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductResponse(product))
}

func (s *Server) listTags(w http.ResponseWriter, r *http.Request) {
	tags, err := s.catalog.Tags(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tagsResponse{Tags: nonNil(tags)})
}

// placeOrders отвечает 201, если оформлены все позиции. При остановке на позиции
// тело содержит уже созданные заказы и описание отказа, а статус зависит от причины.
func (s *Server) placeOrders(w http.ResponseWriter, r *http.Request) {
	var req placeOrdersRequest
	if err := s.decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}

	result, err := s.checkout.Place(r.Context(), req.input())
	resp := placeOrdersResponse{Orders: toOrderResponses(result.Orders)}
	resp.Placed = len(resp.Orders)
	if err == nil {
		writeJSON(w, http.StatusCreated, resp)
		return
	}

	itemErr, ok := checkout.AsItemError(err)
	if !ok {
		s.fail(w, r, err)
		return
	}

	resp.Failure = toPlacementFailure(itemErr)
	resp.Error = resp.Failure.Message
	status := http.StatusInternalServerError
	switch itemErr.Reason() {
	case checkout.ReasonInsufficientStock:
		status = http.StatusConflict
	case checkout.ReasonProductNotFound:
		status = http.StatusNotFound
	case checkout.ReasonValidation:
		status = http.StatusBadRequest
	default:
		s.logger.WithError(err).WithField("placed", resp.Placed).Error("checkout failed on persistence")
	}
	writeJSON(w, status, resp)
}

func (s *Server) listOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	userID := strings.TrimSpace(q.Get("userId"))
	phone := strings.TrimSpace(q.Get("phone"))

	var (
		list []domain.Order
		err  error
	)
	switch {
	case userID != "":
		list, err = s.orders.ListForUser(r.Context(), userID, queryLimit(r))
	case phone != "":
		list, err = s.orders.ListForPhone(r.Context(), phone, queryLimit(r))
	default:
		err = domain.NewValidationError(domain.ErrUserIDRequired)
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponses(list))
}

func (s *Server) getOrder(w http.ResponseWriter, r *http.Request) {
	details, err := s.orders.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderDetails(details))
}

func (s *Server) findUser(w http.ResponseWriter, r *http.Request) {
	user, err := s.accounts.FindByPhone(r.Context(), r.URL.Query().Get("phone"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(user))
}

func (s *Server) registerUser(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := s.decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	user, created, err := s.accounts.Register(r.Context(), req.input())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, toUserResponse(user))
}

func (s *Server) addAddress(w http.ResponseWriter, r *http.Request) {
	var req addressRequest
	if err := s.decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	user, err := s.accounts.AddAddress(r.Context(), req.Phone, req.Address.toDomain())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(user))
}

func (s *Server) updateAddress(w http.ResponseWriter, r *http.Request) {
	var req addressRequest
	if err := s.decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	user, err := s.accounts.UpdateAddress(r.Context(), req.Phone, req.Address.toDomain())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(user))
}

func (s *Server) removeAddress(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	user, err := s.accounts.RemoveAddress(r.Context(), q.Get("phone"), q.Get("addressId"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(user))
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := s.decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	token, expiresAt, err := s.auth.Login(req.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			s.logger.WithField("remote_addr", r.RemoteAddr).Warn("admin login failed")
		}
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{Token: token, ExpiresAt: expiresAt})
}

func (s *Server) createProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := s.decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	product, err := s.catalog.Create(r.Context(), req.input())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toProductResponse(product))
}

func (s *Server) updateProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := s.decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	product, err := s.catalog.Update(r.Context(), r.PathValue("id"), req.input())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductResponse(product))
}

func (s *Server) deleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := s.catalog.Delete(r.Context(), r.PathValue("id")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) removeTag(w http.ResponseWriter, r *http.Request) {
	tag := r.PathValue("tag")
	affected, err := s.catalog.RemoveTag(r.Context(), tag)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, removeTagResponse{Tag: tag, Products: affected})
}

func (s *Server) listAllOrders(w http.ResponseWriter, r *http.Request) {
	list, err := s.orders.ListAll(r.Context(), queryLimit(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponses(list))
}

func (s *Server) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := s.decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	order, err := s.orders.UpdateStatus(r.Context(), r.PathValue("id"), req.Status)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

func (s *Server) deleteOrder(w http.ResponseWriter, r *http.Request) {
	order, err := s.orders.Delete(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

func (s *Server) reindexUser(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("id")
	ids, err := s.orders.RebuildUserIndex(r.Context(), userID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reindexResponse{UserID: userID, Orders: nonNil(ids)})
}

func (s *Server) uploadImage(w http.ResponseWriter, r *http.Request) {
	if s.uploads == nil {
		writeError(w, http.StatusServiceUnavailable, "uploads are disabled")
		return
	}
	// запас на заголовки multipart сверх лимита файла
	r.Body = http.MaxBytesReader(w, r.Body, s.uploads.MaxBytes()+64<<10)
	file, header, err := r.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "uploaded file is too large")
			return
		}
		writeError(w, http.StatusBadRequest, "multipart field \"file\" is required")
		return
	}
	defer func() { _ = file.Close() }()

	saved, err := s.uploads.Save(r.Context(), header.Filename, file)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, uploadResponse{
		URL:         saved.URL,
		Name:        saved.Name,
		ContentType: saved.ContentType,
		Size:        saved.Size,
	})
}
