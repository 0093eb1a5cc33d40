package httpx

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/ariefcatur/storefront-core/internal/domain"
)

type errorResp struct {
	Error      string `json:"error"`
	ItemIndex  *int   `json:"item_index,omitempty"`
	ProductID  string `json:"product_id,omitempty"`
	CouponCode string `json:"coupon_code,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrTransient):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrTemplateNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrIllegalTransition),
		errors.Is(err, domain.ErrTerminalState),
		errors.Is(err, domain.ErrInsufficientStock),
		errors.Is(err, domain.ErrDuplicateCoupon):
		return http.StatusConflict
	case errors.Is(err, domain.ErrCouponInvalid),
		errors.Is(err, domain.ErrUsageLimitExceeded),
		errors.Is(err, domain.ErrUnsupportedCouponType):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrBadRequest), errors.Is(err, domain.ErrInvalidPayload):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	code := statusFor(err)
	resp := errorResp{Error: err.Error()}
	if code == http.StatusInternalServerError {
		log.Printf("[http] internal error: %v", err)
		resp.Error = "internal error"
	}

	var li *domain.LineItemError
	if errors.As(err, &li) {
		idx := li.Index
		resp.ItemIndex = &idx
		resp.ProductID = li.ProductID
	}
	var ce *domain.CouponError
	if errors.As(err, &ce) {
		resp.CouponCode = ce.Code
	}
	writeJSON(w, code, resp)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp{Error: "invalid json"})
		return false
	}
	return true
}

func pageFrom(r *http.Request) domain.Page {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	return domain.Page{Limit: limit, Offset: offset}.Normalize()
}
