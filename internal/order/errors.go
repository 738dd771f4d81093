package order

import (
	"errors"
	"fmt"
	"net/http"
)

type Category string

const (
	CategoryValidation Category = "VALIDATION"
	CategoryConflict   Category = "CONFLICT"
	CategoryFatal      Category = "FATAL"
)

const (
	CodeEmptyCart             = "EMPTY_CART"
	CodeEventNotFound         = "EVENT_NOT_FOUND"
	CodeInvalidSnapshot       = "INVALID_SNAPSHOT"
	CodeInvalidDiscount       = "INVALID_DISCOUNT"
	CodeItemUnavailable       = "ITEM_UNAVAILABLE"
	CodeFulfillmentInProgress = "FULFILLMENT_IN_PROGRESS"
	CodeFulfillmentFailed     = "FULFILLMENT_FAILED"
	CodeOrderNotFound         = "ORDER_NOT_FOUND"
	CodePaymentReferenceInUse = "PAYMENT_REFERENCE_IN_USE"
)

// FulfillmentError is the only error type the order service returns to callers.
type FulfillmentError struct {
	Code     string
	Category Category
	Message  string
	Err      error
}

func (e *FulfillmentError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *FulfillmentError) Unwrap() error {
	return e.Err
}

func (e *FulfillmentError) HTTPStatus() int {
	switch {
	case e.Code == CodeEventNotFound || e.Code == CodeOrderNotFound:
		return http.StatusNotFound
	case e.Category == CategoryValidation:
		return http.StatusBadRequest
	case e.Category == CategoryConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// ErrorCode returns the code of a FulfillmentError anywhere in err's chain.
func ErrorCode(err error) string {
	var fe *FulfillmentError
	if errors.As(err, &fe) {
		return fe.Code
	}
	return ""
}

func validationError(code, msg string, err error) *FulfillmentError {
	return &FulfillmentError{Code: code, Category: CategoryValidation, Message: msg, Err: err}
}

func conflictError(code, msg string, err error) *FulfillmentError {
	return &FulfillmentError{Code: code, Category: CategoryConflict, Message: msg, Err: err}
}

func fatalError(msg string, err error) *FulfillmentError {
	return &FulfillmentError{Code: CodeFulfillmentFailed, Category: CategoryFatal, Message: msg, Err: err}
}
