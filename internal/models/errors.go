package models

import "errors"

// Catalog errors
var (
	ErrDuplicateCode  = errors.New("product code already exists")
	ErrNotFound       = errors.New("record not found")
	ErrInvalidProduct = errors.New("invalid product data")
)

// Cart errors
var (
	ErrProductNotFound   = errors.New("product code not found")
	ErrItemNotInCart     = errors.New("item not in cart")
	ErrInvalidQuantity   = errors.New("quantity must be positive")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidDiscount   = errors.New("invalid discount")
)

// Sale errors
var (
	ErrEmptyCart        = errors.New("cart is empty")
	ErrPersistence      = errors.New("persistence failure")
	ErrReceiptWrite     = errors.New("receipt write failure")
	ErrCommitInProgress = errors.New("another commit is in progress")
)
