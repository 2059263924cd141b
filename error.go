package pinledger

import (
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var (
	ErrInternalServer     = errors.New("internal server error")
	ErrServiceUnavailable = errors.New("service unavailable")
	// ErrAuth is returned for both an unknown account number and a wrong PIN
	// so that callers cannot probe which accounts exist.
	ErrAuth        = errors.New("invalid account or PIN")
	ErrIDExhausted = errors.New("could not generate a unique account number")
)

var printer = message.NewPrinter(language.English)

// ErrBadRequest is raised at the transport boundary for malformed input.
type ErrBadRequest struct {
	Fields map[string]string `json:"fields"`
}

func (e ErrBadRequest) Error() string {
	return fmt.Sprintf("missing/invalid params: %v", e.Fields)
}

// ErrValidation is raised when an engine precondition fails.
type ErrValidation struct {
	Reason string `json:"message"`
}

func (e ErrValidation) Error() string {
	return e.Reason
}

type ErrLimit struct {
	Op    string `json:"operation"`
	Limit int64  `json:"limit"`
}

func (e ErrLimit) Error() string {
	return printer.Sprintf("max %s limit is %d", e.Op, e.Limit)
}

type ErrInsufficientFunds struct {
	Balance int64 `json:"-"`
	Amount  int64 `json:"-"`
}

func (e ErrInsufficientFunds) Error() string {
	return "insufficient balance"
}

type ErrDraftNotFound struct {
	ID snowflake.ID `json:"draft_id"`
}

func (e ErrDraftNotFound) Error() string {
	return "update draft not found"
}

// ErrStorage wraps a failure of the persistence layer.
type ErrStorage struct {
	Op  string
	Err error
}

func (e ErrStorage) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e ErrStorage) Unwrap() error {
	return e.Err
}
