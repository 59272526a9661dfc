package guard

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// ErrorCategory buckets handler failures for user-facing reporting. The full
// error is logged; the user only sees the canned message for the category.
type ErrorCategory string

const (
	CategoryNotFound    ErrorCategory = "not_found"
	CategoryPermission  ErrorCategory = "permission"
	CategoryDuplicate   ErrorCategory = "duplicate"
	CategoryLimit       ErrorCategory = "limit_exceeded"
	CategoryInvalid     ErrorCategory = "invalid_input"
	CategoryExternalAPI ErrorCategory = "external_api"
	CategoryDatabase    ErrorCategory = "database"
	CategoryUnknown     ErrorCategory = "unknown"
)

// Classify buckets an error by substring matching on its message, the same
// heuristic the bot has always used for user feedback.
func Classify(err error) ErrorCategory {
	if err == nil {
		return CategoryUnknown
	}
	msg := strings.ToLower(err.Error())

	switch {
	case strings.Contains(msg, "not found") || strings.Contains(msg, "does not exist"):
		return CategoryNotFound
	case strings.Contains(msg, "permission") || strings.Contains(msg, "access denied") || strings.Contains(msg, "unauthorized"):
		return CategoryPermission
	case strings.Contains(msg, "already exists") || strings.Contains(msg, "duplicate"):
		return CategoryDuplicate
	case strings.Contains(msg, "limit") || strings.Contains(msg, "exceeded") || strings.Contains(msg, "too many"):
		return CategoryLimit
	case strings.Contains(msg, "invalid") || strings.Contains(msg, "format"):
		return CategoryInvalid
	case strings.Contains(msg, "discord") && strings.Contains(msg, "api"):
		return CategoryExternalAPI
	case strings.Contains(msg, "database") || strings.Contains(msg, "sqlite") || strings.Contains(msg, "sql"):
		return CategoryDatabase
	default:
		return CategoryUnknown
	}
}

// UserMessage maps a classified error to the canned text shown to the user.
// Only the unknown category appends the raw error string.
func UserMessage(err error) string {
	switch Classify(err) {
	case CategoryNotFound:
		return "The requested item could not be found. Please check your inputs and try again."
	case CategoryPermission:
		return "You don't have permission to use this command or access this resource."
	case CategoryDuplicate:
		return "This item already exists. Please use a different name or identifier."
	case CategoryLimit:
		return "You've reached a limit for this action. Please try again later or contact an administrator."
	case CategoryInvalid:
		return "One or more values you provided are invalid. Please check your inputs and try again."
	case CategoryExternalAPI:
		return "Discord API error occurred. Please try again later."
	case CategoryDatabase:
		return "Database operation failed. Please try again later."
	default:
		return fmt.Sprintf("An error occurred while processing the command. Error: %v", err)
	}
}

// IsTransient reports whether an error is worth retrying: timeouts and
// network-level failures. Everything else fails fast.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "eof")
}
