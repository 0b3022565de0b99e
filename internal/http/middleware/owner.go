package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

const (
	// OwnerHeader carries the caller identity set by the upstream auth proxy.
	OwnerHeader = "X-User-ID"
	// OwnerLocalKey is the key used to store the owner in Fiber's context locals.
	OwnerLocalKey = "owner"
)

// Owner copies the caller identity from OwnerHeader into context locals.
// Authentication happens upstream; an absent header means anonymous.
func Owner() fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Locals(OwnerLocalKey, strings.TrimSpace(c.Get(OwnerHeader)))
		return c.Next()
	}
}

// OwnerFromCtx returns the owner stored by Owner, or "".
func OwnerFromCtx(c *fiber.Ctx) string {
	s, _ := c.Locals(OwnerLocalKey).(string)
	return s
}
