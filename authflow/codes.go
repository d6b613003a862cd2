package authflow

import (
	"time"

	"github.com/jrsteele09/ehr-auth-broker/internal/utils"
)

// CodeStore maps single-use authorization codes to the value they were issued for.
type CodeStore[T any] struct {
	store      *TTLStore[T]
	codeLength int
}

func NewCodeStore[T any](ttl time.Duration, codeLength int, opts ...StoreOption) *CodeStore[T] {
	return &CodeStore[T]{
		store:      NewTTLStore[T]("authorization_codes", ttl, opts...),
		codeLength: codeLength,
	}
}

// Issue generates a random opaque code bound to value.
func (c *CodeStore[T]) Issue(value T) (string, error) {
	code, err := utils.RandomToken(c.codeLength)
	if err != nil {
		return "", err
	}
	if err := c.store.Put(code, value); err != nil {
		return "", err
	}
	return code, nil
}

// Consume deletes the code whatever the outcome, so neither a retry nor a different
// client can use it again.
func (c *CodeStore[T]) Consume(code string) (T, error) {
	return c.store.Take(code)
}

func (c *CodeStore[T]) Name() string {
	return c.store.Name()
}

func (c *CodeStore[T]) Sweep(now time.Time) int {
	return c.store.Sweep(now)
}

func (c *CodeStore[T]) Len() int {
	return c.store.Len()
}
