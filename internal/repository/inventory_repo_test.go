package repository

import (
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestIsUniqueViolation(t *testing.T) {
	uniqueErr := &pq.Error{Code: "23505", Constraint: "reservation_order_product_key"}
	assert.True(t, isUniqueViolation(uniqueErr))

	wrapped := fmt.Errorf("failed to insert reservation: %w", uniqueErr)
	assert.True(t, isUniqueViolation(wrapped))

	otherPqErr := &pq.Error{Code: "23503"}
	assert.False(t, isUniqueViolation(otherPqErr))

	assert.False(t, isUniqueViolation(fmt.Errorf("connection refused")))
	assert.False(t, isUniqueViolation(nil))
}
