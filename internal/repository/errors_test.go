package repository

import (
	"errors"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	dup := classify("insert", &pq.Error{Code: "23505", Message: "duplicate key value"})
	assert.ErrorIs(t, dup, ErrDuplicate)
	var pqErr *pq.Error
	assert.True(t, errors.As(dup, &pqErr))

	assert.ErrorIs(t, classify("insert", &pq.Error{Code: "42703"}), ErrTransientStore)
	assert.ErrorIs(t, classify("insert", &pq.Error{Code: "42P01"}), ErrTransientStore)

	other := classify("insert", errors.New("boom"))
	assert.NotErrorIs(t, other, ErrDuplicate)
	assert.NotErrorIs(t, other, ErrTransientStore)
	assert.EqualError(t, other, "insert: boom")

	assert.NoError(t, classify("insert", nil))
}
