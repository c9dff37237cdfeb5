package shared

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewPagination(t *testing.T) {
	p := NewPagination(2, 20, 45)
	assert.Equal(t, 2, p.Page)
	assert.Equal(t, 3, p.TotalPages)
	assert.Equal(t, 20, p.Offset())

	p = NewPagination(0, 0, 5)
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, 20, p.PerPage)
	assert.Equal(t, 1, p.TotalPages)
	assert.Equal(t, 0, p.Offset())

	p = NewPagination(1, 10, 0)
	assert.Equal(t, 0, p.TotalPages)
}

func TestPageParams(t *testing.T) {
	r := httptest.NewRequest("GET", "/?page=3&per_page=50", nil)
	page, perPage := PageParams(r)
	assert.Equal(t, 3, page)
	assert.Equal(t, 50, perPage)

	r = httptest.NewRequest("GET", "/?page=-1&per_page=9999", nil)
	page, perPage = PageParams(r)
	assert.Equal(t, 1, page)
	assert.Equal(t, 20, perPage)

	r = httptest.NewRequest("GET", "/", nil)
	page, perPage = PageParams(r)
	assert.Equal(t, 1, page)
	assert.Equal(t, 20, perPage)
}
