package api

import (
	"math"
	"strconv"

	"github.com/dzrentit/rentit-app-backend/db"
)

// GetPaginationParams extracts pagination parameters from the request
func (h *HTTPContext) GetPaginationParams() (page, pageSize int, err error) {
	page, err = h.GetPage()
	if err != nil {
		return 0, 0, err
	}

	pageSize = db.DefaultPageSize
	if pageSizeParam := h.URLParam("pageSize"); pageSizeParam != nil {
		if size, err := strconv.Atoi(pageSizeParam[0]); err == nil && size > 0 {
			pageSize = size
		}
	}
	pageSize = db.SanitizePageSize(pageSize)

	return page, pageSize, nil
}

// CalculatePagination computes pagination metadata
func CalculatePagination(page, pageSize int, total int64) PaginationInfo {
	totalPages := int(math.Ceil(float64(total) / float64(pageSize)))
	return PaginationInfo{
		Current:  page,
		PageSize: pageSize,
		Total:    total,
		Pages:    totalPages,
	}
}
