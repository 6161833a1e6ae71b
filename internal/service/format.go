package service

import (
	"strings"

	"github.com/noah-isme/gema-roster-api/internal/dto"
)

// paginate builds list metadata; a non-positive page size means the whole result fit on one page.
func paginate(page, pageSize int, total int64) dto.PaginationMeta {
	if page < 1 {
		page = 1
	}
	meta := dto.PaginationMeta{Page: page, PageSize: pageSize, TotalItems: total, TotalPages: 1}
	if pageSize > 0 {
		meta.TotalPages = int((total + int64(pageSize) - 1) / int64(pageSize))
	}
	return meta
}

// maskEmail keeps the first and last character of the local part for log lines.
func maskEmail(email string) string {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return ""
	}
	local, domain, ok := strings.Cut(email, "@")
	if !ok || local == "" || strings.Contains(domain, "@") {
		return "***"
	}
	masked := local[:1] + "***"
	if len(local) > 2 {
		masked += local[len(local)-1:]
	}
	return masked + "@" + domain
}
