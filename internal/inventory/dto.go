package inventory

import "time"

type CreatePackageRequest struct {
	Code        string         `json:"code" binding:"required"`
	Description string         `json:"description"`
	Cabinet     string         `json:"cabinet" binding:"required"`
	Category    string         `json:"category" binding:"required"`
	Shift       string         `json:"shift" binding:"required"`
	Defects     map[string]int `json:"defects"`
}

// availability は更新対象外
type UpdatePackageRequest struct {
	Code        *string        `json:"code,omitempty"`
	Description *string        `json:"description,omitempty"`
	Cabinet     *string        `json:"cabinet,omitempty"`
	Category    *string        `json:"category,omitempty"`
	Shift       *string        `json:"shift,omitempty"`
	Defects     map[string]int `json:"defects,omitempty"`
}

type PackageResponse struct {
	ID          int64          `json:"id"`
	Code        string         `json:"code"`
	Description string         `json:"description"`
	Cabinet     string         `json:"cabinet"`
	Category    string         `json:"category"`
	Shift       string         `json:"shift"`
	Available   bool           `json:"available"`
	TotalSample int            `json:"total_sample"`
	Defects     map[string]int `json:"defects"`
	CreatedAt   time.Time      `json:"created_at"`
}

type OptionsResponse struct {
	Categories  []string `json:"categories"`
	Shifts      []string `json:"shifts"`
	Cabinets    []string `json:"cabinets"`
	DefectTypes []string `json:"defect_types"`
}

// 一覧の検索条件（空なら無条件）
type ListQuery struct {
	Code      string
	Category  string
	Shift     string
	Available *bool
	Limit     int
}

func toResponse(p Package) PackageResponse {
	d := p.Defects
	if d == nil {
		d = map[string]int{}
	}
	return PackageResponse{
		ID:          p.ID,
		Code:        p.Code,
		Description: p.Description,
		Cabinet:     p.Cabinet,
		Category:    p.Category,
		Shift:       p.Shift,
		Available:   p.Available == AvailableYes,
		TotalSample: p.TotalSample,
		Defects:     d,
		CreatedAt:   p.CreatedAt,
	}
}
