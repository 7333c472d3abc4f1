package inventory

import (
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

const (
	AvailableYes = "YES"
	AvailableNo  = "NO"
)

// Package は packages テーブルの1行 + 不良種別ごとのサンプル数
type Package struct {
	ID          int64          `db:"id"`
	Code        string         `db:"code"`
	Description string         `db:"description"`
	Cabinet     string         `db:"cabinet"`
	Category    string         `db:"category"`
	Shift       string         `db:"shift"`
	Available   string         `db:"available"`
	TotalSample int            `db:"total_sample"`
	CreatedAt   time.Time      `db:"created_at"`
	Defects     map[string]int `db:"-"`
}

func defectGroup(area string, names ...string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		out = append(out, area+"/"+n)
	}
	return out
}

// DefectTypes: 在庫シートの不良種別（固定）
var DefectTypes = func() []string {
	var out []string
	out = append(out, "Dummyunit")
	out = append(out, defectGroup("Substrate",
		"WhiteFM", "BlackFM", "Chip", "Scratches", "Crack", "FMonFoot", "FMonShoulder",
		"NFA", "PFA", "Footburr", "Shoulderbur", "Exposecopper", "Resinbleed", "void", "Copla")...)
	out = append(out, defectGroup("Mold",
		"WhiteFM", "BlackFM", "EdgeChip", "CornerChip", "Scratches", "Crack", "Illegiblemarking")...)
	out = append(out, defectGroup("Die",
		"WhiteFM", "BlackFM", "Chip", "Scratches", "Crack")...)
	out = append(out, defectGroup("BottomDefect",
		"WhiteFM", "BlackFM", "Chip", "Scratches", "Crack", "Damageball")...)
	out = append(out,
		"Multiple Defect", "Pitch", "Sliver", "Ball Discoloration", "Burr",
		"FM on Dambar", "FM on Lead", "Expose Copper on Dambar", "Mold Flash",
		"Metallic Particle", "Patchback", "Bent Lead", "Expose Tie Bar", "Fiber",
		"Tool Mark", "Good Unit", "Lead Shining", "Acid Test Burr")
	return out
}()

var defectSet = func() map[string]bool {
	m := make(map[string]bool, len(DefectTypes))
	for _, d := range DefectTypes {
		m[d] = true
	}
	return m
}()

func IsDefectType(s string) bool { return defectSet[s] }

// NormalizeKey: 全角入力（スキャナ等）を半角に寄せる
func NormalizeKey(s string) string {
	return strings.TrimSpace(norm.NFKC.String(s))
}

func sumDefects(m map[string]int) int {
	total := 0
	for _, n := range m {
		total += n
	}
	return total
}
