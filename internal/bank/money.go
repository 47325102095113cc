package bank

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Cents 以分为单位保存金额，避免浮点误差。
type Cents int64

// FromDollars 将美元金额四舍五入为分。
func FromDollars(amount float64) Cents {
	return Cents(math.Round(amount * 100))
}

// ParseDollars 解析 "1,250.50"、"$300" 这类模型常见的金额写法。
func ParseDollars(raw string) (Cents, error) {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "$")
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	if cleaned == "" {
		return 0, fmt.Errorf("empty amount")
	}
	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", raw)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("invalid amount %q", raw)
	}
	return FromDollars(f), nil
}

// Dollars 返回以美元表示的金额。
func (c Cents) Dollars() float64 {
	return float64(c) / 100
}

// String 输出形如 $1250.50 的金额。
func (c Cents) String() string {
	sign := ""
	v := int64(c)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s$%d.%02d", sign, v/100, v%100)
}
