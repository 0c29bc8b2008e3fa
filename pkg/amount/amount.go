// Package amount 解析用户输入的金额简写（如 "5k"、"2.5m"，以及 "5oom" 这类
// 字母 o 误敲代替 0 的常见手误），统一转为以分计的整数金额
package amount

import (
	"errors"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// ErrInvalidAmount 金额无法解析
var ErrInvalidAmount = errors.New("invalid amount")

var amountPattern = regexp.MustCompile(`^([0-9]*\.?[0-9]+)([kKmMbB])?$`)

// ParseToCents 把金额字符串解析为分。支持 k/m/b 千进位后缀，
// o/O 按 0 处理，逗号、下划线与空白会被忽略
func ParseToCents(input string) (int64, error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return 0, ErrInvalidAmount
	}

	// 常见手误：字母 o/O 当成 0
	s = strings.Map(func(r rune) rune {
		if r == 'o' || r == 'O' {
			return '0'
		}
		return r
	}, s)
	s = strings.NewReplacer(",", "", "_", "", " ", "").Replace(s)

	m := amountPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, ErrInvalidAmount
	}

	value, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	switch strings.ToLower(m[2]) {
	case "k":
		value *= 1_000
	case "m":
		value *= 1_000_000
	case "b":
		value *= 1_000_000_000
	}

	if math.IsInf(value, 0) || math.IsNaN(value) {
		return 0, ErrInvalidAmount
	}
	return int64(math.Round(value * 100)), nil
}
