package utils

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseIdList parses "12, 13,14" into ids, keeping the caller's order.
// Blank tokens are skipped; anything non-numeric or non-positive is rejected.
func ParseIdList(raw string) ([]int, error) {
	var ids []int
	for _, token := range strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n'
	}) {
		id, err := strconv.Atoi(token)
		if err != nil {
			return nil, fmt.Errorf("invalid purchase order id: %s", token)
		}
		if id <= 0 {
			return nil, fmt.Errorf("purchase order ids must be positive numbers: %d", id)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// UniqueIds drops repeated ids, keeping the first occurrence.
func UniqueIds(ids []int) []int {
	seen := make(map[int]struct{}, len(ids))
	result := make([]int, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		result = append(result, id)
	}
	return result
}

// JoinIds renders ids as "1, 2, 3".
func JoinIds(ids []int) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	return strings.Join(parts, ", ")
}
