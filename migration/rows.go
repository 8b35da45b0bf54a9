package migration

import (
	"encoding/json"

	"github.com/mmdatafocus/hotel_migration/remote"
	"github.com/mmdatafocus/hotel_migration/utils"
)

// rowInt reads an integer column of an undecoded row; legacy false reads as 0.
func rowInt(row remote.Row, field string) int {
	var n int
	_ = json.Unmarshal(row[field], &n)
	return n
}

func rowString(row remote.Row, field string) string {
	var s string
	_ = json.Unmarshal(row[field], &s)
	return s
}

// rowRef reads the id of a many2one column of an undecoded row.
func rowRef(row remote.Row, field string) int {
	var m remote.Many2One
	if raw, ok := row[field]; ok {
		_ = json.Unmarshal(raw, &m)
	}
	return m.ID
}

func rowRefs(rows []remote.Row, field string) []int {
	var ids []int
	for _, r := range rows {
		if id := rowRef(r, field); id > 0 {
			ids = append(ids, id)
		}
	}
	return utils.UniqueSlice(ids)
}

// owners maps the id of every row to the id its field points at.
func owners(rows []remote.Row, field string) map[int]int {
	out := make(map[int]int, len(rows))
	for _, r := range rows {
		out[rowInt(r, "id")] = rowRef(r, field)
	}
	return out
}

func idsOf[T any](records []T, id func(T) int) []int {
	out := make([]int, 0, len(records))
	for _, r := range records {
		out = append(out, id(r))
	}
	return out
}

func intSet(values []int) map[int]bool {
	out := make(map[int]bool, len(values))
	for _, v := range values {
		out[v] = true
	}
	return out
}
