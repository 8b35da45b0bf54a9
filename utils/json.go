package utils

import (
	"encoding/json"

	"gorm.io/datatypes"
)

// ToJSONColumn encodes v for a datatypes.JSON column; encoding failures store null.
func ToJSONColumn(v any) datatypes.JSON {
	if v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return datatypes.JSON(b)
}
