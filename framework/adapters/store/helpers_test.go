package store_test

import "encoding/json"

func jsonID(data []byte) (string, error) {
	var doc struct {
		ID string `json:"id"`
	}
	err := json.Unmarshal(data, &doc)
	return doc.ID, err
}
