package repository

import (
	jsoniter "github.com/json-iterator/go"

	"go-image-forensics/pkg/models"
)

// Stored verdicts are encoded with the standard library compatible config so
// the bytes match what the HTTP layer returns.
var json = jsoniter.ConfigCompatibleWithStandardLibrary

func encodeVerdict(v *models.VerdictRecord) ([]byte, error) {
	return json.Marshal(v)
}

func decodeVerdict(data []byte) (*models.VerdictRecord, error) {
	var v models.VerdictRecord
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	if v.Regions == nil {
		v.Regions = []models.RegionRecord{}
	}
	return &v, nil
}
