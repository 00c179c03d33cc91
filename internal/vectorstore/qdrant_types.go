package vectorstore

import (
	"encoding/json"
	"fmt"
)

// Qdrant REST payloads. Only the fields storyvec reads are declared.

type qdrantResponse[T any] struct {
	Result T       `json:"result"`
	Status any     `json:"status"`
	Time   float64 `json:"time"`
}

type qdrantVectorParams struct {
	Size     int    `json:"size"`
	Distance string `json:"distance"`
}

type qdrantCreateCollection struct {
	Vectors qdrantVectorParams `json:"vectors"`
}

type qdrantCollectionInfo struct {
	Status      string `json:"status"`
	PointsCount *int   `json:"points_count"`
	Config      struct {
		Params struct {
			Vectors json.RawMessage `json:"vectors"`
		} `json:"params"`
	} `json:"config"`
}

// vectorSize reads the size of the unnamed vector. Collections created with
// named vectors are not supported.
func (c qdrantCollectionInfo) vectorSize() (int, error) {
	var params qdrantVectorParams
	if err := json.Unmarshal(c.Config.Params.Vectors, &params); err != nil || params.Size == 0 {
		return 0, fmt.Errorf("collection does not use a single unnamed vector")
	}
	return params.Size, nil
}

type qdrantPoint struct {
	ID      string         `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload map[string]any `json:"payload,omitempty"`
}

type qdrantUpsert struct {
	Points []qdrantPoint `json:"points"`
}

type qdrantSearch struct {
	Vector      []float32 `json:"vector"`
	Limit       int       `json:"limit"`
	WithPayload bool      `json:"with_payload"`
}

// qdrantScored carries an id that Qdrant returns as either a UUID string
// or an unsigned integer.
type qdrantScored struct {
	ID      json.RawMessage `json:"id"`
	Score   float32         `json:"score"`
	Payload map[string]any  `json:"payload"`
}

func (s qdrantScored) id() string {
	var str string
	if err := json.Unmarshal(s.ID, &str); err == nil {
		return str
	}
	return string(s.ID)
}

type qdrantMatchAny struct {
	Any []string `json:"any"`
}

type qdrantCondition struct {
	Key   string         `json:"key"`
	Match qdrantMatchAny `json:"match"`
}

type qdrantFilter struct {
	Must []qdrantCondition `json:"must"`
}

type qdrantDelete struct {
	Filter qdrantFilter `json:"filter"`
}

type qdrantCount struct {
	Exact bool `json:"exact"`
}

type qdrantCountResult struct {
	Count int `json:"count"`
}

type qdrantError struct {
	Status struct {
		Error string `json:"error"`
	} `json:"status"`
}
