package store

import (
	"database/sql/driver"
	"fmt"
	"math"

	sqlite "modernc.org/sqlite"

	"cortex/internal/event"
)

func init() {
	// Register vec_distance_L2 so SQLiteStore's vector search can push the
	// distance computation into SQL when a native extension isn't present,
	// instead of always paying for a Go-side brute-force scan.
	_ = sqlite.RegisterDeterministicScalarFunction("vec_distance_l2", 2, vecDistanceL2)
}

// vecDistanceL2 computes the Euclidean distance between two little-endian
// float32 BLOBs, the same on-disk format event.EncodeEmbedding produces.
// Events with no embedding (nil blob) sort last by returning +Inf.
func vecDistanceL2(ctx *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("vec_distance_l2 expects 2 arguments")
	}
	a, err := decodeVecArg(args[0])
	if err != nil {
		return nil, err
	}
	b, err := decodeVecArg(args[1])
	if err != nil {
		return nil, err
	}
	if len(a) == 0 || len(b) == 0 {
		return math.Inf(1), nil
	}
	if len(a) != len(b) {
		return nil, fmt.Errorf("vec_distance_l2: dimension mismatch %d vs %d", len(a), len(b))
	}
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum), nil
}

func decodeVecArg(v driver.Value) ([]float32, error) {
	if v == nil {
		return nil, nil
	}
	switch x := v.(type) {
	case []byte:
		if len(x)%4 != 0 {
			return nil, fmt.Errorf("vec_distance_l2: blob length %d not a multiple of 4", len(x))
		}
		return event.DecodeEmbedding(x), nil
	case string:
		return decodeVecArg([]byte(x))
	default:
		return nil, fmt.Errorf("vec_distance_l2: unsupported argument type %T", v)
	}
}

// VecExtensionAvailable reports whether the native vec_distance_l2 scalar
// function is usable against this database, probed with a one-shot query
// rather than assumed from build tags alone.
func (s *SQLiteStore) VecExtensionAvailable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	probe := event.EncodeEmbedding([]float32{1, 0})
	var dist float64
	err := s.db.QueryRow("SELECT vec_distance_l2(?, ?)", probe, probe).Scan(&dist)
	return err == nil
}
