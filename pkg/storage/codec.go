package storage

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/RhyVis/meta-manager/pkg/types"
)

// Records are stored as deterministic CBOR. Struct fields reuse the json
// tags; timestamps are RFC 3339 strings with nanoseconds so they survive a
// round trip unchanged.
var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encOptions := cbor.CoreDetEncOptions()
	encOptions.Time = cbor.TimeRFC3339Nano
	encMode, err = encOptions.EncMode()
	if err != nil {
		panic("storage: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("storage: CBOR decoder initialization failed: " + err.Error())
	}
}

func encodeRecord(rec *types.Record) ([]byte, error) {
	data, err := encMode.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("%w: encoding entry %s: %v", types.ErrCodec, rec.ID, err)
	}
	return data, nil
}

func decodeRecord(key, data []byte) (*types.Record, error) {
	var rec types.Record
	if err := decMode.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: decoding entry %s: %v", types.ErrCodec, key, err)
	}
	rec.ApplyDefaults()
	return &rec, nil
}
