package model

import (
	"bytes"
	"encoding/gob"
	"io"

	"github.com/YuminosukeSato/insightml/pkg/errors"
)

// SaveModelToWriter はモデルをgobでio.Writerに書き出す。
// インターフェース値を含む場合は具象型をgob.Registerしておく必要がある。
func SaveModelToWriter(model interface{}, w io.Writer) error {
	if err := gob.NewEncoder(w).Encode(model); err != nil {
		return errors.Wrap(err, "failed to encode model")
	}
	return nil
}

// LoadModelFromReader はio.Readerからモデルを読み込む。model はポインタ。
func LoadModelFromReader(model interface{}, r io.Reader) error {
	if err := gob.NewDecoder(r).Decode(model); err != nil {
		return errors.Wrap(err, "failed to decode model")
	}
	return nil
}

// EncodeSnapshot gob-encodes a model's exported snapshot struct. Models use it
// to implement gob.GobEncoder while keeping their fields unexported.
func EncodeSnapshot(snapshot interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := SaveModelToWriter(snapshot, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeSnapshot is the inverse of EncodeSnapshot.
func DecodeSnapshot(data []byte, snapshot interface{}) error {
	return LoadModelFromReader(snapshot, bytes.NewReader(data))
}
