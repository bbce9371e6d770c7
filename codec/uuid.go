package codec

import (
	"io"
	"reflect"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gopkg.in/vmihailenco/msgpack.v2"
	"gopkg.in/vmihailenco/msgpack.v2/codes"
)

// UUIDExtID is the msgpack extension type used for uuid.UUID values.
const UUIDExtID = 2

// uuidHeader is the fixext16 header written in front of the raw id.
var uuidHeader = [2]byte{codes.FixExt16, UUIDExtID}

// EncodeUUID writes id as a uuid extension value.
func EncodeUUID(e *msgpack.Encoder, id uuid.UUID) error {
	return e.Encode(id)
}

// DecodeUUID reads a value written by EncodeUUID. Anything other than a
// 16 byte uuid extension is rejected, the header included.
func DecodeUUID(d *msgpack.Decoder) (uuid.UUID, error) {
	var hdr [2]byte
	if _, err := io.ReadFull(d.Buffered(), hdr[:]); err != nil {
		return uuid.Nil, errors.Wrap(err, "codec: reading uuid header")
	}
	if hdr != uuidHeader {
		return uuid.Nil, errors.Errorf("codec: expected uuid header %x, got %x", uuidHeader, hdr)
	}
	return readUUID(d.Buffered())
}

func readUUID(r io.Reader) (uuid.UUID, error) {
	var id uuid.UUID
	if _, err := io.ReadFull(r, id[:]); err != nil {
		return uuid.Nil, errors.Wrap(err, "codec: truncated uuid")
	}
	return id, nil
}

func encodeUUID(e *msgpack.Encoder, v reflect.Value) error {
	id := v.Interface().(uuid.UUID)
	if _, err := e.Writer().Write(id[:]); err != nil {
		return errors.Wrap(err, "codec: writing uuid")
	}
	return nil
}

// decodeUUID runs once the extension header has been consumed, which is
// the DecodeInterface path. Typed fields go through DecodeUUID.
func decodeUUID(d *msgpack.Decoder, v reflect.Value) error {
	id, err := readUUID(d.Buffered())
	if err != nil {
		return err
	}
	v.Set(reflect.ValueOf(id))
	return nil
}

func init() {
	msgpack.Register(reflect.TypeOf(uuid.UUID{}), encodeUUID, decodeUUID)
	msgpack.RegisterExt(UUIDExtID, (*uuid.UUID)(nil))
}
