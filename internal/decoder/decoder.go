package decoder

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/davecgh/go-spew/spew"
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// opcode identifies the record type inside one application frame. The high
// bit marks the remainder of the frame as zstd-compressed.
type opcode byte

const (
	opDamage       opcode = 0x01
	opHealing      opcode = 0x02
	opTakenDamage  opcode = 0x03
	opName         opcode = 0x04
	opProfession   opcode = 0x05
	opFightPoint   opcode = 0x06
	opAttrKV       opcode = 0x07
	opEnemyInfo    opcode = 0x08
	opEnemyDelete  opcode = 0x09

	opCompressedBit opcode = 0x80
)

var elementNames = map[byte]string{
	0: "",
	1: "ice",
	2: "fire",
	3: "thunder",
	4: "wind",
	5: "physical",
	6: "light",
	7: "dark",
}

// skillSubProfession maps a skill id to the sub-profession label it
// implies (spec.md §4.7). This is the engine-side inference table, kept
// distinct from the (out-of-scope) skill-id -> skill-name table.
var skillSubProfession = map[string]string{
	"1241": "Frostbeam",
	"1305": "Verdant",
	"1450": "Stormcaller",
	"1602": "Ironwall",
}

// Decoder turns one length-prefixed application frame (already stripped of
// its 4-byte length prefix by the frame splitter) into zero or more calls
// against an EventSink. It is a genuine, runnable reference implementation
// of the otherwise-external event decoder collaborator, kept swappable
// behind EventSink so tests can substitute a mock.
type Decoder struct {
	sink EventSink
	log  *zap.Logger
	zr   *zstd.Decoder
}

// New builds a Decoder delivering events to sink.
func New(sink EventSink, log *zap.Logger) (*Decoder, error) {
	zr, err := zstd.NewReader(nil)
	if err != nil {
		return nil, errors.Wrap(err, "init zstd decoder")
	}

	return &Decoder{sink: sink, log: log, zr: zr}, nil
}

// Close releases the zstd decoder's resources.
func (d *Decoder) Close() {
	d.zr.Close()
}

// Decode parses one application frame and dispatches it to the sink.
// Decode errors are swallowed at the frame level per spec.md §7
// ("per-frame decode error"): the frame is logged and skipped, the
// pipeline continues.
func (d *Decoder) Decode(frame []byte) {
	if len(frame) == 0 {
		return
	}

	op := opcode(frame[0])
	body := frame[1:]

	if op&opCompressedBit != 0 {
		op &^= opCompressedBit

		plain, err := d.zr.DecodeAll(body, nil)
		if err != nil {
			if d.log != nil {
				d.log.Debug("frame decompression failed, dropping frame", zap.Error(err))
			}
			return
		}

		body = plain
	}

	r := bytes.NewReader(body)

	var err error
	switch op {
	case opDamage:
		err = d.decodeDamage(r)
	case opHealing:
		err = d.decodeHealing(r)
	case opTakenDamage:
		err = d.decodeTakenDamage(r)
	case opName:
		err = d.decodeName(r)
	case opProfession:
		err = d.decodeProfession(r)
	case opFightPoint:
		err = d.decodeFightPoint(r)
	case opAttrKV:
		err = d.decodeAttrKV(r)
	case opEnemyInfo:
		err = d.decodeEnemyInfo(r)
	case opEnemyDelete:
		err = d.decodeEnemyDelete(r)
	default:
		if d.log != nil {
			d.log.Debug("unknown opcode, dropping frame",
				zap.Uint8("opcode", byte(op)),
				zap.String("body", spew.Sdump(body)))
		}
		return
	}

	if err != nil && d.log != nil {
		d.log.Debug("frame decode error, dropping frame",
			zap.Error(err),
			zap.Uint8("opcode", byte(op)),
			zap.String("body", spew.Sdump(body)))
	}
}

func readUint64(r io.Reader) (uint64, error) {
	var v uint64
	err := binary.Read(r, binary.BigEndian, &v)
	return v, err
}

func readInt64(r io.Reader) (int64, error) {
	var v int64
	err := binary.Read(r, binary.BigEndian, &v)
	return v, err
}

func readUint32(r io.Reader) (uint32, error) {
	var v uint32
	err := binary.Read(r, binary.BigEndian, &v)
	return v, err
}

func readString(r io.Reader) (string, error) {
	var n uint16
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return "", err
	}

	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}

	return string(buf), nil
}

func readByte(r io.Reader) (byte, error) {
	buf := make([]byte, 1)
	if _, err := io.ReadFull(r, buf); err != nil {
		return 0, err
	}

	return buf[0], nil
}

func (d *Decoder) decodeDamage(r io.Reader) error {
	uid, err := readUint64(r)
	if err != nil {
		return err
	}

	skillID, err := readUint32(r)
	if err != nil {
		return err
	}

	elemByte, err := readByte(r)
	if err != nil {
		return err
	}

	damage, err := readInt64(r)
	if err != nil {
		return err
	}

	flags, err := readByte(r)
	if err != nil {
		return err
	}

	hpLessen, err := readInt64(r)
	if err != nil {
		return err
	}

	targetUID, err := readUint64(r)
	if err != nil {
		return err
	}

	isCrit := flags&0x1 != 0
	isLucky := flags&0x2 != 0
	isCauseLucky := flags&0x4 != 0

	skillIDStr := fmt.Sprintf("%d", skillID)

	d.sink.AddDamage(uid, skillIDStr, elementNames[elemByte], damage, isCrit, isLucky, isCauseLucky, hpLessen, targetUID)

	if sub, ok := skillSubProfession[skillIDStr]; ok {
		d.sink.SetSubProfession(uid, sub)
	}

	return nil
}

func (d *Decoder) decodeHealing(r io.Reader) error {
	uid, err := readUint64(r)
	if err != nil {
		return err
	}

	skillID, err := readUint32(r)
	if err != nil {
		return err
	}

	elemByte, err := readByte(r)
	if err != nil {
		return err
	}

	healing, err := readInt64(r)
	if err != nil {
		return err
	}

	flags, err := readByte(r)
	if err != nil {
		return err
	}

	targetUID, err := readUint64(r)
	if err != nil {
		return err
	}

	isCrit := flags&0x1 != 0
	isLucky := flags&0x2 != 0
	isCauseLucky := flags&0x4 != 0

	skillIDStr := fmt.Sprintf("%d", skillID)

	d.sink.AddHealing(uid, skillIDStr, elementNames[elemByte], healing, isCrit, isLucky, isCauseLucky, targetUID)

	if sub, ok := skillSubProfession[skillIDStr]; ok {
		d.sink.SetSubProfession(uid, sub)
	}

	return nil
}

func (d *Decoder) decodeTakenDamage(r io.Reader) error {
	uid, err := readUint64(r)
	if err != nil {
		return err
	}

	damage, err := readInt64(r)
	if err != nil {
		return err
	}

	isDeadByte, err := readByte(r)
	if err != nil {
		return err
	}

	d.sink.AddTakenDamage(uid, damage, isDeadByte != 0)

	return nil
}

func (d *Decoder) decodeName(r io.Reader) error {
	uid, err := readUint64(r)
	if err != nil {
		return err
	}

	name, err := readString(r)
	if err != nil {
		return err
	}

	d.sink.SetName(uid, name)

	return nil
}

func (d *Decoder) decodeProfession(r io.Reader) error {
	uid, err := readUint64(r)
	if err != nil {
		return err
	}

	prof, err := readString(r)
	if err != nil {
		return err
	}

	d.sink.SetProfession(uid, prof)

	return nil
}

func (d *Decoder) decodeFightPoint(r io.Reader) error {
	uid, err := readUint64(r)
	if err != nil {
		return err
	}

	fp, err := readInt64(r)
	if err != nil {
		return err
	}

	d.sink.SetFightPoint(uid, fp)

	return nil
}

func (d *Decoder) decodeAttrKV(r io.Reader) error {
	uid, err := readUint64(r)
	if err != nil {
		return err
	}

	key, err := readString(r)
	if err != nil {
		return err
	}

	var value float64
	if err := binary.Read(r, binary.BigEndian, &value); err != nil {
		return err
	}

	d.sink.SetAttrKV(uid, key, value)

	return nil
}

func (d *Decoder) decodeEnemyInfo(r io.Reader) error {
	id, err := readUint64(r)
	if err != nil {
		return err
	}

	name, err := readString(r)
	if err != nil {
		return err
	}

	hp, err := readInt64(r)
	if err != nil {
		return err
	}

	maxHP, err := readInt64(r)
	if err != nil {
		return err
	}

	d.sink.SetEnemy(id, name, hp, maxHP)

	return nil
}

func (d *Decoder) decodeEnemyDelete(r io.Reader) error {
	id, err := readUint64(r)
	if err != nil {
		return err
	}

	d.sink.DeleteEnemy(id)

	return nil
}
