// Package crashrec encodes the reboot diagnostics record the fatal path
// persists before reset. The format is fixed-layout little-endian with
// length-prefixed strings and a trailing CRC so a record that survives a
// reset can be trusted or rejected, never half-read.
package crashrec

import (
	"encoding/binary"
	"errors"
	"time"

	"github.com/sigurn/crc16"
)

var (
	ErrBadMagic    = errors.New("crashrec: bad magic")
	ErrBadVersion  = errors.New("crashrec: unsupported version")
	ErrTruncated   = errors.New("crashrec: truncated record")
	ErrBadChecksum = errors.New("crashrec: checksum mismatch")
)

// Version is the current record layout version.
const Version = 1

// magic marks the start of a record.
var magic = [4]byte{'Q', 'Z', 'C', 'R'}

// maxStr bounds encoded string fields; longer values are clipped.
const maxStr = 255

var crcTable = crc16.MakeTable(crc16.CRC16_CCITT_FALSE)

// EventID is the identity of an event without its payload.
type EventID struct {
	Kind   uint16
	Source uint8
	A, B   uint32
}

// Record is one persisted fatal report.
type Record struct {
	Time    time.Time
	Kind    uint8
	Dest    uint8
	PC      uint64
	Func    string
	Current EventID
	Dropped EventID
	Reason  string
}

// Encode renders r in the persisted layout, checksum included.
func (r *Record) Encode() []byte {
	buf := make([]byte, 0, 64+len(r.Func)+len(r.Reason))
	buf = append(buf, magic[:]...)
	buf = append(buf, Version)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(r.Time.Unix()))
	buf = append(buf, r.Kind, r.Dest)
	buf = binary.LittleEndian.AppendUint64(buf, r.PC)
	buf = appendString(buf, r.Func)
	buf = appendEventID(buf, r.Current)
	buf = appendEventID(buf, r.Dropped)
	buf = appendString(buf, r.Reason)
	return binary.LittleEndian.AppendUint16(buf, crc16.Checksum(buf, crcTable))
}

// Decode parses a record produced by Encode, verifying magic, version and
// checksum.
func Decode(data []byte) (*Record, error) {
	if len(data) < len(magic)+1+2 {
		return nil, ErrTruncated
	}
	if [4]byte(data[:4]) != magic {
		return nil, ErrBadMagic
	}
	if data[4] != Version {
		return nil, ErrBadVersion
	}
	body, tail := data[:len(data)-2], data[len(data)-2:]
	if crc16.Checksum(body, crcTable) != binary.LittleEndian.Uint16(tail) {
		return nil, ErrBadChecksum
	}

	d := decoder{buf: body[5:]}
	var r Record
	r.Time = time.Unix(int64(d.uint64()), 0)
	r.Kind = d.uint8()
	r.Dest = d.uint8()
	r.PC = d.uint64()
	r.Func = d.str()
	r.Current = d.eventID()
	r.Dropped = d.eventID()
	r.Reason = d.str()
	if d.short {
		return nil, ErrTruncated
	}
	return &r, nil
}

func appendString(buf []byte, s string) []byte {
	if len(s) > maxStr {
		s = s[:maxStr]
	}
	buf = append(buf, uint8(len(s)))
	return append(buf, s...)
}

func appendEventID(buf []byte, id EventID) []byte {
	buf = binary.LittleEndian.AppendUint16(buf, id.Kind)
	buf = append(buf, id.Source)
	buf = binary.LittleEndian.AppendUint32(buf, id.A)
	return binary.LittleEndian.AppendUint32(buf, id.B)
}

// decoder walks the body with sticky underflow instead of per-field error
// plumbing.
type decoder struct {
	buf   []byte
	short bool
}

func (d *decoder) take(n int) []byte {
	if d.short || len(d.buf) < n {
		d.short = true
		return make([]byte, n)
	}
	b := d.buf[:n]
	d.buf = d.buf[n:]
	return b
}

func (d *decoder) uint8() uint8   { return d.take(1)[0] }
func (d *decoder) uint16() uint16 { return binary.LittleEndian.Uint16(d.take(2)) }
func (d *decoder) uint32() uint32 { return binary.LittleEndian.Uint32(d.take(4)) }
func (d *decoder) uint64() uint64 { return binary.LittleEndian.Uint64(d.take(8)) }

func (d *decoder) str() string {
	n := int(d.uint8())
	return string(d.take(n))
}

func (d *decoder) eventID() EventID {
	return EventID{Kind: d.uint16(), Source: d.uint8(), A: d.uint32(), B: d.uint32()}
}
