package kv

import (
	"bytes"
	"encoding/binary"
	"errors"
	"time"
)

// 没有键级 TTL 的后端（NATS KV）把截止时间写在值前面：
// magic | 8 字节大端 unix 毫秒 | 原始值.
var ttlMagic = []byte("SVTTL3")

const ttlHeader = 6 + 8

var errTTLHeader = errors.New("kv: truncated ttl header")

// encodeTTL ttl<=0 时原样返回.
func encodeTTL(value []byte, ttl time.Duration, now time.Time) ([]byte, error) {
	if ttl <= 0 {
		return value, nil
	}

	out := make([]byte, ttlHeader, ttlHeader+len(value))
	copy(out, ttlMagic)
	binary.BigEndian.PutUint64(out[len(ttlMagic):], uint64(now.Add(ttl).UnixMilli()))

	return append(out, value...), nil
}

// decodeTTL 返回原始值以及是否已过期；未包装的值永不过期.
func decodeTTL(b []byte, now time.Time) ([]byte, bool, error) {
	if !bytes.HasPrefix(b, ttlMagic) {
		return b, false, nil
	}

	if len(b) < ttlHeader {
		return nil, false, errTTLHeader
	}

	deadline := int64(binary.BigEndian.Uint64(b[len(ttlMagic):ttlHeader]))
	if now.UnixMilli() >= deadline {
		return nil, true, nil
	}

	return b[ttlHeader:], false, nil
}
