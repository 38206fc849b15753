// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

// Package eventlog records ME boot events. Every sink is best effort:
// callers log a failed Add and carry on.
package eventlog

import (
	"fmt"
	"time"

	"github.com/garyburd/redigo/redis"
	uuid "github.com/satori/go.uuid"
)

// Event types.
const (
	// TypeME carries the boot path as a single byte.
	TypeME uint8 = 0xa2
	// TypeMEExtended carries the decoded status registers.
	TypeMEExtended uint8 = 0xa4
)

type Log interface {
	Add(typ uint8, data []byte) error
}

type Discard struct{}

func (Discard) Add(uint8, []byte) error { return nil }

type Event struct {
	Type uint8
	Data []byte
}

func (e Event) String() string { return fmt.Sprintf("0x%02x % x", e.Type, e.Data) }

// Memory keeps events in order of arrival.
type Memory struct {
	Events []Event
}

func (m *Memory) Add(typ uint8, data []byte) error {
	m.Events = append(m.Events, Event{typ, append([]byte(nil), data...)})
	return nil
}

const DefaultKey = "me.eventlog"

var Timeout = 500 * time.Millisecond

// Redis appends each event to a list as "session type data" where session
// tags all events of one boot phase.
type Redis struct {
	Conn    redis.Conn
	Key     string
	Session uuid.UUID
}

func NewRedis(conn redis.Conn, key string) *Redis {
	if len(key) == 0 {
		key = DefaultKey
	}
	return &Redis{
		Conn:    conn,
		Key:     key,
		Session: uuid.NewV4(),
	}
}

// Dial connects to the redis server at the tcp address.
func Dial(addr, key string) (*Redis, error) {
	conn, err := redis.Dial("tcp", addr,
		redis.DialConnectTimeout(Timeout),
		redis.DialReadTimeout(Timeout),
		redis.DialWriteTimeout(Timeout))
	if err != nil {
		return nil, err
	}
	return NewRedis(conn, key), nil
}

func (r *Redis) Add(typ uint8, data []byte) error {
	n, err := redis.Int(r.Conn.Do("RPUSH", r.Key, r.Format(typ, data)))
	if err != nil {
		return fmt.Errorf("%s: rpush: %v", r.Key, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: rpush: empty list", r.Key)
	}
	return nil
}

func (r *Redis) Format(typ uint8, data []byte) string {
	return fmt.Sprintf("%s 0x%02x %x", r.Session, typ, data)
}

func (r *Redis) Close() error { return r.Conn.Close() }
