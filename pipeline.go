package batchkv

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Builder turns one chunk into a pipeline whose keys expire at now+ttl.
type Builder func(chunk []Item, now time.Time, ttl time.Duration) *Pipeline

type commandKind uint8

const (
	kindMSet commandKind = iota
	kindExpireAt
	kindSetArgs
	kindRaw
)

// Command is one wire command of a pipeline.
type Command struct {
	kind     commandKind
	args     []interface{}
	key      string
	value    []byte
	expireAt time.Time
	setArgs  redis.SetArgs
}

// Name returns the command name, e.g. "MSET".
func (c Command) Name() string {
	return c.args[0].(string)
}

// Args returns the full argument vector as sent to the store.
func (c Command) Args() []interface{} {
	args := make([]interface{}, len(c.args))
	copy(args, c.args)
	return args
}

func (c Command) String() string {
	parts := make([]string, len(c.args))
	for i, arg := range c.args {
		switch v := arg.(type) {
		case []byte:
			parts[i] = string(v)
		default:
			parts[i] = fmt.Sprint(v)
		}
	}
	return strings.Join(parts, " ")
}

func (c Command) queue(ctx context.Context, pipe redis.Pipeliner) {
	switch c.kind {
	case kindMSet:
		pipe.MSet(ctx, c.args[1:]...)
	case kindExpireAt:
		pipe.ExpireAt(ctx, c.key, c.expireAt)
	case kindSetArgs:
		pipe.SetArgs(ctx, c.key, c.value, c.setArgs)
	default:
		pipe.Do(ctx, c.args...)
	}
}

// Pipeline is an ordered, immutable batch of commands built from exactly
// one chunk.
type Pipeline struct {
	cmds     []Command
	items    int
	expireAt time.Time
}

// Len returns the number of commands.
func (p *Pipeline) Len() int {
	return len(p.cmds)
}

// Items returns the number of items the pipeline was built from.
func (p *Pipeline) Items() int {
	return p.items
}

// ExpireAt returns the absolute expiry applied to every key, or the zero
// time if the pipeline sets no expiry.
func (p *Pipeline) ExpireAt() time.Time {
	return p.expireAt
}

// Commands returns a copy of the commands in execution order.
func (p *Pipeline) Commands() []Command {
	cmds := make([]Command, len(p.cmds))
	copy(cmds, p.cmds)
	return cmds
}

func (p *Pipeline) queue(ctx context.Context, pipe redis.Pipeliner) {
	for _, cmd := range p.cmds {
		cmd.queue(ctx, pipe)
	}
}

func expiryOf(now time.Time, ttl time.Duration) time.Time {
	return time.Unix(now.Add(ttl).Unix(), 0)
}

func msetCommand(chunk []Item) Command {
	args := make([]interface{}, 0, 1+2*len(chunk))
	args = append(args, MSetCommand)
	for _, it := range chunk {
		args = append(args, it.Key, it.Value)
	}
	return Command{kind: kindMSet, args: args}
}

// BuildMSet writes the chunk with a single MSET and sets no expiry.
func BuildMSet(chunk []Item, _ time.Time, _ time.Duration) *Pipeline {
	return &Pipeline{
		cmds:  []Command{msetCommand(chunk)},
		items: len(chunk),
	}
}

// BuildMSetExpire writes the chunk with one MSET followed by an EXPIREAT
// per key.
func BuildMSetExpire(chunk []Item, now time.Time, ttl time.Duration) *Pipeline {
	at := expiryOf(now, ttl)
	ts := at.Unix()

	cmds := make([]Command, 0, 1+len(chunk))
	cmds = append(cmds, msetCommand(chunk))
	for _, it := range chunk {
		cmds = append(cmds, Command{
			kind:     kindExpireAt,
			args:     []interface{}{ExpireAtCommand, it.Key, ts},
			key:      it.Key,
			expireAt: at,
		})
	}
	return &Pipeline{cmds: cmds, items: len(chunk), expireAt: at}
}

// BuildSetWithExpiry issues SET key value EXAT ts per item through the
// typed set option.
func BuildSetWithExpiry(chunk []Item, now time.Time, ttl time.Duration) *Pipeline {
	at := expiryOf(now, ttl)
	ts := at.Unix()

	cmds := make([]Command, 0, len(chunk))
	for _, it := range chunk {
		cmds = append(cmds, Command{
			kind:    kindSetArgs,
			args:    []interface{}{SetCommand, it.Key, it.Value, ExpiryAtOption, ts},
			key:     it.Key,
			value:   it.Value,
			setArgs: redis.SetArgs{ExpireAt: at},
		})
	}
	return &Pipeline{cmds: cmds, items: len(chunk), expireAt: at}
}

// BuildSetWithExpiryManual issues the same commands as BuildSetWithExpiry
// but appends the expiry clause as raw arguments.
func BuildSetWithExpiryManual(chunk []Item, now time.Time, ttl time.Duration) *Pipeline {
	at := expiryOf(now, ttl)
	ts := at.Unix()

	cmds := make([]Command, 0, len(chunk))
	for _, it := range chunk {
		cmds = append(cmds, Command{
			kind: kindRaw,
			args: []interface{}{SetCommand, it.Key, it.Value, ExpiryAtOption, ts},
		})
	}
	return &Pipeline{cmds: cmds, items: len(chunk), expireAt: at}
}

// Encoding names a pipeline building strategy.
type Encoding int

const (
	EncodingMSet Encoding = iota
	EncodingMSetExpire
	EncodingSetWithExpiry
	EncodingSetWithExpiryManual
)

var encodingNames = map[Encoding]string{
	EncodingMSet:                "mset",
	EncodingMSetExpire:          "mset+expire",
	EncodingSetWithExpiry:       "set+expiry",
	EncodingSetWithExpiryManual: "manual set+expiry",
}

func (e Encoding) String() string {
	if name, ok := encodingNames[e]; ok {
		return name
	}
	return fmt.Sprintf("encoding(%d)", int(e))
}

// Builder returns the pipeline builder of the encoding.
func (e Encoding) Builder() Builder {
	switch e {
	case EncodingMSetExpire:
		return BuildMSetExpire
	case EncodingSetWithExpiry:
		return BuildSetWithExpiry
	case EncodingSetWithExpiryManual:
		return BuildSetWithExpiryManual
	default:
		return BuildMSet
	}
}

// ParseEncoding maps a label such as "set+expiry" back to its Encoding.
func ParseEncoding(s string) (Encoding, error) {
	for enc, name := range encodingNames {
		if name == s {
			return enc, nil
		}
	}
	return 0, fmt.Errorf("unknown encoding %q", s)
}
