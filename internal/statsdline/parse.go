package statsdline

import (
	"bytes"
	"math"
	"strconv"

	lru "github.com/hashicorp/golang-lru/v2"
)

const keyInternCacheSize = 4096

// Parser decodes raw statsd lines. It is not safe for concurrent use by
// multiple goroutines without external synchronization, matching the
// single-threaded-per-instance model the rest of the engine follows.
type Parser struct {
	// keys interns the key prefix of recently seen lines, so repeated
	// observations of a hot metric return the same cached string. The
	// key bytes are still converted to a new string on every Parse call
	// before the cache lookup.
	keys *lru.Cache[string, string]
}

// NewParser builds a Parser with an empty key-interning cache.
func NewParser() *Parser {
	c, err := lru.New[string, string](keyInternCacheSize)
	if err != nil {
		// Only returns an error for a non-positive size, which
		// keyInternCacheSize never is.
		panic(err)
	}
	return &Parser{keys: c}
}

// Parse decodes a single line of the form
//
//	<key>:<value>|<type>[|@<rate>]
//
// Parsing runs right-to-left on the first ':' so that keys carrying
// embedded ':' in tag-like notation (e.g. "name.__tag=k:v:42.0|ms") are
// not misparsed: the rightmost colon always separates key from value.
func (p *Parser) Parse(line []byte) (Observation, error) {
	if len(line) == 0 {
		return Observation{}, reject(ReasonEmptyLine, line)
	}

	colon := bytes.LastIndexByte(line, ':')
	if colon < 0 {
		return Observation{}, reject(ReasonNoSeparator, line)
	}
	if colon == 0 {
		return Observation{}, reject(ReasonEmptyKey, line)
	}
	keyBytes := line[:colon]
	rest := line[colon+1:]

	key := p.internKey(keyBytes)

	firstPipe := bytes.IndexByte(rest, '|')
	if firstPipe < 0 {
		return Observation{}, reject(ReasonMissingType, line)
	}
	valueBytes := rest[:firstPipe]
	value, err := strconv.ParseFloat(string(valueBytes), 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
		return Observation{}, reject(ReasonBadValue, line)
	}

	// The rate clause is introduced either by a second '|' (the grammar
	// sketch's "<type>|@<rate>", used by every input example in this
	// package's test suite) or directly by '@' with no separating pipe
	// (the form every emitted-line example uses, e.g. "c@0.5"). Accept
	// both so flush-engine output round-trips through this parser.
	afterValue := rest[firstPipe+1:]
	delim := indexPipeOrAt(afterValue)
	var typeToken []byte
	var rateClause []byte
	hasRate := false
	switch {
	case delim < 0:
		typeToken = afterValue
	case afterValue[delim] == '@':
		typeToken = afterValue[:delim]
		rateClause = afterValue[delim:]
		hasRate = true
	default: // '|'
		typeToken = afterValue[:delim]
		rateClause = afterValue[delim+1:]
		hasRate = true
	}

	mtype, ok := typeTokens[string(typeToken)]
	if !ok {
		return Observation{}, reject(ReasonUnknownType, line)
	}

	presample := 1.0
	if hasRate {
		if len(rateClause) == 0 || rateClause[0] != '@' {
			return Observation{}, reject(ReasonBadRate, line)
		}
		// No further segments are defined by the grammar past the rate.
		if bytes.IndexByte(rateClause, '|') >= 0 {
			return Observation{}, reject(ReasonBadRate, line)
		}
		rateBytes := rateClause[1:]
		if len(rateBytes) == 0 {
			return Observation{}, reject(ReasonBadRate, line)
		}
		rate, err := strconv.ParseFloat(string(rateBytes), 64)
		if err != nil || math.IsNaN(rate) || math.IsInf(rate, 0) || rate <= 0 || rate > 1 {
			return Observation{}, reject(ReasonBadRate, line)
		}
		presample = rate
	}

	return Observation{
		Key:              key,
		Value:            value,
		Type:             mtype,
		PresamplingValue: presample,
	}, nil
}

// indexPipeOrAt returns the index of whichever of '|' or '@' occurs
// first in b, or -1 if neither is present.
func indexPipeOrAt(b []byte) int {
	pipe := bytes.IndexByte(b, '|')
	at := bytes.IndexByte(b, '@')
	switch {
	case pipe < 0:
		return at
	case at < 0:
		return pipe
	case pipe < at:
		return pipe
	default:
		return at
	}
}

func (p *Parser) internKey(keyBytes []byte) string {
	candidate := string(keyBytes)
	if cached, ok := p.keys.Get(candidate); ok {
		return cached
	}
	p.keys.Add(candidate, candidate)
	return candidate
}
