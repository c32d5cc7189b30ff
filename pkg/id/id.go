package id

import (
	"bytes"
	cryptoRand "crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	mu   sync.Mutex
	mono io.Reader
)

func init() {
	// Seed a PRNG from crypto/rand so ULID entropy is unpredictable.
	// ulid.Monotonic keeps IDs generated within the same millisecond
	// lexicographically increasing.
	var seed int64
	_ = binary.Read(cryptoRand.Reader, binary.LittleEndian, &seed)
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	mono = ulid.Monotonic(rand.New(rand.NewSource(seed)), 0)
}

// New returns a ULID string (time-sortable identifier) for the current time.
func New() string {
	return At(time.Now().UTC())
}

// At returns a random ULID carrying t as its timestamp.
func At(t time.Time) string {
	mu.Lock()
	defer mu.Unlock()

	id, err := ulid.New(ulid.Timestamp(t), mono)
	if err != nil {
		// Errors are extremely unlikely unless time goes backwards or entropy fails.
		panic(err)
	}
	return id.String()
}

// Deterministic derives a ULID from key and t. The same inputs always give
// the same ID, so replays of the same data produce identical trade IDs.
func Deterministic(key string, t time.Time) string {
	sum := sha256.Sum256([]byte(key + "|" + t.UTC().Format(time.RFC3339Nano)))
	id, err := ulid.New(ulid.Timestamp(t), bytes.NewReader(sum[:]))
	if err != nil {
		panic(err)
	}
	return id.String()
}
