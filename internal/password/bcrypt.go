// ABOUTME: bcrypt password hashing with a SHA-256 pre-hash for long inputs
// ABOUTME: Provides Hash, Verify and a dummy comparison for timing-safe logins

package password

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strconv"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// MaxPasswordBytes is the largest UTF-8 encoded password accepted.
const MaxPasswordBytes = 4096

var (
	ErrPasswordTooLong = errors.New("password exceeds maximum length")
	ErrEmptyPassword   = errors.New("password is empty")
)

// Hasher hashes passwords with a fixed bcrypt cost.
type Hasher struct {
	cost int
	// dummy is a hash at cost compared against when no real hash exists,
	// keeping unknown-user logins as slow as wrong-password logins.
	dummy []byte
}

// NewHasher returns a Hasher using cost, clamped to bcrypt's valid range.
// A zero cost selects bcrypt.DefaultCost. The dummy hash is computed here, so
// construction takes as long as one Hash call.
func NewHasher(cost int) *Hasher {
	cost = clampCost(cost)
	dummy, err := bcrypt.GenerateFromPassword(prehash("dockgate-dummy-password"), cost)
	if err != nil {
		// Only reachable with an out-of-range cost, which clampCost rules out.
		panic("password: generating dummy hash: " + err.Error())
	}
	return &Hasher{cost: cost, dummy: dummy}
}

func clampCost(cost int) int {
	switch {
	case cost == 0:
		return bcrypt.DefaultCost
	case cost < bcrypt.MinCost:
		return bcrypt.MinCost
	case cost > bcrypt.MaxCost:
		return bcrypt.MaxCost
	}
	return cost
}

// Cost returns the bcrypt work factor used for new hashes.
func (h *Hasher) Cost() int {
	return h.cost
}

// Hash returns the encoded bcrypt hash of password. The salt is random per call
// and embedded in the result.
func (h *Hasher) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}
	if len(password) > MaxPasswordBytes {
		return "", ErrPasswordTooLong
	}
	out, err := bcrypt.GenerateFromPassword(prehash(password), h.cost)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// Verify reports whether password matches the encoded hash. Besides native
// hashes it accepts passlib bcrypt_sha256 hashes (v1 and v2) so user files
// written by earlier deployments keep working. Malformed hashes and
// out-of-bounds passwords return false.
func (h *Hasher) Verify(password, encoded string) bool {
	if password == "" || len(password) > MaxPasswordBytes || encoded == "" {
		return false
	}
	if strings.HasPrefix(encoded, bcryptSHA256Prefix) {
		return verifyBcryptSHA256(password, encoded)
	}
	return bcrypt.CompareHashAndPassword([]byte(encoded), prehash(password)) == nil
}

// DummyVerify performs one comparison at the hasher's cost and discards the
// result.
func (h *Hasher) DummyVerify(password string) {
	_ = bcrypt.CompareHashAndPassword(h.dummy, prehash(password))
}

// Known reports whether encoded is in a format Verify understands. It does
// not check that the hash is well formed.
func Known(encoded string) bool {
	return strings.HasPrefix(encoded, bcryptSHA256Prefix) ||
		strings.HasPrefix(encoded, "$2a$") ||
		strings.HasPrefix(encoded, "$2b$") ||
		strings.HasPrefix(encoded, "$2y$")
}

const bcryptSHA256Prefix = "$bcrypt-sha256$"

// verifyBcryptSHA256 checks passlib's bcrypt_sha256 formats:
//
//	v1: $bcrypt-sha256$<ident>,<rounds>$<salt>$<digest>
//	v2: $bcrypt-sha256$v=2,t=<ident>,r=<rounds>$<salt>$<digest>
//
// v1 keys bcrypt with base64(sha256(password)); v2 with
// base64(hmac-sha256(key=salt, password)).
func verifyBcryptSHA256(password, encoded string) bool {
	parts := strings.Split(strings.TrimPrefix(encoded, bcryptSHA256Prefix), "$")
	if len(parts) != 3 || len(parts[1]) != 22 || len(parts[2]) != 31 {
		return false
	}
	params, salt, digest := parts[0], parts[1], parts[2]

	var ident, rounds string
	var key []byte
	if rest, ok := strings.CutPrefix(params, "v=2,"); ok {
		fields := strings.Split(rest, ",")
		if len(fields) != 2 {
			return false
		}
		t, tok := strings.CutPrefix(fields[0], "t=")
		r, rok := strings.CutPrefix(fields[1], "r=")
		if !tok || !rok {
			return false
		}
		ident, rounds = t, r
		mac := hmac.New(sha256.New, []byte(salt))
		mac.Write([]byte(password))
		key = encodeKey(mac.Sum(nil))
	} else {
		fields := strings.Split(params, ",")
		if len(fields) != 2 {
			return false
		}
		ident, rounds = fields[0], fields[1]
		key = prehash(password)
	}

	if ident != "2a" && ident != "2b" {
		return false
	}
	cost, err := strconv.Atoi(rounds)
	if err != nil || cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return false
	}

	native := "$" + ident + "$" + twoDigits(cost) + "$" + salt + digest
	return bcrypt.CompareHashAndPassword([]byte(native), key) == nil
}

func twoDigits(n int) string {
	if n < 10 {
		return "0" + strconv.Itoa(n)
	}
	return strconv.Itoa(n)
}

// prehash maps any password to 44 printable bytes, below bcrypt's 72-byte
// input limit and free of NUL bytes.
func prehash(password string) []byte {
	sum := sha256.Sum256([]byte(password))
	return encodeKey(sum[:])
}

func encodeKey(sum []byte) []byte {
	out := make([]byte, base64.StdEncoding.EncodedLen(len(sum)))
	base64.StdEncoding.Encode(out, sum)
	return out
}
