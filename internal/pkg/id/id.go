package id

import (
	"crypto/rand"

	"github.com/oklog/ulid/v2"
)

// New generates a new ULID string. Used as the public id of uploaded profile
// pictures, so object keys sort by upload time.
func New() string {
	return ulid.MustNew(ulid.Now(), rand.Reader).String()
}
