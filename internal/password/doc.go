// Package password hashes and verifies operator passwords.
//
// Hashes are bcrypt over a SHA-256 pre-hash of the password, so inputs longer
// than bcrypt's 72-byte limit keep their full entropy. The same pre-hash is
// applied by Hash and Verify:
//
//	h := password.NewHasher(bcrypt.DefaultCost)
//	encoded, err := h.Hash("correct horse battery staple")
//	ok := h.Verify("correct horse battery staple", encoded)
//
// Passwords longer than MaxPasswordBytes are rejected by Hash and never verify.
//
// Verify also accepts passlib bcrypt_sha256 hashes ($bcrypt-sha256$...), the
// format of user files written by earlier Python deployments. New hashes are
// always native bcrypt.
package password
