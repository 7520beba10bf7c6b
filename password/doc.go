// Package password verifies stored password hashes.
//
// # Formats
//
// New hashes are argon2id in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// Legacy bcrypt hashes ($2a$, $2b$, $2y$) are verified as-is and reported by
// [Verifier.NeedsRehash] so callers can migrate them.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords.
//   - Import any other goSession package.
//   - Log plaintext passwords.
package password
