// internal/monitoring/fingerprint.go
package monitoring

import (
    "crypto/sha256"
    "encoding/hex"

    "sitewarden/internal/database"
)

// Fingerprint is the hex SHA-256 of the page HTML as UTF-8 bytes.
func Fingerprint(html string) string {
    sum := sha256.Sum256([]byte(html))
    return hex.EncodeToString(sum[:])
}

// Transition derives a target's status from one check. It depends only on
// its arguments: a failed fetch is erro, a first observation or an unchanged
// hash is ok, anything else is alterado.
func Transition(fetchOK bool, priorHash, newHash string) database.Status {
    switch {
    case !fetchOK:
        return database.StatusError
    case priorHash == "":
        return database.StatusOK
    case priorHash == newHash:
        return database.StatusOK
    default:
        return database.StatusChanged
    }
}
