package keybackend

import "errors"

// ErrCorruptFile is returned when a keys file exists but cannot be decoded.
var ErrCorruptFile = errors.New("keys file is corrupt")

// ErrUnsupportedBackend is returned by NewKeyStore for backends this package
// does not implement.
var ErrUnsupportedBackend = errors.New("unsupported key backend")
