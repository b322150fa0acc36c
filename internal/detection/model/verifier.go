package model

import (
	"bytes"
	"fmt"
	"io"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/spf13/afero"
)

// Verifier checks detached OpenPGP signatures over model artifacts
type Verifier struct {
	keyring openpgp.EntityList
}

// NewVerifier creates a verifier with an empty keyring
func NewVerifier() *Verifier {
	return &Verifier{keyring: make(openpgp.EntityList, 0)}
}

// ImportKeyRing adds armored or binary public keys
func (v *Verifier) ImportKeyRing(r io.ReadSeeker) error {
	entities, err := openpgp.ReadArmoredKeyRing(r)
	if err != nil {
		if _, seekErr := r.Seek(0, io.SeekStart); seekErr != nil {
			return fmt.Errorf("failed to reset keyring reader: %w", seekErr)
		}
		entities, err = openpgp.ReadKeyRing(r)
		if err != nil {
			return fmt.Errorf("failed to read key: %w", err)
		}
	}
	if len(entities) == 0 {
		return fmt.Errorf("no keys found in keyring")
	}
	v.keyring = append(v.keyring, entities...)
	return nil
}

// ImportKeyFromFile imports a keyring file
func (v *Verifier) ImportKeyFromFile(fs afero.Fs, path string) error {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return fmt.Errorf("failed to open key file: %w", err)
	}
	return v.ImportKeyRing(bytes.NewReader(data))
}

// KeyCount returns the number of imported entities
func (v *Verifier) KeyCount() int {
	return len(v.keyring)
}

// Verify checks sig (armored or binary) over data
func (v *Verifier) Verify(data, sig []byte) error {
	if len(v.keyring) == 0 {
		return fmt.Errorf("%w: no keys imported", ErrSignatureMismatch)
	}
	if len(sig) < 10 {
		return fmt.Errorf("%w: signature too small", ErrSignatureMismatch)
	}

	var err error
	if bytes.HasPrefix(sig, []byte("-----BEGIN PGP SIGNATURE")) {
		_, err = openpgp.CheckArmoredDetachedSignature(v.keyring, bytes.NewReader(data), bytes.NewReader(sig), nil)
	} else {
		_, err = openpgp.CheckDetachedSignature(v.keyring, bytes.NewReader(data), bytes.NewReader(sig), nil)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSignatureMismatch, err)
	}
	return nil
}
