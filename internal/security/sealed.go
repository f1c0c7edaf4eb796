package security

import "time"

// SealedToken is an encrypted signed token together with the hash that is persisted for it.
type SealedToken struct {
	// Token is encrypt(sign(claims)); handed to the client.
	Token string
	// Hash is sha256 of Token; the only form stored server-side.
	Hash      string
	ExpiresAt time.Time
}

// Sealer composes TokenCodec and Encryptor into externally exposed verification and reset tokens.
type Sealer struct {
	codec *TokenCodec
	enc   *Encryptor
}

// NewSealer returns a Sealer over codec and enc.
func NewSealer(codec *TokenCodec, enc *Encryptor) *Sealer {
	return &Sealer{codec: codec, enc: enc}
}

// Codec returns the underlying TokenCodec.
func (s *Sealer) Codec() *TokenCodec { return s.codec }

// Seal signs claims for purpose p, encrypts the result and hashes the encrypted string.
func (s *Sealer) Seal(p Purpose, claims Claims) (SealedToken, error) {
	signed, exp, err := s.codec.Sign(p, claims)
	if err != nil {
		return SealedToken{}, err
	}
	opaque, err := s.enc.Encrypt(signed)
	if err != nil {
		return SealedToken{}, err
	}
	return SealedToken{Token: opaque, Hash: HashToken(opaque), ExpiresAt: exp}, nil
}

// Open decrypts opaque and verifies it for purpose p into claims. On success it returns
// the hash of the received encrypted string for comparison with the stored hash.
// Errors are ErrInvalidToken or ErrTokenExpired.
func (s *Sealer) Open(p Purpose, opaque string, claims Claims) (string, error) {
	signed, err := s.enc.Decrypt(opaque)
	if err != nil {
		return "", ErrInvalidToken
	}
	if err := s.codec.Verify(p, signed, claims); err != nil {
		return "", err
	}
	return HashToken(opaque), nil
}
