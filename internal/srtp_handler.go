package internal

import (
	"encoding/hex"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/pion/rtp"
	"github.com/pion/srtp/v2"
)

// SRTP profiles accepted in the configuration
var srtpProfiles = map[string]srtp.ProtectionProfile{
	"AES_CM_128_HMAC_SHA1_80": srtp.ProtectionProfileAes128CmHmacSha1_80,
	"AES_CM_128_HMAC_SHA1_32": srtp.ProtectionProfileAes128CmHmacSha1_32,
	"AES_256_CM_HMAC_SHA1_80": srtp.ProtectionProfileAes256CmHmacSha1_80,
	"AES_256_CM_HMAC_SHA1_32": srtp.ProtectionProfileAes256CmHmacSha1_32,
	"AEAD_AES_128_GCM":        srtp.ProtectionProfileAeadAes128Gcm,
	"AEAD_AES_256_GCM":        srtp.ProtectionProfileAeadAes256Gcm,
}

// Protector turns a serialized RTP packet into the datagram that goes on the wire
type Protector interface {
	Protect(packet []byte, header *rtp.Header) ([]byte, error)
}

// Unprotector reverses Protector on the receiving side
type Unprotector interface {
	Unprotect(datagram []byte) ([]byte, error)
}

// SRTPSession wraps one SRTP crypto context. Sender and receiver each need their own,
// since the context tracks per-SSRC rollover state.
type SRTPSession struct {
	mu      sync.Mutex
	context *srtp.Context
	profile srtp.ProtectionProfile
}

func parseSRTPProfile(name string) (srtp.ProtectionProfile, error) {
	if name == "" {
		name = DefaultSRTPProfile
	}
	profile, ok := srtpProfiles[strings.ToUpper(name)]
	if !ok {
		return 0, fmt.Errorf("unsupported SRTP profile %q", name)
	}
	return profile, nil
}

func decodeSRTPKeys(cfg SRTPConfig) ([]byte, []byte, srtp.ProtectionProfile, error) {
	profile, err := parseSRTPProfile(cfg.Profile)
	if err != nil {
		return nil, nil, 0, err
	}

	key, err := hex.DecodeString(cfg.Key)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("invalid SRTP key: %w", err)
	}
	salt, err := hex.DecodeString(cfg.Salt)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("invalid SRTP salt: %w", err)
	}

	keyLen, err := profile.KeyLen()
	if err != nil {
		return nil, nil, 0, err
	}
	saltLen, err := profile.SaltLen()
	if err != nil {
		return nil, nil, 0, err
	}

	if len(key) != keyLen {
		return nil, nil, 0, fmt.Errorf("SRTP key must be %d bytes, got %d", keyLen, len(key))
	}
	if len(salt) != saltLen {
		return nil, nil, 0, fmt.Errorf("SRTP salt must be %d bytes, got %d", saltLen, len(salt))
	}

	return key, salt, profile, nil
}

// NewSRTPSession initializes an SRTP context from hex key material
func NewSRTPSession(cfg SRTPConfig) (*SRTPSession, error) {
	key, salt, profile, err := decodeSRTPKeys(cfg)
	if err != nil {
		return nil, NewError(err, ErrCodeSRTP, "srtp", "init")
	}

	ctx, err := srtp.CreateContext(key, salt, profile)
	if err != nil {
		return nil, NewError(err, ErrCodeSRTP, "srtp", "init")
	}

	log.Printf("🔐 SRTP session initialized (%s)", profile)
	return &SRTPSession{context: ctx, profile: profile}, nil
}

// Profile returns the negotiated protection profile
func (s *SRTPSession) Profile() srtp.ProtectionProfile {
	return s.profile
}

// Protect encrypts an RTP packet
func (s *SRTPSession) Protect(packet []byte, header *rtp.Header) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out, err := s.context.EncryptRTP(nil, packet, header)
	if err != nil {
		return nil, NewError(err, ErrCodeSRTP, "srtp", "encrypt")
	}
	return out, nil
}

// Unprotect decrypts an SRTP datagram back into a plain RTP packet
func (s *SRTPSession) Unprotect(datagram []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out, err := s.context.DecryptRTP(nil, datagram, nil)
	if err != nil {
		return nil, NewError(err, ErrCodeSRTP, "srtp", "decrypt")
	}
	return out, nil
}
