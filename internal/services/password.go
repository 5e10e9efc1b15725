package services

import (
	cryptorand "crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/spf13/viper"
	"golang.org/x/crypto/argon2"
)

type argonParams struct {
	time    uint32
	memory  uint32
	threads uint8
	keyLen  uint32
	saltLen int
}

func loadArgonParams() argonParams {
	p := argonParams{time: 1, memory: 64 * 1024, threads: 4, keyLen: 32, saltLen: 16}
	if v := viper.GetInt("argon2.time"); v > 0 {
		p.time = uint32(v)
	}
	if v := viper.GetInt("argon2.memory"); v > 0 {
		p.memory = uint32(v)
	}
	if v := viper.GetInt("argon2.threads"); v > 0 {
		p.threads = uint8(v)
	}
	if v := viper.GetInt("argon2.key_length"); v > 0 {
		p.keyLen = uint32(v)
	}
	if v := viper.GetInt("argon2.salt_length"); v > 0 {
		p.saltLen = v
	}
	return p
}

// HashPassword returns base64(salt)$base64(argon2id hash)
func HashPassword(password string) (string, error) {
	p := loadArgonParams()
	salt := make([]byte, p.saltLen)
	if _, err := cryptorand.Read(salt); err != nil {
		return "", err
	}

	hash := argon2.IDKey([]byte(password), salt, p.time, p.memory, p.threads, p.keyLen)
	return fmt.Sprintf("%s$%s", base64.StdEncoding.EncodeToString(salt), base64.StdEncoding.EncodeToString(hash)), nil
}

// VerifyPassword checks password against a hash produced by HashPassword
func VerifyPassword(password, hashedPassword string) bool {
	parts := strings.Split(hashedPassword, "$")
	if len(parts) != 2 {
		return false
	}

	salt, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return false
	}

	hash, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return false
	}

	p := loadArgonParams()
	computed := argon2.IDKey([]byte(password), salt, p.time, p.memory, p.threads, uint32(len(hash)))
	return subtle.ConstantTimeCompare(hash, computed) == 1
}
