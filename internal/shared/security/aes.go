package security

import (
	"errors"

	"github.com/go-think/openssl"
)

var ErrAESKeySize = errors.New("aes key must be 16, 24 or 32 bytes")

func checkKey(key []byte) error {
	switch len(key) {
	case 16, 24, 32:
		return nil
	}
	return ErrAESKeySize
}

// AesCBCEncrypt 用 key 加密，iv 取 key 的前 16 字节。
func AesCBCEncrypt(src, key []byte) ([]byte, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}
	return openssl.AesCBCEncrypt(src, key, key[:16], openssl.PKCS7_PADDING)
}

func AesCBCDecrypt(src, key []byte) ([]byte, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}
	return openssl.AesCBCDecrypt(src, key, key[:16], openssl.PKCS7_PADDING)
}
